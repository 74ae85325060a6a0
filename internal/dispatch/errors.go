package dispatch

import (
	"context"
	"errors"
	"net"
)

// ErrorKind classifies a failed send.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindInvalidAddress ErrorKind = "invalid-address"
	KindNotConnected   ErrorKind = "account-not-connected"
	KindRateLimited    ErrorKind = "rate-limited"
	KindUnknown        ErrorKind = "unknown"
)

// SendError is the structured failure a Sender returns.
type SendError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *SendError) Unwrap() error { return e.Err }

// Retryable reports whether the same send may succeed later without any
// change to the bot configuration.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindRateLimited
}

// Classify maps any error to a kind. Timeouts and transport errors count as
// network failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetwork
	}
	return KindUnknown
}

func asSendError(err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		if se.Kind == "" {
			return &SendError{Kind: KindUnknown, Message: se.Message, Err: se.Err}
		}
		return se
	}
	return &SendError{Kind: Classify(err), Message: err.Error(), Err: err}
}
