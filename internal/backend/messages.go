package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Mutter0815/BotDispatch/internal/dispatch"
	"github.com/Mutter0815/BotDispatch/pkg/logx"
)

type sendReq struct {
	SessionID string `json:"sessionId"`
	To        string `json:"to"`
	Message   string `json:"message"`
}

type sendResp struct {
	MessageID string `json:"messageId"`
}

// Send implements dispatch.Sender through POST /api/messages/send. Every
// failure comes back as *dispatch.SendError.
func (c *Client) Send(ctx context.Context, account, to, body string) (dispatch.Receipt, error) {
	var out sendResp
	status, eb, err := c.do(ctx, http.MethodPost, "/api/messages/send", sendReq{SessionID: account, To: to, Message: body}, &out)
	var derr *DecodeError
	if errors.As(err, &derr) {
		if eb.Success == nil || *eb.Success {
			// The backend accepted the message; only the receipt is unreadable.
			logx.L().Warnw("send_receipt_decode_error", "account", account, "address", to, "error", err)
			return dispatch.Receipt{}, nil
		}
		err = nil
	}
	if err != nil {
		return dispatch.Receipt{}, &dispatch.SendError{Kind: dispatch.Classify(err), Message: err.Error(), Err: err}
	}
	if status >= 300 || (eb.Success != nil && !*eb.Success) {
		kind := kindFromCode(eb.Code)
		if kind == "" {
			kind = kindFromStatus(status)
		}
		return dispatch.Receipt{}, &dispatch.SendError{Kind: kind, Message: eb.text()}
	}
	return dispatch.Receipt{MessageID: out.MessageID}, nil
}

func kindFromCode(code string) dispatch.ErrorKind {
	switch strings.ToLower(strings.ReplaceAll(code, "-", "_")) {
	case "":
		return ""
	case "rate_limited", "too_many_requests":
		return dispatch.KindRateLimited
	case "invalid_address", "invalid_number", "invalid_phone":
		return dispatch.KindInvalidAddress
	case "account_not_connected", "session_not_connected", "not_connected":
		return dispatch.KindNotConnected
	case "network", "timeout":
		return dispatch.KindNetwork
	}
	return dispatch.KindUnknown
}

func kindFromStatus(status int) dispatch.ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return dispatch.KindRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return dispatch.KindInvalidAddress
	case http.StatusConflict, http.StatusPreconditionFailed:
		return dispatch.KindNotConnected
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return dispatch.KindNetwork
	}
	return dispatch.KindUnknown
}
