// Package backend talks to the automation backend that owns sessions,
// contacts, bots and the WhatsApp transport.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBody = 1 << 20

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx answer the caller did not map to anything
// more specific.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// DecodeError is a 2xx answer whose body did not match the expected shape.
type DecodeError struct {
	Method, Path string
	Err          error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("backend: decode %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// errorBody is the failure envelope used by every backend endpoint.
type errorBody struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e errorBody) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// do sends the request and decodes a 2xx body into out. For other statuses
// it returns the status and the decoded error envelope with a nil error;
// transport failures return a non-nil error.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, errorBody, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, errorBody{}, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, errorBody{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("apikey", c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, errorBody{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, errorBody{}, err
	}

	var eb errorBody
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = json.Unmarshal(raw, &eb)
		return resp.StatusCode, eb, nil
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &eb)
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp.StatusCode, eb, &DecodeError{Method: method, Path: path, Err: err}
			}
		}
	}
	return resp.StatusCode, eb, nil
}

func esc(s string) string { return url.PathEscape(s) }
