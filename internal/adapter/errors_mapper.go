package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(string(resp.Body()))

	switch {
	case code == http.StatusConflict:
		return newConflictError(resp.Body())
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w: %s", ErrRemoteRejected, ErrUnauthorized, body)
	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http %d: %s", ErrRemoteUnavailable, code, orStatusText(body, code))
	case code >= http.StatusBadRequest:
		return fmt.Errorf("%w: http %d: %s", ErrRemoteRejected, code, orStatusText(body, code))
	default:
		return fmt.Errorf("%w: unexpected http %d", ErrRemoteUnavailable, code)
	}
}

func newConflictError(body []byte) *ConflictError {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return &ConflictError{ServerPayload: append(json.RawMessage(nil), trimmed...)}
	}
	return &ConflictError{Message: string(trimmed)}
}

func orStatusText(body string, code int) string {
	if body == "" {
		return http.StatusText(code)
	}
	return body
}
