package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable covers transport errors, timeouts, 408, 429 and
	// 5xx responses. Callers may retry.
	ErrRemoteUnavailable = errors.New("remote backend unavailable")

	// ErrRemoteRejected is returned for 4xx responses other than 408, 409
	// and 429. Resending the same request will not help.
	ErrRemoteRejected = errors.New("remote backend rejected the request")

	// ErrUnauthorized is returned, together with [ErrRemoteRejected], on 401.
	ErrUnauthorized = errors.New("client unauthorized")

	// ErrConflict is matched by [*ConflictError].
	ErrConflict = errors.New("version conflict")
)

// ConflictError reports that the record changed on the server since the
// client's view of it.
type ConflictError struct {
	// ServerPayload is the server's current version of the record when the
	// backend included one.
	ServerPayload json.RawMessage

	// Message is the raw response text when it was not JSON.
	Message string
}

func (e *ConflictError) Error() string {
	switch {
	case len(e.ServerPayload) > 0:
		return fmt.Sprintf("%s: server has %s", ErrConflict, e.ServerPayload)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", ErrConflict, e.Message)
	}
	return ErrConflict.Error()
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
