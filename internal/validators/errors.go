package validators

import "errors"

var (
	ErrUnsupportedType = errors.New("unsupported type for validation")
	ErrUnknownField    = errors.New("unknown field for validation")

	ErrEmptyID           = errors.New("record id is required")
	ErrEmptyTenantID     = errors.New("tenant id is required")
	ErrPayloadNotObject  = errors.New("payload must be a JSON object")
	ErrInvalidVersion    = errors.New("invalid version")
	ErrInvalidOccurredAt = errors.New("invalid occurred_at")
)
