package validators

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/MKhiriev/go-pos-keeper/models"
)

// Field name constants restrict validation to a subset of record fields.
const (
	// FieldID targets the caller-assigned record identifier.
	FieldID = "id"

	// FieldTenantID targets the owning tenant.
	FieldTenantID = "tenant_id"

	// FieldPayload requires the payload to be a JSON object. For updates
	// the object is a merge patch.
	FieldPayload = "payload"

	// FieldVersion rejects negative versions.
	FieldVersion = "version"

	// FieldOccurredAt rejects a set but zero business timestamp.
	FieldOccurredAt = "occurred_at"
)

// FieldsFor returns the fields a write of op must carry.
func FieldsFor(op models.Operation) []string {
	switch op {
	case models.OperationCreate:
		return []string{FieldID, FieldTenantID, FieldPayload, FieldVersion, FieldOccurredAt}
	case models.OperationUpdate:
		return []string{FieldID, FieldTenantID, FieldPayload, FieldVersion, FieldOccurredAt}
	case models.OperationDelete:
		return []string{FieldID, FieldTenantID, FieldVersion}
	}
	return nil
}

type RecordValidator struct{}

func NewRecordValidator() Validator {
	return &RecordValidator{}
}

// Validate checks a [models.Record]. Without fields it validates a record
// as a create would.
func (v *RecordValidator) Validate(ctx context.Context, obj any, fields ...string) error {
	switch value := obj.(type) {
	case models.Record:
		return v.validateRecord(ctx, value, fields...)
	case *models.Record:
		return v.validateRecord(ctx, *value, fields...)
	default:
		return ErrUnsupportedType
	}
}

func (v *RecordValidator) validateRecord(_ context.Context, rec models.Record, fields ...string) error {
	if len(fields) == 0 {
		fields = FieldsFor(models.OperationCreate)
	}

	for _, f := range fields {
		switch f {
		case FieldID:
			if rec.ID == "" {
				return ErrEmptyID
			}
		case FieldTenantID:
			if rec.TenantID == "" {
				return ErrEmptyTenantID
			}
		case FieldPayload:
			if !isJSONObject(rec.Payload) {
				return ErrPayloadNotObject
			}
		case FieldVersion:
			if rec.Version < 0 {
				return ErrInvalidVersion
			}
		case FieldOccurredAt:
			if rec.OccurredAt != nil && rec.OccurredAt.IsZero() {
				return ErrInvalidOccurredAt
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func isJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{' && json.Valid(b)
}
