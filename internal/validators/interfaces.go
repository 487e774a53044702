// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package validators checks caller writes before they reach the local store.
//
// A [Validator] may be scoped to a subset of fields; [FieldsFor] returns the
// fields each write operation must carry, so a delete is not rejected for a
// missing payload.
package validators

import "context"

// Validator validates a value, optionally restricted to the named fields.
type Validator interface {
	Validate(ctx context.Context, value any, fields ...string) error
}
