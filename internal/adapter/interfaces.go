// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package adapter provides the transport used to replay outbox entries
// against the remote POS backend and to pull authoritative collections.
//
// The primary abstraction is [RemoteBackend], which decouples the sync engine
// from the underlying protocol. The package ships an HTTP/REST implementation
// ([NewHTTPRemoteBackend]).
//
// Error values defined in errors.go are mapped from HTTP status codes by
// mapHTTPError so that callers can classify outcomes with [errors.Is] and
// [errors.As]: [ErrConflict] (carried by [*ConflictError]) for 409,
// [ErrRemoteUnavailable] for transport failures, timeouts and 5xx, and
// [ErrRemoteRejected] for every other 4xx.
package adapter

import (
	"context"
	"encoding/json"

	"github.com/MKhiriev/go-pos-keeper/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/remote_backend_mock.go -package=mock

// RemoteBackend is the remote system of record. Every method is scoped to a
// tenant and an entity kind; the idempotency key of the entry being replayed
// is read from the context (see utils.WithIdempotencyKey).
type RemoteBackend interface {
	// SetToken stores the bearer token attached to all subsequent requests.
	SetToken(token string)

	// Token returns the bearer token currently held, or an empty string.
	Token() string

	// Create stores a new record. The returned record carries server-assigned
	// fields; it is the zero value when the backend sent no body.
	Create(ctx context.Context, kind models.EntityKind, tenantID string, rec models.Record) (models.Record, error)

	// Update applies patch to the record id. version is the revision the
	// patch was based on; zero means unknown.
	Update(ctx context.Context, kind models.EntityKind, tenantID, id string, patch json.RawMessage, version int64) (models.Record, error)

	// Delete removes the record id.
	Delete(ctx context.Context, kind models.EntityKind, tenantID, id string, version int64) error

	// ListAll returns the full authoritative collection of the tenant.
	ListAll(ctx context.Context, kind models.EntityKind, tenantID string) ([]models.Record, error)
}
