// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of write an [OutboxEntry] replays.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether op is a supported operation.
func (op Operation) Valid() bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// EntryStatus is the drain state of an outbox entry.
type EntryStatus string

const (
	// StatusPending entries are picked up by the next drain.
	StatusPending EntryStatus = "pending"

	// StatusConflict entries wait for manual resolution and are never
	// auto-retried.
	StatusConflict EntryStatus = "conflict"
)

// DefaultMaxRetries is the exhaustion threshold for failed drain attempts.
const DefaultMaxRetries = 5

// OutboxEntry is one pending write intent.
type OutboxEntry struct {
	// Sequence is the FIFO ordering key, assigned at append time and never
	// reused.
	Sequence int64 `json:"sequence"`

	Operation  Operation  `json:"operation"`
	EntityKind EntityKind `json:"entity_kind"`

	// RecordID identifies the target record inside its collection.
	RecordID string `json:"record_id"`
	TenantID string `json:"tenant_id"`

	// Payload is the full record body for create, the JSON patch for update
	// and empty for delete.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Version is the record revision the client based the write on.
	Version int64 `json:"version,omitempty"`

	// OccurredAt is copied from time-ordered records.
	OccurredAt *time.Time `json:"occurred_at,omitempty"`

	// IdempotencyKey lets the remote deduplicate replays of this entry.
	IdempotencyKey string `json:"idempotency_key"`

	EnqueuedAt time.Time   `json:"enqueued_at"`
	RetryCount int         `json:"retry_count"`
	Status     EntryStatus `json:"status"`
}

// Record converts the entry to the record shape sent to the remote.
func (e OutboxEntry) Record() Record {
	return Record{
		ID:         e.RecordID,
		TenantID:   e.TenantID,
		Payload:    e.Payload,
		Version:    e.Version,
		OccurredAt: e.OccurredAt,
	}
}

// Conflict is an outbox entry the remote refused because the record changed
// server-side.
type Conflict struct {
	Entry OutboxEntry `json:"entry"`

	// ServerPayload is the authoritative server version of the record, if the
	// remote supplied one.
	ServerPayload json.RawMessage `json:"server_payload,omitempty"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// FailedMutation is an outbox entry that was abandoned after exhausting its
// retries or being rejected by the remote.
type FailedMutation struct {
	Entry    OutboxEntry `json:"entry"`
	Reason   string      `json:"reason"`
	FailedAt time.Time   `json:"failed_at"`
}

// Resolution is a human decision on a [Conflict].
type Resolution int

const (
	// AcceptServer drops the local intent and caches the server payload.
	AcceptServer Resolution = iota

	// RetryLocal returns the entry to the pending queue as is.
	RetryLocal
)
