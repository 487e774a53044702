// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"encoding/json"
	"time"
)

// SyncOutcomeKind classifies the result of sending one outbox entry.
type SyncOutcomeKind string

const (
	Succeeded        SyncOutcomeKind = "succeeded"
	Conflicted       SyncOutcomeKind = "conflict"
	RetryableFailure SyncOutcomeKind = "retryable_failure"
	Exhausted        SyncOutcomeKind = "exhausted"

	// Skipped marks entries held back in a pass because an earlier entry for
	// the same record did not succeed.
	Skipped SyncOutcomeKind = "skipped"
)

// SyncOutcome is the per-entry result of a drain. It is not persisted.
type SyncOutcome struct {
	Sequence int64           `json:"sequence"`
	Kind     SyncOutcomeKind `json:"kind"`

	// ServerPayload is set for conflicts.
	ServerPayload json.RawMessage `json:"server_payload,omitempty"`

	// Reason is set for retryable failures and exhaustion.
	Reason string `json:"reason,omitempty"`
}

// DrainReport summarises one drain cycle for a tenant.
type DrainReport struct {
	TenantID string        `json:"tenant_id"`
	Outcomes []SyncOutcome `json:"outcomes"`

	// Coalesced is true when the request joined a drain that was already
	// running and processed nothing itself.
	Coalesced bool `json:"coalesced"`
}

// Count returns how many outcomes of the given kind the report holds.
func (r DrainReport) Count(kind SyncOutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Change announces that an entity collection changed for a tenant.
type Change struct {
	Kind     EntityKind `json:"kind"`
	TenantID string     `json:"tenant_id"`
	At       time.Time  `json:"at"`
}
