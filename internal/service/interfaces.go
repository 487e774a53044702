// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package service holds the client-side business layer of the POS cache:
// the [SyncEngine] that reconciles the mutation outbox with the remote
// backend, the caller-facing [CacheService] and the background [SyncJob].
package service

import (
	"context"
	"time"

	"github.com/MKhiriev/go-pos-keeper/internal/notifier"
	"github.com/MKhiriev/go-pos-keeper/models"
)

// SyncEngine replays outbox entries against the remote backend and pulls
// authoritative snapshots. Drains of one tenant are single-flight; drain and
// refresh of the same tenant never overlap.
type SyncEngine interface {
	// Drain sends every pending entry of the tenant in sequence order and
	// applies each outcome to the store before moving on. A call that finds
	// a drain already running returns a coalesced report and makes the
	// running drain take one more pass.
	Drain(ctx context.Context, tenantID string) (models.DrainReport, error)

	// DrainAll drains every tenant that has pending entries, tenants in
	// parallel.
	DrainAll(ctx context.Context) ([]models.DrainReport, error)

	// Refresh replaces the tenant's cached collections with the remote's
	// and publishes a change for every kind. Nothing is replaced unless
	// every collection was fetched.
	Refresh(ctx context.Context, tenantID string) error

	// Shutdown stops scheduling new entries and waits until running drains
	// and refreshes return or ctx expires.
	Shutdown(ctx context.Context) error
}

// CacheService is the API the point-of-sale UI works against. Reads are
// served from the local store only and never block on the network.
type CacheService interface {
	// Write applies op optimistically and queues it for the remote. An
	// empty rec.TenantID means the session tenant. The record is visible to
	// Read as soon as Write returns.
	Write(ctx context.Context, op models.Operation, kind models.EntityKind, rec models.Record) (models.OutboxEntry, error)

	// Read lists the tenant's records of kind. An empty tenantID means the
	// session tenant.
	Read(ctx context.Context, kind models.EntityKind, tenantID string, order models.ReadOrder) ([]models.Record, error)

	Get(ctx context.Context, kind models.EntityKind, id string) (models.Record, error)

	// PendingCount is the number of the session tenant's unsynced changes,
	// conflicts included.
	PendingCount(ctx context.Context) (int, error)

	// Conflicts and Failed list the session tenant's entries awaiting a
	// decision.
	Conflicts(ctx context.Context) ([]models.Conflict, error)
	Failed(ctx context.Context) ([]models.FailedMutation, error)

	// ResolveConflict applies a human decision to a conflicted entry.
	ResolveConflict(ctx context.Context, sequence int64, resolution models.Resolution) error

	// DismissFailed forgets a failed mutation.
	DismissFailed(ctx context.Context, sequence int64) error

	// Subscribe registers h for change notifications.
	Subscribe(h notifier.Handler) (unsubscribe func())

	// Refresh pulls the tenant's collections from the remote. An empty
	// tenantID means the session tenant.
	Refresh(ctx context.Context, tenantID string) error

	// Clear empties the named collections together with the outbox. No
	// argument clears everything.
	Clear(ctx context.Context, collections ...models.Collection) error
}

// SyncJob drains the outbox in the background, on a ticker and whenever
// [SyncJob.Signal] is called.
type SyncJob interface {
	// Start launches the background loop. A running loop is stopped first.
	Start(ctx context.Context)

	// Stop cancels the loop and waits for it to exit. Safe to call when the
	// job is not running.
	Stop()

	// Signal requests a drain as soon as possible. Signals sent while a
	// drain is pending collapse into one.
	Signal()

	// Interval reports the ticker period.
	Interval() time.Duration
}

// drainSignaler is the part of [SyncJob] the cache service needs.
type drainSignaler interface {
	Signal()
}
