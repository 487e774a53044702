package store

import (
	"context"

	"github.com/MKhiriev/go-pos-keeper/models"
)

// LocalStore is the durable, tenant-indexed record cache. Records returned
// by it are copies; mutating them never changes stored state.
type LocalStore interface {
	// Put inserts rec or overwrites the record with the same identifier.
	// Replaying the same record yields the same stored state.
	Put(ctx context.Context, kind models.EntityKind, rec models.Record) error

	// Get returns a single record or [ErrRecordNotFound].
	Get(ctx context.Context, kind models.EntityKind, id string) (models.Record, error)

	// GetAll returns the tenant's records in the requested order.
	// [models.ChronologicalOrder] is only valid for time-ordered kinds.
	GetAll(ctx context.Context, kind models.EntityKind, tenantID string, order models.ReadOrder) ([]models.Record, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, kind models.EntityKind, id string) error

	// ReplaceTenant atomically swaps the tenant's records of every kind in
	// snapshot for the given ones. Kinds absent from snapshot are kept. Either
	// every kind is replaced or none is.
	ReplaceTenant(ctx context.Context, tenantID string, snapshot map[models.EntityKind][]models.Record) error
}

// MutationOutbox is the persisted FIFO of write intents not yet confirmed by
// the remote.
type MutationOutbox interface {
	// Append assigns the next sequence and persists the entry with
	// retryCount = 0.
	Append(ctx context.Context, entry models.OutboxEntry) (models.OutboxEntry, error)

	// ListPending returns entries ordered by sequence, conflicted ones
	// included. An empty tenantID lists every tenant.
	ListPending(ctx context.Context, tenantID string) ([]models.OutboxEntry, error)

	// Get returns the entry with the given sequence or [ErrEntryNotFound].
	Get(ctx context.Context, sequence int64) (models.OutboxEntry, error)

	// MarkSucceeded removes the entry.
	MarkSucceeded(ctx context.Context, sequence int64) error

	// MarkFailed increments retryCount. Once it reaches maxRetries the entry
	// moves to the failed list and exhausted is true.
	MarkFailed(ctx context.Context, sequence int64, maxRetries int, reason string) (entry models.OutboxEntry, exhausted bool, err error)

	// MarkRejected moves the entry to the failed list without spending
	// retries.
	MarkRejected(ctx context.Context, sequence int64, reason string) (models.OutboxEntry, error)

	// MarkConflict flags the entry for manual resolution, leaving its
	// payload, position and retryCount unchanged.
	MarkConflict(ctx context.Context, sequence int64, serverPayload []byte) error

	// Requeue returns a conflicted entry to the pending state.
	Requeue(ctx context.Context, sequence int64) error

	// Count returns the number of the tenant's entries in the outbox. An
	// empty tenantID counts every tenant.
	Count(ctx context.Context, tenantID string) (int, error)

	Conflicts(ctx context.Context, tenantID string) ([]models.Conflict, error)
	Failed(ctx context.Context, tenantID string) ([]models.FailedMutation, error)
	DismissFailed(ctx context.Context, sequence int64) error

	// Tenants lists tenants that have entries waiting to be drained.
	Tenants(ctx context.Context) ([]string, error)

	// HasLaterEntries reports whether an entry after sequence targets the
	// same record.
	HasLaterEntries(ctx context.Context, kind models.EntityKind, recordID string, sequence int64) (bool, error)
}

// WriteCoordinator applies operations that touch records and the outbox
// together in a single transaction.
type WriteCoordinator interface {
	// ApplyWrite performs the optimistic local write and appends the
	// matching outbox entry. It returns the queued entry and the record as
	// now stored (the zero record for deletes).
	ApplyWrite(ctx context.Context, op models.Operation, kind models.EntityKind, rec models.Record, idempotencyKey string) (models.OutboxEntry, models.Record, error)

	// AdvanceVersion rebases a record confirmed by the remote: the record and
	// its entries queued after afterSequence that still carry version from
	// move to version to. A zero to means the new server version is unknown.
	AdvanceVersion(ctx context.Context, kind models.EntityKind, tenantID, recordID string, afterSequence, from, to int64) error

	// AcceptServer stores the server version of a conflicted entry's record
	// and removes the entry.
	AcceptServer(ctx context.Context, sequence int64) (models.Conflict, error)

	// Clear empties the named collections. The outbox, its conflicts and the
	// failed list are always cleared as well.
	Clear(ctx context.Context, collections ...models.Collection) error
}
