package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-keeper/models"
)

func newEntry(op models.Operation, kind models.EntityKind, id, tenant, payload string) models.OutboxEntry {
	e := models.OutboxEntry{
		Operation:      op,
		EntityKind:     kind,
		RecordID:       id,
		TenantID:       tenant,
		IdempotencyKey: "key-" + id + "-" + string(op),
	}
	if payload != "" {
		e.Payload = json.RawMessage(payload)
	}
	return e
}

func TestOutboxRepository_AppendAssignsIncreasingSequences(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	first, err := s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p1", "t1", `{"price":10}`))
	require.NoError(t, err)
	second, err := s.Outbox.Append(ctx, newEntry(models.OperationUpdate, models.Product, "p1", "t1", `{"price":11}`))
	require.NoError(t, err)

	assert.Greater(t, second.Sequence, first.Sequence)
	assert.Equal(t, 0, first.RetryCount)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.False(t, first.EnqueuedAt.IsZero())

	// sequences are not reused after the newest entry is removed
	require.NoError(t, s.Outbox.MarkSucceeded(ctx, second.Sequence))
	third, err := s.Outbox.Append(ctx, newEntry(models.OperationDelete, models.Product, "p1", "t1", ""))
	require.NoError(t, err)
	assert.Greater(t, third.Sequence, second.Sequence)
}

func TestOutboxRepository_AppendValidates(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, err := s.Outbox.Append(ctx, newEntry("upsert", models.Product, "p1", "t1", `{}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = s.Outbox.Append(ctx, newEntry(models.OperationCreate, "employee", "e1", "t1", `{}`))
	assert.ErrorIs(t, err, ErrUnknownEntityKind)

	_, err = s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p1", "", `{}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestOutboxRepository_ListPendingOrderAndTenantFilter(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, err := s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p1", "t1", `{}`))
	require.NoError(t, err)
	_, err = s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Customer, "c1", "t2", `{}`))
	require.NoError(t, err)
	_, err = s.Outbox.Append(ctx, newEntry(models.OperationUpdate, models.Product, "p1", "t1", `{"a":1}`))
	require.NoError(t, err)

	all, err := s.Outbox.ListPending(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].Sequence, all[i-1].Sequence)
	}

	t1, err := s.Outbox.ListPending(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, t1, 2)
	assert.Equal(t, models.OperationCreate, t1[0].Operation)
	assert.Equal(t, models.OperationUpdate, t1[1].Operation)
	assert.JSONEq(t, `{"a":1}`, string(t1[1].Payload))

	tenants, err := s.Outbox.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, tenants)

	n, err := s.Outbox.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestOutboxRepository_MarkFailedExhaustsAtThreshold(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	entry, err := s.Outbox.Append(ctx, newEntry(models.OperationDelete, models.Customer, "c1", "t1", ""))
	require.NoError(t, err)

	for i := 1; i < models.DefaultMaxRetries; i++ {
		got, exhausted, err := s.Outbox.MarkFailed(ctx, entry.Sequence, models.DefaultMaxRetries, "unreachable")
		require.NoError(t, err)
		assert.False(t, exhausted)
		assert.Equal(t, i, got.RetryCount)

		pending, err := s.Outbox.ListPending(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, entry.Sequence, pending[0].Sequence)
	}

	got, exhausted, err := s.Outbox.MarkFailed(ctx, entry.Sequence, models.DefaultMaxRetries, "unreachable")
	require.NoError(t, err)
	assert.True(t, exhausted)
	assert.Equal(t, models.DefaultMaxRetries, got.RetryCount)

	pending, err := s.Outbox.ListPending(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := s.Outbox.Failed(ctx, "")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c1", failed[0].Entry.RecordID)
	assert.Equal(t, models.DefaultMaxRetries, failed[0].Entry.RetryCount)
	assert.Equal(t, "unreachable", failed[0].Reason)
	assert.Nil(t, failed[0].Entry.Payload)

	require.NoError(t, s.Outbox.DismissFailed(ctx, entry.Sequence))
	failed, err = s.Outbox.Failed(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, failed)

	assert.ErrorIs(t, s.Outbox.DismissFailed(ctx, entry.Sequence), ErrEntryNotFound)
}

func TestOutboxRepository_MarkFailedUnknownEntry(t *testing.T) {
	s := newTestStorages(t)

	_, _, err := s.Outbox.MarkFailed(testContext(), 42, models.DefaultMaxRetries, "x")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestOutboxRepository_MarkRejected(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	entry, err := s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p1", "t1", `{}`))
	require.NoError(t, err)

	got, err := s.Outbox.MarkRejected(ctx, entry.Sequence, "rejected")
	require.NoError(t, err)
	assert.Equal(t, 0, got.RetryCount)

	n, err := s.Outbox.Count(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	failed, err := s.Outbox.Failed(ctx, "")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "rejected", failed[0].Reason)
}

func TestOutboxRepository_ConflictLeavesEntryUnchanged(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	entry, err := s.Outbox.Append(ctx, newEntry(models.OperationUpdate, models.Product, "p1", "t1", `{"stock":5}`))
	require.NoError(t, err)
	_, _, err = s.Outbox.MarkFailed(ctx, entry.Sequence, models.DefaultMaxRetries, "timeout")
	require.NoError(t, err)

	require.NoError(t, s.Outbox.MarkConflict(ctx, entry.Sequence, []byte(`{"stock":3}`)))

	pending, err := s.Outbox.ListPending(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.Sequence, pending[0].Sequence)
	assert.JSONEq(t, `{"stock":5}`, string(pending[0].Payload))
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, models.StatusConflict, pending[0].Status)

	conflicts, err := s.Outbox.Conflicts(ctx, "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "p1", conflicts[0].Entry.RecordID)
	assert.JSONEq(t, `{"stock":3}`, string(conflicts[0].ServerPayload))
	assert.False(t, conflicts[0].DetectedAt.IsZero())

	// conflicted entries are not offered to drains
	tenants, err := s.Outbox.Tenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)

	assert.ErrorIs(t, s.Outbox.MarkConflict(ctx, 999, nil), ErrEntryNotFound)
}

func TestOutboxRepository_Requeue(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	entry, err := s.Outbox.Append(ctx, newEntry(models.OperationUpdate, models.Product, "p1", "t1", `{"stock":5}`))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Outbox.Requeue(ctx, entry.Sequence), ErrEntryNotConflicted)
	assert.ErrorIs(t, s.Outbox.Requeue(ctx, 999), ErrEntryNotFound)

	require.NoError(t, s.Outbox.MarkConflict(ctx, entry.Sequence, []byte(`{"stock":3}`)))
	require.NoError(t, s.Outbox.Requeue(ctx, entry.Sequence))

	got, err := s.Outbox.Get(ctx, entry.Sequence)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	conflicts, err := s.Outbox.Conflicts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestOutboxRepository_HasLaterEntries(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	create, err := s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p1", "t1", `{}`))
	require.NoError(t, err)
	_, err = s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p2", "t1", `{}`))
	require.NoError(t, err)

	later, err := s.Outbox.HasLaterEntries(ctx, models.Product, "p1", create.Sequence)
	require.NoError(t, err)
	assert.False(t, later)

	update, err := s.Outbox.Append(ctx, newEntry(models.OperationUpdate, models.Product, "p1", "t1", `{"a":1}`))
	require.NoError(t, err)

	later, err = s.Outbox.HasLaterEntries(ctx, models.Product, "p1", create.Sequence)
	require.NoError(t, err)
	assert.True(t, later)

	later, err = s.Outbox.HasLaterEntries(ctx, models.Product, "p1", update.Sequence)
	require.NoError(t, err)
	assert.False(t, later)
}

func TestOutboxRepository_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	ctx := testContext()

	s := openTestStorages(t, dsn)
	entry, err := s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p1", "t1", `{"price":10}`))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openTestStorages(t, dsn)

	got, err := reopened.Outbox.Get(ctx, entry.Sequence)
	require.NoError(t, err)
	assert.Equal(t, entry.IdempotencyKey, got.IdempotencyKey)
	assert.JSONEq(t, `{"price":10}`, string(got.Payload))
}

func TestOutboxRepository_TenantScopedViews(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	var conflicted, rejected []int64
	for _, tenant := range []string{"t1", "t2"} {
		a, err := s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Product, "p-"+tenant, tenant, `{}`))
		require.NoError(t, err)
		b, err := s.Outbox.Append(ctx, newEntry(models.OperationCreate, models.Customer, "c-"+tenant, tenant, `{}`))
		require.NoError(t, err)
		_, err = s.Outbox.Append(ctx, newEntry(models.OperationDelete, models.Customer, "x-"+tenant, tenant, ""))
		require.NoError(t, err)

		require.NoError(t, s.Outbox.MarkConflict(ctx, a.Sequence, nil))
		_, err = s.Outbox.MarkRejected(ctx, b.Sequence, "rejected")
		require.NoError(t, err)

		conflicted = append(conflicted, a.Sequence)
		rejected = append(rejected, b.Sequence)
	}

	n, err := s.Outbox.Count(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Outbox.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	conflicts, err := s.Outbox.Conflicts(ctx, "t2")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, conflicted[1], conflicts[0].Entry.Sequence)

	failed, err := s.Outbox.Failed(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, rejected[0], failed[0].Entry.Sequence)

	failed, err = s.Outbox.Failed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}
