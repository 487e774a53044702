package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-keeper/models"
)

func TestWriteCoordinator_CreateStoresRecordAndQueuesEntry(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	entry, stored, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product,
		product("p1", "t1", `{"name":"tea","price":10}`), "key-1")
	require.NoError(t, err)

	assert.Equal(t, "key-1", entry.IdempotencyKey)
	assert.Equal(t, models.OperationCreate, entry.Operation)
	assert.JSONEq(t, `{"name":"tea","price":10}`, string(entry.Payload))
	require.NotNil(t, stored.UpdatedAt)

	got, err := s.Records.Get(ctx, models.Product, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"tea","price":10}`, string(got.Payload))

	pending, err := s.Outbox.ListPending(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.Sequence, pending[0].Sequence)
}

func TestWriteCoordinator_CreateTransactionDefaultsOccurredAt(t *testing.T) {
	s := newTestStorages(t)

	entry, stored, err := s.Writes.ApplyWrite(testContext(), models.OperationCreate, models.Transaction,
		product("tx1", "t1", `{"total":42}`), "key-1")
	require.NoError(t, err)
	require.NotNil(t, stored.OccurredAt)
	require.NotNil(t, entry.OccurredAt)
	assert.True(t, stored.OccurredAt.Equal(*entry.OccurredAt))
}

func TestWriteCoordinator_UpdateMergesPatchAndQueuesPatch(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, _, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product,
		product("p1", "t1", `{"name":"tea","price":10,"stock":1}`), "k1")
	require.NoError(t, err)

	entry, stored, err := s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product,
		product("p1", "t1", `{"stock":5,"name":null}`), "k2")
	require.NoError(t, err)

	assert.JSONEq(t, `{"stock":5,"name":null}`, string(entry.Payload))
	assert.JSONEq(t, `{"price":10,"stock":5}`, string(stored.Payload))

	got, err := s.Records.Get(ctx, models.Product, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":10,"stock":5}`, string(got.Payload))
}

func TestWriteCoordinator_FailedWriteLeavesNoTrace(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, _, err := s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product,
		product("missing", "t1", `{"stock":5}`), "k1")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, _, err = s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product,
		product("p1", "t1", `[1,2]`), "k2")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, _, err = s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product,
		product("p1", "t1", `{}`), "k3")
	require.NoError(t, err)
	_, _, err = s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product,
		product("p1", "t1", `"not an object"`), "k4")
	assert.ErrorIs(t, err, ErrInvalidPatch)

	n, err := s.Outbox.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteCoordinator_RejectsCrossTenantWrites(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, _, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Customer, product("c1", "t1", `{}`), "k1")
	require.NoError(t, err)

	_, _, err = s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Customer, product("c1", "t2", `{"a":1}`), "k2")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, _, err = s.Writes.ApplyWrite(ctx, models.OperationDelete, models.Customer, product("c1", "t2", ``), "k3")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = s.Records.Get(ctx, models.Customer, "c1")
	assert.NoError(t, err)
}

func TestWriteCoordinator_CreateCannotTakeOverForeignRecord(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, _, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product, product("p1", "t1", `{"price":10}`), "k1")
	require.NoError(t, err)

	_, _, err = s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product, product("p1", "t2", `{"price":99}`), "k2")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	owned, err := s.Records.GetAll(ctx, models.Product, "t1", models.InsertionOrder)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.JSONEq(t, `{"price":10}`, string(owned[0].Payload))

	pending, err := s.Outbox.ListPending(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWriteCoordinator_RecreateKeepsServerVersion(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	require.NoError(t, s.Records.Put(ctx, models.Product, models.Record{
		ID: "p1", TenantID: "t1", Payload: json.RawMessage(`{"price":10}`), Version: 4,
	}))

	entry, stored, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product, product("p1", "t1", `{"price":12}`), "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)
	assert.Equal(t, int64(4), entry.Version)

	got, err := s.Records.Get(ctx, models.Product, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.JSONEq(t, `{"price":12}`, string(got.Payload))

	update, _, err := s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product, product("p1", "t1", `{"price":13}`), "k2")
	require.NoError(t, err)
	assert.Equal(t, int64(4), update.Version)
}

func TestWriteCoordinator_AdvanceVersion(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	require.NoError(t, s.Records.Put(ctx, models.Product, models.Record{
		ID: "p1", TenantID: "t1", Payload: json.RawMessage(`{"stock":7}`), Version: 1,
	}))
	first, _, err := s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product, product("p1", "t1", `{"stock":6}`), "k1")
	require.NoError(t, err)
	second, _, err := s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product, product("p1", "t1", `{"stock":5}`), "k2")
	require.NoError(t, err)
	other, _, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product, product("p2", "t1", `{"stock":1}`), "k3")
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Version)
	require.Equal(t, int64(1), second.Version)

	require.NoError(t, s.Writes.AdvanceVersion(ctx, models.Product, "t1", "p1", first.Sequence, 1, 2))

	pending, err := s.Outbox.ListPending(ctx, "t1")
	require.NoError(t, err)
	versions := map[int64]int64{}
	for _, e := range pending {
		versions[e.Sequence] = e.Version
	}
	assert.Equal(t, int64(1), versions[first.Sequence])
	assert.Equal(t, int64(2), versions[second.Sequence])
	assert.Equal(t, int64(0), versions[other.Sequence])

	got, err := s.Records.Get(ctx, models.Product, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	// a write queued after the confirmation starts from the new version
	third, _, err := s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product, product("p1", "t1", `{"stock":4}`), "k4")
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.Version)
}

func TestWriteCoordinator_AdvanceVersionLeavesNewerRecord(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	require.NoError(t, s.Records.Put(ctx, models.Product, models.Record{
		ID: "p1", TenantID: "t1", Payload: json.RawMessage(`{}`), Version: 5,
	}))

	require.NoError(t, s.Writes.AdvanceVersion(ctx, models.Product, "t1", "p1", 0, 1, 2))

	got, err := s.Records.Get(ctx, models.Product, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
}

func TestWriteCoordinator_Delete(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	rec := product("c1", "t1", `{"name":"Ann"}`)
	require.NoError(t, s.Records.Put(ctx, models.Customer, models.Record{ID: "c1", TenantID: "t1", Payload: rec.Payload, Version: 7}))

	entry, _, err := s.Writes.ApplyWrite(ctx, models.OperationDelete, models.Customer, models.Record{ID: "c1", TenantID: "t1"}, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.Version)
	assert.Empty(t, entry.Payload)

	_, err = s.Records.Get(ctx, models.Customer, "c1")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// a delete for a record that is not cached is still queued
	_, _, err = s.Writes.ApplyWrite(ctx, models.OperationDelete, models.Customer, models.Record{ID: "c9", TenantID: "t1"}, "k2")
	require.NoError(t, err)

	n, err := s.Outbox.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteCoordinator_AcceptServer(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, _, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product, product("p1", "t1", `{"stock":1}`), "k1")
	require.NoError(t, err)
	entry, _, err := s.Writes.ApplyWrite(ctx, models.OperationUpdate, models.Product, product("p1", "t1", `{"stock":5}`), "k2")
	require.NoError(t, err)

	_, err = s.Writes.AcceptServer(ctx, entry.Sequence)
	assert.ErrorIs(t, err, ErrEntryNotConflicted)

	require.NoError(t, s.Outbox.MarkConflict(ctx, entry.Sequence, []byte(`{"id":"p1","payload":{"stock":3},"version":4}`)))

	conflict, err := s.Writes.AcceptServer(ctx, entry.Sequence)
	require.NoError(t, err)
	assert.Equal(t, entry.Sequence, conflict.Entry.Sequence)

	got, err := s.Records.Get(ctx, models.Product, "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":3}`, string(got.Payload))
	assert.Equal(t, int64(4), got.Version)

	_, err = s.Outbox.Get(ctx, entry.Sequence)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestWriteCoordinator_ClearEmptiesCollectionsAndOutbox(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	for _, kind := range models.EntityKinds {
		_, _, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, kind, product("x-"+string(kind), "t1", `{}`), "k-"+string(kind))
		require.NoError(t, err)
	}
	failed, err := s.Outbox.Append(ctx, newEntry(models.OperationDelete, models.Customer, "c1", "t1", ""))
	require.NoError(t, err)
	_, err = s.Outbox.MarkRejected(ctx, failed.Sequence, "rejected")
	require.NoError(t, err)

	require.NoError(t, s.Writes.Clear(ctx, models.AllCollections...))

	for _, kind := range models.EntityKinds {
		all, err := s.Records.GetAll(ctx, kind, "t1", models.InsertionOrder)
		require.NoError(t, err)
		assert.Empty(t, all, kind)
	}

	n, err := s.Outbox.Count(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := s.Outbox.Failed(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWriteCoordinator_ClearUnknownCollectionChangesNothing(t *testing.T) {
	s := newTestStorages(t)
	ctx := testContext()

	_, _, err := s.Writes.ApplyWrite(ctx, models.OperationCreate, models.Product, product("p1", "t1", `{}`), "k1")
	require.NoError(t, err)

	err = s.Writes.Clear(ctx, models.CollectionProducts, "employees")
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = s.Records.Get(ctx, models.Product, "p1")
	assert.NoError(t, err)
}

func TestMergePatch(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		patch   string
		want    string
		wantErr error
	}{
		{name: "set and overwrite", base: `{"a":1,"b":2}`, patch: `{"b":3,"c":4}`, want: `{"a":1,"b":3,"c":4}`},
		{name: "null removes", base: `{"a":1,"b":2}`, patch: `{"a":null}`, want: `{"b":2}`},
		{name: "nested values replace whole", base: `{"a":{"x":1,"y":2}}`, patch: `{"a":{"x":5}}`, want: `{"a":{"x":5}}`},
		{name: "empty base", base: ``, patch: `{"a":1}`, want: `{"a":1}`},
		{name: "array patch", base: `{}`, patch: `[1]`, wantErr: ErrInvalidPatch},
		{name: "invalid json", base: `{}`, patch: `{"a":`, wantErr: ErrInvalidPatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergePatch([]byte(tt.base), []byte(tt.patch))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestServerRecord(t *testing.T) {
	entry := models.OutboxEntry{RecordID: "p1", TenantID: "t1"}

	full, err := ServerRecord(entry, []byte(`{"id":"ignored","tenant_id":"other","payload":{"stock":3},"version":9}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", full.ID)
	assert.Equal(t, "t1", full.TenantID)
	assert.Equal(t, int64(9), full.Version)
	assert.JSONEq(t, `{"stock":3}`, string(full.Payload))

	bare, err := ServerRecord(entry, []byte(`{"stock":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":3}`, string(bare.Payload))
	assert.Equal(t, json.RawMessage(`{"stock":3}`), bare.Payload)

	_, err = ServerRecord(entry, []byte(`nope`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
