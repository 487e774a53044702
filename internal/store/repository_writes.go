package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/models"
)

// writeCoordinator implements [WriteCoordinator]. It owns the operations
// whose record and outbox effects must be observed together or not at all.
type writeCoordinator struct {
	*DB
	logger *logger.Logger
}

// NewWriteCoordinator constructs a [WriteCoordinator] on top of db.
func NewWriteCoordinator(db *DB, logger *logger.Logger) WriteCoordinator {
	return &writeCoordinator{
		DB:     db,
		logger: logger,
	}
}

func (w *writeCoordinator) ApplyWrite(ctx context.Context, op models.Operation, kind models.EntityKind, rec models.Record, idempotencyKey string) (models.OutboxEntry, models.Record, error) {
	log := logger.FromContext(ctx)

	if !op.Valid() {
		return models.OutboxEntry{}, models.Record{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidRecord, op)
	}
	if !kind.Valid() {
		return models.OutboxEntry{}, models.Record{}, fmt.Errorf("%w: %q", ErrUnknownEntityKind, kind)
	}
	if err := validateRecord(rec); err != nil {
		return models.OutboxEntry{}, models.Record{}, err
	}

	now := time.Now().UTC()
	entry := models.OutboxEntry{
		Operation:      op,
		EntityKind:     kind,
		RecordID:       rec.ID,
		TenantID:       rec.TenantID,
		Version:        rec.Version,
		OccurredAt:     inUTC(rec.OccurredAt),
		IdempotencyKey: idempotencyKey,
		EnqueuedAt:     now,
	}

	var stored models.Record
	err := w.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		switch op {
		case models.OperationCreate:
			stored, err = applyCreate(ctx, tx, kind, rec, now)
			entry.Payload = stored.Payload
			entry.Version = stored.Version
		case models.OperationUpdate:
			stored, err = applyUpdate(ctx, tx, kind, rec, now)
			entry.Payload = rec.Payload
			entry.Version = stored.Version
			entry.OccurredAt = stored.OccurredAt
		case models.OperationDelete:
			entry.Version, err = applyDelete(ctx, tx, kind, rec)
		}
		if err != nil {
			return err
		}

		entry, err = appendEntry(ctx, tx, entry)
		return err
	})
	if err != nil {
		log.Err(err).
			Str("func", "writeCoordinator.ApplyWrite").
			Str("operation", string(op)).
			Str("kind", string(kind)).
			Str("id", rec.ID).
			Str("tenant_id", rec.TenantID).
			Msg("optimistic write failed")
		return models.OutboxEntry{}, models.Record{}, err
	}

	return entry, stored, nil
}

// applyCreate stores rec. Re-creating an existing record of the same tenant
// overwrites it but keeps the stored server version.
func applyCreate(ctx context.Context, tx *sql.Tx, kind models.EntityKind, rec models.Record, now time.Time) (models.Record, error) {
	if !isJSONObject(rec.Payload) {
		return models.Record{}, fmt.Errorf("%w: payload of %q is not a JSON object", ErrInvalidRecord, rec.ID)
	}

	rec = rec.Clone()

	current, err := getRecord(ctx, tx, kind, rec.ID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
	case err != nil:
		return models.Record{}, err
	case current.TenantID != rec.TenantID:
		return models.Record{}, errForeignRecord(rec.ID)
	case current.Version > rec.Version:
		rec.Version = current.Version
	}

	rec.OccurredAt = inUTC(rec.OccurredAt)
	rec.UpdatedAt = &now
	if kind.TimeOrdered() && rec.OccurredAt == nil {
		rec.OccurredAt = &now
	}

	return rec, putRecord(ctx, tx, kind, rec)
}

func applyUpdate(ctx context.Context, tx *sql.Tx, kind models.EntityKind, patch models.Record, now time.Time) (models.Record, error) {
	current, err := getRecord(ctx, tx, kind, patch.ID)
	if err != nil {
		return models.Record{}, err
	}
	if current.TenantID != patch.TenantID {
		return models.Record{}, errForeignRecord(patch.ID)
	}

	merged, err := MergePatch(current.Payload, patch.Payload)
	if err != nil {
		return models.Record{}, err
	}

	current.Payload = merged
	current.UpdatedAt = &now
	if patch.OccurredAt != nil {
		current.OccurredAt = inUTC(patch.OccurredAt)
	}

	return current, putRecord(ctx, tx, kind, current)
}

// applyDelete removes the local record, returning its version so the remote
// can detect a stale delete. A missing record still queues the delete.
func applyDelete(ctx context.Context, tx *sql.Tx, kind models.EntityKind, rec models.Record) (int64, error) {
	current, err := getRecord(ctx, tx, kind, rec.ID)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return rec.Version, nil
	case err != nil:
		return 0, err
	case current.TenantID != rec.TenantID:
		return 0, errForeignRecord(rec.ID)
	}

	return current.Version, deleteRecord(ctx, tx, kind, rec.ID)
}

func (w *writeCoordinator) AdvanceVersion(ctx context.Context, kind models.EntityKind, tenantID, recordID string, afterSequence, from, to int64) error {
	log := logger.FromContext(ctx)

	if from == to {
		return nil
	}

	recordQuery, recordArgs, err := buildAdvanceRecordVersionQuery(kind, tenantID, recordID, from, to)
	if err != nil {
		return err
	}
	entriesQuery, entriesArgs, err := buildAdvanceEntriesVersionQuery(kind, tenantID, recordID, afterSequence, from, to)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	err = w.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, recordQuery, recordArgs...); err != nil {
			return storageError(ErrExecutingStatement, err)
		}
		if _, err := tx.ExecContext(ctx, entriesQuery, entriesArgs...); err != nil {
			return storageError(ErrExecutingStatement, err)
		}
		return nil
	})
	if err != nil {
		log.Err(err).
			Str("func", "writeCoordinator.AdvanceVersion").
			Str("kind", string(kind)).
			Str("record_id", recordID).
			Int64("after_sequence", afterSequence).
			Msg("failed to advance record version")
		return err
	}

	return nil
}

func (w *writeCoordinator) AcceptServer(ctx context.Context, sequence int64) (models.Conflict, error) {
	log := logger.FromContext(ctx)

	var conflict models.Conflict
	err := w.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if conflict, err = getConflict(ctx, tx, sequence); err != nil {
			return err
		}

		if len(conflict.ServerPayload) > 0 {
			rec, err := ServerRecord(conflict.Entry, conflict.ServerPayload)
			if err != nil {
				return err
			}
			if err = putRecord(ctx, tx, conflict.Entry.EntityKind, rec); err != nil {
				return err
			}
		}

		return deleteEntry(ctx, tx, sequence)
	})
	if err != nil {
		log.Err(err).
			Str("func", "writeCoordinator.AcceptServer").
			Int64("sequence", sequence).
			Msg("failed to accept server version")
		return models.Conflict{}, err
	}

	return conflict, nil
}

func (w *writeCoordinator) Clear(ctx context.Context, collections ...models.Collection) error {
	log := logger.FromContext(ctx)

	tables := make([]string, 0, len(collections)+2)
	for _, c := range collections {
		if c == models.CollectionOutbox {
			continue
		}
		table, err := collectionTable(c)
		if err != nil {
			return err
		}
		tables = append(tables, table)
	}
	tables = append(tables, outboxTable, failedTable)

	err := w.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			query, args, err := buildClearTableQuery(table)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
			}
			if _, err = tx.ExecContext(ctx, query, args...); err != nil {
				return storageError(ErrExecutingStatement, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Err(err).
			Str("func", "writeCoordinator.Clear").
			Strs("tables", tables).
			Msg("failed to clear collections")
		return err
	}

	return nil
}

// ServerRecord builds the record a server response describes for entry.
// body is either a full record document or a bare payload object. The
// identifier and tenant always come from the entry.
func ServerRecord(entry models.OutboxEntry, body []byte) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return models.Record{}, fmt.Errorf("%w: server payload: %w", ErrInvalidRecord, err)
	}
	if rec.Payload == nil {
		rec = models.Record{Payload: append(json.RawMessage(nil), body...)}
	}
	if !isJSONObject(rec.Payload) {
		return models.Record{}, fmt.Errorf("%w: server payload is not a JSON object", ErrInvalidRecord)
	}

	rec.ID = entry.RecordID
	rec.TenantID = entry.TenantID
	if rec.OccurredAt == nil {
		rec.OccurredAt = entry.OccurredAt
	}
	rec.OccurredAt = inUTC(rec.OccurredAt)
	rec.UpdatedAt = inUTC(rec.UpdatedAt)
	if rec.UpdatedAt == nil {
		now := time.Now().UTC()
		rec.UpdatedAt = &now
	}

	return rec, nil
}

// MergePatch applies patch to the top-level keys of base. A null value in
// the patch removes the key.
func MergePatch(base, patch []byte) ([]byte, error) {
	if !isJSONObject(patch) {
		return nil, ErrInvalidPatch
	}

	doc := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &doc); err != nil {
			return nil, fmt.Errorf("%w: stored payload: %w", ErrInvalidPatch, err)
		}
	}

	var changes map[string]json.RawMessage
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}

	for k, v := range changes {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}

	return json.Marshal(doc)
}

func isJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{' && json.Valid(b)
}
