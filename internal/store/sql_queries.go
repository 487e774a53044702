// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MKhiriev/go-pos-keeper/models"
)

const (
	outboxTable = "outbox"
	failedTable = "failed_mutations"
)

var sqlite = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var recordColumns = []string{
	"id",
	"tenant_id",
	"payload",
	"version",
	"occurred_at",
	"updated_at",
}

var entryColumns = []string{
	"sequence",
	"operation",
	"entity_kind",
	"record_id",
	"tenant_id",
	"payload",
	"version",
	"occurred_at",
	"idempotency_key",
	"enqueued_at",
	"retry_count",
	"status",
}

// upsertRecordSuffix keeps the row (and its seq) on overwrite so insertion
// order survives replays. A row owned by another tenant is left untouched
// and the statement affects no rows.
const upsertRecordSuffix = `ON CONFLICT(id) DO UPDATE SET
	payload     = excluded.payload,
	version     = excluded.version,
	occurred_at = excluded.occurred_at,
	updated_at  = excluded.updated_at
WHERE tenant_id = excluded.tenant_id`

func collectionTable(c models.Collection) (string, error) {
	switch c {
	case models.CollectionProducts, models.CollectionCustomers, models.CollectionTransactions:
		return string(c), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, c)
}

func recordTable(kind models.EntityKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntityKind, kind)
	}
	return collectionTable(kind.Collection())
}

// ── records ──────────────────────────────────────────────────────────────────

func buildUpsertRecordQuery(kind models.EntityKind, rec models.Record) (string, []any, error) {
	table, err := recordTable(kind)
	if err != nil {
		return "", nil, err
	}

	return sqlite.Insert(table).
		Columns(recordColumns...).
		Values(rec.ID, rec.TenantID, []byte(rec.Payload), rec.Version, utcOrNil(rec.OccurredAt), utcOrNil(rec.UpdatedAt)).
		Suffix(upsertRecordSuffix).
		ToSql()
}

func buildSelectRecordQuery(kind models.EntityKind, id string) (string, []any, error) {
	table, err := recordTable(kind)
	if err != nil {
		return "", nil, err
	}

	return sqlite.Select(recordColumns...).
		From(table).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func buildSelectTenantRecordsQuery(kind models.EntityKind, tenantID string, order models.ReadOrder) (string, []any, error) {
	table, err := recordTable(kind)
	if err != nil {
		return "", nil, err
	}

	q := sqlite.Select(recordColumns...).
		From(table).
		Where(sq.Eq{"tenant_id": tenantID})

	switch order {
	case models.InsertionOrder:
		q = q.OrderBy("seq")
	case models.ChronologicalOrder:
		if !kind.TimeOrdered() {
			return "", nil, fmt.Errorf("%w: %s", ErrNoTimestampIndex, table)
		}
		q = q.OrderBy("occurred_at", "seq")
	default:
		return "", nil, fmt.Errorf("%w: unknown read order %d", ErrBuildingSQLQuery, order)
	}

	return q.ToSql()
}

func buildDeleteRecordQuery(kind models.EntityKind, id string) (string, []any, error) {
	table, err := recordTable(kind)
	if err != nil {
		return "", nil, err
	}

	return sqlite.Delete(table).Where(sq.Eq{"id": id}).ToSql()
}

// buildAdvanceRecordVersionQuery moves a record still at version from to
// version to.
func buildAdvanceRecordVersionQuery(kind models.EntityKind, tenantID, id string, from, to int64) (string, []any, error) {
	table, err := recordTable(kind)
	if err != nil {
		return "", nil, err
	}

	return sqlite.Update(table).
		Set("version", to).
		Where(sq.Eq{"id": id, "tenant_id": tenantID, "version": from}).
		ToSql()
}

func buildDeleteTenantRecordsQuery(kind models.EntityKind, tenantID string) (string, []any, error) {
	table, err := recordTable(kind)
	if err != nil {
		return "", nil, err
	}

	return sqlite.Delete(table).Where(sq.Eq{"tenant_id": tenantID}).ToSql()
}

func buildClearTableQuery(table string) (string, []any, error) {
	return sqlite.Delete(table).ToSql()
}

// ── outbox ───────────────────────────────────────────────────────────────────

func buildInsertEntryQuery(e models.OutboxEntry) (string, []any, error) {
	return sqlite.Insert(outboxTable).
		Columns(entryColumns[1:]...).
		Values(
			string(e.Operation),
			string(e.EntityKind),
			e.RecordID,
			e.TenantID,
			nilIfEmpty(e.Payload),
			e.Version,
			utcOrNil(e.OccurredAt),
			e.IdempotencyKey,
			e.EnqueuedAt.UTC(),
			e.RetryCount,
			string(models.StatusPending),
		).
		Suffix("RETURNING sequence").
		ToSql()
}

func buildSelectEntriesQuery(tenantID string) (string, []any, error) {
	return withTenant(sqlite.Select(entryColumns...).From(outboxTable), tenantID).
		OrderBy("sequence").
		ToSql()
}

func buildSelectEntryQuery(sequence int64) (string, []any, error) {
	return sqlite.Select(entryColumns...).
		From(outboxTable).
		Where(sq.Eq{"sequence": sequence}).
		ToSql()
}

func buildDeleteEntryQuery(sequence int64) (string, []any, error) {
	return sqlite.Delete(outboxTable).Where(sq.Eq{"sequence": sequence}).ToSql()
}

func buildIncrementRetryQuery(sequence int64) (string, []any, error) {
	return sqlite.Update(outboxTable).
		Set("retry_count", sq.Expr("retry_count + 1")).
		Where(sq.Eq{"sequence": sequence}).
		Suffix("RETURNING retry_count").
		ToSql()
}

func buildMarkConflictQuery(sequence int64, serverPayload []byte, at time.Time) (string, []any, error) {
	return sqlite.Update(outboxTable).
		Set("status", string(models.StatusConflict)).
		Set("server_payload", nilIfEmpty(serverPayload)).
		Set("conflict_at", at.UTC()).
		Where(sq.Eq{"sequence": sequence}).
		ToSql()
}

func buildRequeueQuery(sequence int64) (string, []any, error) {
	return sqlite.Update(outboxTable).
		Set("status", string(models.StatusPending)).
		Set("server_payload", nil).
		Set("conflict_at", nil).
		Where(sq.Eq{"sequence": sequence, "status": string(models.StatusConflict)}).
		ToSql()
}

// withTenant narrows q to tenantID; an empty tenantID selects every tenant.
func withTenant(q sq.SelectBuilder, tenantID string) sq.SelectBuilder {
	if tenantID == "" {
		return q
	}
	return q.Where(sq.Eq{"tenant_id": tenantID})
}

func buildCountEntriesQuery(tenantID string) (string, []any, error) {
	return withTenant(sqlite.Select("COUNT(*)").From(outboxTable), tenantID).ToSql()
}

func buildSelectConflictsQuery(tenantID string) (string, []any, error) {
	q := sqlite.Select(append(append([]string{}, entryColumns...), "server_payload", "conflict_at")...).
		From(outboxTable).
		Where(sq.Eq{"status": string(models.StatusConflict)})

	return withTenant(q, tenantID).OrderBy("sequence").ToSql()
}

func buildSelectConflictQuery(sequence int64) (string, []any, error) {
	return sqlite.Select(append(append([]string{}, entryColumns...), "server_payload", "conflict_at")...).
		From(outboxTable).
		Where(sq.Eq{"sequence": sequence}).
		ToSql()
}

func buildSelectTenantsQuery() (string, []any, error) {
	return sqlite.Select("tenant_id").
		Distinct().
		From(outboxTable).
		Where(sq.Eq{"status": string(models.StatusPending)}).
		OrderBy("tenant_id").
		ToSql()
}

func buildCountLaterEntriesQuery(kind models.EntityKind, recordID string, afterSequence int64) (string, []any, error) {
	return sqlite.Select("COUNT(*)").
		From(outboxTable).
		Where(sq.Eq{"entity_kind": string(kind), "record_id": recordID}).
		Where(sq.Gt{"sequence": afterSequence}).
		ToSql()
}

// buildAdvanceEntriesVersionQuery rebases the entries queued after
// afterSequence for a record from version from onto version to.
func buildAdvanceEntriesVersionQuery(kind models.EntityKind, tenantID, recordID string, afterSequence, from, to int64) (string, []any, error) {
	return sqlite.Update(outboxTable).
		Set("version", to).
		Where(sq.Eq{
			"entity_kind": string(kind),
			"record_id":   recordID,
			"tenant_id":   tenantID,
			"version":     from,
		}).
		Where(sq.Gt{"sequence": afterSequence}).
		ToSql()
}

// ── failed mutations ─────────────────────────────────────────────────────────

func buildInsertFailedQuery(e models.OutboxEntry, reason string, at time.Time) (string, []any, error) {
	columns := append(append([]string{}, entryColumns[:len(entryColumns)-1]...), "reason", "failed_at")

	return sqlite.Insert(failedTable).
		Columns(columns...).
		Values(
			e.Sequence,
			string(e.Operation),
			string(e.EntityKind),
			e.RecordID,
			e.TenantID,
			nilIfEmpty(e.Payload),
			e.Version,
			utcOrNil(e.OccurredAt),
			e.IdempotencyKey,
			e.EnqueuedAt.UTC(),
			e.RetryCount,
			reason,
			at.UTC(),
		).
		ToSql()
}

func buildSelectFailedQuery(tenantID string) (string, []any, error) {
	columns := append(append([]string{}, entryColumns[:len(entryColumns)-1]...), "reason", "failed_at")

	return withTenant(sqlite.Select(columns...).From(failedTable), tenantID).
		OrderBy("sequence").
		ToSql()
}

func buildDeleteFailedQuery(sequence int64) (string, []any, error) {
	return sqlite.Delete(failedTable).Where(sq.Eq{"sequence": sequence}).ToSql()
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nilIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
