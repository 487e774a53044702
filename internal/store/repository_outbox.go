// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/models"
)

// outboxRepository is the SQLite-backed implementation of [MutationOutbox].
//
// Sequences come from an AUTOINCREMENT primary key, so they are strictly
// increasing and never reused, even across restarts. Every state transition
// that moves an entry between the outbox and the failed list runs in one
// transaction.
type outboxRepository struct {
	*DB
	logger *logger.Logger
}

// NewOutboxRepository constructs a [MutationOutbox] on top of db.
func NewOutboxRepository(db *DB, logger *logger.Logger) MutationOutbox {
	return &outboxRepository{
		DB:     db,
		logger: logger,
	}
}

func (o *outboxRepository) Append(ctx context.Context, entry models.OutboxEntry) (models.OutboxEntry, error) {
	log := logger.FromContext(ctx)

	stored, err := appendEntry(ctx, o.DB.DB, entry)
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.Append").
			Str("tenant_id", entry.TenantID).
			Str("record_id", entry.RecordID).
			Msg("failed to append outbox entry")
		return models.OutboxEntry{}, err
	}

	return stored, nil
}

func (o *outboxRepository) ListPending(ctx context.Context, tenantID string) ([]models.OutboxEntry, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildSelectEntriesQuery(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := o.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.ListPending").
			Str("tenant_id", tenantID).
			Msg("failed to execute query for pending entries")
		return nil, storageError(ErrExecutingQuery, err)
	}
	defer rows.Close()

	entries := make([]models.OutboxEntry, 0)
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "outboxRepository.ListPending").
				Msg("failed to scan outbox row")
			return nil, storageError(ErrScanningRow, scanErr)
		}
		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "outboxRepository.ListPending").
			Msg("error occurred during rows iteration")
		return nil, storageError(ErrScanningRows, rowsErr)
	}

	return entries, nil
}

func (o *outboxRepository) Get(ctx context.Context, sequence int64) (models.OutboxEntry, error) {
	return getEntry(ctx, o.DB.DB, sequence)
}

func (o *outboxRepository) MarkSucceeded(ctx context.Context, sequence int64) error {
	log := logger.FromContext(ctx)

	if err := deleteEntry(ctx, o.DB.DB, sequence); err != nil {
		log.Err(err).
			Str("func", "outboxRepository.MarkSucceeded").
			Int64("sequence", sequence).
			Msg("failed to remove outbox entry")
		return err
	}

	return nil
}

func (o *outboxRepository) MarkFailed(ctx context.Context, sequence int64, maxRetries int, reason string) (models.OutboxEntry, bool, error) {
	log := logger.FromContext(ctx)

	var (
		entry     models.OutboxEntry
		exhausted bool
	)

	err := o.withTx(ctx, func(tx *sql.Tx) error {
		query, args, err := buildIncrementRetryQuery(sequence)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
		}

		var retries int
		if err = tx.QueryRowContext(ctx, query, args...).Scan(&retries); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: sequence %d", ErrEntryNotFound, sequence)
			}
			return storageError(ErrExecutingStatement, err)
		}

		if entry, err = getEntry(ctx, tx, sequence); err != nil {
			return err
		}

		if retries < maxRetries {
			return nil
		}

		exhausted = true
		return moveToFailed(ctx, tx, entry, reason)
	})
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.MarkFailed").
			Int64("sequence", sequence).
			Msg("failed to record drain failure")
		return models.OutboxEntry{}, false, err
	}

	return entry, exhausted, nil
}

func (o *outboxRepository) MarkRejected(ctx context.Context, sequence int64, reason string) (models.OutboxEntry, error) {
	log := logger.FromContext(ctx)

	var entry models.OutboxEntry
	err := o.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if entry, err = getEntry(ctx, tx, sequence); err != nil {
			return err
		}
		return moveToFailed(ctx, tx, entry, reason)
	})
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.MarkRejected").
			Int64("sequence", sequence).
			Msg("failed to move rejected entry to failed list")
		return models.OutboxEntry{}, err
	}

	return entry, nil
}

func (o *outboxRepository) MarkConflict(ctx context.Context, sequence int64, serverPayload []byte) error {
	log := logger.FromContext(ctx)

	query, args, err := buildMarkConflictQuery(sequence, serverPayload, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := o.DB.ExecContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.MarkConflict").
			Int64("sequence", sequence).
			Msg("failed to mark entry as conflicted")
		return storageError(ErrExecutingStatement, err)
	}

	return requireAffected(res, sequence)
}

func (o *outboxRepository) Requeue(ctx context.Context, sequence int64) error {
	log := logger.FromContext(ctx)

	err := o.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntry(ctx, tx, sequence)
		if err != nil {
			return err
		}
		if entry.Status != models.StatusConflict {
			return fmt.Errorf("%w: sequence %d", ErrEntryNotConflicted, sequence)
		}

		query, args, err := buildRequeueQuery(sequence)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return storageError(ErrExecutingStatement, err)
		}
		return nil
	})
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.Requeue").
			Int64("sequence", sequence).
			Msg("failed to requeue entry")
		return err
	}

	return nil
}

func (o *outboxRepository) Count(ctx context.Context, tenantID string) (int, error) {
	query, args, err := buildCountEntriesQuery(tenantID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var n int
	if err = o.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "outboxRepository.Count").
			Msg("failed to count outbox entries")
		return 0, storageError(ErrExecutingQuery, err)
	}

	return n, nil
}

func (o *outboxRepository) Conflicts(ctx context.Context, tenantID string) ([]models.Conflict, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildSelectConflictsQuery(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := o.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.Conflicts").
			Msg("failed to execute query for conflicts")
		return nil, storageError(ErrExecutingQuery, err)
	}
	defer rows.Close()

	conflicts := make([]models.Conflict, 0)
	for rows.Next() {
		c, scanErr := scanConflict(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "outboxRepository.Conflicts").
				Msg("failed to scan conflict row")
			return nil, storageError(ErrScanningRow, scanErr)
		}
		conflicts = append(conflicts, c)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, storageError(ErrScanningRows, rowsErr)
	}

	return conflicts, nil
}

func (o *outboxRepository) Failed(ctx context.Context, tenantID string) ([]models.FailedMutation, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildSelectFailedQuery(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := o.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "outboxRepository.Failed").
			Msg("failed to execute query for failed mutations")
		return nil, storageError(ErrExecutingQuery, err)
	}
	defer rows.Close()

	failed := make([]models.FailedMutation, 0)
	for rows.Next() {
		var (
			f       models.FailedMutation
			payload []byte
		)
		scanErr := rows.Scan(
			&f.Entry.Sequence,
			&f.Entry.Operation,
			&f.Entry.EntityKind,
			&f.Entry.RecordID,
			&f.Entry.TenantID,
			&payload,
			&f.Entry.Version,
			&f.Entry.OccurredAt,
			&f.Entry.IdempotencyKey,
			&f.Entry.EnqueuedAt,
			&f.Entry.RetryCount,
			&f.Reason,
			&f.FailedAt,
		)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "outboxRepository.Failed").
				Msg("failed to scan failed mutation row")
			return nil, storageError(ErrScanningRow, scanErr)
		}

		f.Entry.Payload = payload
		f.Entry.OccurredAt = inUTC(f.Entry.OccurredAt)
		f.Entry.EnqueuedAt = f.Entry.EnqueuedAt.UTC()
		f.FailedAt = f.FailedAt.UTC()
		failed = append(failed, f)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, storageError(ErrScanningRows, rowsErr)
	}

	return failed, nil
}

func (o *outboxRepository) DismissFailed(ctx context.Context, sequence int64) error {
	query, args, err := buildDeleteFailedQuery(sequence)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := o.DB.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "outboxRepository.DismissFailed").
			Int64("sequence", sequence).
			Msg("failed to dismiss failed mutation")
		return storageError(ErrExecutingStatement, err)
	}

	return requireAffected(res, sequence)
}

func (o *outboxRepository) Tenants(ctx context.Context) ([]string, error) {
	query, args, err := buildSelectTenantsQuery()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := o.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError(ErrExecutingQuery, err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenantID string
		if err = rows.Scan(&tenantID); err != nil {
			return nil, storageError(ErrScanningRow, err)
		}
		tenants = append(tenants, tenantID)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, storageError(ErrScanningRows, rowsErr)
	}

	return tenants, nil
}

func (o *outboxRepository) HasLaterEntries(ctx context.Context, kind models.EntityKind, recordID string, sequence int64) (bool, error) {
	query, args, err := buildCountLaterEntriesQuery(kind, recordID, sequence)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var n int
	if err = o.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, storageError(ErrExecutingQuery, err)
	}

	return n > 0, nil
}

func validateEntry(entry models.OutboxEntry) error {
	if !entry.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidRecord, entry.Operation)
	}
	if !entry.EntityKind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEntityKind, entry.EntityKind)
	}
	if entry.RecordID == "" || entry.TenantID == "" {
		return fmt.Errorf("%w: entry needs record and tenant ids", ErrInvalidRecord)
	}
	return nil
}

func appendEntry(ctx context.Context, q queryRunner, entry models.OutboxEntry) (models.OutboxEntry, error) {
	if err := validateEntry(entry); err != nil {
		return models.OutboxEntry{}, err
	}

	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}
	entry.EnqueuedAt = entry.EnqueuedAt.UTC()
	entry.OccurredAt = inUTC(entry.OccurredAt)
	entry.RetryCount = 0
	entry.Status = models.StatusPending

	query, args, err := buildInsertEntryQuery(entry)
	if err != nil {
		return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if err = q.QueryRowContext(ctx, query, args...).Scan(&entry.Sequence); err != nil {
		return models.OutboxEntry{}, storageError(ErrExecutingStatement, err)
	}

	return entry, nil
}

func getEntry(ctx context.Context, q queryRunner, sequence int64) (models.OutboxEntry, error) {
	query, args, err := buildSelectEntryQuery(sequence)
	if err != nil {
		return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	entry, err := scanEntry(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.OutboxEntry{}, fmt.Errorf("%w: sequence %d", ErrEntryNotFound, sequence)
	}
	if err != nil {
		return models.OutboxEntry{}, storageError(ErrScanningRow, err)
	}

	return entry, nil
}

func getConflict(ctx context.Context, q queryRunner, sequence int64) (models.Conflict, error) {
	query, args, err := buildSelectConflictQuery(sequence)
	if err != nil {
		return models.Conflict{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	c, err := scanConflict(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conflict{}, fmt.Errorf("%w: sequence %d", ErrEntryNotFound, sequence)
	}
	if err != nil {
		return models.Conflict{}, storageError(ErrScanningRow, err)
	}
	if c.Entry.Status != models.StatusConflict {
		return models.Conflict{}, fmt.Errorf("%w: sequence %d", ErrEntryNotConflicted, sequence)
	}

	return c, nil
}

func deleteEntry(ctx context.Context, q queryRunner, sequence int64) error {
	query, args, err := buildDeleteEntryQuery(sequence)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = q.ExecContext(ctx, query, args...); err != nil {
		return storageError(ErrExecutingStatement, err)
	}
	return nil
}

func moveToFailed(ctx context.Context, q queryRunner, entry models.OutboxEntry, reason string) error {
	query, args, err := buildInsertFailedQuery(entry, reason, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = q.ExecContext(ctx, query, args...); err != nil {
		return storageError(ErrExecutingStatement, err)
	}

	return deleteEntry(ctx, q, entry.Sequence)
}

func requireAffected(res sql.Result, sequence int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageError(ErrExecutingStatement, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: sequence %d", ErrEntryNotFound, sequence)
	}
	return nil
}

func entryDest(e *models.OutboxEntry, payload *[]byte) []any {
	return []any{
		&e.Sequence,
		&e.Operation,
		&e.EntityKind,
		&e.RecordID,
		&e.TenantID,
		payload,
		&e.Version,
		&e.OccurredAt,
		&e.IdempotencyKey,
		&e.EnqueuedAt,
		&e.RetryCount,
		&e.Status,
	}
}

func normalizeEntry(e *models.OutboxEntry, payload []byte) {
	e.Payload = payload
	e.OccurredAt = inUTC(e.OccurredAt)
	e.EnqueuedAt = e.EnqueuedAt.UTC()
}

func scanEntry(row rowScanner) (models.OutboxEntry, error) {
	var (
		entry   models.OutboxEntry
		payload []byte
	)

	if err := row.Scan(entryDest(&entry, &payload)...); err != nil {
		return models.OutboxEntry{}, err
	}

	normalizeEntry(&entry, payload)
	return entry, nil
}

func scanConflict(row rowScanner) (models.Conflict, error) {
	var (
		c             models.Conflict
		payload       []byte
		serverPayload []byte
		detectedAt    *time.Time
	)

	dest := append(entryDest(&c.Entry, &payload), &serverPayload, &detectedAt)
	if err := row.Scan(dest...); err != nil {
		return models.Conflict{}, err
	}

	normalizeEntry(&c.Entry, payload)
	c.ServerPayload = serverPayload
	if detectedAt != nil {
		c.DetectedAt = detectedAt.UTC()
	}
	return c, nil
}
