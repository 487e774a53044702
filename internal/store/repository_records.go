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

// recordRepository is the SQLite-backed implementation of [LocalStore].
// Every entity kind lives in its own table; the tenant and timestamp indexes
// are maintained by SQLite together with the primary key.
type recordRepository struct {
	*DB
	logger *logger.Logger
}

// NewRecordRepository constructs a [LocalStore] on top of db.
func NewRecordRepository(db *DB, logger *logger.Logger) LocalStore {
	return &recordRepository{
		DB:     db,
		logger: logger,
	}
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *recordRepository) Put(ctx context.Context, kind models.EntityKind, rec models.Record) error {
	log := logger.FromContext(ctx)

	if err := validateRecord(rec); err != nil {
		return err
	}

	if err := putRecord(ctx, r.DB.DB, kind, rec); err != nil {
		log.Err(err).
			Str("func", "recordRepository.Put").
			Str("kind", string(kind)).
			Str("id", rec.ID).
			Msg("failed to store record")
		return err
	}

	return nil
}

func (r *recordRepository) Get(ctx context.Context, kind models.EntityKind, id string) (models.Record, error) {
	log := logger.FromContext(ctx)

	rec, err := getRecord(ctx, r.DB.DB, kind, id)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		log.Err(err).
			Str("func", "recordRepository.Get").
			Str("kind", string(kind)).
			Str("id", id).
			Msg("failed to get record")
	}

	return rec, err
}

func (r *recordRepository) GetAll(ctx context.Context, kind models.EntityKind, tenantID string, order models.ReadOrder) ([]models.Record, error) {
	log := logger.FromContext(ctx)

	query, args, err := buildSelectTenantRecordsQuery(kind, tenantID, order)
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).
			Str("func", "recordRepository.GetAll").
			Str("kind", string(kind)).
			Str("tenant_id", tenantID).
			Msg("failed to execute query for tenant records")
		return nil, storageError(ErrExecutingQuery, err)
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			log.Err(scanErr).
				Str("func", "recordRepository.GetAll").
				Str("tenant_id", tenantID).
				Msg("failed to scan record row")
			return nil, storageError(ErrScanningRow, scanErr)
		}
		records = append(records, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).
			Str("func", "recordRepository.GetAll").
			Str("tenant_id", tenantID).
			Msg("error occurred during rows iteration")
		return nil, storageError(ErrScanningRows, rowsErr)
	}

	return records, nil
}

func (r *recordRepository) Delete(ctx context.Context, kind models.EntityKind, id string) error {
	log := logger.FromContext(ctx)

	if err := deleteRecord(ctx, r.DB.DB, kind, id); err != nil {
		log.Err(err).
			Str("func", "recordRepository.Delete").
			Str("kind", string(kind)).
			Str("id", id).
			Msg("failed to delete record")
		return err
	}

	return nil
}

func (r *recordRepository) ReplaceTenant(ctx context.Context, tenantID string, snapshot map[models.EntityKind][]models.Record) error {
	log := logger.FromContext(ctx)

	for kind, recs := range snapshot {
		if !kind.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownEntityKind, kind)
		}
		for _, rec := range recs {
			if err := validateRecord(rec); err != nil {
				return err
			}
			if rec.TenantID != tenantID {
				return fmt.Errorf("%w: record %q belongs to tenant %q, not %q", ErrInvalidRecord, rec.ID, rec.TenantID, tenantID)
			}
		}
	}

	// kinds are replaced in a fixed order so failures are reproducible
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range models.EntityKinds {
			recs, ok := snapshot[kind]
			if !ok {
				continue
			}

			query, args, err := buildDeleteTenantRecordsQuery(kind, tenantID)
			if err != nil {
				return err
			}
			if _, err = tx.ExecContext(ctx, query, args...); err != nil {
				return storageError(ErrExecutingStatement, err)
			}
			for _, rec := range recs {
				if err = putRecord(ctx, tx, kind, rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Err(err).
			Str("func", "recordRepository.ReplaceTenant").
			Str("tenant_id", tenantID).
			Int("kinds", len(snapshot)).
			Msg("failed to replace tenant records")
		return err
	}

	return nil
}

func validateRecord(rec models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if rec.TenantID == "" {
		return fmt.Errorf("%w: empty tenant id for %q", ErrInvalidRecord, rec.ID)
	}
	return nil
}

func putRecord(ctx context.Context, q queryRunner, kind models.EntityKind, rec models.Record) error {
	if rec.Payload == nil {
		rec.Payload = []byte("{}")
	}

	query, args, err := buildUpsertRecordQuery(kind, rec)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return storageError(ErrExecutingStatement, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storageError(ErrExecutingStatement, err)
	}
	if n == 0 {
		return errForeignRecord(rec.ID)
	}
	return nil
}

func errForeignRecord(id string) error {
	return fmt.Errorf("%w: record %q belongs to another tenant", ErrInvalidRecord, id)
}

func getRecord(ctx context.Context, q queryRunner, kind models.EntityKind, id string) (models.Record, error) {
	query, args, err := buildSelectRecordQuery(kind, id)
	if err != nil {
		return models.Record{}, err
	}

	rec, err := scanRecord(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("%w: %s %q", ErrRecordNotFound, kind, id)
	}
	if err != nil {
		return models.Record{}, storageError(ErrScanningRow, err)
	}
	return rec, nil
}

func deleteRecord(ctx context.Context, q queryRunner, kind models.EntityKind, id string) error {
	query, args, err := buildDeleteRecordQuery(kind, id)
	if err != nil {
		return err
	}

	if _, err = q.ExecContext(ctx, query, args...); err != nil {
		return storageError(ErrExecutingStatement, err)
	}
	return nil
}

func scanRecord(row rowScanner) (models.Record, error) {
	var (
		rec     models.Record
		payload []byte
	)

	err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&payload,
		&rec.Version,
		&rec.OccurredAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return models.Record{}, err
	}

	rec.Payload = payload
	rec.OccurredAt = inUTC(rec.OccurredAt)
	rec.UpdatedAt = inUTC(rec.UpdatedAt)
	return rec, nil
}

func inUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
