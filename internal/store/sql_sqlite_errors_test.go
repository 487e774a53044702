package store

import (
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/models"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &DB{
		DB:                 db,
		errorClassificator: NewSQLiteErrorClassifier(),
		logger:             logger.Nop(),
	}, mock
}

func TestSQLiteErrorClassifier_Classify(t *testing.T) {
	c := NewSQLiteErrorClassifier()

	tests := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{name: "busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: Retryable},
		{name: "locked", err: sqlite3.Error{Code: sqlite3.ErrLocked}, want: Retryable},
		{name: "full", err: sqlite3.Error{Code: sqlite3.ErrFull}, want: NonRetryable},
		{name: "constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: NonRetryable},
		{name: "wrapped busy", err: storageError(ErrExecutingStatement, sqlite3.Error{Code: sqlite3.ErrBusy}), want: Retryable},
		{name: "foreign error", err: errors.New("boom"), want: NonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.err))
		})
	}
}

func TestStorageError(t *testing.T) {
	full := storageError(ErrExecutingStatement, sqlite3.Error{Code: sqlite3.ErrFull})
	assert.ErrorIs(t, full, ErrLocalStorageFailure)
	assert.ErrorIs(t, full, ErrStorageFull)
	assert.ErrorIs(t, full, ErrExecutingStatement)

	corrupt := storageError(ErrExecutingQuery, sqlite3.Error{Code: sqlite3.ErrNotADB})
	assert.ErrorIs(t, corrupt, ErrStorageCorrupt)

	plain := storageError(ErrExecutingQuery, sql.ErrConnDone)
	assert.ErrorIs(t, plain, ErrLocalStorageFailure)
	assert.ErrorIs(t, plain, sql.ErrConnDone)
	assert.NotErrorIs(t, plain, ErrStorageFull)
}

func TestRecordRepository_PutSurfacesStorageFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db, logger.Nop())

	mock.ExpectExec("INSERT INTO products").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrFull})

	err := repo.Put(testContext(), models.Product, product("p1", "t1", `{}`))
	assert.ErrorIs(t, err, ErrLocalStorageFailure)
	assert.ErrorIs(t, err, ErrStorageFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteCoordinator_OutboxFailureRollsBackRecord(t *testing.T) {
	db, mock := newMockDB(t)
	writes := NewWriteCoordinator(db, logger.Nop())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "payload", "version", "occurred_at", "updated_at"}))
	mock.ExpectExec("INSERT INTO products").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO outbox").WillReturnError(sqlite3.Error{Code: sqlite3.ErrCorrupt})
	mock.ExpectRollback()

	_, _, err := writes.ApplyWrite(testContext(), models.OperationCreate, models.Product, product("p1", "t1", `{}`), "k1")
	assert.ErrorIs(t, err, ErrLocalStorageFailure)
	assert.ErrorIs(t, err, ErrStorageCorrupt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_ReplaceTenantRollsBackEveryKind(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecordRepository(db, logger.Nop())

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM products").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO products").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM customers").WillReturnError(sqlite3.Error{Code: sqlite3.ErrFull})
	mock.ExpectRollback()

	err := repo.ReplaceTenant(testContext(), "t1", map[models.EntityKind][]models.Record{
		models.Product:  {product("p1", "t1", `{}`)},
		models.Customer: {product("c1", "t1", `{}`)},
	})
	assert.ErrorIs(t, err, ErrStorageFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteCoordinator_BeginFailure(t *testing.T) {
	db, mock := newMockDB(t)
	writes := NewWriteCoordinator(db, logger.Nop())

	mock.ExpectBegin().WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	err := writes.Clear(testContext(), models.CollectionProducts)
	assert.ErrorIs(t, err, ErrBeginningTransaction)
	assert.True(t, db.Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_CountSurfacesStorageFailure(t *testing.T) {
	db, mock := newMockDB(t)
	outbox := NewOutboxRepository(db, logger.Nop())

	mock.ExpectQuery("SELECT COUNT").WillReturnError(sql.ErrConnDone)

	_, err := outbox.Count(testContext(), "")
	assert.ErrorIs(t, err, ErrLocalStorageFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}
