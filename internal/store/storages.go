package store

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-pos-keeper/internal/config"
	"github.com/MKhiriev/go-pos-keeper/internal/logger"
)

// ClientStorages groups every storage component of the client process.
// All of them share one SQLite connection.
type ClientStorages struct {
	Records LocalStore
	Outbox  MutationOutbox
	Writes  WriteCoordinator

	db *DB
}

// NewClientStorages opens the local database, applies migrations and builds
// the repositories.
func NewClientStorages(ctx context.Context, cfg config.ClientStorage, log *logger.Logger) (*ClientStorages, error) {
	db, err := NewConnectSQLite(ctx, cfg.DB, log)
	if err != nil {
		return nil, err
	}

	if err = db.Migrate(); err != nil {
		log.Err(err).Str("func", "NewClientStorages").Msg("error migrating local database")
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrLocalStorageFailure, err)
	}

	return newClientStorages(db, log), nil
}

func newClientStorages(db *DB, log *logger.Logger) *ClientStorages {
	return &ClientStorages{
		Records: NewRecordRepository(db, log),
		Outbox:  NewOutboxRepository(db, log),
		Writes:  NewWriteCoordinator(db, log),
		db:      db,
	}
}

// Close releases the database connection.
func (s *ClientStorages) Close() error {
	return s.db.Close()
}
