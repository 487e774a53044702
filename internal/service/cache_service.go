package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/notifier"
	"github.com/MKhiriev/go-pos-keeper/internal/store"
	"github.com/MKhiriev/go-pos-keeper/internal/validators"
	"github.com/MKhiriev/go-pos-keeper/models"
)

// keyGenerator issues idempotency keys for new outbox entries.
type keyGenerator interface {
	Generate() string
}

type cacheService struct {
	storages  *store.ClientStorages
	engine    SyncEngine
	changes   notifier.ChangeNotifier
	keys      keyGenerator
	drains    drainSignaler
	validator validators.Validator
	tenantID  string
	logger    *logger.Logger
}

// NewCacheService returns the caller-facing API of a tenant session.
// drains may be nil, in which case writes wait for the next scheduled drain.
func NewCacheService(
	storages *store.ClientStorages,
	engine SyncEngine,
	changes notifier.ChangeNotifier,
	keys keyGenerator,
	drains drainSignaler,
	tenantID string,
	log *logger.Logger,
) CacheService {
	if log == nil {
		log = logger.Nop()
	}

	return &cacheService{
		storages:  storages,
		engine:    engine,
		changes:   changes,
		keys:      keys,
		drains:    drains,
		validator: validators.NewRecordValidator(),
		tenantID:  tenantID,
		logger:    log,
	}
}

func (s *cacheService) Write(ctx context.Context, op models.Operation, kind models.EntityKind, rec models.Record) (models.OutboxEntry, error) {
	if !op.Valid() {
		return models.OutboxEntry{}, fmt.Errorf("%w: operation %q", ErrInvalidWrite, op)
	}
	if !kind.Valid() {
		return models.OutboxEntry{}, fmt.Errorf("%w: entity kind %q", ErrInvalidWrite, kind)
	}
	if rec.TenantID == "" {
		rec.TenantID = s.tenantID
	}
	if rec.TenantID == "" {
		return models.OutboxEntry{}, ErrNoTenant
	}
	if err := s.validator.Validate(ctx, rec, validators.FieldsFor(op)...); err != nil {
		return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrInvalidWrite, err)
	}

	entry, _, err := s.storages.Writes.ApplyWrite(ctx, op, kind, rec, s.keys.Generate())
	if err != nil {
		if isInvalidWrite(err) {
			return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrInvalidWrite, err)
		}
		return models.OutboxEntry{}, err
	}

	s.changes.Publish(kind, rec.TenantID)
	s.signal()

	return entry, nil
}

func isInvalidWrite(err error) bool {
	return errors.Is(err, store.ErrInvalidRecord) ||
		errors.Is(err, store.ErrInvalidPatch) ||
		errors.Is(err, store.ErrUnknownEntityKind) ||
		errors.Is(err, store.ErrRecordNotFound)
}

func (s *cacheService) Read(ctx context.Context, kind models.EntityKind, tenantID string, order models.ReadOrder) ([]models.Record, error) {
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return s.storages.Records.GetAll(ctx, kind, tenantID, order)
}

func (s *cacheService) Get(ctx context.Context, kind models.EntityKind, id string) (models.Record, error) {
	return s.storages.Records.Get(ctx, kind, id)
}

func (s *cacheService) PendingCount(ctx context.Context) (int, error) {
	return s.storages.Outbox.Count(ctx, s.tenantID)
}

func (s *cacheService) Conflicts(ctx context.Context) ([]models.Conflict, error) {
	return s.storages.Outbox.Conflicts(ctx, s.tenantID)
}

func (s *cacheService) Failed(ctx context.Context) ([]models.FailedMutation, error) {
	return s.storages.Outbox.Failed(ctx, s.tenantID)
}

func (s *cacheService) ResolveConflict(ctx context.Context, sequence int64, resolution models.Resolution) error {
	switch resolution {
	case models.AcceptServer:
		conflict, err := s.storages.Writes.AcceptServer(ctx, sequence)
		if err != nil {
			return err
		}
		s.changes.Publish(conflict.Entry.EntityKind, conflict.Entry.TenantID)
		return nil

	case models.RetryLocal:
		if err := s.storages.Outbox.Requeue(ctx, sequence); err != nil {
			return err
		}
		s.signal()
		return nil
	}

	return fmt.Errorf("%w: %d", ErrUnknownResolution, resolution)
}

func (s *cacheService) DismissFailed(ctx context.Context, sequence int64) error {
	return s.storages.Outbox.DismissFailed(ctx, sequence)
}

func (s *cacheService) Subscribe(h notifier.Handler) func() {
	return s.changes.Subscribe(h)
}

func (s *cacheService) Refresh(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		tenantID = s.tenantID
	}
	return s.engine.Refresh(ctx, tenantID)
}

func (s *cacheService) Clear(ctx context.Context, collections ...models.Collection) error {
	if len(collections) == 0 {
		collections = models.AllCollections
	}

	if err := s.storages.Writes.Clear(ctx, collections...); err != nil {
		return err
	}

	s.logger.Info().
		Str("func", "cacheService.Clear").
		Int("collections", len(collections)).
		Msg("local cache cleared")

	for _, kind := range models.EntityKinds {
		for _, c := range collections {
			if kind.Collection() == c {
				s.changes.Publish(kind, s.tenantID)
			}
		}
	}

	return nil
}

func (s *cacheService) signal() {
	if s.drains != nil {
		s.drains.Signal()
	}
}
