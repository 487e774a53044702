package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MKhiriev/go-pos-keeper/internal/adapter"
	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/metrics"
	"github.com/MKhiriev/go-pos-keeper/internal/notifier"
	"github.com/MKhiriev/go-pos-keeper/internal/store"
	"github.com/MKhiriev/go-pos-keeper/internal/utils"
	"github.com/MKhiriev/go-pos-keeper/models"
)

const (
	defaultRequestTimeout = 15 * time.Second

	// maxParallelTenants bounds DrainAll fan-out.
	maxParallelTenants = 8
)

// EngineConfig tunes the sync engine.
type EngineConfig struct {
	// MaxRetries is the exhaustion threshold. Zero means
	// [models.DefaultMaxRetries].
	MaxRetries int

	// RetryRejected makes rejected writes spend retries instead of failing
	// at once.
	RetryRejected bool

	// RequestTimeout bounds every remote call.
	RequestTimeout time.Duration
}

// tenantState serialises the drain and refresh of one tenant.
type tenantState struct {
	mu       sync.Mutex
	draining atomic.Bool
	rerun    atomic.Bool
}

// recordKey identifies a record across entity kinds.
type recordKey struct {
	kind models.EntityKind
	id   string
}

type syncEngine struct {
	records store.LocalStore
	outbox  store.MutationOutbox
	writes  store.WriteCoordinator
	remote  adapter.RemoteBackend
	changes notifier.ChangeNotifier
	metrics metrics.Recorder
	logger  *logger.Logger

	maxRetries     int
	retryRejected  bool
	requestTimeout time.Duration

	mu      sync.Mutex
	tenants map[string]*tenantState
	active  sync.WaitGroup
	closing atomic.Bool
}

// NewSyncEngine builds an engine over the given storages. A nil recorder
// disables metrics.
func NewSyncEngine(
	storages *store.ClientStorages,
	remote adapter.RemoteBackend,
	changes notifier.ChangeNotifier,
	recorder metrics.Recorder,
	cfg EngineConfig,
	log *logger.Logger,
) SyncEngine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	return &syncEngine{
		records:        storages.Records,
		outbox:         storages.Outbox,
		writes:         storages.Writes,
		remote:         remote,
		changes:        changes,
		metrics:        recorder,
		logger:         log,
		maxRetries:     cfg.MaxRetries,
		retryRejected:  cfg.RetryRejected,
		requestTimeout: cfg.RequestTimeout,
		tenants:        make(map[string]*tenantState),
	}
}

// begin registers a running operation and returns its tenant state.
func (e *syncEngine) begin(tenantID string) (*tenantState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closing.Load() {
		return nil, ErrEngineClosed
	}

	st, ok := e.tenants[tenantID]
	if !ok {
		st = &tenantState{}
		e.tenants[tenantID] = st
	}
	e.active.Add(1)

	return st, nil
}

func (e *syncEngine) Drain(ctx context.Context, tenantID string) (models.DrainReport, error) {
	report := models.DrainReport{TenantID: tenantID}
	if tenantID == "" {
		return report, ErrNoTenant
	}

	st, err := e.begin(tenantID)
	if err != nil {
		return report, err
	}
	defer e.active.Done()

	if !st.draining.CompareAndSwap(false, true) {
		st.rerun.Store(true)
		report.Coalesced = true
		return report, nil
	}

	started := time.Now()
	defer func() { e.metrics.ObserveDrain(time.Since(started)) }()

	for {
		st.rerun.Store(false)
		if err = e.drainPass(ctx, st, &report); err != nil {
			st.draining.Store(false)
			break
		}
		if st.rerun.Load() && !e.closing.Load() {
			continue
		}

		st.draining.Store(false)
		// a request may have coalesced between the last check and the
		// release of the flag
		if !st.rerun.Load() || e.closing.Load() || !st.draining.CompareAndSwap(false, true) {
			break
		}
	}

	e.publishPending(ctx)

	if err != nil {
		e.logger.Err(err).
			Str("func", "syncEngine.Drain").
			Str("tenant_id", tenantID).
			Msg("drain stopped")
		return report, err
	}

	return report, nil
}

// drainPass sends the pending entries of one tenant once.
func (e *syncEngine) drainPass(ctx context.Context, st *tenantState, report *models.DrainReport) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	entries, err := e.outbox.ListPending(ctx, report.TenantID)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}

	held := make(map[recordKey]struct{})
	sent := make(map[recordKey]struct{})
	for _, entry := range entries {
		if e.closing.Load() {
			return nil
		}
		if err = ctx.Err(); err != nil {
			return err
		}

		key := recordKey{kind: entry.EntityKind, id: entry.RecordID}
		if entry.Status == models.StatusConflict {
			held[key] = struct{}{}
			continue
		}
		if _, ok := held[key]; ok {
			report.Outcomes = append(report.Outcomes, models.SyncOutcome{
				Sequence: entry.Sequence,
				Kind:     models.Skipped,
			})
			e.metrics.RecordOutcome(models.Skipped)
			continue
		}

		if _, ok := sent[key]; ok {
			// an earlier confirmation may have moved the version forward
			if entry, err = e.outbox.Get(ctx, entry.Sequence); errors.Is(err, store.ErrEntryNotFound) {
				continue
			} else if err != nil {
				return fmt.Errorf("reload entry: %w", err)
			}
		}
		sent[key] = struct{}{}

		outcome, err := e.process(ctx, entry)
		if errors.Is(err, store.ErrEntryNotFound) {
			// cleared or resolved while the call was in flight
			continue
		}
		if err != nil {
			return err
		}

		report.Outcomes = append(report.Outcomes, outcome)
		e.metrics.RecordOutcome(outcome.Kind)
		if outcome.Kind != models.Succeeded {
			held[key] = struct{}{}
		}
	}

	return nil
}

// process sends one entry and records the outcome in the outbox.
func (e *syncEngine) process(ctx context.Context, entry models.OutboxEntry) (models.SyncOutcome, error) {
	log := e.logger.With().
		Int64("sequence", entry.Sequence).
		Str("tenant_id", entry.TenantID).
		Str("kind", string(entry.EntityKind)).
		Str("record_id", entry.RecordID).
		Logger()

	outcome := models.SyncOutcome{Sequence: entry.Sequence}

	// the outcome of a sent entry is recorded even if the caller gave up
	ctx = context.WithoutCancel(ctx)
	confirmed, sendErr := e.send(ctx, entry)

	var conflict *adapter.ConflictError
	switch {
	case sendErr == nil:
		if err := e.outbox.MarkSucceeded(ctx, entry.Sequence); err != nil {
			return outcome, err
		}
		outcome.Kind = models.Succeeded
		e.advance(ctx, entry, confirmed)
		e.refine(ctx, entry, confirmed)

	case errors.As(sendErr, &conflict):
		if err := e.outbox.MarkConflict(ctx, entry.Sequence, conflict.ServerPayload); err != nil {
			return outcome, err
		}
		outcome.Kind = models.Conflicted
		outcome.ServerPayload = conflict.ServerPayload
		log.Warn().Str("func", "syncEngine.process").Msg("remote reported a version conflict")

	case errors.Is(sendErr, adapter.ErrRemoteRejected) && !e.retryRejected:
		outcome.Reason = "rejected: " + sendErr.Error()
		if _, err := e.outbox.MarkRejected(ctx, entry.Sequence, outcome.Reason); err != nil {
			return outcome, err
		}
		outcome.Kind = models.Exhausted
		log.Error().Err(sendErr).Str("func", "syncEngine.process").Msg("remote rejected the write")

	default:
		outcome.Reason = sendErr.Error()
		_, exhausted, err := e.outbox.MarkFailed(ctx, entry.Sequence, e.maxRetries, outcome.Reason)
		if err != nil {
			return outcome, err
		}
		outcome.Kind = models.RetryableFailure
		if exhausted {
			outcome.Kind = models.Exhausted
			log.Error().Err(sendErr).Str("func", "syncEngine.process").Msg("write abandoned after exhausting retries")
		} else {
			log.Debug().Err(sendErr).Str("func", "syncEngine.process").Msg("write will be retried")
		}
	}

	return outcome, nil
}

// send issues the remote operation for entry. The call outlives caller
// cancellation so an in-flight write is never abandoned halfway.
func (e *syncEngine) send(ctx context.Context, entry models.OutboxEntry) (models.Record, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.requestTimeout)
	defer cancel()
	callCtx = utils.WithIdempotencyKey(callCtx, entry.IdempotencyKey)

	switch entry.Operation {
	case models.OperationCreate:
		return e.remote.Create(callCtx, entry.EntityKind, entry.TenantID, entry.Record())
	case models.OperationUpdate:
		return e.remote.Update(callCtx, entry.EntityKind, entry.TenantID, entry.RecordID, entry.Payload, entry.Version)
	case models.OperationDelete:
		return models.Record{}, e.remote.Delete(callCtx, entry.EntityKind, entry.TenantID, entry.RecordID, entry.Version)
	}

	return models.Record{}, fmt.Errorf("%w: operation %q", adapter.ErrRemoteRejected, entry.Operation)
}

// advance rebases the record and its later queued writes onto the version
// the remote confirmed, so they do not replay a stale If-Match. When the
// response carries no version the later writes are sent unversioned.
func (e *syncEngine) advance(ctx context.Context, entry models.OutboxEntry, confirmed models.Record) {
	if entry.Operation == models.OperationDelete {
		return
	}

	err := e.writes.AdvanceVersion(ctx, entry.EntityKind, entry.TenantID, entry.RecordID, entry.Sequence, entry.Version, confirmed.Version)
	if err != nil {
		e.logger.Err(err).
			Str("func", "syncEngine.advance").
			Int64("sequence", entry.Sequence).
			Str("record_id", entry.RecordID).
			Msg("failed to carry the confirmed version forward")
	}
}

// refine stores the server's version of a confirmed record unless a later
// local write for it is still queued. Refinement is best effort.
func (e *syncEngine) refine(ctx context.Context, entry models.OutboxEntry, confirmed models.Record) {
	if entry.Operation == models.OperationDelete || len(confirmed.Payload) == 0 {
		return
	}

	log := e.logger.With().
		Str("func", "syncEngine.refine").
		Int64("sequence", entry.Sequence).
		Str("record_id", entry.RecordID).
		Logger()

	later, err := e.outbox.HasLaterEntries(ctx, entry.EntityKind, entry.RecordID, entry.Sequence)
	if err != nil {
		log.Err(err).Msg("failed to look up later entries")
		return
	}
	if later {
		return
	}

	rec := confirmed
	rec.ID = entry.RecordID
	rec.TenantID = entry.TenantID
	if rec.OccurredAt == nil {
		rec.OccurredAt = entry.OccurredAt
	}
	if rec.UpdatedAt == nil {
		now := time.Now().UTC()
		rec.UpdatedAt = &now
	}

	if err = e.records.Put(ctx, entry.EntityKind, rec); err != nil {
		log.Err(err).Msg("failed to store server fields")
		return
	}
	e.changes.Publish(entry.EntityKind, entry.TenantID)
}

func (e *syncEngine) publishPending(ctx context.Context) {
	n, err := e.outbox.Count(ctx, "")
	if err != nil {
		return
	}
	e.metrics.SetPending(n)
}

func (e *syncEngine) DrainAll(ctx context.Context) ([]models.DrainReport, error) {
	if e.closing.Load() {
		return nil, ErrEngineClosed
	}

	tenants, err := e.outbox.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	reports := make([]models.DrainReport, len(tenants))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTenants)
	for i, tenantID := range tenants {
		g.Go(func() error {
			report, err := e.Drain(gCtx, tenantID)
			reports[i] = report
			if err != nil {
				return fmt.Errorf("drain tenant %s: %w", tenantID, err)
			}
			return nil
		})
	}

	return reports, g.Wait()
}

func (e *syncEngine) Refresh(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return ErrNoTenant
	}

	st, err := e.begin(tenantID)
	if err != nil {
		return err
	}
	defer e.active.Done()

	st.mu.Lock()
	defer st.mu.Unlock()

	pulled := make([][]models.Record, len(models.EntityKinds))
	g, gCtx := errgroup.WithContext(ctx)
	for i, kind := range models.EntityKinds {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gCtx, e.requestTimeout)
			defer cancel()

			recs, err := e.remote.ListAll(callCtx, kind, tenantID)
			if err != nil {
				return fmt.Errorf("list %s: %w", kind, err)
			}
			pulled[i] = recs
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		e.logger.Err(err).
			Str("func", "syncEngine.Refresh").
			Str("tenant_id", tenantID).
			Msg("failed to pull collections")
		return err
	}

	snapshot := make(map[models.EntityKind][]models.Record, len(models.EntityKinds))
	for i, kind := range models.EntityKinds {
		snapshot[kind] = pulled[i]
	}
	if err = e.records.ReplaceTenant(ctx, tenantID, snapshot); err != nil {
		e.logger.Err(err).
			Str("func", "syncEngine.Refresh").
			Str("tenant_id", tenantID).
			Msg("failed to store pulled collections")
		return fmt.Errorf("replace tenant records: %w", err)
	}

	for _, kind := range models.EntityKinds {
		e.changes.Publish(kind, tenantID)
	}

	return nil
}

func (e *syncEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closing.Store(true)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
