package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
)

const defaultSyncInterval = 30 * time.Second

type syncJob struct {
	engine   SyncEngine
	interval time.Duration
	signals  chan struct{}
	logger   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSyncJob creates a job that calls engine.DrainAll on a ticker and on
// demand. If interval is zero or negative it defaults to 30 seconds. The job
// is idle until Start is called.
func NewSyncJob(engine SyncEngine, interval time.Duration, log *logger.Logger) SyncJob {
	if interval <= 0 {
		interval = defaultSyncInterval
	}

	return &syncJob{
		engine:   engine,
		interval: interval,
		signals:  make(chan struct{}, 1),
		logger:   log,
	}
}

// Start implements SyncJob. The goroutine exits when ctx is cancelled or
// Stop is called.
func (j *syncJob) Start(ctx context.Context) {
	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(j.interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				j.drain(jobCtx)
			case <-j.signals:
				j.drain(jobCtx)
			}
		}
	}()
}

func (j *syncJob) drain(ctx context.Context) {
	reports, err := j.engine.DrainAll(ctx)
	if err != nil {
		if !errors.Is(err, ErrEngineClosed) && !errors.Is(err, context.Canceled) {
			j.logger.Err(err).Str("func", "syncJob.drain").Msg("background drain failed")
		}
		return
	}

	for _, r := range reports {
		if len(r.Outcomes) == 0 {
			continue
		}
		j.logger.Debug().
			Str("func", "syncJob.drain").
			Str("tenant_id", r.TenantID).
			Int("outcomes", len(r.Outcomes)).
			Msg("drain finished")
	}
}

// Stop implements SyncJob.
func (j *syncJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}

// Signal implements SyncJob. It never blocks.
func (j *syncJob) Signal() {
	select {
	case j.signals <- struct{}{}:
	default:
	}
}

func (j *syncJob) Interval() time.Duration {
	return j.interval
}
