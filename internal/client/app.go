package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/service"
	"github.com/MKhiriev/go-pos-keeper/internal/workers"
	"github.com/MKhiriev/go-pos-keeper/models"
)

const shutdownTimeout = 10 * time.Second

var ErrNoTenant = errors.New("no tenant configured")

type App struct {
	services *service.ClientServices
	workers  *workers.Workers
	tenantID string
	logger   *logger.Logger
}

func NewApp(services *service.ClientServices, ws *workers.Workers, tenantID string, logger *logger.Logger) (*App, error) {
	if tenantID == "" {
		return nil, ErrNoTenant
	}

	return &App{
		services: services,
		workers:  ws,
		tenantID: tenantID,
		logger:   logger,
	}, nil
}

// Run refreshes the tenant's cache, starts the workers and blocks until ctx
// is done. A failed startup refresh is not fatal: the cache keeps serving
// what it already holds.
func (a *App) Run(ctx context.Context) error {
	unsubscribe := a.services.Cache.Subscribe(func(c models.Change) {
		a.logger.Debug().
			Str("kind", string(c.Kind)).
			Str("tenant_id", c.TenantID).
			Msg("collection changed")
	})
	defer unsubscribe()

	if err := a.services.Cache.Refresh(ctx, a.tenantID); err != nil {
		a.logger.Warn().Err(err).Str("tenant_id", a.tenantID).Msg("startup refresh failed, serving cached data")
	}

	a.workers.Start(ctx)
	// outbox entries left from the previous run
	a.services.SyncJob.Signal()

	a.logger.Info().Str("tenant_id", a.tenantID).Msg("client started")
	<-ctx.Done()
	a.logger.Info().Msg("shutting down")

	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.services.Engine.Shutdown(ctx)
	a.workers.Stop()

	if err != nil {
		return fmt.Errorf("shutdown sync engine: %w", err)
	}
	return nil
}
