package handler

import (
	"net/http"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/service"
	"github.com/MKhiriev/go-pos-keeper/models"
)

// syncTrigger starts a background drain.
type syncTrigger interface {
	Signal()
}

type Handler struct {
	cache   service.CacheService
	sync    syncTrigger
	metrics http.Handler

	tenantID string
	build    models.BuildInfo

	logger *logger.Logger
}

// NewHandler builds the status handler. metrics may be nil when metrics are
// disabled.
func NewHandler(cache service.CacheService, sync syncTrigger, metrics http.Handler, tenantID string, build models.BuildInfo, logger *logger.Logger) *Handler {
	logger.Info().Msg("status handler created")
	return &Handler{
		cache:    cache,
		sync:     sync,
		metrics:  metrics,
		tenantID: tenantID,
		build:    build,
		logger:   logger,
	}
}
