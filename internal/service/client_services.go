package service

import (
	"github.com/MKhiriev/go-pos-keeper/internal/adapter"
	"github.com/MKhiriev/go-pos-keeper/internal/config"
	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/metrics"
	"github.com/MKhiriev/go-pos-keeper/internal/notifier"
	"github.com/MKhiriev/go-pos-keeper/internal/store"
	"github.com/MKhiriev/go-pos-keeper/internal/utils"
)

type ClientServices struct {
	Engine   SyncEngine
	Cache    CacheService
	SyncJob  SyncJob
	Notifier notifier.ChangeNotifier
}

func NewClientServices(
	storages *store.ClientStorages,
	remote adapter.RemoteBackend,
	recorder metrics.Recorder,
	cfg *config.ClientConfig,
	log *logger.Logger,
) *ClientServices {
	changes := notifier.NewChangeNotifier()

	engine := NewSyncEngine(storages, remote, changes, recorder, EngineConfig{
		MaxRetries:     cfg.Workers.MaxRetries,
		RetryRejected:  cfg.Workers.RetryRejected,
		RequestTimeout: cfg.Adapter.RequestTimeout,
	}, log)
	job := NewSyncJob(engine, cfg.Workers.SyncInterval, log)
	cache := NewCacheService(storages, engine, changes, utils.NewUUIDGenerator(), job, cfg.App.TenantID, log)

	return &ClientServices{
		Engine:   engine,
		Cache:    cache,
		SyncJob:  job,
		Notifier: changes,
	}
}
