package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MKhiriev/go-pos-keeper/internal/adapter"
	"github.com/MKhiriev/go-pos-keeper/internal/client"
	"github.com/MKhiriev/go-pos-keeper/internal/config"
	"github.com/MKhiriev/go-pos-keeper/internal/handler"
	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/metrics"
	"github.com/MKhiriev/go-pos-keeper/internal/server"
	"github.com/MKhiriev/go-pos-keeper/internal/service"
	"github.com/MKhiriev/go-pos-keeper/internal/store"
	"github.com/MKhiriev/go-pos-keeper/internal/workers"
	"github.com/MKhiriev/go-pos-keeper/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	build := models.NewBuildInfo(buildVersion, buildDate, buildCommit)
	printBuildInfo(build)

	cfg, err := config.GetClientConfig(os.Args[1:])
	if err != nil {
		logger.NewLogger("go-pos-client").Fatal().Err(err).Msg("error getting configs")
	}
	log := logger.NewClientLogger("go-pos-client", cfg.App.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()
	ctx = log.WithContext(ctx)

	remote, err := adapter.NewHTTPRemoteBackend(cfg.Adapter, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create remote adapter")
	}

	if cfg.App.TenantID == "" && cfg.Adapter.Token != "" {
		if cfg.App.TenantID, err = adapter.TenantFromToken(cfg.Adapter.Token); err != nil {
			log.Fatal().Err(err).Msg("no tenant configured and none in the token")
		}
	}

	storages, err := store.NewClientStorages(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create local storage")
	}
	defer storages.Close()

	var (
		recorder metrics.Recorder = metrics.Nop{}
		prom     *metrics.Prometheus
	)
	if cfg.App.MetricsAddress != "" {
		prom = metrics.NewPrometheus("pos")
		recorder = prom
	}

	services := service.NewClientServices(storages, remote, recorder, cfg, log)

	ws := []workers.Worker{services.SyncJob}
	if prom != nil {
		h := handler.NewHandler(services.Cache, services.SyncJob, prom.Handler(), cfg.App.TenantID, build, log)
		statusServer, err := server.NewHTTPServer(cfg.App.MetricsAddress, h.Init(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("create status server")
		}
		ws = append(ws, statusServer)
	}

	app, err := client.NewApp(services, workers.NewWorkers(ws...), cfg.App.TenantID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init client app error")
	}

	if err = app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("client run error")
	}
}

func printBuildInfo(build models.BuildInfo) {
	fmt.Printf("Build version: %s\n", build.Version)
	fmt.Printf("Build date: %s\n", build.Date)
	fmt.Printf("Build commit: %s\n", build.Commit)
}
