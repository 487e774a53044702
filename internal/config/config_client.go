package config

import (
	"fmt"
	"time"
)

// ClientApp holds client-side session settings.
type ClientApp struct {
	// TenantID is the session tenant; may be empty when it is derived from
	// the adapter token.
	TenantID string
	// MetricsAddress is the prometheus listen address, empty to disable.
	MetricsAddress string
	// LogFile is the rotating log file path.
	LogFile string
}

// ClientAdapter holds network settings used by the client transport layer.
type ClientAdapter struct {
	// HTTPAddress is the HTTP endpoint address used by the client.
	HTTPAddress string
	// RequestTimeout is the timeout for every outbound request.
	RequestTimeout time.Duration
	// Token is the bearer token for the remote API.
	Token string
}

// ClientDB contains local database connection settings for the client.
type ClientDB struct {
	// DSN is the SQLite connection string used by the client.
	DSN string
}

// ClientStorage groups client storage backend settings.
type ClientStorage struct {
	// DB holds local database settings.
	DB ClientDB
}

// ClientWorkers contains client background worker settings.
type ClientWorkers struct {
	// SyncInterval defines how often the outbox is drained.
	SyncInterval time.Duration
	// MaxRetries is the exhaustion threshold for failed drain attempts.
	MaxRetries int
	// RetryRejected retries rejected payloads instead of failing them.
	RetryRejected bool
}

// ClientConfig is the top-level client configuration assembled from
// [StructuredConfig].
type ClientConfig struct {
	App     ClientApp
	Adapter ClientAdapter
	Storage ClientStorage
	Workers ClientWorkers
}

// GetClientConfig builds and validates the client config from the process
// environment, the given command-line arguments and the optional JSON file.
func GetClientConfig(args []string) (*ClientConfig, error) {
	cfg, err := GetStructuredConfig(args)
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	clientCfg := newClientConfig(cfg)

	return clientCfg, clientCfg.validate()
}

func newClientConfig(cfg *StructuredConfig) *ClientConfig {
	return &ClientConfig{
		App: ClientApp{
			TenantID:       cfg.App.TenantID,
			MetricsAddress: cfg.App.MetricsAddress,
			LogFile:        cfg.App.LogFile,
		},
		Adapter: ClientAdapter{
			HTTPAddress:    cfg.Adapter.HTTPAddress,
			RequestTimeout: cfg.Adapter.RequestTimeout,
			Token:          cfg.Adapter.Token,
		},
		Storage: ClientStorage{
			DB: ClientDB{
				DSN: cfg.Storage.DB.DSN,
			},
		},
		Workers: ClientWorkers{
			SyncInterval:  cfg.Workers.SyncInterval,
			MaxRetries:    cfg.Workers.MaxRetries,
			RetryRejected: cfg.Workers.RetryRejected,
		},
	}
}
