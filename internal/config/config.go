// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// Defaults applied to zero-valued fields after all sources are merged.
const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultSyncInterval   = 30 * time.Second
	DefaultMaxRetries     = 5
)

// StructuredConfig is the raw configuration container populated by merging
// values from environment variables, command-line flags, and an optional
// JSON file.
//
// Struct tags:
//   - envPrefix: prefix applied to nested env lookups (caarlos0/env).
//   - env: variable name for scalar fields.
type StructuredConfig struct {
	// App holds session-level settings.
	App App `envPrefix:"APP_"`

	// Storage holds the local store settings.
	Storage Storage `envPrefix:"STORAGE_"`

	// Adapter holds the remote backend connection settings.
	Adapter Adapter `envPrefix:"ADAPTER_"`

	// Workers holds background sync settings.
	Workers Workers `envPrefix:"WORKERS_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// App holds session-level settings.
type App struct {
	// TenantID is the business scope this client session works for. When
	// empty it is derived from the bearer token.
	// Env: APP_TENANT_ID
	TenantID string `env:"TENANT_ID"`

	// MetricsAddress is the optional "host:port" the prometheus endpoint
	// listens on. Metrics are not served when empty.
	// Env: APP_METRICS_ADDRESS
	MetricsAddress string `env:"METRICS_ADDRESS"`

	// LogFile is the path of the rotating client log file. Logs go to stdout
	// when empty.
	// Env: APP_LOG_FILE
	LogFile string `env:"LOG_FILE"`
}

// Storage groups the local store settings.
type Storage struct {
	// DB holds the SQLite settings.
	DB DB `envPrefix:"DB_"`
}

// DB holds connection settings for the local SQLite database.
type DB struct {
	// DSN is the SQLite database file path, optionally with driver query
	// parameters (e.g. "pos.db?_busy_timeout=5000").
	// Env: STORAGE_DB_DSN
	DSN string `env:"DSN"`
}

// Adapter holds the remote backend connection settings.
type Adapter struct {
	// HTTPAddress is the base address of the remote REST API
	// (e.g. "http://localhost:8080").
	// Env: ADAPTER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// RequestTimeout bounds every single remote call.
	// Env: ADAPTER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// Token is the bearer token attached to every remote call.
	// Env: ADAPTER_TOKEN
	Token string `env:"TOKEN"`
}

// Workers holds background sync settings.
type Workers struct {
	// SyncInterval is how often the outbox is drained in the background.
	// Env: WORKERS_SYNC_INTERVAL
	SyncInterval time.Duration `env:"SYNC_INTERVAL"`

	// MaxRetries is the number of failed drain attempts after which an entry
	// is abandoned.
	// Env: WORKERS_MAX_RETRIES
	MaxRetries int `env:"MAX_RETRIES"`

	// RetryRejected makes payloads the remote rejected as invalid consume
	// retry budget instead of failing at once.
	// Env: WORKERS_RETRY_REJECTED
	RetryRejected bool `env:"RETRY_REJECTED"`
}

// GetStructuredConfig loads and merges the configuration from all available
// sources in the following priority order (last source wins for non-zero
// fields):
//  1. Environment variables
//  2. Command-line flags (args)
//  3. JSON file (path resolved from sources 1 and 2)
func GetStructuredConfig(args []string) (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags(args).
		withJSON().
		build()
}

func (cfg *StructuredConfig) applyDefaults() {
	if cfg.Adapter.RequestTimeout <= 0 {
		cfg.Adapter.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Workers.SyncInterval <= 0 {
		cfg.Workers.SyncInterval = DefaultSyncInterval
	}
	if cfg.Workers.MaxRetries <= 0 {
		cfg.Workers.MaxRetries = DefaultMaxRetries
	}
}
