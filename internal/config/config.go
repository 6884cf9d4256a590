// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package config loads VitalSync configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
//
//	cfg, err := config.LoadWithKoanf()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Lease     LeaseConfig     `koanf:"lease"`
	Events    EventsConfig    `koanf:"events"`
	Providers ProvidersConfig `koanf:"providers"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use NumCPU
}

// SchedulerConfig controls the rotation tick and the queue processor.
type SchedulerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	TickInterval time.Duration `koanf:"tick_interval"`

	// BatchSize is the maximum number of jobs claimed per tick.
	BatchSize int `koanf:"batch_size"`

	// MaxConcurrency bounds concurrent provider syncs. Range 1-32.
	MaxConcurrency int `koanf:"max_concurrency"`

	SyncTimeout  time.Duration `koanf:"sync_timeout"`
	LookbackDays int           `koanf:"lookback_days"`

	// ExclusivityBackoff is how far a job is pushed back when another job
	// for the same user and provider is already processing.
	ExclusivityBackoff time.Duration `koanf:"exclusivity_backoff"`

	// TickTimeout bounds one tick, including its queue run. It must cover
	// ceil(BatchSize/MaxConcurrency) syncs that all hit SyncTimeout.
	TickTimeout time.Duration `koanf:"tick_timeout"`

	// StaleAfter returns processing jobs older than this to pending. It
	// must exceed TickTimeout so a live run's jobs are never recovered.
	StaleAfter time.Duration `koanf:"stale_after"`
}

// LeaseConfig controls the persistent tick lease. It guards one instance
// across restarts; Badger does not share its directory between processes.
type LeaseConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path"`
	TTL     time.Duration `koanf:"ttl"`
	Holder  string        `koanf:"holder"` // defaults to hostname
}

// EventsConfig selects the sync outcome event transport.
type EventsConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Backend        string `koanf:"backend"` // gochannel or nats
	NATSURL        string `koanf:"nats_url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	TopicPrefix    string `koanf:"topic_prefix"`
}

// ProvidersConfig holds the provider gateway and default per-provider limits.
type ProvidersConfig struct {
	GatewayURL        string        `koanf:"gateway_url"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	Timeout           time.Duration `koanf:"timeout"`
	Enabled           []string      `koanf:"enabled"`

	// Overrides replaces the default rate limit for individual providers.
	// YAML only.
	Overrides map[string]ProviderOverride `koanf:"overrides"`
}

// ProviderOverride is a per-provider rate limit.
type ProviderOverride struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	DefaultPageSize int           `koanf:"default_page_size"`
	MaxPageSize     int           `koanf:"max_page_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller adds file:line to each entry.
	Caller bool `koanf:"caller"`
}

// RateFor returns the limiter settings for a provider, applying any override.
func (p ProvidersConfig) RateFor(provider string) (float64, int) {
	if o, ok := p.Overrides[provider]; ok && o.RequestsPerSecond > 0 {
		burst := o.Burst
		if burst <= 0 {
			burst = p.Burst
		}
		return o.RequestsPerSecond, burst
	}
	return p.RequestsPerSecond, p.Burst
}
