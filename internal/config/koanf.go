// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vitalsync/config.yaml",
	"/etc/vitalsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all defaults applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8420,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/vitalsync.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			TickInterval:       time.Minute,
			BatchSize:          50,
			MaxConcurrency:     4,
			SyncTimeout:        2 * time.Minute,
			LookbackDays:       7,
			ExclusivityBackoff: 5 * time.Minute,
			TickTimeout:        30 * time.Minute,
			StaleAfter:         45 * time.Minute,
		},
		Lease: LeaseConfig{
			Enabled: true,
			Path:    "/data/lease",
			TTL:     2 * time.Minute,
			Holder:  "",
		},
		Events: EventsConfig{
			Enabled:        true,
			Backend:        "gochannel",
			NATSURL:        "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			TopicPrefix:    "vitalsync",
		},
		Providers: ProvidersConfig{
			GatewayURL:        "http://127.0.0.1:8421",
			RequestsPerSecond: 2,
			Burst:             4,
			Timeout:           30 * time.Second,
			Enabled:           []string{"fitbit", "oura", "dexcom", "withings", "garmin", "apple_health"},
		},
		API: APIConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SCHEDULER_MAX_CONCURRENCY -> scheduler.max_concurrency
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"api.cors_origins",
	"providers.enabled",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Scheduler
	"scheduler_enabled":             "scheduler.enabled",
	"scheduler_tick_interval":       "scheduler.tick_interval",
	"scheduler_batch_size":          "scheduler.batch_size",
	"scheduler_max_concurrency":     "scheduler.max_concurrency",
	"scheduler_sync_timeout":        "scheduler.sync_timeout",
	"scheduler_lookback_days":       "scheduler.lookback_days",
	"scheduler_exclusivity_backoff": "scheduler.exclusivity_backoff",
	"scheduler_tick_timeout":        "scheduler.tick_timeout",
	"scheduler_stale_after":         "scheduler.stale_after",

	// Lease
	"lease_enabled": "lease.enabled",
	"lease_path":    "lease.path",
	"lease_ttl":     "lease.ttl",
	"lease_holder":  "lease.holder",

	// Events
	"events_enabled":      "events.enabled",
	"events_backend":      "events.backend",
	"nats_url":            "events.nats_url",
	"nats_embedded":       "events.embedded_server",
	"events_topic_prefix": "events.topic_prefix",

	// Providers
	"provider_gateway_url":         "providers.gateway_url",
	"provider_requests_per_second": "providers.requests_per_second",
	"provider_burst":               "providers.burst",
	"provider_timeout":             "providers.timeout",
	"providers_enabled":            "providers.enabled",

	// API
	"rate_limit_requests":   "api.rate_limit_requests",
	"rate_limit_window":     "api.rate_limit_window",
	"cors_origins":          "api.cors_origins",
	"api_default_page_size": "api.default_page_size",
	"api_max_page_size":     "api.max_page_size",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - DUCKDB_PATH -> database.path
//   - SCHEDULER_TICK_INTERVAL -> scheduler.tick_interval
//   - NATS_URL -> events.nats_url
//
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
