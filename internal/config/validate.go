// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tomtom215/vitalsync/internal/logging"
)

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

var validEventBackends = map[string]bool{
	"gochannel": true,
	"nats":      true,
}

var knownProviders = map[string]bool{
	"fitbit":       true,
	"oura":         true,
	"dexcom":       true,
	"withings":     true,
	"garmin":       true,
	"apple_health": true,
}

// Validate checks that configuration values are present and within bounds.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateScheduler(); err != nil {
		return err
	}

	if err := c.validateLease(); err != nil {
		return err
	}

	if err := c.validateEvents(); err != nil {
		return err
	}

	if err := c.validateProviders(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

// validateScheduler validates tick and processor bounds (only if enabled)
func (c *Config) validateScheduler() error {
	s := c.Scheduler
	if !s.Enabled {
		return nil
	}
	if s.TickInterval < time.Second {
		return fmt.Errorf("SCHEDULER_TICK_INTERVAL must be at least 1s, got %s", s.TickInterval)
	}
	if s.BatchSize < 1 || s.BatchSize > 1000 {
		return fmt.Errorf("SCHEDULER_BATCH_SIZE must be between 1 and 1000")
	}
	if s.MaxConcurrency < 1 || s.MaxConcurrency > 32 {
		return fmt.Errorf("SCHEDULER_MAX_CONCURRENCY must be between 1 and 32")
	}
	if s.SyncTimeout <= 0 {
		return fmt.Errorf("SCHEDULER_SYNC_TIMEOUT must be positive")
	}
	if s.LookbackDays < 1 || s.LookbackDays > 365 {
		return fmt.Errorf("SCHEDULER_LOOKBACK_DAYS must be between 1 and 365")
	}
	if s.ExclusivityBackoff <= 0 {
		return fmt.Errorf("SCHEDULER_EXCLUSIVITY_BACKOFF must be positive")
	}
	if s.StaleAfter <= s.SyncTimeout {
		return fmt.Errorf("SCHEDULER_STALE_AFTER (%s) must exceed SCHEDULER_SYNC_TIMEOUT (%s)", s.StaleAfter, s.SyncTimeout)
	}
	waves := (s.BatchSize + s.MaxConcurrency - 1) / s.MaxConcurrency
	if minTick := time.Duration(waves) * s.SyncTimeout; s.TickTimeout < minTick {
		return fmt.Errorf("SCHEDULER_TICK_TIMEOUT (%s) must be at least %s (ceil(BATCH_SIZE/MAX_CONCURRENCY) x SYNC_TIMEOUT)", s.TickTimeout, minTick)
	}
	if s.StaleAfter <= s.TickTimeout {
		return fmt.Errorf("SCHEDULER_STALE_AFTER (%s) must exceed SCHEDULER_TICK_TIMEOUT (%s)", s.StaleAfter, s.TickTimeout)
	}
	return nil
}

func (c *Config) validateLease() error {
	if !c.Lease.Enabled {
		return nil
	}
	if c.Lease.Path == "" {
		return fmt.Errorf("LEASE_PATH is required when LEASE_ENABLED=true")
	}
	if c.Lease.TTL < time.Second {
		return fmt.Errorf("LEASE_TTL must be at least 1s")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if !validEventBackends[c.Events.Backend] {
		return fmt.Errorf("EVENTS_BACKEND must be one of: gochannel, nats")
	}
	if c.Events.Backend == "nats" {
		if err := validateNATSURL(c.Events.NATSURL); err != nil {
			return fmt.Errorf("NATS_URL is invalid: %w", err)
		}
	}
	return nil
}

func (c *Config) validateProviders() error {
	if err := validateHTTPURL(c.Providers.GatewayURL, "PROVIDER_GATEWAY_URL"); err != nil {
		return err
	}
	if c.Providers.RequestsPerSecond <= 0 {
		return fmt.Errorf("PROVIDER_REQUESTS_PER_SECOND must be positive")
	}
	if c.Providers.Burst < 1 {
		return fmt.Errorf("PROVIDER_BURST must be at least 1")
	}
	for _, p := range c.Providers.Enabled {
		if !knownProviders[p] {
			return fmt.Errorf("PROVIDERS_ENABLED contains unknown provider %q", p)
		}
	}
	for p := range c.Providers.Overrides {
		if !knownProviders[p] {
			return fmt.Errorf("providers.overrides contains unknown provider %q", p)
		}
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.RateLimitReqs < 1 || c.API.RateLimitReqs > 100000 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between 1 and 100000")
	}
	if c.API.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("API_DEFAULT_PAGE_SIZE must be between 1 and API_MAX_PAGE_SIZE")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL validates that a URL is properly formatted for HTTP/HTTPS services.
// Only a base URL is accepted; paths and query strings are rejected.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, parsedURL.Path)
	}

	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}

	return nil
}

// validateNATSURL accepts nats://, tls://, ws:// and wss:// URLs with a host.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}

	return nil
}
