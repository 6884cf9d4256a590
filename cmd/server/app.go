// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tomtom215/vitalsync/internal/api"
	"github.com/tomtom215/vitalsync/internal/config"
	"github.com/tomtom215/vitalsync/internal/database"
	"github.com/tomtom215/vitalsync/internal/events"
	"github.com/tomtom215/vitalsync/internal/health"
	"github.com/tomtom215/vitalsync/internal/lease"
	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/normalize"
	"github.com/tomtom215/vitalsync/internal/providers"
	"github.com/tomtom215/vitalsync/internal/queue"
	"github.com/tomtom215/vitalsync/internal/rotation"
	"github.com/tomtom215/vitalsync/internal/supervisor"
	"github.com/tomtom215/vitalsync/internal/supervisor/services"
)

// app holds the long-lived components built at startup.
type app struct {
	cfg       *config.Config
	db        *database.DB
	leases    *lease.BadgerLocker
	transport *events.Transport
	processor *queue.Processor
	scheduler *queue.Scheduler
	server    *http.Server
}

// buildApp constructs every component. On error, anything already opened
// is closed before returning.
func buildApp(cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.db, err = database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	logging.Info().Msg("Database initialized")

	var locker lease.Locker = lease.NewMemoryLocker()
	if cfg.Lease.Enabled {
		a.leases, err = lease.OpenBadger(lease.BadgerConfig{Path: cfg.Lease.Path})
		if err != nil {
			return nil, fmt.Errorf("lease store: %w", err)
		}
		locker = a.leases
		logging.Info().Str("path", cfg.Lease.Path).Msg("Lease store opened")
	}

	if cfg.Events.Enabled {
		a.transport, err = events.Open(cfg.Events)
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		logging.Info().Str("backend", cfg.Events.Backend).Msg("Event transport opened")
	}

	ingestor := providers.NewIngestor(normalize.New(enabledMappers(cfg.Providers.Enabled)), a.db)
	fetcher := providers.NewHTTPFetcher(cfg.Providers.GatewayURL, cfg.Providers.Timeout)

	a.processor = queue.NewProcessor(
		a.db,
		providers.NewFetchSyncer(fetcher, ingestor),
		health.NewTracker(a.db),
		rotation.NewPolicy(),
		queue.NewProviderGuard(cfg.Providers.RateFor),
		queue.Config{
			BatchSize:          cfg.Scheduler.BatchSize,
			MaxConcurrency:     cfg.Scheduler.MaxConcurrency,
			SyncTimeout:        cfg.Scheduler.SyncTimeout,
			LookbackDays:       cfg.Scheduler.LookbackDays,
			ExclusivityBackoff: cfg.Scheduler.ExclusivityBackoff,
			RunTimeout:         cfg.Scheduler.TickTimeout,
			LeaseTTL:           cfg.Lease.TTL,
			LeaseHolder:        leaseHolder(cfg.Lease.Holder),
		},
	)
	a.processor.SetLocker(locker)
	if a.transport != nil {
		a.processor.SetEventPublisher(a.transport.Publisher)
	}

	a.scheduler = queue.NewScheduler(a.processor, queue.SchedulerConfig{
		Enabled:      cfg.Scheduler.Enabled,
		TickInterval: cfg.Scheduler.TickInterval,
		TickTimeout:  cfg.Scheduler.TickTimeout,
		StaleAfter:   cfg.Scheduler.StaleAfter,
	})

	handler := api.NewHandler(a.processor, ingestor, a.db, api.HandlerConfig{
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
	})
	mw := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.API.CORSOrigins,
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.API.RateLimitReqs,
		RateLimitWindow:    cfg.API.RateLimitWindow,
	})

	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           api.NewRouter(handler, mw).Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	return a, nil
}

// register adds the app's services to the supervisor tree.
func (a *app) register(tree *supervisor.SupervisorTree) {
	tree.AddDataService(services.NewCheckpointService(a.db, 0))
	if a.leases != nil {
		tree.AddDataService(a.leases)
	}
	tree.AddMessagingService(services.NewSchedulerService(a.scheduler))
	tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.Server.ShutdownTimeout))
}

// close releases resources in reverse order of creation.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.processor != nil {
		if err := a.processor.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error stopping queue processor")
		}
	}
	if a.transport != nil {
		if err := a.transport.Close(ctx); err != nil {
			logging.Error().Err(err).Msg("Error closing event transport")
		}
	}
	if a.leases != nil {
		if err := a.leases.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing lease store")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
}

// enabledMappers restricts the normalizer to the configured providers.
// An empty list enables all of them.
func enabledMappers(enabled []string) map[models.Provider]normalize.Mapper {
	all := normalize.DefaultMappers()
	if len(enabled) == 0 {
		return all
	}
	out := make(map[models.Provider]normalize.Mapper, len(enabled))
	for _, name := range enabled {
		p := models.Provider(name)
		if m, ok := all[p]; ok {
			out[p] = m
		}
	}
	return out
}

func leaseHolder(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return ""
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
