// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package main is the entry point for the VitalSync server.
//
// VitalSync pulls health data from wearable providers (Fitbit, Oura, Dexcom,
// Withings, Garmin, Apple Health), normalizes it into one metric model and
// stores it in DuckDB. A rotation scheduler decides when each user's
// providers are synced, and a sync queue executes those jobs with retries,
// failover and per-provider circuit breakers.
//
// # Startup Order
//
//  1. Configuration (Koanf v2: defaults, config.yaml, environment)
//  2. Logging
//  3. DuckDB
//  4. Tick lease store (BadgerDB, or in-process when disabled)
//  5. Event transport (Watermill gochannel or NATS)
//  6. Sync pipeline: normalizer, ingestor, fetcher, health tracker,
//     rotation policy, provider guard, queue processor
//  7. Rotation scheduler
//  8. HTTP API
//  9. Supervisor tree
//
// # Build Tags
//
//	go build ./cmd/server                 # gochannel events only
//	go build -tags nats ./cmd/server      # adds the NATS backend
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
// in-flight requests, the scheduler finishes its current tick and the
// database is checkpointed before it is closed.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/vitalsync/internal/config"
	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/supervisor"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("gateway_url", cfg.Providers.GatewayURL).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Bool("events_enabled", cfg.Events.Enabled).
		Msg("Starting VitalSync")

	app, err := buildApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer app.close()

	treeLogger := slog.New(logging.NewSlogHandlerWithLogger(logging.WithComponent("supervisor")))
	tree, err := supervisor.NewSupervisorTree(treeLogger, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return
	}
	app.register(tree)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", app.server.Addr).
		Msg("Supervisor tree starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree stopped unexpectedly")
	}

	if report, err := tree.UnstoppedServiceReport(); err != nil {
		logging.Warn().Err(err).Msg("Could not build unstopped service report")
	} else if len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop before timeout")
		}
	}

	logging.Info().Msg("VitalSync stopped")
}
