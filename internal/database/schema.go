// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// Timestamps are stored in UTC. JSON-valued columns are TEXT so the json
// extension is never loaded. sync_jobs has no secondary indexes because
// DuckDB rejects updates to indexed columns within a transaction that
// also reads them.
var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS sync_jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		sync_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		scheduled_for TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		result TEXT,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS provider_accounts (
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		last_sync_at TIMESTAMP,
		PRIMARY KEY (user_id, provider)
	)`,

	`CREATE TABLE IF NOT EXISTS rotation_configs (
		user_id TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL,
		rotation_interval TEXT NOT NULL,
		custom_interval_minutes INTEGER NOT NULL DEFAULT 0,
		priority_order TEXT NOT NULL DEFAULT '[]',
		failover_enabled BOOLEAN NOT NULL DEFAULT false,
		max_retry_attempts INTEGER NOT NULL DEFAULT 0,
		retry_delay_minutes INTEGER NOT NULL DEFAULT 0,
		quiet_start TEXT,
		quiet_end TEXT,
		timezone TEXT,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS connection_health (
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		total_syncs BIGINT NOT NULL,
		successful_syncs BIGINT NOT NULL,
		failed_syncs BIGINT NOT NULL,
		health_score DOUBLE NOT NULL,
		uptime_percentage DOUBLE NOT NULL,
		last_success_at TIMESTAMP,
		last_failure_at TIMESTAMP,
		avg_duration_ms DOUBLE NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, provider)
	)`,

	`CREATE TABLE IF NOT EXISTS health_metrics (
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		value DOUBLE NOT NULL,
		unit TEXT NOT NULL,
		sampling_rate TEXT,
		data_source TEXT,
		activity_context TEXT,
		tags TEXT,
		PRIMARY KEY (user_id, provider, metric_type, start_time)
	)`,
}
