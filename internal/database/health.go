// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/vitalsync/internal/models"
)

const healthColumns = `user_id, provider, total_syncs, successful_syncs, failed_syncs,
	health_score, uptime_percentage, last_success_at, last_failure_at, avg_duration_ms, updated_at`

func scanHealth(row rowScanner) (*models.ConnectionHealthMetric, error) {
	var (
		m                        models.ConnectionHealthMetric
		provider                 string
		lastSuccess, lastFailure sql.NullTime
		updatedAt                time.Time
	)
	if err := row.Scan(&m.UserID, &provider, &m.TotalSyncs, &m.SuccessfulSyncs, &m.FailedSyncs,
		&m.HealthScore, &m.UptimePercentage, &lastSuccess, &lastFailure, &m.AvgDurationMS, &updatedAt); err != nil {
		return nil, err
	}
	m.Provider = models.Provider(provider)
	m.LastSuccessAt = timePtr(lastSuccess)
	m.LastFailureAt = timePtr(lastFailure)
	m.UpdatedAt = updatedAt.UTC()
	return &m, nil
}

// GetHealthMetric implements health.Store.
func (db *DB) GetHealthMetric(ctx context.Context, userID string, provider models.Provider) (m *models.ConnectionHealthMetric, err error) {
	start := time.Now()
	defer func() { observe("select", "connection_health", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	m, err = scanHealth(db.conn.QueryRowContext(ctx, `SELECT `+healthColumns+`
		FROM connection_health WHERE user_id = ? AND provider = ?`, userID, string(provider)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get health %s/%s: %w", userID, provider, err)
	}
	return m, nil
}

// UpsertHealthMetric implements health.Store.
func (db *DB) UpsertHealthMetric(ctx context.Context, m *models.ConnectionHealthMetric) (err error) {
	start := time.Now()
	defer func() { observe("upsert", "connection_health", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err = db.conn.ExecContext(ctx, `INSERT INTO connection_health (`+healthColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			total_syncs = excluded.total_syncs,
			successful_syncs = excluded.successful_syncs,
			failed_syncs = excluded.failed_syncs,
			health_score = excluded.health_score,
			uptime_percentage = excluded.uptime_percentage,
			last_success_at = excluded.last_success_at,
			last_failure_at = excluded.last_failure_at,
			avg_duration_ms = excluded.avg_duration_ms,
			updated_at = excluded.updated_at`,
		m.UserID, string(m.Provider), m.TotalSyncs, m.SuccessfulSyncs, m.FailedSyncs,
		m.HealthScore, m.UptimePercentage, nullTime(m.LastSuccessAt), nullTime(m.LastFailureAt),
		m.AvgDurationMS, m.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert health %s/%s: %w", m.UserID, m.Provider, err)
	}
	return nil
}

// ListHealthMetrics implements health.Store.
func (db *DB) ListHealthMetrics(ctx context.Context, userID string, provider models.Provider) (out []models.ConnectionHealthMetric, err error) {
	start := time.Now()
	defer func() { observe("select", "connection_health", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + healthColumns + ` FROM connection_health WHERE user_id = ?`
	args := []any{userID}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, string(provider))
	}
	query += " ORDER BY provider"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list health for %s: %w", userID, err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		m, scanErr := scanHealth(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan health: %w", scanErr)
		}
		out = append(out, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health: %w", err)
	}
	return out, nil
}
