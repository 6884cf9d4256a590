// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/models"
)

// PersistMetrics implements providers.MetricSink. A metric whose
// (user, provider, type, start time) already exists is skipped; the
// batch is written in one transaction.
func (db *DB) PersistMetrics(ctx context.Context, batch []models.UnifiedHealthMetric) (inserted int, err error) {
	start := time.Now()
	defer func() { observe("insert", "health_metrics", start, err) }()
	if len(batch) == 0 {
		return 0, nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin metrics batch: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO health_metrics (user_id, provider, metric_type,
			start_time, end_time, value, unit, sampling_rate, data_source, activity_context, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare metrics insert: %w", err)
	}
	defer closeQuietly(stmt)

	for i := range batch {
		m := &batch[i]
		var tags sql.NullString
		if len(m.Tags) > 0 {
			data, encErr := json.Marshal(m.Tags)
			if encErr != nil {
				return 0, fmt.Errorf("encode tags: %w", encErr)
			}
			tags = sql.NullString{String: string(data), Valid: true}
		}
		res, execErr := stmt.ExecContext(ctx, m.UserID, string(m.Provider), string(m.MetricType),
			m.StartTime.UTC(), nullTime(m.EndTime), m.Value, m.Unit, nullString(string(m.SamplingRate)),
			nullString(string(m.DataSource)), nullString(m.ActivityContext), tags)
		if execErr != nil {
			return 0, fmt.Errorf("insert metric %s/%s/%s: %w", m.UserID, m.Provider, m.MetricType, execErr)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted += int(n)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit metrics batch: %w", err)
	}
	return inserted, nil
}

// CountMetrics returns the number of stored metrics for a user, or for one
// provider when provider is set.
func (db *DB) CountMetrics(ctx context.Context, userID string, provider models.Provider) (n int, err error) {
	start := time.Now()
	defer func() { observe("count", "health_metrics", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	query := `SELECT COUNT(*) FROM health_metrics WHERE user_id = ?`
	args := []any{userID}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, string(provider))
	}
	if err = db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count metrics for %s: %w", userID, err)
	}
	return n, nil
}
