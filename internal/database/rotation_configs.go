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

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/models"
)

// RotationConfig implements queue.Store.
func (db *DB) RotationConfig(ctx context.Context, userID string) (cfg *models.RotationConfig, err error) {
	start := time.Now()
	defer func() { observe("select", "rotation_configs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var (
		c                          models.RotationConfig
		interval, order            string
		quietStart, quietEnd, zone sql.NullString
		updatedAt                  time.Time
	)
	err = db.conn.QueryRowContext(ctx, `SELECT user_id, enabled, rotation_interval, custom_interval_minutes,
			priority_order, failover_enabled, max_retry_attempts, retry_delay_minutes,
			quiet_start, quiet_end, timezone, updated_at
		FROM rotation_configs WHERE user_id = ?`, userID).Scan(
		&c.UserID, &c.Enabled, &interval, &c.CustomIntervalMinutes,
		&order, &c.FailoverEnabled, &c.MaxRetryAttempts, &c.RetryDelayMinutes,
		&quietStart, &quietEnd, &zone, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rotation config %s: %w", userID, err)
	}

	c.RotationInterval = models.RotationInterval(interval)
	if err = json.Unmarshal([]byte(order), &c.PriorityOrder); err != nil {
		return nil, fmt.Errorf("decode priority order for %s: %w", userID, err)
	}
	if quietStart.Valid && quietEnd.Valid {
		c.QuietHours = &models.QuietHours{Start: quietStart.String, End: quietEnd.String}
	}
	c.Timezone = zone.String
	c.UpdatedAt = updatedAt.UTC()
	return &c, nil
}

// UpsertRotationConfig implements queue.Store.
func (db *DB) UpsertRotationConfig(ctx context.Context, cfg *models.RotationConfig) (err error) {
	start := time.Now()
	defer func() { observe("upsert", "rotation_configs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	order := cfg.PriorityOrder
	if order == nil {
		order = []models.Provider{}
	}
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode priority order: %w", err)
	}
	var quietStart, quietEnd sql.NullString
	if cfg.QuietHours != nil {
		quietStart = sql.NullString{String: cfg.QuietHours.Start, Valid: true}
		quietEnd = sql.NullString{String: cfg.QuietHours.End, Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `INSERT INTO rotation_configs (user_id, enabled, rotation_interval,
			custom_interval_minutes, priority_order, failover_enabled, max_retry_attempts,
			retry_delay_minutes, quiet_start, quiet_end, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = excluded.enabled,
			rotation_interval = excluded.rotation_interval,
			custom_interval_minutes = excluded.custom_interval_minutes,
			priority_order = excluded.priority_order,
			failover_enabled = excluded.failover_enabled,
			max_retry_attempts = excluded.max_retry_attempts,
			retry_delay_minutes = excluded.retry_delay_minutes,
			quiet_start = excluded.quiet_start,
			quiet_end = excluded.quiet_end,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		cfg.UserID, cfg.Enabled, string(cfg.RotationInterval), cfg.CustomIntervalMinutes,
		string(orderJSON), cfg.FailoverEnabled, cfg.MaxRetryAttempts, cfg.RetryDelayMinutes,
		quietStart, quietEnd, nullString(cfg.Timezone), cfg.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert rotation config %s: %w", cfg.UserID, err)
	}
	return nil
}

// RotationUsers implements queue.Store.
func (db *DB) RotationUsers(ctx context.Context) (users []string, err error) {
	start := time.Now()
	defer func() { observe("select", "rotation_configs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT user_id FROM rotation_configs
		WHERE enabled ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list rotation users: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan rotation user: %w", err)
		}
		users = append(users, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rotation users: %w", err)
	}
	return users, nil
}
