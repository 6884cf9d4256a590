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

	"github.com/tomtom215/vitalsync/internal/models"
)

// ActiveAccounts implements queue.Store.
func (db *DB) ActiveAccounts(ctx context.Context, userID string) (accounts []models.ProviderAccount, err error) {
	start := time.Now()
	defer func() { observe("select", "provider_accounts", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT user_id, provider, status, last_sync_at
		FROM provider_accounts WHERE user_id = ? AND status = 'active'
		ORDER BY provider`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for %s: %w", userID, err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			a                models.ProviderAccount
			provider, status string
			lastSync         sql.NullTime
		)
		if err = rows.Scan(&a.UserID, &provider, &status, &lastSync); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Provider = models.Provider(provider)
		a.Status = models.AccountStatus(status)
		a.LastSyncAt = timePtr(lastSync)
		accounts = append(accounts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// UpsertAccount implements queue.Store.
func (db *DB) UpsertAccount(ctx context.Context, account *models.ProviderAccount) (err error) {
	start := time.Now()
	defer func() { observe("upsert", "provider_accounts", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err = db.conn.ExecContext(ctx, `INSERT INTO provider_accounts (user_id, provider, status, last_sync_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			status = excluded.status,
			last_sync_at = excluded.last_sync_at`,
		account.UserID, string(account.Provider), string(account.Status), nullTime(account.LastSyncAt))
	if err != nil {
		return fmt.Errorf("upsert account %s/%s: %w", account.UserID, account.Provider, err)
	}
	return nil
}

// SetAccountStatus implements queue.Store.
func (db *DB) SetAccountStatus(ctx context.Context, userID string, provider models.Provider, status models.AccountStatus) (err error) {
	start := time.Now()
	defer func() { observe("update", "provider_accounts", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `UPDATE provider_accounts SET status = ?
		WHERE user_id = ? AND provider = ?`, string(status), userID, string(provider))
	if err != nil {
		return fmt.Errorf("set account status %s/%s: %w", userID, provider, err)
	}
	return requireAccount(res, userID, provider)
}

// UpdateLastSync implements queue.Store.
func (db *DB) UpdateLastSync(ctx context.Context, userID string, provider models.Provider, at time.Time) (err error) {
	start := time.Now()
	defer func() { observe("update", "provider_accounts", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `UPDATE provider_accounts SET last_sync_at = ?
		WHERE user_id = ? AND provider = ?`, at.UTC(), userID, string(provider))
	if err != nil {
		return fmt.Errorf("update last sync %s/%s: %w", userID, provider, err)
	}
	return requireAccount(res, userID, provider)
}

func requireAccount(res sql.Result, userID string, provider models.Provider) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("account %s/%s: %w", userID, provider, err)
	}
	if n == 0 {
		return fmt.Errorf("account %s/%s not found", userID, provider)
	}
	return nil
}
