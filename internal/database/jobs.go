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
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/queue"
)

const jobColumns = `id, user_id, provider, sync_type, priority, status, scheduled_for,
	started_at, completed_at, retry_count, error_message, result, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.SyncJob, error) {
	var (
		job                   models.SyncJob
		provider, syncType    string
		status                string
		started, completed    sql.NullTime
		errMsg, resultJSON    sql.NullString
		scheduledFor, created time.Time
	)
	if err := row.Scan(&job.ID, &job.UserID, &provider, &syncType, &job.Priority, &status,
		&scheduledFor, &started, &completed, &job.RetryCount, &errMsg, &resultJSON, &created); err != nil {
		return nil, err
	}
	job.Provider = models.Provider(provider)
	job.SyncType = models.SyncType(syncType)
	job.Status = models.JobStatus(status)
	job.ScheduledFor = scheduledFor.UTC()
	job.CreatedAt = created.UTC()
	job.StartedAt = timePtr(started)
	job.CompletedAt = timePtr(completed)
	job.ErrorMessage = errMsg.String
	if resultJSON.Valid && resultJSON.String != "" {
		var r models.SyncResult
		if err := json.Unmarshal([]byte(resultJSON.String), &r); err != nil {
			return nil, fmt.Errorf("decode result for job %s: %w", job.ID, err)
		}
		job.Result = &r
	}
	return &job, nil
}

func encodeResult(r *models.SyncResult) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// EnqueueJob implements queue.Store.
func (db *DB) EnqueueJob(ctx context.Context, job *models.SyncJob) (err error) {
	start := time.Now()
	defer func() { observe("insert", "sync_jobs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	result, err := encodeResult(job.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	status := job.Status
	if status == "" {
		status = models.JobStatusPending
	}
	_, err = db.conn.ExecContext(ctx, `INSERT INTO sync_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, string(job.Provider), string(job.SyncType), job.Priority, string(status),
		job.ScheduledFor.UTC(), nullTime(job.StartedAt), nullTime(job.CompletedAt), job.RetryCount,
		nullString(job.ErrorMessage), result, job.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimDueJobs implements queue.Store. Claims are serialized in-process
// and each row update is conditional on the job still being pending.
func (db *DB) ClaimDueJobs(ctx context.Context, now time.Time, limit int) (claimed []models.SyncJob, err error) {
	start := time.Now()
	defer func() { observe("claim", "sync_jobs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		return nil, nil
	}

	db.claimMu.Lock()
	defer db.claimMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer rollbackQuietly(tx)

	rows, err := tx.QueryContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs j
		WHERE j.status = 'pending' AND j.scheduled_for <= ?
		AND NOT EXISTS (
			SELECT 1 FROM sync_jobs p
			WHERE p.status = 'processing' AND p.user_id = j.user_id AND p.provider = j.provider
		)
		ORDER BY j.priority, j.scheduled_for, j.id`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select due jobs: %w", err)
	}

	type pair struct {
		user     string
		provider models.Provider
	}
	seen := make(map[pair]bool)
	var candidates []*models.SyncJob
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("scan due job: %w", scanErr)
		}
		key := pair{job.UserID, job.Provider}
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, job)
		if len(candidates) == limit {
			break
		}
	}
	closeQuietly(rows)
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due jobs: %w", err)
	}

	startedAt := now.UTC()
	for _, job := range candidates {
		res, execErr := tx.ExecContext(ctx, `UPDATE sync_jobs SET status = 'processing', started_at = ?
			WHERE id = ? AND status = 'pending'`, startedAt, job.ID)
		if execErr != nil {
			return nil, fmt.Errorf("claim job %s: %w", job.ID, execErr)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		job.Status = models.JobStatusProcessing
		job.StartedAt = &startedAt
		claimed = append(claimed, *job)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

// CompleteJob implements queue.Store.
func (db *DB) CompleteJob(ctx context.Context, id string, status models.JobStatus, result *models.SyncResult, errMsg string, completedAt time.Time) (err error) {
	start := time.Now()
	defer func() { observe("complete", "sync_jobs", start, err) }()
	if !status.Terminal() {
		return fmt.Errorf("complete job %s: status %q is not terminal", id, status)
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	encoded, err := encodeResult(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, `UPDATE sync_jobs
		SET status = ?, result = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'processing'`,
		string(status), encoded, nullString(errMsg), completedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return db.requireTransition(ctx, res, id, "complete")
}

// RescheduleJob implements queue.Store.
func (db *DB) RescheduleJob(ctx context.Context, id string, scheduledFor time.Time) (err error) {
	start := time.Now()
	defer func() { observe("reschedule", "sync_jobs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `UPDATE sync_jobs
		SET status = 'pending', started_at = NULL, scheduled_for = ?
		WHERE id = ? AND status = 'processing'`, scheduledFor.UTC(), id)
	if err != nil {
		return fmt.Errorf("reschedule job %s: %w", id, err)
	}
	return db.requireTransition(ctx, res, id, "reschedule")
}

// requireTransition distinguishes a missing job from one in the wrong state
// when a conditional update touched no rows.
func (db *DB) requireTransition(ctx context.Context, res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s job %s: %w", op, id, err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = db.conn.QueryRowContext(ctx, `SELECT status FROM sync_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("%s job %s: %w", op, id, err)
	}
	return fmt.Errorf("%s job %s: status is %s", op, id, status)
}

// HasProcessing implements queue.Store.
func (db *DB) HasProcessing(ctx context.Context, userID string, provider models.Provider, excludeID string) (busy bool, err error) {
	start := time.Now()
	defer func() { observe("select", "sync_jobs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var n int
	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_jobs
		WHERE user_id = ? AND provider = ? AND status = 'processing' AND id <> ?`,
		userID, string(provider), excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check processing %s/%s: %w", userID, provider, err)
	}
	return n > 0, nil
}

// GetJob implements queue.Store.
func (db *DB) GetJob(ctx context.Context, id string) (job *models.SyncJob, err error) {
	start := time.Now()
	defer func() { observe("select", "sync_jobs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	job, err = scanJob(db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, queue.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs implements queue.Store.
func (db *DB) ListJobs(ctx context.Context, filter models.JobFilter) (jobs []models.SyncJob, err error) {
	start := time.Now()
	defer func() { observe("select", "sync_jobs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, string(filter.Provider))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// RecoverStale implements queue.Store.
func (db *DB) RecoverStale(ctx context.Context, olderThan time.Time) (n int, err error) {
	start := time.Now()
	defer func() { observe("recover", "sync_jobs", start, err) }()
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `UPDATE sync_jobs SET status = 'pending', started_at = NULL
		WHERE status = 'processing' AND started_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	return int(affected), nil
}
