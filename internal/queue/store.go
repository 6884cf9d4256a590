// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package queue

import (
	"context"
	"time"

	"github.com/tomtom215/vitalsync/internal/models"
)

// Store is the durable sync queue plus the account and rotation config
// reads the processor needs.
type Store interface {
	// EnqueueJob inserts a pending job. job.ID must be set.
	EnqueueJob(ctx context.Context, job *models.SyncJob) error

	// ClaimDueJobs atomically moves up to limit due pending jobs to
	// processing, ordered by (priority, scheduled_for). It never claims a
	// job whose (user, provider) already has a processing job and claims at
	// most one job per pair per call. A limit below 1 claims nothing.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]models.SyncJob, error)

	// CompleteJob moves a processing job to completed or failed.
	CompleteJob(ctx context.Context, id string, status models.JobStatus, result *models.SyncResult, errMsg string, completedAt time.Time) error

	// RescheduleJob returns a processing job to pending at scheduledFor.
	RescheduleJob(ctx context.Context, id string, scheduledFor time.Time) error

	// HasProcessing reports whether the pair has a processing job other than excludeID.
	HasProcessing(ctx context.Context, userID string, provider models.Provider, excludeID string) (bool, error)

	// GetJob returns ErrJobNotFound for an unknown ID.
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)

	// ListJobs returns jobs newest first. A zero filter.Limit means no limit.
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.SyncJob, error)

	// RecoverStale returns jobs processing since before olderThan to pending.
	RecoverStale(ctx context.Context, olderThan time.Time) (int, error)

	ActiveAccounts(ctx context.Context, userID string) ([]models.ProviderAccount, error)
	UpsertAccount(ctx context.Context, account *models.ProviderAccount) error
	SetAccountStatus(ctx context.Context, userID string, provider models.Provider, status models.AccountStatus) error
	UpdateLastSync(ctx context.Context, userID string, provider models.Provider, at time.Time) error

	// RotationConfig returns nil, nil when the user has no config.
	RotationConfig(ctx context.Context, userID string) (*models.RotationConfig, error)
	UpsertRotationConfig(ctx context.Context, cfg *models.RotationConfig) error
	// RotationUsers lists users with an enabled rotation config.
	RotationUsers(ctx context.Context) ([]string, error)
}

// Syncer pulls and persists one provider's recent data for one user.
//
// Errors should wrap PermanentError when retrying cannot help. Any other
// error is treated as transient.
type Syncer interface {
	Sync(ctx context.Context, userID string, provider models.Provider, lookbackDays int) (*models.SyncResult, error)
}

// SyncerFunc adapts a function to Syncer.
type SyncerFunc func(ctx context.Context, userID string, provider models.Provider, lookbackDays int) (*models.SyncResult, error)

// Sync implements Syncer.
func (f SyncerFunc) Sync(ctx context.Context, userID string, provider models.Provider, lookbackDays int) (*models.SyncResult, error) {
	return f(ctx, userID, provider, lookbackDays)
}

// EventPublisher announces finished jobs. Publishing is best effort.
type EventPublisher interface {
	PublishSyncOutcome(ctx context.Context, job *models.SyncJob) error
}
