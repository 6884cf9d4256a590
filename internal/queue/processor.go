// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package queue implements the durable sync queue and the processor that
// drains it.
//
// A job moves pending -> processing -> completed|failed. The processor
// claims due jobs in priority order, runs each provider sync under a rate
// limiter, a circuit breaker and a timeout, feeds the outcome to the
// health tracker, and asks the rotation policy for a retry when a job
// fails. At most one job per (user, provider) is processing at any time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/vitalsync/internal/health"
	"github.com/tomtom215/vitalsync/internal/lease"
	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/metrics"
	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/rotation"
	"github.com/tomtom215/vitalsync/internal/validation"
)

const (
	// DefaultManualPriority is used for manual jobs enqueued without a priority.
	DefaultManualPriority = 0

	// DefaultPriority is used for every other job type enqueued without a priority.
	DefaultPriority = 5

	// TickLeaseName is the lease held for the length of a ProcessQueue run.
	TickLeaseName = "sync-queue-tick"
)

// Config holds processor tuning.
type Config struct {
	// BatchSize is the maximum number of jobs claimed per ProcessQueue call.
	BatchSize int

	// MaxConcurrency bounds the number of syncs running at once.
	MaxConcurrency int

	// SyncTimeout bounds a single provider sync. A timeout is a failure.
	SyncTimeout time.Duration

	// LookbackDays is passed to the Syncer.
	LookbackDays int

	// ExclusivityBackoff delays a job that found its pair already processing.
	ExclusivityBackoff time.Duration

	// RunTimeout bounds one ProcessQueue run. The run is detached from the
	// callers that started or joined it. Defaults to MinRunTimeout plus a
	// minute.
	RunTimeout time.Duration

	// LeaseTTL and LeaseHolder configure the tick lease.
	LeaseTTL    time.Duration
	LeaseHolder string
}

// bookkeepingTimeout bounds the store writes that record a job's outcome.
// They run after the sync, on a context that ignores the run's cancellation.
const bookkeepingTimeout = 15 * time.Second

// MinRunTimeout is the longest a run can take when every claimed job hits
// the sync timeout: ceil(batchSize/maxConcurrency) waves of syncTimeout.
func MinRunTimeout(batchSize, maxConcurrency int, syncTimeout time.Duration) time.Duration {
	if batchSize < 1 || maxConcurrency < 1 {
		return syncTimeout
	}
	waves := (batchSize + maxConcurrency - 1) / maxConcurrency
	return time.Duration(waves) * syncTimeout
}

// DefaultConfig returns the default processor configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:          50,
		MaxConcurrency:     4,
		SyncTimeout:        2 * time.Minute,
		LookbackDays:       7,
		ExclusivityBackoff: 5 * time.Minute,
		LeaseTTL:           2 * time.Minute,
	}
}

// Processor drains the sync queue.
type Processor struct {
	store   Store
	syncer  Syncer
	tracker *health.Tracker
	policy  *rotation.Policy
	guard   *ProviderGuard
	config  Config

	locker    lease.Locker
	publisher EventPublisher

	group     singleflight.Group
	pairLocks sync.Map // pair key -> *sync.Mutex
	logger    zerolog.Logger
	now       func() time.Time

	// base is canceled by Shutdown. Every run derives from it.
	base     context.Context
	stopRuns context.CancelFunc
	runMu    sync.Mutex
	stopped  bool
	runs     sync.WaitGroup
}

// NewProcessor creates a Processor. A nil guard gets one without rate limits.
func NewProcessor(store Store, syncer Syncer, tracker *health.Tracker, policy *rotation.Policy, guard *ProviderGuard, config Config) *Processor {
	defaults := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = defaults.SyncTimeout
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = defaults.LookbackDays
	}
	if config.ExclusivityBackoff <= 0 {
		config.ExclusivityBackoff = defaults.ExclusivityBackoff
	}
	if minRun := MinRunTimeout(config.BatchSize, config.MaxConcurrency, config.SyncTimeout); config.RunTimeout < minRun {
		config.RunTimeout = minRun + time.Minute
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = defaults.LeaseTTL
	}
	if config.LeaseHolder == "" {
		config.LeaseHolder = uuid.NewString()
	}
	if guard == nil {
		guard = NewProviderGuard(nil)
	}

	base, stop := context.WithCancel(context.Background())
	return &Processor{
		store:    store,
		syncer:   syncer,
		tracker:  tracker,
		policy:   policy,
		guard:    guard,
		config:   config,
		logger:   logging.WithComponent("sync-queue"),
		now:      time.Now,
		base:     base,
		stopRuns: stop,
	}
}

// Shutdown cancels the in-flight run and waits for its bookkeeping to
// finish. Jobs that had not started are returned to pending; running syncs
// are interrupted and returned to pending as well. Later ProcessQueue calls
// fail with ErrProcessorStopped.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.runMu.Lock()
	p.stopped = true
	p.runMu.Unlock()
	p.stopRuns()

	done := make(chan struct{})
	go func() {
		p.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for queue run: %w", ctx.Err())
	}
}

// SetLocker sets the lease held for each run. The lease is renewed every
// half TTL while the run lasts. Without one, only callers sharing this
// Processor are deduplicated.
func (p *Processor) SetLocker(l lease.Locker) {
	p.locker = l
}

// SetEventPublisher sets the publisher for job outcome events.
func (p *Processor) SetEventPublisher(pub EventPublisher) {
	p.publisher = pub
}

// enqueueRequest carries EnqueueSync input through the validator.
type enqueueRequest struct {
	UserID   string          `validate:"required,max=128"`
	Provider models.Provider `validate:"required,provider"`
	SyncType models.SyncType `validate:"required,synctype"`
	Priority int             `validate:"min=0,max=100"`
}

// EnqueueSync adds a pending job due now and returns its ID.
// A nil priority defaults to DefaultManualPriority for manual jobs and
// DefaultPriority otherwise.
func (p *Processor) EnqueueSync(ctx context.Context, userID string, provider models.Provider, syncType models.SyncType, priority *int) (string, error) {
	if !provider.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}

	prio := DefaultPriority
	if syncType == models.SyncTypeManual {
		prio = DefaultManualPriority
	}
	if priority != nil {
		prio = *priority
	}

	req := enqueueRequest{UserID: userID, Provider: provider, SyncType: syncType, Priority: prio}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return "", verr
	}

	now := p.now()
	job := &models.SyncJob{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		SyncType:     syncType,
		Priority:     prio,
		Status:       models.JobStatusPending,
		ScheduledFor: now,
		CreatedAt:    now,
	}
	if err := p.store.EnqueueJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue sync job: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("provider", string(provider)).
		Str("sync_type", string(syncType)).
		Int("priority", prio).
		Msg("Enqueued sync job")

	return job.ID, nil
}

// ProcessQueue claims and executes due jobs. Concurrent calls in this
// process share one run. The run is detached from ctx: a caller whose ctx
// ends gets ctx.Err() while the run finishes under RunTimeout. When another
// holder has the tick lease the result is empty and the error nil.
func (p *Processor) ProcessQueue(ctx context.Context) (models.ProcessResult, error) {
	ch := p.group.DoChan("process-queue", func() (interface{}, error) {
		p.runMu.Lock()
		if p.stopped {
			p.runMu.Unlock()
			return models.ProcessResult{}, ErrProcessorStopped
		}
		p.runs.Add(1)
		p.runMu.Unlock()
		defer p.runs.Done()

		// Keeps ctx's logger and correlation id, drops its cancellation.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.RunTimeout)
		defer cancel()
		stop := context.AfterFunc(p.base, cancel)
		defer stop()

		return p.processOnce(runCtx)
	})

	select {
	case r := <-ch:
		if r.Shared {
			p.logger.Debug().Msg("Joined in-flight queue run")
		}
		res, _ := r.Val.(models.ProcessResult)
		return res, r.Err
	case <-ctx.Done():
		return models.ProcessResult{}, ctx.Err()
	}
}

// bookkeeping returns a context for recording an outcome. It survives the
// cancellation of ctx so a job is never left processing.
func bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// release returns a claimed job that never ran to pending, keeping its
// original due time.
func (p *Processor) release(ctx context.Context, job *models.SyncJob, reason string) {
	bctx, cancel := bookkeeping(ctx)
	defer cancel()

	logger := logging.Ctx(ctx).With().Str("job_id", job.ID).Str("reason", reason).Logger()
	if err := p.store.RescheduleJob(bctx, job.ID, job.ScheduledFor); err != nil {
		logger.Error().Err(err).Msg("Failed to release job")
		return
	}
	metrics.SyncJobsReleased.Inc()
	logger.Info().Msg("Released job back to pending")
}

func (p *Processor) processOnce(ctx context.Context) (models.ProcessResult, error) {
	start := p.now()
	var result models.ProcessResult

	if p.locker != nil {
		ok, err := p.locker.Acquire(ctx, TickLeaseName, p.config.LeaseHolder, p.config.LeaseTTL)
		if err != nil {
			metrics.RecordLease("error")
			return result, fmt.Errorf("acquire queue lease: %w", err)
		}
		if !ok {
			metrics.RecordLease("held")
			logging.Ctx(ctx).Debug().Err(ErrLeaseHeld).Msg("Skipping queue run")
			return result, nil
		}
		metrics.RecordLease("acquired")
		defer p.releaseLease()
		defer p.renewLease(ctx)()
	}

	jobs, err := p.store.ClaimDueJobs(ctx, start, p.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("claim due jobs: %w", err)
	}
	metrics.SyncQueueClaimed.Observe(float64(len(jobs)))

	if len(jobs) == 0 {
		result.DurationMS = p.now().Sub(start).Milliseconds()
		return result, nil
	}

	var processed, successful, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(p.config.MaxConcurrency)

	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			switch p.runJob(ctx, &job) {
			case outcomeSucceeded:
				processed.Add(1)
				successful.Add(1)
			case outcomeFailed:
				processed.Add(1)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Processed = int(processed.Load())
	result.Successful = int(successful.Load())
	result.Failed = int(failed.Load())
	result.DurationMS = p.now().Sub(start).Milliseconds()

	logging.Ctx(ctx).Info().
		Int("claimed", len(jobs)).
		Int("processed", result.Processed).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int64("duration_ms", result.DurationMS).
		Msg("Processed sync queue")

	return result, nil
}

// renewLease re-acquires the tick lease every half TTL until the returned
// stop func is called.
func (p *Processor) renewLease(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(p.config.LeaseTTL/2, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			ok, err := p.locker.Acquire(ctx, TickLeaseName, p.config.LeaseHolder, p.config.LeaseTTL)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				metrics.RecordLease("error")
				p.logger.Warn().Err(err).Msg("Failed to renew queue lease")
			case !ok:
				metrics.RecordLease("lost")
				p.logger.Warn().Str("lease", TickLeaseName).Msg("Queue lease taken by another holder")
			default:
				metrics.RecordLease("renewed")
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Processor) releaseLease() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.locker.Release(ctx, TickLeaseName, p.config.LeaseHolder); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to release queue lease")
	}
}

type jobOutcome int

const (
	outcomeSkipped jobOutcome = iota
	outcomeSucceeded
	outcomeFailed
)

// runJob executes one claimed job. A panic fails the job without
// affecting the rest of the batch.
func (p *Processor) runJob(ctx context.Context, job *models.SyncJob) (outcome jobOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("job_id", job.ID).
				Interface("panic", r).
				Msg("Sync job panicked")
			p.finish(ctx, job, nil, fmt.Errorf("panic: %v", r), 0)
			outcome = outcomeFailed
		}
	}()

	if ctx.Err() != nil {
		p.release(ctx, job, "queue run ended before start")
		return outcomeSkipped
	}

	mu := p.acquirePairLock(job.UserID, job.Provider)
	defer mu.Unlock()

	logger := logging.Ctx(ctx).With().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("provider", string(job.Provider)).
		Logger()

	busy, err := p.store.HasProcessing(ctx, job.UserID, job.Provider, job.ID)
	if err != nil || busy {
		metrics.SyncExclusivitySkips.Inc()
		next := p.now().Add(p.config.ExclusivityBackoff)
		logger.Warn().Err(err).
			Time("scheduled_for", next).
			Msg("Provider already syncing for user, rescheduling job")
		bctx, cancel := bookkeeping(ctx)
		defer cancel()
		if rerr := p.store.RescheduleJob(bctx, job.ID, next); rerr != nil {
			logger.Error().Err(rerr).Msg("Failed to reschedule job")
		}
		return outcomeSkipped
	}

	started := p.now()
	called := false
	res, syncErr := p.guard.Execute(ctx, job.Provider, func() (*models.SyncResult, error) {
		called = true
		syncCtx, cancel := context.WithTimeout(ctx, p.config.SyncTimeout)
		defer cancel()

		r, err := p.syncer.Sync(syncCtx, job.UserID, job.Provider, p.config.LookbackDays)
		if err == nil && syncCtx.Err() != nil {
			err = syncCtx.Err()
		}
		switch {
		case ctx.Err() != nil:
			// The run ended, not the provider. Neutral for the breaker.
			return r, errRunInterrupted
		case errors.Is(err, context.DeadlineExceeded):
			return r, NewRetryableError(fmt.Sprintf("sync timed out after %s", p.config.SyncTimeout), err)
		}
		if err == nil && r != nil && !r.Success {
			msg := r.Error
			if msg == "" {
				msg = "provider reported failure"
			}
			return r, NewRetryableError(msg, nil)
		}
		return r, err
	})
	duration := p.now().Sub(started)

	if errors.Is(syncErr, errRunInterrupted) || (!called && ctx.Err() != nil) {
		p.release(ctx, job, "queue run ended during sync")
		return outcomeSkipped
	}

	p.finish(ctx, job, res, syncErr, duration)
	if syncErr != nil {
		return outcomeFailed
	}
	return outcomeSucceeded
}

// finish records the outcome of an executed job. The writes outlive ctx.
func (p *Processor) finish(ctx context.Context, job *models.SyncJob, res *models.SyncResult, syncErr error, duration time.Duration) {
	ctx, cancel := bookkeeping(ctx)
	defer cancel()

	logger := logging.Ctx(ctx).With().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("provider", string(job.Provider)).
		Logger()

	result := models.SyncResult{}
	if res != nil {
		result = *res
	}
	result.Success = syncErr == nil
	result.DurationMS = duration.Milliseconds()

	status := models.JobStatusCompleted
	errMsg := ""
	if syncErr != nil {
		status = models.JobStatusFailed
		errMsg = syncErr.Error()
		result.Error = errMsg
	}

	completedAt := p.now()
	if err := p.store.CompleteJob(ctx, job.ID, status, &result, errMsg, completedAt); err != nil {
		logger.Error().Err(err).Str("status", string(status)).Msg("Failed to complete job")
	}
	job.Status = status
	job.CompletedAt = &completedAt
	job.ErrorMessage = errMsg
	job.Result = &result

	metrics.RecordSyncJob(string(job.Provider), syncErr == nil, duration)
	p.tracker.RecordOutcome(ctx, job.UserID, job.Provider, syncErr == nil, duration)

	if syncErr == nil {
		if err := p.store.UpdateLastSync(ctx, job.UserID, job.Provider, completedAt); err != nil {
			logger.Error().Err(err).Msg("Failed to update last sync time")
		}
		logger.Info().
			Int("metrics_synced", result.MetricsSynced).
			Int("metrics_dropped", result.MetricsDropped).
			Int64("duration_ms", result.DurationMS).
			Msg("Sync job completed")
	} else {
		logger.Warn().Err(syncErr).
			Str("error_category", Category(syncErr).String()).
			Int("retry_count", job.RetryCount).
			Msg("Sync job failed")
		p.handleFailure(ctx, job, syncErr)
	}

	p.publish(ctx, job)
}

// handleFailure schedules a retry for a transient failure, or marks the
// account revoked for a credential failure.
func (p *Processor) handleFailure(ctx context.Context, job *models.SyncJob, syncErr error) {
	logger := logging.Ctx(ctx).With().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("provider", string(job.Provider)).
		Logger()

	if IsPermanentError(syncErr) {
		if errors.Is(syncErr, ErrCredentialsRevoked) {
			if err := p.store.SetAccountStatus(ctx, job.UserID, job.Provider, models.AccountStatusRevoked); err != nil {
				logger.Error().Err(err).Msg("Failed to mark account revoked")
			} else {
				logger.Warn().Msg("Provider credentials revoked, account disabled")
			}
		}
		logger.Info().Msg("Permanent sync failure, not retrying")
		return
	}

	cfg, err := p.store.RotationConfig(ctx, job.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load rotation config for retry")
		return
	}

	retry := p.policy.Failover(job, cfg, p.now())
	if retry == nil {
		return
	}
	retry.ID = uuid.NewString()
	retry.CreatedAt = p.now()

	if err := p.store.EnqueueJob(ctx, retry); err != nil {
		logger.Error().Err(err).Msg("Failed to enqueue retry job")
		return
	}
	metrics.SyncRetriesScheduled.WithLabelValues(string(job.Provider)).Inc()
	logger.Info().
		Str("retry_job_id", retry.ID).
		Int("retry_count", retry.RetryCount).
		Time("scheduled_for", retry.ScheduledFor).
		Msg("Scheduled retry")
}

func (p *Processor) publish(ctx context.Context, job *models.SyncJob) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishSyncOutcome(ctx, job); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish sync outcome")
	}
}

// ScheduleNextRotation enqueues the user's due scheduled jobs and returns
// their IDs. A provider that already has a pending scheduled job is
// skipped. It returns nil when nothing is due.
func (p *Processor) ScheduleNextRotation(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("schedule rotation: user id is required")
	}

	cfg, err := p.store.RotationConfig(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load rotation config: %w", err)
	}
	accounts, err := p.store.ActiveAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load provider accounts: %w", err)
	}
	healthMetrics, err := p.tracker.Get(ctx, userID, "")
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Scheduling without health metrics")
		healthMetrics = nil
	}

	now := p.now()
	due := p.policy.DueJobs(cfg, accounts, healthMetrics, now)
	if len(due) == 0 {
		return nil, nil
	}

	pending, err := p.store.ListJobs(ctx, models.JobFilter{UserID: userID, Status: models.JobStatusPending})
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	alreadyScheduled := make(map[models.Provider]bool)
	for _, j := range pending {
		if j.SyncType == models.SyncTypeScheduled {
			alreadyScheduled[j.Provider] = true
		}
	}

	var ids []string
	for i := range due {
		job := due[i]
		if alreadyScheduled[job.Provider] {
			continue
		}
		job.ID = uuid.NewString()
		job.CreatedAt = now
		if err := p.store.EnqueueJob(ctx, &job); err != nil {
			return ids, fmt.Errorf("enqueue scheduled job for %s: %w", job.Provider, err)
		}
		ids = append(ids, job.ID)
	}

	if len(ids) > 0 {
		logging.Ctx(ctx).Info().
			Str("user_id", userID).
			Int("jobs", len(ids)).
			Msg("Scheduled rotation jobs")
	}
	return ids, nil
}

// GetHealthMetrics returns the user's connection health, optionally for one provider.
func (p *Processor) GetHealthMetrics(ctx context.Context, userID string, provider models.Provider) ([]models.ConnectionHealthMetric, error) {
	if userID == "" {
		return nil, fmt.Errorf("get health metrics: user id is required")
	}
	if provider != "" && !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, provider)
	}
	return p.tracker.Get(ctx, userID, provider)
}

// GetJob returns a job by ID.
func (p *Processor) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	return p.store.GetJob(ctx, id)
}

// ListJobs lists jobs matching filter.
func (p *Processor) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.SyncJob, error) {
	if filter.Provider != "" && !filter.Provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, filter.Provider)
	}
	return p.store.ListJobs(ctx, filter)
}

// UpdateRotationConfig validates and stores a user's rotation config.
func (p *Processor) UpdateRotationConfig(ctx context.Context, cfg *models.RotationConfig) error {
	if verr := validation.ValidateStruct(cfg); verr != nil {
		return verr
	}
	if _, err := rotation.Interval(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRotationConfig, err)
	}
	if _, err := rotation.InQuietHours(cfg, p.now()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRotationConfig, err)
	}
	cfg.UpdatedAt = p.now()
	if err := p.store.UpsertRotationConfig(ctx, cfg); err != nil {
		return fmt.Errorf("store rotation config: %w", err)
	}
	return nil
}

// RecoverStale returns jobs stuck in processing longer than staleAfter to pending.
func (p *Processor) RecoverStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	n, err := p.store.RecoverStale(ctx, p.now().Add(-staleAfter))
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}
	if n > 0 {
		metrics.SyncStaleRecovered.Add(float64(n))
		logging.Ctx(ctx).Warn().Int("jobs", n).Msg("Recovered stale processing jobs")
	}
	return n, nil
}

// RotationUsers lists users with an enabled rotation config.
func (p *Processor) RotationUsers(ctx context.Context) ([]string, error) {
	return p.store.RotationUsers(ctx)
}

// acquirePairLock returns the locked mutex for a (user, provider) pair.
func (p *Processor) acquirePairLock(userID string, provider models.Provider) *sync.Mutex {
	key := userID + "|" + string(provider)
	v, _ := p.pairLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}
