// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package rotation decides which providers are due for a sync and builds
// retry jobs for failed syncs.
//
// Policy is stateless: every decision is a function of the user's
// RotationConfig, their accounts, current health and the supplied time.
// Invalid configuration is logged and treated as nothing to do.
package rotation

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/vitalsync/internal/health"
	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/models"
)

// MaxRetryDelay caps the exponential retry delay.
const MaxRetryDelay = 24 * time.Hour

var intervalMinutes = map[models.RotationInterval]int{
	models.RotationHourly:      60,
	models.RotationEvery6Hours: 360,
	models.RotationDaily:       1440,
	models.RotationWeekly:      10080,
}

var (
	errNilConfig       = errors.New("rotation config is missing")
	errUnknownInterval = errors.New("unknown rotation interval")
	errCustomInterval  = errors.New("custom rotation interval must be positive")
)

// Policy evaluates rotation configs.
type Policy struct {
	logger zerolog.Logger
}

// NewPolicy creates a Policy.
func NewPolicy() *Policy {
	return &Policy{logger: logging.WithComponent("rotation")}
}

// Interval returns the configured cadence.
func Interval(cfg *models.RotationConfig) (time.Duration, error) {
	if cfg == nil {
		return 0, errNilConfig
	}
	if cfg.RotationInterval == models.RotationCustom {
		if cfg.CustomIntervalMinutes <= 0 {
			return 0, errCustomInterval
		}
		return time.Duration(cfg.CustomIntervalMinutes) * time.Minute, nil
	}
	minutes, ok := intervalMinutes[cfg.RotationInterval]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errUnknownInterval, cfg.RotationInterval)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// InQuietHours reports whether now falls inside the config's quiet window,
// evaluated in the config's timezone (UTC when unset). A window whose end
// is before its start wraps past midnight; equal bounds never match.
func InQuietHours(cfg *models.RotationConfig, now time.Time) (bool, error) {
	if cfg == nil || cfg.QuietHours == nil {
		return false, nil
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return false, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	start, err := clockMinutes(cfg.QuietHours.Start)
	if err != nil {
		return false, fmt.Errorf("quiet hours start: %w", err)
	}
	end, err := clockMinutes(cfg.QuietHours.End)
	if err != nil {
		return false, fmt.Errorf("quiet hours end: %w", err)
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	switch {
	case start == end:
		return false, nil
	case start < end:
		return minute >= start && minute < end, nil
	default:
		return minute >= start || minute < end, nil
	}
}

func clockMinutes(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// DueJobs returns a pending scheduled job for every active account whose
// last sync is at least one interval old. Jobs are ordered by priority.
//
// Priority is the provider's 1-based position in PriorityOrder; providers
// not listed rank after all listed ones. A provider whose health score is
// below the degraded threshold is pushed back by one.
func (p *Policy) DueJobs(cfg *models.RotationConfig, accounts []models.ProviderAccount, healthMetrics []models.ConnectionHealthMetric, now time.Time) []models.SyncJob {
	if cfg == nil {
		p.logger.Error().Err(errNilConfig).Msg("Skipping rotation: invalid configuration")
		return nil
	}
	log := p.logger.With().Str("user_id", cfg.UserID).Logger()

	if !cfg.Enabled {
		return nil
	}

	interval, err := Interval(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Skipping rotation: invalid configuration")
		return nil
	}

	quiet, err := InQuietHours(cfg, now)
	if err != nil {
		log.Error().Err(err).Msg("Skipping rotation: invalid configuration")
		return nil
	}
	if quiet {
		log.Debug().Msg("Inside quiet hours, no scheduled syncs")
		return nil
	}

	rank := make(map[models.Provider]int, len(cfg.PriorityOrder))
	for i, provider := range cfg.PriorityOrder {
		if _, seen := rank[provider]; !seen {
			rank[provider] = i + 1
		}
	}
	unranked := len(cfg.PriorityOrder) + 1

	scores := make(map[models.Provider]float64, len(healthMetrics))
	for _, hm := range healthMetrics {
		scores[hm.Provider] = hm.HealthScore
	}

	var jobs []models.SyncJob
	for _, acct := range accounts {
		if acct.Status != models.AccountStatusActive {
			continue
		}
		if acct.LastSyncAt != nil && acct.LastSyncAt.Add(interval).After(now) {
			continue
		}

		priority, ok := rank[acct.Provider]
		if !ok {
			priority = unranked
		}
		if score, ok := scores[acct.Provider]; ok && health.Degraded(score) {
			priority++
		}

		jobs = append(jobs, models.SyncJob{
			UserID:       acct.UserID,
			Provider:     acct.Provider,
			SyncType:     models.SyncTypeScheduled,
			Priority:     priority,
			Status:       models.JobStatusPending,
			ScheduledFor: now,
		})
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority < jobs[j].Priority
		}
		return jobs[i].Provider < jobs[j].Provider
	})
	return jobs
}

// Failover returns the retry job for a failed job, or nil when failover is
// disabled or the retry budget is spent. A chain of jobs therefore fails at
// most MaxRetryAttempts times.
//
// The delay is RetryDelayMinutes doubled for each earlier retry, capped at
// MaxRetryDelay.
func (p *Policy) Failover(job *models.SyncJob, cfg *models.RotationConfig, now time.Time) *models.SyncJob {
	if job == nil || cfg == nil || !cfg.FailoverEnabled {
		return nil
	}
	if job.RetryCount+1 >= cfg.MaxRetryAttempts {
		p.logger.Info().
			Str("user_id", job.UserID).
			Str("provider", string(job.Provider)).
			Int("retry_count", job.RetryCount).
			Int("max_retry_attempts", cfg.MaxRetryAttempts).
			Msg("Retry budget exhausted")
		return nil
	}

	return &models.SyncJob{
		UserID:       job.UserID,
		Provider:     job.Provider,
		SyncType:     models.SyncTypeRetry,
		Priority:     job.Priority + 1,
		Status:       models.JobStatusPending,
		ScheduledFor: now.Add(RetryDelay(cfg.RetryDelayMinutes, job.RetryCount)),
		RetryCount:   job.RetryCount + 1,
	}
}

// RetryDelay returns base minutes doubled priorRetries times, capped at MaxRetryDelay.
func RetryDelay(baseMinutes, priorRetries int) time.Duration {
	if baseMinutes <= 0 {
		return 0
	}
	delay := time.Duration(baseMinutes) * time.Minute
	for i := 0; i < priorRetries; i++ {
		delay *= 2
		if delay >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	if delay > MaxRetryDelay {
		return MaxRetryDelay
	}
	return delay
}
