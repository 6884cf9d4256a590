// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/metrics"
)

// SchedulerConfig holds configuration for the rotation scheduler.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler runs (default: 1 minute)
	TickInterval time.Duration

	// TickTimeout bounds one tick, including every sync it runs.
	TickTimeout time.Duration

	// StaleAfter is how long a job may stay processing before a tick
	// returns it to pending.
	StaleAfter time.Duration

	// Enabled controls whether ticks run at all.
	Enabled bool
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval: time.Minute,
		TickTimeout:  30 * time.Minute,
		StaleAfter:   45 * time.Minute,
		Enabled:      true,
	}
}

// Scheduler drives the processor on a fixed interval. Each tick recovers
// stale jobs, schedules every rotation user's due providers, then drains
// the queue.
type Scheduler struct {
	processor *Processor
	logger    zerolog.Logger
	config    SchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a new rotation scheduler.
func NewScheduler(processor *Processor, config SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = defaults.TickTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}

	return &Scheduler{
		processor: processor,
		logger:    logging.WithComponent("sync-scheduler"),
		config:    config,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info().Msg("Sync scheduler disabled")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	s.logger.Info().
		Dur("tick_interval", s.config.TickInterval).
		Dur("stale_after", s.config.StaleAfter).
		Msg("Starting sync scheduler")

	go s.run(ctx)
	return nil
}

// Stop stops the scheduler loop and waits for the current tick to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping sync scheduler...")
	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Sync scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one scheduling pass. Failures are logged and never stop the loop.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.RecordTick(time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, s.config.TickTimeout)
	defer cancel()

	ctx = logging.ContextWithLogger(ctx, s.logger)
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := logging.Ctx(ctx)

	if _, err := s.processor.RecoverStale(ctx, s.config.StaleAfter); err != nil {
		logger.Error().Err(err).Msg("Failed to recover stale jobs")
	}

	users, err := s.processor.RotationUsers(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list rotation users")
	}
	scheduled := 0
	for _, userID := range users {
		ids, err := s.processor.ScheduleNextRotation(ctx, userID)
		if err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("Failed to schedule rotation")
			continue
		}
		scheduled += len(ids)
	}

	res, err := s.processor.ProcessQueue(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Queue run failed")
		return
	}

	logger.Debug().
		Int("users", len(users)).
		Int("scheduled", scheduled).
		Int("processed", res.Processed).
		Int("failed", res.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduler tick finished")
}
