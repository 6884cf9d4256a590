// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package health keeps a rolling reliability score for each connected
// (user, provider) pair.
//
// The score is an exponentially weighted success rate with a half-life of
// HalfLifeSyncs outcomes, scaled to 0-100. A pair with no history starts
// at InitialScore so that new connections are not penalised.
package health

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/metrics"
	"github.com/tomtom215/vitalsync/internal/models"
)

const (
	// HalfLifeSyncs is the number of outcomes after which an outcome's
	// weight in the score has halved.
	HalfLifeSyncs = 20

	// InitialScore is the score of a pair with no recorded outcomes.
	InitialScore = 100.0

	// DegradedThreshold is the score below which a provider is considered degraded.
	DegradedThreshold = 50.0

	minScore = 0.0
	maxScore = 100.0
)

// decayAlpha is the EWMA weight of the newest outcome.
var decayAlpha = 1 - math.Pow(2, -1.0/HalfLifeSyncs)

// Store persists connection health metrics.
type Store interface {
	// GetHealthMetric returns nil, nil when the pair has no metric yet.
	GetHealthMetric(ctx context.Context, userID string, provider models.Provider) (*models.ConnectionHealthMetric, error)
	UpsertHealthMetric(ctx context.Context, m *models.ConnectionHealthMetric) error
	// ListHealthMetrics returns all metrics for a user, or one provider's when provider is set.
	ListHealthMetrics(ctx context.Context, userID string, provider models.Provider) ([]models.ConnectionHealthMetric, error)
}

// Tracker records sync outcomes into the health store.
type Tracker struct {
	store  Store
	locks  sync.Map // pair key -> *sync.Mutex
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker backed by store.
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store:  store,
		logger: logging.WithComponent("health"),
		now:    time.Now,
	}
}

// RecordOutcome folds one sync outcome into the pair's health metric.
// Store failures are logged and counted, never returned.
func (t *Tracker) RecordOutcome(ctx context.Context, userID string, provider models.Provider, success bool, duration time.Duration) {
	mu := t.acquirePairLock(userID, provider)
	defer mu.Unlock()

	prev, err := t.store.GetHealthMetric(ctx, userID, provider)
	if err != nil {
		metrics.HealthStoreErrors.Inc()
		t.logger.Error().Err(err).
			Str("user_id", userID).
			Str("provider", string(provider)).
			Msg("Failed to load health metric")
		return
	}

	next := Apply(prev, userID, provider, success, duration, t.now())
	if err := t.store.UpsertHealthMetric(ctx, &next); err != nil {
		metrics.HealthStoreErrors.Inc()
		t.logger.Error().Err(err).
			Str("user_id", userID).
			Str("provider", string(provider)).
			Bool("success", success).
			Msg("Failed to store health metric")
		return
	}

	metrics.ProviderHealthScore.WithLabelValues(string(provider)).Set(next.HealthScore)
	t.logger.Debug().
		Str("user_id", userID).
		Str("provider", string(provider)).
		Bool("success", success).
		Float64("health_score", next.HealthScore).
		Msg("Recorded sync outcome")
}

// Get returns the user's health metrics, optionally for a single provider.
func (t *Tracker) Get(ctx context.Context, userID string, provider models.Provider) ([]models.ConnectionHealthMetric, error) {
	return t.store.ListHealthMetrics(ctx, userID, provider)
}

// Apply returns the metric that results from adding one outcome to prev.
// prev may be nil for a pair with no history.
func Apply(prev *models.ConnectionHealthMetric, userID string, provider models.Provider, success bool, duration time.Duration, now time.Time) models.ConnectionHealthMetric {
	m := models.ConnectionHealthMetric{
		UserID:      userID,
		Provider:    provider,
		HealthScore: InitialScore,
	}
	if prev != nil {
		m = *prev
	}

	m.TotalSyncs++
	observation := 0.0
	if success {
		m.SuccessfulSyncs++
		observation = maxScore
		ts := now
		m.LastSuccessAt = &ts
	} else {
		m.FailedSyncs++
		ts := now
		m.LastFailureAt = &ts
	}

	m.HealthScore = clamp((1-decayAlpha)*m.HealthScore + decayAlpha*observation)
	m.UptimePercentage = float64(m.SuccessfulSyncs) / float64(m.TotalSyncs) * 100

	ms := float64(duration.Milliseconds())
	if m.TotalSyncs == 1 {
		m.AvgDurationMS = ms
	} else {
		m.AvgDurationMS = (1-decayAlpha)*m.AvgDurationMS + decayAlpha*ms
	}

	m.UpdatedAt = now
	return m
}

// Degraded reports whether a score is below DegradedThreshold.
func Degraded(score float64) bool {
	return score < DegradedThreshold
}

func clamp(score float64) float64 {
	if math.IsNaN(score) {
		return minScore
	}
	return math.Max(minScore, math.Min(maxScore, score))
}

// acquirePairLock returns the locked mutex for a (user, provider) pair.
func (t *Tracker) acquirePairLock(userID string, provider models.Provider) *sync.Mutex {
	key := userID + "|" + string(provider)
	muInterface, _ := t.locks.LoadOrStore(key, &sync.Mutex{})
	mu, ok := muInterface.(*sync.Mutex)
	if !ok {
		mu = &sync.Mutex{}
		t.locks.Store(key, mu)
	}
	mu.Lock()
	return mu
}
