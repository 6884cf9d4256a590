// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/metrics"
	"github.com/tomtom215/vitalsync/internal/models"
)

// RateFunc returns the request rate and burst allowed for a provider.
type RateFunc func(provider string) (float64, int)

// ProviderGuard rate limits and circuit-breaks calls to each provider.
// Breakers and limiters are created on first use and shared by all users
// of that provider.
//
// Breaker settings:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
type ProviderGuard struct {
	rateFor RateFunc

	mu       sync.Mutex
	breakers map[models.Provider]*gobreaker.CircuitBreaker[*models.SyncResult]
	limiters map[models.Provider]*rate.Limiter
}

// NewProviderGuard creates a guard. A nil rateFor disables rate limiting.
func NewProviderGuard(rateFor RateFunc) *ProviderGuard {
	return &ProviderGuard{
		rateFor:  rateFor,
		breakers: make(map[models.Provider]*gobreaker.CircuitBreaker[*models.SyncResult]),
		limiters: make(map[models.Provider]*rate.Limiter),
	}
}

// Execute waits for the provider's rate limiter and runs fn through its
// circuit breaker. A permanent error does not count against the breaker
// because it describes one account, not the provider.
func (g *ProviderGuard) Execute(ctx context.Context, provider models.Provider, fn func() (*models.SyncResult, error)) (*models.SyncResult, error) {
	cb, limiter := g.get(provider)

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, NewRetryableError("rate limit wait", err)
		}
	}

	name := breakerName(provider)
	result, err := cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
			logging.Warn().Err(err).Str("provider", string(provider)).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, NewRetryableError(fmt.Sprintf("provider %s unavailable", provider), err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(cb.Counts().ConsecutiveFailures))
		return result, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	return result, nil
}

// State returns the provider's breaker state.
func (g *ProviderGuard) State(provider models.Provider) gobreaker.State {
	cb, _ := g.get(provider)
	return cb.State()
}

func (g *ProviderGuard) get(provider models.Provider) (*gobreaker.CircuitBreaker[*models.SyncResult], *rate.Limiter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[provider]
	if !ok {
		cb = newBreaker(breakerName(provider))
		g.breakers[provider] = cb
	}

	limiter, ok := g.limiters[provider]
	if !ok && g.rateFor != nil {
		rps, burst := g.rateFor(string(provider))
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
		g.limiters[provider] = limiter
	}
	return cb, limiter
}

func breakerName(provider models.Provider) string {
	return "provider-" + string(provider)
}

func newBreaker(name string) *gobreaker.CircuitBreaker[*models.SyncResult] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*models.SyncResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanentError(err) || errors.Is(err, errRunInterrupted)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
