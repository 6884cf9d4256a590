// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package metrics holds the Prometheus instrumentation for VitalSync.
//
// All collectors are registered on the default registry at init time and
// exposed by the HTTP server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Sync Queue Metrics
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_jobs_total",
			Help: "Total number of finished sync jobs",
		},
		[]string{"provider", "status"}, // status: "completed", "failed"
	)

	SyncJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_job_duration_seconds",
			Help:    "Duration of provider sync calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	SyncQueueClaimed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_queue_claimed",
			Help:    "Number of jobs claimed per queue run",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	SyncRetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_retries_scheduled_total",
			Help: "Total number of retry jobs created after a failed sync",
		},
		[]string{"provider"},
	)

	SyncExclusivitySkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_exclusivity_skips_total",
			Help: "Jobs rescheduled because another job for the same user and provider was processing",
		},
	)

	SyncJobsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_jobs_released_total",
			Help: "Claimed jobs returned to pending because their queue run ended",
		},
	)

	SyncStaleRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_stale_recovered_total",
			Help: "Processing jobs returned to pending after exceeding the stale timeout",
		},
	)

	SyncTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_tick_duration_seconds",
			Help:    "Duration of a full scheduler tick in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// Health Tracker Metrics
	ProviderHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_health_score",
			Help: "Last written health score (0-100) per provider",
		},
		[]string{"provider"},
	)

	HealthStoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "health_store_errors_total",
			Help: "Failures reading or writing connection health metrics",
		},
	)

	// Normalizer Metrics
	NormalizeRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalize_records_total",
			Help: "Total number of normalized records produced",
		},
		[]string{"provider"},
	)

	NormalizeRecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalize_records_dropped_total",
			Help: "Total number of records dropped during normalization",
		},
		[]string{"provider", "reason"},
	)

	// Lease Metrics
	LeaseAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lease_acquisitions_total",
			Help: "Tick lease acquisition attempts",
		},
		[]string{"result"}, // result: "acquired", "held", "error"
	)

	// Event Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Sync outcome events published",
		},
		[]string{"topic", "result"}, // result: "success", "error"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordSyncJob records the outcome and duration of one executed job.
func RecordSyncJob(provider string, success bool, duration time.Duration) {
	status := "completed"
	if !success {
		status = "failed"
	}
	SyncJobsTotal.WithLabelValues(provider, status).Inc()
	SyncJobDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordTick records one scheduler tick.
func RecordTick(duration time.Duration) {
	SyncTickDuration.Observe(duration.Seconds())
}

// RecordNormalized records produced and dropped record counts for a payload.
// Drops are keyed by reason.
func RecordNormalized(provider string, accepted int, dropped map[string]int) {
	if accepted > 0 {
		NormalizeRecords.WithLabelValues(provider).Add(float64(accepted))
	}
	for reason, n := range dropped {
		if n > 0 {
			NormalizeRecordsDropped.WithLabelValues(provider, reason).Add(float64(n))
		}
	}
}

// RecordLease records a lease acquisition attempt.
func RecordLease(result string) {
	LeaseAcquisitions.WithLabelValues(result).Inc()
}

// RecordEventPublish records an event publish attempt.
func RecordEventPublish(topic string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}
