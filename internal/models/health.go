// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package models

import "time"

// ConnectionHealthMetric is the rolling reliability record for one
// (user, provider) pair. Only the health tracker writes it.
type ConnectionHealthMetric struct {
	UserID           string     `json:"user_id"`
	Provider         Provider   `json:"provider"`
	TotalSyncs       int64      `json:"total_syncs"`
	SuccessfulSyncs  int64      `json:"successful_syncs"`
	FailedSyncs      int64      `json:"failed_syncs"`
	HealthScore      float64    `json:"health_score"`
	UptimePercentage float64    `json:"uptime_percentage"`
	LastSuccessAt    *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt    *time.Time `json:"last_failure_at,omitempty"`
	AvgDurationMS    float64    `json:"avg_duration_ms"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
