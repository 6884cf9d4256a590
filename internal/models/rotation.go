// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package models

import "time"

// RotationInterval is the sync cadence for a user's providers.
type RotationInterval string

const (
	RotationHourly      RotationInterval = "hourly"
	RotationEvery6Hours RotationInterval = "every_6_hours"
	RotationDaily       RotationInterval = "daily"
	RotationWeekly      RotationInterval = "weekly"
	RotationCustom      RotationInterval = "custom"
)

// QuietHours is a daily window, in the config's timezone, during which
// scheduled syncs are suppressed. End may be earlier than Start, in which
// case the window wraps past midnight.
type QuietHours struct {
	Start string `json:"start" validate:"required,datetime=15:04"`
	End   string `json:"end" validate:"required,datetime=15:04"`
}

// RotationConfig is a user's sync policy. One per user; the scheduler only reads it.
type RotationConfig struct {
	UserID                string           `json:"user_id"`
	Enabled               bool             `json:"enabled"`
	RotationInterval      RotationInterval `json:"rotation_interval" validate:"required,oneof=hourly every_6_hours daily weekly custom"`
	CustomIntervalMinutes int              `json:"custom_interval_minutes,omitempty" validate:"required_if=RotationInterval custom,omitempty,min=1"`
	PriorityOrder         []Provider       `json:"priority_order" validate:"dive,provider"`
	FailoverEnabled       bool             `json:"failover_enabled"`
	MaxRetryAttempts      int              `json:"max_retry_attempts" validate:"min=0,max=20"`
	RetryDelayMinutes     int              `json:"retry_delay_minutes" validate:"min=0,max=1440"`
	QuietHours            *QuietHours      `json:"quiet_hours,omitempty" validate:"omitempty"`
	Timezone              string           `json:"timezone,omitempty" validate:"omitempty,timezone"`
	UpdatedAt             time.Time        `json:"updated_at"`
}
