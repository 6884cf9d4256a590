// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package models

import "time"

// SyncType records why a job was created.
type SyncType string

const (
	SyncTypeScheduled SyncType = "scheduled"
	SyncTypeManual    SyncType = "manual"
	SyncTypeRetry     SyncType = "retry"
	SyncTypeFailover  SyncType = "failover"
)

// Valid reports whether t is a recognised sync type.
func (t SyncType) Valid() bool {
	switch t {
	case SyncTypeScheduled, SyncTypeManual, SyncTypeRetry, SyncTypeFailover:
		return true
	default:
		return false
	}
}

// JobStatus is the state of a SyncJob. The only transitions are
// pending -> processing -> completed|failed, plus processing -> pending
// when a job is rescheduled without being executed.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SyncJob is one scheduled attempt to pull data from one provider for one user.
type SyncJob struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Provider     Provider    `json:"provider"`
	SyncType     SyncType    `json:"sync_type"`
	Priority     int         `json:"priority"`
	Status       JobStatus   `json:"status"`
	ScheduledFor time.Time   `json:"scheduled_for"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	RetryCount   int         `json:"retry_count"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Result       *SyncResult `json:"result,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SyncResult is the outcome of one provider sync call.
type SyncResult struct {
	Success        bool   `json:"success"`
	MetricsSynced  int    `json:"metrics_synced"`
	MetricsDropped int    `json:"metrics_dropped,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	Error          string `json:"error,omitempty"`
}

// JobFilter narrows ListJobs queries. Zero values are ignored.
type JobFilter struct {
	UserID   string
	Provider Provider
	Status   JobStatus
	Limit    int
}

// ProcessResult summarises one ProcessQueue run.
type ProcessResult struct {
	Processed  int   `json:"processed"`
	Successful int   `json:"successful"`
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"duration_ms"`
}
