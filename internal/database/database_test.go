// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/vitalsync/internal/config"
	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/queue"
)

// testDBSemaphore keeps DuckDB CGO work from tests serialized.
var testDBSemaphore = make(chan struct{}, 1)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   1,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func enqueue(t *testing.T, db *DB, id, user string, p models.Provider, prio int, at time.Time) {
	t.Helper()
	err := db.EnqueueJob(context.Background(), &models.SyncJob{
		ID: id, UserID: user, Provider: p, SyncType: models.SyncTypeScheduled,
		Priority: prio, Status: models.JobStatusPending, ScheduledFor: at, CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("EnqueueJob(%s) error = %v", id, err)
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	testDBSemaphore <- struct{}{}
	defer func() { <-testDBSemaphore }()

	path := filepath.Join(t.TempDir(), "nested", "vitalsync.duckdb")
	db, err := New(&config.DatabaseConfig{Path: path, MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("database directory not created: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := db.Checkpoint(context.Background()); err != nil {
		t.Errorf("Checkpoint() error = %v", err)
	}
}

func TestJobs_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueue(t, db, "job-1", "u1", models.ProviderFitbit, 5, testNow)

	job, err := db.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Status != models.JobStatusPending || job.StartedAt != nil || job.Result != nil {
		t.Errorf("unexpected new job: %+v", job)
	}
	if !job.ScheduledFor.Equal(testNow) {
		t.Errorf("scheduled_for = %v, want %v", job.ScheduledFor, testNow)
	}

	if _, err := db.GetJob(ctx, "missing"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Errorf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}

	if err := db.CompleteJob(ctx, "job-1", models.JobStatusCompleted, nil, "", testNow); err == nil {
		t.Error("completing a pending job should fail")
	}

	if none, err := db.ClaimDueJobs(ctx, testNow, 0); err != nil || len(none) != 0 {
		t.Fatalf("ClaimDueJobs(0) = %v, %v; want nothing claimed", none, err)
	}

	claimed, err := db.ClaimDueJobs(ctx, testNow, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs() error = %v", err)
	}
	if len(claimed) != 1 || claimed[0].Status != models.JobStatusProcessing || claimed[0].StartedAt == nil {
		t.Fatalf("claimed = %+v", claimed)
	}

	result := &models.SyncResult{Success: true, MetricsSynced: 12, MetricsDropped: 1, DurationMS: 40}
	if err := db.CompleteJob(ctx, "job-1", models.JobStatusPending, result, "", testNow); err == nil {
		t.Error("non-terminal completion status should be rejected")
	}
	if err := db.CompleteJob(ctx, "job-1", models.JobStatusCompleted, result, "", testNow.Add(time.Second)); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}

	job, _ = db.GetJob(ctx, "job-1")
	if job.Status != models.JobStatusCompleted || job.CompletedAt == nil {
		t.Errorf("job not completed: %+v", job)
	}
	if job.Result == nil || job.Result.MetricsSynced != 12 || job.Result.MetricsDropped != 1 {
		t.Errorf("result = %+v", job.Result)
	}

	if err := db.CompleteJob(ctx, "job-1", models.JobStatusFailed, nil, "again", testNow); err == nil {
		t.Error("completing a terminal job should fail")
	}
	if err := db.CompleteJob(ctx, "missing", models.JobStatusFailed, nil, "x", testNow); !errors.Is(err, queue.ErrJobNotFound) {
		t.Errorf("CompleteJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestClaimDueJobs_OrderAndExclusivity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueue(t, db, "a", "u1", models.ProviderFitbit, 3, testNow.Add(-time.Minute))
	enqueue(t, db, "b", "u1", models.ProviderOura, 1, testNow)
	enqueue(t, db, "c", "u1", models.ProviderFitbit, 1, testNow.Add(-2*time.Minute))
	enqueue(t, db, "d", "u2", models.ProviderFitbit, 2, testNow.Add(time.Hour))

	claimed, err := db.ClaimDueJobs(ctx, testNow, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs() error = %v", err)
	}
	var ids []string
	for _, j := range claimed {
		ids = append(ids, j.ID)
	}
	if len(ids) != 2 || ids[0] != "c" || ids[1] != "b" {
		t.Fatalf("claimed = %v, want [c b]", ids)
	}

	claimed, err = db.ClaimDueJobs(ctx, testNow, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs() error = %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("pair with processing job must not be claimed again: %+v", claimed)
	}

	busy, err := db.HasProcessing(ctx, "u1", models.ProviderFitbit, "")
	if err != nil || !busy {
		t.Errorf("HasProcessing() = %v, %v; want true", busy, err)
	}
	busy, _ = db.HasProcessing(ctx, "u1", models.ProviderFitbit, "c")
	if busy {
		t.Error("excluding the only processing job should report not busy")
	}

	if err := db.CompleteJob(ctx, "c", models.JobStatusFailed, nil, "boom", testNow); err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}
	claimed, _ = db.ClaimDueJobs(ctx, testNow, 10)
	if len(claimed) != 1 || claimed[0].ID != "a" {
		t.Errorf("claimed = %+v, want a", claimed)
	}
}

func TestClaimDueJobs_Limit(t *testing.T) {
	db := setupTestDB(t)
	for i, p := range models.KnownProviders() {
		enqueue(t, db, string(p), "u1", p, i, testNow)
	}
	claimed, err := db.ClaimDueJobs(context.Background(), testNow, 2)
	if err != nil {
		t.Fatalf("ClaimDueJobs() error = %v", err)
	}
	if len(claimed) != 2 || claimed[0].ID != string(models.KnownProviders()[0]) {
		t.Errorf("claimed = %+v", claimed)
	}
}

func TestRescheduleAndRecoverStale(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueue(t, db, "r", "u1", models.ProviderOura, 1, testNow)
	enqueue(t, db, "s", "u1", models.ProviderDexcom, 1, testNow)

	if err := db.RescheduleJob(ctx, "r", testNow); err == nil {
		t.Error("rescheduling a pending job should fail")
	}
	if _, err := db.ClaimDueJobs(ctx, testNow, 10); err != nil {
		t.Fatalf("ClaimDueJobs() error = %v", err)
	}

	later := testNow.Add(5 * time.Minute)
	if err := db.RescheduleJob(ctx, "r", later); err != nil {
		t.Fatalf("RescheduleJob() error = %v", err)
	}
	job, _ := db.GetJob(ctx, "r")
	if job.Status != models.JobStatusPending || job.StartedAt != nil || !job.ScheduledFor.Equal(later) {
		t.Errorf("rescheduled job = %+v", job)
	}

	n, err := db.RecoverStale(ctx, testNow)
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if n != 0 {
		t.Errorf("recovered %d jobs started at the cutoff, want 0", n)
	}
	n, err = db.RecoverStale(ctx, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("recovered = %d, want 1", n)
	}
	job, _ = db.GetJob(ctx, "s")
	if job.Status != models.JobStatusPending {
		t.Errorf("stale job status = %s, want pending", job.Status)
	}
}

func TestListJobs_Filters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	enqueue(t, db, "1", "u1", models.ProviderFitbit, 1, testNow.Add(-3*time.Minute))
	enqueue(t, db, "2", "u1", models.ProviderOura, 1, testNow.Add(-2*time.Minute))
	enqueue(t, db, "3", "u2", models.ProviderFitbit, 1, testNow.Add(-time.Minute))

	tests := []struct {
		name   string
		filter models.JobFilter
		want   []string
	}{
		{"all newest first", models.JobFilter{}, []string{"3", "2", "1"}},
		{"by user", models.JobFilter{UserID: "u1"}, []string{"2", "1"}},
		{"by provider", models.JobFilter{Provider: models.ProviderFitbit}, []string{"3", "1"}},
		{"by status", models.JobFilter{Status: models.JobStatusCompleted}, nil},
		{"limit", models.JobFilter{Limit: 1}, []string{"3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := db.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs() error = %v", err)
			}
			if len(jobs) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(jobs), len(tt.want))
			}
			for i, id := range tt.want {
				if jobs[i].ID != id {
					t.Errorf("jobs[%d] = %s, want %s", i, jobs[i].ID, id)
				}
			}
		})
	}
}

func TestAccounts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	lastSync := testNow.Add(-time.Hour)
	for _, a := range []models.ProviderAccount{
		{UserID: "u1", Provider: models.ProviderOura, Status: models.AccountStatusActive, LastSyncAt: &lastSync},
		{UserID: "u1", Provider: models.ProviderFitbit, Status: models.AccountStatusActive},
		{UserID: "u1", Provider: models.ProviderGarmin, Status: models.AccountStatusInactive},
		{UserID: "u2", Provider: models.ProviderFitbit, Status: models.AccountStatusActive},
	} {
		if err := db.UpsertAccount(ctx, &a); err != nil {
			t.Fatalf("UpsertAccount() error = %v", err)
		}
	}

	accounts, err := db.ActiveAccounts(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveAccounts() error = %v", err)
	}
	if len(accounts) != 2 || accounts[0].Provider != models.ProviderFitbit || accounts[1].Provider != models.ProviderOura {
		t.Fatalf("accounts = %+v", accounts)
	}
	if accounts[0].LastSyncAt != nil || accounts[1].LastSyncAt == nil || !accounts[1].LastSyncAt.Equal(lastSync) {
		t.Errorf("last sync not round-tripped: %+v", accounts)
	}

	if err := db.SetAccountStatus(ctx, "u1", models.ProviderOura, models.AccountStatusRevoked); err != nil {
		t.Fatalf("SetAccountStatus() error = %v", err)
	}
	if err := db.UpdateLastSync(ctx, "u1", models.ProviderFitbit, testNow); err != nil {
		t.Fatalf("UpdateLastSync() error = %v", err)
	}
	accounts, _ = db.ActiveAccounts(ctx, "u1")
	if len(accounts) != 1 || accounts[0].LastSyncAt == nil || !accounts[0].LastSyncAt.Equal(testNow) {
		t.Errorf("accounts after revoke = %+v", accounts)
	}

	if err := db.SetAccountStatus(ctx, "nobody", models.ProviderOura, models.AccountStatusRevoked); err == nil {
		t.Error("SetAccountStatus on a missing account should fail")
	}
	if err := db.UpdateLastSync(ctx, "nobody", models.ProviderOura, testNow); err == nil {
		t.Error("UpdateLastSync on a missing account should fail")
	}
}

func TestRotationConfigs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cfg, err := db.RotationConfig(ctx, "u1")
	if err != nil || cfg != nil {
		t.Fatalf("RotationConfig(absent) = %+v, %v; want nil, nil", cfg, err)
	}

	want := &models.RotationConfig{
		UserID:            "u1",
		Enabled:           true,
		RotationInterval:  models.RotationDaily,
		PriorityOrder:     []models.Provider{models.ProviderOura, models.ProviderFitbit},
		FailoverEnabled:   true,
		MaxRetryAttempts:  3,
		RetryDelayMinutes: 15,
		QuietHours:        &models.QuietHours{Start: "22:00", End: "07:00"},
		Timezone:          "Europe/Berlin",
		UpdatedAt:         testNow,
	}
	if err := db.UpsertRotationConfig(ctx, want); err != nil {
		t.Fatalf("UpsertRotationConfig() error = %v", err)
	}
	if err := db.UpsertRotationConfig(ctx, &models.RotationConfig{
		UserID: "u2", RotationInterval: models.RotationHourly, UpdatedAt: testNow,
	}); err != nil {
		t.Fatalf("UpsertRotationConfig(u2) error = %v", err)
	}

	got, err := db.RotationConfig(ctx, "u1")
	if err != nil {
		t.Fatalf("RotationConfig() error = %v", err)
	}
	if got.RotationInterval != want.RotationInterval || !got.FailoverEnabled || got.MaxRetryAttempts != 3 ||
		got.RetryDelayMinutes != 15 || got.Timezone != "Europe/Berlin" || !got.UpdatedAt.Equal(testNow) {
		t.Errorf("config = %+v", got)
	}
	if len(got.PriorityOrder) != 2 || got.PriorityOrder[0] != models.ProviderOura {
		t.Errorf("priority order = %v", got.PriorityOrder)
	}
	if got.QuietHours == nil || got.QuietHours.Start != "22:00" || got.QuietHours.End != "07:00" {
		t.Errorf("quiet hours = %+v", got.QuietHours)
	}

	want.QuietHours = nil
	want.RotationInterval = models.RotationCustom
	want.CustomIntervalMinutes = 90
	if err := db.UpsertRotationConfig(ctx, want); err != nil {
		t.Fatalf("UpsertRotationConfig(update) error = %v", err)
	}
	got, _ = db.RotationConfig(ctx, "u1")
	if got.QuietHours != nil || got.CustomIntervalMinutes != 90 {
		t.Errorf("updated config = %+v", got)
	}

	users, err := db.RotationUsers(ctx)
	if err != nil {
		t.Fatalf("RotationUsers() error = %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("users = %v, want [u1]", users)
	}
}

func TestHealthMetrics(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m, err := db.GetHealthMetric(ctx, "u1", models.ProviderFitbit)
	if err != nil || m != nil {
		t.Fatalf("GetHealthMetric(absent) = %+v, %v; want nil, nil", m, err)
	}

	success := testNow.Add(-time.Minute)
	metric := &models.ConnectionHealthMetric{
		UserID: "u1", Provider: models.ProviderFitbit,
		TotalSyncs: 4, SuccessfulSyncs: 3, FailedSyncs: 1,
		HealthScore: 85, UptimePercentage: 75, LastSuccessAt: &success,
		AvgDurationMS: 120.5, UpdatedAt: testNow,
	}
	if err := db.UpsertHealthMetric(ctx, metric); err != nil {
		t.Fatalf("UpsertHealthMetric() error = %v", err)
	}
	metric.TotalSyncs = 5
	metric.FailedSyncs = 2
	metric.HealthScore = 70
	metric.LastFailureAt = &testNow
	if err := db.UpsertHealthMetric(ctx, metric); err != nil {
		t.Fatalf("UpsertHealthMetric(update) error = %v", err)
	}
	if err := db.UpsertHealthMetric(ctx, &models.ConnectionHealthMetric{
		UserID: "u1", Provider: models.ProviderDexcom, HealthScore: 100, UpdatedAt: testNow,
	}); err != nil {
		t.Fatalf("UpsertHealthMetric(dexcom) error = %v", err)
	}

	got, err := db.GetHealthMetric(ctx, "u1", models.ProviderFitbit)
	if err != nil {
		t.Fatalf("GetHealthMetric() error = %v", err)
	}
	if got.TotalSyncs != 5 || got.FailedSyncs != 2 || got.HealthScore != 70 || got.AvgDurationMS != 120.5 {
		t.Errorf("metric = %+v", got)
	}
	if got.LastSuccessAt == nil || !got.LastSuccessAt.Equal(success) || got.LastFailureAt == nil {
		t.Errorf("timestamps = %v / %v", got.LastSuccessAt, got.LastFailureAt)
	}

	all, err := db.ListHealthMetrics(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListHealthMetrics() error = %v", err)
	}
	if len(all) != 2 || all[0].Provider != models.ProviderDexcom {
		t.Errorf("all = %+v", all)
	}
	one, _ := db.ListHealthMetrics(ctx, "u1", models.ProviderFitbit)
	if len(one) != 1 {
		t.Errorf("filtered = %+v", one)
	}
}

func TestPersistMetrics_Dedup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	end := testNow.Add(time.Hour)
	batch := []models.UnifiedHealthMetric{
		{UserID: "u1", Provider: models.ProviderFitbit, MetricType: models.MetricSteps, Value: 1200,
			Unit: models.UnitCount, StartTime: testNow, EndTime: &end,
			SamplingRate: models.SamplingDailySummary, DataSource: models.DataSourceDerived, Tags: []string{"walk"}},
		{UserID: "u1", Provider: models.ProviderFitbit, MetricType: models.MetricHeartRate, Value: 62,
			Unit: models.UnitBPM, StartTime: testNow, SamplingRate: models.SamplingInstant, DataSource: models.DataSourceSensor},
	}

	n, err := db.PersistMetrics(ctx, batch)
	if err != nil {
		t.Fatalf("PersistMetrics() error = %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	n, err = db.PersistMetrics(ctx, batch)
	if err != nil {
		t.Fatalf("PersistMetrics(repeat) error = %v", err)
	}
	if n != 0 {
		t.Errorf("repeat inserted = %d, want 0", n)
	}

	if n, _ := db.PersistMetrics(ctx, nil); n != 0 {
		t.Errorf("empty batch inserted %d", n)
	}

	count, err := db.CountMetrics(ctx, "u1", "")
	if err != nil {
		t.Fatalf("CountMetrics() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if count, _ := db.CountMetrics(ctx, "u1", models.ProviderOura); count != 0 {
		t.Errorf("oura count = %d, want 0", count)
	}
}

func TestClosedDB(t *testing.T) {
	db := setupTestDB(t)
	_ = db.Close()

	if err := db.EnqueueJob(context.Background(), &models.SyncJob{ID: "x"}); err == nil {
		t.Error("EnqueueJob on a closed database should fail")
	}
	if _, err := db.ClaimDueJobs(context.Background(), testNow, 1); err == nil {
		t.Error("ClaimDueJobs on a closed database should fail")
	}
}
