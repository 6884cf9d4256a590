// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/vitalsync/internal/models"
)

// MemoryStore is an in-process Store. It also implements health.Store and
// the metric sink so that a single value can back a Processor in tests
// and in single-node deployments without DuckDB.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.SyncJob
	accounts map[pairKey]*models.ProviderAccount
	configs  map[string]*models.RotationConfig
	health   map[pairKey]*models.ConnectionHealthMetric
	metrics  map[metricKey]models.UnifiedHealthMetric
	closed   bool
}

type pairKey struct {
	userID   string
	provider models.Provider
}

type metricKey struct {
	userID     string
	provider   models.Provider
	metricType models.MetricType
	startTime  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*models.SyncJob),
		accounts: make(map[pairKey]*models.ProviderAccount),
		configs:  make(map[string]*models.RotationConfig),
		health:   make(map[pairKey]*models.ConnectionHealthMetric),
		metrics:  make(map[metricKey]models.UnifiedHealthMetric),
	}
}

// Close makes every later call fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

// EnqueueJob implements Store.
func (s *MemoryStore) EnqueueJob(ctx context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if job.ID == "" {
		return fmt.Errorf("enqueue job: missing id")
	}
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("enqueue job %s: duplicate id", job.ID)
	}
	cp := *job
	cp.Status = models.JobStatusPending
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.jobs[cp.ID] = &cp
	return nil
}

// ClaimDueJobs implements Store.
func (s *MemoryStore) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]models.SyncJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	busy := make(map[pairKey]bool)
	var due []*models.SyncJob
	for _, j := range s.jobs {
		switch {
		case j.Status == models.JobStatusProcessing:
			busy[pairKey{j.UserID, j.Provider}] = true
		case j.Status == models.JobStatusPending && !j.ScheduledFor.After(now):
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].Priority != due[b].Priority {
			return due[a].Priority < due[b].Priority
		}
		if !due[a].ScheduledFor.Equal(due[b].ScheduledFor) {
			return due[a].ScheduledFor.Before(due[b].ScheduledFor)
		}
		return due[a].ID < due[b].ID
	})

	var claimed []models.SyncJob
	for _, j := range due {
		if len(claimed) >= limit {
			break
		}
		key := pairKey{j.UserID, j.Provider}
		if busy[key] {
			continue
		}
		busy[key] = true
		started := now
		j.Status = models.JobStatusProcessing
		j.StartedAt = &started
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

// CompleteJob implements Store.
func (s *MemoryStore) CompleteJob(ctx context.Context, id string, status models.JobStatus, result *models.SyncResult, errMsg string, completedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("complete job %s: status %q is not terminal", id, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return fmt.Errorf("complete job %s: status is %s", id, j.Status)
	}
	j.Status = status
	j.CompletedAt = &completedAt
	j.ErrorMessage = errMsg
	if result != nil {
		r := *result
		j.Result = &r
	}
	return nil
}

// RescheduleJob implements Store.
func (s *MemoryStore) RescheduleJob(ctx context.Context, id string, scheduledFor time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return fmt.Errorf("reschedule job %s: status is %s", id, j.Status)
	}
	j.Status = models.JobStatusPending
	j.StartedAt = nil
	j.ScheduledFor = scheduledFor
	return nil
}

// HasProcessing implements Store.
func (s *MemoryStore) HasProcessing(ctx context.Context, userID string, provider models.Provider, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}
	for _, j := range s.jobs {
		if j.ID != excludeID && j.UserID == userID && j.Provider == provider && j.Status == models.JobStatusProcessing {
			return true, nil
		}
	}
	return false, nil
}

// GetJob implements Store.
func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobs implements Store.
func (s *MemoryStore) ListJobs(ctx context.Context, filter models.JobFilter) ([]models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []models.SyncJob
	for _, j := range s.jobs {
		if filter.UserID != "" && j.UserID != filter.UserID {
			continue
		}
		if filter.Provider != "" && j.Provider != filter.Provider {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID > out[b].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// RecoverStale implements Store.
func (s *MemoryStore) RecoverStale(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, j := range s.jobs {
		if j.Status == models.JobStatusProcessing && j.StartedAt != nil && j.StartedAt.Before(olderThan) {
			j.Status = models.JobStatusPending
			j.StartedAt = nil
			n++
		}
	}
	return n, nil
}

// ActiveAccounts implements Store.
func (s *MemoryStore) ActiveAccounts(ctx context.Context, userID string) ([]models.ProviderAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []models.ProviderAccount
	for k, a := range s.accounts {
		if k.userID == userID && a.Status == models.AccountStatusActive {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Provider < out[b].Provider })
	return out, nil
}

// UpsertAccount implements Store.
func (s *MemoryStore) UpsertAccount(ctx context.Context, account *models.ProviderAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	cp := *account
	s.accounts[pairKey{account.UserID, account.Provider}] = &cp
	return nil
}

// SetAccountStatus implements Store.
func (s *MemoryStore) SetAccountStatus(ctx context.Context, userID string, provider models.Provider, status models.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	a, ok := s.accounts[pairKey{userID, provider}]
	if !ok {
		return fmt.Errorf("account %s/%s not found", userID, provider)
	}
	a.Status = status
	return nil
}

// UpdateLastSync implements Store.
func (s *MemoryStore) UpdateLastSync(ctx context.Context, userID string, provider models.Provider, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	a, ok := s.accounts[pairKey{userID, provider}]
	if !ok {
		return fmt.Errorf("account %s/%s not found", userID, provider)
	}
	a.LastSyncAt = &at
	return nil
}

// RotationConfig implements Store.
func (s *MemoryStore) RotationConfig(ctx context.Context, userID string) (*models.RotationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	cfg, ok := s.configs[userID]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	cp.PriorityOrder = append([]models.Provider(nil), cfg.PriorityOrder...)
	return &cp, nil
}

// UpsertRotationConfig implements Store.
func (s *MemoryStore) UpsertRotationConfig(ctx context.Context, cfg *models.RotationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	cp := *cfg
	cp.PriorityOrder = append([]models.Provider(nil), cfg.PriorityOrder...)
	s.configs[cfg.UserID] = &cp
	return nil
}

// RotationUsers implements Store.
func (s *MemoryStore) RotationUsers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var users []string
	for id, cfg := range s.configs {
		if cfg.Enabled {
			users = append(users, id)
		}
	}
	sort.Strings(users)
	return users, nil
}

// GetHealthMetric implements health.Store.
func (s *MemoryStore) GetHealthMetric(ctx context.Context, userID string, provider models.Provider) (*models.ConnectionHealthMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	m, ok := s.health[pairKey{userID, provider}]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// UpsertHealthMetric implements health.Store.
func (s *MemoryStore) UpsertHealthMetric(ctx context.Context, m *models.ConnectionHealthMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	cp := *m
	s.health[pairKey{m.UserID, m.Provider}] = &cp
	return nil
}

// ListHealthMetrics implements health.Store.
func (s *MemoryStore) ListHealthMetrics(ctx context.Context, userID string, provider models.Provider) ([]models.ConnectionHealthMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []models.ConnectionHealthMetric
	for k, m := range s.health {
		if k.userID != userID || (provider != "" && k.provider != provider) {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Provider < out[b].Provider })
	return out, nil
}

// PersistMetrics stores metrics, ignoring any whose (user, provider, type,
// start time) is already present. It returns the number inserted.
func (s *MemoryStore) PersistMetrics(ctx context.Context, batch []models.UnifiedHealthMetric) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	inserted := 0
	for _, m := range batch {
		key := metricKey{m.UserID, m.Provider, m.MetricType, m.StartTime.UnixNano()}
		if _, dup := s.metrics[key]; dup {
			continue
		}
		s.metrics[key] = m
		inserted++
	}
	return inserted, nil
}

// MetricCount returns the number of stored health metrics.
func (s *MemoryStore) MetricCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metrics)
}

var _ Store = (*MemoryStore)(nil)
