// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/health"
	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/normalize"
	"github.com/tomtom215/vitalsync/internal/providers"
	"github.com/tomtom215/vitalsync/internal/queue"
	"github.com/tomtom215/vitalsync/internal/rotation"
)

type testEnv struct {
	server *httptest.Server
	store  *queue.MemoryStore
	proc   *queue.Processor
}

type okSyncer struct{}

func (okSyncer) Sync(context.Context, string, models.Provider, int) (*models.SyncResult, error) {
	return &models.SyncResult{Success: true, MetricsSynced: 3}, nil
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func newTestEnv(t *testing.T, ready Pinger, mwCfg *MiddlewareConfig) *testEnv {
	t.Helper()
	store := queue.NewMemoryStore()
	cfg := queue.DefaultConfig()
	cfg.SyncTimeout = time.Second
	proc := queue.NewProcessor(store, okSyncer{}, health.NewTracker(store), rotation.NewPolicy(), nil, cfg)
	ingestor := providers.NewIngestor(normalize.New(nil), store)

	handler := NewHandler(proc, ingestor, ready, HandlerConfig{DefaultPageSize: 10, MaxPageSize: 20})
	if mwCfg == nil {
		mwCfg = DefaultMiddlewareConfig()
		mwCfg.RateLimitDisabled = true
	}
	srv := httptest.NewServer(NewRouter(handler, NewMiddleware(mwCfg)).Setup())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: store, proc: proc}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, models.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		var data []byte
		switch b := body.(type) {
		case string:
			data = []byte(b)
		default:
			var err error
			if data, err = json.Marshal(b); err != nil {
				t.Fatalf("marshal body: %v", err)
			}
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp, envelope
}

// decodeData re-decodes the envelope's data into dst.
func decodeData(t *testing.T, env models.APIResponse, dst interface{}) {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

func TestEnqueueAndGetJob(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/sync/jobs", map[string]interface{}{
		"user_id": "u1", "provider": "oura",
	})
	if resp.StatusCode != http.StatusCreated || body.Status != "success" {
		t.Fatalf("status = %d, body = %+v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	decodeData(t, body, &created)
	if created.JobID == "" {
		t.Fatal("missing job_id")
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/sync/jobs/"+created.JobID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var job models.SyncJob
	decodeData(t, body, &job)
	if job.SyncType != models.SyncTypeManual || job.Priority != queue.DefaultManualPriority || job.Status != models.JobStatusPending {
		t.Errorf("job = %+v", job)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/sync/jobs/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound || body.Error == nil || body.Error.Code != "NOT_FOUND" {
		t.Errorf("missing job: status = %d, error = %+v", resp.StatusCode, body.Error)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name string
		body interface{}
		code string
	}{
		{"malformed json", "{not json", "INVALID_BODY"},
		{"empty body", "", "INVALID_BODY"},
		{"missing user", map[string]interface{}{"provider": "oura"}, "VALIDATION_ERROR"},
		{"unknown provider", map[string]interface{}{"user_id": "u1", "provider": "myspace"}, "VALIDATION_ERROR"},
		{"bad sync type", map[string]interface{}{"user_id": "u1", "provider": "oura", "sync_type": "weekly"}, "VALIDATION_ERROR"},
		{"priority out of range", map[string]interface{}{"user_id": "u1", "provider": "oura", "priority": 101}, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/v1/sync/jobs", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if body.Error == nil || body.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", body.Error, tt.code)
			}
		})
	}
}

func TestListJobs_FiltersAndLimits(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if _, err := env.proc.EnqueueSync(ctx, "u1", models.ProviderFitbit, models.SyncTypeManual, nil); err != nil {
			t.Fatalf("EnqueueSync() error = %v", err)
		}
	}
	if _, err := env.proc.EnqueueSync(ctx, "u2", models.ProviderOura, models.SyncTypeManual, nil); err != nil {
		t.Fatalf("EnqueueSync() error = %v", err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 10},
		{"?limit=100", 20},
		{"?user_id=u2", 1},
		{"?provider=oura", 1},
		{"?status=completed", 0},
	}
	for _, tt := range tests {
		resp, body := env.do(t, http.MethodGet, "/api/v1/sync/jobs"+tt.query, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, resp.StatusCode)
		}
		var jobs []models.SyncJob
		decodeData(t, body, &jobs)
		if len(jobs) != tt.want {
			t.Errorf("%s: got %d jobs, want %d", tt.query, len(jobs), tt.want)
		}
	}

	for _, q := range []string{"?status=done", "?provider=myspace", "?limit=0"} {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/sync/jobs"+q, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestProcessAndHealth(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	if err := env.store.UpsertAccount(ctx, &models.ProviderAccount{
		UserID: "u1", Provider: models.ProviderWithings, Status: models.AccountStatusActive,
	}); err != nil {
		t.Fatalf("UpsertAccount() error = %v", err)
	}
	if _, err := env.proc.EnqueueSync(ctx, "u1", models.ProviderWithings, models.SyncTypeManual, nil); err != nil {
		t.Fatalf("EnqueueSync() error = %v", err)
	}

	resp, body := env.do(t, http.MethodPost, "/api/v1/sync/process", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("process status = %d", resp.StatusCode)
	}
	var result models.ProcessResult
	decodeData(t, body, &result)
	if result.Processed != 1 || result.Successful != 1 {
		t.Errorf("result = %+v", result)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/health/providers?user_id=u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var metrics []models.ConnectionHealthMetric
	decodeData(t, body, &metrics)
	if len(metrics) != 1 || metrics[0].Provider != models.ProviderWithings || metrics[0].SuccessfulSyncs != 1 {
		t.Errorf("health = %+v", metrics)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/health/providers", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/health/providers?user_id=u1&provider=nope", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad provider status = %d, want 400", resp.StatusCode)
	}
}

func TestProcess_AfterShutdown(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.proc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	resp, body := env.do(t, http.MethodPost, "/api/v1/sync/process", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body.Error == nil || body.Error.Code != "UNAVAILABLE" {
		t.Errorf("process after shutdown: status = %d, error = %+v", resp.StatusCode, body.Error)
	}
}

func TestRotationEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	if err := env.store.UpsertAccount(ctx, &models.ProviderAccount{
		UserID: "u1", Provider: models.ProviderGarmin, Status: models.AccountStatusActive,
	}); err != nil {
		t.Fatalf("UpsertAccount() error = %v", err)
	}

	resp, body := env.do(t, http.MethodPost, "/api/v1/rotation/u1/schedule", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status = %d", resp.StatusCode)
	}
	var scheduled struct {
		JobIDs []string `json:"job_ids"`
	}
	decodeData(t, body, &scheduled)
	if scheduled.JobIDs == nil || len(scheduled.JobIDs) != 0 {
		t.Errorf("without a config job_ids = %v, want []", scheduled.JobIDs)
	}

	resp, body = env.do(t, http.MethodPut, "/api/v1/rotation/u1", map[string]interface{}{
		"user_id":           "someone-else",
		"enabled":           true,
		"rotation_interval": "hourly",
		"priority_order":    []string{"garmin"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, error = %+v", resp.StatusCode, body.Error)
	}
	stored, _ := env.store.RotationConfig(ctx, "u1")
	if stored == nil || stored.RotationInterval != models.RotationHourly {
		t.Fatalf("stored = %+v", stored)
	}
	if other, _ := env.store.RotationConfig(ctx, "someone-else"); other != nil {
		t.Error("body user_id must not override the path")
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/rotation/u1/schedule", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status = %d", resp.StatusCode)
	}
	decodeData(t, body, &scheduled)
	if len(scheduled.JobIDs) != 1 {
		t.Errorf("job_ids = %v, want one", scheduled.JobIDs)
	}

	resp, body = env.do(t, http.MethodPut, "/api/v1/rotation/u1", map[string]interface{}{
		"rotation_interval": "fortnightly",
	})
	if resp.StatusCode != http.StatusBadRequest || body.Error == nil || body.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("invalid interval: status = %d, error = %+v", resp.StatusCode, body.Error)
	}
}

func TestIngest(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	payload := `{"user_id":"u1","provider":"dexcom","payload":{"recordType":"egv","records":[
		{"systemTime":"2026-03-01T08:00:00","value":104,"unit":"mg/dL"},
		{"systemTime":"2026-03-01T08:05:00","value":-5,"unit":"mg/dL"}
	]}}`
	resp, body := env.do(t, http.MethodPost, "/api/v1/ingest", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d, error = %+v", resp.StatusCode, body.Error)
	}
	var result providers.IngestResult
	decodeData(t, body, &result)
	if result.Accepted != 1 || result.Inserted != 1 || result.Dropped != 1 {
		t.Errorf("result = %+v", result)
	}
	if env.store.MetricCount() != 1 {
		t.Errorf("stored = %d, want 1", env.store.MetricCount())
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/ingest", payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat ingest status = %d", resp.StatusCode)
	}
	decodeData(t, body, &result)
	if result.Inserted != 0 {
		t.Errorf("repeat inserted = %d, want 0", result.Inserted)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/ingest", `{"user_id":"u1","provider":"dexcom"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing payload status = %d, want 400", resp.StatusCode)
	}
}

func TestStatusEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	resp, body := env.do(t, http.MethodGet, "/api/v1/status/live", nil)
	if resp.StatusCode != http.StatusOK || body.Status != "success" {
		t.Errorf("live = %d %+v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/v1/status/ready", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d", resp.StatusCode)
	}

	down := newTestEnv(t, failingPinger{err: errors.New("db gone")}, nil)
	resp, body = down.do(t, http.MethodGet, "/api/v1/status/ready", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body.Error == nil || body.Error.Code != "NOT_READY" {
		t.Errorf("not ready = %d %+v", resp.StatusCode, body.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodGet, "/api/v1/sync/jobs", nil)

	resp, err := env.server.Client().Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(buf.String(), "go_goroutines") {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultMiddlewareConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	env := newTestEnv(t, nil, cfg)

	var last int
	for i := 0; i < 3; i++ {
		resp, _ := env.do(t, http.MethodGet, "/api/v1/sync/jobs", nil)
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	// Status endpoints bypass the limiter.
	resp, _ := env.do(t, http.MethodGet, "/api/v1/status/live", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live under rate limit = %d", resp.StatusCode)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
