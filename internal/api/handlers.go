// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/providers"
	"github.com/tomtom215/vitalsync/internal/validation"
)

// SyncService is the queue surface the handlers need. *queue.Processor
// implements it.
type SyncService interface {
	EnqueueSync(ctx context.Context, userID string, provider models.Provider, syncType models.SyncType, priority *int) (string, error)
	ProcessQueue(ctx context.Context) (models.ProcessResult, error)
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]models.SyncJob, error)
	GetHealthMetrics(ctx context.Context, userID string, provider models.Provider) ([]models.ConnectionHealthMetric, error)
	ScheduleNextRotation(ctx context.Context, userID string) ([]string, error)
	UpdateRotationConfig(ctx context.Context, cfg *models.RotationConfig) error
}

// Ingester normalizes and stores a pushed provider payload.
type Ingester interface {
	Ingest(ctx context.Context, userID string, provider models.Provider, raw []byte) (providers.IngestResult, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig bounds list endpoints.
type HandlerConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Handler serves the HTTP API.
type Handler struct {
	sync   SyncService
	ingest Ingester
	ready  Pinger
	config HandlerConfig
}

// NewHandler creates a Handler. ready may be nil, in which case readiness
// always succeeds.
func NewHandler(sync SyncService, ingest Ingester, ready Pinger, config HandlerConfig) *Handler {
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 50
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 500
	}
	if config.DefaultPageSize > config.MaxPageSize {
		config.DefaultPageSize = config.MaxPageSize
	}
	return &Handler{sync: sync, ingest: ingest, ready: ready, config: config}
}

// EnqueueRequest is the body of POST /api/v1/sync/jobs.
type EnqueueRequest struct {
	UserID   string          `json:"user_id" validate:"required,max=128"`
	Provider models.Provider `json:"provider" validate:"required,provider"`
	SyncType models.SyncType `json:"sync_type" validate:"omitempty,synctype"`
	Priority *int            `json:"priority,omitempty" validate:"omitempty,min=0,max=100"`
}

// EnqueueSync handles POST /api/v1/sync/jobs.
func (h *Handler) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EnqueueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	if req.SyncType == "" {
		req.SyncType = models.SyncTypeManual
	}

	id, err := h.sync.EnqueueSync(r.Context(), req.UserID, req.Provider, req.SyncType, req.Priority)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusCreated, map[string]string{"job_id": id}, start)
}

// GetJob handles GET /api/v1/sync/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	job, err := h.sync.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusOK, job, start)
}

// ListJobsRequest holds the query of GET /api/v1/sync/jobs.
type ListJobsRequest struct {
	UserID   string           `validate:"omitempty,max=128"`
	Provider models.Provider  `validate:"omitempty,provider"`
	Status   models.JobStatus `validate:"omitempty,oneof=pending processing completed failed"`
	Limit    int              `validate:"min=1"`
}

// ListJobs handles GET /api/v1/sync/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := r.URL.Query()
	req := ListJobsRequest{
		UserID:   q.Get("user_id"),
		Provider: models.Provider(q.Get("provider")),
		Status:   models.JobStatus(q.Get("status")),
		Limit:    getIntParam(r, "limit", h.config.DefaultPageSize),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}
	if req.Limit > h.config.MaxPageSize {
		req.Limit = h.config.MaxPageSize
	}

	jobs, err := h.sync.ListJobs(r.Context(), models.JobFilter{
		UserID:   req.UserID,
		Provider: req.Provider,
		Status:   req.Status,
		Limit:    req.Limit,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.SyncJob{}
	}
	respondData(w, http.StatusOK, jobs, start)
}

// ProcessQueue handles POST /api/v1/sync/process.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, err := h.sync.ProcessQueue(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Queue processed on demand")
	respondData(w, http.StatusOK, result, start)
}

// HealthRequest holds the query of GET /api/v1/health/providers.
type HealthRequest struct {
	UserID   string          `validate:"required,max=128"`
	Provider models.Provider `validate:"omitempty,provider"`
}

// ProviderHealth handles GET /api/v1/health/providers.
func (h *Handler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q := r.URL.Query()
	req := HealthRequest{UserID: q.Get("user_id"), Provider: models.Provider(q.Get("provider"))}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}

	metrics, err := h.sync.GetHealthMetrics(r.Context(), req.UserID, req.Provider)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if metrics == nil {
		metrics = []models.ConnectionHealthMetric{}
	}
	respondData(w, http.StatusOK, metrics, start)
}

// ScheduleRotation handles POST /api/v1/rotation/{user_id}/schedule.
func (h *Handler) ScheduleRotation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	userID := chi.URLParam(r, "user_id")
	ids, err := h.sync.ScheduleNextRotation(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondData(w, http.StatusOK, map[string][]string{"job_ids": ids}, start)
}

// UpdateRotation handles PUT /api/v1/rotation/{user_id}. The path user
// overrides any user_id in the body.
func (h *Handler) UpdateRotation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var cfg models.RotationConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	cfg.UserID = chi.URLParam(r, "user_id")

	if err := h.sync.UpdateRotationConfig(r.Context(), &cfg); err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusOK, cfg, start)
}

// IngestRequest is the body of POST /api/v1/ingest.
type IngestRequest struct {
	UserID   string          `json:"user_id" validate:"required,max=128"`
	Provider models.Provider `json:"provider" validate:"required,provider"`
	Payload  json.RawMessage `json:"payload" validate:"required"`
}

// Ingest handles POST /api/v1/ingest, the webhook hand-off for pushed
// provider data.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}

	result, err := h.ingest.Ingest(r.Context(), req.UserID, req.Provider, req.Payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondData(w, http.StatusOK, result, start)
}

// Live handles GET /api/v1/status/live.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"}, time.Now())
}

// Ready handles GET /api/v1/status/ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "NOT_READY", "Database unavailable", err)
			return
		}
	}
	respondData(w, http.StatusOK, map[string]string{"status": "ready"}, start)
}
