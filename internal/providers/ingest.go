// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package providers connects the sync queue to provider data: it fetches
// raw payloads from the provider gateway, normalizes them and persists the
// resulting metrics.
package providers

import (
	"context"
	"fmt"

	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/normalize"
	"github.com/tomtom215/vitalsync/internal/queue"
)

// MetricSink persists normalized metrics. Re-inserting a metric with the
// same (user, provider, metric type, start time) must be a no-op.
type MetricSink interface {
	PersistMetrics(ctx context.Context, metrics []models.UnifiedHealthMetric) (inserted int, err error)
}

// IngestResult summarises one normalized payload.
type IngestResult struct {
	Accepted    int            `json:"accepted"`
	Inserted    int            `json:"inserted"`
	Dropped     int            `json:"dropped"`
	DropReasons map[string]int `json:"drop_reasons,omitempty"`
}

// Ingestor normalizes raw payloads and writes them to a sink.
type Ingestor struct {
	normalizer *normalize.Normalizer
	sink       MetricSink
}

// NewIngestor creates an Ingestor.
func NewIngestor(normalizer *normalize.Normalizer, sink MetricSink) *Ingestor {
	return &Ingestor{normalizer: normalizer, sink: sink}
}

// Ingest normalizes raw and persists the valid records.
func (i *Ingestor) Ingest(ctx context.Context, userID string, provider models.Provider, raw []byte) (IngestResult, error) {
	if !i.normalizer.Supports(provider) {
		return IngestResult{}, fmt.Errorf("%w: %q", queue.ErrInvalidProvider, provider)
	}

	res := i.normalizer.Normalize(provider, userID, raw)
	out := IngestResult{
		Accepted:    len(res.Metrics),
		Dropped:     res.Dropped,
		DropReasons: res.DropReasons,
	}
	if len(res.Metrics) == 0 {
		return out, nil
	}

	inserted, err := i.sink.PersistMetrics(ctx, res.Metrics)
	if err != nil {
		return out, fmt.Errorf("persist metrics: %w", err)
	}
	out.Inserted = inserted
	return out, nil
}
