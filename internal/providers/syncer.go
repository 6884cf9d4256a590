// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package providers

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/queue"
)

// FetchSyncer is the default queue.Syncer: fetch, normalize, persist.
type FetchSyncer struct {
	fetcher  Fetcher
	ingestor *Ingestor
	now      func() time.Time
}

// NewFetchSyncer creates a FetchSyncer.
func NewFetchSyncer(fetcher Fetcher, ingestor *Ingestor) *FetchSyncer {
	return &FetchSyncer{fetcher: fetcher, ingestor: ingestor, now: time.Now}
}

// Sync implements queue.Syncer. Dropped records do not fail the sync.
func (s *FetchSyncer) Sync(ctx context.Context, userID string, provider models.Provider, lookbackDays int) (*models.SyncResult, error) {
	start := s.now()
	since := start.AddDate(0, 0, -lookbackDays)

	raw, err := s.fetcher.Fetch(ctx, userID, provider, since)
	if err != nil {
		return nil, err
	}

	res, err := s.ingestor.Ingest(ctx, userID, provider, raw)
	if errors.Is(err, queue.ErrInvalidProvider) {
		return nil, queue.NewPermanentError("no mapper for provider", err)
	}
	if err != nil {
		return nil, queue.NewRetryableError("ingest payload", err)
	}

	return &models.SyncResult{
		Success:        true,
		MetricsSynced:  res.Inserted,
		MetricsDropped: res.Dropped,
		DurationMS:     s.now().Sub(start).Milliseconds(),
	}, nil
}

var _ queue.Syncer = (*FetchSyncer)(nil)
