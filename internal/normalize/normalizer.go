// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package normalize maps provider-specific payloads onto UnifiedHealthMetric.
//
// Each provider registers a Mapper that decodes its own payload shape.
// Mapper output is passed through Validate; invalid records are dropped
// and counted rather than failing the whole payload. Mappers are pure, so
// normalizing the same payload twice yields the same records.
package normalize

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/metrics"
	"github.com/tomtom215/vitalsync/internal/models"
)

// Mapper decodes one provider's raw payload. An error means the payload as
// a whole could not be decoded. A record that cannot be decoded on its own
// is emitted as a malformed placeholder so the rest of the payload survives.
type Mapper func(userID string, raw []byte) ([]models.UnifiedHealthMetric, error)

// Result is the outcome of normalizing one payload.
type Result struct {
	Metrics     []models.UnifiedHealthMetric
	Dropped     int
	DropReasons map[string]int
}

// Normalizer dispatches payloads to the registered mapper for their provider.
type Normalizer struct {
	mappers map[models.Provider]Mapper
	logger  zerolog.Logger
}

// DefaultMappers returns the mappers for every built-in provider.
func DefaultMappers() map[models.Provider]Mapper {
	return map[models.Provider]Mapper{
		models.ProviderFitbit:      MapFitbit,
		models.ProviderOura:        MapOura,
		models.ProviderDexcom:      MapDexcom,
		models.ProviderWithings:    MapWithings,
		models.ProviderGarmin:      MapGarmin,
		models.ProviderAppleHealth: MapAppleHealth,
	}
}

// New creates a Normalizer. A nil registry uses DefaultMappers.
func New(mappers map[models.Provider]Mapper) *Normalizer {
	if mappers == nil {
		mappers = DefaultMappers()
	}
	return &Normalizer{
		mappers: mappers,
		logger:  logging.WithComponent("normalizer"),
	}
}

// Supports reports whether a mapper is registered for provider.
func (n *Normalizer) Supports(provider models.Provider) bool {
	_, ok := n.mappers[provider]
	return ok
}

// Normalize converts a raw payload into validated metrics. It never fails:
// an unknown provider yields an empty result and a malformed payload yields
// an empty result with one counted drop.
func (n *Normalizer) Normalize(provider models.Provider, userID string, raw []byte) Result {
	res := Result{DropReasons: map[string]int{}}

	mapper, ok := n.mappers[provider]
	if !ok {
		n.logger.Warn().Str("provider", string(provider)).Msg("No mapper registered for provider")
		return res
	}

	records, err := mapper(userID, raw)
	if err != nil {
		n.logger.Warn().Err(err).
			Str("provider", string(provider)).
			Str("user_id", userID).
			Int("payload_bytes", len(raw)).
			Msg("Dropping malformed provider payload")
		res.Dropped = 1
		res.DropReasons[ReasonMalformedPayload] = 1
		metrics.RecordNormalized(string(provider), 0, res.DropReasons)
		return res
	}

	res.Metrics = make([]models.UnifiedHealthMetric, 0, len(records))
	for i := range records {
		if reason := Validate(&records[i]); reason != "" {
			res.Dropped++
			res.DropReasons[reason]++
			continue
		}
		res.Metrics = append(res.Metrics, records[i])
	}

	if res.Dropped > 0 {
		n.logger.Debug().
			Str("provider", string(provider)).
			Int("accepted", len(res.Metrics)).
			Int("dropped", res.Dropped).
			Interface("reasons", res.DropReasons).
			Msg("Dropped invalid records")
	}
	metrics.RecordNormalized(string(provider), len(res.Metrics), res.DropReasons)

	return res
}

// sample holds the fields every mapper sets on a record.
type sample struct {
	metric models.MetricType
	value  float64
	unit   string
	start  time.Time
	end    *time.Time
	rate   models.SamplingRate
	source models.DataSource
}

// build converts s into a UnifiedHealthMetric in canonical units. When no
// conversion exists the source unit is kept and Validate drops the record.
func build(userID string, provider models.Provider, s sample) models.UnifiedHealthMetric {
	value, unit, _ := ToCanonical(s.metric, s.value, s.unit)
	m := models.UnifiedHealthMetric{
		UserID:       userID,
		Provider:     provider,
		MetricType:   s.metric,
		Value:        value,
		Unit:         unit,
		StartTime:    s.start.UTC(),
		SamplingRate: s.rate,
		DataSource:   s.source,
	}
	if s.end != nil {
		end := s.end.UTC()
		m.EndTime = &end
	}
	return m
}

// metricMalformed tags a placeholder for a record that failed to decode.
// Validate drops it as ReasonMalformedRecord.
const metricMalformed models.MetricType = "_malformed_record"

func malformed(userID string, provider models.Provider) models.UnifiedHealthMetric {
	return models.UnifiedHealthMetric{UserID: userID, Provider: provider, MetricType: metricMalformed}
}

// records decodes a JSON array one element at a time. Elements that do not
// decode into T are counted in bad instead of failing the array.
type records[T any] struct {
	items []T
	bad   int
}

func (r *records[T]) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return err
	}
	r.items = make([]T, 0, len(raws))
	r.bad = 0
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			r.bad++
			continue
		}
		r.items = append(r.items, v)
	}
	return nil
}

// malformedN appends n malformed placeholders to out.
func malformedN(out []models.UnifiedHealthMetric, n int, userID string, provider models.Provider) []models.UnifiedHealthMetric {
	for range n {
		out = append(out, malformed(userID, provider))
	}
	return out
}

// dayBounds returns midnight UTC for a YYYY-MM-DD date and the following midnight.
func dayBounds(date string) (time.Time, *time.Time, error) {
	start, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, nil, err
	}
	end := start.Add(24 * time.Hour)
	return start, &end, nil
}
