// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package normalize

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/models"
)

type ouraSleep struct {
	Day                string   `json:"day"`
	BedtimeStart       string   `json:"bedtime_start"`
	BedtimeEnd         string   `json:"bedtime_end"`
	TotalSleepDuration *float64 `json:"total_sleep_duration"` // seconds
	LowestHeartRate    *float64 `json:"lowest_heart_rate"`
	Type               string   `json:"type"`
}

type ouraReadiness struct {
	Day                  string   `json:"day"`
	AverageHRV           *float64 `json:"average_hrv"` // ms
	TemperatureDeviation *float64 `json:"temperature_deviation"`
}

type ouraHeartRate struct {
	BPM       float64 `json:"bpm"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
}

type ouraPayload struct {
	Sleep     records[ouraSleep]     `json:"sleep"`
	Readiness records[ouraReadiness] `json:"readiness"`
	HeartRate records[ouraHeartRate] `json:"heartrate"`
}

// MapOura maps Oura v2 sleep, readiness and heart rate documents.
// Readiness temperature is a deviation from the user's baseline rather than
// a body temperature, so it is not mapped. Documents with unparseable
// timestamps are dropped as malformed.
func MapOura(userID string, raw []byte) ([]models.UnifiedHealthMetric, error) {
	var p ouraPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode oura payload: %w", err)
	}

	var out []models.UnifiedHealthMetric
	add := func(s sample, activity string) {
		m := build(userID, models.ProviderOura, s)
		m.ActivityContext = activity
		out = append(out, m)
	}
	bad := func(n int) { out = malformedN(out, n, userID, models.ProviderOura) }

	bad(p.Sleep.bad)
	for _, s := range p.Sleep.items {
		start, err := time.Parse(time.RFC3339, s.BedtimeStart)
		if err != nil {
			bad(1)
			continue
		}
		end, err := time.Parse(time.RFC3339, s.BedtimeEnd)
		if err != nil {
			bad(1)
			continue
		}
		activity := ""
		if s.Type != "" && s.Type != "long_sleep" {
			activity = s.Type
		}
		if s.TotalSleepDuration != nil {
			add(sample{models.MetricSleepDuration, *s.TotalSleepDuration, unitSeconds, start, &end, models.SamplingDailySummary, models.DataSourceDerived}, activity)
		}
		if s.LowestHeartRate != nil {
			add(sample{models.MetricRestingHeartRate, *s.LowestHeartRate, models.UnitBPM, start, &end, models.SamplingDailySummary, models.DataSourceSensor}, activity)
		}
	}

	bad(p.Readiness.bad)
	for _, r := range p.Readiness.items {
		if r.AverageHRV == nil {
			continue
		}
		start, end, err := dayBounds(r.Day)
		if err != nil {
			bad(1)
			continue
		}
		add(sample{models.MetricHRV, *r.AverageHRV, models.UnitMS, start, end, models.SamplingDailySummary, models.DataSourceDerived}, "")
	}

	bad(p.HeartRate.bad)
	for _, hr := range p.HeartRate.items {
		ts, err := time.Parse(time.RFC3339, hr.Timestamp)
		if err != nil {
			bad(1)
			continue
		}
		add(sample{models.MetricHeartRate, hr.BPM, models.UnitBPM, ts, nil, models.SamplingContinuous, models.DataSourceSensor}, hr.Source)
	}

	return out, nil
}
