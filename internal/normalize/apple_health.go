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

const hkSleepAnalysis = "HKCategoryTypeIdentifierSleepAnalysis"

var healthKitTypes = map[string]struct {
	metric models.MetricType
	rate   models.SamplingRate
}{
	"HKQuantityTypeIdentifierStepCount":                {models.MetricSteps, models.SamplingContinuous},
	"HKQuantityTypeIdentifierHeartRate":                {models.MetricHeartRate, models.SamplingInstant},
	"HKQuantityTypeIdentifierRestingHeartRate":         {models.MetricRestingHeartRate, models.SamplingDailySummary},
	"HKQuantityTypeIdentifierHeartRateVariabilitySDNN": {models.MetricHRV, models.SamplingInstant},
	"HKQuantityTypeIdentifierBloodGlucose":             {models.MetricGlucose, models.SamplingInstant},
	"HKQuantityTypeIdentifierBodyMass":                 {models.MetricWeight, models.SamplingInstant},
	"HKQuantityTypeIdentifierBloodPressureSystolic":    {models.MetricBPSystolic, models.SamplingInstant},
	"HKQuantityTypeIdentifierBloodPressureDiastolic":   {models.MetricBPDiastolic, models.SamplingInstant},
	"HKQuantityTypeIdentifierOxygenSaturation":         {models.MetricSpO2, models.SamplingInstant},
	"HKQuantityTypeIdentifierBodyTemperature":          {models.MetricBodyTemperature, models.SamplingInstant},
	"HKQuantityTypeIdentifierDistanceWalkingRunning":   {models.MetricDistance, models.SamplingContinuous},
	"HKQuantityTypeIdentifierActiveEnergyBurned":       {models.MetricActiveEnergy, models.SamplingContinuous},
}

// asleepValues are the HKCategoryValueSleepAnalysis states counted as sleep.
var asleepValues = map[string]bool{
	"asleep":            true,
	"asleepUnspecified": true,
	"asleepCore":        true,
	"asleepDeep":        true,
	"asleepREM":         true,
}

type appleHealthSample struct {
	Type       string          `json:"type"`
	Value      json.RawMessage `json:"value"`
	Unit       string          `json:"unit"`
	StartDate  string          `json:"startDate"`
	EndDate    string          `json:"endDate"`
	SourceName string          `json:"sourceName"`
}

type appleHealthPayload struct {
	Samples records[appleHealthSample] `json:"samples"`
}

// MapAppleHealth maps HealthKit samples exported by the companion app.
// Quantity samples carry their unit string; sleep analysis samples carry a
// category value and are converted to minutes from their interval.
// Unknown sample types are ignored. A sample with an unparseable date or
// value is dropped as malformed.
func MapAppleHealth(userID string, raw []byte) ([]models.UnifiedHealthMetric, error) {
	var p appleHealthPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode apple health payload: %w", err)
	}

	out := malformedN(nil, p.Samples.bad, userID, models.ProviderAppleHealth)
	for _, s := range p.Samples.items {
		m, ok := mapAppleHealthSample(userID, s)
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// mapAppleHealthSample maps one sample. ok is false for samples that carry
// no metric, such as unknown types or time in bed.
func mapAppleHealthSample(userID string, s appleHealthSample) (m models.UnifiedHealthMetric, ok bool) {
	start, err := time.Parse(time.RFC3339, s.StartDate)
	if err != nil {
		return malformed(userID, models.ProviderAppleHealth), true
	}
	var end *time.Time
	if s.EndDate != "" {
		e, err := time.Parse(time.RFC3339, s.EndDate)
		if err != nil {
			return malformed(userID, models.ProviderAppleHealth), true
		}
		end = &e
	}

	if s.Type == hkSleepAnalysis {
		var state string
		if err := json.Unmarshal(s.Value, &state); err != nil {
			return malformed(userID, models.ProviderAppleHealth), true
		}
		if !asleepValues[state] || end == nil {
			return m, false
		}
		minutes := end.Sub(start).Minutes()
		m = build(userID, models.ProviderAppleHealth, sample{models.MetricSleepDuration, minutes, models.UnitMinutes, start, end, models.SamplingContinuous, models.DataSourceSensor})
		m.ActivityContext = state
		m.Tags = sourceTags(s.SourceName)
		return m, true
	}

	def, known := healthKitTypes[s.Type]
	if !known {
		return m, false
	}
	var value float64
	if err := json.Unmarshal(s.Value, &value); err != nil {
		return malformed(userID, models.ProviderAppleHealth), true
	}
	// HealthKit reports saturation as a fraction with unit "%".
	if def.metric == models.MetricSpO2 && value <= 1 {
		value *= 100
	}
	m = build(userID, models.ProviderAppleHealth, sample{def.metric, value, s.Unit, start, end, def.rate, models.DataSourceSensor})
	m.Tags = sourceTags(s.SourceName)
	return m, true
}

func sourceTags(source string) []string {
	if source == "" {
		return nil
	}
	return []string{"source:" + source}
}
