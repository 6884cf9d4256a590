// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package models

import "time"

// MetricType is the kind of physiological measurement.
type MetricType string

const (
	MetricSteps            MetricType = "steps"
	MetricHeartRate        MetricType = "heart_rate"
	MetricRestingHeartRate MetricType = "resting_heart_rate"
	MetricHRV              MetricType = "hrv"
	MetricSleepDuration    MetricType = "sleep_duration"
	MetricGlucose          MetricType = "glucose"
	MetricWeight           MetricType = "weight"
	MetricBPSystolic       MetricType = "bp_systolic"
	MetricBPDiastolic      MetricType = "bp_diastolic"
	MetricSpO2             MetricType = "spo2"
	MetricBodyTemperature  MetricType = "body_temperature"
	MetricDistance         MetricType = "distance"
	MetricActiveEnergy     MetricType = "active_energy"
)

// Canonical units. Every stored metric uses exactly one of these.
const (
	UnitCount   = "count"
	UnitBPM     = "bpm"
	UnitMS      = "ms"
	UnitMinutes = "min"
	UnitMgDL    = "mg/dL"
	UnitKG      = "kg"
	UnitMmHg    = "mmHg"
	UnitPercent = "%"
	UnitCelsius = "°C"
	UnitKM      = "km"
	UnitKcal    = "kcal"
)

var canonicalUnits = map[MetricType]string{
	MetricSteps:            UnitCount,
	MetricHeartRate:        UnitBPM,
	MetricRestingHeartRate: UnitBPM,
	MetricHRV:              UnitMS,
	MetricSleepDuration:    UnitMinutes,
	MetricGlucose:          UnitMgDL,
	MetricWeight:           UnitKG,
	MetricBPSystolic:       UnitMmHg,
	MetricBPDiastolic:      UnitMmHg,
	MetricSpO2:             UnitPercent,
	MetricBodyTemperature:  UnitCelsius,
	MetricDistance:         UnitKM,
	MetricActiveEnergy:     UnitKcal,
}

// CanonicalUnit returns the unit for t and false if t is not a known type.
func CanonicalUnit(t MetricType) (string, bool) {
	u, ok := canonicalUnits[t]
	return u, ok
}

// SamplingRate describes how a value was aggregated by the provider.
type SamplingRate string

const (
	SamplingInstant      SamplingRate = "instant"
	SamplingDailySummary SamplingRate = "daily_summary"
	SamplingContinuous   SamplingRate = "continuous"
)

// DataSource distinguishes raw sensor readings from provider-computed values.
type DataSource string

const (
	DataSourceSensor  DataSource = "sensor"
	DataSourceDerived DataSource = "derived"
)

// UnifiedHealthMetric is a single normalized measurement. Values are
// immutable once produced by a mapper.
type UnifiedHealthMetric struct {
	UserID          string       `json:"user_id"`
	Provider        Provider     `json:"provider"`
	MetricType      MetricType   `json:"metric_type"`
	Value           float64      `json:"value"`
	Unit            string       `json:"unit"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         *time.Time   `json:"end_time,omitempty"`
	SamplingRate    SamplingRate `json:"sampling_rate"`
	DataSource      DataSource   `json:"data_source"`
	ActivityContext string       `json:"activity_context,omitempty"`
	Tags            []string     `json:"tags,omitempty"`
}
