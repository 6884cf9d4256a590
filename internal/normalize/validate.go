// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package normalize

import (
	"math"

	"github.com/tomtom215/vitalsync/internal/models"
)

// Drop reasons reported by Validate and the normalizer.
const (
	ReasonMalformedPayload = "malformed_payload"
	ReasonMalformedRecord  = "malformed_record"
	ReasonUnknownType      = "unknown_metric_type"
	ReasonUnitMismatch     = "unit_mismatch"
	ReasonNonFinite        = "non_finite"
	ReasonNegativeValue    = "negative_value"
	ReasonOutOfRange       = "out_of_range"
	ReasonMissingTime      = "missing_start_time"
	ReasonInvalidInterval  = "invalid_interval"
	ReasonMissingIdentity  = "missing_identity"
)

// upperBounds rejects physiologically implausible values, usually a unit
// the provider mislabelled.
var upperBounds = map[models.MetricType]float64{
	models.MetricSteps:            200000,
	models.MetricHeartRate:        300,
	models.MetricRestingHeartRate: 250,
	models.MetricHRV:              1000,
	models.MetricSleepDuration:    24 * 60,
	models.MetricGlucose:          1000,
	models.MetricWeight:           700,
	models.MetricBPSystolic:       350,
	models.MetricBPDiastolic:      250,
	models.MetricSpO2:             100,
	models.MetricBodyTemperature:  46,
	models.MetricDistance:         500,
	models.MetricActiveEnergy:     20000,
}

// Validate returns "" for a valid record, or the reason it must be dropped.
func Validate(m *models.UnifiedHealthMetric) string {
	if m.MetricType == metricMalformed {
		return ReasonMalformedRecord
	}
	if m.UserID == "" || m.Provider == "" {
		return ReasonMissingIdentity
	}
	canonical, ok := models.CanonicalUnit(m.MetricType)
	if !ok {
		return ReasonUnknownType
	}
	if m.Unit != canonical {
		return ReasonUnitMismatch
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return ReasonNonFinite
	}
	if m.Value < 0 {
		return ReasonNegativeValue
	}
	if limit, ok := upperBounds[m.MetricType]; ok && m.Value > limit {
		return ReasonOutOfRange
	}
	if m.StartTime.IsZero() {
		return ReasonMissingTime
	}
	if m.EndTime != nil && m.EndTime.Before(m.StartTime) {
		return ReasonInvalidInterval
	}
	return ""
}
