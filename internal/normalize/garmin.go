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

type garminDaily struct {
	SummaryID          string   `json:"summaryId"`
	StartTimeInSeconds int64    `json:"startTimeInSeconds"`
	DurationInSeconds  int64    `json:"durationInSeconds"`
	Steps              *float64 `json:"steps"`
	DistanceInMeters   *float64 `json:"distanceInMeters"`
	ActiveKilocalories *float64 `json:"activeKilocalories"`
	RestingHeartRate   *float64 `json:"restingHeartRateInBeatsPerMinute"`
	ActivityType       string   `json:"activityType"`
}

type garminPayload struct {
	Dailies records[garminDaily] `json:"dailies"`
}

// MapGarmin maps Garmin Health API daily summaries. A summary without a
// start time is dropped as malformed.
func MapGarmin(userID string, raw []byte) ([]models.UnifiedHealthMetric, error) {
	var p garminPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode garmin payload: %w", err)
	}

	out := malformedN(nil, p.Dailies.bad, userID, models.ProviderGarmin)
	for _, d := range p.Dailies.items {
		if d.StartTimeInSeconds <= 0 {
			out = append(out, malformed(userID, models.ProviderGarmin))
			continue
		}
		start := time.Unix(d.StartTimeInSeconds, 0)
		end := start.Add(time.Duration(d.DurationInSeconds) * time.Second)

		add := func(metric models.MetricType, v *float64, unit string, source models.DataSource) {
			if v == nil {
				return
			}
			m := build(userID, models.ProviderGarmin, sample{metric, *v, unit, start, &end, models.SamplingDailySummary, source})
			m.ActivityContext = d.ActivityType
			out = append(out, m)
		}

		add(models.MetricSteps, d.Steps, models.UnitCount, models.DataSourceSensor)
		add(models.MetricDistance, d.DistanceInMeters, unitMeters, models.DataSourceDerived)
		add(models.MetricActiveEnergy, d.ActiveKilocalories, models.UnitKcal, models.DataSourceDerived)
		add(models.MetricRestingHeartRate, d.RestingHeartRate, models.UnitBPM, models.DataSourceDerived)
	}
	return out, nil
}
