// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/models"
)

// Withings measure type codes.
const (
	withingsWeight      = 1
	withingsDiastolic   = 9
	withingsSystolic    = 10
	withingsHeartPulse  = 11
	withingsSpO2        = 54
	withingsTemperature = 71
)

// withingsCategoryReal marks an actual measurement; category 2 is a user goal.
const withingsCategoryReal = 1

var withingsTypes = map[int]struct {
	metric models.MetricType
	unit   string
}{
	withingsWeight:      {models.MetricWeight, models.UnitKG},
	withingsDiastolic:   {models.MetricBPDiastolic, models.UnitMmHg},
	withingsSystolic:    {models.MetricBPSystolic, models.UnitMmHg},
	withingsHeartPulse:  {models.MetricHeartRate, models.UnitBPM},
	withingsSpO2:        {models.MetricSpO2, models.UnitPercent},
	withingsTemperature: {models.MetricBodyTemperature, models.UnitCelsius},
}

type withingsMeasure struct {
	Value int64 `json:"value"`
	Type  int   `json:"type"`
	Unit  int   `json:"unit"` // power of ten applied to Value
}

type withingsGroup struct {
	GroupID  int64                    `json:"grpid"`
	Date     int64                    `json:"date"`
	Category int                      `json:"category"`
	Measures records[withingsMeasure] `json:"measures"`
}

type withingsPayload struct {
	Status int `json:"status"`
	Body   struct {
		MeasureGroups records[withingsGroup] `json:"measuregrps"`
	} `json:"body"`
}

// MapWithings maps Withings getmeas measure groups. Each measure is
// value * 10^unit in the type's native unit. Unmapped types are ignored.
// Measures in a group without a date are dropped as malformed.
func MapWithings(userID string, raw []byte) ([]models.UnifiedHealthMetric, error) {
	var p withingsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode withings payload: %w", err)
	}
	if p.Status != 0 {
		return nil, fmt.Errorf("withings response status %d", p.Status)
	}

	out := malformedN(nil, p.Body.MeasureGroups.bad, userID, models.ProviderWithings)
	for _, grp := range p.Body.MeasureGroups.items {
		if grp.Category != withingsCategoryReal {
			continue
		}
		if grp.Date <= 0 {
			out = malformedN(out, len(grp.Measures.items)+grp.Measures.bad, userID, models.ProviderWithings)
			continue
		}
		out = malformedN(out, grp.Measures.bad, userID, models.ProviderWithings)
		ts := time.Unix(grp.Date, 0)
		for _, m := range grp.Measures.items {
			def, ok := withingsTypes[m.Type]
			if !ok {
				continue
			}
			value := float64(m.Value) * math.Pow10(m.Unit)
			out = append(out, build(userID, models.ProviderWithings, sample{def.metric, value, def.unit, ts, nil, models.SamplingInstant, models.DataSourceSensor}))
		}
	}
	return out, nil
}
