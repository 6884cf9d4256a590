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

// dexcomTimeLayout is the zone-less UTC layout of systemTime.
const dexcomTimeLayout = "2006-01-02T15:04:05"

type dexcomRecord struct {
	SystemTime string   `json:"systemTime"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	Trend      string   `json:"trend"`
	Status     *string  `json:"status"`
}

type dexcomPayload struct {
	RecordType string                `json:"recordType"`
	Records    records[dexcomRecord] `json:"records"`
}

// MapDexcom maps Dexcom v3 estimated glucose values. Records may be in
// mg/dL or mmol/L. A record without a value (sensor warm-up, out of range
// "high"/"low") is emitted as NaN and dropped by Validate. A record with an
// unparseable systemTime is dropped as malformed.
func MapDexcom(userID string, raw []byte) ([]models.UnifiedHealthMetric, error) {
	var p dexcomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode dexcom payload: %w", err)
	}
	if p.RecordType != "" && p.RecordType != "egv" {
		return nil, fmt.Errorf("unexpected dexcom record type %q", p.RecordType)
	}

	out := make([]models.UnifiedHealthMetric, 0, len(p.Records.items)+p.Records.bad)
	out = malformedN(out, p.Records.bad, userID, models.ProviderDexcom)
	for _, r := range p.Records.items {
		ts, err := parseDexcomTime(r.SystemTime)
		if err != nil {
			out = append(out, malformed(userID, models.ProviderDexcom))
			continue
		}
		value := math.NaN()
		if r.Value != nil {
			value = *r.Value
		}
		unit := r.Unit
		if unit == "" {
			unit = models.UnitMgDL
		}
		m := build(userID, models.ProviderDexcom, sample{models.MetricGlucose, value, unit, ts, nil, models.SamplingContinuous, models.DataSourceSensor})
		if r.Trend != "" {
			m.Tags = []string{"trend:" + r.Trend}
		}
		out = append(out, m)
	}
	return out, nil
}

func parseDexcomTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse(dexcomTimeLayout, s)
}
