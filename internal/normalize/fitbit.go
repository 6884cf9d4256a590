// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package normalize

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vitalsync/internal/models"
)

// fitbitLocalLayout is the zone-less timestamp Fitbit uses for sleep logs.
// Times are taken as UTC.
const fitbitLocalLayout = "2006-01-02T15:04:05.000"

type fitbitSteps struct {
	DateTime string `json:"dateTime"`
	Value    string `json:"value"` // Fitbit sends time series values as strings
}

type fitbitHeart struct {
	DateTime string `json:"dateTime"`
	Value    struct {
		RestingHeartRate *float64 `json:"restingHeartRate"`
	} `json:"value"`
}

type fitbitIntradayPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

type fitbitSleep struct {
	DateOfSleep   string `json:"dateOfSleep"`
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
	MinutesAsleep int    `json:"minutesAsleep"`
	IsMainSleep   bool   `json:"isMainSleep"`
}

type fitbitWeight struct {
	Date   string  `json:"date"`
	Time   string  `json:"time"`
	Weight float64 `json:"weight"`
}

type fitbitPayload struct {
	Steps         records[fitbitSteps] `json:"activities-steps"`
	Heart         records[fitbitHeart] `json:"activities-heart"`
	HeartIntraday *struct {
		Dataset records[fitbitIntradayPoint] `json:"dataset"`
	} `json:"activities-heart-intraday"`
	Sleep  records[fitbitSleep]  `json:"sleep"`
	Weight records[fitbitWeight] `json:"weight"`
	// WeightUnit is "lb" for en_US accounts and "kg" otherwise.
	WeightUnit string `json:"weightUnit"`
}

// MapFitbit maps a combined Fitbit Web API response: daily steps, resting
// and intraday heart rate, sleep logs and weight logs. Entries with an
// unparseable date or value are dropped as malformed.
func MapFitbit(userID string, raw []byte) ([]models.UnifiedHealthMetric, error) {
	var p fitbitPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode fitbit payload: %w", err)
	}

	var out []models.UnifiedHealthMetric
	add := func(s sample) { out = append(out, build(userID, models.ProviderFitbit, s)) }
	bad := func(n int) { out = malformedN(out, n, userID, models.ProviderFitbit) }

	bad(p.Steps.bad)
	for _, d := range p.Steps.items {
		start, end, err := dayBounds(d.DateTime)
		if err != nil {
			bad(1)
			continue
		}
		v, err := strconv.ParseFloat(d.Value, 64)
		if err != nil {
			bad(1)
			continue
		}
		add(sample{models.MetricSteps, v, models.UnitCount, start, end, models.SamplingDailySummary, models.DataSourceSensor})
	}

	bad(p.Heart.bad)
	var heartDay string
	for _, d := range p.Heart.items {
		start, end, err := dayBounds(d.DateTime)
		if err != nil {
			if d.Value.RestingHeartRate != nil {
				bad(1)
			}
			continue
		}
		heartDay = d.DateTime
		if d.Value.RestingHeartRate == nil {
			continue
		}
		add(sample{models.MetricRestingHeartRate, *d.Value.RestingHeartRate, models.UnitBPM, start, end, models.SamplingDailySummary, models.DataSourceDerived})
	}

	// Intraday points carry only a clock time; the day comes from activities-heart.
	if p.HeartIntraday != nil && heartDay != "" {
		bad(p.HeartIntraday.Dataset.bad)
		for _, pt := range p.HeartIntraday.Dataset.items {
			ts, err := time.Parse(time.DateTime, heartDay+" "+pt.Time)
			if err != nil {
				bad(1)
				continue
			}
			add(sample{models.MetricHeartRate, pt.Value, models.UnitBPM, ts, nil, models.SamplingContinuous, models.DataSourceSensor})
		}
	}

	bad(p.Sleep.bad)
	for _, s := range p.Sleep.items {
		start, err := time.Parse(fitbitLocalLayout, s.StartTime)
		if err != nil {
			bad(1)
			continue
		}
		end, err := time.Parse(fitbitLocalLayout, s.EndTime)
		if err != nil {
			bad(1)
			continue
		}
		m := build(userID, models.ProviderFitbit, sample{models.MetricSleepDuration, float64(s.MinutesAsleep), models.UnitMinutes, start, &end, models.SamplingDailySummary, models.DataSourceDerived})
		if !s.IsMainSleep {
			m.ActivityContext = "nap"
		}
		out = append(out, m)
	}

	unit := p.WeightUnit
	if unit == "" {
		unit = unitPounds
	}
	bad(p.Weight.bad)
	for _, w := range p.Weight.items {
		clock := w.Time
		if clock == "" {
			clock = "00:00:00"
		}
		ts, err := time.Parse(time.DateTime, w.Date+" "+clock)
		if err != nil {
			bad(1)
			continue
		}
		add(sample{models.MetricWeight, w.Weight, unit, ts, nil, models.SamplingInstant, models.DataSourceSensor})
	}

	return out, nil
}
