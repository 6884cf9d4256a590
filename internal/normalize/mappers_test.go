// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package normalize

import (
	"testing"
	"time"

	"github.com/tomtom215/vitalsync/internal/models"
)

func byType(ms []models.UnifiedHealthMetric) map[models.MetricType][]models.UnifiedHealthMetric {
	out := make(map[models.MetricType][]models.UnifiedHealthMetric)
	for _, m := range ms {
		out[m.MetricType] = append(out[m.MetricType], m)
	}
	return out
}

func TestMapFitbit(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"activities-steps":[{"dateTime":"2026-03-01","value":"8512"}],
		"activities-heart":[{"dateTime":"2026-03-01","value":{"restingHeartRate":58}}],
		"activities-heart-intraday":{"dataset":[{"time":"08:00:00","value":72},{"time":"08:01:00","value":75}]},
		"sleep":[{"dateOfSleep":"2026-03-01","startTime":"2026-02-28T23:10:00.000","endTime":"2026-03-01T06:40:00.000","minutesAsleep":420,"isMainSleep":true}],
		"weight":[{"date":"2026-03-01","time":"07:00:00","weight":165.2}]
	}`)

	got, err := MapFitbit("u1", payload)
	if err != nil {
		t.Fatalf("MapFitbit() error = %v", err)
	}
	types := byType(got)

	if s := types[models.MetricSteps]; len(s) != 1 || s[0].Value != 8512 || s[0].SamplingRate != models.SamplingDailySummary {
		t.Errorf("steps = %+v", s)
	}
	if hr := types[models.MetricHeartRate]; len(hr) != 2 || !hr[0].StartTime.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("intraday heart rate = %+v", hr)
	}
	if r := types[models.MetricRestingHeartRate]; len(r) != 1 || r[0].Value != 58 {
		t.Errorf("resting = %+v", r)
	}
	if s := types[models.MetricSleepDuration]; len(s) != 1 || s[0].Value != 420 || s[0].EndTime == nil {
		t.Errorf("sleep = %+v", s)
	}
	w := types[models.MetricWeight]
	if len(w) != 1 || !approx(w[0].Value, 165.2*KilogramsPerPound) || w[0].Unit != models.UnitKG {
		t.Errorf("weight = %+v", w)
	}
}

func TestMapFitbit_BadStepValue(t *testing.T) {
	t.Parallel()

	got, err := MapFitbit("u1", []byte(`{"activities-steps":[{"dateTime":"2026-03-01","value":"many"},{"dateTime":"2026-03-02","value":"900"}]}`))
	if err != nil {
		t.Fatalf("MapFitbit() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if Validate(&got[0]) != ReasonMalformedRecord {
		t.Errorf("non-numeric steps: Validate() = %q, want %q", Validate(&got[0]), ReasonMalformedRecord)
	}
	if got[1].Value != 900 {
		t.Errorf("valid day = %+v", got[1])
	}
}

func TestMapOura(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"sleep":[{"day":"2026-03-01","bedtime_start":"2026-02-28T23:00:00+01:00","bedtime_end":"2026-03-01T07:00:00+01:00","total_sleep_duration":25200,"lowest_heart_rate":49,"type":"long_sleep"}],
		"readiness":[{"day":"2026-03-01","average_hrv":48,"temperature_deviation":-0.2}],
		"heartrate":[{"bpm":61,"source":"rest","timestamp":"2026-03-01T10:00:00+00:00"}]
	}`)

	got, err := MapOura("u1", payload)
	if err != nil {
		t.Fatalf("MapOura() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 metrics (temperature skipped), got %d", len(got))
	}
	types := byType(got)
	sleep := types[models.MetricSleepDuration][0]
	if sleep.Value != 420 || sleep.Unit != models.UnitMinutes {
		t.Errorf("sleep = %+v", sleep)
	}
	if !sleep.StartTime.Equal(time.Date(2026, 2, 28, 22, 0, 0, 0, time.UTC)) || sleep.StartTime.Location() != time.UTC {
		t.Errorf("sleep start not normalized to UTC: %v", sleep.StartTime)
	}
	if types[models.MetricHRV][0].Value != 48 {
		t.Errorf("hrv = %+v", types[models.MetricHRV])
	}
	if types[models.MetricHeartRate][0].ActivityContext != "rest" {
		t.Errorf("heart rate context = %q", types[models.MetricHeartRate][0].ActivityContext)
	}
}

func TestMapDexcom_MmolAndMissing(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"records":[
		{"systemTime":"2026-03-01T08:00:00Z","value":5.5,"unit":"mmol/L"},
		{"systemTime":"2026-03-01T08:05:00Z","value":null,"unit":"mg/dL","status":"high"}
	]}`)

	got, err := MapDexcom("u1", payload)
	if err != nil {
		t.Fatalf("MapDexcom() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 raw records, got %d", len(got))
	}
	if !approx(got[0].Value, 5.5*GlucoseMmolToMgDL) || got[0].Unit != models.UnitMgDL {
		t.Errorf("converted = %+v", got[0])
	}
	if Validate(&got[1]) != ReasonNonFinite {
		t.Errorf("missing value should be dropped as non-finite, got %q", Validate(&got[1]))
	}

	if _, err := MapDexcom("u1", []byte(`{"recordType":"calibration","records":[]}`)); err == nil {
		t.Error("expected error for non-egv record type")
	}
}

func TestMapWithings(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"status":0,"body":{"measuregrps":[
		{"grpid":1,"date":1772352000,"category":1,"measures":[
			{"value":72500,"type":1,"unit":-3},
			{"value":120,"type":10,"unit":0},
			{"value":80,"type":9,"unit":0},
			{"value":975,"type":54,"unit":-1},
			{"value":366,"type":71,"unit":-1},
			{"value":1,"type":999,"unit":0}
		]},
		{"grpid":2,"date":1772352000,"category":2,"measures":[{"value":70000,"type":1,"unit":-3}]}
	]}}`)

	got, err := MapWithings("u1", payload)
	if err != nil {
		t.Fatalf("MapWithings() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 metrics, got %d", len(got))
	}
	types := byType(got)
	if !approx(types[models.MetricWeight][0].Value, 72.5) {
		t.Errorf("weight = %v", types[models.MetricWeight][0].Value)
	}
	if !approx(types[models.MetricSpO2][0].Value, 97.5) {
		t.Errorf("spo2 = %v", types[models.MetricSpO2][0].Value)
	}
	if !approx(types[models.MetricBodyTemperature][0].Value, 36.6) {
		t.Errorf("temperature = %v", types[models.MetricBodyTemperature][0].Value)
	}
	if types[models.MetricBPSystolic][0].Value != 120 || types[models.MetricBPDiastolic][0].Value != 80 {
		t.Error("blood pressure not mapped")
	}

	if _, err := MapWithings("u1", []byte(`{"status":401,"body":{}}`)); err == nil {
		t.Error("expected error for non-zero status")
	}
}

func TestMapGarmin_DistanceInKM(t *testing.T) {
	t.Parallel()

	got, err := MapGarmin("u1", []byte(`{"dailies":[{"summaryId":"a","startTimeInSeconds":1772323200,"durationInSeconds":86400,"distanceInMeters":7012.5}]}`))
	if err != nil {
		t.Fatalf("MapGarmin() error = %v", err)
	}
	if len(got) != 1 || !approx(got[0].Value, 7.0125) || got[0].Unit != models.UnitKM {
		t.Errorf("distance = %+v", got)
	}
	if got[0].EndTime == nil || got[0].EndTime.Sub(got[0].StartTime) != 24*time.Hour {
		t.Errorf("expected a 24h interval, got %+v", got[0])
	}

	got, err = MapGarmin("u1", []byte(`{"dailies":[{"summaryId":"b"}]}`))
	if err != nil {
		t.Fatalf("MapGarmin() error = %v", err)
	}
	if len(got) != 1 || Validate(&got[0]) != ReasonMalformedRecord {
		t.Errorf("summary without start time = %+v, want one malformed record", got)
	}
}

func TestMapAppleHealth(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"samples":[
		{"type":"HKQuantityTypeIdentifierStepCount","value":1200,"unit":"count","startDate":"2026-03-01T08:00:00Z","endDate":"2026-03-01T09:00:00Z","sourceName":"Watch"},
		{"type":"HKQuantityTypeIdentifierOxygenSaturation","value":0.97,"unit":"%","startDate":"2026-03-01T08:00:00Z"},
		{"type":"HKQuantityTypeIdentifierBodyTemperature","value":98.6,"unit":"degF","startDate":"2026-03-01T08:00:00Z"},
		{"type":"HKQuantityTypeIdentifierActiveEnergyBurned","value":418.4,"unit":"kJ","startDate":"2026-03-01T08:00:00Z"},
		{"type":"HKCategoryTypeIdentifierSleepAnalysis","value":"asleepCore","startDate":"2026-03-01T00:00:00Z","endDate":"2026-03-01T01:30:00Z"},
		{"type":"HKCategoryTypeIdentifierSleepAnalysis","value":"inBed","startDate":"2026-03-01T00:00:00Z","endDate":"2026-03-01T08:00:00Z"},
		{"type":"HKQuantityTypeIdentifierDietaryWater","value":500,"unit":"mL","startDate":"2026-03-01T08:00:00Z"}
	]}`)

	got, err := MapAppleHealth("u1", payload)
	if err != nil {
		t.Fatalf("MapAppleHealth() error = %v", err)
	}
	types := byType(got)
	if len(got) != 5 {
		t.Fatalf("expected 5 metrics, got %d: %+v", len(got), got)
	}
	if !approx(types[models.MetricSpO2][0].Value, 97) {
		t.Errorf("spo2 = %v", types[models.MetricSpO2][0].Value)
	}
	if !approx(types[models.MetricBodyTemperature][0].Value, 37) {
		t.Errorf("temperature = %v", types[models.MetricBodyTemperature][0].Value)
	}
	if !approx(types[models.MetricActiveEnergy][0].Value, 100) {
		t.Errorf("energy = %v", types[models.MetricActiveEnergy][0].Value)
	}
	sleep := types[models.MetricSleepDuration]
	if len(sleep) != 1 || sleep[0].Value != 90 || sleep[0].ActivityContext != "asleepCore" {
		t.Errorf("sleep = %+v", sleep)
	}
	if steps := types[models.MetricSteps]; len(steps[0].Tags) != 1 || steps[0].Tags[0] != "source:Watch" {
		t.Errorf("steps tags = %v", steps[0].Tags)
	}
}

func TestNormalize_OneBadRecordKeepsTheRest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider models.Provider
		payload  string
		metrics  int
		dropped  int
	}{
		{
			name:     "dexcom bad systemTime",
			provider: models.ProviderDexcom,
			payload: `{"records":[
				{"systemTime":"2026-03-01T08:00:00Z","value":110,"unit":"mg/dL"},
				{"systemTime":"not-a-time","value":112,"unit":"mg/dL"}
			]}`,
			metrics: 1,
			dropped: 1,
		},
		{
			name:     "dexcom record of the wrong shape",
			provider: models.ProviderDexcom,
			payload: `{"records":[
				{"systemTime":"2026-03-01T08:00:00Z","value":110,"unit":"mg/dL"},
				{"systemTime":"2026-03-01T08:05:00Z","value":"high"}
			]}`,
			metrics: 1,
			dropped: 1,
		},
		{
			name:     "fitbit bad sleep start",
			provider: models.ProviderFitbit,
			payload: `{
				"activities-steps":[{"dateTime":"2026-03-01","value":"8512"}],
				"sleep":[
					{"startTime":"yesterday","endTime":"2026-03-01T06:40:00.000","minutesAsleep":420,"isMainSleep":true},
					{"startTime":"2026-03-01T13:00:00.000","endTime":"2026-03-01T13:30:00.000","minutesAsleep":30}
				]
			}`,
			metrics: 2,
			dropped: 1,
		},
		{
			name:     "fitbit bad weight date",
			provider: models.ProviderFitbit,
			payload:  `{"weightUnit":"kg","weight":[{"date":"03/01/2026","weight":70},{"date":"2026-03-02","weight":70.4}]}`,
			metrics:  1,
			dropped:  1,
		},
		{
			name:     "oura bad heartrate timestamp",
			provider: models.ProviderOura,
			payload: `{"heartrate":[
				{"bpm":61,"source":"rest","timestamp":"2026-03-01T10:00:00+00:00"},
				{"bpm":64,"source":"rest","timestamp":"10am"}
			]}`,
			metrics: 1,
			dropped: 1,
		},
		{
			name:     "oura bad readiness day",
			provider: models.ProviderOura,
			payload:  `{"readiness":[{"day":"2026-03-01","average_hrv":48},{"day":"someday","average_hrv":50}]}`,
			metrics:  1,
			dropped:  1,
		},
		{
			name:     "garmin summary without start",
			provider: models.ProviderGarmin,
			payload: `{"dailies":[
				{"summaryId":"a","startTimeInSeconds":1772323200,"durationInSeconds":86400,"steps":9000},
				{"summaryId":"b","steps":100}
			]}`,
			metrics: 1,
			dropped: 1,
		},
		{
			name:     "withings measure of the wrong shape",
			provider: models.ProviderWithings,
			payload: `{"status":0,"body":{"measuregrps":[{"grpid":1,"date":1772352000,"category":1,"measures":[
				{"value":72500,"type":1,"unit":-3},
				{"value":"heavy","type":1,"unit":0}
			]}]}}`,
			metrics: 1,
			dropped: 1,
		},
		{
			name:     "apple health bad startDate",
			provider: models.ProviderAppleHealth,
			payload: `{"samples":[
				{"type":"HKQuantityTypeIdentifierStepCount","value":1200,"unit":"count","startDate":"2026-03-01T08:00:00Z"},
				{"type":"HKQuantityTypeIdentifierStepCount","value":300,"unit":"count","startDate":"morning"}
			]}`,
			metrics: 1,
			dropped: 1,
		},
		{
			name:     "apple health non-numeric value",
			provider: models.ProviderAppleHealth,
			payload: `{"samples":[
				{"type":"HKQuantityTypeIdentifierHeartRate","value":"fast","unit":"count/min","startDate":"2026-03-01T08:00:00Z"},
				{"type":"HKQuantityTypeIdentifierHeartRate","value":64,"unit":"count/min","startDate":"2026-03-01T08:01:00Z"}
			]}`,
			metrics: 1,
			dropped: 1,
		},
	}

	n := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := n.Normalize(tt.provider, "u1", []byte(tt.payload))
			if len(res.Metrics) != tt.metrics {
				t.Errorf("metrics = %d, want %d: %+v", len(res.Metrics), tt.metrics, res.Metrics)
			}
			if res.Dropped != tt.dropped || res.DropReasons[ReasonMalformedRecord] != tt.dropped {
				t.Errorf("dropped = %d reasons = %v, want %d %s", res.Dropped, res.DropReasons, tt.dropped, ReasonMalformedRecord)
			}
			if res.DropReasons[ReasonMalformedPayload] != 0 {
				t.Errorf("a bad record should not discard the payload: %v", res.DropReasons)
			}
		})
	}
}
