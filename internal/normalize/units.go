// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package normalize

import (
	"strings"

	"github.com/tomtom215/vitalsync/internal/models"
)

// Conversion constants.
const (
	MetersPerKilometer   = 1000.0
	KilometersPerMile    = 1.609344
	GlucoseMmolToMgDL    = 18.0182
	KilogramsPerPound    = 0.45359237
	GramsPerKilogram     = 1000.0
	SecondsPerMinute     = 60.0
	MillisPerMinute      = 60000.0
	MinutesPerHour       = 60.0
	KilojoulesPerKcal    = 4.184
	FahrenheitOffset     = 32.0
	FahrenheitPerCelsius = 1.8
)

// Source unit spellings that are not canonical.
const (
	unitMeters     = "m"
	unitMiles      = "mi"
	unitMmolL      = "mmol/L"
	unitPounds     = "lb"
	unitGrams      = "g"
	unitSeconds    = "s"
	unitHours      = "h"
	unitKilojoules = "kJ"
	unitFahrenheit = "°F"
)

type unitPair struct {
	from string
	to   string
}

var conversions = map[unitPair]func(float64) float64{
	{unitMeters, models.UnitKM}:         func(v float64) float64 { return v / MetersPerKilometer },
	{unitMiles, models.UnitKM}:          func(v float64) float64 { return v * KilometersPerMile },
	{unitMmolL, models.UnitMgDL}:        func(v float64) float64 { return v * GlucoseMmolToMgDL },
	{unitPounds, models.UnitKG}:         func(v float64) float64 { return v * KilogramsPerPound },
	{unitGrams, models.UnitKG}:          func(v float64) float64 { return v / GramsPerKilogram },
	{unitSeconds, models.UnitMinutes}:   func(v float64) float64 { return v / SecondsPerMinute },
	{models.UnitMS, models.UnitMinutes}: func(v float64) float64 { return v / MillisPerMinute },
	{unitHours, models.UnitMinutes}:     func(v float64) float64 { return v * MinutesPerHour },
	{unitKilojoules, models.UnitKcal}:   func(v float64) float64 { return v / KilojoulesPerKcal },
	{unitFahrenheit, models.UnitCelsius}: func(v float64) float64 {
		return (v - FahrenheitOffset) / FahrenheitPerCelsius
	},
}

// unitAliases maps lower-cased provider unit strings to one spelling.
var unitAliases = map[string]string{
	"count":                     models.UnitCount,
	"steps":                     models.UnitCount,
	"bpm":                       models.UnitBPM,
	"count/min":                 models.UnitBPM,
	"beats/min":                 models.UnitBPM,
	"ms":                        models.UnitMS,
	"min":                       models.UnitMinutes,
	"mg/dl":                     models.UnitMgDL,
	"kg":                        models.UnitKG,
	"mmhg":                      models.UnitMmHg,
	"%":                         models.UnitPercent,
	"°c":                        models.UnitCelsius,
	"degc":                      models.UnitCelsius,
	"km":                        models.UnitKM,
	"kcal":                      models.UnitKcal,
	"cal":                       models.UnitKcal, // HealthKit "Cal" is a food calorie
	"m":                         unitMeters,
	"mi":                        unitMiles,
	"mmol/l":                    unitMmolL,
	"mmol<180.1558800000541>/l": unitMmolL, // HealthKit glucose molar unit
	"lb":                        unitPounds,
	"lbs":                       unitPounds,
	"g":                         unitGrams,
	"s":                         unitSeconds,
	"sec":                       unitSeconds,
	"h":                         unitHours,
	"hr":                        unitHours,
	"kj":                        unitKilojoules,
	"°f":                        unitFahrenheit,
	"degf":                      unitFahrenheit,
}

// CanonicalizeUnit returns the shared spelling for a provider unit string.
// Unknown units are returned unchanged.
func CanonicalizeUnit(unit string) string {
	if u, ok := unitAliases[strings.ToLower(strings.TrimSpace(unit))]; ok {
		return u
	}
	return unit
}

// ToCanonical converts value from unit into the canonical unit for t.
// ok is false when t is unknown or no conversion exists; the caller keeps
// the source unit so that Validate rejects the record.
func ToCanonical(t models.MetricType, value float64, unit string) (float64, string, bool) {
	canonical, known := models.CanonicalUnit(t)
	if !known {
		return value, unit, false
	}
	from := CanonicalizeUnit(unit)
	if from == canonical {
		return value, canonical, true
	}
	if fn, ok := conversions[unitPair{from, canonical}]; ok {
		return fn(value), canonical, true
	}
	return value, unit, false
}
