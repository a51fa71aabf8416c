package classifier

import (
	"math"

	"github.com/linesage/linesage/internal/models"
)

// ThresholdRange holds the statistical band and hard limits for one sensor.
// A NaN limit means the bound does not apply to that sensor.
type ThresholdRange struct {
	Q1          float64
	Q3          float64
	CriticalMin float64
	CriticalMax float64
	Unit        string
}

// EquipmentThresholds maps equipment type -> sensor -> band.
var EquipmentThresholds = map[string]map[string]ThresholdRange{
	"PRESS": {
		"PRESSURE":  {Q1: 75, Q3: 95, CriticalMin: math.NaN(), CriticalMax: 125, Unit: "bar"},
		"VIBRATION": {Q1: 3.2, Q3: 8.5, CriticalMin: math.NaN(), CriticalMax: 15.0, Unit: "mm/s"},
		"CURRENT":   {Q1: 4.0, Q3: 7.5, CriticalMin: math.NaN(), CriticalMax: 10.0, Unit: "A"},
	},
	"WELD": {
		"SENSOR_VALUE": {Q1: 8.0, Q3: 14.0, CriticalMin: 5.0, CriticalMax: math.NaN(), Unit: "V"},
		"TEMPERATURE":  {Q1: 180, Q3: 250, CriticalMin: math.NaN(), CriticalMax: 300, Unit: "°C"},
	},
	"PAINT": {
		"THICKNESS":   {Q1: 20, Q3: 35, CriticalMin: 15, CriticalMax: math.NaN(), Unit: "μm"},
		"VOLTAGE":     {Q1: 200, Q3: 250, CriticalMin: 180, CriticalMax: 270, Unit: "V"},
		"TEMPERATURE": {Q1: 60, Q3: 85, CriticalMin: math.NaN(), CriticalMax: 100, Unit: "°C"},
	},
}

// SensorReading is one numeric measurement attached to a question.
type SensorReading struct {
	Equipment string  `json:"equipment"`
	Sensor    string  `json:"sensor"`
	Value     float64 `json:"value"`
}

// GradeReading maps a measurement onto a severity. Values past a critical
// limit are critical; values outside the interquartile band are high.
func GradeReading(r SensorReading) models.Severity {
	band, ok := EquipmentThresholds[r.Equipment][r.Sensor]
	if !ok {
		return models.SeverityNormal
	}
	if !math.IsNaN(band.CriticalMax) && r.Value > band.CriticalMax {
		return models.SeverityCritical
	}
	if !math.IsNaN(band.CriticalMin) && r.Value < band.CriticalMin {
		return models.SeverityCritical
	}
	if r.Value < band.Q1 || r.Value > band.Q3 {
		return models.SeverityHigh
	}
	return models.SeverityNormal
}

// severityRank orders severities for escalation comparisons.
var severityRank = map[models.Severity]int{
	models.SeverityLow:      0,
	models.SeverityNormal:   1,
	models.SeverityHigh:     2,
	models.SeverityCritical: 3,
}

// escalate returns the more urgent of two severities.
func escalate(a, b models.Severity) models.Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}
