package telemetry

import (
	"math"
	"strings"
)

// SensorPolicy holds the per-deployment calibration offsets and the anomaly
// ceiling applied during ingestion. Variable names match case-insensitively.
type SensorPolicy struct {
	ceiling      float64
	exempt       map[string]bool
	calibrations map[string]float64
}

// DefaultCeiling bounds non-exempt readings when no ceiling is configured.
const DefaultCeiling = 1000

// NewSensorPolicy builds a policy. A non-positive ceiling falls back to
// DefaultCeiling.
func NewSensorPolicy(ceiling float64, exempt []string, calibrations map[string]float64) SensorPolicy {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	p := SensorPolicy{
		ceiling:      ceiling,
		exempt:       make(map[string]bool, len(exempt)),
		calibrations: make(map[string]float64, len(calibrations)),
	}
	for _, name := range exempt {
		p.exempt[strings.ToLower(name)] = true
	}
	for name, offset := range calibrations {
		p.calibrations[strings.ToLower(name)] = offset
	}
	return p
}

// Calibrate applies the variable's additive correction, if any.
func (p SensorPolicy) Calibrate(variable string, value float64) float64 {
	return value + p.calibrations[strings.ToLower(variable)]
}

// Anomalous reports whether a calibrated value must be dropped. Exempt
// variables have no ceiling; for all others the bound is inclusive, so a
// value exactly at the ceiling passes.
func (p SensorPolicy) Anomalous(variable string, value float64) bool {
	if p.exempt[strings.ToLower(variable)] {
		return false
	}
	return math.Abs(value) > p.ceiling
}

// Ceiling returns the configured bound.
func (p SensorPolicy) Ceiling() float64 { return p.ceiling }
