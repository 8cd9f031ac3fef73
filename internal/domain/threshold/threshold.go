// Package threshold classifies metric values into flag levels using
// configured, direction-aware boundaries.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/okian/readiness/internal/domain/types"
)

// ErrInvalidThreshold is returned by Validate.
var ErrInvalidThreshold = errors.New("invalid threshold")

// Direction tells which way a metric moves when it gets worse.
type Direction string

// Known directions.
const (
	HigherIsWorse Direction = "higher_is_worse"
	LowerIsWorse  Direction = "lower_is_worse"
)

// Threshold holds the caution and high-risk boundaries of one metric.
// Both boundaries are inclusive of the adverse side.
type Threshold struct {
	Caution   float64   `json:"caution" koanf:"caution"`
	HighRisk  float64   `json:"high_risk" koanf:"high_risk"`
	Direction Direction `json:"direction" koanf:"direction"`
}

// adverse projects v onto an axis where larger always means worse.
func (t Threshold) adverse(v float64) float64 {
	if t.Direction == LowerIsWorse {
		return -v
	}
	return v
}

// Classify returns the level of value under t.
func (t Threshold) Classify(value float64) types.Level {
	v := t.adverse(value)
	switch {
	case v >= t.adverse(t.HighRisk):
		return types.LevelHighRisk
	case v >= t.adverse(t.Caution):
		return types.LevelCaution
	default:
		return types.LevelNormal
	}
}

// Validate checks the direction and boundary ordering.
func (t Threshold) Validate() error {
	if t.Direction != HigherIsWorse && t.Direction != LowerIsWorse {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidThreshold, t.Direction)
	}
	if math.IsNaN(t.Caution) || math.IsInf(t.Caution, 0) || math.IsNaN(t.HighRisk) || math.IsInf(t.HighRisk, 0) {
		return fmt.Errorf("%w: boundaries must be finite", ErrInvalidThreshold)
	}
	if t.adverse(t.HighRisk) < t.adverse(t.Caution) {
		return fmt.Errorf("%w: high risk %v is less severe than caution %v for %s",
			ErrInvalidThreshold, t.HighRisk, t.Caution, t.Direction)
	}
	return nil
}

// Set maps metric names to thresholds. It is read-only once built.
type Set map[string]Threshold

// Has reports whether metric has a configured threshold.
func (s Set) Has(metric string) bool {
	_, ok := s[metric]
	return ok
}

// Flag classifies value for metric. The second result is false when the
// metric has no threshold, in which case the flag is NORMAL and must not
// be reported.
func (s Set) Flag(metric string, value float64) (types.RiskFlag, bool) {
	t, ok := s[metric]
	if !ok {
		return types.RiskFlag{Metric: metric, Level: types.LevelNormal, Value: value}, false
	}
	return types.RiskFlag{Metric: metric, Level: t.Classify(value), Value: value}, true
}

// Metrics returns the configured metric names, sorted.
func (s Set) Metrics() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Validate validates every threshold in the set.
func (s Set) Validate() error {
	for _, m := range s.Metrics() {
		if err := s[m].Validate(); err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
	}
	return nil
}

// Defaults returns the stock threshold set.
func Defaults() Set {
	return Set{
		"acwr":                     {Caution: 1.3, HighRisk: 1.5, Direction: HigherIsWorse},
		"sleep_hours":              {Caution: 7, HighRisk: 6, Direction: LowerIsWorse},
		"soreness_0_10":            {Caution: 6, HighRisk: 8, Direction: HigherIsWorse},
		"fatigue_0_10":             {Caution: 6, HighRisk: 8, Direction: HigherIsWorse},
		"jump_height_cm_delta_pct": {Caution: -5, HighRisk: -10, Direction: LowerIsWorse},
		"rsi_delta_pct":            {Caution: -5, HighRisk: -10, Direction: LowerIsWorse},
		"asymmetry_pct":            {Caution: 10, HighRisk: 15, Direction: HigherIsWorse},
		"hrv_ms_z":                 {Caution: -1, HighRisk: -2, Direction: LowerIsWorse},
		"resting_hr_z":             {Caution: 1, HighRisk: 2, Direction: HigherIsWorse},
	}
}
