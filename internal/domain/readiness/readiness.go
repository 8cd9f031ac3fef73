// Package readiness combines the four same-day wellness inputs into a
// composite readiness score in [0,100].
package readiness

import (
	"math"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
)

// Component weights, in points.
const (
	SleepWeight    = 30
	SorenessWeight = 25
	FatigueWeight  = 25
	MoodWeight     = 20
)

// DefaultSleepTarget is the hours of sleep that earn the full sleep weight.
const DefaultSleepTarget = 8

const surveyMax = 10

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithSleepTarget sets the hours of sleep that earn the full sleep weight.
func WithSleepTarget(hours float64) Option {
	return func(s *Scorer) {
		if hours > 0 && !math.IsInf(hours, 0) {
			s.sleepTarget = hours
		}
	}
}

// Scorer computes composite scores. It holds no mutable state and is
// safe for concurrent use.
type Scorer struct {
	sleepTarget float64
}

// NewScorer creates a Scorer with the default 8 hour sleep target.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{sleepTarget: DefaultSleepTarget}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SleepTarget returns the configured sleep target in hours.
func (s *Scorer) SleepTarget() float64 { return s.sleepTarget }

type part struct {
	field   string
	weight  float64
	inverse bool
}

var parts = []part{
	{field: model.FieldSleepHours, weight: SleepWeight},
	{field: model.FieldSoreness, weight: SorenessWeight, inverse: true},
	{field: model.FieldFatigue, weight: FatigueWeight, inverse: true},
	{field: model.FieldMood, weight: MoodWeight},
}

// Required lists the inputs the score needs, in component order.
func Required() []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.field
	}
	return out
}

// Score computes the composite score from same-day field values. If any
// required input is missing the score is unavailable and lists what was
// absent; no partial sum is produced.
func (s *Scorer) Score(fields map[string]float64) types.Score {
	var missing []string
	for _, p := range parts {
		if v, ok := fields[p.field]; !ok || math.IsNaN(v) {
			missing = append(missing, p.field)
		}
	}
	if len(missing) > 0 {
		return types.Score{Available: false, Missing: missing}
	}

	out := types.Score{Available: true, Components: make([]types.Component, 0, len(parts))}
	var total float64
	for _, p := range parts {
		in := fields[p.field]
		pts := clamp(s.points(p, in), 0, p.weight)
		total += pts
		out.Components = append(out.Components, types.Component{
			Metric: p.field,
			Input:  in,
			Points: pts,
			Weight: p.weight,
		})
	}
	out.Value = int(math.Round(clamp(total, 0, 100)))
	return out
}

func (s *Scorer) points(p part, in float64) float64 {
	if p.field == model.FieldSleepHours {
		return math.Max(in, 0) / s.sleepTarget * p.weight
	}
	v := clamp(in, 0, surveyMax)
	if p.inverse {
		v = surveyMax - v
	}
	return v / surveyMax * p.weight
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
