// Package window derives rolling-window metrics from an athlete's
// history: acute:chronic workload ratio, personal-baseline z-scores and
// test-to-baseline deltas. All windows are trailing and include the
// target day. Callers pass a history already truncated to the target day.
package window

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/readiness/internal/domain/model"
)

// Sentinel kinds for window errors.
var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrMissingInput        = errors.New("missing input")
)

// Default window lengths in days.
const (
	DefaultAcuteDays               = 7
	DefaultChronicDays             = 21
	DefaultBaselineDays            = 28
	DefaultMinBaselineObservations = 7
)

// Config holds window lengths and history policy.
type Config struct {
	AcuteDays               int
	ChronicDays             int
	BaselineDays            int
	MinBaselineObservations int
	// MissingLoadAsZero makes days without a load record count as zero
	// load. When false, window means cover observed days only.
	MissingLoadAsZero bool
	// TestWindowDays bounds the window searched for the first test of a
	// test-to-baseline delta. Zero means the whole history.
	TestWindowDays int
	// LoadField is the load-domain field used as daily load.
	LoadField string
}

// DefaultConfig returns the standard 7/21/28 day configuration.
func DefaultConfig() Config {
	return Config{
		AcuteDays:               DefaultAcuteDays,
		ChronicDays:             DefaultChronicDays,
		BaselineDays:            DefaultBaselineDays,
		MinBaselineObservations: DefaultMinBaselineObservations,
		MissingLoadAsZero:       true,
		LoadField:               model.FieldPlayerLoad,
	}
}

// ACWRMetric is the metric name of the acute:chronic workload ratio.
const ACWRMetric = "acwr"

// Suffixes of derived metric names.
const (
	DeltaSuffix  = "_delta_pct"
	ZScoreSuffix = "_z"
)

// DeltaMetric names the test-to-baseline delta of a field.
func DeltaMetric(field string) string { return field + DeltaSuffix }

// ZScoreMetric names the baseline z-score of a field.
func ZScoreMetric(field string) string { return field + ZScoreSuffix }

// ACWR is the acute:chronic workload ratio and its components.
type ACWR struct {
	Acute   float64
	Chronic float64
	Ratio   float64
}

// Load computes the acute:chronic workload ratio on day.
func Load(h *model.History, day time.Time, cfg Config) (ACWR, error) {
	day = model.Day(day)
	series := h.Series(model.DomainLoad, cfg.LoadField)
	if len(series) == 0 {
		return ACWR{}, fmt.Errorf("%w: no %s records", ErrInsufficientHistory, cfg.LoadField)
	}

	span := model.DaysBetween(series[0].Date, day) + 1
	if span < cfg.ChronicDays {
		return ACWR{}, fmt.Errorf("%w: %d of %d days of load", ErrInsufficientHistory, span, cfg.ChronicDays)
	}

	acute, acuteN := windowSum(series, day, cfg.AcuteDays)
	chronic, chronicN := windowSum(series, day, cfg.ChronicDays)

	var out ACWR
	if cfg.MissingLoadAsZero {
		out.Acute = acute / float64(cfg.AcuteDays)
		out.Chronic = chronic / float64(cfg.ChronicDays)
	} else {
		if acuteN == 0 {
			return ACWR{}, fmt.Errorf("%w: no load in the acute window", ErrInsufficientHistory)
		}
		out.Acute = acute / float64(acuteN)
		out.Chronic = chronic / float64(chronicN)
	}

	if out.Chronic == 0 {
		return ACWR{}, fmt.Errorf("%w: chronic load is zero", ErrInsufficientHistory)
	}
	out.Ratio = out.Acute / out.Chronic
	return out, nil
}

// windowSum sums the observations in the n days ending at day.
func windowSum(series []model.Observation, day time.Time, n int) (sum float64, count int) {
	start := day.AddDate(0, 0, -(n - 1))
	for _, o := range series {
		if o.Date.Before(start) || o.Date.After(day) {
			continue
		}
		sum += o.Value
		count++
	}
	return sum, count
}

// ZScore compares the field's value on day with its rolling baseline.
func ZScore(h *model.History, field string, day time.Time, cfg Config) (float64, error) {
	day = model.Day(day)
	today, ok := h.Value(field, day)
	if !ok {
		return 0, fmt.Errorf("%w: no %s on %s", ErrMissingInput, field, model.DayKey(day))
	}

	b := NewBaseline(field, cfg.BaselineDays)
	prior := 0
	start := day.AddDate(0, 0, -(cfg.BaselineDays - 1))
	for _, o := range h.FieldSeries(field) {
		if o.Date.Before(start) || o.Date.After(day) {
			continue
		}
		if o.Date.Before(day) {
			prior++
		}
		b.Push(o.Value)
	}
	if prior < cfg.MinBaselineObservations {
		return 0, fmt.Errorf("%w: %d of %d prior %s observations",
			ErrInsufficientHistory, prior, cfg.MinBaselineObservations, field)
	}

	sd := b.StdDev()
	if sd == 0 || math.IsNaN(sd) {
		return 0, fmt.Errorf("%w: %s has no variance", ErrInsufficientHistory, field)
	}
	return (today - b.Mean()) / sd, nil
}

// TestDelta returns the percentage change of the most recent test of a
// force-plate field against the first test in the active window.
func TestDelta(h *model.History, field string, day time.Time, cfg Config) (float64, error) {
	day = model.Day(day)
	var tests []model.Observation
	for _, o := range h.Series(model.DomainForcePlate, field) {
		if o.Date.After(day) {
			continue
		}
		if cfg.TestWindowDays > 0 && model.DaysBetween(o.Date, day) >= cfg.TestWindowDays {
			continue
		}
		tests = append(tests, o)
	}
	if len(tests) < 2 {
		return 0, fmt.Errorf("%w: %d %s tests", ErrInsufficientHistory, len(tests), field)
	}

	baseline := tests[0].Value
	if baseline == 0 {
		return 0, fmt.Errorf("%w: %s baseline is zero", ErrInsufficientHistory, field)
	}
	latest := tests[len(tests)-1].Value
	return (latest - baseline) / baseline * 100, nil
}
