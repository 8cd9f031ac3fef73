// Package assess runs the full daily evaluation for one athlete: derive
// rolling metrics, classify them, score the day and resolve the status.
package assess

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/readiness"
	"github.com/okian/readiness/internal/domain/status"
	"github.com/okian/readiness/internal/domain/threshold"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/internal/domain/window"
)

// Rules is the immutable configuration of an evaluation. A Rules value
// is shared read-only by every concurrent evaluation.
type Rules struct {
	Thresholds threshold.Set
	Window     window.Config
	Scorer     *readiness.Scorer
	Status     status.Config
	// ZScoreFields are compared against the athlete's rolling baseline.
	ZScoreFields []string
	// TestFields are force-plate fields compared against the first test.
	TestFields []string
}

// ErrUnboundMetric reports a threshold named like a derived metric whose
// source field is not configured for derivation.
var ErrUnboundMetric = errors.New("threshold for underived metric")

// Validate checks that every threshold named like a z-score or test delta
// has its field listed in ZScoreFields or TestFields.
func (r Rules) Validate() error {
	for _, m := range r.Thresholds.Metrics() {
		if f, ok := strings.CutSuffix(m, window.ZScoreSuffix); ok && !slices.Contains(r.ZScoreFields, f) {
			return fmt.Errorf("%w: %q needs %q in zscore_fields", ErrUnboundMetric, m, f)
		}
		if f, ok := strings.CutSuffix(m, window.DeltaSuffix); ok && !slices.Contains(r.TestFields, f) {
			return fmt.Errorf("%w: %q needs %q in test_fields", ErrUnboundMetric, m, f)
		}
	}
	return nil
}

// DefaultRules returns the stock rules.
func DefaultRules() Rules {
	return Rules{
		Thresholds:   threshold.Defaults(),
		Window:       window.DefaultConfig(),
		Scorer:       readiness.NewScorer(),
		Status:       status.DefaultConfig(),
		ZScoreFields: []string{model.FieldHRV, model.FieldRestingHR},
		TestFields:   []string{model.FieldJumpHeight, model.FieldRSI},
	}
}

// Evaluate computes the DailyStatus of athleteID on day. Only records
// dated on or before day are read.
func Evaluate(athleteID string, h *model.History, day time.Time, r Rules) types.DailyStatus {
	day = model.Day(day)
	if h == nil {
		h = model.NewHistory(athleteID, nil)
	}
	past := h.Until(day)

	e := evaluation{rules: r}

	derived := make(map[string]bool)
	derived[window.ACWRMetric] = true
	if r.Thresholds.Has(window.ACWRMetric) {
		acwr, err := window.Load(past, day, r.Window)
		e.observe(window.ACWRMetric, acwr.Ratio, err)
	}
	for _, f := range r.TestFields {
		m := window.DeltaMetric(f)
		derived[m] = true
		if r.Thresholds.Has(m) {
			v, err := window.TestDelta(past, f, day, r.Window)
			e.observe(m, v, err)
		}
	}
	for _, f := range r.ZScoreFields {
		m := window.ZScoreMetric(f)
		derived[m] = true
		if r.Thresholds.Has(m) {
			v, err := window.ZScore(past, f, day, r.Window)
			e.observe(m, v, err)
		}
	}

	same := past.SameDay(day)
	for _, m := range r.Thresholds.Metrics() {
		if derived[m] {
			continue
		}
		v, ok := same[m]
		if !ok {
			e.observe(m, 0, window.ErrMissingInput)
			continue
		}
		e.observe(m, v, nil)
	}

	scorer := r.Scorer
	if scorer == nil {
		scorer = readiness.NewScorer()
	}
	score := scorer.Score(same)
	res := status.Resolve(score, e.flags, r.Status)

	return types.DailyStatus{
		AthleteID:   athleteID,
		Date:        day,
		Status:      res.Status,
		Score:       score,
		ActiveFlags: res.ActiveFlags,
		Unknown:     e.unknown,
		Resolution:  res.Resolution,
	}
}

type evaluation struct {
	rules   Rules
	flags   []types.RiskFlag
	unknown []types.Unknown
}

// observe classifies a computed metric, or records it as unknown when
// err says it could not be computed.
func (e *evaluation) observe(metric string, v float64, err error) {
	switch {
	case err == nil:
		if f, ok := e.rules.Thresholds.Flag(metric, v); ok {
			e.flags = append(e.flags, f)
		}
	case errors.Is(err, window.ErrMissingInput):
		e.unknown = append(e.unknown, types.Unknown{Metric: metric, Reason: types.ReasonMissingInput})
	default:
		e.unknown = append(e.unknown, types.Unknown{Metric: metric, Reason: types.ReasonInsufficientHistory})
	}
}

// Evaluator evaluates athletes under a fixed set of rules.
type Evaluator struct {
	rules Rules
}

// NewEvaluator binds rules to an Evaluator.
func NewEvaluator(r Rules) *Evaluator {
	return &Evaluator{rules: r}
}

// Rules returns the evaluator's rules.
func (e *Evaluator) Rules() Rules { return e.rules }

// Evaluate runs Evaluate with the bound rules.
func (e *Evaluator) Evaluate(athleteID string, h *model.History, day time.Time) types.DailyStatus {
	return Evaluate(athleteID, h, day, e.rules)
}
