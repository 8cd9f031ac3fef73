// Package status resolves the daily GREEN/YELLOW/RED status from the
// composite score and the metric flags.
package status

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/readiness/internal/domain/types"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid status config")

// Default score thresholds.
const (
	DefaultRedBelow    = 60
	DefaultYellowBelow = 80
)

// Config holds the composite score thresholds.
type Config struct {
	RedBelow    int `json:"red_below" koanf:"red_below"`
	YellowBelow int `json:"yellow_below" koanf:"yellow_below"`
}

// DefaultConfig returns red below 60 and yellow below 80.
func DefaultConfig() Config {
	return Config{RedBelow: DefaultRedBelow, YellowBelow: DefaultYellowBelow}
}

// Validate checks the thresholds are in range and ordered.
func (c Config) Validate() error {
	if c.RedBelow < 0 || c.YellowBelow > 101 {
		return fmt.Errorf("%w: thresholds out of range", ErrInvalidConfig)
	}
	if c.YellowBelow < c.RedBelow {
		return fmt.Errorf("%w: yellow_below %d < red_below %d", ErrInvalidConfig, c.YellowBelow, c.RedBelow)
	}
	return nil
}

// Result is the resolved status plus the flags that drove it.
type Result struct {
	Status      types.Status
	Resolution  types.Resolution
	ActiveFlags []types.RiskFlag
}

// Resolve applies the status rules in precedence order:
//
//  1. unavailable score or any HIGH_RISK flag: RED
//  2. score below RedBelow: RED
//  3. score below YellowBelow or any CAUTION flag: YELLOW
//  4. otherwise GREEN
//
// Resolve does not modify flags.
func Resolve(score types.Score, flags []types.RiskFlag, cfg Config) Result {
	active := Active(flags)
	r := Result{ActiveFlags: active}

	var high, caution []types.RiskFlag
	for _, f := range active {
		if f.Level == types.LevelHighRisk {
			high = append(high, f)
		} else {
			caution = append(caution, f)
		}
	}

	switch {
	case !score.Available:
		r.Status = types.StatusRed
		r.Resolution = types.Resolution{
			Rule:   types.RuleCompositeUnavailable,
			Detail: "missing " + strings.Join(score.Missing, ", "),
		}
	case len(high) > 0:
		r.Status = types.StatusRed
		r.Resolution = types.Resolution{Rule: types.RuleHighRiskFlag, Detail: describe(high)}
	case score.Value < cfg.RedBelow:
		r.Status = types.StatusRed
		r.Resolution = types.Resolution{
			Rule:   types.RuleScoreBelowRed,
			Detail: fmt.Sprintf("score %d < %d", score.Value, cfg.RedBelow),
		}
	case score.Value < cfg.YellowBelow:
		r.Status = types.StatusYellow
		r.Resolution = types.Resolution{
			Rule:   types.RuleScoreBelowYellow,
			Detail: fmt.Sprintf("score %d < %d", score.Value, cfg.YellowBelow),
		}
	case len(caution) > 0:
		r.Status = types.StatusYellow
		r.Resolution = types.Resolution{Rule: types.RuleCautionFlag, Detail: describe(caution)}
	default:
		r.Status = types.StatusGreen
		r.Resolution = types.Resolution{Rule: types.RuleAllClear}
	}
	return r
}

// Active returns the CAUTION and HIGH_RISK flags, most severe first and
// then by metric name.
func Active(flags []types.RiskFlag) []types.RiskFlag {
	out := make([]types.RiskFlag, 0, len(flags))
	for _, f := range flags {
		if f.Level > types.LevelNormal {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

func describe(flags []types.RiskFlag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = fmt.Sprintf("%s=%.2f %s", f.Metric, f.Value, f.Level)
	}
	return strings.Join(parts, "; ")
}
