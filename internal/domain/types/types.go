// Package types contains the per-athlete daily output contract shared by
// the scoring packages, the service and the exporters.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Level is the three-tier classification of a single metric.
type Level int

// Flag levels, ordered by severity.
const (
	LevelNormal Level = iota
	LevelCaution
	LevelHighRisk
)

var levelNames = [...]string{"NORMAL", "CAUTION", "HIGH_RISK"}

func (l Level) String() string {
	if l < LevelNormal || l > LevelHighRisk {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(b []byte) error {
	for i, n := range levelNames {
		if n == string(b) {
			*l = Level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown flag level %q", b)
}

// Status is the resolved overall daily status.
type Status string

// Daily statuses.
const (
	StatusGreen  Status = "GREEN"
	StatusYellow Status = "YELLOW"
	StatusRed    Status = "RED"
)

// Reason explains why a metric is absent from classification.
type Reason string

// Unknown-metric reasons.
const (
	ReasonInsufficientHistory Reason = "INSUFFICIENT_HISTORY"
	ReasonMissingInput        Reason = "MISSING_INPUT"
)

// Rule names the resolver condition that fixed the status.
type Rule string

// Resolution rules in precedence order.
const (
	RuleCompositeUnavailable Rule = "composite_unavailable"
	RuleHighRiskFlag         Rule = "high_risk_flag"
	RuleScoreBelowRed        Rule = "score_below_red"
	RuleScoreBelowYellow     Rule = "score_below_yellow"
	RuleCautionFlag          Rule = "caution_flag"
	RuleAllClear             Rule = "all_clear"
)

// RiskFlag is the classification of one metric on one day.
type RiskFlag struct {
	Metric string  `json:"metric"`
	Level  Level   `json:"level"`
	Value  float64 `json:"value"`
}

// Unknown is a metric that has thresholds but could not be computed.
type Unknown struct {
	Metric string `json:"metric"`
	Reason Reason `json:"reason"`
}

// Component is one weighted contribution to the composite score.
type Component struct {
	Metric string  `json:"metric"`
	Input  float64 `json:"input"`
	Points float64 `json:"points"`
	Weight float64 `json:"weight"`
}

// Score is the composite readiness score. When Available is false the
// Value is meaningless and Missing lists the absent inputs.
type Score struct {
	Available  bool        `json:"available"`
	Value      int         `json:"value"`
	Components []Component `json:"components,omitempty"`
	Missing    []string    `json:"missing,omitempty"`
}

// MarshalJSON renders an unavailable score value as the string "UNAVAILABLE".
func (s Score) MarshalJSON() ([]byte, error) {
	type alias Score
	out := struct {
		alias
		Value any `json:"value"`
	}{alias: alias(s), Value: s.Value}
	if !s.Available {
		out.Value = "UNAVAILABLE"
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (s *Score) UnmarshalJSON(b []byte) error {
	type alias Score
	var in struct {
		alias
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = Score(in.alias)
	s.Value = 0
	if s.Available && len(in.Value) > 0 {
		if err := json.Unmarshal(in.Value, &s.Value); err != nil {
			return fmt.Errorf("decode score value: %w", err)
		}
	}
	return nil
}

// String renders the score for tabular output.
func (s Score) String() string {
	if !s.Available {
		return "UNAVAILABLE"
	}
	return fmt.Sprintf("%d", s.Value)
}

// Resolution records which resolver condition fired.
type Resolution struct {
	Rule   Rule   `json:"rule"`
	Detail string `json:"detail,omitempty"`
}

// DailyStatus is the per-athlete, per-day result handed to exporters.
type DailyStatus struct {
	AthleteID   string     `json:"athlete_id"`
	Date        time.Time  `json:"date"`
	Status      Status     `json:"status"`
	Score       Score      `json:"composite_score"`
	ActiveFlags []RiskFlag `json:"active_flags"`
	Unknown     []Unknown  `json:"unknown"`
	Resolution  Resolution `json:"resolution"`
}
