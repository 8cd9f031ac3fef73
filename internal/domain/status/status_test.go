package status_test

import (
	"errors"
	"testing"

	status "github.com/okian/readiness/internal/domain/status"
	types "github.com/okian/readiness/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func score(v int) types.Score { return types.Score{Available: true, Value: v} }

func flag(metric string, level types.Level, v float64) types.RiskFlag {
	return types.RiskFlag{Metric: metric, Level: level, Value: v}
}

func TestResolve(t *testing.T) {
	cfg := status.DefaultConfig()

	Convey("Given the default score thresholds", t, func() {
		Convey("When the composite score is unavailable", func() {
			r := status.Resolve(types.Score{Missing: []string{"mood_0_10"}}, nil, cfg)

			Convey("Then status should be RED with the unavailable rule", func() {
				So(r.Status, ShouldEqual, types.StatusRed)
				So(r.Resolution.Rule, ShouldEqual, types.RuleCompositeUnavailable)
				So(r.Resolution.Detail, ShouldContainSubstring, "mood_0_10")
			})
		})

		Convey("When a HIGH_RISK flag is present with a perfect score", func() {
			r := status.Resolve(score(100), []types.RiskFlag{flag("acwr", types.LevelHighRisk, 1.6)}, cfg)

			Convey("Then status should still be RED", func() {
				So(r.Status, ShouldEqual, types.StatusRed)
				So(r.Resolution.Rule, ShouldEqual, types.RuleHighRiskFlag)
				So(r.Resolution.Detail, ShouldEqual, "acwr=1.60 HIGH_RISK")
			})
		})

		Convey("When the score is below the red threshold", func() {
			r := status.Resolve(score(37), []types.RiskFlag{flag("sleep_hours", types.LevelCaution, 6.5)}, cfg)
			So(r.Status, ShouldEqual, types.StatusRed)
			So(r.Resolution.Rule, ShouldEqual, types.RuleScoreBelowRed)
		})

		Convey("When the score sits exactly on the red threshold", func() {
			r := status.Resolve(score(60), nil, cfg)
			So(r.Status, ShouldEqual, types.StatusYellow)
			So(r.Resolution.Rule, ShouldEqual, types.RuleScoreBelowYellow)
		})

		Convey("When the score is high but a CAUTION flag is present", func() {
			r := status.Resolve(score(90), []types.RiskFlag{flag("asymmetry_pct", types.LevelCaution, 11)}, cfg)
			So(r.Status, ShouldEqual, types.StatusYellow)
			So(r.Resolution.Rule, ShouldEqual, types.RuleCautionFlag)
		})

		Convey("When nothing is wrong", func() {
			r := status.Resolve(score(80), []types.RiskFlag{flag("acwr", types.LevelNormal, 1.0)}, cfg)

			Convey("Then status should be GREEN with no active flags", func() {
				So(r.Status, ShouldEqual, types.StatusGreen)
				So(r.Resolution.Rule, ShouldEqual, types.RuleAllClear)
				So(r.ActiveFlags, ShouldBeEmpty)
			})
		})
	})

	Convey("Given identical inputs", t, func() {
		flags := []types.RiskFlag{
			flag("sleep_hours", types.LevelCaution, 6.8),
			flag("acwr", types.LevelHighRisk, 1.7),
			flag("asymmetry_pct", types.LevelCaution, 12),
		}
		a := status.Resolve(score(72), flags, cfg)
		b := status.Resolve(score(72), flags, cfg)

		Convey("Then resolving twice should give the same result", func() {
			So(a, ShouldResemble, b)
		})

		Convey("Then active flags should be ordered by severity then metric", func() {
			So(a.ActiveFlags[0].Metric, ShouldEqual, "acwr")
			So(a.ActiveFlags[1].Metric, ShouldEqual, "asymmetry_pct")
			So(a.ActiveFlags[2].Metric, ShouldEqual, "sleep_hours")
			So(flags[0].Metric, ShouldEqual, "sleep_hours")
		})
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given status configs", t, func() {
		So(status.DefaultConfig().Validate(), ShouldBeNil)
		So(errors.Is(status.Config{RedBelow: 80, YellowBelow: 60}.Validate(), status.ErrInvalidConfig), ShouldBeTrue)
		So(errors.Is(status.Config{RedBelow: -1, YellowBelow: 60}.Validate(), status.ErrInvalidConfig), ShouldBeTrue)
	})
}
