package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 2, 3}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should register its collectors on that registry", func() {
				So(m, ShouldNotBeNil)
				m.RecordFlag("acwr", "HIGH_RISK")

				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_flags_total")
			})
		})
	})
}

func TestManagerRecorders(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

		Convey("When recording evaluations and flags", func() {
			m.RecordEvaluation("RED", "high_risk_flag", 1.5)
			m.RecordEvaluation("RED", "high_risk_flag", 0.5)
			m.RecordFlag("sleep_hours", "CAUTION")
			m.RecordUnknownMetric("acwr", "INSUFFICIENT_HISTORY")
			m.RecordScore(false, 0)
			m.RecordScore(true, 86)

			Convey("Then the counters should reflect them", func() {
				So(testutil.ToFloat64(m.evaluations.WithLabelValues("RED", "high_risk_flag")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.flags.WithLabelValues("sleep_hours", "CAUTION")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.unknownMetrics.WithLabelValues("acwr", "INSUFFICIENT_HISTORY")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.scoreUnavailable), ShouldEqual, 1)
			})
		})

		Convey("When recording a batch", func() {
			m.RecordBatch(12, 40, 1_700_000_000)

			Convey("Then the batch gauges should be set", func() {
				So(testutil.ToFloat64(m.lastBatchAthletes), ShouldEqual, 12)
				So(testutil.ToFloat64(m.lastBatchUnixEpoch), ShouldEqual, 1_700_000_000)
			})
		})
	})

	Convey("Given a disabled manager", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithMetricsEnabled(false))

		Convey("When recording a flag", func() {
			m.RecordFlag("acwr", "CAUTION")

			Convey("Then nothing should be counted", func() {
				So(testutil.ToFloat64(m.flags.WithLabelValues("acwr", "CAUTION")), ShouldEqual, 0)
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When calling the package-level helpers", func() {
			So(func() {
				RecordEvaluation("GREEN", "all_clear", 0.2)
				RecordScore(true, 90)
				RecordFlag("asymmetry_pct", "CAUTION")
				RecordUnknownMetric("hrv_ms_z", "MISSING_INPUT")
				RecordBatch(3, 1, 1)
				UpdateRosterSize(3)
				RecordRecordIngested("wellness")
				RecordRecordMalformed("load")
				RecordRecordDuplicate()
				RecordRepositoryLatency("history", 0.1)
				UpdateQueueSize(1)
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError("closed")
				UpdateWorkerCount(2)
				RecordWorkerError()
				RecordHTTPRequest("status", "GET", "200")
				RecordHTTPRequestDuration("status", "GET", "200", 3)
				RecordErrorByComponent("worker", "evaluation_error")
			}, ShouldNotPanic)

			Convey("Then the custom registry should expose them", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(testutil.ToFloat64(globalManager.rosterSize), ShouldEqual, 3)
			})
		})
	})
}

func TestRegisterRuntimeCollectors(t *testing.T) {
	Convey("Given the global registry", t, func() {
		Convey("When runtime collectors are registered twice", func() {
			So(RegisterRuntimeCollectors(), ShouldBeNil)
			So(RegisterRuntimeCollectors(), ShouldBeNil)

			Convey("Then Go runtime metrics should be gathered", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "go_goroutines" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}
