package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/readiness/internal/config"
	"github.com/okian/readiness/internal/domain/threshold"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.Thresholds, convey.ShouldResemble, map[string]threshold.Threshold(threshold.Defaults()))
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("READINESS_ADDR", ":8080")
			t.Setenv("READINESS_QUEUE_SIZE", "500")
			t.Setenv("READINESS_WORKER_COUNT", "16")
			t.Setenv("READINESS_WINDOW__CHRONIC_DAYS", "28")
			t.Setenv("READINESS_SCORE__RED_BELOW", "55")
			t.Setenv("READINESS_THRESHOLDS__ACWR__CAUTION", "1.25")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.Window.ChronicDays, convey.ShouldEqual, 28)
				convey.So(cfg.Score.RedBelow, convey.ShouldEqual, 55)
			})

			convey.Convey("Then a single threshold key should keep the rest of the default", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Thresholds["acwr"], convey.ShouldResemble,
					threshold.Threshold{Caution: 1.25, HighRisk: 1.5, Direction: threshold.HigherIsWorse})
				convey.So(cfg.Thresholds, convey.ShouldContainKey, "hrv_ms_z")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := writeConfigFile(t, `
addr: ":9090"
queue_size: 3000
storage:
  driver: sqlite
  path: /tmp/readiness.db
window:
  acute_days: 5
  chronic_days: 20
score:
  sleep_target_hours: 7.5
zscore_fields: [hrv_ms]
thresholds:
  acwr:           {caution: 1.3, high_risk: 1.5, direction: higher_is_worse}
  sleep_hours:    {caution: 7, high_risk: 6, direction: lower_is_worse}
  jump_height_cm_delta_pct: {caution: -5, high_risk: -10, direction: lower_is_worse}
  asymmetry_pct:  {caution: 10, high_risk: 15, direction: higher_is_worse}
`)
			t.Setenv(config.EnvConfigPath, path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 3000)
				convey.So(cfg.Storage.Driver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.Window.AcuteDays, convey.ShouldEqual, 5)
				convey.So(cfg.Window.BaselineDays, convey.ShouldEqual, 28)
				convey.So(cfg.Score.SleepTargetHours, convey.ShouldEqual, 7.5)
				convey.So(cfg.ZScoreFields, convey.ShouldResemble, []string{"hrv_ms"})
			})

			convey.Convey("Then the file's thresholds should replace the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Thresholds, convey.ShouldHaveLength, 4)
				convey.So(cfg.Thresholds["sleep_hours"].Direction, convey.ShouldEqual, threshold.LowerIsWorse)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeConfigFile(t, `
addr: ":9090"
queue_size: 3000
worker_count: 24
`)
			t.Setenv(config.EnvConfigPath, path)
			t.Setenv("READINESS_ADDR", ":8080")
			t.Setenv("READINESS_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 3000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When the file drops a required threshold", func() {
			path := writeConfigFile(t, `
thresholds:
  acwr: {caution: 1.3, high_risk: 1.5, direction: higher_is_worse}
`)
			cfg, err := config.LoadFile(ctx, path)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "sleep_hours")
			})
		})

		convey.Convey("When the windows are out of order", func() {
			t.Setenv("READINESS_WINDOW__ACUTE_DAYS", "30")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			path := writeConfigFile(t, "addr: [unclosed")
			_, err := config.LoadFile(ctx, path)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with non-existent file", func() {
			_, err := config.LoadFile(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("READINESS_QUEUE_SIZE", "lots")
			_, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When loading config with a zero worker count", func() {
			t.Setenv("READINESS_WORKER_COUNT", "0")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// Helper functions.

func clearConfigEnvVars(t *testing.T) {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
			_ = os.Unsetenv(name)
		}
	}
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "readiness.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
