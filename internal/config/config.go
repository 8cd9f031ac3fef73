// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - Structural problems are reported wrapped in ErrInvalidConfig.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"

	"github.com/okian/readiness/internal/domain/assess"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/readiness"
	"github.com/okian/readiness/internal/domain/status"
	"github.com/okian/readiness/internal/domain/threshold"
	"github.com/okian/readiness/internal/domain/window"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// RequiredThresholds must be present in every threshold set.
var RequiredThresholds = []string{"acwr", "sleep_hours", "jump_height_cm_delta_pct", "asymmetry_pct"}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory re-evaluation queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// WorkerCount sets the number of re-evaluation workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// DedupeSize sets how many record ids are remembered.
	DedupeSize int `koanf:"dedupe_size" validate:"gt=0"`

	// BatchConcurrency caps athletes evaluated at once by a batch run.
	BatchConcurrency int `koanf:"batch_concurrency" validate:"gt=0"`

	Storage Storage `koanf:"storage"`
	Window  Window  `koanf:"window"`
	Score   Score   `koanf:"score"`

	// Thresholds maps metric names to their boundaries. A thresholds
	// section in the file replaces the defaults as a whole.
	Thresholds map[string]threshold.Threshold `koanf:"thresholds"`

	// ZScoreFields and TestFields select the derived metrics.
	ZScoreFields []string `koanf:"zscore_fields"`
	TestFields   []string `koanf:"test_fields"`
}

// Storage selects the repository backend.
type Storage struct {
	Driver string `koanf:"driver" validate:"oneof=memory sqlite"`
	// Path is the SQLite database file.
	Path string `koanf:"path" validate:"required_if=Driver sqlite"`
}

// Window holds the rolling-window lengths.
type Window struct {
	AcuteDays               int  `koanf:"acute_days" validate:"gt=0"`
	ChronicDays             int  `koanf:"chronic_days" validate:"gtfield=AcuteDays"`
	BaselineDays            int  `koanf:"baseline_days" validate:"gt=1"`
	MinBaselineObservations int  `koanf:"min_baseline_observations" validate:"gt=1,ltefield=BaselineDays"`
	MissingLoadAsZero       bool `koanf:"missing_load_as_zero"`
	TestWindowDays          int  `koanf:"test_window_days" validate:"gte=0"`
}

// Score holds the composite score settings.
type Score struct {
	SleepTargetHours float64 `koanf:"sleep_target_hours" validate:"gt=0,lte=24"`
	RedBelow         int     `koanf:"red_below" validate:"gte=0,lte=100"`
	YellowBelow      int     `koanf:"yellow_below" validate:"gtefield=RedBelow,lte=101"`
}

// New creates a Config with defaults. The context is reserved for
// loaders that need it.
func New(_ context.Context) *Config {
	w := window.DefaultConfig()
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		QueueSize:        10_000,
		WorkerCount:      runtime.NumCPU(),
		DedupeSize:       100_000,
		BatchConcurrency: runtime.NumCPU(),
		Storage:          Storage{Driver: DriverMemory},
		Window: Window{
			AcuteDays:               w.AcuteDays,
			ChronicDays:             w.ChronicDays,
			BaselineDays:            w.BaselineDays,
			MinBaselineObservations: w.MinBaselineObservations,
			MissingLoadAsZero:       w.MissingLoadAsZero,
			TestWindowDays:          w.TestWindowDays,
		},
		Score: Score{
			SleepTargetHours: readiness.DefaultSleepTarget,
			RedBelow:         status.DefaultRedBelow,
			YellowBelow:      status.DefaultYellowBelow,
		},
		Thresholds:   threshold.Defaults(),
		ZScoreFields: []string{model.FieldHRV, model.FieldRestingHR},
		TestFields:   []string{model.FieldJumpHeight, model.FieldRSI},
	}
}

// Validate checks struct tags and the domain rules.
func (c *Config) Validate(ctx context.Context) error {
	if err := validator.New().StructCtx(ctx, c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	for _, m := range RequiredThresholds {
		if _, ok := c.Thresholds[m]; !ok {
			return fmt.Errorf("%w: missing threshold %q", ErrInvalidConfig, m)
		}
	}
	if err := threshold.Set(c.Thresholds).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.statusConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Rules().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Rules builds the evaluation rules. Call Validate first.
func (c *Config) Rules() assess.Rules {
	thresholds := make(threshold.Set, len(c.Thresholds))
	for k, v := range c.Thresholds {
		thresholds[k] = v
	}
	w := window.DefaultConfig()
	w.AcuteDays = c.Window.AcuteDays
	w.ChronicDays = c.Window.ChronicDays
	w.BaselineDays = c.Window.BaselineDays
	w.MinBaselineObservations = c.Window.MinBaselineObservations
	w.MissingLoadAsZero = c.Window.MissingLoadAsZero
	w.TestWindowDays = c.Window.TestWindowDays

	return assess.Rules{
		Thresholds:   thresholds,
		Window:       w,
		Scorer:       readiness.NewScorer(readiness.WithSleepTarget(c.Score.SleepTargetHours)),
		Status:       c.statusConfig(),
		ZScoreFields: append([]string(nil), c.ZScoreFields...),
		TestFields:   append([]string(nil), c.TestFields...),
	}
}

func (c *Config) statusConfig() status.Config {
	return status.Config{RedBelow: c.Score.RedBelow, YellowBelow: c.Score.YellowBelow}
}
