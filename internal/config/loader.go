package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/readiness/internal/domain/threshold"
)

// Environment settings.
const (
	EnvPrefix     = "READINESS_"
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if READINESS_CONFIG is set
//  3. env (prefix READINESS_, "__" separates nested keys)
func Load(ctx context.Context) (*Config, error) {
	return LoadFile(ctx, os.Getenv(EnvConfigPath))
}

// LoadFile is Load with an explicit file path. An empty path skips the
// file layer.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}
	// collections given in the file replace the defaults; env only
	// overrides single keys
	cfg := *base
	fileThresholds := k.Exists("thresholds")
	cfg.Thresholds = nil
	if k.Exists("zscore_fields") {
		cfg.ZScoreFields = nil
	}
	if k.Exists("test_fields") {
		cfg.TestFields = nil
	}

	// READINESS_WINDOW__ACUTE_DAYS -> window.acute_days
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		if s == EnvConfigPath {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if !fileThresholds {
		merged, err := overlayThresholds(k, base.Thresholds, cfg.Thresholds)
		if err != nil {
			return nil, err
		}
		cfg.Thresholds = merged
	}

	if err := cfg.Validate(ctx); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overlayThresholds applies env-provided threshold keys on top of the
// defaults, one field at a time.
func overlayThresholds(k *koanf.Koanf, defaults, env map[string]threshold.Threshold) (map[string]threshold.Threshold, error) {
	merged := make(map[string]threshold.Threshold, len(defaults)+len(env))
	for m, t := range defaults {
		merged[m] = t
	}
	for m := range env {
		t := merged[m]
		if err := k.UnmarshalWithConf("thresholds."+m, &t, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return nil, fmt.Errorf("%w: threshold %s: %w", ErrLoadConfig, m, err)
		}
		merged[m] = t
	}
	return merged, nil
}
