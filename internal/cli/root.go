// Package cli builds the readiness command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/readiness/internal/adapters/repository"
	service "github.com/okian/readiness/internal/app"
	"github.com/okian/readiness/internal/config"
	"github.com/okian/readiness/pkg/logger"
)

// RootConfig holds the persistent flags shared by every subcommand.
type RootConfig struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	stderr io.Writer
}

// NewRoot returns the readiness root command.
func NewRoot() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Daily athlete readiness evaluation",
		Long: `readiness turns daily wellness, load, force-plate and wearable records
into a GREEN/YELLOW/RED status per athlete.

Configuration is layered: defaults, then the YAML file named by --config
or READINESS_CONFIG, then READINESS_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rc.stderr = cmd.ErrOrStderr()
			return logger.Init(logger.WithWriter(rc.stderr), logger.WithFormat(rc.LogFormat))
		},
	}

	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "override log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&rc.LogFormat, "log-format", "", "override log format: text, json")

	cmd.AddCommand(
		newServeCmd(rc),
		newEvaluateCmd(rc),
		newSynthCmd(rc),
		newReplayCmd(rc),
	)
	return cmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRoot().ExecuteContext(ctx)
}

// load reads the layered config and applies the logging flags.
func (rc *RootConfig) load(ctx context.Context) (*config.Config, error) {
	path := rc.ConfigPath
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if rc.LogLevel != "" {
		cfg.LogLevel = rc.LogLevel
	}
	if rc.LogFormat != "" {
		cfg.LogFormat = rc.LogFormat
	}

	if err := logger.Init(logger.WithWriter(rc.stderr), logger.WithFormat(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// openStore opens the configured repository. A non-empty dbPath selects
// SQLite at that path regardless of the config.
func openStore(ctx context.Context, cfg *config.Config, dbPath string) (repository.Store, error) {
	driver, path := cfg.Storage.Driver, cfg.Storage.Path
	if dbPath != "" {
		driver, path = config.DriverSQLite, dbPath
	}
	switch driver {
	case config.DriverSQLite:
		store, err := repository.OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(), nil
	}
}

// newService builds a service from cfg around store.
func newService(cfg *config.Config, store repository.Store) *service.Service {
	return service.New(
		service.WithLogger(logger.Named("service")),
		service.WithStore(store),
		service.WithRules(cfg.Rules()),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithBatchConcurrency(cfg.BatchConcurrency),
	)
}
