package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/readiness/internal/adapters/csvfile"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/internal/synth"
	"github.com/okian/readiness/pkg/logger"
)

// Default generator and replay settings.
const (
	defaultAthletes      = 20
	defaultDays          = 42
	defaultReplayTimeout = 30 * time.Second
	defaultReplayRunTime = 10 * time.Minute
)

func newSynthCmd(_ *RootConfig) *cobra.Command {
	var (
		athletes int
		days     int
		startStr string
		seed     int64
		outDir   string
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic roster and daily records",
		Long: `Write roster.csv and records.csv with reproducible synthetic data.
Athletes cycle through five profiles: steady, load_spike, poor_sleep,
declining and late_joiner.

Example:
  readiness synth --athletes 25 --days 42 --start 2026-02-01 --seed 7 --out-dir ./data`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := startDay(startStr, days)
			if err != nil {
				return err
			}
			ds, err := synth.Generate(cmd.Context(), synth.Config{
				Athletes: athletes,
				Days:     days,
				Start:    start,
				Seed:     seed,
				Workers:  runtime.NumCPU(),
			})
			if err != nil {
				return err
			}
			if err := synth.WriteFiles(cmd.Context(), outDir, ds); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d athletes and %d records to %s\n",
				len(ds.Roster), len(ds.Records), outDir)
			return err
		},
	}

	cmd.Flags().IntVar(&athletes, "athletes", defaultAthletes, "number of athletes")
	cmd.Flags().IntVar(&days, "days", defaultDays, "days of history per athlete")
	cmd.Flags().StringVar(&startStr, "start", "", "first day, YYYY-MM-DD (default: so the last day is today)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "output directory")
	return cmd
}

func newReplayCmd(_ *RootConfig) *cobra.Command {
	var (
		baseURL string
		dir     string
		workers int
		timeout time.Duration
		dateStr string
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Post a roster and records to a running service",
		Long: `Read roster.csv and records.csv from --dir, upsert the roster, post
every record to /records concurrently and evaluate the last record day
(or --date) through /evaluations.

Example:
  readiness replay --url http://localhost:9080 --dir ./data --workers 16`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var day time.Time
			if dateStr != "" {
				d, err := model.ParseDay(dateStr)
				if err != nil {
					return fmt.Errorf("bad --date: %w", err)
				}
				day = d
			}

			roster, err := readFile(filepath.Join(dir, synth.RosterFile), csvfile.ReadRoster)
			if err != nil {
				return err
			}
			f, err := os.Open(filepath.Join(dir, synth.RecordsFile))
			if err != nil {
				return fmt.Errorf("open records: %w", err)
			}
			records, malformed, err := csvfile.ReadRecords(f)
			_ = f.Close()
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			for _, m := range malformed {
				logger.Get().Warn(cmd.Context(), "skipping malformed record", logger.Error(m))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultReplayRunTime)
			defer cancel()
			stats, err := synth.Replay(ctx, synth.ReplayConfig{
				BaseURL: baseURL,
				Workers: workers,
				Timeout: timeout,
				Date:    day,
			}, &synth.Dataset{Roster: roster, Records: records})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"submitted %d records (accepted %d, duplicate %d, failed %d); %d statuses: GREEN %d, YELLOW %d, RED %d\n",
				stats.RecordsSubmitted, stats.RecordsAccepted, stats.RecordsDuplicate, stats.RecordsFailed,
				stats.StatusesEvaluated, stats.ByStatus[types.StatusGreen], stats.ByStatus[types.StatusYellow], stats.ByStatus[types.StatusRed])
			return err
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:9080", "base URL of the service")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory holding roster.csv and records.csv")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU()*2, "concurrent submitters")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultReplayTimeout, "HTTP request timeout")
	cmd.Flags().StringVar(&dateStr, "date", "", "day to evaluate, YYYY-MM-DD (default: last record day)")
	return cmd
}

// startDay parses s, or picks the start that ends a days-long run today.
func startDay(s string, days int) (time.Time, error) {
	if s == "" {
		return model.Day(time.Now().UTC()).AddDate(0, 0, 1-days), nil
	}
	d, err := model.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad --start: %w", err)
	}
	return d, nil
}
