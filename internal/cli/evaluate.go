package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/readiness/internal/adapters/csvfile"
	service "github.com/okian/readiness/internal/app"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/pkg/logger"
	"github.com/okian/readiness/pkg/metrics"
)

const outputPermission = 0o640

func newEvaluateCmd(rc *RootConfig) *cobra.Command {
	var (
		rosterPath  string
		recordsPath string
		dateStr     string
		outPath     string
		format      string
		dbPath      string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one day from roster and record CSV files",
		Long: `Load a roster (athlete_id,name,position,tier) and long-format records
(athlete_id,date,domain,field,value), evaluate every athlete on --date and
write one status per athlete.

Malformed records are skipped and logged. With --db the roster, records
and statuses are also kept in that SQLite file.

Example:
  readiness evaluate --roster roster.csv --records records.csv --date 2026-03-21 --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rosterPath == "" || recordsPath == "" {
				return fmt.Errorf("--roster and --records are required")
			}
			var day time.Time
			if dateStr != "" {
				d, err := model.ParseDay(dateStr)
				if err != nil {
					return fmt.Errorf("bad --date: %w", err)
				}
				day = d
			}
			if format != csvfile.FormatCSV && format != csvfile.FormatJSON {
				return fmt.Errorf("unknown --format %q (supported: csv, json)", format)
			}

			ctx := cmd.Context()
			cfg, err := rc.load(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg, dbPath)
			if err != nil {
				return err
			}
			svc := newService(cfg, store)
			defer func() {
				if err := svc.Stop(context.Background()); err != nil {
					logger.Get().Error(ctx, "service stop failed", logger.Error(err))
				}
			}()

			statuses, err := evaluateFiles(ctx, svc, rosterPath, recordsPath, day)
			if err != nil {
				return err
			}

			if outPath == "" {
				return csvfile.WriteStatuses(cmd.OutOrStdout(), format, statuses)
			}
			f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputPermission)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := csvfile.WriteStatuses(f, format, statuses); err != nil {
				_ = f.Close()
				return fmt.Errorf("write statuses: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", outPath, err)
			}
			logger.Get().Info(ctx, "statuses written",
				logger.String("path", outPath), logger.Int("statuses", len(statuses)))
			return nil
		},
	}

	cmd.Flags().StringVar(&rosterPath, "roster", "", "roster CSV (required)")
	cmd.Flags().StringVar(&recordsPath, "records", "", "long-format records CSV (required)")
	cmd.Flags().StringVar(&dateStr, "date", "", "day to evaluate, YYYY-MM-DD (default: latest record day)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", csvfile.FormatCSV, "output format: csv, json")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to persist into (default: config storage)")
	return cmd
}

// evaluateFiles loads the roster and records into svc and evaluates day.
// A zero day selects the latest day present in the records.
func evaluateFiles(ctx context.Context, svc *service.Service, rosterPath, recordsPath string, day time.Time) ([]types.DailyStatus, error) {
	log := logger.Get()

	roster, err := readFile(rosterPath, csvfile.ReadRoster)
	if err != nil {
		return nil, err
	}
	for _, a := range roster {
		if err := svc.UpsertAthlete(ctx, a); err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
	}

	var malformed []csvfile.Malformed
	records, err := readFile(recordsPath, func(r io.Reader) ([]model.Record, error) {
		var recs []model.Record
		var err error
		recs, malformed, err = csvfile.ReadRecords(r)
		return recs, err
	})
	if err != nil {
		return nil, err
	}
	for _, m := range malformed {
		log.Warn(ctx, "skipping malformed record",
			logger.String("key", m.Key), logger.Int("line", m.Line), logger.Error(m.Err))
		metrics.RecordRecordMalformed(keyDomain(m.Key))
	}

	sum, err := svc.IngestAll(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	log.Info(ctx, "records loaded",
		logger.Int("athletes", len(roster)),
		logger.Int("accepted", sum.Accepted),
		logger.Int("duplicates", sum.Duplicates),
		logger.Int("malformed", sum.Malformed+len(malformed)),
		logger.Int("rejected", sum.Rejected))

	if day.IsZero() {
		for _, r := range records {
			if r.Date.After(day) {
				day = r.Date
			}
		}
		if day.IsZero() {
			return nil, fmt.Errorf("no --date given and no records to infer it from")
		}
	}

	statuses, err := svc.EvaluateDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", model.DayKey(day), err)
	}
	return statuses, nil
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

// keyDomain returns the domain part of an athlete|date|domain key.
func keyDomain(key string) string {
	if i := strings.LastIndexByte(key, '|'); i >= 0 && i < len(key)-1 {
		return key[i+1:]
	}
	return "unknown"
}
