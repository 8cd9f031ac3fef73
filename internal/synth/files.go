package synth

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/okian/readiness/internal/adapters/csvfile"
	"github.com/okian/readiness/pkg/logger"
)

// File names written by WriteFiles.
const (
	RosterFile  = "roster.csv"
	RecordsFile = "records.csv"
)

const directoryPermission = 0o750

// WriteFiles writes the dataset as roster.csv and records.csv under dir.
func WriteFiles(ctx context.Context, dir string, ds *Dataset) error {
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := writeFile(ctx, filepath.Join(dir, RosterFile), func(w io.Writer) error {
		return csvfile.WriteRoster(w, ds.Roster)
	}); err != nil {
		return err
	}
	return writeFile(ctx, filepath.Join(dir, RecordsFile), func(w io.Writer) error {
		return csvfile.WriteRecords(w, ds.Records)
	})
}

func writeFile(ctx context.Context, path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Get().Info(ctx, "dataset file written", logger.String("path", path))
	return nil
}
