package repository

import (
	"context"
	"database/sql"
)

// migrate creates the schema. Every statement is idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS athletes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			position TEXT NOT NULL DEFAULT '',
			tier TEXT NOT NULL DEFAULT ''
		)`,

		// one row per (athlete, day, domain); fields is a JSON object
		`CREATE TABLE IF NOT EXISTS records (
			athlete_id TEXT NOT NULL,
			day TEXT NOT NULL,
			domain TEXT NOT NULL,
			record_id TEXT NOT NULL DEFAULT '',
			fields TEXT NOT NULL,
			PRIMARY KEY (athlete_id, day, domain)
		)`,

		`CREATE TABLE IF NOT EXISTS statuses (
			athlete_id TEXT NOT NULL,
			day TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (athlete_id, day)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_statuses_day ON statuses(day)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
