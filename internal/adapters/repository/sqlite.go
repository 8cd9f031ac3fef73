package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
)

const memoryDSN = ":memory:"

// SQLiteStore implements Store on a SQLite database. Record fields and
// status payloads are kept as JSON columns.
type SQLiteStore struct {
	db            *sql.DB
	maxOpenConns  int
	busyTimeoutMs int
}

// OpenSQLite opens (creating if needed) the database at path and runs
// migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{maxOpenConns: 4, busyTimeoutMs: 5000}
	for _, opt := range opts {
		opt(s)
	}
	if path == memoryDSN {
		s.maxOpenConns = 1
	}

	db, err := sql.Open("sqlite", s.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	s.db = db

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// dsn builds the connection string. Pragmas go in the DSN so the driver
// applies them to every pooled connection.
func (s *SQLiteStore) dsn(path string) string {
	if path == memoryDSN {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, s.busyTimeoutMs)
}

func (s *SQLiteStore) UpsertAthlete(ctx context.Context, a model.Athlete) error {
	defer observe("upsert_athlete", time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO athletes (id, name, position, tier) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, position = excluded.position, tier = excluded.tier`,
		a.ID, a.Name, a.Position, a.Tier)
	if err != nil {
		return fmt.Errorf("upsert athlete %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Athlete(ctx context.Context, id string) (model.Athlete, error) {
	var a model.Athlete
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, position, tier FROM athletes WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Position, &a.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Athlete{}, ErrAthleteNotFound
	}
	if err != nil {
		return model.Athlete{}, fmt.Errorf("get athlete %s: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteStore) Athletes(ctx context.Context) ([]model.Athlete, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, position, tier FROM athletes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list athletes: %w", err)
	}
	defer rows.Close()

	var out []model.Athlete
	for rows.Next() {
		var a model.Athlete
		if err := rows.Scan(&a.ID, &a.Name, &a.Position, &a.Tier); err != nil {
			return nil, fmt.Errorf("scan athlete: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutRecord(ctx context.Context, r model.Record) error {
	defer observe("put_record", time.Now())
	r = r.Normalize()
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (athlete_id, day, domain, record_id, fields) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(athlete_id, day, domain) DO UPDATE SET record_id = excluded.record_id, fields = excluded.fields`,
		r.AthleteID, model.DayKey(r.Date), string(r.Domain), r.ID, string(fields))
	if err != nil {
		return fmt.Errorf("put record %s: %w", r.Key(), err)
	}
	return nil
}

func (s *SQLiteStore) Records(ctx context.Context, athleteID string, until time.Time) ([]model.Record, error) {
	defer observe("records", time.Now())
	query := `SELECT athlete_id, day, domain, record_id, fields FROM records WHERE athlete_id = ?`
	args := []any{athleteID}
	if !until.IsZero() {
		query += ` AND day <= ?`
		args = append(args, model.DayKey(until))
	}
	query += ` ORDER BY day, domain`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", athleteID, err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			r           model.Record
			day, fields string
			domain, rid string
		)
		if err := rows.Scan(&r.AthleteID, &day, &domain, &rid, &fields); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if r.Date, err = model.ParseDay(day); err != nil {
			return nil, err
		}
		r.Domain = model.Domain(domain)
		r.ID = rid
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", r.Key(), err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutStatus(ctx context.Context, st types.DailyStatus) error {
	defer observe("put_status", time.Now())
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO statuses (athlete_id, day, status, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(athlete_id, day) DO UPDATE SET status = excluded.status, payload = excluded.payload`,
		st.AthleteID, model.DayKey(st.Date), string(st.Status), string(payload))
	if err != nil {
		return fmt.Errorf("put status %s: %w", st.AthleteID, err)
	}
	return nil
}

func (s *SQLiteStore) Status(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM statuses WHERE athlete_id = ? AND day = ?`, athleteID, model.DayKey(day),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DailyStatus{}, ErrNotFound
	}
	if err != nil {
		return types.DailyStatus{}, fmt.Errorf("get status %s: %w", athleteID, err)
	}
	return decodeStatus(payload)
}

func (s *SQLiteStore) StatusesOn(ctx context.Context, day time.Time) ([]types.DailyStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM statuses WHERE day = ? ORDER BY athlete_id`, model.DayKey(day))
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	defer rows.Close()

	var out []types.DailyStatus
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		st, err := decodeStatus(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteStatusesFrom(ctx context.Context, athleteID string, from time.Time) ([]time.Time, error) {
	defer observe("delete_statuses", time.Now())
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM statuses WHERE athlete_id = ? AND day >= ? RETURNING day`, athleteID, model.DayKey(from))
	if err != nil {
		return nil, fmt.Errorf("delete statuses %s: %w", athleteID, err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		d, err := model.ParseDay(day)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete statuses %s: %w", athleteID, err)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM athletes),
		(SELECT COUNT(*) FROM records),
		(SELECT COUNT(*) FROM statuses)`,
	).Scan(&st.Athletes, &st.Records, &st.Statuses)
	if err != nil {
		return Stats{}, fmt.Errorf("count rows: %w", err)
	}
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeStatus(payload string) (types.DailyStatus, error) {
	var st types.DailyStatus
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return types.DailyStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
