// Package repository stores the roster, the daily metric records and the
// computed statuses. The core only reads records through it.
package repository

import (
	"context"
	"time"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/pkg/metrics"
)

// Stats counts the rows held by a store.
type Stats struct {
	Athletes int `json:"athletes"`
	Records  int `json:"records"`
	Statuses int `json:"statuses"`
}

// RecordStore holds roster and metric records.
type RecordStore interface {
	// UpsertAthlete inserts or replaces a roster entry.
	UpsertAthlete(ctx context.Context, a model.Athlete) error
	// Athlete returns ErrAthleteNotFound for an unknown id.
	Athlete(ctx context.Context, id string) (model.Athlete, error)
	// Athletes returns the roster ordered by id.
	Athletes(ctx context.Context) ([]model.Athlete, error)

	// PutRecord stores a normalized record, replacing any record for the
	// same (athlete, day, domain).
	PutRecord(ctx context.Context, r model.Record) error
	// Records returns an athlete's records dated on or before until,
	// oldest first. A zero until returns every record.
	Records(ctx context.Context, athleteID string, until time.Time) ([]model.Record, error)
}

// StatusStore holds computed daily statuses.
type StatusStore interface {
	// PutStatus inserts or replaces the status for (athlete, day).
	PutStatus(ctx context.Context, s types.DailyStatus) error
	// Status returns ErrNotFound when no status was stored.
	Status(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error)
	// StatusesOn returns every status stored for day, ordered by athlete.
	StatusesOn(ctx context.Context, day time.Time) ([]types.DailyStatus, error)
	// DeleteStatusesFrom removes an athlete's statuses dated on or after
	// from and returns their days, oldest first.
	DeleteStatusesFrom(ctx context.Context, athleteID string, from time.Time) ([]time.Time, error)
}

// Store is the full repository.
type Store interface {
	RecordStore
	StatusStore
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}
