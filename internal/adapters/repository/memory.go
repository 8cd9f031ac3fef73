package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	athletes map[string]model.Athlete
	records  map[string]map[string]model.Record // athlete -> record key -> record
	statuses map[string]types.DailyStatus       // athlete|day -> status
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		athletes: make(map[string]model.Athlete),
		records:  make(map[string]map[string]model.Record),
		statuses: make(map[string]types.DailyStatus),
	}
}

func statusKey(athleteID string, day time.Time) string {
	return athleteID + "|" + model.DayKey(day)
}

func (s *MemoryStore) UpsertAthlete(_ context.Context, a model.Athlete) error {
	defer observe("upsert_athlete", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.athletes[a.ID] = a
	return nil
}

func (s *MemoryStore) Athlete(_ context.Context, id string) (model.Athlete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.athletes[id]
	if !ok {
		return model.Athlete{}, ErrAthleteNotFound
	}
	return a, nil
}

func (s *MemoryStore) Athletes(_ context.Context) ([]model.Athlete, error) {
	s.mu.RLock()
	out := make([]model.Athlete, 0, len(s.athletes))
	for _, a := range s.athletes {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PutRecord(_ context.Context, r model.Record) error {
	defer observe("put_record", time.Now())
	r = r.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.records[r.AthleteID]
	if !ok {
		byKey = make(map[string]model.Record)
		s.records[r.AthleteID] = byKey
	}
	byKey[r.Key()] = r
	return nil
}

func (s *MemoryStore) Records(_ context.Context, athleteID string, until time.Time) ([]model.Record, error) {
	defer observe("records", time.Now())
	s.mu.RLock()
	out := make([]model.Record, 0, len(s.records[athleteID]))
	for _, r := range s.records[athleteID] {
		if !until.IsZero() && r.Date.After(model.Day(until)) {
			continue
		}
		out = append(out, r.Normalize())
	}
	s.mu.RUnlock()
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) PutStatus(_ context.Context, st types.DailyStatus) error {
	defer observe("put_status", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[statusKey(st.AthleteID, st.Date)] = st
	return nil
}

func (s *MemoryStore) Status(_ context.Context, athleteID string, day time.Time) (types.DailyStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[statusKey(athleteID, day)]
	if !ok {
		return types.DailyStatus{}, ErrNotFound
	}
	return st, nil
}

func (s *MemoryStore) StatusesOn(_ context.Context, day time.Time) ([]types.DailyStatus, error) {
	key := model.DayKey(day)
	s.mu.RLock()
	var out []types.DailyStatus
	for _, st := range s.statuses {
		if model.DayKey(st.Date) == key {
			out = append(out, st)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AthleteID < out[j].AthleteID })
	return out, nil
}

func (s *MemoryStore) DeleteStatusesFrom(_ context.Context, athleteID string, from time.Time) ([]time.Time, error) {
	defer observe("delete_statuses", time.Now())
	from = model.Day(from)
	s.mu.Lock()
	var days []time.Time
	for key, st := range s.statuses {
		if st.AthleteID != athleteID || model.Day(st.Date).Before(from) {
			continue
		}
		days = append(days, model.Day(st.Date))
		delete(s.statuses, key)
	}
	s.mu.Unlock()
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Athletes: len(s.athletes), Statuses: len(s.statuses)}
	for _, byKey := range s.records {
		st.Records += len(byKey)
	}
	return st, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func sortRecords(rs []model.Record) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Date.Equal(rs[j].Date) {
			return rs[i].Date.Before(rs[j].Date)
		}
		return rs[i].Domain < rs[j].Domain
	})
}
