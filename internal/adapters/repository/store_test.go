package repository_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	repository "github.com/okian/readiness/internal/adapters/repository"
	model "github.com/okian/readiness/internal/domain/model"
	types "github.com/okian/readiness/internal/domain/types"
)

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]repository.Store {
	t.Helper()

	mem, err := repository.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	file, err := repository.OpenSQLite(context.Background(),
		filepath.Join(t.TempDir(), "readiness.db"),
		repository.WithMaxOpenConns(2), repository.WithBusyTimeoutMillis(1000))
	require.NoError(t, err)
	t.Cleanup(func() {
		mem.Close()
		file.Close()
	})

	return map[string]repository.Store{
		"memory":        repository.NewMemoryStore(),
		"sqlite-memory": mem,
		"sqlite-file":   file,
	}
}

func TestStore_Athletes(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Athlete(ctx, "a1")
			require.ErrorIs(t, err, repository.ErrAthleteNotFound)

			require.NoError(t, s.UpsertAthlete(ctx, model.Athlete{ID: "b2", Name: "Bo", Position: "G", Tier: "starter"}))
			require.NoError(t, s.UpsertAthlete(ctx, model.Athlete{ID: "a1", Name: "Al", Position: "F", Tier: "rotation"}))
			require.NoError(t, s.UpsertAthlete(ctx, model.Athlete{ID: "a1", Name: "Al", Position: "C", Tier: "starter"}))

			a, err := s.Athlete(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, "C", a.Position)

			all, err := s.Athletes(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a1", all[0].ID)
			assert.Equal(t, "b2", all[1].ID)
		})
	}
}

func TestStore_Records(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			put := func(offset int, d model.Domain, fields map[string]float64) {
				require.NoError(t, s.PutRecord(ctx, model.Record{
					ID:        "rec-" + string(d),
					AthleteID: "a1",
					Date:      day0.AddDate(0, 0, offset).Add(9 * time.Hour),
					Domain:    d,
					Fields:    fields,
				}))
			}
			put(0, model.DomainWellness, map[string]float64{model.FieldSleepHours: 7})
			put(0, model.DomainLoad, map[string]float64{model.FieldPlayerLoad: 400})
			put(1, model.DomainWellness, map[string]float64{model.FieldSleepHours: 6})
			put(2, model.DomainWellness, map[string]float64{model.FieldSleepHours: 8})
			// replaces the day-1 wellness record
			put(1, model.DomainWellness, map[string]float64{model.FieldSleepHours: 5.5, model.FieldMood: 4})

			all, err := s.Records(ctx, "a1", time.Time{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, day0, all[0].Date)
			assert.Equal(t, model.DomainLoad, all[0].Domain)
			assert.Equal(t, 5.5, all[2].Fields[model.FieldSleepHours])
			assert.Equal(t, 4.0, all[2].Fields[model.FieldMood])

			until, err := s.Records(ctx, "a1", day0.AddDate(0, 0, 1))
			require.NoError(t, err)
			assert.Len(t, until, 3)

			none, err := s.Records(ctx, "nobody", time.Time{})
			require.NoError(t, err)
			assert.Empty(t, none)

			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, stats.Records)
		})
	}
}

func TestStore_Statuses(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Status(ctx, "a1", day0)
			require.ErrorIs(t, err, repository.ErrNotFound)

			red := types.DailyStatus{
				AthleteID: "b2",
				Date:      day0,
				Status:    types.StatusRed,
				Score:     types.Score{Available: true, Value: 86},
				ActiveFlags: []types.RiskFlag{
					{Metric: "acwr", Level: types.LevelHighRisk, Value: 1.6},
				},
				Unknown:    []types.Unknown{{Metric: "hrv_ms_z", Reason: types.ReasonInsufficientHistory}},
				Resolution: types.Resolution{Rule: types.RuleHighRiskFlag, Detail: "acwr=1.60 HIGH_RISK"},
			}
			unavailable := types.DailyStatus{
				AthleteID:  "a1",
				Date:       day0,
				Status:     types.StatusRed,
				Score:      types.Score{Missing: []string{model.FieldMood}},
				Resolution: types.Resolution{Rule: types.RuleCompositeUnavailable},
			}
			require.NoError(t, s.PutStatus(ctx, red))
			require.NoError(t, s.PutStatus(ctx, unavailable))
			require.NoError(t, s.PutStatus(ctx, types.DailyStatus{AthleteID: "a1", Date: day0.AddDate(0, 0, 1), Status: types.StatusGreen}))

			got, err := s.Status(ctx, "b2", day0)
			require.NoError(t, err)
			assert.Equal(t, red, got)

			on, err := s.StatusesOn(ctx, day0)
			require.NoError(t, err)
			require.Len(t, on, 2)
			assert.Equal(t, "a1", on[0].AthleteID)
			assert.False(t, on[0].Score.Available)

			// re-running a day replaces rather than duplicates
			unavailable.Status = types.StatusYellow
			require.NoError(t, s.PutStatus(ctx, unavailable))
			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, stats.Statuses)
		})
	}
}

func TestStore_DeleteStatusesFrom(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				require.NoError(t, s.PutStatus(ctx, types.DailyStatus{AthleteID: "a1", Date: day0.AddDate(0, 0, i), Status: types.StatusGreen}))
			}
			require.NoError(t, s.PutStatus(ctx, types.DailyStatus{AthleteID: "b2", Date: day0.AddDate(0, 0, 4), Status: types.StatusGreen}))

			days, err := s.DeleteStatusesFrom(ctx, "a1", day0.AddDate(0, 0, 2).Add(15*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, []time.Time{day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 3), day0.AddDate(0, 0, 4)}, days)

			_, err = s.Status(ctx, "a1", day0.AddDate(0, 0, 3))
			require.ErrorIs(t, err, repository.ErrNotFound)
			_, err = s.Status(ctx, "a1", day0.AddDate(0, 0, 1))
			require.NoError(t, err)
			_, err = s.Status(ctx, "b2", day0.AddDate(0, 0, 4))
			require.NoError(t, err)

			days, err = s.DeleteStatusesFrom(ctx, "a1", day0.AddDate(0, 0, 10))
			require.NoError(t, err)
			assert.Empty(t, days)

			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, stats.Statuses)
		})
	}
}

func TestSQLiteStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "busy.db"), repository.WithMaxOpenConns(8))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	const athletes, days = 16, 30
	for i := 0; i < athletes; i++ {
		require.NoError(t, s.UpsertAthlete(ctx, model.Athlete{ID: fmt.Sprintf("a%02d", i)}))
	}

	var g errgroup.Group
	for i := 0; i < athletes; i++ {
		id := fmt.Sprintf("a%02d", i)
		g.Go(func() error {
			for d := 0; d < days; d++ {
				day := day0.AddDate(0, 0, d)
				if err := s.PutRecord(ctx, model.Record{AthleteID: id, Date: day, Domain: model.DomainLoad,
					Fields: map[string]float64{model.FieldPlayerLoad: 400}}); err != nil {
					return err
				}
				if _, err := s.Athlete(ctx, id); err != nil {
					return err
				}
				if _, err := s.Records(ctx, id, day); err != nil {
					return err
				}
				if err := s.PutStatus(ctx, types.DailyStatus{AthleteID: id, Date: day, Status: types.StatusGreen}); err != nil {
					return err
				}
				if _, err := s.DeleteStatusesFrom(ctx, id, day.AddDate(0, 0, 1)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, athletes*days, stats.Records)
	assert.Equal(t, athletes*days, stats.Statuses)
}
