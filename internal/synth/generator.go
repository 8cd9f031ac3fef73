// Package synth generates reproducible synthetic rosters and daily
// records, and replays them against a running readiness service.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/pkg/logger"
)

// ErrInvalidConfig is returned when Generate gets an unusable Config.
var ErrInvalidConfig = errors.New("invalid synth config")

// Constants for metric generation.
const (
	baseLoad          = 420.0
	loadNoise         = 35.0
	spikeFactor       = 2.3
	spikeDays         = 7
	metersPerLoadUnit = 14.0
	baseSleep         = 7.9
	poorSleep         = 5.9
	sleepNoise        = 0.45
	missedSurveyRate  = 0.35
	baseHRV           = 72.0
	baseRestingHR     = 54.0
	baseSteps         = 9500.0
	baseJump          = 42.0
	jumpDeclinePerDay = 0.006
	baseRSI           = 2.1
	baseAsymmetry     = 6.0
	asymmetryGrowth   = 0.4
	forcePlateEvery   = 3
	lateJoinerDays    = 10
)

var (
	positions = []string{"guard", "forward", "center", "wing"}
	tiers     = []string{"starter", "rotation", "development"}
)

// Generate creates cfg.Athletes athletes with cfg.Days of records each.
// The same Config always yields the same Dataset.
func Generate(ctx context.Context, cfg Config) (*Dataset, error) {
	if cfg.Athletes <= 0 || cfg.Days <= 0 {
		return nil, fmt.Errorf("%w: athletes and days must be positive", ErrInvalidConfig)
	}
	if cfg.Start.IsZero() {
		return nil, fmt.Errorf("%w: missing start date", ErrInvalidConfig)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	logger.Get().Info(ctx, "generating synthetic dataset",
		logger.Int("athletes", cfg.Athletes),
		logger.Int("days", cfg.Days),
		logger.String("start", model.DayKey(cfg.Start)))

	roster := make([]model.Athlete, cfg.Athletes)
	profiles := make([]Profile, cfg.Athletes)
	// perDay[i][d] holds athlete i's records on day d.
	perDay := make([][][]model.Record, cfg.Athletes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.Athletes; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := newAthleteGen(cfg, i)
			roster[i] = a.athlete
			profiles[i] = a.profile
			perDay[i] = a.records(cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("context cancelled during generation: %w", err)
	}

	ds := &Dataset{Roster: roster, Profiles: make(map[string]Profile, len(roster))}
	for i, a := range roster {
		ds.Profiles[a.ID] = profiles[i]
	}
	for d := 0; d < cfg.Days; d++ {
		for i := range roster {
			ds.Records = append(ds.Records, perDay[i][d]...)
		}
	}

	logger.Get().Info(ctx, "generated synthetic dataset", logger.Int("records", len(ds.Records)))
	return ds, nil
}

// athleteGen owns the random source for one athlete so output does not
// depend on goroutine scheduling.
type athleteGen struct {
	rng     *rand.Rand
	athlete model.Athlete
	profile Profile
}

func newAthleteGen(cfg Config, index int) *athleteGen {
	rng := rand.New(rand.NewSource(cfg.Seed*1_000_003 + int64(index)))
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		// rand.Rand reads never fail
		id = uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%d/%d", cfg.Seed, index))
	}
	return &athleteGen{
		rng:     rng,
		profile: Profiles[index%len(Profiles)],
		athlete: model.Athlete{
			ID:       id.String(),
			Name:     fmt.Sprintf("Athlete %03d", index+1),
			Position: positions[index%len(positions)],
			Tier:     tiers[(index/len(positions))%len(tiers)],
		},
	}
}

// records returns one slice of records per day.
func (a *athleteGen) records(cfg Config) [][]model.Record {
	out := make([][]model.Record, cfg.Days)
	first := 0
	if a.profile == ProfileLate && cfg.Days > lateJoinerDays {
		first = cfg.Days - lateJoinerDays
	}

	for d := first; d < cfg.Days; d++ {
		day := model.Day(cfg.Start).AddDate(0, 0, d)
		var recs []model.Record
		add := func(domain model.Domain, fields map[string]float64) {
			recs = append(recs, model.Record{
				ID:        a.recordID(),
				AthleteID: a.athlete.ID,
				Date:      day,
				Domain:    domain,
				Fields:    fields,
			})
		}

		load := a.load(cfg, d)
		add(model.DomainLoad, map[string]float64{
			model.FieldPlayerLoad: round1(load),
			model.FieldDistance:   math.Round(load * metersPerLoadUnit),
		})

		if w, ok := a.wellness(); ok {
			add(model.DomainWellness, w)
		}

		add(model.DomainWearable, map[string]float64{
			model.FieldHRV:       round1(a.noisy(baseHRV, 4)),
			model.FieldRestingHR: round1(a.noisy(baseRestingHR, 1.5)),
			model.FieldSteps:     math.Round(a.noisy(baseSteps, 1200)),
		})

		if (d-first)%forcePlateEvery == 0 {
			add(model.DomainForcePlate, a.forcePlate(d-first))
		}
		out[d] = recs
	}
	return out
}

func (a *athleteGen) load(cfg Config, d int) float64 {
	load := a.noisy(baseLoad, loadNoise)
	if a.profile == ProfileSpike && d >= cfg.Days-spikeDays {
		load *= spikeFactor
	}
	return load
}

// wellness returns the daily survey, or false when it was skipped.
func (a *athleteGen) wellness() (map[string]float64, bool) {
	sleep := baseSleep
	if a.profile == ProfilePoorSleep {
		if a.rng.Float64() < missedSurveyRate {
			return nil, false
		}
		sleep = poorSleep
	}
	return map[string]float64{
		model.FieldSleepHours: round1(math.Min(a.noisy(sleep, sleepNoise), 12)),
		model.FieldSoreness:   float64(a.rng.Intn(4) + 1),
		model.FieldFatigue:    float64(a.rng.Intn(4) + 2),
		model.FieldMood:       float64(a.rng.Intn(3) + 6),
	}, true
}

// forcePlate returns a jump test taken n days into the athlete's history.
func (a *athleteGen) forcePlate(n int) map[string]float64 {
	jump := baseJump
	asym := baseAsymmetry
	if a.profile == ProfileDeclining {
		jump *= 1 - jumpDeclinePerDay*float64(n)
		asym += asymmetryGrowth * float64(n)
	}
	return map[string]float64{
		model.FieldJumpHeight: round1(a.noisy(jump, 0.6)),
		model.FieldRSI:        round2(a.noisy(baseRSI, 0.08)),
		model.FieldAsymmetry:  round1(math.Min(a.noisy(asym, 0.8), 100)),
	}
}

// noisy draws from a normal distribution, floored at zero.
func (a *athleteGen) noisy(mean, sd float64) float64 {
	return math.Max(0, mean+a.rng.NormFloat64()*sd)
}

func (a *athleteGen) recordID() string {
	id, err := uuid.NewRandomFromReader(a.rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
