// Package service wires the record store, the evaluator and the
// re-evaluation pipeline behind the operations used by the HTTP API and
// the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/readiness/internal/adapters/mq/queue"
	"github.com/okian/readiness/internal/adapters/mq/worker"
	"github.com/okian/readiness/internal/adapters/repository"
	"github.com/okian/readiness/internal/domain/assess"
	"github.com/okian/readiness/internal/domain/dedupe"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/pkg/logger"
	"github.com/okian/readiness/pkg/metrics"
)

// ErrInvalidAthlete is returned when a roster entry fails validation.
var ErrInvalidAthlete = errors.New("invalid athlete")

// IngestResult describes what happened to one ingested record.
type IngestResult struct {
	RecordID  string `json:"record_id"`
	Duplicate bool   `json:"duplicate"`
	Queued    bool   `json:"queued"`
	// Invalidated counts stored statuses dropped because the record
	// changes their history.
	Invalidated int `json:"invalidated,omitempty"`
}

// IngestSummary counts the outcome of a bulk ingest.
type IngestSummary struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
	Rejected   int `json:"rejected"`
}

// Stats describes the running service.
type Stats struct {
	Started       bool             `json:"started"`
	Workers       int              `json:"workers"`
	QueueLength   int              `json:"queue_length"`
	QueueCapacity int              `json:"queue_capacity"`
	DedupeSize    int              `json:"dedupe_size"`
	Processed     int64            `json:"processed"`
	Failed        int64            `json:"failed"`
	Store         repository.Stats `json:"store"`
}

// Service implements the readiness operations.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	evaluator *assess.Evaluator
	deduper   dedupe.Deduper
	validate  *validator.Validate

	queue *queue.InMemoryQueue
	pool  *worker.Pool
	locks athleteLocks

	workerCount      int
	queueSize        int
	dedupeSize       int
	batchConcurrency int

	started bool
	logger  logger.Logger
}

// New constructs a Service. Without WithStore it keeps everything in
// memory; without WithRules it uses assess.DefaultRules.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        10_000,
		dedupeSize:       100_000,
		batchConcurrency: runtime.NumCPU(),
		validate:         validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.evaluator == nil {
		s.evaluator = assess.NewEvaluator(assess.DefaultRules())
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithCapacity(s.dedupeSize))
	return s
}

// Start launches the re-evaluation worker pool. Batch evaluation and
// queries work without Start; ingested records are then only stored.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, s.store,
		worker.WithLogger(s.logger), worker.WithLocker(&s.locks))
	s.pool.Start(ctx)
	s.started = true

	s.logger.Info(ctx, "readiness service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)
	return nil
}

// Stop drains the worker pool and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.started = false
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.logger.Info(ctx, "readiness service stopped")
	return errors.Join(errs...)
}

// UpsertAthlete adds or replaces a roster entry.
func (s *Service) UpsertAthlete(ctx context.Context, a model.Athlete) error {
	if err := s.validate.StructCtx(ctx, a); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAthlete, err)
	}
	if err := s.store.UpsertAthlete(ctx, a); err != nil {
		return err
	}
	s.updateRosterGauge(ctx)
	return nil
}

// Athletes returns the roster ordered by id.
func (s *Service) Athletes(ctx context.Context) ([]model.Athlete, error) {
	return s.store.Athletes(ctx)
}

// Ingest validates and stores one record. A record id seen before is
// acknowledged as a duplicate without being stored again. A malformed
// record returns an error wrapping model.ErrMalformedRecord and changes
// nothing. Stored statuses of the athlete dated on or after the record's
// day are dropped since their history changed; when the service is
// started the record's day and every dropped day are re-evaluated in the
// background.
func (s *Service) Ingest(ctx context.Context, r model.Record) (IngestResult, error) {
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		metrics.RecordRecordMalformed(string(r.Domain))
		s.logger.Warn(ctx, "skipping malformed record",
			logger.String("athlete_id", r.AthleteID),
			logger.String("domain", string(r.Domain)),
			logger.Error(err),
		)
		return IngestResult{}, err
	}
	if _, err := s.store.Athlete(ctx, r.AthleteID); err != nil {
		return IngestResult{}, fmt.Errorf("record for %s: %w", r.AthleteID, err)
	}

	explicitID := r.ID != ""
	if !explicitID {
		r.ID = uuid.NewString()
	}
	if explicitID && s.deduper.SeenAndRecord(ctx, r.ID) {
		metrics.RecordRecordDuplicate()
		s.logger.Debug(ctx, "duplicate record", logger.String("record_id", r.ID))
		return IngestResult{RecordID: r.ID, Duplicate: true}, nil
	}

	stale, err := s.putRecord(ctx, r)
	if err != nil {
		if explicitID {
			s.deduper.Forget(ctx, r.ID)
		}
		return IngestResult{}, err
	}
	metrics.RecordRecordIngested(string(r.Domain))

	res := IngestResult{RecordID: r.ID, Invalidated: len(stale)}
	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return res, nil
	}

	res.Queued = true
	for _, day := range reevaluationDays(r.Date, stale) {
		err := q.Enqueue(ctx, queue.Job{AthleteID: r.AthleteID, Date: day, RecordID: r.ID})
		if err != nil {
			s.logger.Warn(ctx, "re-evaluation not queued",
				logger.String("athlete_id", r.AthleteID),
				logger.String("date", model.DayKey(day)),
				logger.Error(err),
			)
			res.Queued = false
		}
	}
	return res, nil
}

// putRecord stores r and drops the athlete's statuses from its day on,
// returning the dropped days.
func (s *Service) putRecord(ctx context.Context, r model.Record) ([]time.Time, error) {
	unlock := s.locks.Lock(r.AthleteID)
	defer unlock()

	if err := s.store.PutRecord(ctx, r); err != nil {
		return nil, fmt.Errorf("store record: %w", err)
	}
	stale, err := s.store.DeleteStatusesFrom(ctx, r.AthleteID, r.Date)
	if err != nil {
		return nil, fmt.Errorf("invalidate statuses: %w", err)
	}
	return stale, nil
}

// reevaluationDays returns day followed by the later stale days.
func reevaluationDays(day time.Time, stale []time.Time) []time.Time {
	day = model.Day(day)
	days := []time.Time{day}
	for _, d := range stale {
		if d.After(day) {
			days = append(days, d)
		}
	}
	return days
}

// IngestAll ingests records one by one. Malformed, duplicate and
// unknown-athlete records are counted and skipped; only store failures
// stop the run.
func (s *Service) IngestAll(ctx context.Context, records []model.Record) (IngestSummary, error) {
	var sum IngestSummary
	for _, r := range records {
		res, err := s.Ingest(ctx, r)
		switch {
		case errors.Is(err, model.ErrMalformedRecord):
			sum.Malformed++
		case errors.Is(err, repository.ErrAthleteNotFound):
			sum.Rejected++
			s.logger.Warn(ctx, "record for athlete not on roster", logger.String("athlete_id", r.AthleteID))
		case err != nil:
			return sum, err
		case res.Duplicate:
			sum.Duplicates++
		default:
			sum.Accepted++
		}
	}
	return sum, nil
}

// EvaluateAthlete computes one athlete's status on day from the records
// stored up to that day. It does not store the result.
func (s *Service) EvaluateAthlete(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error) {
	if _, err := s.store.Athlete(ctx, athleteID); err != nil {
		return types.DailyStatus{}, err
	}
	records, err := s.store.Records(ctx, athleteID, day)
	if err != nil {
		return types.DailyStatus{}, fmt.Errorf("load history: %w", err)
	}

	st := s.evaluator.Evaluate(athleteID, model.NewHistory(athleteID, records), day)
	recordOutcome(st)
	return st, nil
}

// EvaluateDate evaluates every athlete on the roster for day, stores the
// statuses and returns them ordered by athlete id. Athletes are
// evaluated concurrently; re-running a day overwrites its statuses.
func (s *Service) EvaluateDate(ctx context.Context, day time.Time) ([]types.DailyStatus, error) {
	start := time.Now()
	day = model.Day(day)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", model.DayKey(day), err)
	}
	roster, err := s.store.Athletes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	out := make([]types.DailyStatus, len(roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, a := range roster {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			evalStart := time.Now()
			st, err := s.refresh(gctx, a.ID, day)
			if err != nil {
				return err
			}
			metrics.RecordEvaluation(string(st.Status), string(st.Resolution.Rule), msSince(evalStart))
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordErrorByComponent("service", "batch")
		return nil, err
	}

	metrics.RecordBatch(len(out), msSince(start), time.Now().Unix())
	s.logger.Info(ctx, "evaluated roster",
		logger.String("date", model.DayKey(day)),
		logger.Int("athletes", len(out)),
		logger.Duration("took", time.Since(start)),
	)
	return out, nil
}

// Status returns an athlete's status for day. Ingest drops stored
// statuses from the record's day on, so a stored status is current; a
// missing one is computed and stored.
func (s *Service) Status(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error) {
	if _, err := s.store.Athlete(ctx, athleteID); err != nil {
		return types.DailyStatus{}, err
	}
	unlock := s.locks.Lock(athleteID)
	defer unlock()

	st, err := s.store.Status(ctx, athleteID, day)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return types.DailyStatus{}, err
	}
	return s.evaluateAndStore(ctx, athleteID, day)
}

// refresh recomputes and stores one athlete-day under the athlete's lock.
func (s *Service) refresh(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error) {
	unlock := s.locks.Lock(athleteID)
	defer unlock()
	return s.evaluateAndStore(ctx, athleteID, day)
}

// evaluateAndStore must be called with the athlete's lock held.
func (s *Service) evaluateAndStore(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error) {
	st, err := s.EvaluateAthlete(ctx, athleteID, day)
	if err != nil {
		return types.DailyStatus{}, fmt.Errorf("evaluate %s: %w", athleteID, err)
	}
	if err := s.store.PutStatus(ctx, st); err != nil {
		return types.DailyStatus{}, fmt.Errorf("store status %s: %w", athleteID, err)
	}
	return st, nil
}

// athleteLocks hands out one mutex per athlete. Writers of an athlete's
// records and statuses hold it so a status is never stored from a
// history older than the records already accepted.
type athleteLocks struct {
	m sync.Map // athlete id -> *sync.Mutex
}

// Lock blocks until the athlete's mutex is held and returns its unlock.
func (l *athleteLocks) Lock(athleteID string) func() {
	v, _ := l.m.LoadOrStore(athleteID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// StatusesOn returns the stored statuses for day.
func (s *Service) StatusesOn(ctx context.Context, day time.Time) ([]types.DailyStatus, error) {
	return s.store.StatusesOn(ctx, day)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:       s.started,
		Workers:       s.workerCount,
		QueueCapacity: s.queueSize,
		DedupeSize:    s.deduper.Size(),
	}
	if s.started {
		st.QueueLength = s.queue.Len()
		st.Processed = s.pool.Processed()
		st.Failed = s.pool.Failed()
	}

	store, err := s.store.Stats(ctx)
	if err != nil {
		return st, fmt.Errorf("store stats: %w", err)
	}
	st.Store = store
	metrics.UpdateRosterSize(store.Athletes)
	return st, nil
}

func (s *Service) updateRosterGauge(ctx context.Context) {
	if st, err := s.store.Stats(ctx); err == nil {
		metrics.UpdateRosterSize(st.Athletes)
	}
}

func recordOutcome(st types.DailyStatus) {
	metrics.RecordScore(st.Score.Available, st.Score.Value)
	for _, f := range st.ActiveFlags {
		metrics.RecordFlag(f.Metric, f.Level.String())
	}
	for _, u := range st.Unknown {
		metrics.RecordUnknownMetric(u.Metric, string(u.Reason))
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
