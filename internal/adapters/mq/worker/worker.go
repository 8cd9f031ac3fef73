// Package worker drains re-evaluation jobs from the queue, recomputes
// the athlete's daily status and hands it to a sink.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/readiness/internal/adapters/mq/queue"
	"github.com/okian/readiness/internal/domain/model"
	"github.com/okian/readiness/internal/domain/types"
	"github.com/okian/readiness/pkg/logger"
	"github.com/okian/readiness/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Evaluator recomputes one athlete's status on one day.
type Evaluator interface {
	EvaluateAthlete(ctx context.Context, athleteID string, day time.Time) (types.DailyStatus, error)
}

// Sink stores computed statuses.
type Sink interface {
	PutStatus(ctx context.Context, s types.DailyStatus) error
}

// Locker serialises jobs that touch the same athlete.
type Locker interface {
	Lock(athleteID string) (unlock func())
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker processes jobs from a queue.
type InMemoryWorker struct {
	queue     Queue
	evaluator Evaluator
	sink      Sink
	locker    Locker
	name      string
	logger    logger.Logger

	// called after every job, successful or not
	onDone func(err error)

	done chan struct{}
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, ev Evaluator, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		evaluator: ev,
		sink:      sink,
		name:      "worker",
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get()
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes jobs until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for job := range w.queue.Dequeue(ctx) {
		err := w.process(ctx, job)
		if err != nil {
			w.logger.Error(ctx, "re-evaluation failed",
				logger.String("athlete_id", job.AthleteID),
				logger.String("date", model.DayKey(job.Date)),
				logger.Error(err),
			)
		}
		if w.onDone != nil {
			w.onDone(err)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	start := time.Now()
	if w.locker != nil {
		unlock := w.locker.Lock(job.AthleteID)
		defer unlock()
	}
	s, err := w.evaluator.EvaluateAthlete(ctx, job.AthleteID, job.Date)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "evaluate")
		return fmt.Errorf("evaluate %s on %s: %w", job.AthleteID, model.DayKey(job.Date), err)
	}
	if err := w.sink.PutStatus(ctx, s); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_status")
		return fmt.Errorf("store status %s on %s: %w", job.AthleteID, model.DayKey(job.Date), err)
	}

	metrics.RecordEvaluation(string(s.Status), string(s.Resolution.Rule), float64(time.Since(start).Microseconds())/1000)
	w.logger.Debug(ctx, "status updated",
		logger.String("athlete_id", s.AthleteID),
		logger.String("date", model.DayKey(s.Date)),
		logger.String("status", string(s.Status)),
		logger.String("record_id", job.RecordID),
	)
	return nil
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger

	processed atomic.Int64
	failed    atomic.Int64

	startOnce sync.Once
}

// NewPool creates a pool of workerCount workers. A count below one uses
// one worker per CPU.
func NewPool(workerCount int, q Queue, ev Evaluator, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		wopts = append(wopts, withDoneHook(p.observe))
		p.workers[i] = NewInMemoryWorker(q, ev, sink, wopts...)
	}
	p.logger = p.workers[0].logger

	metrics.UpdateWorkerCount(workerCount)
	return p
}

func (p *Pool) observe(err error) {
	if err != nil {
		p.failed.Add(1)
		return
	}
	p.processed.Add(1)
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs completed successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns the number of jobs that returned an error.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Start launches every worker. Later calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for _, w := range p.workers {
			go w.Run(ctx)
		}
	})
}

// Shutdown closes the queue, if it can be closed, and waits for the
// workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
