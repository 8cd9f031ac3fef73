package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/readiness/internal/adapters/mq/queue"
	worker "github.com/okian/readiness/internal/adapters/mq/worker"
	types "github.com/okian/readiness/internal/domain/types"
	logging "github.com/okian/readiness/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// Mock implementations for testing.
type mockEvaluator struct {
	mu     sync.Mutex
	errors map[string]error
	calls  int
}

func newMockEvaluator() *mockEvaluator {
	return &mockEvaluator{errors: make(map[string]error)}
}

func (m *mockEvaluator) EvaluateAthlete(_ context.Context, athleteID string, d time.Time) (types.DailyStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err, ok := m.errors[athleteID]; ok {
		return types.DailyStatus{}, err
	}
	return types.DailyStatus{
		AthleteID:  athleteID,
		Date:       d,
		Status:     types.StatusGreen,
		Score:      types.Score{Available: true, Value: 90},
		Resolution: types.Resolution{Rule: types.RuleAllClear},
	}, nil
}

func (m *mockEvaluator) setError(athleteID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[athleteID] = err
}

type mockSink struct {
	mu       sync.Mutex
	statuses map[string]types.DailyStatus
	err      error
}

func newMockSink() *mockSink {
	return &mockSink{statuses: make(map[string]types.DailyStatus)}
}

func (m *mockSink) PutStatus(_ context.Context, s types.DailyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.statuses[s.AthleteID] = s
	return nil
}

func (m *mockSink) get(athleteID string) (types.DailyStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[athleteID]
	return s, ok
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// overlapEvaluator records how many evaluations of one athlete run at once.
type overlapEvaluator struct {
	mu      sync.Mutex
	running map[string]int
	maxSeen int
}

func (o *overlapEvaluator) EvaluateAthlete(_ context.Context, athleteID string, d time.Time) (types.DailyStatus, error) {
	o.mu.Lock()
	o.running[athleteID]++
	if o.running[athleteID] > o.maxSeen {
		o.maxSeen = o.running[athleteID]
	}
	o.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	o.mu.Lock()
	o.running[athleteID]--
	o.mu.Unlock()
	return types.DailyStatus{AthleteID: athleteID, Date: d, Status: types.StatusGreen}, nil
}

// keyedLocker hands out one mutex per athlete.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocker) Lock(athleteID string) func() {
	k.mu.Lock()
	l, ok := k.locks[athleteID]
	if !ok {
		l = &sync.Mutex{}
		k.locks[athleteID] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		ev := newMockEvaluator()
		sink := newMockSink()
		w := worker.NewInMemoryWorker(q, ev, sink, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job is enqueued", func() {
			convey.So(q.Enqueue(ctx, queue.Job{AthleteID: "a1", Date: day, RecordID: "rec-1"}), convey.ShouldBeNil)

			convey.Convey("Then the status should reach the sink", func() {
				convey.So(waitFor(func() bool { _, ok := sink.get("a1"); return ok }), convey.ShouldBeTrue)
				s, _ := sink.get("a1")
				convey.So(s.Status, convey.ShouldEqual, types.StatusGreen)
				convey.So(s.Date, convey.ShouldEqual, day)
			})
		})

		convey.Convey("When evaluation fails", func() {
			ev.setError("a2", errors.New("history unavailable"))
			convey.So(q.Enqueue(ctx, queue.Job{AthleteID: "a2", Date: day}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.Job{AthleteID: "a3", Date: day}), convey.ShouldBeNil)

			convey.Convey("Then the worker should skip it and keep going", func() {
				convey.So(waitFor(func() bool { _, ok := sink.get("a3"); return ok }), convey.ShouldBeTrue)
				_, ok := sink.get("a2")
				convey.So(ok, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the queue is closed", func() {
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then the worker should stop", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		ev := newMockEvaluator()
		sink := newMockSink()
		pool := worker.NewPool(3, q, ev, sink, worker.WithLogger(logging.Nop()))
		convey.So(pool.Size(), convey.ShouldEqual, 3)

		ctx := context.Background()
		pool.Start(ctx)
		pool.Start(ctx)

		convey.Convey("When jobs are enqueued and the pool shuts down", func() {
			ids := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
			ev.setError("a6", errors.New("boom"))
			for _, id := range ids {
				convey.So(q.Enqueue(ctx, queue.Job{AthleteID: id, Date: day}), convey.ShouldBeNil)
			}
			err := pool.Shutdown(ctx)

			convey.Convey("Then every job should be drained and counted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pool.Processed(), convey.ShouldEqual, 5)
				convey.So(pool.Failed(), convey.ShouldEqual, 1)
				for _, id := range ids[:5] {
					_, ok := sink.get(id)
					convey.So(ok, convey.ShouldBeTrue)
				}
			})
		})

		convey.Convey("When the sink rejects statuses", func() {
			sink.mu.Lock()
			sink.err = errors.New("disk full")
			sink.mu.Unlock()
			convey.So(q.Enqueue(ctx, queue.Job{AthleteID: "a1", Date: day}), convey.ShouldBeNil)
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the job should count as failed", func() {
				convey.So(pool.Failed(), convey.ShouldEqual, 1)
				convey.So(pool.Processed(), convey.ShouldEqual, 0)
			})
		})
	})

	convey.Convey("Given a pool of four workers sharing an athlete locker", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		ev := &overlapEvaluator{running: make(map[string]int)}
		locker := &keyedLocker{locks: make(map[string]*sync.Mutex)}
		pool := worker.NewPool(4, q, ev, newMockSink(), worker.WithLocker(locker), worker.WithLogger(logging.Nop()))
		ctx := context.Background()
		pool.Start(ctx)

		convey.Convey("When many jobs for one athlete are queued", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Enqueue(ctx, queue.Job{AthleteID: "a1", Date: day}), convey.ShouldBeNil)
			}
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then they should run one at a time", func() {
				convey.So(pool.Processed(), convey.ShouldEqual, 20)
				convey.So(ev.maxSeen, convey.ShouldEqual, 1)
			})
		})
	})

	convey.Convey("Given a pool with no explicit size", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), newMockEvaluator(), newMockSink())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
