// Package dedupe remembers ingested record ids so a replayed record is
// acknowledged without being stored or evaluated twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultCapacity = 100_000

// Deduper records seen record ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it
	// if it was not. The check and the insert are atomic.
	SeenAndRecord(ctx context.Context, id string) bool

	// Forget removes id so a record that failed to ingest can be retried.
	Forget(ctx context.Context, id string)

	// Size returns the number of ids held.
	Size() int
}

// fifoDeduper keeps at most capacity ids and evicts the oldest first.
// A capacity of zero or less keeps every id.
type fifoDeduper struct {
	mu       sync.Mutex
	order    *list.List // front is oldest
	index    map[string]*list.Element
	capacity int
}

// NewInMemoryDeduper creates a deduper holding up to 100k ids by default.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &fifoDeduper{
		order:    list.New(),
		index:    make(map[string]*list.Element),
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *fifoDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[id]; ok {
		return true
	}
	if d.capacity > 0 && d.order.Len() >= d.capacity {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}
	d.index[id] = d.order.PushBack(id)
	return false
}

func (d *fifoDeduper) Forget(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.index[id]; ok {
		d.order.Remove(e)
		delete(d.index, id)
	}
}

func (d *fifoDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
