package worker

import (
	"github.com/okian/readiness/pkg/logger"
)

// Option applies a configuration option to an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the base logger. The worker name is appended to it.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLocker makes the worker hold the athlete's lock from reading the
// history until the status is stored.
func WithLocker(l Locker) Option {
	return func(w *InMemoryWorker) {
		w.locker = l
	}
}

func withDoneHook(fn func(error)) Option {
	return func(w *InMemoryWorker) {
		w.onDone = fn
	}
}
