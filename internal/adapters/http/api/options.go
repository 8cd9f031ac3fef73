package api

import (
	"time"

	"github.com/okian/readiness/pkg/logger"
)

type options struct {
	logger logger.Logger
	now    func() time.Time
}

// Option configures the Server.
type Option func(*options)

// WithLogger sets the logger used by the handlers.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the clock used when a request omits its date.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
