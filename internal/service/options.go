package service

import (
	"time"

	"github.com/aspirtakis/alekostrader-auth/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	nowFn   func() time.Time
	log     zerolog.Logger
	metrics *metrics.Manager
}

type Option func(*options)

// WithClock overrides time.Now for expiry checks and timestamps.
func WithClock(nowFn func() time.Time) Option {
	return func(o *options) { o.nowFn = nowFn }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(component string, opts []Option) options {
	o := options{nowFn: time.Now, log: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With().Str("component", component).Logger()
	return o
}

func (o options) now() time.Time {
	return o.nowFn().UTC()
}
