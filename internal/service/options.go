package service

import (
	"log/slog"

	"github.com/andy/tally/internal/domain"
)

// Option configures a service.
type Option func(*options)

type options struct {
	logger *slog.Logger
	clock  domain.Clock
}

// WithLogger sets the structured logger. Services log nothing by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(c domain.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.DiscardHandler),
		clock:  domain.SystemClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
