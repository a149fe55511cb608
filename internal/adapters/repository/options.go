package repository

import (
	"time"

	"github.com/fpvleague/lapboard/pkg/logger"
)

const defaultTimeout = 5 * time.Second

type settings struct {
	timeout time.Duration
	clock   func() time.Time
	logger  logger.Logger
	migrate bool
}

func newSettings(opts []Option) settings {
	s := settings{timeout: defaultTimeout, clock: time.Now, migrate: true}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}

// Option applies a configuration option to a Store.
type Option func(*settings)

// WithTimeout bounds every store call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMigrate toggles schema creation on open.
func WithMigrate(enabled bool) Option {
	return func(s *settings) {
		s.migrate = enabled
	}
}
