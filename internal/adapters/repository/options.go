package repository

import (
	"time"

	"github.com/okian/talentloop/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*settings)

type settings struct {
	log           logger.Logger
	maxOpenConns  int
	slowThreshold time.Duration
}

func defaultSettings() settings {
	return settings{
		log:           logger.Nop(),
		maxOpenConns:  10,
		slowThreshold: time.Second,
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxOpenConns bounds the SQL connection pool. SQLite always uses a
// single connection regardless of this setting.
func WithMaxOpenConns(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithSlowThreshold sets the duration above which SQL statements are logged.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.slowThreshold = d
		}
	}
}
