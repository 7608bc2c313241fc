package persister

import (
	"log/slog"
	"time"

	"github.com/roach88/cachesync/internal/timer"
)

// Default debounce settings.
const (
	// DefaultWait is the quiet period after the last touch before a save.
	DefaultWait = 4 * time.Second

	// DefaultMaxWait bounds the time from the first touch of a burst to its save.
	DefaultMaxWait = 30 * time.Second
)

// settings are shared by every instance in a chain of successors.
type settings struct {
	wait    time.Duration
	maxWait time.Duration
	clock   timer.Clock
	ids     IDGenerator
	logger  *slog.Logger
}

// Option configures a Persister and every successor it rotates to.
type Option func(*settings)

// WithWait sets the debounce quantum.
//
// Default: 4s (DefaultWait)
func WithWait(d time.Duration) Option {
	return func(s *settings) {
		s.wait = d
	}
}

// WithMaxWait sets the staleness ceiling measured from the first touch.
//
// Default: 30s (DefaultMaxWait)
func WithMaxWait(d time.Duration) Option {
	return func(s *settings) {
		s.maxWait = d
	}
}

// WithClock sets the clock used for timestamps and timers.
// Tests pass a testutil.FakeClock.
func WithClock(c timer.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithIDGenerator sets the generator for instance IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) {
		s.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		wait:    DefaultWait,
		maxWait: DefaultMaxWait,
		clock:   timer.System{},
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxWait < s.wait {
		s.maxWait = s.wait
	}
	return s
}
