package bootstrap

import (
	"log/slog"
	"time"
)

// DefaultQuantum bounds how long a blocked layer waits before it is retried.
const DefaultQuantum = 16 * time.Millisecond

// Option customizes Manager construction.
type Option func(*options)

type options struct {
	quantum            time.Duration
	checkDuplicates    bool
	logger             *slog.Logger
	subscriberCapacity int
	runID              string
}

func defaultOptions() options {
	return options{
		quantum:            DefaultQuantum,
		checkDuplicates:    true,
		subscriberCapacity: defaultSubscriberCapacity,
	}
}

// WithQuantum overrides the yield interval. Non-positive values are ignored.
func WithQuantum(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.quantum = d
		}
	}
}

// WithDuplicateCheck toggles the duplicate-kind diagnostic run before
// scheduling. It is on by default.
func WithDuplicateCheck(enabled bool) Option {
	return func(o *options) {
		o.checkDuplicates = enabled
	}
}

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.subscriberCapacity = capacity
		}
	}
}

// WithRunID pins the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}
