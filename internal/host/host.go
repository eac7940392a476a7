// Package host wraps a bootstrap run in a lifecycle context that either runs
// as soon as it is initialized or waits for an explicit Run call.
package host

import (
	"context"
	"sync"

	"github.com/kingrea/bootstrap/internal/bootstrap"
	"github.com/kingrea/bootstrap/internal/logging"
)

// Runner is the part of bootstrap.Manager the host drives.
type Runner interface {
	Run(ctx context.Context) error
	HasInitialized() bool
}

// Options configures a Context.
type Options struct {
	// AutoRun makes Initialize call Run.
	AutoRun bool
}

// Context runs its Runner at most once.
type Context struct {
	runner Runner
	opts   Options

	mu      sync.Mutex
	started bool
}

// New returns a host context for runner.
func New(runner Runner, opts Options) *Context {
	return &Context{runner: runner, opts: opts}
}

// Initialize runs the bootstrap cycle when AutoRun is set and otherwise
// leaves the context waiting for Run.
func (c *Context) Initialize(ctx context.Context) error {
	if !c.opts.AutoRun {
		logging.FromContext(ctx).Debug("Auto-run disabled, waiting for explicit run.")
		return nil
	}
	return c.Run(ctx)
}

// Run executes the bootstrap cycle. A second call fails with
// *bootstrap.AlreadyInitializedError.
func (c *Context) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return &bootstrap.AlreadyInitializedError{Op: "host.Run"}
	}
	c.started = true
	c.mu.Unlock()
	return c.runner.Run(ctx)
}

// Started reports whether Run has been called.
func (c *Context) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Initialized reports whether the bootstrap cycle completed.
func (c *Context) Initialized() bool {
	return c.runner.HasInitialized()
}
