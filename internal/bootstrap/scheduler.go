package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// cycle is the state of one Run invocation.
type cycle struct {
	runID       string
	quantum     time.Duration
	tracker     *tracker
	completions chan completion
	notifier    *notifier
	inst        *instruments
	logger      *slog.Logger
}

func newCycle(m *Manager, entries []Entry, logger *slog.Logger) *cycle {
	async := 0
	for _, e := range entries {
		if e.Unit.IsAsync() {
			async++
		}
	}
	return &cycle{
		runID:   m.runID,
		quantum: m.opts.quantum,
		tracker: newTracker(),
		// Sized so finished goroutines never block, even after Run gives up.
		completions: make(chan completion, async),
		notifier:    m.notifier,
		inst:        loadInstruments(logger),
		logger:      logger,
	}
}

// execute walks the layers in ascending priority and then waits for every
// async unit still in flight.
func (c *cycle) execute(ctx context.Context, layers []Layer) error {
	for _, layer := range layers {
		if err := c.runLayer(ctx, layer); err != nil {
			return err
		}
	}
	for c.tracker.inFlight() > 0 {
		if err := c.yield(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *cycle) runLayer(ctx context.Context, layer Layer) error {
	c.logger.Debug("Entering priority layer.", "priority", layer.Priority, "units", len(layer.Entries))
	pending := layer.Entries
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := make([]Entry, 0, len(pending))
		progressed := false
		for _, e := range pending {
			if c.tracker.handled(e.Kind()) {
				continue
			}
			if !c.tracker.ready(e.Dependencies) {
				next = append(next, e)
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.dispatch(ctx, e); err != nil {
				return err
			}
			progressed = true
		}
		pending = next
		if len(pending) == 0 {
			return nil
		}
		if !progressed && c.tracker.inFlight() == 0 {
			return c.unsatisfied(pending)
		}
		c.logger.Debug("Priority layer blocked, yielding.",
			"priority", layer.Priority, "pass", pass, "blocked", len(pending), "in_flight", c.tracker.inFlight())
		if err := c.yield(ctx); err != nil {
			return err
		}
	}
}

// yield waits for the first async completion, the quantum, or cancellation,
// then applies every completion already buffered.
func (c *cycle) yield(ctx context.Context) error {
	if c.tracker.inFlight() == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.quantum)
	defer timer.Stop()
	select {
	case done := <-c.completions:
		if err := c.finish(ctx, done); err != nil {
			return err
		}
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	for {
		select {
		case done := <-c.completions:
			if err := c.finish(ctx, done); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (c *cycle) dispatch(ctx context.Context, e Entry) error {
	kind := e.Kind()
	if e.Unit.IsAsync() {
		started := time.Now()
		c.tracker.start(&task{kind: kind, priority: e.Priority, started: started})
		c.inst.trackActive(ctx, 1)
		c.logger.Debug("Dispatched async unit.", "kind", kind, "priority", e.Priority)
		c.publish(EventDispatched, e, nil, 0)
		go c.runAsync(ctx, e, started)
		return nil
	}

	started := time.Now()
	unitCtx, span := startUnitSpan(ctx, e)
	err := invoke(func() error { return e.Unit.Initializer().Initialize(unitCtx) })
	endSpan(span, err)
	elapsed := time.Since(started)
	c.inst.recordUnit(ctx, kind, elapsed, err)
	if err != nil {
		c.publish(EventFailed, e, err, elapsed)
		return &InitializationFailure{Kind: kind, Err: err}
	}
	c.tracker.complete(kind)
	c.logger.Debug("Initialized unit.", "kind", kind, "priority", e.Priority, "elapsed", elapsed)
	c.publish(EventDispatched, e, nil, 0)
	c.publish(EventCompleted, e, nil, elapsed)
	return nil
}

func (c *cycle) runAsync(ctx context.Context, e Entry, started time.Time) {
	unitCtx, span := startUnitSpan(ctx, e)
	err := invoke(func() error { return e.Unit.AsyncInitializer().InitializeAsync(unitCtx) })
	endSpan(span, err)
	c.completions <- completion{kind: e.Kind(), err: err, elapsed: time.Since(started)}
}

// finish applies one async completion to the tracker.
func (c *cycle) finish(ctx context.Context, done completion) error {
	tk := c.tracker.finish(done.kind)
	c.inst.trackActive(ctx, -1)
	c.inst.recordUnit(ctx, done.kind, done.elapsed, done.err)
	priority := 0
	if tk != nil {
		priority = tk.priority
	}
	if done.err != nil {
		c.notifier.publish(Event{
			RunID: c.runID, Type: EventFailed, Kind: done.kind, Priority: priority,
			Async: true, Err: done.err, Elapsed: done.elapsed,
		})
		return &InitializationFailure{Kind: done.kind, Async: true, Err: done.err}
	}
	c.tracker.complete(done.kind)
	c.logger.Debug("Async unit finished.", "kind", done.kind, "elapsed", done.elapsed)
	c.notifier.publish(Event{
		RunID: c.runID, Type: EventCompleted, Kind: done.kind, Priority: priority,
		Async: true, Elapsed: done.elapsed,
	})
	return nil
}

func (c *cycle) publish(t EventType, e Entry, err error, elapsed time.Duration) {
	c.notifier.publish(Event{
		RunID:    c.runID,
		Type:     t,
		Kind:     e.Kind(),
		Priority: e.Priority,
		Async:    e.Unit.IsAsync(),
		Err:      err,
		Elapsed:  elapsed,
	})
}

func (c *cycle) unsatisfied(pending []Entry) error {
	blocked := make([]BlockedUnit, 0, len(pending))
	for _, e := range pending {
		blocked = append(blocked, BlockedUnit{
			Kind:     e.Kind(),
			Priority: e.Priority,
			Missing:  c.tracker.missing(e.Dependencies),
		})
	}
	return &UnsatisfiedDependencyError{Blocked: blocked}
}

// invoke runs fn and converts a panic into an error.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
