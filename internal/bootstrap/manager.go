package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kingrea/bootstrap/internal/rules"
	"github.com/kingrea/bootstrap/internal/unit"
)

// Collections is the declarative input to New. Sync units are registered
// before async ones; each takes its priority and dependencies from the rules.
type Collections struct {
	Sync         []unit.Initializer
	Async        []unit.AsyncInitializer
	Priorities   []rules.PriorityRule
	Dependencies []rules.DependencyRule
	Hierarchy    *unit.Hierarchy
}

// Manager owns one bootstrap cycle.
type Manager struct {
	opts        options
	logger      *slog.Logger
	runID       string
	registry    *Registry
	hierarchy   *unit.Hierarchy
	priorities  *rules.PriorityResolver
	validator   *rules.DependencyValidator
	notifier    *notifier
	initialized atomic.Bool
}

// New builds a Manager and registers every unit in c. It fails on the first
// unit whose priority is ambiguous or whose dependencies are ordered after it.
func New(c Collections, opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	h := c.Hierarchy
	if h == nil {
		h = unit.NewHierarchy()
	}
	priorities := rules.NewPriorityResolver(h, c.Priorities)
	m := &Manager{
		opts:       o,
		logger:     o.logger.With("run_id", o.runID),
		runID:      o.runID,
		registry:   NewRegistry(),
		hierarchy:  h,
		priorities: priorities,
		validator:  rules.NewDependencyValidator(h, priorities, c.Dependencies),
		notifier:   newNotifier(o.subscriberCapacity, o.logger),
	}
	for _, s := range c.Sync {
		if err := m.Add(unit.Sync(s)); err != nil {
			return nil, err
		}
	}
	for _, a := range c.Async {
		if err := m.Add(unit.Async(a)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add registers u with the priority and dependencies implied by the rules.
func (m *Manager) Add(u unit.Unit) error {
	if !u.Valid() {
		return errors.New("bootstrap: unit must wrap exactly one initializer")
	}
	kind := u.Kind()
	priority, err := m.priorities.Resolve(kind)
	if err != nil {
		return err
	}
	return m.Register(u, priority, m.validator.Dependencies(kind)...)
}

// Register adds u with an explicit priority and dependency list. Every
// dependency must resolve to a priority no greater than priority.
func (m *Manager) Register(u unit.Unit, priority int, deps ...unit.Kind) error {
	if m.registry.Sealed() {
		return &AlreadyInitializedError{Op: "Register"}
	}
	if !u.Valid() {
		return errors.New("bootstrap: unit must wrap exactly one initializer")
	}
	if u.Kind() == "" {
		return errors.New("bootstrap: unit kind is required")
	}
	if err := m.validator.Validate(u.Kind(), priority, deps); err != nil {
		return err
	}
	if err := m.registry.Register(Entry{Unit: u, Priority: priority, Dependencies: deps}); err != nil {
		return err
	}
	m.logger.Debug("Registered unit.", "kind", u.Kind(), "priority", priority, "async", u.IsAsync(), "dependencies", len(deps))
	return nil
}

// Subscribe returns a stream of unit events for this Manager's run.
func (m *Manager) Subscribe() Subscription {
	return m.notifier.subscribe()
}

// HasInitialized reports whether Run completed successfully.
func (m *Manager) HasInitialized() bool {
	return m.initialized.Load()
}

// RunID identifies this Manager in logs, events and traces.
func (m *Manager) RunID() string {
	return m.runID
}

// Hierarchy returns the kind hierarchy used by the rules.
func (m *Manager) Hierarchy() *unit.Hierarchy {
	return m.hierarchy
}

// Layers returns the registered entries grouped by priority.
func (m *Manager) Layers() []Layer {
	return m.registry.Layers()
}

// Run executes the bootstrap cycle. It may be called once; later calls
// return an AlreadyInitializedError. On failure, in-flight async units see
// their context cancelled and Run returns without waiting for them.
func (m *Manager) Run(ctx context.Context) (err error) {
	entries, err := m.registry.Seal()
	if err != nil {
		return err
	}
	defer m.notifier.close()

	ctx, span := tracer.Start(ctx, "bootstrap.Run", trace.WithAttributes(
		attribute.String("bootstrap.run_id", m.runID),
		attribute.Int("bootstrap.units", len(entries)),
	))
	started := time.Now()
	inst := loadInstruments(m.logger)
	defer func() {
		inst.recordRun(ctx, time.Since(started), err)
		endSpan(span, err)
	}()

	if m.opts.checkDuplicates {
		if err := findDuplicates(entries); err != nil {
			m.logger.Error("Bootstrap aborted.", "error", err)
			return err
		}
	}

	if err := checkOrder(entries); err != nil {
		m.logger.Error("Bootstrap aborted.", "error", err)
		return err
	}

	layers := partition(entries)
	m.logger.Info("Bootstrap started.", "units", len(entries), "layers", len(layers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := newCycle(m, entries, m.logger).execute(runCtx, layers); err != nil {
		m.logger.Error("Bootstrap failed.", "error", err)
		return fmt.Errorf("bootstrap: run %s: %w", m.runID, err)
	}
	m.initialized.Store(true)
	m.logger.Info("Bootstrap finished.", "units", len(entries), "duration", time.Since(started))
	return nil
}
