package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/bootstrap/internal/rules"
	"github.com/kingrea/bootstrap/internal/unit"
)

type recorder struct {
	mu    sync.Mutex
	order []unit.Kind
}

func (r *recorder) record(kind unit.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, kind)
}

func (r *recorder) snapshot() []unit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]unit.Kind(nil), r.order...)
}

func (r *recorder) sync(kind unit.Kind) unit.Initializer {
	return unit.Func(kind, func(context.Context) error {
		r.record(kind)
		return nil
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, c Collections, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithQuantum(time.Millisecond)}, opts...)
	m, err := New(c, opts...)
	require.NoError(t, err)
	return m
}

func TestRunOrdersByPriority(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{
		Sync: []unit.Initializer{rec.sync("late"), rec.sync("early"), rec.sync("middle-a"), rec.sync("middle-b")},
		Priorities: []rules.PriorityRule{
			{Kind: "late", Priority: 2},
			{Kind: "early", Priority: -1},
		},
	})

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []unit.Kind{"early", "middle-a", "middle-b", "late"}, rec.snapshot())
	assert.True(t, m.HasInitialized())
}

func TestRunWaitsForAsyncDependency(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	spawner := unit.AsyncFunc("hero-spawner", func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		rec.record("hero-spawner")
		return nil
	})

	m := newTestManager(t, Collections{
		Sync:         []unit.Initializer{rec.sync("config"), rec.sync("cutscene")},
		Async:        []unit.AsyncInitializer{spawner},
		Dependencies: []rules.DependencyRule{{Dependent: "cutscene", Dependency: "hero-spawner"}},
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, []unit.Kind{"config"}, rec.snapshot())
		close(release)
	}()

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []unit.Kind{"config", "hero-spawner", "cutscene"}, rec.snapshot())
}

func TestAsyncUnitOverlapsLaterLayers(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	slow := unit.AsyncFunc("asset-cache", func(ctx context.Context) error {
		<-release
		rec.record("asset-cache")
		return nil
	})
	next := unit.Func("menu", func(context.Context) error {
		rec.record("menu")
		close(release)
		return nil
	})

	m := newTestManager(t, Collections{
		Sync:       []unit.Initializer{next},
		Async:      []unit.AsyncInitializer{slow},
		Priorities: []rules.PriorityRule{{Kind: "menu", Priority: 1}},
	})

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []unit.Kind{"menu", "asset-cache"}, rec.snapshot())
}

func TestLaterLayerWaitsForAsyncDependency(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	spawner := unit.AsyncFunc("hero-spawner", func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		rec.record("hero-spawner")
		return nil
	})

	m := newTestManager(t, Collections{
		Sync:         []unit.Initializer{rec.sync("config"), rec.sync("cutscene")},
		Async:        []unit.AsyncInitializer{spawner},
		Priorities:   []rules.PriorityRule{{Kind: "cutscene", Priority: 1}},
		Dependencies: []rules.DependencyRule{{Dependent: "cutscene", Dependency: "hero-spawner"}},
	})
	layers := m.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, 1, layers[1].Priority)

	go func() {
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, []unit.Kind{"config"}, rec.snapshot(), "priority 1 must wait for hero-spawner")
		close(release)
	}()

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []unit.Kind{"config", "hero-spawner", "cutscene"}, rec.snapshot())
	assert.True(t, m.HasInitialized())
}

func TestNewRejectsAmbiguousPriority(t *testing.T) {
	h := unit.NewHierarchy()
	require.NoError(t, h.Declare("hero-spawner", "spawner"))
	rec := &recorder{}

	_, err := New(Collections{
		Sync:      []unit.Initializer{rec.sync("hero-spawner")},
		Hierarchy: h,
		Priorities: []rules.PriorityRule{
			{Kind: "hero-spawner", Priority: 1},
			{Kind: "spawner", Priority: 2},
		},
	}, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, rules.ErrAmbiguousPriority))
}

func TestRegisterRejectsLaterDependency(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{
		Priorities: []rules.PriorityRule{{Kind: "audio", Priority: 5}},
	})

	err := m.Register(unit.Sync(rec.sync("cutscene")), 0, "audio")
	assert.True(t, errors.Is(err, rules.ErrInvalidDependencyOrder))

	require.NoError(t, m.Register(unit.Sync(rec.sync("audio")), 5))
	require.NoError(t, m.Register(unit.Sync(rec.sync("cutscene")), 5, "audio"))
	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []unit.Kind{"audio", "cutscene"}, rec.snapshot())
}

func TestRunRejectsDependencyRegisteredLater(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{})

	require.NoError(t, m.Register(unit.Sync(rec.sync("audio")), 5))
	require.NoError(t, m.Register(unit.Sync(rec.sync("first")), 0))
	require.NoError(t, m.Register(unit.Sync(rec.sync("cutscene")), 0, "audio"))

	err := m.Run(context.Background())
	require.True(t, errors.Is(err, rules.ErrInvalidDependencyOrder))
	var order *rules.InvalidDependencyOrderError
	require.True(t, errors.As(err, &order))
	assert.Equal(t, unit.Kind("cutscene"), order.Kind)
	assert.Equal(t, unit.Kind("audio"), order.Dependency)
	assert.Equal(t, 5, order.DependencyPriority)
	assert.Empty(t, rec.snapshot(), "no unit may run before the order check")
	assert.False(t, m.HasInitialized())
}

func TestRegisterRejectsInvalidUnit(t *testing.T) {
	m := newTestManager(t, Collections{})
	assert.Error(t, m.Register(unit.Unit{}, 0))
}

func TestRunOnlyOnce(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{Sync: []unit.Initializer{rec.sync("a")}})
	assert.False(t, m.HasInitialized())

	require.NoError(t, m.Run(context.Background()))
	assert.True(t, m.HasInitialized())

	err := m.Run(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyInitialized))
	err = m.Register(unit.Sync(rec.sync("b")), 0)
	assert.True(t, errors.Is(err, ErrAlreadyInitialized))
	assert.Equal(t, []unit.Kind{"a"}, rec.snapshot())
}

func TestRunRejectsDuplicates(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{Sync: []unit.Initializer{rec.sync("a"), rec.sync("b"), rec.sync("a")}})

	err := m.Run(context.Background())
	var dup *DuplicateUnitError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, unit.Kind("a"), dup.Kind)
	assert.Equal(t, 2, dup.Count)
	assert.Empty(t, rec.snapshot())
	assert.False(t, m.HasInitialized())
}

func TestRunSkipsDuplicatesWhenCheckDisabled(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{Sync: []unit.Initializer{rec.sync("a"), rec.sync("a")}}, WithDuplicateCheck(false))

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []unit.Kind{"a"}, rec.snapshot())
}

func TestRunDetectsUnsatisfiedDependency(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{
		Sync:         []unit.Initializer{rec.sync("ready"), rec.sync("orphan")},
		Dependencies: []rules.DependencyRule{{Dependent: "orphan", Dependency: "never-registered"}},
	})

	err := m.Run(context.Background())
	require.True(t, errors.Is(err, ErrUnsatisfiedDependency))
	var unsatisfied *UnsatisfiedDependencyError
	require.True(t, errors.As(err, &unsatisfied))
	require.Len(t, unsatisfied.Blocked, 1)
	assert.Equal(t, unit.Kind("orphan"), unsatisfied.Blocked[0].Kind)
	assert.Equal(t, []unit.Kind{"never-registered"}, unsatisfied.Blocked[0].Missing)
	assert.Equal(t, []unit.Kind{"ready"}, rec.snapshot())
}

func TestAsyncFailureAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}
	m := newTestManager(t, Collections{
		Sync:         []unit.Initializer{rec.sync("after")},
		Async:        []unit.AsyncInitializer{unit.AsyncFunc("loader", func(context.Context) error { return boom })},
		Dependencies: []rules.DependencyRule{{Dependent: "after", Dependency: "loader"}},
	})

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInitialization))
	assert.True(t, errors.Is(err, boom))
	var failure *InitializationFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, unit.Kind("loader"), failure.Kind)
	assert.True(t, failure.Async)
	assert.Empty(t, rec.snapshot())
	assert.False(t, m.HasInitialized())
}

func TestSyncPanicBecomesFailure(t *testing.T) {
	m := newTestManager(t, Collections{
		Sync: []unit.Initializer{unit.Func("explodes", func(context.Context) error { panic("kaboom") })},
	})

	err := m.Run(context.Background())
	require.True(t, errors.Is(err, ErrInitialization))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newTestManager(t, Collections{
		Async: []unit.AsyncInitializer{unit.AsyncFunc("stuck", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})},
	})

	time.AfterFunc(10*time.Millisecond, cancel)
	err := m.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, m.HasInitialized())
}

func TestRunWithCancelledContextRunsNothing(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{Sync: []unit.Initializer{rec.sync("a"), rec.sync("b")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, rec.snapshot())
	assert.False(t, m.HasInitialized())
}

func TestCancellationStopsBeforeNextSyncUnit(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := unit.Func("first", func(context.Context) error {
		rec.record("first")
		cancel()
		return nil
	})
	m := newTestManager(t, Collections{Sync: []unit.Initializer{first, rec.sync("second")}})

	err := m.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []unit.Kind{"first"}, rec.snapshot())
}

func TestSubscribeReceivesLifecycle(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{
		Sync:         []unit.Initializer{rec.sync("cutscene")},
		Async:        []unit.AsyncInitializer{unit.AsyncFunc("hero-spawner", func(context.Context) error { return nil })},
		Dependencies: []rules.DependencyRule{{Dependent: "cutscene", Dependency: "hero-spawner"}},
	}, WithRunID("run-1"))
	sub := m.Subscribe()

	require.NoError(t, m.Run(context.Background()))

	var got []Event
	for ev := range sub.Events {
		got = append(got, ev)
	}
	require.Len(t, got, 4)
	assert.Equal(t, EventDispatched, got[0].Type)
	assert.Equal(t, unit.Kind("hero-spawner"), got[0].Kind)
	assert.True(t, got[0].Async)
	assert.Equal(t, EventCompleted, got[1].Type)
	assert.Equal(t, unit.Kind("hero-spawner"), got[1].Kind)
	assert.Equal(t, EventDispatched, got[2].Type)
	assert.Equal(t, unit.Kind("cutscene"), got[2].Kind)
	assert.Equal(t, EventCompleted, got[3].Type)
	for i, ev := range got {
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestSlowSubscriberDoesNotBlockRun(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{
		Sync: []unit.Initializer{rec.sync("a"), rec.sync("b"), rec.sync("c")},
	}, WithSubscriberCapacity(1))
	sub := m.Subscribe()

	require.NoError(t, m.Run(context.Background()))

	count := 0
	for range sub.Events {
		count++
	}
	assert.Equal(t, 1, count)
	assert.Len(t, rec.snapshot(), 3)
}

func TestSubscribeAfterRunIsClosed(t *testing.T) {
	m := newTestManager(t, Collections{})
	require.NoError(t, m.Run(context.Background()))

	_, ok := <-m.Subscribe().Events
	assert.False(t, ok)
}

func TestLayersGroupByPriority(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, Collections{
		Sync:       []unit.Initializer{rec.sync("b"), rec.sync("a"), rec.sync("c")},
		Priorities: []rules.PriorityRule{{Kind: "b", Priority: 1}},
	})

	layers := m.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, 0, layers[0].Priority)
	assert.Equal(t, unit.Kind("a"), layers[0].Entries[0].Kind())
	assert.Equal(t, unit.Kind("c"), layers[0].Entries[1].Kind())
	assert.Equal(t, 1, layers[1].Priority)
}
