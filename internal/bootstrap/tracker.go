package bootstrap

import (
	"time"

	"github.com/kingrea/bootstrap/internal/unit"
)

// task is the handle for one in-flight async unit.
type task struct {
	kind     unit.Kind
	priority int
	started  time.Time
}

// completion is sent by an async unit's goroutine when it returns.
type completion struct {
	kind    unit.Kind
	err     error
	elapsed time.Duration
}

// tracker holds the completed and running sets. Only the goroutine running
// the scheduler loop touches it.
type tracker struct {
	completed map[unit.Kind]struct{}
	running   map[unit.Kind]*task
}

func newTracker() *tracker {
	return &tracker{
		completed: make(map[unit.Kind]struct{}),
		running:   make(map[unit.Kind]*task),
	}
}

func (t *tracker) handled(kind unit.Kind) bool {
	if _, ok := t.completed[kind]; ok {
		return true
	}
	_, ok := t.running[kind]
	return ok
}

func (t *tracker) ready(deps []unit.Kind) bool {
	for _, dep := range deps {
		if _, ok := t.completed[dep]; !ok {
			return false
		}
	}
	return true
}

func (t *tracker) missing(deps []unit.Kind) []unit.Kind {
	var out []unit.Kind
	for _, dep := range deps {
		if _, ok := t.completed[dep]; !ok {
			out = append(out, dep)
		}
	}
	return out
}

func (t *tracker) start(tk *task) {
	t.running[tk.kind] = tk
}

// finish removes kind from the running set and returns its handle.
func (t *tracker) finish(kind unit.Kind) *task {
	tk := t.running[kind]
	delete(t.running, kind)
	return tk
}

func (t *tracker) complete(kind unit.Kind) {
	t.completed[kind] = struct{}{}
}

func (t *tracker) inFlight() int {
	return len(t.running)
}
