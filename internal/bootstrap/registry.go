package bootstrap

import (
	"sort"
	"sync"

	"github.com/kingrea/bootstrap/internal/rules"
	"github.com/kingrea/bootstrap/internal/unit"
)

// Entry is a registered unit plus its scheduling metadata.
type Entry struct {
	Unit         unit.Unit
	Priority     int
	Dependencies []unit.Kind
	// Seq is the registration order, used as the tiebreak within a priority.
	Seq int
}

// Kind returns the unit's identity.
func (e Entry) Kind() unit.Kind {
	return e.Unit.Kind()
}

// Layer groups entries sharing a priority.
type Layer struct {
	Priority int
	Entries  []Entry
}

// Registry holds entries until the bootstrap cycle starts.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
	sealed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an entry. It fails once the registry is sealed.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return &AlreadyInitializedError{Op: "Register"}
	}
	e.Dependencies = append([]unit.Kind(nil), e.Dependencies...)
	e.Seq = len(r.entries)
	r.entries = append(r.entries, e)
	return nil
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Seal stops further registration and returns the entries stable-sorted by
// priority. Only the first call succeeds.
func (r *Registry) Seal() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil, &AlreadyInitializedError{Op: "Run"}
	}
	r.sealed = true
	return sortEntries(r.entries), nil
}

// Entries returns a copy of the entries in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Layers returns the current entries grouped into ascending priority layers.
func (r *Registry) Layers() []Layer {
	return partition(sortEntries(r.Entries()))
}

func sortEntries(entries []Entry) []Entry {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

func partition(sorted []Entry) []Layer {
	var layers []Layer
	for _, e := range sorted {
		if n := len(layers); n > 0 && layers[n-1].Priority == e.Priority {
			layers[n-1].Entries = append(layers[n-1].Entries, e)
			continue
		}
		layers = append(layers, Layer{Priority: e.Priority, Entries: []Entry{e}})
	}
	return layers
}

func findDuplicates(entries []Entry) error {
	counts := make(map[unit.Kind]int, len(entries))
	var order []unit.Kind
	for _, e := range entries {
		kind := e.Kind()
		if counts[kind] == 0 {
			order = append(order, kind)
		}
		counts[kind]++
	}
	for _, kind := range order {
		if counts[kind] > 1 {
			return &DuplicateUnitError{Kind: kind, Count: counts[kind]}
		}
	}
	return nil
}

// checkOrder compares each dependency against the priority its kind was
// actually registered with. Entries must be sorted; the first entry of a
// kind is the one that runs.
func checkOrder(sorted []Entry) error {
	registered := make(map[unit.Kind]int, len(sorted))
	for _, e := range sorted {
		if _, ok := registered[e.Kind()]; !ok {
			registered[e.Kind()] = e.Priority
		}
	}
	for _, e := range sorted {
		for _, dep := range e.Dependencies {
			depPriority, ok := registered[dep]
			if !ok || depPriority <= e.Priority {
				continue
			}
			return &rules.InvalidDependencyOrderError{
				Kind:               e.Kind(),
				Priority:           e.Priority,
				Dependency:         dep,
				DependencyPriority: depPriority,
			}
		}
	}
	return nil
}
