package unit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrHierarchyCycle is returned when a declaration would make a kind its own
// ancestor.
var ErrHierarchyCycle = errors.New("unit: hierarchy cycle")

// Hierarchy records explicit kind -> parent edges so priority and dependency
// rules declared against a category also match the kinds deriving from it.
// All operations are concurrency-safe.
type Hierarchy struct {
	mu      sync.RWMutex
	parents map[Kind]map[Kind]struct{}
}

// NewHierarchy returns an empty hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{parents: make(map[Kind]map[Kind]struct{})}
}

// Declare records that kind derives from each of parents. Declaring the same
// edge twice is a no-op.
func (h *Hierarchy) Declare(kind Kind, parents ...Kind) error {
	kind = kind.Normalized()
	if kind == "" {
		return fmt.Errorf("unit: kind is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, parent := range parents {
		parent = parent.Normalized()
		if parent == "" {
			return fmt.Errorf("unit: empty parent declared for %s", kind)
		}
		if parent == kind || h.derivesLocked(parent, kind) {
			return fmt.Errorf("%w: %s -> %s", ErrHierarchyCycle, kind, parent)
		}
		set, ok := h.parents[kind]
		if !ok {
			set = make(map[Kind]struct{})
			h.parents[kind] = set
		}
		set[parent] = struct{}{}
	}
	return nil
}

// DerivesFromOrEqual reports whether ancestor is kind itself or one of its
// transitive parents. A nil hierarchy only matches equality.
func (h *Hierarchy) DerivesFromOrEqual(kind, ancestor Kind) bool {
	if kind == ancestor {
		return true
	}
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.derivesLocked(kind, ancestor)
}

// Ancestors returns every transitive parent of kind, sorted.
func (h *Hierarchy) Ancestors(kind Kind) []Kind {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[Kind]struct{})
	var visit func(Kind)
	visit = func(k Kind) {
		for parent := range h.parents[k] {
			if _, ok := seen[parent]; ok {
				continue
			}
			seen[parent] = struct{}{}
			visit(parent)
		}
	}
	visit(kind)
	out := make([]Kind, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hierarchy) derivesLocked(kind, ancestor Kind) bool {
	visited := make(map[Kind]bool)
	var walk func(Kind) bool
	walk = func(k Kind) bool {
		if visited[k] {
			return false
		}
		visited[k] = true
		for parent := range h.parents[k] {
			if parent == ancestor || walk(parent) {
				return true
			}
		}
		return false
	}
	return walk(kind)
}
