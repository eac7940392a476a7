package container

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/bootstrap/internal/unit"
)

// Config is factory-specific configuration taken from a manifest entry.
type Config map[string]any

// Decode copies the config into out, rejecting keys out does not declare.
func (c Config) Decode(out any) error {
	if len(c) == 0 {
		return nil
	}
	data, err := yaml.Marshal(map[string]any(c))
	if err != nil {
		return fmt.Errorf("container: encode config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("container: decode config: %w", err)
	}
	return nil
}

// Env carries host resources factories may hand to the units they build.
type Env struct {
	Out    io.Writer
	Logger *slog.Logger
	// Dir is the base directory relative paths in unit config resolve against.
	Dir string
}

// Spec is the input to a Factory.
type Spec struct {
	Kind   unit.Kind
	Config Config
	Env    Env
}

// Factory constructs a unit of the requested kind.
type Factory func(Spec) (unit.Unit, error)

// Definition describes a registered factory.
type Definition struct {
	ID          string
	Description string
	Async       bool
	Factory     Factory
}

// Registry maintains known unit factories.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: map[string]Definition{}}
}

// Register installs a factory. Returns an error if the ID already exists.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return fmt.Errorf("container: factory id is required")
	}
	if def.Factory == nil {
		return fmt.Errorf("container: factory is required for %s", def.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.ID]; exists {
		return fmt.Errorf("container: %s already registered", def.ID)
	}
	r.definitions[def.ID] = def
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Resolve builds a unit with the factory registered under id.
func (r *Registry) Resolve(id string, spec Spec) (unit.Unit, error) {
	r.mu.RLock()
	def, ok := r.definitions[id]
	r.mu.RUnlock()
	if !ok {
		return unit.Unit{}, fmt.Errorf("container: unknown factory %s", id)
	}
	u, err := def.Factory(spec)
	if err != nil {
		return unit.Unit{}, fmt.Errorf("container: %s: %w", id, err)
	}
	if !u.Valid() {
		return unit.Unit{}, fmt.Errorf("container: %s returned an empty unit", id)
	}
	if u.Kind() != spec.Kind {
		return unit.Unit{}, fmt.Errorf("container: %s built kind %s, want %s", id, u.Kind(), spec.Kind)
	}
	return u, nil
}

// IDs returns a sorted list of registered factory identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Definitions returns every definition sorted by ID.
func (r *Registry) Definitions() []Definition {
	ids := r.IDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(ids))
	for _, id := range ids {
		if def, ok := r.definitions[id]; ok {
			defs = append(defs, def)
		}
	}
	return defs
}
