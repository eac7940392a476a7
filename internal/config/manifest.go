// internal/config/manifest.go
//
// A manifest declares everything one bootstrap run needs: the unit instances
// (by factory), the kind hierarchy, and the priority and dependency rules.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Manifest is the YAML document loaded by the CLI.
type Manifest struct {
	ID           string           `yaml:"id" validate:"required"`
	Description  string           `yaml:"description,omitempty"`
	Scheduler    SchedulerConfig  `yaml:"scheduler,omitempty"`
	Kinds        []KindDecl       `yaml:"kinds,omitempty" validate:"dive"`
	Units        []UnitRef        `yaml:"units" validate:"required,min=1,dive"`
	Priorities   []PriorityDecl   `yaml:"priorities,omitempty" validate:"dive"`
	Dependencies []DependencyDecl `yaml:"dependencies,omitempty" validate:"dive"`
}

// SchedulerConfig tunes the scheduler loop and the host context.
type SchedulerConfig struct {
	Quantum            Duration `yaml:"quantum,omitempty" validate:"gte=0"`
	CheckDuplicates    *bool    `yaml:"check_duplicates,omitempty"`
	AutoRun            *bool    `yaml:"auto_run,omitempty"`
	SubscriberCapacity int      `yaml:"subscriber_capacity,omitempty" validate:"gte=0"`
}

// DuplicateCheck defaults to true.
func (s SchedulerConfig) DuplicateCheck() bool {
	return s.CheckDuplicates == nil || *s.CheckDuplicates
}

// AutoRunEnabled defaults to true.
func (s SchedulerConfig) AutoRunEnabled() bool {
	return s.AutoRun == nil || *s.AutoRun
}

// KindDecl declares the parents of a kind.
type KindDecl struct {
	Kind    string   `yaml:"kind" validate:"required"`
	Parents []string `yaml:"parents,omitempty" validate:"dive,required"`
}

// UnitRef instantiates one unit from a named factory. Priority, DependsOn and
// Parents are shorthands folded into the rule lists by Normalized.
type UnitRef struct {
	Factory   string         `yaml:"factory" validate:"required"`
	Kind      string         `yaml:"kind" validate:"required"`
	Config    map[string]any `yaml:"config,omitempty"`
	DependsOn []string       `yaml:"depends_on,omitempty" validate:"dive,required"`
	Priority  *int           `yaml:"priority,omitempty"`
	Parents   []string       `yaml:"parents,omitempty" validate:"dive,required"`
}

// PriorityDecl assigns a priority to a kind and everything deriving from it.
type PriorityDecl struct {
	Kind     string `yaml:"kind" validate:"required"`
	Priority int    `yaml:"priority"`
}

// DependencyDecl makes every unit deriving from Dependent wait for Dependency.
type DependencyDecl struct {
	Dependent  string `yaml:"dependent" validate:"required"`
	Dependency string `yaml:"dependency" validate:"required"`
}

// Clone returns a deep copy of the manifest.
func (m Manifest) Clone() Manifest {
	clone := m
	clone.Kinds = make([]KindDecl, len(m.Kinds))
	for i, k := range m.Kinds {
		clone.Kinds[i] = KindDecl{Kind: k.Kind, Parents: cloneStrings(k.Parents)}
	}
	clone.Units = make([]UnitRef, len(m.Units))
	for i, u := range m.Units {
		ref := u
		ref.DependsOn = cloneStrings(u.DependsOn)
		ref.Parents = cloneStrings(u.Parents)
		if u.Priority != nil {
			p := *u.Priority
			ref.Priority = &p
		}
		if u.Config != nil {
			ref.Config = make(map[string]any, len(u.Config))
			for k, v := range u.Config {
				ref.Config[k] = v
			}
		}
		clone.Units[i] = ref
	}
	clone.Priorities = append([]PriorityDecl(nil), m.Priorities...)
	clone.Dependencies = append([]DependencyDecl(nil), m.Dependencies...)
	return clone
}

// Normalized trims identifiers, folds the per-unit shorthands into the rule
// lists and validates the result. Inline rules are appended after the
// top-level ones; a dependency declared twice is kept once.
func (m Manifest) Normalized() (Manifest, error) {
	clone := m.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	for i := range clone.Kinds {
		clone.Kinds[i].Kind = strings.TrimSpace(clone.Kinds[i].Kind)
		clone.Kinds[i].Parents = trimAll(clone.Kinds[i].Parents)
	}
	for i := range clone.Priorities {
		clone.Priorities[i].Kind = strings.TrimSpace(clone.Priorities[i].Kind)
	}
	seenDeps := map[DependencyDecl]struct{}{}
	deps := make([]DependencyDecl, 0, len(clone.Dependencies))
	addDep := func(d DependencyDecl) {
		d.Dependent = strings.TrimSpace(d.Dependent)
		d.Dependency = strings.TrimSpace(d.Dependency)
		if _, ok := seenDeps[d]; ok {
			return
		}
		seenDeps[d] = struct{}{}
		deps = append(deps, d)
	}
	for _, d := range clone.Dependencies {
		addDep(d)
	}
	for i := range clone.Units {
		ref := &clone.Units[i]
		ref.Factory = strings.TrimSpace(strings.ToLower(ref.Factory))
		ref.Kind = strings.TrimSpace(ref.Kind)
		ref.DependsOn = trimAll(ref.DependsOn)
		ref.Parents = trimAll(ref.Parents)
		if len(ref.Parents) > 0 {
			clone.Kinds = append(clone.Kinds, KindDecl{Kind: ref.Kind, Parents: ref.Parents})
		}
		if ref.Priority != nil {
			clone.Priorities = append(clone.Priorities, PriorityDecl{Kind: ref.Kind, Priority: *ref.Priority})
		}
		for _, dep := range ref.DependsOn {
			addDep(DependencyDecl{Dependent: ref.Kind, Dependency: dep})
		}
	}
	clone.Dependencies = deps
	if err := clone.Validate(); err != nil {
		return Manifest{}, err
	}
	return clone, nil
}

// Validate checks struct tags and cross-field constraints.
func (m Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config: manifest %s: field %s failed %q", m.ID, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: manifest %s: %w", m.ID, err)
	}
	for _, d := range m.Dependencies {
		if d.Dependent == d.Dependency {
			return fmt.Errorf("config: manifest %s: %s depends on itself", m.ID, d.Dependent)
		}
	}
	return nil
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func trimAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}
	return values
}
