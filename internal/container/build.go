package container

import (
	"fmt"

	"github.com/kingrea/bootstrap/internal/bootstrap"
	"github.com/kingrea/bootstrap/internal/config"
	"github.com/kingrea/bootstrap/internal/rules"
	"github.com/kingrea/bootstrap/internal/unit"
)

// Plan is a manifest resolved into scheduler inputs.
type Plan struct {
	ID          string
	Collections bootstrap.Collections
	Options     []bootstrap.Option
	AutoRun     bool
}

// Build resolves every manifest unit through reg and converts the manifest
// rules. Units keep manifest order within the sync and async collections.
func Build(m config.Manifest, reg *Registry, env Env) (Plan, error) {
	h := unit.NewHierarchy()
	for _, decl := range m.Kinds {
		parents := make([]unit.Kind, len(decl.Parents))
		for i, p := range decl.Parents {
			parents[i] = unit.Kind(p)
		}
		if err := h.Declare(unit.Kind(decl.Kind), parents...); err != nil {
			return Plan{}, fmt.Errorf("container: manifest %s: %w", m.ID, err)
		}
	}

	plan := Plan{ID: m.ID, AutoRun: m.Scheduler.AutoRunEnabled()}
	plan.Collections.Hierarchy = h
	for idx, ref := range m.Units {
		u, err := reg.Resolve(ref.Factory, Spec{Kind: unit.Kind(ref.Kind), Config: Config(ref.Config), Env: env})
		if err != nil {
			return Plan{}, fmt.Errorf("container: manifest %s unit[%d]: %w", m.ID, idx, err)
		}
		if u.IsAsync() {
			plan.Collections.Async = append(plan.Collections.Async, u.AsyncInitializer())
		} else {
			plan.Collections.Sync = append(plan.Collections.Sync, u.Initializer())
		}
	}
	for _, p := range m.Priorities {
		plan.Collections.Priorities = append(plan.Collections.Priorities, rules.PriorityRule{
			Kind:     unit.Kind(p.Kind),
			Priority: p.Priority,
		})
	}
	for _, d := range m.Dependencies {
		plan.Collections.Dependencies = append(plan.Collections.Dependencies, rules.DependencyRule{
			Dependent:  unit.Kind(d.Dependent),
			Dependency: unit.Kind(d.Dependency),
		})
	}

	plan.Options = append(plan.Options,
		bootstrap.WithDuplicateCheck(m.Scheduler.DuplicateCheck()),
		bootstrap.WithQuantum(m.Scheduler.Quantum.Std()),
		bootstrap.WithSubscriberCapacity(m.Scheduler.SubscriberCapacity),
	)
	if env.Logger != nil {
		plan.Options = append(plan.Options, bootstrap.WithLogger(env.Logger))
	}
	return plan, nil
}

// Manager constructs a bootstrap.Manager from the plan. extra options are
// applied after the manifest's own.
func (p Plan) Manager(extra ...bootstrap.Option) (*bootstrap.Manager, error) {
	opts := append(append([]bootstrap.Option(nil), p.Options...), extra...)
	m, err := bootstrap.New(p.Collections, opts...)
	if err != nil {
		return nil, fmt.Errorf("container: manifest %s: %w", p.ID, err)
	}
	return m, nil
}
