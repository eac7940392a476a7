package rules

import "github.com/kingrea/bootstrap/internal/unit"

// DependencyRule declares that Dependent (and every kind deriving from it)
// may only initialize after Dependency has completed.
type DependencyRule struct {
	Dependent  unit.Kind
	Dependency unit.Kind
}

// DependencyValidator collects dependencies for a kind and checks that none
// of them is scheduled in a later priority layer.
type DependencyValidator struct {
	rules      []DependencyRule
	hierarchy  *unit.Hierarchy
	priorities *PriorityResolver
}

// NewDependencyValidator wires a validator to the priority resolver used for
// the dependency side of each rule.
func NewDependencyValidator(hierarchy *unit.Hierarchy, priorities *PriorityResolver, rules []DependencyRule) *DependencyValidator {
	return &DependencyValidator{
		rules:      append([]DependencyRule(nil), rules...),
		hierarchy:  hierarchy,
		priorities: priorities,
	}
}

// Dependencies returns the dependency kinds of every rule matching kind, in
// rule order without duplicates.
func (v *DependencyValidator) Dependencies(kind unit.Kind) []unit.Kind {
	if v == nil || len(v.rules) == 0 {
		return nil
	}
	seen := map[unit.Kind]struct{}{}
	var deps []unit.Kind
	for _, rule := range v.rules {
		if !v.hierarchy.DerivesFromOrEqual(kind, rule.Dependent) {
			continue
		}
		if _, ok := seen[rule.Dependency]; ok {
			continue
		}
		seen[rule.Dependency] = struct{}{}
		deps = append(deps, rule.Dependency)
	}
	return deps
}

// Validate fails when any dependency resolves to a priority above priority.
func (v *DependencyValidator) Validate(kind unit.Kind, priority int, deps []unit.Kind) error {
	for _, dep := range deps {
		if dep == kind {
			return &InvalidDependencyOrderError{Kind: kind, Priority: priority, Dependency: dep, DependencyPriority: priority}
		}
		var resolver *PriorityResolver
		if v != nil {
			resolver = v.priorities
		}
		depPriority, err := resolver.Resolve(dep)
		if err != nil {
			return err
		}
		if depPriority > priority {
			return &InvalidDependencyOrderError{
				Kind:               kind,
				Priority:           priority,
				Dependency:         dep,
				DependencyPriority: depPriority,
			}
		}
	}
	return nil
}
