package rules

import (
	"sort"

	"github.com/kingrea/bootstrap/internal/unit"
)

// PriorityRule assigns a priority to a kind and everything deriving from it.
type PriorityRule struct {
	Kind     unit.Kind
	Priority int
}

// PriorityResolver maps kinds to priorities. Kinds matching no rule resolve
// to 0, so negative priorities run before unspecified ones and positive after.
type PriorityResolver struct {
	rules     []PriorityRule
	hierarchy *unit.Hierarchy
}

// NewPriorityResolver copies rules; hierarchy may be nil.
func NewPriorityResolver(hierarchy *unit.Hierarchy, rules []PriorityRule) *PriorityResolver {
	return &PriorityResolver{
		rules:     append([]PriorityRule(nil), rules...),
		hierarchy: hierarchy,
	}
}

// Resolve returns the priority for kind.
func (r *PriorityResolver) Resolve(kind unit.Kind) (int, error) {
	if r == nil {
		return 0, nil
	}
	distinct := map[int]struct{}{}
	for _, rule := range r.rules {
		if r.hierarchy.DerivesFromOrEqual(kind, rule.Kind) {
			distinct[rule.Priority] = struct{}{}
		}
	}
	switch len(distinct) {
	case 0:
		return 0, nil
	case 1:
		for p := range distinct {
			return p, nil
		}
	}
	values := make([]int, 0, len(distinct))
	for p := range distinct {
		values = append(values, p)
	}
	sort.Ints(values)
	return 0, &AmbiguousPriorityError{Kind: kind, Priorities: values}
}
