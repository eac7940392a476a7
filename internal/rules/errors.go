package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kingrea/bootstrap/internal/unit"
)

var (
	// ErrAmbiguousPriority matches *AmbiguousPriorityError.
	ErrAmbiguousPriority = errors.New("rules: ambiguous priority")
	// ErrInvalidDependencyOrder matches *InvalidDependencyOrderError.
	ErrInvalidDependencyOrder = errors.New("rules: invalid dependency order")
)

// AmbiguousPriorityError reports a kind matched by rules with distinct
// priorities.
type AmbiguousPriorityError struct {
	Kind       unit.Kind
	Priorities []int
}

func (e *AmbiguousPriorityError) Error() string {
	values := make([]string, len(e.Priorities))
	for i, p := range e.Priorities {
		values[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("rules: %s matches distinct priorities [%s]", e.Kind, strings.Join(values, ", "))
}

// Is matches ErrAmbiguousPriority.
func (e *AmbiguousPriorityError) Is(target error) bool {
	return target == ErrAmbiguousPriority
}

// InvalidDependencyOrderError reports a dependency that would run after the
// unit depending on it.
type InvalidDependencyOrderError struct {
	Kind               unit.Kind
	Priority           int
	Dependency         unit.Kind
	DependencyPriority int
}

func (e *InvalidDependencyOrderError) Error() string {
	if e.Kind == e.Dependency {
		return fmt.Sprintf("rules: %s depends on itself", e.Kind)
	}
	return fmt.Sprintf("rules: %s (priority %d) depends on %s (priority %d); dependency priority must be less than or equal",
		e.Kind, e.Priority, e.Dependency, e.DependencyPriority)
}

// Is matches ErrInvalidDependencyOrder.
func (e *InvalidDependencyOrderError) Is(target error) bool {
	return target == ErrInvalidDependencyOrder
}
