package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/bootstrap/internal/unit"
)

var (
	// ErrAlreadyInitialized matches *AlreadyInitializedError.
	ErrAlreadyInitialized = errors.New("bootstrap: already initialized")
	// ErrDuplicateUnit matches *DuplicateUnitError.
	ErrDuplicateUnit = errors.New("bootstrap: duplicate unit")
	// ErrInitialization matches *InitializationFailure.
	ErrInitialization = errors.New("bootstrap: unit initialization failed")
	// ErrUnsatisfiedDependency matches *UnsatisfiedDependencyError.
	ErrUnsatisfiedDependency = errors.New("bootstrap: unsatisfied dependency")
)

// AlreadyInitializedError is returned by Register and Run once the bootstrap
// cycle has started.
type AlreadyInitializedError struct {
	Op string
}

func (e *AlreadyInitializedError) Error() string {
	return fmt.Sprintf("bootstrap: %s called after the bootstrap cycle started", e.Op)
}

// Is matches ErrAlreadyInitialized.
func (e *AlreadyInitializedError) Is(target error) bool {
	return target == ErrAlreadyInitialized
}

// DuplicateUnitError reports two entries sharing one kind.
type DuplicateUnitError struct {
	Kind  unit.Kind
	Count int
}

func (e *DuplicateUnitError) Error() string {
	return fmt.Sprintf("bootstrap: found %d units with kind %s", e.Count, e.Kind)
}

// Is matches ErrDuplicateUnit.
func (e *DuplicateUnitError) Is(target error) bool {
	return target == ErrDuplicateUnit
}

// InitializationFailure wraps the error returned (or panic raised) by a unit.
type InitializationFailure struct {
	Kind  unit.Kind
	Async bool
	Err   error
}

func (e *InitializationFailure) Error() string {
	mode := "sync"
	if e.Async {
		mode = "async"
	}
	return fmt.Sprintf("bootstrap: error initializing %s unit %s: %v", mode, e.Kind, e.Err)
}

// Unwrap exposes the unit error.
func (e *InitializationFailure) Unwrap() error {
	return e.Err
}

// Is matches ErrInitialization.
func (e *InitializationFailure) Is(target error) bool {
	return target == ErrInitialization
}

// BlockedUnit describes a unit that can never become ready.
type BlockedUnit struct {
	Kind     unit.Kind
	Priority int
	Missing  []unit.Kind
}

// UnsatisfiedDependencyError is returned when a layer still has blocked units
// but nothing is in flight that could complete their dependencies.
type UnsatisfiedDependencyError struct {
	Blocked []BlockedUnit
}

func (e *UnsatisfiedDependencyError) Error() string {
	parts := make([]string, 0, len(e.Blocked))
	for _, b := range e.Blocked {
		missing := make([]string, len(b.Missing))
		for i, k := range b.Missing {
			missing[i] = string(k)
		}
		parts = append(parts, fmt.Sprintf("%s (priority %d) waits on %s", b.Kind, b.Priority, strings.Join(missing, ", ")))
	}
	return "bootstrap: no progress possible: " + strings.Join(parts, "; ")
}

// Is matches ErrUnsatisfiedDependency.
func (e *UnsatisfiedDependencyError) Is(target error) bool {
	return target == ErrUnsatisfiedDependency
}
