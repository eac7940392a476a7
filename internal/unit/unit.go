package unit

import (
	"context"
	"strings"
)

// Kind is the type identity of a unit. Priority rules, dependency rules and
// the scheduler's completed/running sets are all keyed by Kind.
type Kind string

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Normalized trims surrounding whitespace.
func (k Kind) Normalized() Kind {
	return Kind(strings.TrimSpace(string(k)))
}

// Initializer is a unit that runs to completion when invoked.
type Initializer interface {
	Kind() Kind
	Initialize(ctx context.Context) error
}

// AsyncInitializer is a unit whose initialization completes later. The
// scheduler runs InitializeAsync on its own goroutine and treats the return as
// the completion signal.
type AsyncInitializer interface {
	Kind() Kind
	InitializeAsync(ctx context.Context) error
}

// Unit holds exactly one of an Initializer or an AsyncInitializer.
type Unit struct {
	sync  Initializer
	async AsyncInitializer
}

// Sync wraps a synchronous initializer.
func Sync(i Initializer) Unit {
	return Unit{sync: i}
}

// Async wraps an asynchronous initializer.
func Async(a AsyncInitializer) Unit {
	return Unit{async: a}
}

// Valid reports whether exactly one initializer is set.
func (u Unit) Valid() bool {
	return (u.sync == nil) != (u.async == nil)
}

// IsAsync reports whether the unit completes asynchronously.
func (u Unit) IsAsync() bool {
	return u.async != nil
}

// Kind returns the identity of the wrapped initializer.
func (u Unit) Kind() Kind {
	switch {
	case u.sync != nil:
		return u.sync.Kind()
	case u.async != nil:
		return u.async.Kind()
	default:
		return ""
	}
}

// Initializer returns the synchronous initializer, or nil for async units.
func (u Unit) Initializer() Initializer {
	return u.sync
}

// AsyncInitializer returns the asynchronous initializer, or nil for sync units.
func (u Unit) AsyncInitializer() AsyncInitializer {
	return u.async
}

type funcInitializer struct {
	kind Kind
	fn   func(context.Context) error
}

// Func adapts a function into an Initializer of the given kind.
func Func(kind Kind, fn func(context.Context) error) Initializer {
	return &funcInitializer{kind: kind, fn: fn}
}

func (f *funcInitializer) Kind() Kind { return f.kind }

func (f *funcInitializer) Initialize(ctx context.Context) error {
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx)
}

type funcAsyncInitializer struct {
	kind Kind
	fn   func(context.Context) error
}

// AsyncFunc adapts a function into an AsyncInitializer of the given kind.
func AsyncFunc(kind Kind, fn func(context.Context) error) AsyncInitializer {
	return &funcAsyncInitializer{kind: kind, fn: fn}
}

func (f *funcAsyncInitializer) Kind() Kind { return f.kind }

func (f *funcAsyncInitializer) InitializeAsync(ctx context.Context) error {
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx)
}
