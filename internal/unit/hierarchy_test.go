package unit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHierarchyDerivesTransitively(t *testing.T) {
	h := NewHierarchy()
	require.NoError(t, h.Declare("hero-spawner", "spawner"))
	require.NoError(t, h.Declare("spawner", "gameplay"))

	assert.True(t, h.DerivesFromOrEqual("hero-spawner", "hero-spawner"))
	assert.True(t, h.DerivesFromOrEqual("hero-spawner", "spawner"))
	assert.True(t, h.DerivesFromOrEqual("hero-spawner", "gameplay"))
	assert.False(t, h.DerivesFromOrEqual("spawner", "hero-spawner"))
	assert.Equal(t, []Kind{"gameplay", "spawner"}, h.Ancestors("hero-spawner"))
}

func TestHierarchyRejectsCycles(t *testing.T) {
	h := NewHierarchy()
	require.NoError(t, h.Declare("a", "b"))
	require.NoError(t, h.Declare("b", "c"))

	err := h.Declare("c", "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHierarchyCycle))

	err = h.Declare("d", "d")
	assert.True(t, errors.Is(err, ErrHierarchyCycle))
}

func TestNilHierarchyMatchesEqualityOnly(t *testing.T) {
	var h *Hierarchy
	assert.True(t, h.DerivesFromOrEqual("x", "x"))
	assert.False(t, h.DerivesFromOrEqual("x", "y"))
	assert.Nil(t, h.Ancestors("x"))
}

func TestUnitVariant(t *testing.T) {
	s := Sync(Func("sync-kind", nil))
	a := Async(AsyncFunc("async-kind", func(context.Context) error { return nil }))

	assert.True(t, s.Valid())
	assert.False(t, s.IsAsync())
	assert.Equal(t, Kind("sync-kind"), s.Kind())
	assert.NoError(t, s.Initializer().Initialize(context.Background()))

	assert.True(t, a.Valid())
	assert.True(t, a.IsAsync())
	assert.Equal(t, Kind("async-kind"), a.Kind())

	assert.False(t, Unit{}.Valid())
	assert.Equal(t, Kind(""), Unit{}.Kind())
}
