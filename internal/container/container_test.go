package container

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/bootstrap/internal/config"
	"github.com/kingrea/bootstrap/internal/rules"
	"github.com/kingrea/bootstrap/internal/unit"
)

type trace struct {
	mu    sync.Mutex
	kinds []unit.Kind
}

func (t *trace) add(k unit.Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds = append(t.kinds, k)
}

func testRegistry(tr *trace) *Registry {
	reg := NewRegistry()
	reg.MustRegister(Definition{ID: "step", Factory: func(s Spec) (unit.Unit, error) {
		return unit.Sync(unit.Func(s.Kind, func(context.Context) error {
			tr.add(s.Kind)
			return nil
		})), nil
	}})
	reg.MustRegister(Definition{ID: "background", Async: true, Factory: func(s Spec) (unit.Unit, error) {
		var cfg struct {
			Label string `yaml:"label"`
		}
		if err := s.Config.Decode(&cfg); err != nil {
			return unit.Unit{}, err
		}
		return unit.Async(unit.AsyncFunc(s.Kind, func(context.Context) error {
			tr.add(s.Kind + unit.Kind(cfg.Label))
			return nil
		})), nil
	}})
	reg.MustRegister(Definition{ID: "wrong-kind", Factory: func(Spec) (unit.Unit, error) {
		return unit.Sync(unit.Func("other", nil)), nil
	}})
	return reg
}

func TestRegistryRejectsDuplicatesAndUnknown(t *testing.T) {
	reg := testRegistry(&trace{})
	err := reg.Register(Definition{ID: "step", Factory: func(Spec) (unit.Unit, error) { return unit.Unit{}, nil }})
	assert.ErrorContains(t, err, "already registered")
	assert.Error(t, reg.Register(Definition{ID: "no-factory"}))

	_, err = reg.Resolve("missing", Spec{Kind: "x"})
	assert.ErrorContains(t, err, "unknown factory")
	_, err = reg.Resolve("wrong-kind", Spec{Kind: "x"})
	assert.ErrorContains(t, err, "built kind other")

	assert.Equal(t, []string{"background", "step", "wrong-kind"}, reg.IDs())
	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.True(t, defs[0].Async)
}

func TestConfigDecodeRejectsUnknownKeys(t *testing.T) {
	var out struct {
		Label string `yaml:"label"`
	}
	require.NoError(t, Config{"label": "x"}.Decode(&out))
	assert.Equal(t, "x", out.Label)
	assert.Error(t, Config{"lable": "x"}.Decode(&out))
}

func TestBuildSplitsCollectionsAndRuns(t *testing.T) {
	tr := &trace{}
	m, err := config.ParseManifest([]byte(`
id: build
scheduler: {quantum: 1ms, auto_run: false}
kinds:
  - kind: loader
    parents: [io]
units:
  - factory: step
    kind: render
    depends_on: [loader]
  - factory: background
    kind: loader
    config: {label: "!"}
  - factory: step
    kind: config
    priority: -1
priorities:
  - kind: io
    priority: 0
`))
	require.NoError(t, err)

	plan, err := Build(m, testRegistry(tr), Env{})
	require.NoError(t, err)
	assert.False(t, plan.AutoRun)
	require.Len(t, plan.Collections.Sync, 2)
	require.Len(t, plan.Collections.Async, 1)
	assert.True(t, plan.Collections.Hierarchy.DerivesFromOrEqual("loader", "io"))
	assert.Contains(t, plan.Collections.Priorities, rules.PriorityRule{Kind: "config", Priority: -1})

	mgr, err := plan.Manager()
	require.NoError(t, err)
	require.NoError(t, mgr.Run(context.Background()))
	assert.Equal(t, []unit.Kind{"config", "loader!", "render"}, tr.kinds)
}

func TestBuildReportsFactoryErrors(t *testing.T) {
	m := config.Manifest{ID: "bad", Units: []config.UnitRef{{Factory: "background", Kind: "x", Config: map[string]any{"nope": 1}}}}
	_, err := Build(m, testRegistry(&trace{}), Env{})
	assert.ErrorContains(t, err, "unit[0]")
}

func TestBuildRejectsHierarchyCycle(t *testing.T) {
	m := config.Manifest{
		ID:    "cycle",
		Kinds: []config.KindDecl{{Kind: "a", Parents: []string{"b"}}, {Kind: "b", Parents: []string{"a"}}},
		Units: []config.UnitRef{{Factory: "step", Kind: "a"}},
	}
	_, err := Build(m, testRegistry(&trace{}), Env{})
	assert.True(t, errors.Is(err, unit.ErrHierarchyCycle))
}

func TestPlanManagerSurfacesRuleErrors(t *testing.T) {
	m := config.Manifest{
		ID:           "order",
		Units:        []config.UnitRef{{Factory: "step", Kind: "a"}},
		Priorities:   []config.PriorityDecl{{Kind: "b", Priority: 3}},
		Dependencies: []config.DependencyDecl{{Dependent: "a", Dependency: "b"}},
	}
	plan, err := Build(m, testRegistry(&trace{}), Env{})
	require.NoError(t, err)
	_, err = plan.Manager()
	assert.True(t, errors.Is(err, rules.ErrInvalidDependencyOrder))
}
