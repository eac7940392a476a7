// Package units provides the unit factories available to manifests.
package units

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kingrea/bootstrap/internal/config"
	"github.com/kingrea/bootstrap/internal/container"
	"github.com/kingrea/bootstrap/internal/unit"
)

// Factory identifiers.
const (
	PrintID  = "print"
	DelayID  = "delay"
	MarkerID = "marker"
	FailID   = "fail"
)

// RegisterBuiltins installs every built-in factory into reg.
func RegisterBuiltins(reg *container.Registry) error {
	defs := []container.Definition{
		{ID: PrintID, Description: "Writes a message to the host output.", Factory: newPrint},
		{ID: DelayID, Description: "Completes after a duration; runs asynchronously.", Async: true, Factory: newDelay},
		{ID: MarkerID, Description: "Writes a marker file into a directory.", Factory: newMarker},
		{ID: FailID, Description: "Returns an error; set async: true to fail asynchronously.", Factory: newFail},
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-ins.
func NewRegistry() *container.Registry {
	reg := container.NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		panic(err)
	}
	return reg
}

type printConfig struct {
	Message string `yaml:"message"`
}

func newPrint(spec container.Spec) (unit.Unit, error) {
	var cfg printConfig
	if err := spec.Config.Decode(&cfg); err != nil {
		return unit.Unit{}, err
	}
	if cfg.Message == "" {
		cfg.Message = fmt.Sprintf("%s initialized", spec.Kind)
	}
	out := output(spec.Env)
	return unit.Sync(unit.Func(spec.Kind, func(context.Context) error {
		_, err := fmt.Fprintln(out, cfg.Message)
		return err
	})), nil
}

type delayConfig struct {
	Duration config.Duration `yaml:"duration"`
}

func newDelay(spec container.Spec) (unit.Unit, error) {
	var cfg delayConfig
	if err := spec.Config.Decode(&cfg); err != nil {
		return unit.Unit{}, err
	}
	if cfg.Duration < 0 {
		return unit.Unit{}, fmt.Errorf("delay duration must be >= 0")
	}
	wait := cfg.Duration.Std()
	return unit.Async(unit.AsyncFunc(spec.Kind, func(ctx context.Context) error {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})), nil
}

type markerConfig struct {
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

func newMarker(spec container.Spec) (unit.Unit, error) {
	var cfg markerConfig
	if err := spec.Config.Decode(&cfg); err != nil {
		return unit.Unit{}, err
	}
	if cfg.Dir == "" {
		return unit.Unit{}, fmt.Errorf("marker dir is required")
	}
	if cfg.Name == "" {
		cfg.Name = string(spec.Kind)
	}
	dir := cfg.Dir
	if !filepath.IsAbs(dir) && spec.Env.Dir != "" {
		dir = filepath.Join(spec.Env.Dir, dir)
	}
	path := filepath.Join(dir, cfg.Name)
	return unit.Sync(unit.Func(spec.Kind, func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		body := fmt.Sprintf("%s %s\n", spec.Kind, time.Now().UTC().Format(time.RFC3339Nano))
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	})), nil
}

type failConfig struct {
	Message string `yaml:"message"`
	Async   bool   `yaml:"async"`
}

func newFail(spec container.Spec) (unit.Unit, error) {
	var cfg failConfig
	if err := spec.Config.Decode(&cfg); err != nil {
		return unit.Unit{}, err
	}
	if cfg.Message == "" {
		cfg.Message = "configured failure"
	}
	failure := errors.New(cfg.Message)
	fn := func(context.Context) error { return failure }
	if cfg.Async {
		return unit.Async(unit.AsyncFunc(spec.Kind, fn)), nil
	}
	return unit.Sync(unit.Func(spec.Kind, fn)), nil
}

func output(env container.Env) io.Writer {
	if env.Out == nil {
		return io.Discard
	}
	return env.Out
}
