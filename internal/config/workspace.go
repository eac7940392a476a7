// internal/config/workspace.go
//
// A workspace is the .bootstrap/ folder holding a starter manifest plus the
// directories the CLI writes logs and run journals into.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WorkspaceDir is the directory created by InitWorkspace.
const WorkspaceDir = ".bootstrap"

const defaultManifestYAML = `# bootstrap manifest
id: startup

scheduler:
  quantum: 16ms
  check_duplicates: true
  auto_run: true

# Kinds may derive from parents; priority and dependency rules that name a
# parent apply to every kind deriving from it.
kinds:
  - kind: hero-spawner
    parents: [spawner]

units:
  - factory: print
    kind: greeting
    config:
      message: "booting"
  - factory: delay
    kind: hero-spawner
    config:
      duration: 500ms
  - factory: print
    kind: cutscene-runner
    depends_on: [hero-spawner]
    config:
      message: "cutscene ready"

priorities:
  - kind: spawner
    priority: 0
`

// Workspace locates the .bootstrap/ folder of a project directory.
type Workspace struct {
	Root string
	Dir  string
}

// NewWorkspace returns the workspace rooted at projectDir without touching
// the filesystem.
func NewWorkspace(projectDir string) Workspace {
	return Workspace{Root: projectDir, Dir: filepath.Join(projectDir, WorkspaceDir)}
}

// InitWorkspace creates the workspace layout and a starter manifest when one
// does not exist yet.
//
// .bootstrap/
// ├── bootstrap.yaml
// ├── logs/      <- log files written with --log-file
// └── journal/   <- run journals written with --journal
func InitWorkspace(projectDir string) (Workspace, error) {
	ws := NewWorkspace(projectDir)
	for _, dir := range []string{ws.LogsDir(), ws.JournalDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Workspace{}, fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := ensureManifest(ws.ManifestPath()); err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

// ManifestPath returns the workspace manifest location.
func (w Workspace) ManifestPath() string {
	return filepath.Join(w.Dir, ManifestFile)
}

// LogsDir returns the directory for log files.
func (w Workspace) LogsDir() string {
	return filepath.Join(w.Dir, "logs")
}

// JournalDir returns the directory for run journals.
func (w Workspace) JournalDir() string {
	return filepath.Join(w.Dir, "journal")
}

// DefaultManifest parses the starter manifest.
func DefaultManifest() (Manifest, error) {
	return ParseManifest([]byte(defaultManifestYAML))
}

func ensureManifest(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultManifestYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
