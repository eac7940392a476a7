package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest name looked up when a directory is given.
const ManifestFile = "bootstrap.yaml"

// ParseManifest decodes and normalizes a manifest from YAML bytes.
func ParseManifest(data []byte) (Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Manifest{}, fmt.Errorf("config: manifest payload is empty")
	}
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("config: decode manifest: %w", err)
	}
	return m.Normalized()
}

// LoadManifestReader reads manifest data from an io.Reader.
func LoadManifestReader(r io.Reader) (Manifest, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, fmt.Errorf("config: read manifest: %w", err)
	}
	return ParseManifest(content)
}

// LoadManifestFile loads a manifest from path. A directory resolves to its
// bootstrap.yaml, falling back to .bootstrap/bootstrap.yaml.
func LoadManifestFile(path string) (Manifest, error) {
	resolved, err := ResolveManifestPath(path)
	if err != nil {
		return Manifest{}, err
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return Manifest{}, fmt.Errorf("config: read %s: %w", resolved, err)
	}
	m, parseErr := ParseManifest(content)
	if parseErr != nil {
		return Manifest{}, fmt.Errorf("config: %s: %w", resolved, parseErr)
	}
	return m, nil
}

// ResolveManifestPath maps a file or directory argument to a manifest file.
func ResolveManifestPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("config: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	candidates := []string{
		filepath.Join(path, ManifestFile),
		filepath.Join(path, WorkspaceDir, ManifestFile),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: stat %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("config: no %s found in %s", ManifestFile, path)
}
