package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// rootMarkers identify a workspace root, strongest first.
var rootMarkers = []string{ConfigJSON, ConfigTOML, ConfigYAML, ConfigYML, "settings.gradle.kts", "settings.gradle"}

// markerIn reports the first root marker present directly in dir.
func markerIn(dir string) (string, bool, error) {
	for _, name := range rootMarkers {
		candidate := filepath.Join(dir, name)
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, true, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// FindConfig walks up from startDir and returns the nearest marker file.
func FindConfig(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		if path, ok, err = markerIn(dir); err != nil || ok {
			return path, ok, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// FindProjectRoot is FindConfig reduced to the marker's directory.
func FindProjectRoot(startDir string) (string, bool, error) {
	path, ok, err := FindConfig(startDir)
	if !ok {
		return "", false, err
	}
	return filepath.Dir(path), true, nil
}
