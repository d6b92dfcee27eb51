package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoProject reports that no importer recognized the workspace.
var ErrNoProject = errors.New("no project configuration found")

// Import materializes the project at root: an explicit kmpls.{json,toml,yaml}
// wins over a Gradle layout.
func Import(root string) (*Descriptor, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	for _, name := range ConfigNames {
		path := filepath.Join(abs, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %q: %w", path, err)
		}
		return LoadConfig(abs, path)
	}
	return InferGradle(abs)
}

// IsConfigFile reports whether path names a file whose change can alter the
// imported descriptor.
func IsConfigFile(path string) bool {
	base := filepath.Base(path)
	for _, names := range [][]string{ConfigNames, gradleBuildFiles, gradleSettingsFiles} {
		for _, name := range names {
			if base == name {
				return true
			}
		}
	}
	return false
}

// AllSourceRoots collects every module source root in declaration order.
func (d *Descriptor) AllSourceRoots() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range d.Modules {
		for _, r := range m.SourceRoots {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
