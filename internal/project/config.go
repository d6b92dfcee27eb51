package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config file names tried by Import, in order.
const (
	ConfigJSON = "kmpls.json"
	ConfigTOML = "kmpls.toml"
	ConfigYAML = "kmpls.yaml"
	ConfigYML  = "kmpls.yml"
)

// ConfigNames lists the explicit project configuration files.
var ConfigNames = []string{ConfigJSON, ConfigTOML, ConfigYAML, ConfigYML}

type configFile struct {
	Name    string         `json:"name" toml:"name" yaml:"name"`
	Modules []configModule `json:"modules" toml:"modules" yaml:"modules"`
}

type configModule struct {
	Name         string   `json:"name" toml:"name" yaml:"name"`
	Platform     string   `json:"platform" toml:"platform" yaml:"platform"`
	SourceRoots  []string `json:"sourceRoots" toml:"sourceRoots" yaml:"sourceRoots"`
	Dependencies []string `json:"dependencies" toml:"dependencies" yaml:"dependencies"`
	DependsOn    []string `json:"dependsOn" toml:"dependsOn" yaml:"dependsOn"`
}

// binaryPackageExts mark package-format libraries that need platform matching.
var binaryPackageExts = []string{".klib", ".aar"}

// LoadConfig reads an explicit configuration file and materializes it
// relative to root.
func LoadConfig(root, path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg configFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.materialize(root, filepath.Base(path))
}

func (cfg *configFile) materialize(root, source string) (*Descriptor, error) {
	desc := &Descriptor{
		Name:     cfg.Name,
		RootPath: root,
		Source:   source,
	}
	if desc.Name == "" {
		desc.Name = filepath.Base(root)
	}
	for _, cm := range cfg.Modules {
		m := ModuleDescriptor{
			Name:      cm.Name,
			Platform:  ParsePlatform(cm.Platform),
			DependsOn: slices.Clone(cm.DependsOn),
		}
		for _, r := range cm.SourceRoots {
			m.SourceRoots = append(m.SourceRoots, resolvePath(root, r))
		}
		for _, pattern := range cm.Dependencies {
			libs, err := expandLibraries(root, pattern)
			if err != nil {
				return nil, fmt.Errorf("module %q: %w", cm.Name, err)
			}
			m.Dependencies = append(m.Dependencies, libs...)
		}
		desc.Modules = append(desc.Modules, m)
	}
	return desc, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	return filepath.Join(home, p[1:])
}

func resolvePath(root, p string) string {
	p = ExpandHome(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	return filepath.Clean(p)
}

// expandLibraries turns a dependency pattern into library refs. A pattern
// without glob metacharacters is kept even if the path does not exist.
func expandLibraries(root, pattern string) ([]LibraryRef, error) {
	full := resolvePath(root, pattern)
	if !strings.ContainsAny(pattern, "*?[{") {
		return []LibraryRef{libraryRef(full)}, nil
	}
	matches, err := doublestar.FilepathGlob(full)
	if err != nil {
		return nil, fmt.Errorf("dependency pattern %q: %w", pattern, err)
	}
	slices.Sort(matches)
	out := make([]LibraryRef, 0, len(matches))
	for _, match := range matches {
		out = append(out, libraryRef(match))
	}
	return out, nil
}

func libraryRef(path string) LibraryRef {
	ext := strings.ToLower(filepath.Ext(path))
	return LibraryRef{
		Name:            strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:            path,
		IsBinaryPackage: slices.Contains(binaryPackageExts, ext),
	}
}
