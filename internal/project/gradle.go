package project

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	gradleBuildFiles    = []string{"build.gradle.kts", "build.gradle"}
	gradleSettingsFiles = []string{"settings.gradle.kts", "settings.gradle"}

	projectDepRe  = regexp.MustCompile(`project\(\s*(?:path\s*=\s*)?["'](:[^"']*)["']`)
	rootProjectRe = regexp.MustCompile(`rootProject\.name\s*=\s*["']([^"']+)["']`)
)

type gradleProject struct {
	dir  string
	name string
	deps []string // gradle paths like ":shared"
	path string   // gradle path of this project
}

// InferGradle builds a descriptor from a conventional Gradle layout: each
// directory with a build script is a project, each src/<set>Main directory a
// module named "<project>:<set>". It returns ErrNoProject when root holds no
// build script at all.
func InferGradle(root string) (*Descriptor, error) {
	projects, err := findGradleProjects(root)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, ErrNoProject
	}
	desc := &Descriptor{
		Name:     gradleRootName(root),
		RootPath: root,
		Source:   SourceGradle,
	}
	byPath := make(map[string]*gradleProject, len(projects))
	sets := make(map[string][]string, len(projects))
	for _, p := range projects {
		byPath[p.path] = p
		sets[p.path] = sourceSets(p.dir)
	}

	for _, p := range projects {
		names := sets[p.path]
		have := make(map[string]bool, len(names))
		for _, set := range names {
			have[set] = true
		}
		for _, set := range names {
			m := ModuleDescriptor{
				Name:        p.name + ":" + set,
				Platform:    ParsePlatform(set),
				SourceRoots: setRoots(p.dir, set),
			}
			if parent := hierarchyParent(set, have); parent != "" {
				m.DependsOn = append(m.DependsOn, p.name+":"+parent)
			}
			for _, dep := range p.deps {
				target, ok := byPath[dep]
				if !ok {
					continue
				}
				if tset := matchingSet(set, sets[target.path]); tset != "" {
					m.DependsOn = append(m.DependsOn, target.name+":"+tset)
				}
			}
			desc.Modules = append(desc.Modules, m)
		}
	}
	return desc, nil
}

func findGradleProjects(root string) ([]*gradleProject, error) {
	var out []*gradleProject
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (SkipDir(d.Name()) || d.Name() == "src") {
			return filepath.SkipDir
		}
		script := firstExisting(path, gradleBuildFiles)
		if script == "" {
			return nil
		}
		p := &gradleProject{dir: path}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			p.name = gradleRootName(root)
			p.path = ":"
		} else {
			segs := strings.Split(filepath.ToSlash(rel), "/")
			p.name = strings.Join(segs, ":")
			p.path = ":" + p.name
		}
		if data, err := os.ReadFile(script); err == nil {
			for _, m := range projectDepRe.FindAllStringSubmatch(string(data), -1) {
				p.deps = append(p.deps, m[1])
			}
		}
		out = append(out, p)
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, err
	}
	return out, nil
}

func gradleRootName(root string) string {
	if settings := firstExisting(root, gradleSettingsFiles); settings != "" {
		if data, err := os.ReadFile(settings); err == nil {
			if m := rootProjectRe.FindStringSubmatch(string(data)); m != nil {
				return m[1]
			}
		}
	}
	return filepath.Base(root)
}

func firstExisting(dir string, names []string) string {
	for _, name := range names {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// sourceSets returns the source-set names under dir/src: "common" first,
// then the rest sorted. Plain JVM projects have a single "main" set.
func sourceSets(dir string) []string {
	entries, err := os.ReadDir(filepath.Join(dir, "src"))
	if err != nil {
		return nil
	}
	var sets []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		var set string
		switch {
		case name == "main":
			set = "main"
		case strings.HasSuffix(name, "Main") && len(name) > len("Main"):
			set = strings.TrimSuffix(name, "Main")
		default:
			continue
		}
		if len(setRoots(dir, set)) == 0 {
			continue
		}
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool {
		if (sets[i] == "common") != (sets[j] == "common") {
			return sets[i] == "common"
		}
		return sets[i] < sets[j]
	})
	return sets
}

func setRoots(dir, set string) []string {
	base := filepath.Join(dir, "src", set+"Main")
	if set == "main" {
		base = filepath.Join(dir, "src", "main")
	}
	var roots []string
	for _, lang := range []string{"kotlin", "java"} {
		p := filepath.Join(base, lang)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			roots = append(roots, p)
		}
	}
	return roots
}

// hierarchyParent follows the default source-set hierarchy.
func hierarchyParent(set string, have map[string]bool) string {
	if set == "common" || set == "main" {
		return ""
	}
	plat := ParsePlatform(set)
	if plat == PlatformNative && set != "native" && have["native"] {
		return "native"
	}
	if have["common"] {
		return "common"
	}
	return ""
}

// matchingSet picks the set of a depended-on project visible from set.
func matchingSet(set string, target []string) string {
	for _, cand := range []string{set, "common", "main"} {
		for _, t := range target {
			if t == cand {
				return t
			}
		}
	}
	return ""
}
