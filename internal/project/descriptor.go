package project

import (
	"fmt"
	"strings"
)

// Platform is a module's target tag. Unknown tags are kept verbatim.
type Platform string

const (
	PlatformCommon  Platform = "common"
	PlatformJVM     Platform = "jvm"
	PlatformAndroid Platform = "android"
	PlatformJS      Platform = "js"
	PlatformWasm    Platform = "wasm"
	PlatformNative  Platform = "native"
	PlatformUnknown Platform = "unknown"
)

var nativeFamilies = []string{"native", "ios", "macos", "tvos", "watchos", "linux", "mingw", "apple", "android_native", "androidnative"}

// ParsePlatform maps a tag or source-set name to a platform.
func ParsePlatform(tag string) Platform {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch {
	case t == "":
		return PlatformUnknown
	case t == "common", t == "metadata":
		return PlatformCommon
	case t == "jvm", t == "desktop", t == "main", strings.HasPrefix(t, "jvm"):
		return PlatformJVM
	case strings.HasPrefix(t, "androidnative"):
		return PlatformNative
	case strings.HasPrefix(t, "android"):
		return PlatformAndroid
	case strings.HasPrefix(t, "wasm"):
		return PlatformWasm
	case t == "js", strings.HasPrefix(t, "js"):
		return PlatformJS
	}
	for _, fam := range nativeFamilies {
		if strings.HasPrefix(t, fam) {
			return PlatformNative
		}
	}
	return Platform(t)
}

// IsCommon reports whether the platform is the shared one.
func (p Platform) IsCommon() bool { return p == PlatformCommon }

// LibraryRef is a binary or source dependency of a module.
type LibraryRef struct {
	Name            string `json:"name" msgpack:"name"`
	Path            string `json:"path" msgpack:"path"`
	IsBinaryPackage bool   `json:"isBinaryPackage" msgpack:"bin"`
}

// ModuleDescriptor describes one compilation module.
type ModuleDescriptor struct {
	Name         string       `json:"name" msgpack:"name"`
	Platform     Platform     `json:"platform" msgpack:"platform"`
	SourceRoots  []string     `json:"sourceRoots" msgpack:"roots"`
	Dependencies []LibraryRef `json:"dependencies" msgpack:"deps"`
	DependsOn    []string     `json:"dependsOn" msgpack:"dependsOn"`
}

// Descriptor is the static description of a workspace.
type Descriptor struct {
	Name     string             `json:"name" msgpack:"name"`
	RootPath string             `json:"rootPath" msgpack:"root"`
	Modules  []ModuleDescriptor `json:"modules" msgpack:"modules"`
	// Source tells where the descriptor came from: a config file name,
	// "gradle" or "fallback".
	Source string `json:"source" msgpack:"source"`
}

// Descriptor provenances.
const (
	SourceGradle   = "gradle"
	SourceFallback = "fallback"
)

// Module returns the first module with the given name.
func (d *Descriptor) Module(name string) (*ModuleDescriptor, bool) {
	for i := range d.Modules {
		if d.Modules[i].Name == name {
			return &d.Modules[i], true
		}
	}
	return nil, false
}

// ModuleNames returns module names in declaration order.
func (d *Descriptor) ModuleNames() []string {
	out := make([]string, 0, len(d.Modules))
	for _, m := range d.Modules {
		out = append(out, m.Name)
	}
	return out
}

// IssueCode classifies a descriptor problem.
type IssueCode string

const (
	IssueDuplicateModule IssueCode = "duplicate-module"
	IssueUnknownModule   IssueCode = "unknown-depends-on"
	IssueSelfDependency  IssueCode = "self-depends-on"
	IssueEmptyName       IssueCode = "empty-module-name"
	IssueNoSourceRoots   IssueCode = "no-source-roots"
)

// Issue is a non-fatal descriptor problem.
type Issue struct {
	Code    IssueCode
	Module  string
	Target  string
	Message string
}

func (i Issue) Error() string { return i.Message }

// Validate reports problems without failing: duplicate module names (the
// first entry wins), unknown or self dependsOn targets, empty names and
// modules without source roots.
func (d *Descriptor) Validate() []Issue {
	var issues []Issue
	seen := make(map[string]struct{}, len(d.Modules))
	for i, m := range d.Modules {
		if m.Name == "" {
			issues = append(issues, Issue{Code: IssueEmptyName, Message: fmt.Sprintf("module #%d has no name", i)})
			continue
		}
		if _, dup := seen[m.Name]; dup {
			issues = append(issues, Issue{Code: IssueDuplicateModule, Module: m.Name, Message: fmt.Sprintf("duplicate module %q", m.Name)})
			continue
		}
		seen[m.Name] = struct{}{}
		if len(m.SourceRoots) == 0 {
			issues = append(issues, Issue{Code: IssueNoSourceRoots, Module: m.Name, Message: fmt.Sprintf("module %q has no source roots", m.Name)})
		}
	}
	for _, m := range d.Modules {
		for _, dep := range m.DependsOn {
			switch {
			case dep == m.Name:
				issues = append(issues, Issue{Code: IssueSelfDependency, Module: m.Name, Target: dep, Message: fmt.Sprintf("module %q depends on itself", m.Name)})
			default:
				if _, ok := seen[dep]; !ok {
					issues = append(issues, Issue{Code: IssueUnknownModule, Module: m.Name, Target: dep, Message: fmt.Sprintf("module %q depends on unknown module %q", m.Name, dep)})
				}
			}
		}
	}
	return issues
}
