package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// SourceExts are the extensions of analyzable source files.
var SourceExts = []string{".kt", ".kts"}

var skipDirs = map[string]struct{}{
	"build":        {},
	"out":          {},
	"node_modules": {},
	".git":         {},
	".gradle":      {},
	".idea":        {},
	".kotlin":      {},
	".fleet":       {},
}

// IsSourceFile reports whether path has a source extension.
func IsSourceFile(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range SourceExts {
		if ext == e {
			return true
		}
	}
	return false
}

// SkipDir reports whether a directory with this name is never scanned.
func SkipDir(name string) bool {
	_, skip := skipDirs[name]
	return skip || (strings.HasPrefix(name, ".") && name != "." && name != "..")
}

// SourceFiles lists source files under roots, sorted and without duplicates.
// Paths ignored by the workspace .gitignore are left out. Missing roots are
// skipped.
func SourceFiles(workspace string, roots []string) ([]string, error) {
	gi := loadGitignore(workspace)
	seen := make(map[string]struct{})
	var results []string

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip errors
			}
			name := d.Name()
			if d.IsDir() {
				if path == root {
					return nil
				}
				if SkipDir(name) || ignored(gi, workspace, path+string(filepath.Separator)) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
				return nil
			}
			if !IsSourceFile(name) || ignored(gi, workspace, path) {
				return nil
			}
			path = AbsPath(path)
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}
			results = append(results, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(results)
	return results, nil
}

// conventionalRoots are tried in order by ConventionalRoots.
var conventionalRoots = []string{
	"src/commonMain/kotlin",
	"src/main/kotlin",
	"src/*Main/kotlin",
	"src/main/java",
}

// ConventionalRoots guesses source roots for a workspace without a
// descriptor: the conventional source-set directories that exist, else src,
// else the workspace itself.
func ConventionalRoots(workspace string) []string {
	seen := make(map[string]struct{})
	var roots []string
	for _, pattern := range conventionalRoots {
		matches, err := filepath.Glob(filepath.Join(workspace, filepath.FromSlash(pattern)))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || !info.IsDir() {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			roots = append(roots, m)
		}
	}
	if len(roots) > 0 {
		return roots
	}
	if info, err := os.Stat(filepath.Join(workspace, "src")); err == nil && info.IsDir() {
		return []string{filepath.Join(workspace, "src")}
	}
	return []string{workspace}
}

// AbsPath cleans p and makes it absolute when possible.
func AbsPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}

func loadGitignore(root string) *ignore.GitIgnore {
	if root == "" {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

func ignored(gi *ignore.GitIgnore, workspace, path string) bool {
	if gi == nil {
		return false
	}
	rel, err := filepath.Rel(workspace, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasSuffix(path, string(filepath.Separator)) {
		rel += "/"
	}
	return gi.MatchesPath(rel)
}
