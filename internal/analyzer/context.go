package analyzer

import (
	"log/slog"
	"slices"
	"sync/atomic"

	"kmpls/internal/project"
	"kmpls/internal/project/dag"
	"kmpls/internal/syntax"
)

type module struct {
	name      string
	platform  project.Platform
	roots     []string
	libs      []project.LibraryRef
	dependsOn []string
	files     []string
	// packages: package -> simple name -> top-level symbols
	packages map[string]map[string][]*Symbol
	closure  []*module // self first, then transitive dependsOn
}

// Context is one generation of registered modules and their parsed sources.
// It is immutable after BuildContext returns.
type Context struct {
	log        *slog.Logger
	modules    []*module
	byName     map[string]*module
	fileModule map[string]string
	files      map[string]*syntax.File
	// qualified: package.Container.Name -> symbols across all modules
	qualified map[string][]*Symbol
	pkgNames  map[string]struct{}
	disposed  atomic.Bool
}

func newContext(log *slog.Logger) *Context {
	return &Context{
		log:        log,
		byName:     make(map[string]*module),
		fileModule: make(map[string]string),
		files:      make(map[string]*syntax.File),
		qualified:  make(map[string][]*Symbol),
		pkgNames:   make(map[string]struct{}),
	}
}

func (c *Context) index() {
	idx, g := moduleGraph(c.modules)
	for _, m := range c.modules {
		for _, id := range dag.Closure(g, idx.NameToID[m.name]) {
			if dep, ok := c.byName[idx.IDToName[int(id)]]; ok {
				m.closure = append(m.closure, dep)
			}
		}
		for _, path := range m.files {
			f, ok := c.files[path]
			if !ok {
				continue
			}
			pkg := f.Package.Name
			c.addPackage(pkg)
			byName := m.packages[pkg]
			if byName == nil {
				byName = make(map[string][]*Symbol)
				m.packages[pkg] = byName
			}
			for _, d := range f.Decls {
				if d.Name == "" {
					continue
				}
				sym := declSymbol(d, path, m.name, pkg)
				byName[d.Name] = append(byName[d.Name], sym)
			}
			f.Walk(func(d *syntax.Decl) bool {
				if d.Name != "" && d.Kind != syntax.DeclConstructor {
					q := qualify(pkg, d.Container(), d.Name)
					c.qualified[q] = append(c.qualified[q], declSymbol(d, path, m.name, pkg))
				}
				return d.Kind.IsClassifier()
			})
		}
	}
}

func (c *Context) addPackage(pkg string) {
	for pkg != "" {
		c.pkgNames[pkg] = struct{}{}
		i := len(pkg) - 1
		for i >= 0 && pkg[i] != '.' {
			i--
		}
		if i < 0 {
			return
		}
		pkg = pkg[:i]
	}
}

// ModuleFor returns the module owning path.
func (c *Context) ModuleFor(path string) (string, bool) {
	if c == nil || c.disposed.Load() {
		return "", false
	}
	name, ok := c.fileModule[path]
	return name, ok
}

// File returns the parse of a discovered file as read at build time.
func (c *Context) File(path string) (*syntax.File, bool) {
	if c == nil || c.disposed.Load() {
		return nil, false
	}
	f, ok := c.files[path]
	return f, ok
}

// Files returns every discovered file, sorted.
func (c *Context) Files() []string {
	if c == nil || c.disposed.Load() {
		return nil
	}
	out := make([]string, 0, len(c.fileModule))
	for path := range c.fileModule {
		out = append(out, path)
	}
	slices.Sort(out)
	return out
}

// Modules returns module names in registration order.
func (c *Context) Modules() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.modules))
	for _, m := range c.modules {
		out = append(out, m.name)
	}
	return out
}

// ModuleInfo is a read-only view of a registered module.
type ModuleInfo struct {
	Name        string
	Platform    project.Platform
	SourceRoots []string
	Libraries   []project.LibraryRef
	DependsOn   []string
	Files       int
}

// Module describes a registered module.
func (c *Context) Module(name string) (ModuleInfo, bool) {
	if c == nil {
		return ModuleInfo{}, false
	}
	m, ok := c.byName[name]
	if !ok {
		return ModuleInfo{}, false
	}
	return ModuleInfo{
		Name:        m.name,
		Platform:    m.platform,
		SourceRoots: slices.Clone(m.roots),
		Libraries:   slices.Clone(m.libs),
		DependsOn:   slices.Clone(m.dependsOn),
		Files:       len(m.files),
	}, true
}

// Dispose releases the context. It is safe to call more than once.
func (c *Context) Dispose() {
	if c == nil || c.disposed.Swap(true) {
		return
	}
	c.log.Debug("analyzer context disposed", "modules", len(c.modules))
}

// Enter runs fn inside a semantic scope for file. An empty module makes the
// tree detached: it resolves only within itself and the builtins.
func (c *Context) Enter(file *syntax.File, moduleName string, fn func(*Semantic) error) error {
	if c != nil && c.disposed.Load() {
		return ErrDisposed
	}
	s := newSemantic(c, file, moduleName)
	return fn(s)
}

// EnterDetached runs fn for a tree that has no context at all.
func EnterDetached(file *syntax.File, fn func(*Semantic) error) error {
	return fn(newSemantic(nil, file, ""))
}

func qualify(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "."
		}
		out += p
	}
	return out
}
