// Package analyzer is the reference semantic engine: it registers modules,
// parses their sources and answers name-resolution, declared-type and
// diagnostic queries inside a semantic scope.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"kmpls/internal/project"
	"kmpls/internal/project/dag"
	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

// ErrDisposed is returned when a disposed context is used.
var ErrDisposed = errors.New("analyzer context disposed")

// ModuleSpec is one module as registered with the engine.
type ModuleSpec struct {
	Name        string
	Platform    string
	SourceRoots []string
	Libraries   []project.LibraryRef
	DependsOn   []string
}

// Engine builds analysis contexts.
type Engine interface {
	BuildContext(ctx context.Context, modules []ModuleSpec) (*Context, error)
}

// Options configures the reference engine.
type Options struct {
	Logger *slog.Logger
	// Discover lists the source files of one root. Defaults to
	// project.SourceFiles without a workspace-level .gitignore.
	Discover func(root string) ([]string, error)
	// Workers bounds parallel parsing; zero means GOMAXPROCS.
	Workers int
}

type engine struct {
	opts Options
	log  *slog.Logger
}

// New returns the reference Engine.
func New(opts Options) Engine {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.Discover == nil {
		opts.Discover = func(root string) ([]string, error) {
			return project.SourceFiles("", []string{root})
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &engine{opts: opts, log: log}
}

// Parse builds a standalone syntax tree from text.
func Parse(path string, text []byte) *syntax.File {
	return syntax.Parse(path, source.NewFile(path, text))
}

// BuildContext registers modules in the given order. A dependsOn edge is
// wired only when its target was registered earlier.
func (e *engine) BuildContext(ctx context.Context, modules []ModuleSpec) (*Context, error) {
	c := newContext(e.log)
	for _, spec := range modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("module with empty name")
		}
		if _, dup := c.byName[spec.Name]; dup {
			return nil, fmt.Errorf("module %q registered twice", spec.Name)
		}
		m := &module{
			name:     spec.Name,
			platform: project.ParsePlatform(spec.Platform),
			roots:    spec.SourceRoots,
			libs:     spec.Libraries,
			packages: make(map[string]map[string][]*Symbol),
		}
		for _, dep := range spec.DependsOn {
			if _, ok := c.byName[dep]; !ok {
				e.log.Warn("dependsOn target not registered yet", "module", spec.Name, "target", dep)
				continue
			}
			m.dependsOn = append(m.dependsOn, dep)
		}
		for _, root := range spec.SourceRoots {
			files, err := e.opts.Discover(root)
			if err != nil {
				return nil, fmt.Errorf("module %q: discover %s: %w", spec.Name, root, err)
			}
			for _, path := range files {
				if _, owned := c.fileModule[path]; owned {
					continue
				}
				c.fileModule[path] = spec.Name
				m.files = append(m.files, path)
			}
		}
		c.byName[spec.Name] = m
		c.modules = append(c.modules, m)
	}
	if err := e.parseAll(ctx, c); err != nil {
		return nil, err
	}
	c.index()
	e.log.Debug("analyzer context built", "modules", len(c.modules), "files", len(c.files))
	return c, nil
}

func (e *engine) parseAll(ctx context.Context, c *Context) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, m := range c.modules {
		for _, path := range m.files {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				data, err := os.ReadFile(path)
				if err != nil {
					// файл мог исчезнуть между обходом и чтением
					e.log.Debug("skip unreadable source", "path", path, "err", err)
					return nil
				}
				f := Parse(path, data)
				mu.Lock()
				c.files[path] = f
				mu.Unlock()
				return nil
			})
		}
	}
	return g.Wait()
}

// moduleGraph describes the registered modules as a dag so closures can be
// computed with the project ordering code.
func moduleGraph(mods []*module) (dag.ModuleIndex, dag.Graph) {
	descs := make([]project.ModuleDescriptor, 0, len(mods))
	for _, m := range mods {
		descs = append(descs, project.ModuleDescriptor{Name: m.name, DependsOn: m.dependsOn})
	}
	idx := dag.BuildIndex(descs)
	g, _ := dag.BuildGraph(idx, descs)
	return idx, g
}
