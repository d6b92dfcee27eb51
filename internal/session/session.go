// Package session owns the live analysis state of a workspace: open
// documents, the three indices, cached syntax trees and the analyzer
// context, and decides when the context is rebuilt.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"kmpls/internal/analyzer"
	"kmpls/internal/docstore"
	"kmpls/internal/index"
	"kmpls/internal/project"
	"kmpls/internal/project/dag"
	"kmpls/internal/source"
)

// ErrDisposed is returned by operations on a disposed session.
var ErrDisposed = errors.New("session disposed")

// DefaultDebounce is the quiet period before a dirty session is rebuilt.
const DefaultDebounce = 750 * time.Millisecond

// fallbackModule names the single module of a workspace without a descriptor.
const fallbackModule = "main"

// Options configures a Session.
type Options struct {
	Engine   analyzer.Engine
	Debounce time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	// WriteThrough projects edits of existing source files to disk. Nil
	// means enabled.
	WriteThrough *bool
	// SkipRebuildIndex keeps the override index as maintained by edits
	// instead of rescanning every source file on rebuild.
	SkipRebuildIndex bool
}

// Session is safe for concurrent use.
type Session struct {
	log          *slog.Logger
	engine       analyzer.Engine
	now          func() time.Time
	debounce     time.Duration
	writeThrough bool
	skipIndex    bool

	docs  *docstore.Store
	idx   *index.Set
	trees *treeCache

	// ctxMu: semantic scopes hold the read side, rebuilds the write side
	ctxMu sync.RWMutex
	actx  atomic.Pointer[analyzer.Context]

	mu            sync.Mutex
	root          string
	desc          *project.Descriptor
	modules       []project.ModuleDescriptor
	initialized   bool
	disposed      bool
	dirty         bool
	lastRebuild   time.Time
	lastEdit      time.Time
	pendingWrites map[string]time.Time

	generation atomic.Uint64
	rebuilds   atomic.Uint64
	flight     singleflight.Group
}

// New returns an uninitialized session.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	s := &Session{
		log:           log,
		now:           now,
		debounce:      debounce,
		writeThrough:  opts.WriteThrough == nil || *opts.WriteThrough,
		skipIndex:     opts.SkipRebuildIndex,
		docs:          docstore.New(),
		idx:           index.NewSet(),
		trees:         newTreeCache(),
		pendingWrites: make(map[string]time.Time),
	}
	s.engine = opts.Engine
	if s.engine == nil {
		s.engine = analyzer.New(analyzer.Options{
			Logger:   log,
			Discover: s.discover,
		})
	}
	return s
}

// discover lists one root's sources honoring the workspace .gitignore.
func (s *Session) discover(root string) ([]string, error) {
	return project.SourceFiles(s.Root(), []string{root})
}

// Initialize disposes any previous context, records root and builds the
// module list, the indices and a fresh analyzer context. A nil descriptor
// selects a single module over the conventional source roots. A context
// construction error is returned; the session then serves detached trees.
func (s *Session) Initialize(ctx context.Context, rootPath string, desc *project.Descriptor) error {
	root := project.AbsPath(rootPath)
	var modules []project.ModuleDescriptor
	if desc != nil && len(desc.Modules) > 0 {
		for _, issue := range desc.Validate() {
			s.log.Warn("project descriptor", "code", issue.Code, "module", issue.Module, "msg", issue.Message)
		}
		ordered, cycles := dag.Order(desc.Modules)
		for _, c := range cycles {
			s.log.Warn("dependsOn cycle broken", "from", c[0], "to", c[1])
		}
		modules = ordered
	} else {
		modules = []project.ModuleDescriptor{{
			Name:        fallbackModule,
			Platform:    project.PlatformCommon,
			SourceRoots: project.ConventionalRoots(root),
		}}
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.root = root
	s.desc = desc
	s.modules = modules
	s.initialized = true
	s.mu.Unlock()

	s.ctxMu.Lock()
	if old := s.actx.Swap(nil); old != nil {
		old.Dispose()
	}
	s.ctxMu.Unlock()

	files := s.SourceFiles()
	if err := s.idx.Build(ctx, files, s.readPath); err != nil {
		return fmt.Errorf("build indices: %w", err)
	}
	s.log.Info("workspace indexed", "root", root, "modules", len(modules), "files", len(files))
	if err := s.rebuild(ctx, false); err != nil {
		s.log.Error("analyzer context construction failed", "root", root, "err", err)
		return err
	}
	return nil
}

// Dispose releases the analyzer context and clears all state. It is safe to
// call more than once.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.dirty = false
	clear(s.pendingWrites)
	s.mu.Unlock()

	s.ctxMu.Lock()
	if old := s.actx.Swap(nil); old != nil {
		old.Dispose()
	}
	s.ctxMu.Unlock()
	s.docs.Clear()
	s.trees.clear()
	s.idx.Reset()
	s.generation.Add(1)
	s.log.Debug("session disposed")
}

// Documents returns the open documents.
func (s *Session) Documents() *docstore.Store { return s.docs }

// Declarations returns the workspace declaration index.
func (s *Session) Declarations() *index.DeclarationIndex { return s.idx.Declarations }

// Overrides returns the expect/actual index.
func (s *Session) Overrides() *index.OverrideIndex { return s.idx.Overrides }

// References returns the identifier occurrence index.
func (s *Session) References() *index.ReferenceIndex { return s.idx.References }

// Root returns the workspace root.
func (s *Session) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Descriptor returns the descriptor given to Initialize, or nil.
func (s *Session) Descriptor() *project.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// Modules returns the modules in registration order.
func (s *Session) Modules() []project.ModuleDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.modules)
}

// Graph returns the dependsOn graph of the registered modules.
func (s *Session) Graph() (dag.ModuleIndex, dag.Graph) {
	mods := s.Modules()
	idx := dag.BuildIndex(mods)
	g, _ := dag.BuildGraph(idx, mods)
	return idx, g
}

// Generation is bumped by every rebuild. Trees of older generations are
// stale.
func (s *Session) Generation() uint64 { return s.generation.Load() }

// ModuleOf returns the module owning path in the current context.
func (s *Session) ModuleOf(path string) (string, bool) {
	return s.actx.Load().ModuleFor(path)
}

// ModuleInfo describes a registered module of the current context.
func (s *Session) ModuleInfo(name string) (analyzer.ModuleInfo, bool) {
	return s.actx.Load().Module(name)
}

// Attached reports whether an analyzer context is live.
func (s *Session) Attached() bool { return s.actx.Load() != nil }

// sourceRoots collects module source roots in registration order.
func (s *Session) sourceRoots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roots []string
	for _, m := range s.modules {
		for _, r := range m.SourceRoots {
			if !slices.Contains(roots, r) {
				roots = append(roots, r)
			}
		}
	}
	return roots
}

// SourceFiles lists every source file under the module roots as found on
// disk now.
func (s *Session) SourceFiles() []string {
	files, err := project.SourceFiles(s.Root(), s.sourceRoots())
	if err != nil {
		s.log.Warn("source discovery failed", "err", err)
	}
	return files
}

// UnderSourceRoot reports whether path lies inside a module source root.
func (s *Session) UnderSourceRoot(path string) bool {
	for _, root := range s.sourceRoots() {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return true
	}
	return false
}

// ReadText returns the editor text of uri if open, else its disk content.
func (s *Session) ReadText(uri string) (string, bool) {
	if text, ok := s.docs.Get(uri); ok {
		return text, true
	}
	path := source.URIToPath(uri)
	if path == "" {
		return "", false
	}
	text, err := readFile(path)
	if err != nil {
		return "", false
	}
	return text, true
}

// readPath is the index read function: open documents shadow the disk.
func (s *Session) readPath(path string) (string, error) {
	if text, ok := s.docs.Get(source.PathToURI(path)); ok {
		return text, nil
	}
	return readFile(path)
}

// Stats is a point-in-time summary for logging and the CLI.
type Stats struct {
	Generation    uint64
	Rebuilds      uint64
	Modules       int
	Documents     int
	Trees         int
	Declarations  int
	OverrideFiles int
	Expects       int
	Actuals       int
	PendingWrites int
	Dirty         bool
	Attached      bool
}

// Stats returns current counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Modules:       len(s.modules),
		PendingWrites: len(s.pendingWrites),
		Dirty:         s.dirty,
	}
	s.mu.Unlock()
	st.Generation = s.generation.Load()
	st.Rebuilds = s.rebuilds.Load()
	st.Documents = s.docs.Len()
	st.Trees = s.trees.len()
	st.Declarations = s.idx.Declarations.Len()
	st.OverrideFiles = s.idx.Overrides.FileCount()
	st.Expects, st.Actuals = s.idx.Overrides.Counts()
	st.Attached = s.Attached()
	return st
}
