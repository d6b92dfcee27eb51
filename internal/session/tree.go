package session

import (
	"sync"

	"kmpls/internal/analyzer"
	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

// SyntaxTree is a parse of one document. Attached trees belong to a module of
// the current analyzer context; detached trees only know their own file.
// Trees are request-scoped: a rebuild makes every older tree stale.
type SyntaxTree struct {
	URI        string
	Path       string
	File       *syntax.File
	Module     string
	Attached   bool
	Generation uint64

	rev uint64 // docstore revision the text was read at
}

// treeCache keys trees by URI.
type treeCache struct {
	mu    sync.RWMutex
	byURI map[string]*SyntaxTree
}

func newTreeCache() *treeCache {
	return &treeCache{byURI: make(map[string]*SyntaxTree)}
}

func (c *treeCache) get(uri string) (*SyntaxTree, bool) {
	c.mu.RLock()
	t, ok := c.byURI[uri]
	c.mu.RUnlock()
	return t, ok
}

// putIf stores t only while valid still holds. The check runs under the
// cache lock, so a drop issued after a concurrent edit cannot slip in between
// the check and the store.
func (c *treeCache) putIf(t *SyntaxTree, valid func() bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !valid() {
		return false
	}
	c.byURI[t.URI] = t
	return true
}

func (c *treeCache) drop(uri string) {
	c.mu.Lock()
	delete(c.byURI, uri)
	c.mu.Unlock()
}

func (c *treeCache) clear() {
	c.mu.Lock()
	clear(c.byURI)
	c.mu.Unlock()
}

func (c *treeCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byURI)
}

// SyntaxTree returns the current tree of uri, rebuilding the context first
// when the session is dirty and quiet for long enough. It reports false when
// no text is available for uri.
func (s *Session) SyntaxTree(uri string) (*SyntaxTree, bool) {
	s.rebuildIfDue()
	return s.LoadTree(uri)
}

// LoadTree is SyntaxTree without the debounce check. Code running inside a
// semantic scope must use it: a rebuild there would wait on the scope.
func (s *Session) LoadTree(uri string) (*SyntaxTree, bool) {
	gen := s.generation.Load()
	if t, ok := s.trees.get(uri); ok && t.Generation == gen && t.rev == s.docs.Revision(uri) {
		return t, true
	}
	path := source.URIToPath(uri)
	text, rev, open := s.docs.Read(uri)

	t := &SyntaxTree{URI: uri, Path: path, Generation: gen, rev: rev}
	actx := s.actx.Load()
	if module, ok := actx.ModuleFor(path); ok && path != "" {
		t.Module, t.Attached = module, true
		if open {
			t.File = analyzer.Parse(path, []byte(text))
		} else if f, ok := actx.File(path); ok {
			t.File = f
		}
	}
	if t.File == nil {
		if !open {
			if path == "" {
				return nil, false
			}
			disk, err := readFile(path)
			if err != nil {
				return nil, false
			}
			text = disk
		}
		name := path
		if name == "" {
			name = uri
		}
		t.File = analyzer.Parse(name, []byte(text))
	}
	s.trees.putIf(t, func() bool {
		return gen == s.generation.Load() && rev == s.docs.Revision(uri)
	})
	return t, true
}
