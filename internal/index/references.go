package index

import (
	"slices"
	"sync"

	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

// ReferenceIndex maps identifier names to the files mentioning them.
type ReferenceIndex struct {
	mu     sync.RWMutex
	byName map[string]map[string]struct{}
	byFile map[string][]string
}

// NewReferenceIndex returns an empty index.
func NewReferenceIndex() *ReferenceIndex {
	x := &ReferenceIndex{}
	x.reset()
	return x
}

func (x *ReferenceIndex) reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byName = make(map[string]map[string]struct{})
	x.byFile = make(map[string][]string)
}

// identNames lists the distinct identifiers of f, template references
// included.
func identNames(f *syntax.File) []string {
	seen := make(map[string]struct{})
	for _, tk := range f.Tokens {
		if tk.Kind == token.Ident {
			seen[tk.Name()] = struct{}{}
		}
	}
	for i := range f.Refs {
		seen[f.Refs[i].Name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		if name != "" {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// IndexFile replaces the names recorded for uri.
func (x *ReferenceIndex) IndexFile(uri string, f *syntax.File) {
	x.put(uri, identNames(f))
}

// IndexText parses text and indexes it under uri.
func (x *ReferenceIndex) IndexText(uri, text string) {
	x.IndexFile(uri, parseURI(uri, text))
}

func (x *ReferenceIndex) put(uri string, names []string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
	x.byFile[uri] = names
	for _, name := range names {
		set := x.byName[name]
		if set == nil {
			set = make(map[string]struct{})
			x.byName[name] = set
		}
		set[uri] = struct{}{}
	}
}

// RemoveFile drops the names of uri.
func (x *ReferenceIndex) RemoveFile(uri string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
}

func (x *ReferenceIndex) removeLocked(uri string) {
	names, ok := x.byFile[uri]
	if !ok {
		return
	}
	delete(x.byFile, uri)
	for _, name := range names {
		set := x.byName[name]
		delete(set, uri)
		if len(set) == 0 {
			delete(x.byName, name)
		}
	}
}

// FilesFor returns the files mentioning name, sorted. ok is false when the
// name is unknown to the index.
func (x *ReferenceIndex) FilesFor(name string) (files []string, ok bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	set, ok := x.byName[name]
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(set))
	for uri := range set {
		out = append(out, uri)
	}
	slices.Sort(out)
	return out, true
}

// Contains reports whether uri has been indexed.
func (x *ReferenceIndex) Contains(uri string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byFile[uri]
	return ok
}

// Len returns the number of distinct names.
func (x *ReferenceIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byName)
}
