// Package docstore holds the text of documents opened in the editor.
package docstore

import (
	"slices"
	"sync"
)

// Store maps document URIs to their latest text. The zero value is not
// usable; call New.
//
// Every change to a URI (open, update, close, Touch) moves its revision
// forward. Revisions come from one counter, so a value is never reused for
// the same URI.
type Store struct {
	mu   sync.RWMutex
	docs map[string]string
	revs map[string]uint64
	seq  uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[string]string), revs: make(map[string]uint64)}
}

// bump must be called with mu held.
func (s *Store) bump(uri string) {
	s.seq++
	s.revs[uri] = s.seq
}

// Open records text for uri, replacing any previous content.
func (s *Store) Open(uri, text string) {
	s.mu.Lock()
	s.docs[uri] = text
	s.bump(uri)
	s.mu.Unlock()
}

// Update replaces the text of uri. Updating a document that was never opened
// opens it.
func (s *Store) Update(uri, text string) { s.Open(uri, text) }

// Get returns the text of uri.
func (s *Store) Get(uri string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.docs[uri]
	return text, ok
}

// Read returns the text of uri together with its revision. Closed documents
// report ok=false and the revision of the last close or Touch.
func (s *Store) Read(uri string) (text string, rev uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok = s.docs[uri]
	return text, s.revs[uri], ok
}

// Revision returns the current revision of uri; zero for a URI the store has
// never seen.
func (s *Store) Revision(uri string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revs[uri]
}

// Touch moves the revision of uri forward without changing its text. It
// marks external changes to files that are not open.
func (s *Store) Touch(uri string) {
	s.mu.Lock()
	s.bump(uri)
	s.mu.Unlock()
}

// IsOpen reports whether uri is held by the store.
func (s *Store) IsOpen(uri string) bool {
	_, ok := s.Get(uri)
	return ok
}

// Close forgets uri. It reports whether the document was open.
func (s *Store) Close(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[uri]
	delete(s.docs, uri)
	s.bump(uri)
	return ok
}

// URIs returns the open document URIs, sorted.
func (s *Store) URIs() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		out = append(out, uri)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Len returns the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Snapshot copies the current contents.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.docs))
	for uri, text := range s.docs {
		out[uri] = text
	}
	return out
}

// Clear drops every document. Revisions keep counting from where they were.
func (s *Store) Clear() {
	s.mu.Lock()
	for uri := range s.docs {
		s.bump(uri)
	}
	clear(s.docs)
	s.mu.Unlock()
}
