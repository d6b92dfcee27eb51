package session

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"kmpls/internal/source"
)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UpdateDocument stores content as the editor truth for uri, refreshes the
// indices for that file and projects the content to disk when the file
// already exists under a source root.
func (s *Session) UpdateDocument(uri, content string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.lastEdit = s.now()
	s.mu.Unlock()

	s.docs.Update(uri, content)
	s.trees.drop(uri)
	s.idx.Update(uri, content)

	if !s.writeThrough {
		return
	}
	path := source.URIToPath(uri)
	if path == "" || !writable(path) || !s.UnderSourceRoot(path) {
		return
	}
	written, err := writeIfChanged(path, content)
	if err != nil {
		s.log.Warn("write-through failed", "path", path, "err", err)
		return
	}
	if !written {
		return
	}
	s.mu.Lock()
	now := s.now()
	s.pendingWrites[uri] = now
	s.lastEdit = now
	s.dirty = true
	s.mu.Unlock()
}

// writeIfChanged overwrites an existing file whose content differs. Missing
// files are never created.
func writeIfChanged(path, content string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	current, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if string(current) == content {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), info.Mode().Perm()); err != nil {
		return false, err
	}
	return true, nil
}

// CloseDocument forgets uri. The file on disk is left alone; its index
// entries are refreshed from disk, or removed when the file is gone.
func (s *Session) CloseDocument(uri string) {
	s.docs.Close(uri)
	s.trees.drop(uri)
	s.mu.Lock()
	delete(s.pendingWrites, uri)
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return
	}
	s.refreshFromDisk(uri)
}

// InvalidateFile handles an external change to uri. Open documents keep the
// editor text; other files are re-indexed from disk.
func (s *Session) InvalidateFile(uri string) {
	s.docs.Touch(uri)
	s.trees.drop(uri)
	if !s.docs.IsOpen(uri) {
		s.refreshFromDisk(uri)
	}
	s.InvalidateSession()
}

func (s *Session) refreshFromDisk(uri string) {
	path := source.URIToPath(uri)
	if path == "" {
		s.idx.Remove(uri)
		return
	}
	text, err := readFile(path)
	if err != nil {
		s.idx.Remove(uri)
		return
	}
	s.idx.Update(uri, text)
}

// InvalidateSession drops cached trees and marks the session dirty without
// rebuilding.
func (s *Session) InvalidateSession() {
	s.trees.clear()
	s.mu.Lock()
	if !s.disposed {
		s.dirty = true
		s.lastEdit = s.now()
	}
	s.mu.Unlock()
}

// writable: scripts are indexed but never written through.
func writable(path string) bool {
	return filepath.Ext(path) == ".kt"
}
