package source

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"

	"fortio.org/safecast"
)

// NewFile builds a standalone file (ID 0) from content, computing the line
// index and hash. Used for editor buffers that never enter a FileSet.
func NewFile(path string, content []byte) *File {
	return &File{
		Path:    NormalizePath(path),
		Content: content,
		LineIdx: buildLineIndex(content),
		Hash:    sha256.Sum256(content),
		Flags:   detectFlags(content) | FileVirtual,
	}
}

// FileSet manages the files loaded for one analysis generation.
type FileSet struct {
	mu    sync.RWMutex
	files []*File
	index map[string]FileID // path -> id
}

// NewFileSet creates a new empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{
		files: make([]*File, 0),
		index: make(map[string]FileID),
	}
}

// Add stores a file, computes LineIdx and Hash, and returns a new FileID.
// A second Add for the same path shadows the first one for path lookups.
func (fileSet *FileSet) Add(path string, content []byte, flags FileFlags) FileID {
	normalizedPath := NormalizePath(path)

	fileSet.mu.Lock()
	defer fileSet.mu.Unlock()
	lenFiles, err := safecast.Conv[uint32](len(fileSet.files))
	if err != nil {
		panic(fmt.Errorf("len files overflow: %w", err))
	}
	id := FileID(lenFiles)
	fileSet.files = append(fileSet.files, &File{
		ID:      id,
		Path:    normalizedPath,
		Content: content,
		LineIdx: buildLineIndex(content),
		Hash:    sha256.Sum256(content),
		Flags:   flags | detectFlags(content),
	})
	fileSet.index[normalizedPath] = id
	return id
}

// Load reads a file from disk and calls Add.
func (fileSet *FileSet) Load(path string) (FileID, error) {
	// #nosec G304 -- path comes from module source roots
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return fileSet.Add(path, content, 0), nil
}

// AddVirtual adds an in-memory file with the FileVirtual flag.
func (fileSet *FileSet) AddVirtual(name string, content []byte) FileID {
	return fileSet.Add(name, content, FileVirtual)
}

// Get returns the file for id, or nil when id is out of range.
func (fileSet *FileSet) Get(id FileID) *File {
	fileSet.mu.RLock()
	defer fileSet.mu.RUnlock()
	if int(id) >= len(fileSet.files) {
		return nil
	}
	return fileSet.files[id]
}

// GetByPath returns the latest file loaded under path.
func (fileSet *FileSet) GetByPath(path string) (*File, bool) {
	fileSet.mu.RLock()
	defer fileSet.mu.RUnlock()
	if id, ok := fileSet.index[NormalizePath(path)]; ok {
		return fileSet.files[id], true
	}
	return nil, false
}

// Len returns the number of files ever added.
func (fileSet *FileSet) Len() int {
	fileSet.mu.RLock()
	defer fileSet.mu.RUnlock()
	return len(fileSet.files)
}

// Paths returns the distinct paths in insertion order of their latest version.
func (fileSet *FileSet) Paths() []string {
	fileSet.mu.RLock()
	defer fileSet.mu.RUnlock()
	out := make([]string, 0, len(fileSet.index))
	for _, f := range fileSet.files {
		if fileSet.index[f.Path] == f.ID {
			out = append(out, f.Path)
		}
	}
	return out
}
