// Package index keeps the workspace-wide lookup tables: declarations by
// name, expect/actual pairs and identifier occurrences per file.
package index

import (
	"context"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

// ReadFunc returns the current text of a source file.
type ReadFunc func(path string) (string, error)

func readDisk(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type scanned[T any] struct {
	uri string
	val T
	ok  bool
}

// scanAll runs fn over files in parallel, bounded by GOMAXPROCS. Files that
// cannot be read are skipped. Results keep the order of files.
func scanAll[T any](ctx context.Context, files []string, read ReadFunc, fn func(uri, text string) (T, bool)) ([]scanned[T], error) {
	if read == nil {
		read = readDisk
	}
	results := make([]scanned[T], len(files))
	if len(files) == 0 {
		return results, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.GOMAXPROCS(0), len(files)))
	for i, path := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			text, err := read(path)
			if err != nil {
				return nil
			}
			uri := source.PathToURI(path)
			val, ok := fn(uri, text)
			// индекс i уникален для горутины, мьютекс не нужен
			results[i] = scanned[T]{uri: uri, val: val, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func parseURI(uri, text string) *syntax.File {
	path := source.URIToPath(uri)
	if path == "" {
		path = uri
	}
	return syntax.ParseText(path, text)
}

// Set bundles the three indices so one parse feeds all of them.
type Set struct {
	Declarations *DeclarationIndex
	Overrides    *OverrideIndex
	References   *ReferenceIndex
}

// NewSet returns empty indices.
func NewSet() *Set {
	return &Set{
		Declarations: NewDeclarationIndex(),
		Overrides:    NewOverrideIndex(),
		References:   NewReferenceIndex(),
	}
}

type fileFacts struct {
	decls     []Declaration
	overrides []sidedEntry
	names     []string
}

// Build replaces the content of every index with a scan of files.
func (s *Set) Build(ctx context.Context, files []string, read ReadFunc) error {
	results, err := scanAll(ctx, files, read, func(uri, text string) (fileFacts, bool) {
		f := parseURI(uri, text)
		facts := fileFacts{decls: Scan(uri, f), names: identNames(f)}
		if HasMarkers(text) {
			facts.overrides = scanOverrides(uri, f)
		}
		return facts, true
	})
	if err != nil {
		return err
	}
	s.Reset()
	for _, r := range results {
		if !r.ok {
			continue
		}
		s.Declarations.put(r.uri, r.val.decls)
		s.Overrides.put(r.uri, r.val.overrides)
		s.References.put(r.uri, r.val.names)
	}
	return nil
}

// Update re-indexes one file from text.
func (s *Set) Update(uri, text string) {
	f := parseURI(uri, text)
	s.Declarations.IndexFile(uri, f)
	s.References.IndexFile(uri, f)
	if HasMarkers(text) {
		s.Overrides.IndexParsed(uri, f)
	} else {
		s.Overrides.put(uri, nil)
	}
}

// Reset empties every index.
func (s *Set) Reset() {
	s.Declarations.reset()
	s.Overrides.reset()
	s.References.reset()
}

// Remove drops every entry of one file.
func (s *Set) Remove(uri string) {
	s.Declarations.RemoveFile(uri)
	s.Overrides.RemoveEntriesForFile(uri)
	s.References.RemoveFile(uri)
}
