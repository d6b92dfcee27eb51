package index

import (
	"context"
	"slices"
	"strings"
	"sync"

	"kmpls/internal/syntax"
)

// OverrideKind groups declarations that may pair as expect and actual.
type OverrideKind uint8

const (
	OverrideFunction OverrideKind = iota
	OverrideProperty
	OverrideClassifier
)

func (k OverrideKind) String() string {
	switch k {
	case OverrideFunction:
		return "function"
	case OverrideProperty:
		return "property"
	default:
		return "classifier"
	}
}

// OverrideKindOf maps a declaration kind. Constructors and enum entries
// never pair.
func OverrideKindOf(k syntax.DeclKind) (OverrideKind, bool) {
	switch {
	case k == syntax.DeclFunction:
		return OverrideFunction, true
	case k == syntax.DeclProperty:
		return OverrideProperty, true
	case k.IsClassifier():
		return OverrideClassifier, true
	}
	return 0, false
}

// Compatible reports whether an expect of kind a may be implemented by an
// actual of kind b. Classifiers pair with each other so that an actual
// typealias implements an expect class.
func Compatible(a, b OverrideKind) bool { return a == b }

// OverrideEntry is one expect or actual top-level declaration.
type OverrideEntry struct {
	Name    string
	Kind    OverrideKind
	FileURI string
	Offset  int // byte offset of the name
	// Signature is the ordered parameter names joined with ","; functions only.
	Signature string
}

// HasMarkers is the cheap textual pre-check before a structural pass.
func HasMarkers(text string) bool {
	return strings.Contains(text, "expect") || strings.Contains(text, "actual")
}

// Signature renders the parameter-name list used to pair overloads.
func Signature(d *syntax.Decl) string {
	if d.Kind != syntax.DeclFunction {
		return ""
	}
	return strings.Join(d.ParamNames(), ",")
}

type overrideSide uint8

const (
	sideDeclared overrideSide = iota
	sideImplementing
)

type sidedEntry struct {
	OverrideEntry
	side overrideSide
}

func scanOverrides(uri string, f *syntax.File) []sidedEntry {
	var out []sidedEntry
	for _, d := range f.Decls {
		if d.Name == "" {
			continue
		}
		kind, ok := OverrideKindOf(d.Kind)
		if !ok {
			continue
		}
		side := sideImplementing
		switch {
		case d.HasModifier("expect"):
			side = sideDeclared
		case d.IsActual():
		default:
			continue
		}
		out = append(out, sidedEntry{
			OverrideEntry: OverrideEntry{
				Name:      d.Name,
				Kind:      kind,
				FileURI:   uri,
				Offset:    int(d.NameSpan.Start),
				Signature: Signature(d),
			},
			side: side,
		})
	}
	return out
}

// OverrideIndex pairs expect declarations with their actual implementations
// by name.
type OverrideIndex struct {
	mu           sync.RWMutex
	declared     map[string][]OverrideEntry
	implementing map[string][]OverrideEntry
	files        map[string][]sidedEntry
}

// NewOverrideIndex returns an empty index.
func NewOverrideIndex() *OverrideIndex {
	x := &OverrideIndex{}
	x.reset()
	return x
}

func (x *OverrideIndex) reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.declared = make(map[string][]OverrideEntry)
	x.implementing = make(map[string][]OverrideEntry)
	x.files = make(map[string][]sidedEntry)
}

// IndexFile re-indexes uri from text. Files without either marker keyword
// are recorded as indexed without parsing.
func (x *OverrideIndex) IndexFile(uri, text string) {
	if !HasMarkers(text) {
		x.put(uri, nil)
		return
	}
	x.IndexParsed(uri, parseURI(uri, text))
}

// IndexParsed re-indexes uri from an existing parse.
func (x *OverrideIndex) IndexParsed(uri string, f *syntax.File) {
	x.put(uri, scanOverrides(uri, f))
}

// Rebuild replaces the index with a scan of files.
func (x *OverrideIndex) Rebuild(ctx context.Context, files []string, read ReadFunc) error {
	results, err := scanAll(ctx, files, read, func(uri, text string) ([]sidedEntry, bool) {
		if !HasMarkers(text) {
			return nil, true
		}
		return scanOverrides(uri, parseURI(uri, text)), true
	})
	if err != nil {
		return err
	}
	x.reset()
	for _, r := range results {
		if r.ok {
			x.put(r.uri, r.val)
		}
	}
	return nil
}

func (x *OverrideIndex) put(uri string, entries []sidedEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
	x.files[uri] = entries
	for _, e := range entries {
		if e.side == sideDeclared {
			x.declared[e.Name] = append(x.declared[e.Name], e.OverrideEntry)
		} else {
			x.implementing[e.Name] = append(x.implementing[e.Name], e.OverrideEntry)
		}
	}
}

// RemoveEntriesForFile vacates both sides for uri.
func (x *OverrideIndex) RemoveEntriesForFile(uri string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
}

func (x *OverrideIndex) removeLocked(uri string) {
	entries, ok := x.files[uri]
	if !ok {
		return
	}
	delete(x.files, uri)
	inFile := func(e OverrideEntry) bool { return e.FileURI == uri }
	for _, e := range entries {
		m := x.implementing
		if e.side == sideDeclared {
			m = x.declared
		}
		if bucket := slices.DeleteFunc(m[e.Name], inFile); len(bucket) > 0 {
			m[e.Name] = bucket
		} else {
			delete(m, e.Name)
		}
	}
}

// GetImplementationsFor returns the actual entries named name.
func (x *OverrideIndex) GetImplementationsFor(name string) []OverrideEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.implementing[name])
}

// GetDeclarationsFor returns the expect entries named name.
func (x *OverrideIndex) GetDeclarationsFor(name string) []OverrideEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.declared[name])
}

// IsIndexed reports whether uri has been scanned.
func (x *OverrideIndex) IsIndexed(uri string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.files[uri]
	return ok
}

// FileCount returns the number of scanned files.
func (x *OverrideIndex) FileCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.files)
}

// Counts returns the number of declared and implementing entries.
func (x *OverrideIndex) Counts() (declared, implementing int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, b := range x.declared {
		declared += len(b)
	}
	for _, b := range x.implementing {
		implementing += len(b)
	}
	return declared, implementing
}
