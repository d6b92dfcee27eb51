package index

import (
	"slices"
	"sync"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

// Kind classifies a declaration record.
type Kind uint8

const (
	KindClass Kind = iota
	KindInterface
	KindObject
	KindEnum
	KindFunction
	KindProperty
	KindTypeAlias
	KindConstructor
	KindEnumEntry
)

var kindNames = [...]string{"class", "interface", "object", "enum", "function", "property", "typeAlias", "constructor", "enumEntry"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsClassifier reports whether the kind names a type.
func (k Kind) IsClassifier() bool {
	switch k {
	case KindClass, KindInterface, KindObject, KindEnum, KindTypeAlias:
		return true
	}
	return false
}

var declKinds = map[syntax.DeclKind]Kind{
	syntax.DeclClass:       KindClass,
	syntax.DeclInterface:   KindInterface,
	syntax.DeclObject:      KindObject,
	syntax.DeclEnum:        KindEnum,
	syntax.DeclEnumEntry:   KindEnumEntry,
	syntax.DeclFunction:    KindFunction,
	syntax.DeclProperty:    KindProperty,
	syntax.DeclTypeAlias:   KindTypeAlias,
	syntax.DeclConstructor: KindConstructor,
}

// Declaration is one physical declaration of a file.
type Declaration struct {
	FileURI   string
	Name      string
	Kind      Kind
	Range     source.Range
	NameRange source.Range
	Container string
	Package   string
}

// QualifiedName joins package, container and name, skipping empty parts.
func (d Declaration) QualifiedName() string {
	out := ""
	for _, p := range [...]string{d.Package, d.Container, d.Name} {
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

func join(container, name string) string {
	if container == "" {
		return name
	}
	return container + "." + name
}

// Scan lists the declarations of a parsed file: nested classifiers, primary
// constructors, property parameters and enum entries included.
func Scan(uri string, f *syntax.File) []Declaration {
	var out []Declaration
	pkg := f.Package.Name
	rng := f.Source.RangeOf
	var visit func(ds []*syntax.Decl, container string)
	visit = func(ds []*syntax.Decl, container string) {
		for _, d := range ds {
			kind, ok := declKinds[d.Kind]
			if !ok || d.Name == "" {
				continue
			}
			out = append(out, Declaration{
				FileURI:   uri,
				Name:      d.Name,
				Kind:      kind,
				Range:     rng(d.Span),
				NameRange: rng(d.NameSpan),
				Container: container,
				Package:   pkg,
			})
			if !d.Kind.IsClassifier() || d.Kind == syntax.DeclTypeAlias {
				continue
			}
			inner := join(container, d.Name)
			if d.HasPrimaryCtor {
				span := d.PrimaryCtorSpan
				if span.Empty() {
					span = d.NameSpan
				}
				out = append(out, Declaration{
					FileURI:   uri,
					Name:      d.Name,
					Kind:      KindConstructor,
					Range:     rng(span),
					NameRange: rng(d.NameSpan),
					Container: inner,
					Package:   pkg,
				})
				for _, p := range d.Params {
					if !p.Property || p.Name == "" {
						continue
					}
					out = append(out, Declaration{
						FileURI:   uri,
						Name:      p.Name,
						Kind:      KindProperty,
						Range:     rng(p.Span),
						NameRange: rng(p.NameSpan),
						Container: inner,
						Package:   pkg,
					})
				}
			}
			visit(d.Members, inner)
		}
	}
	visit(f.Decls, "")
	return out
}

// DeclarationIndex maps names to declarations across the workspace.
type DeclarationIndex struct {
	mu          sync.RWMutex
	byName      map[string][]Declaration
	byFile      map[string][]Declaration
	byQualified map[string][]Declaration
	// order lists files by the time they were last indexed
	order []string
}

// NewDeclarationIndex returns an empty index.
func NewDeclarationIndex() *DeclarationIndex {
	x := &DeclarationIndex{}
	x.reset()
	return x
}

func (x *DeclarationIndex) reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byName = make(map[string][]Declaration)
	x.byFile = make(map[string][]Declaration)
	x.byQualified = make(map[string][]Declaration)
	x.order = nil
}

// IndexFile replaces the records of uri with a scan of file.
func (x *DeclarationIndex) IndexFile(uri string, file *syntax.File) {
	x.put(uri, Scan(uri, file))
}

// IndexText parses text and indexes it under uri.
func (x *DeclarationIndex) IndexText(uri, text string) {
	x.IndexFile(uri, parseURI(uri, text))
}

func (x *DeclarationIndex) put(uri string, decls []Declaration) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
	x.byFile[uri] = decls
	x.order = append(x.order, uri)
	for _, d := range decls {
		x.byName[d.Name] = append(x.byName[d.Name], d)
		q := d.QualifiedName()
		x.byQualified[q] = append(x.byQualified[q], d)
	}
}

// RemoveFile drops every record of uri.
func (x *DeclarationIndex) RemoveFile(uri string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(uri)
}

func (x *DeclarationIndex) removeLocked(uri string) {
	old, ok := x.byFile[uri]
	if !ok {
		return
	}
	delete(x.byFile, uri)
	x.order = slices.DeleteFunc(x.order, func(u string) bool { return u == uri })
	inFile := func(d Declaration) bool { return d.FileURI == uri }
	for _, d := range old {
		if bucket := slices.DeleteFunc(x.byName[d.Name], inFile); len(bucket) > 0 {
			x.byName[d.Name] = bucket
		} else {
			delete(x.byName, d.Name)
		}
		q := d.QualifiedName()
		if bucket := slices.DeleteFunc(x.byQualified[q], inFile); len(bucket) > 0 {
			x.byQualified[q] = bucket
		} else {
			delete(x.byQualified, q)
		}
	}
}

// FindByName returns every record with the simple name.
func (x *DeclarationIndex) FindByName(name string) []Declaration {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.byName[name])
}

// FindByQualifiedName returns the most recently indexed record with q.
func (x *DeclarationIndex) FindByQualifiedName(q string) (Declaration, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bucket := x.byQualified[q]
	if len(bucket) == 0 {
		return Declaration{}, false
	}
	return bucket[len(bucket)-1], true
}

// FindByNameInPackage filters FindByName by package.
func (x *DeclarationIndex) FindByNameInPackage(name, pkg string) []Declaration {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []Declaration
	for _, d := range x.byName[name] {
		if d.Package == pkg {
			out = append(out, d)
		}
	}
	return out
}

// FileDeclarations returns the records of one file in source order.
func (x *DeclarationIndex) FileDeclarations(uri string) []Declaration {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.byFile[uri])
}

// Search returns records whose name fuzzily matches query, in insertion
// order. limit <= 0 means no limit.
func (x *DeclarationIndex) Search(query string, limit int) []Declaration {
	m := newMatcher(query)
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []Declaration
	for _, uri := range x.order {
		for _, d := range x.byFile[uri] {
			if _, ok := m.match(d.Name); !ok {
				continue
			}
			out = append(out, d)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// Len returns the number of records.
func (x *DeclarationIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, ds := range x.byFile {
		n += len(ds)
	}
	return n
}

// Files returns the indexed files, sorted.
func (x *DeclarationIndex) Files() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := slices.Clone(x.order)
	slices.Sort(out)
	return out
}
