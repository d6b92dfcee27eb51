package analyzer

import (
	"fmt"
	"strings"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

// SymbolKind classifies a resolved symbol.
type SymbolKind uint8

const (
	SymUnknown SymbolKind = iota
	SymClass
	SymInterface
	SymObject
	SymEnum
	SymEnumEntry
	SymFunction
	SymProperty
	SymTypeAlias
	SymConstructor
	SymParam
	SymLocal
	SymTypeParam
	SymPackage
	SymExternal
)

var symbolKindNames = [...]string{
	SymUnknown:     "unknown",
	SymClass:       "class",
	SymInterface:   "interface",
	SymObject:      "object",
	SymEnum:        "enum",
	SymEnumEntry:   "enumEntry",
	SymFunction:    "function",
	SymProperty:    "property",
	SymTypeAlias:   "typeAlias",
	SymConstructor: "constructor",
	SymParam:       "parameter",
	SymLocal:       "variable",
	SymTypeParam:   "typeParameter",
	SymPackage:     "package",
	SymExternal:    "external",
}

func (k SymbolKind) String() string {
	if int(k) < len(symbolKindNames) {
		return symbolKindNames[k]
	}
	return "unknown"
}

// IsClassifier reports whether the symbol names a type.
func (k SymbolKind) IsClassifier() bool {
	switch k {
	case SymClass, SymInterface, SymObject, SymEnum, SymTypeAlias:
		return true
	}
	return false
}

// Symbol is the target of a resolved name.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Decl  *syntax.Decl
	Local *syntax.Local
	Param *syntax.Param
	// Owner is the callable or class declaring Param.
	Owner    *syntax.Decl
	Path     string
	Module   string
	Package  string
	NameSpan source.Span
	Builtin  bool
	// Qualified is set for imports that leave the workspace and packages.
	Qualified string
}

var declKinds = map[syntax.DeclKind]SymbolKind{
	syntax.DeclClass:       SymClass,
	syntax.DeclInterface:   SymInterface,
	syntax.DeclObject:      SymObject,
	syntax.DeclEnum:        SymEnum,
	syntax.DeclEnumEntry:   SymEnumEntry,
	syntax.DeclFunction:    SymFunction,
	syntax.DeclProperty:    SymProperty,
	syntax.DeclTypeAlias:   SymTypeAlias,
	syntax.DeclConstructor: SymConstructor,
}

func declSymbol(d *syntax.Decl, path, mod, pkg string) *Symbol {
	return &Symbol{
		Name:     d.Name,
		Kind:     declKinds[d.Kind],
		Decl:     d,
		Path:     path,
		Module:   mod,
		Package:  pkg,
		NameSpan: d.NameSpan,
		Builtin:  path == PreludePath,
	}
}

func paramSymbol(prm *syntax.Param, owner *syntax.Decl, path, mod, pkg string) *Symbol {
	kind := SymParam
	if prm.Property && owner != nil && owner.Kind.IsClassifier() {
		kind = SymProperty
	}
	return &Symbol{
		Name:     prm.Name,
		Kind:     kind,
		Param:    prm,
		Owner:    owner,
		Path:     path,
		Module:   mod,
		Package:  pkg,
		NameSpan: prm.NameSpan,
		Builtin:  path == PreludePath,
	}
}

func localSymbol(l *syntax.Local, path, mod, pkg string) *Symbol {
	switch {
	case (l.Kind == syntax.LocalFun || l.Kind == syntax.LocalClass) && l.Decl != nil:
		return declSymbol(l.Decl, path, mod, pkg)
	case l.Kind == syntax.LocalParam && l.Param != nil:
		return paramSymbol(l.Param, l.Decl, path, mod, pkg)
	}
	kind := SymLocal
	switch l.Kind {
	case syntax.LocalTypeParam:
		kind = SymTypeParam
	case syntax.LocalLambdaParam, syntax.LocalIt, syntax.LocalCatchParam, syntax.LocalSetterValue:
		kind = SymParam
	}
	return &Symbol{
		Name:     l.Name,
		Kind:     kind,
		Local:    l,
		Path:     path,
		Module:   mod,
		Package:  pkg,
		NameSpan: l.NameSpan,
		Builtin:  path == PreludePath,
	}
}

// Key identifies the declaration a symbol points at. Two symbols with the
// same key are the same declaration.
func (s *Symbol) Key() string {
	switch {
	case s == nil:
		return ""
	case s.Kind == SymExternal:
		return "ext:" + s.Qualified
	case s.Kind == SymPackage:
		return "pkg:" + s.Qualified
	case s.Local != nil && s.Local.Kind == syntax.LocalIt:
		// implicit it has no name of its own; the lambda scope identifies it
		return fmt.Sprintf("%s#it%d", s.Path, s.Local.Scope.Span.Start)
	}
	return fmt.Sprintf("%s#%d", s.Path, s.NameSpan.Start)
}

// HasLocation reports whether the symbol is declared in a workspace file.
func (s *Symbol) HasLocation() bool {
	return s != nil && !s.Builtin && s.Path != "" && s.Kind != SymExternal && s.Kind != SymPackage &&
		!(s.Local != nil && s.Local.Kind == syntax.LocalIt)
}

// IsExpect reports whether the symbol is an expect declaration.
func (s *Symbol) IsExpect() bool { return s != nil && s.Decl != nil && s.Decl.IsExpect() }

// IsActual reports whether the symbol is an actual declaration.
func (s *Symbol) IsActual() bool { return s != nil && s.Decl != nil && s.Decl.IsActual() }

// QualifiedName joins package, container and name.
func (s *Symbol) QualifiedName() string {
	if s.Qualified != "" {
		return s.Qualified
	}
	if s.Decl != nil {
		return qualify(s.Package, s.Decl.Container(), s.Name)
	}
	return s.Name
}

// Signature renders the declaration header without inferred types.
func (s *Symbol) Signature() string { return s.signature("") }

func (s *Symbol) signature(inferred string) string {
	switch {
	case s.Decl != nil:
		return s.Decl.SignatureWith(inferred)
	case s.Param != nil:
		var b strings.Builder
		if s.Kind == SymProperty {
			if s.Param.Mutable {
				b.WriteString("var ")
			} else {
				b.WriteString("val ")
			}
		}
		b.WriteString(s.Param.Label())
		return b.String()
	case s.Local != nil:
		var b strings.Builder
		switch s.Local.Kind {
		case syntax.LocalVal, syntax.LocalLoopVar:
			b.WriteString("val ")
		case syntax.LocalVar:
			b.WriteString("var ")
		}
		b.WriteString(s.Name)
		typ := inferred
		if s.Local.Type != nil {
			typ = s.Local.Type.Text
		}
		if typ != "" {
			b.WriteString(": ")
			b.WriteString(typ)
		}
		return b.String()
	case s.Kind == SymPackage:
		return "package " + s.Qualified
	case s.Kind == SymExternal:
		return "import " + s.Qualified
	}
	return s.Name
}
