package analyzer

import (
	"fmt"
	"slices"
	"strings"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

// Severity follows the LSP numbering.
type Severity uint8

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
	SeverityInfo    Severity = 3
	SeverityHint    Severity = 4
)

// Diagnostic codes.
const (
	CodeSyntax        = "SYNTAX"
	CodeUnresolved    = "UNRESOLVED_REFERENCE"
	CodeNoExpect      = "NO_EXPECT"
	CodeNoActual      = "NO_ACTUAL"
	CodeRedeclaration = "REDECLARATION"
	CodeUnusedImport  = "UNUSED_IMPORT"
)

// Diagnostic is one problem found in the scope's file.
type Diagnostic struct {
	Span     source.Span
	Severity Severity
	Code     string
	Message  string
}

// operator and delegate conventions are used without a name in the source
var conventionNames = map[string]struct{}{
	"getValue": {}, "setValue": {}, "provideDelegate": {}, "invoke": {}, "get": {}, "set": {},
	"plus": {}, "minus": {}, "times": {}, "div": {}, "rem": {}, "contains": {}, "iterator": {},
	"compareTo": {}, "rangeTo": {}, "rangeUntil": {}, "component1": {}, "component2": {},
	"plusAssign": {}, "minusAssign": {}, "unaryMinus": {}, "not": {},
}

// Diagnostics returns the file's problems sorted by position.
func (s *Semantic) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, e := range s.file.Errors {
		out = append(out, Diagnostic{Span: e.Span, Severity: SeverityError, Code: CodeSyntax, Message: e.Message})
	}
	if s.Attached() {
		out = append(out, s.unresolved()...)
		out = append(out, s.expectActual()...)
	}
	out = append(out, s.redeclarations()...)
	out = append(out, s.unusedImports()...)
	slices.SortStableFunc(out, func(a, b Diagnostic) int {
		if a.Span.Start != b.Span.Start {
			if a.Span.Start < b.Span.Start {
				return -1
			}
			return 1
		}
		return int(a.Severity) - int(b.Severity)
	})
	return out
}

// foreignStar reports whether the file star-imports a package the
// workspace does not declare.
func (s *Semantic) foreignStar() bool {
	for _, imp := range s.file.Imports {
		if !imp.Star {
			continue
		}
		if s.ctx == nil {
			return true
		}
		if _, ok := s.ctx.pkgNames[imp.Path]; !ok {
			if len(s.ctx.qualified[imp.Path]) == 0 {
				return true
			}
		}
	}
	return false
}

func (s *Semantic) unresolved() []Diagnostic {
	if s.foreignStar() {
		return nil
	}
	var out []Diagnostic
	for i := range s.file.Refs {
		r := &s.file.Refs[i]
		switch r.Kind {
		case syntax.RefName, syntax.RefType:
		case syntax.RefCallable:
			if r.Recv != syntax.RecvNone {
				continue
			}
		default:
			continue
		}
		if r.Qualifier != "" || r.Name == "field" || IsBuiltin(r.Name) || s.file.Import(r.Name) != nil {
			continue
		}
		if s.resolveRefIdx(i) != nil {
			continue
		}
		out = append(out, Diagnostic{
			Span:     r.Span,
			Severity: SeverityError,
			Code:     CodeUnresolved,
			Message:  fmt.Sprintf("unresolved reference: %s", r.Name),
		})
	}
	return out
}

type declGroup uint8

const (
	groupOther declGroup = iota
	groupFunction
	groupProperty
	groupClassifier
)

func groupOf(k syntax.DeclKind) declGroup {
	switch {
	case k == syntax.DeclFunction:
		return groupFunction
	case k == syntax.DeclProperty:
		return groupProperty
	case k.IsClassifier():
		return groupClassifier
	}
	return groupOther
}

// expectActual checks top-level actual declarations against the dependsOn
// closure and expect declarations against every leaf platform module that
// depends on the file's module.
func (s *Semantic) expectActual() []Diagnostic {
	var out []Diagnostic
	for _, d := range s.file.Decls {
		if d.Name == "" {
			continue
		}
		switch {
		case d.IsActual():
			if !s.counterpart(s.module.closure, d, true) {
				out = append(out, Diagnostic{
					Span:     d.NameSpan,
					Severity: SeverityError,
					Code:     CodeNoExpect,
					Message:  fmt.Sprintf("actual declaration %s has no corresponding expect declaration", d.Name),
				})
			}
		case d.HasModifier("expect"):
			for _, leaf := range s.leafDependents() {
				if !s.counterpart(leaf.closure, d, false) {
					out = append(out, Diagnostic{
						Span:     d.NameSpan,
						Severity: SeverityWarning,
						Code:     CodeNoActual,
						Message:  fmt.Sprintf("expect declaration %s has no actual in module %s", d.Name, leaf.name),
					})
				}
			}
		}
	}
	return out
}

// counterpart looks for an expect (wantExpect) or actual declaration
// matching d in the given modules.
func (s *Semantic) counterpart(mods []*module, d *syntax.Decl, wantExpect bool) bool {
	group := groupOf(d.Kind)
	for _, m := range mods {
		for _, sym := range m.packages[s.pkg][d.Name] {
			if sym.Path == s.path {
				continue
			}
			if groupOf(sym.Decl.Kind) != group {
				continue
			}
			if wantExpect && sym.Decl.HasModifier("expect") {
				return true
			}
			if !wantExpect && sym.Decl.IsActual() {
				return true
			}
		}
	}
	return false
}

// leafDependents returns modules other than the file's own that depend on it
// and have no dependents themselves.
func (s *Semantic) leafDependents() []*module {
	hasDependent := make(map[*module]bool)
	for _, m := range s.ctx.modules {
		for _, dep := range m.closure[min(1, len(m.closure)):] {
			hasDependent[dep] = true
		}
	}
	var out []*module
	for _, m := range s.ctx.modules {
		if m == s.module || hasDependent[m] {
			continue
		}
		if slices.Contains(m.closure, s.module) {
			out = append(out, m)
		}
	}
	return out
}

// redeclarations reports top-level declarations of this file that clash with
// another declaration of the same module and package.
func (s *Semantic) redeclarations() []Diagnostic {
	var out []Diagnostic
	for i, d := range s.file.Decls {
		if d.Name == "" || groupOf(d.Kind) == groupOther {
			continue
		}
		clash := false
		for _, other := range s.file.Decls[:i] {
			if conflicts(d, other) {
				clash = true
				break
			}
		}
		if !clash && s.module != nil {
			for _, sym := range s.module.packages[s.pkg][d.Name] {
				if sym.Path != s.path && conflicts(d, sym.Decl) {
					clash = true
					break
				}
			}
		}
		if clash {
			out = append(out, Diagnostic{
				Span:     d.NameSpan,
				Severity: SeverityError,
				Code:     CodeRedeclaration,
				Message:  fmt.Sprintf("conflicting declarations: %s", d.Name),
			})
		}
	}
	return out
}

func conflicts(a, b *syntax.Decl) bool {
	if a == b || a.Name != b.Name || a.HasModifier("expect") != b.HasModifier("expect") {
		return false
	}
	ga, gb := groupOf(a.Kind), groupOf(b.Kind)
	if ga != gb {
		return false
	}
	switch ga {
	case groupFunction:
		return typeText(a.Receiver) == typeText(b.Receiver) && paramTypes(a) == paramTypes(b)
	case groupProperty:
		return typeText(a.Receiver) == typeText(b.Receiver)
	}
	return true
}

func typeText(tr *syntax.TypeRef) string {
	if tr == nil {
		return ""
	}
	return strings.ReplaceAll(tr.Text, " ", "")
}

func paramTypes(d *syntax.Decl) string {
	parts := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		parts = append(parts, typeText(p.Type))
	}
	return strings.Join(parts, ",")
}

func (s *Semantic) unusedImports() []Diagnostic {
	used := make(map[string]bool)
	for i := range s.file.Refs {
		if r := &s.file.Refs[i]; r.Kind != syntax.RefImport {
			used[r.Name] = true
		}
	}
	// KDoc links count as uses
	for _, tk := range s.file.Tokens {
		if doc := tk.Doc(); doc != "" {
			for _, imp := range s.file.Imports {
				if strings.Contains(doc, "["+imp.Name+"]") {
					used[imp.Name] = true
				}
			}
		}
	}
	var out []Diagnostic
	for _, imp := range s.file.Imports {
		if imp.Star || used[imp.Name] {
			continue
		}
		if _, ok := conventionNames[imp.Name]; ok {
			continue
		}
		out = append(out, Diagnostic{
			Span:     imp.Span,
			Severity: SeverityHint,
			Code:     CodeUnusedImport,
			Message:  fmt.Sprintf("unused import: %s", imp.Path),
		})
	}
	return out
}
