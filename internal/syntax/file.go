package syntax

import (
	"sort"

	"kmpls/internal/source"
)

// Walk visits top-level declarations and their members in source order.
// Returning false from fn skips the declaration's members.
func (f *File) Walk(fn func(*Decl) bool) {
	var visit func(ds []*Decl)
	visit = func(ds []*Decl) {
		for _, d := range ds {
			if fn(d) {
				visit(d.Members)
			}
		}
	}
	visit(f.Decls)
}

// AllDecls returns every non-local declaration in preorder.
func (f *File) AllDecls() []*Decl {
	var out []*Decl
	f.Walk(func(d *Decl) bool {
		out = append(out, d)
		return true
	})
	return out
}

// DeclAt returns the declaration whose name covers off, including local
// declarations.
func (f *File) DeclAt(off uint32) *Decl {
	var found *Decl
	check := func(d *Decl) {
		if d.Name != "" && spanHit(d.NameSpan, off) {
			found = d
		}
	}
	f.Walk(func(d *Decl) bool {
		check(d)
		return found == nil
	})
	if found == nil {
		for _, d := range f.LocalDecls {
			check(d)
			for _, m := range allMembers(d) {
				check(m)
			}
			if found != nil {
				break
			}
		}
	}
	return found
}

func allMembers(d *Decl) []*Decl {
	var out []*Decl
	for _, m := range d.Members {
		out = append(out, m)
		out = append(out, allMembers(m)...)
	}
	return out
}

// EnclosingDecl returns the innermost declaration whose span contains off.
func (f *File) EnclosingDecl(off uint32) *Decl {
	var best *Decl
	f.Walk(func(d *Decl) bool {
		if d.Span.Start <= off && off <= d.Span.End {
			best = d
			return true
		}
		return false
	})
	return best
}

// spanHit treats the end offset as inside so a cursor placed right after an
// identifier still selects it.
func spanHit(sp source.Span, off uint32) bool {
	return sp.Start <= off && off <= sp.End && sp.End > sp.Start
}

// RefAt returns the index of the ref under off. A ref starting at off wins
// over one ending there.
func (f *File) RefAt(off uint32) (int, bool) {
	for i := range f.Refs {
		sp := f.Refs[i].Span
		if sp.Start <= off && off < sp.End {
			return i, true
		}
	}
	for i := range f.Refs {
		if sp := f.Refs[i].Span; sp.End == off && sp.End > sp.Start {
			return i, true
		}
	}
	return -1, false
}

// RefsNamed returns the indexes of refs with the given name.
func (f *File) RefsNamed(name string) []int {
	var out []int
	for i := range f.Refs {
		if f.Refs[i].Name == name {
			out = append(out, i)
		}
	}
	return out
}

// ScopeAt returns the innermost scope containing off.
func (f *File) ScopeAt(off uint32) *Scope {
	cur := f.Root
	for {
		var next *Scope
		for _, c := range cur.Children {
			if c.Span.Start <= off && off <= c.Span.End {
				next = c
			}
		}
		if next == nil {
			return cur
		}
		cur = next
	}
}

// LocalAt returns the local whose declaring name covers off.
func (f *File) LocalAt(off uint32) *Local {
	var found *Local
	var visit func(s *Scope)
	visit = func(s *Scope) {
		for _, l := range s.Locals {
			if l.Kind != LocalIt && spanHit(l.NameSpan, off) {
				found = l
				return
			}
		}
		for _, c := range s.Children {
			if found != nil {
				return
			}
			visit(c)
		}
	}
	visit(f.Root)
	return found
}

// VisibleLocalsAt lists locals visible at off, innermost scope first.
func (f *File) VisibleLocalsAt(off uint32) []*Local {
	var out []*Local
	for s := f.ScopeAt(off); s != nil; s = s.Parent {
		for i := len(s.Locals) - 1; i >= 0; i-- {
			l := s.Locals[i]
			if LocalVisible(l, off) {
				out = append(out, l)
			}
		}
	}
	return out
}

// LocalVisible reports whether l may be referenced at off: after its name and
// outside its own initializer.
func LocalVisible(l *Local, off uint32) bool {
	switch l.Kind {
	case LocalParam, LocalTypeParam, LocalIt, LocalSetterValue, LocalLambdaParam, LocalCatchParam:
		return true
	}
	if off < l.NameSpan.End {
		return false
	}
	if !l.Init.Empty() && l.Init.Start <= off && off <= l.Init.End {
		return false
	}
	return true
}

// TokenIndexAt returns the index of the token containing or following off.
func (f *File) TokenIndexAt(off uint32) int {
	return sort.Search(len(f.Tokens), func(i int) bool {
		return f.Tokens[i].Span.End > off
	})
}

// Import returns the non-star import introducing name.
func (f *File) Import(name string) *Import {
	for _, imp := range f.Imports {
		if !imp.Star && imp.Name == name {
			return imp
		}
	}
	return nil
}

// Text returns the source text of a span.
func (f *File) Text(sp source.Span) string { return f.Source.Text(sp) }
