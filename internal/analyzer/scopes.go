package analyzer

import (
	"cmp"
	"slices"

	"kmpls/internal/source"
	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

// ScopeLevel tells where a group of completion candidates comes from.
type ScopeLevel uint8

const (
	LevelLocal ScopeLevel = iota
	LevelMembers
	LevelFile
	LevelPackage
	LevelImports
	LevelBuiltins
)

// Scope is one level of names visible at a position.
type Scope struct {
	Level   ScopeLevel
	Symbols []*Symbol
}

// ScopesAt returns the names visible at offset, innermost level first.
// Implicit receiver members are reported by ImplicitReceivers.
func (s *Semantic) ScopesAt(offset int) []Scope {
	off := source.SafeUint32(offset)
	var out []Scope
	for sc := s.file.ScopeAt(off); sc != nil; sc = sc.Parent {
		var syms []*Symbol
		for i := len(sc.Locals) - 1; i >= 0; i-- {
			l := sc.Locals[i]
			if l.Kind != syntax.LocalTypeParam && syntax.LocalVisible(l, off) {
				syms = append(syms, localSymbol(l, s.path, s.Module(), s.pkg))
			}
		}
		if len(syms) > 0 {
			out = append(out, Scope{Level: LevelLocal, Symbols: syms})
		}
		if sc.Kind == syntax.ScopeClass && sc.Owner != nil {
			out = append(out, Scope{Level: LevelMembers, Symbols: s.staticMembers(sc.Owner)})
		}
	}

	var file []*Symbol
	for _, d := range s.file.Decls {
		if d.Name != "" && d.Receiver == nil {
			file = append(file, declSymbol(d, s.path, s.Module(), s.pkg))
		}
	}
	out = append(out, Scope{Level: LevelFile, Symbols: file})

	if s.module != nil {
		var pkg []*Symbol
		for _, m := range s.module.closure {
			for _, syms := range m.packages[s.pkg] {
				for _, sym := range syms {
					if sym.Path != s.path && sym.Decl.Receiver == nil {
						pkg = append(pkg, sym)
					}
				}
			}
		}
		slices.SortFunc(pkg, symbolCmp)
		out = append(out, Scope{Level: LevelPackage, Symbols: pkg})
	}

	var imported []*Symbol
	for _, imp := range s.file.Imports {
		if imp.Star {
			if s.ctx == nil {
				continue
			}
			for _, m := range s.ctx.modules {
				for _, syms := range m.packages[imp.Path] {
					for _, sym := range syms {
						if sym.Decl.Receiver == nil {
							imported = append(imported, sym)
						}
					}
				}
			}
			continue
		}
		sym := s.resolveQualified(imp.Path)
		if imp.Alias != "" {
			alias := *sym
			alias.Name = imp.Alias
			sym = &alias
		}
		imported = append(imported, sym)
	}
	out = append(out, Scope{Level: LevelImports, Symbols: imported})

	p := prelude()
	var builtins []*Symbol
	for _, d := range p.file.Decls {
		if d.Name != "" && d.Receiver == nil {
			builtins = append(builtins, declSymbol(d, PreludePath, "", "kotlin"))
		}
	}
	out = append(out, Scope{Level: LevelBuiltins, Symbols: builtins})
	return out
}

func symbolCmp(a, b *Symbol) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	return cmp.Compare(a.NameSpan.Start, b.NameSpan.Start)
}

// staticMembers lists what a class body sees without a receiver: its own
// members, companion members and nested classifiers.
func (s *Semantic) staticMembers(owner *syntax.Decl) []*Symbol {
	out := s.membersOfDecl(owner, make(map[*syntax.Decl]bool))
	for _, m := range owner.Members {
		if m.Companion {
			out = append(out, s.membersOfDecl(m, make(map[*syntax.Decl]bool))...)
		}
	}
	return out
}

// StaticMembersOf lists what may follow "Name." for a classifier symbol:
// companion members, nested classifiers, enum entries and object members.
func (s *Semantic) StaticMembersOf(sym *Symbol) []*Symbol {
	if sym == nil || sym.Decl == nil || !sym.Kind.IsClassifier() {
		return nil
	}
	v := s.view(sym.Path)
	if v == nil {
		return nil
	}
	d := sym.Decl
	if d.Kind == syntax.DeclObject {
		return v.MembersOf(Type{Name: d.Name, Decl: d, Path: sym.Path})
	}
	var out []*Symbol
	for _, m := range d.Members {
		switch {
		case m.Companion:
			out = append(out, v.membersOfDecl(m, make(map[*syntax.Decl]bool))...)
		case m.Kind.IsClassifier() || m.Kind == syntax.DeclEnumEntry:
			out = append(out, declSymbol(m, sym.Path, sym.Module, sym.Package))
		}
	}
	return out
}

// MembersOf lists members callable on a value of type t: declared members,
// inherited members, applicable extensions and the members of Any.
func (s *Semantic) MembersOf(t Type) []*Symbol {
	type seenKey struct {
		name string
		kind SymbolKind
	}
	seen := make(map[seenKey]bool)
	var out []*Symbol
	add := func(syms []*Symbol) {
		for _, sym := range syms {
			k := seenKey{sym.Name, sym.Kind}
			if sym.Kind == SymFunction || !seen[k] {
				seen[k] = true
				out = append(out, sym)
			}
		}
	}
	if t.Decl != nil {
		if v := s.view(t.Path); v != nil {
			add(v.membersOfDecl(t.Decl, make(map[*syntax.Decl]bool)))
		}
	}
	add(s.allExtensionsFor(t))
	if anyCls := firstClassifier(prelude().byName["Any"]); anyCls != nil && t.Decl != anyCls.Decl {
		add(s.view(PreludePath).membersOfDecl(anyCls.Decl, make(map[*syntax.Decl]bool)))
	}
	return out
}

// membersOfDecl collects instance members of owner and its supertypes.
func (s *Semantic) membersOfDecl(owner *syntax.Decl, seen map[*syntax.Decl]bool) []*Symbol {
	if owner == nil || seen[owner] {
		return nil
	}
	seen[owner] = true
	var out []*Symbol
	if owner.Kind.IsClassifier() {
		for _, p := range owner.Params {
			if p.Property {
				out = append(out, paramSymbol(p, owner, s.path, s.Module(), s.pkg))
			}
		}
	}
	for _, m := range owner.Members {
		if m.Name == "" || m.Kind == syntax.DeclConstructor || m.Companion || m.Receiver != nil {
			continue
		}
		if m.Kind.IsClassifier() {
			continue
		}
		out = append(out, declSymbol(m, s.path, s.Module(), s.pkg))
	}
	for _, st := range owner.Supertypes {
		t := s.typeFromRef(st, nil)
		if v := s.view(t.Path); t.Decl != nil && v != nil {
			out = append(out, v.membersOfDecl(t.Decl, seen)...)
		}
	}
	if owner.Kind == syntax.DeclEnum {
		if enum := firstClassifier(prelude().byName["Enum"]); enum != nil {
			out = append(out, s.view(PreludePath).membersOfDecl(enum.Decl, seen)...)
		}
	}
	return out
}

// allExtensionsFor lists every visible extension whose receiver accepts t.
func (s *Semantic) allExtensionsFor(t Type) []*Symbol {
	names := make(map[string]struct{})
	for _, d := range s.file.Decls {
		if d.Receiver != nil {
			names[d.Name] = struct{}{}
		}
	}
	if s.module != nil {
		for _, m := range s.module.closure {
			for name, syms := range m.packages[s.pkg] {
				for _, sym := range syms {
					if sym.Decl.Receiver != nil {
						names[name] = struct{}{}
					}
				}
			}
		}
	}
	if s.ctx != nil {
		for _, imp := range s.file.Imports {
			for _, m := range s.ctx.modules {
				pkg := imp.Path
				if !imp.Star {
					pkg = parentPackage(imp.Path)
				}
				for name, syms := range m.packages[pkg] {
					if !imp.Star && name != imp.Name {
						continue
					}
					for _, sym := range syms {
						if sym.Decl.Receiver != nil {
							names[name] = struct{}{}
						}
					}
				}
			}
		}
	}
	for name := range prelude().exts {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	slices.Sort(sorted)
	var out []*Symbol
	for _, name := range sorted {
		out = append(out, s.extensionsFor(t, name)...)
	}
	return out
}

func parentPackage(q string) string {
	for i := len(q) - 1; i >= 0; i-- {
		if q[i] == '.' {
			return q[:i]
		}
	}
	return ""
}

// ImplicitReceivers returns the types of this at offset, innermost first.
func (s *Semantic) ImplicitReceivers(offset int) []Type {
	off := source.SafeUint32(offset)
	var out []Type
	for sc := s.file.ScopeAt(off); sc != nil; sc = sc.Parent {
		switch sc.Kind {
		case syntax.ScopeLambda:
			if recv, ok := s.lambdaReceiver(sc); ok {
				out = append(out, recv)
			}
		case syntax.ScopeFunction:
			if sc.Owner != nil && sc.Owner.Receiver != nil {
				if t := s.typeFromRef(sc.Owner.Receiver, s.declBind(sc.Owner, nil)); !t.IsZero() {
					out = append(out, t)
				}
			}
		case syntax.ScopeClass:
			if sc.Owner != nil {
				out = append(out, s.declType(sc.Owner))
			}
		}
	}
	return out
}

// ReceiverBefore describes the expression left of the "." or "?." ending
// right before offset. For a bare classifier name the classifier itself is
// returned so callers can offer static members.
func (s *Semantic) ReceiverBefore(offset int) (Type, *Symbol, bool) {
	toks := s.file.Tokens
	off := source.SafeUint32(offset)
	k := s.file.TokenIndexAt(off)
	// step back to the dot: the cursor may sit after a partial identifier
	for k > 0 && (k >= len(toks) || toks[k].Span.Start >= off || toks[k].Kind == token.EOF) {
		k--
	}
	if k < len(toks) && toks[k].Kind == token.Ident && k > 0 {
		k--
	}
	if k <= 0 || k >= len(toks) || (toks[k].Kind != token.Dot && toks[k].Kind != token.QuestionDot) {
		return Type{}, nil, false
	}
	end := k
	start := chainStart(toks, end)
	if start >= end {
		return Type{}, nil, false
	}
	if start == end-1 && toks[start].Kind == token.Ident {
		if idx, ok := s.refIndex(toks[start].Span.Start); ok {
			if sym := s.resolveRefIdx(idx); sym != nil && (sym.Kind.IsClassifier() || sym.Kind == SymPackage) {
				t := s.classifierType(sym, sym.Name, nil, false)
				return t, sym, true
			}
		}
	}
	t := s.exprType(spanOf(toks, start, end))
	return t, nil, !t.IsZero()
}

// chainStart walks back over a postfix chain ending before toks[end].
func chainStart(toks []token.Token, end int) int {
	i := end - 1
	for i >= 0 {
		switch toks[i].Kind {
		case token.RParen, token.RBracket, token.RBrace:
			open := matchOpen(toks, i)
			if open < 0 {
				return end
			}
			i = open - 1
			continue
		case token.BangBang:
			i--
			continue
		case token.Ident, token.KwThis, token.StringLit, token.RawStringLit, token.IntLit, token.FloatLit, token.CharLit:
			if i > 0 && (toks[i-1].Kind == token.Dot || toks[i-1].Kind == token.QuestionDot) && !toks[i].NewlineBefore() {
				i -= 2
				continue
			}
			return i
		}
		return i + 1
	}
	return 0
}

func matchOpen(toks []token.Token, closeIdx int) int {
	var open token.Kind
	closer := toks[closeIdx].Kind
	switch closer {
	case token.RParen:
		open = token.LParen
	case token.RBracket:
		open = token.LBracket
	case token.RBrace:
		open = token.LBrace
	default:
		return -1
	}
	depth := 0
	for i := closeIdx; i >= 0; i-- {
		switch toks[i].Kind {
		case closer:
			depth++
		case open:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
