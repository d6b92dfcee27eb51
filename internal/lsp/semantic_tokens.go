package lsp

import (
	"cmp"
	"slices"
	"strings"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

// Token types, in legend order.
const (
	semKeyword uint32 = iota
	semModifier
	semString
	semNumber
	semComment
	semOperator
	semType
	semFunction
	semProperty
	semParameter
	semVariable
	semEnumMember
	semNamespace
)

// Token modifier bits, in legend order.
const (
	semModDeclaration uint32 = 1 << iota
	semModReadonly
)

func semanticLegend() semanticTokensLegend {
	return semanticTokensLegend{
		TokenTypes: []string{
			"keyword", "modifier", "string", "number", "comment", "operator",
			"type", "function", "property", "parameter", "variable", "enumMember", "namespace",
		},
		TokenModifiers: []string{"declaration", "readonly"},
	}
}

type semToken struct {
	span source.Span
	typ  uint32
	mods uint32
}

func (s *Server) handleSemanticTokens(msg *rpcMessage) error {
	var params semanticTokensParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	return s.sendResponse(msg.ID, buildSemanticTokens(s.sess, canonicalURI(params.TextDocument.URI)))
}

func buildSemanticTokens(sess *session.Session, uri string) semanticTokens {
	data, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) ([]uint32, error) {
		return encodeSemanticTokens(sem.File().Source, collectSemanticTokens(sem)), nil
	})
	if !ok || data == nil {
		return semanticTokens{Data: []uint32{}}
	}
	return semanticTokens{Data: data}
}

func collectSemanticTokens(sem *analyzer.Semantic) []semToken {
	f := sem.File()
	var out []semToken
	names := make(map[uint32]semToken)
	addName := func(sp source.Span, typ, mods uint32) {
		if sp.Empty() {
			return
		}
		if _, dup := names[sp.Start]; !dup {
			names[sp.Start] = semToken{span: sp, typ: typ, mods: mods}
		}
	}

	for _, d := range append(f.AllDecls(), f.LocalDecls...) {
		typ, mods := declSemantic(d)
		addName(d.NameSpan, typ, mods|semModDeclaration)
		for _, p := range d.Params {
			if p.Property && d.Kind.IsClassifier() {
				mods := semModDeclaration
				if !p.Mutable {
					mods |= semModReadonly
				}
				addName(p.NameSpan, semProperty, mods)
				continue
			}
			addName(p.NameSpan, semParameter, semModDeclaration)
		}
		for _, tp := range d.TypeParams {
			addName(nameSpanIn(f, tp.Span, tp.Name), semType, semModDeclaration)
		}
	}
	walkScopes(f.Root, func(l *syntax.Local) {
		switch l.Kind {
		case syntax.LocalVal, syntax.LocalLoopVar:
			addName(l.NameSpan, semVariable, semModDeclaration|semModReadonly)
		case syntax.LocalVar:
			addName(l.NameSpan, semVariable, semModDeclaration)
		case syntax.LocalParam, syntax.LocalLambdaParam, syntax.LocalCatchParam, syntax.LocalSetterValue:
			addName(l.NameSpan, semParameter, semModDeclaration)
		case syntax.LocalTypeParam:
			addName(l.NameSpan, semType, semModDeclaration)
		}
	})
	if f.Package.Name != "" {
		for _, tk := range tokensIn(f, f.Package.Span) {
			if tk.Kind == token.Ident {
				addName(tk.Span, semNamespace, 0)
			}
		}
	}
	for i := range f.Refs {
		r := &f.Refs[i]
		if r.Kind == syntax.RefNamedArg {
			addName(r.Span, semParameter, 0)
			continue
		}
		sym, ok := sem.ResolveRefAt(i)
		if !ok {
			continue
		}
		if typ, ok := symbolSemantic(sym); ok {
			addName(r.Span, typ, symbolReadonly(sym))
		}
	}
	for _, imp := range f.Imports {
		for _, tk := range tokensIn(f, imp.PathSpan) {
			if tk.Kind == token.Ident {
				addName(tk.Span, semNamespace, 0)
			}
		}
	}

	for _, tk := range f.Tokens {
		for _, tv := range tk.Leading {
			if tv.IsComment() {
				out = append(out, semToken{span: tv.Span, typ: semComment})
			}
		}
		switch {
		case tk.Kind == token.EOF:
		case tk.IsKeyword():
			out = append(out, semToken{span: tk.Span, typ: semKeyword})
		case tk.Kind == token.IntLit || tk.Kind == token.FloatLit:
			out = append(out, semToken{span: tk.Span, typ: semNumber})
		case tk.Kind == token.StringLit || tk.Kind == token.RawStringLit || tk.Kind == token.CharLit:
			out = append(out, semToken{span: tk.Span, typ: semString})
		case tk.Kind == token.Ident:
			if n, ok := names[tk.Span.Start]; ok {
				out = append(out, n)
			} else if token.IsModifier(tk.Text) {
				out = append(out, semToken{span: tk.Span, typ: semModifier})
			} else if isSoftKeyword(tk.Text) {
				out = append(out, semToken{span: tk.Span, typ: semKeyword})
			}
		case isOperator(tk.Kind):
			out = append(out, semToken{span: tk.Span, typ: semOperator})
		}
	}
	slices.SortStableFunc(out, func(a, b semToken) int { return cmp.Compare(a.span.Start, b.span.Start) })
	return out
}

var softKeywords = map[string]struct{}{
	"constructor": {}, "init": {}, "by": {}, "where": {}, "get": {}, "set": {},
	"field": {}, "it": {},
}

func isSoftKeyword(word string) bool {
	_, ok := softKeywords[word]
	return ok
}

func isOperator(k token.Kind) bool {
	switch k {
	case token.LParen, token.RParen, token.LBrace, token.RBrace, token.LBracket, token.RBracket,
		token.Comma, token.Dot, token.Semicolon, token.Colon, token.At, token.Hash, token.Dollar:
		return false
	}
	return k >= token.Plus && k <= token.Dollar
}

func declSemantic(d *syntax.Decl) (uint32, uint32) {
	switch d.Kind {
	case syntax.DeclFunction, syntax.DeclConstructor:
		return semFunction, 0
	case syntax.DeclProperty:
		if d.Mutable {
			return semProperty, 0
		}
		return semProperty, semModReadonly
	case syntax.DeclEnumEntry:
		return semEnumMember, semModReadonly
	}
	return semType, 0
}

func symbolSemantic(sym *analyzer.Symbol) (uint32, bool) {
	switch sym.Kind {
	case analyzer.SymClass, analyzer.SymInterface, analyzer.SymObject, analyzer.SymEnum,
		analyzer.SymTypeAlias, analyzer.SymTypeParam:
		return semType, true
	case analyzer.SymFunction, analyzer.SymConstructor:
		return semFunction, true
	case analyzer.SymProperty:
		return semProperty, true
	case analyzer.SymParam:
		return semParameter, true
	case analyzer.SymLocal:
		return semVariable, true
	case analyzer.SymEnumEntry:
		return semEnumMember, true
	case analyzer.SymPackage:
		return semNamespace, true
	}
	return 0, false
}

func symbolReadonly(sym *analyzer.Symbol) uint32 {
	switch {
	case sym.Decl != nil && sym.Decl.Kind == syntax.DeclProperty && !sym.Decl.Mutable:
		return semModReadonly
	case sym.Param != nil && sym.Param.Property && !sym.Param.Mutable:
		return semModReadonly
	case sym.Local != nil && (sym.Local.Kind == syntax.LocalVal || sym.Local.Kind == syntax.LocalLoopVar):
		return semModReadonly
	case sym.Kind == analyzer.SymEnumEntry:
		return semModReadonly
	}
	return 0
}

func walkScopes(sc *syntax.Scope, fn func(*syntax.Local)) {
	if sc == nil {
		return
	}
	for _, l := range sc.Locals {
		fn(l)
	}
	for _, child := range sc.Children {
		walkScopes(child, fn)
	}
}

// tokensIn returns the tokens starting inside sp.
func tokensIn(f *syntax.File, sp source.Span) []token.Token {
	if sp.Empty() {
		return nil
	}
	start := f.TokenIndexAt(sp.Start)
	end := start
	for end < len(f.Tokens) && f.Tokens[end].Span.Start < sp.End {
		end++
	}
	return f.Tokens[start:end]
}

// nameSpanIn finds the identifier spelling name inside sp.
func nameSpanIn(f *syntax.File, sp source.Span, name string) source.Span {
	for _, tk := range tokensIn(f, sp) {
		if tk.Kind == token.Ident && tk.Name() == name {
			return tk.Span
		}
	}
	return source.Span{}
}

// encodeSemanticTokens emits the relative five-integer encoding. Tokens
// spanning lines are split per line and overlapping ones are dropped.
func encodeSemanticTokens(file *source.File, toks []semToken) []uint32 {
	data := make([]uint32, 0, len(toks)*5)
	var prevLine, prevChar int
	var lastEnd uint32
	for _, t := range toks {
		if t.span.Start < lastEnd || t.span.Empty() {
			continue
		}
		lastEnd = t.span.End
		for _, piece := range splitLines(file, t.span) {
			start := file.PositionOf(piece.Start)
			text := string(file.Content[piece.Start:piece.End])
			length := source.SafeUint32(source.UTF16Len(text))
			if length == 0 {
				continue
			}
			deltaLine := start.Line - prevLine
			deltaChar := start.Character
			if deltaLine == 0 {
				deltaChar -= prevChar
			}
			data = append(data, source.SafeUint32(deltaLine), source.SafeUint32(deltaChar), length, t.typ, t.mods)
			prevLine, prevChar = start.Line, start.Character
		}
	}
	return data
}

func splitLines(file *source.File, sp source.Span) []source.Span {
	text := string(file.Content[sp.Start:sp.End])
	if !strings.ContainsRune(text, '\n') {
		return []source.Span{sp}
	}
	var out []source.Span
	at := sp.Start
	for _, line := range strings.SplitAfter(text, "\n") {
		end := at + source.SafeUint32(len(line))
		body := strings.TrimRight(line, "\r\n")
		if body != "" {
			out = append(out, source.Span{File: sp.File, Start: at, End: at + source.SafeUint32(len(body))})
		}
		at = end
	}
	return out
}
