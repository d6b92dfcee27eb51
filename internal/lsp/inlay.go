package lsp

import (
	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/syntax"
	"kmpls/internal/token"
)

const (
	inlayHintKindType      = 1
	inlayHintKindParameter = 2
)

type inlayHintConfig struct {
	types  bool
	params bool
}

func (s *Server) handleInlayHint(msg *rpcMessage) error {
	var params inlayHintParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	cfg := s.currentSettings()
	hints := buildInlayHints(s.sess, canonicalURI(params.TextDocument.URI), params.Range, inlayHintConfig{types: cfg.hintTypes, params: cfg.hintParams})
	if cfg.trace {
		s.log.Debug("inlayHint", "uri", params.TextDocument.URI, "hints", len(hints))
	}
	return s.sendResponse(msg.ID, hints)
}

func buildInlayHints(sess *session.Session, uri string, rng lspRange, cfg inlayHintConfig) []inlayHint {
	if !cfg.types && !cfg.params {
		return []inlayHint{}
	}
	hints, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) ([]inlayHint, error) {
		file := sem.File().Source
		startOff := file.OffsetOf(rng.Start)
		endOff := file.OffsetOf(rng.End)
		if endOff < startOff {
			endOff = startOff
		}
		inRange := func(off uint32) bool { return off >= startOff && off <= endOff }
		var out []inlayHint
		if cfg.types {
			out = append(out, typeHints(sem, inRange)...)
		}
		if cfg.params {
			out = append(out, parameterHints(sem, inRange)...)
		}
		return out, nil
	})
	if !ok || hints == nil {
		return []inlayHint{}
	}
	return hints
}

// typeHints shows inferred types after the names of properties and local
// variables written without one.
func typeHints(sem *analyzer.Semantic, inRange func(uint32) bool) []inlayHint {
	f := sem.File()
	var out []inlayHint
	seen := make(map[uint32]bool)
	add := func(name source.Span) {
		if name.Empty() || !inRange(name.End) || seen[name.Start] {
			return
		}
		seen[name.Start] = true
		sym, ok := sem.DeclarationAt(int(name.Start))
		if !ok {
			return
		}
		t, ok := sem.TypeOfSymbol(sym)
		if !ok {
			return
		}
		out = append(out, inlayHint{
			Position: f.Source.PositionOf(name.End),
			Label:    ": " + t.String(),
			Kind:     inlayHintKindType,
		})
	}
	for _, d := range append(f.AllDecls(), f.LocalDecls...) {
		if d.Kind == syntax.DeclProperty && d.Type == nil && !d.Init.Empty() {
			add(d.NameSpan)
		}
	}
	walkScopes(f.Root, func(l *syntax.Local) {
		if (l.Kind == syntax.LocalVal || l.Kind == syntax.LocalVar) && l.Type == nil && !l.Init.Empty() {
			add(l.NameSpan)
		}
	})
	return out
}

// parameterHints labels literal arguments of positional calls with the
// parameter name they bind to.
func parameterHints(sem *analyzer.Semantic, inRange func(uint32) bool) []inlayHint {
	f := sem.File()
	var out []inlayHint
	for i := range f.Refs {
		r := &f.Refs[i]
		if !r.Call || r.Args == 0 || !inRange(r.Span.Start) {
			continue
		}
		sym, ok := sem.ResolveRefAt(i)
		if !ok || sym.Decl == nil {
			continue
		}
		params := sym.Decl.Params
		if len(params) < 2 {
			continue
		}
		for n, arg := range positionalArgs(f.Tokens, f.TokenIndexAt(r.Span.Start)) {
			if n >= len(params) || params[n].Vararg {
				break
			}
			if arg.named {
				break
			}
			if !arg.literal || !inRange(arg.start) {
				continue
			}
			out = append(out, inlayHint{
				Position:     f.Source.PositionOf(arg.start),
				Label:        params[n].Name + ":",
				Kind:         inlayHintKindParameter,
				PaddingRight: true,
			})
		}
	}
	return out
}

type argInfo struct {
	start   uint32
	literal bool
	named   bool
}

// positionalArgs splits the parenthesized arguments of the call whose name
// token is toks[callee].
func positionalArgs(toks []token.Token, callee int) []argInfo {
	k := callee + 1
	if k < len(toks) && toks[k].Kind == token.Lt {
		depth := 0
		for ; k < len(toks); k++ {
			if toks[k].Kind == token.Lt {
				depth++
			} else if toks[k].Kind == token.Gt {
				depth--
				if depth == 0 {
					k++
					break
				}
			}
		}
	}
	if k >= len(toks) || toks[k].Kind != token.LParen {
		return nil
	}
	var out []argInfo
	depth := 0
	begin := k + 1
	flush := func(end int) {
		if begin >= end {
			return
		}
		named := end-begin >= 2 && toks[begin].Kind == token.Ident && toks[begin+1].Kind == token.Assign
		out = append(out, argInfo{
			start:   toks[begin].Span.Start,
			literal: end-begin == 1 && toks[begin].IsLiteral(),
			named:   named,
		})
	}
	for j := k + 1; j < len(toks); j++ {
		switch toks[j].Kind {
		case token.LParen, token.LBracket, token.LBrace:
			depth++
		case token.RParen, token.RBracket, token.RBrace:
			if depth == 0 {
				flush(j)
				return out
			}
			depth--
		case token.Comma:
			if depth == 0 {
				flush(j)
				begin = j + 1
			}
		case token.EOF:
			return out
		}
	}
	return out
}
