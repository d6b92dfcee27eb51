package lsp

import (
	"kmpls/internal/analyzer"
	"kmpls/internal/index"
	"kmpls/internal/session"
	"kmpls/internal/syntax"
)

func (s *Server) handleImplementation(msg *rpcMessage) error {
	var params textDocumentPositionParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	return s.sendResponse(msg.ID, buildImplementation(s.sess, canonicalURI(params.TextDocument.URI), params.Position))
}

// buildImplementation navigates from an expect declaration to its actual
// implementations and back.
func buildImplementation(sess *session.Session, uri string, pos position) []location {
	locs, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) ([]location, error) {
		sym, ok := sem.Resolve(semOffset(sem, pos))
		if !ok || sym.Decl == nil {
			return nil, nil
		}
		var out []location
		for _, c := range counterparts(sess, sym.Decl) {
			out = append(out, c.location())
		}
		return out, nil
	})
	if !ok || locs == nil {
		return []location{}
	}
	return locs
}

// counterpart is a declaration on the other side of an expect/actual pair.
type counterpart struct {
	uri  string
	tree *session.SyntaxTree
	decl *syntax.Decl
}

func (c counterpart) location() location {
	return location{URI: c.uri, Range: rangeForSpan(c.tree.File.Source, c.decl.NameSpan)}
}

// key matches analyzer.Symbol.Key of the counterpart declaration.
func (c counterpart) key() string {
	sym := analyzer.Symbol{Name: c.decl.Name, Path: c.tree.Path, NameSpan: c.decl.NameSpan}
	return sym.Key()
}

// counterparts returns the declarations pairing with a top-level expect or
// actual declaration.
func counterparts(sess *session.Session, d *syntax.Decl) []counterpart {
	if d == nil || d.Parent != nil || d.Local {
		return nil
	}
	var entries []index.OverrideEntry
	wantActual := false
	switch {
	case d.HasModifier("expect"):
		entries = sess.Overrides().GetImplementationsFor(d.Name)
		wantActual = true
	case d.IsActual():
		entries = sess.Overrides().GetDeclarationsFor(d.Name)
	default:
		return nil
	}
	kind, ok := index.OverrideKindOf(d.Kind)
	if !ok {
		return nil
	}
	var out []counterpart
	for _, e := range entries {
		tree, ok := sess.LoadTree(e.FileURI)
		if !ok {
			continue
		}
		cand := topLevelAt(tree.File, e.Offset, d.Name)
		if cand == nil || cand == d {
			continue
		}
		if wantActual && !cand.IsActual() || !wantActual && !cand.HasModifier("expect") {
			continue
		}
		ck, ok := index.OverrideKindOf(cand.Kind)
		if !ok || !index.Compatible(kind, ck) {
			continue
		}
		if kind == index.OverrideFunction && index.Signature(d) != index.Signature(cand) {
			continue
		}
		out = append(out, counterpart{uri: e.FileURI, tree: tree, decl: cand})
	}
	return out
}

// topLevelAt finds the top-level declaration whose name starts at offset,
// falling back to the first one with the same name.
func topLevelAt(f *syntax.File, offset int, name string) *syntax.Decl {
	var fallback *syntax.Decl
	for _, d := range f.Decls {
		if d.Name != name {
			continue
		}
		if int(d.NameSpan.Start) == offset {
			return d
		}
		if fallback == nil {
			fallback = d
		}
	}
	return fallback
}
