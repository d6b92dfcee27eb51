package lsp

import (
	"cmp"
	"slices"
	"strings"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/source"
)

func (s *Server) handleReferences(msg *rpcMessage) error {
	var params referenceParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	return s.sendResponse(msg.ID, buildReferences(s.sess, uri, params.Position, params.Context.IncludeDeclaration))
}

// refTarget is the canonical identity of the symbol being searched for.
type refTarget struct {
	name   string
	origin string
	// keys holds the symbol key and, for rename, the expect/actual
	// counterparts' keys.
	keys  map[string]struct{}
	decls []location
	// local targets (parameters, locals) are searched in origin only.
	local   bool
	builtin bool
}

func resolveTarget(sess *session.Session, uri string, pos position, withCounterparts bool) (*refTarget, bool) {
	t, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) (*refTarget, error) {
		off := semOffset(sem, pos)
		if _, ok := identAt(sem.File(), off); !ok {
			return nil, nil
		}
		sym, ok := sem.Resolve(off)
		if !ok {
			return nil, nil
		}
		t := &refTarget{
			name:    sym.Name,
			origin:  uri,
			keys:    map[string]struct{}{identity(sess, sem, sym): {}},
			builtin: !sym.HasLocation(),
		}
		switch sym.Kind {
		case analyzer.SymLocal, analyzer.SymParam, analyzer.SymTypeParam:
			t.local = true
		}
		if loc, ok := symbolLocation(sess, sem, sym); ok {
			t.decls = append(t.decls, loc)
		}
		if withCounterparts && sym.Decl != nil {
			for _, c := range counterparts(sess, sym.Decl) {
				t.keys[c.key()] = struct{}{}
				t.decls = append(t.decls, c.location())
			}
		}
		return t, nil
	})
	return t, ok && t != nil
}

// candidateFiles lists the URIs that may mention the target name. The
// reference index answers when it knows the name; otherwise every source
// file and open document is filtered by substring.
func candidateFiles(sess *session.Session, t *refTarget) []string {
	if t.local {
		return []string{t.origin}
	}
	seen := map[string]struct{}{t.origin: {}}
	for _, d := range t.decls {
		seen[d.URI] = struct{}{}
	}
	if files, ok := sess.References().FilesFor(t.name); ok {
		for _, uri := range files {
			seen[uri] = struct{}{}
		}
	} else {
		uris := sess.Documents().URIs()
		for _, path := range sess.SourceFiles() {
			uris = append(uris, source.PathToURI(path))
		}
		for _, uri := range uris {
			if text, ok := sess.ReadText(uri); ok && strings.Contains(text, t.name) {
				seen[uri] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for uri := range seen {
		out = append(out, uri)
	}
	slices.Sort(out)
	return out
}

// referencesIn resolves every same-named reference of one file and keeps
// those pointing at the target.
func referencesIn(sess *session.Session, uri string, t *refTarget) []location {
	locs, _ := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) ([]location, error) {
		f := sem.File()
		var out []location
		for i := range f.Refs {
			if f.Refs[i].Name != t.name {
				continue
			}
			sym, ok := sem.ResolveRefAt(i)
			if !ok {
				continue
			}
			if _, hit := t.keys[identity(sess, sem, sym)]; hit {
				out = append(out, location{URI: uri, Range: rangeForSpan(f.Source, f.Refs[i].Span)})
			}
		}
		return out, nil
	})
	return locs
}

func findReferences(sess *session.Session, t *refTarget, includeDecl bool) []location {
	var out []location
	if includeDecl {
		out = append(out, t.decls...)
	}
	for _, uri := range candidateFiles(sess, t) {
		out = append(out, referencesIn(sess, uri, t)...)
	}
	return dedupeLocations(out)
}

func buildReferences(sess *session.Session, uri string, pos position, includeDecl bool) []location {
	t, ok := resolveTarget(sess, uri, pos, false)
	if !ok || t.builtin {
		return []location{}
	}
	return findReferences(sess, t, includeDecl)
}

func dedupeLocations(locs []location) []location {
	if len(locs) == 0 {
		return []location{}
	}
	slices.SortFunc(locs, compareLocations)
	return slices.CompactFunc(locs, func(a, b location) bool { return a == b })
}

func compareLocations(a, b location) int {
	if c := cmp.Compare(a.URI, b.URI); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Range.Start.Line, b.Range.Start.Line); c != 0 {
		return c
	}
	return cmp.Compare(a.Range.Start.Character, b.Range.Start.Character)
}
