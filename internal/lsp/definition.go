package lsp

import (
	"kmpls/internal/analyzer"
	"kmpls/internal/index"
	"kmpls/internal/session"
)

func (s *Server) handleDefinition(msg *rpcMessage) error {
	var params textDocumentPositionParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	return s.sendResponse(msg.ID, buildDefinition(s.sess, canonicalURI(params.TextDocument.URI), params.Position))
}

// buildDefinition resolves the name under the cursor. On an actual
// declaration's own name it jumps to the expect side; names the analyzer
// cannot resolve fall back to the declaration index.
func buildDefinition(sess *session.Session, uri string, pos position) []location {
	locs, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) ([]location, error) {
		off := semOffset(sem, pos)
		tk, ok := identAt(sem.File(), off)
		if !ok {
			return nil, nil
		}
		if sym, ok := sem.Resolve(off); ok {
			site, located := siteOf(sess, sem, sym)
			atName := located && site.path == sem.File().Path && site.span == tk.Span
			if atName && sym.IsActual() {
				if cs := counterparts(sess, sym.Decl); len(cs) > 0 {
					locs := make([]location, 0, len(cs))
					for _, c := range cs {
						locs = append(locs, c.location())
					}
					return locs, nil
				}
			}
			if located {
				return []location{{URI: site.uri, Range: rangeForSpan(site.file, site.span)}}, nil
			}
			if sym.Builtin {
				return nil, nil
			}
		}
		return indexDefinitions(sess, tk.Name(), sem.File().Package.Name), nil
	})
	if !ok || locs == nil {
		return []location{}
	}
	return locs
}

// indexDefinitions looks a name up in the declaration index, same package
// first.
func indexDefinitions(sess *session.Session, name, pkg string) []location {
	decls := sess.Declarations().FindByNameInPackage(name, pkg)
	if len(decls) == 0 {
		decls = sess.Declarations().FindByName(name)
	}
	out := make([]location, 0, len(decls))
	for _, d := range decls {
		if d.Kind == index.KindConstructor {
			continue
		}
		out = append(out, declarationLocation(d))
	}
	return out
}
