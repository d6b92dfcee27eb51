package lsp

import (
	"fmt"
	"path/filepath"
	"strings"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/source"
)

func (s *Server) handleHover(msg *rpcMessage) error {
	var params textDocumentPositionParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	result := buildHover(s.sess, canonicalURI(params.TextDocument.URI), params.Position)
	if result == nil {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, result)
}

func buildHover(sess *session.Session, uri string, pos position) *hover {
	h, ok := session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) (*hover, error) {
		return hoverAt(sess, sem, semOffset(sem, pos)), nil
	})
	if !ok {
		return nil
	}
	return h
}

func hoverAt(sess *session.Session, sem *analyzer.Semantic, off int) *hover {
	file := sem.File()
	var target source.Span
	if tk, ok := identAt(file, off); ok {
		target = tk.Span
	}
	lines := make([]string, 0, 4)
	sym, resolved := sem.Resolve(off)
	if resolved {
		if sig := sem.SignatureOf(sym); sig != "" {
			lines = append(lines, "```kotlin\n"+sig+"\n```")
		}
		if marker := expectActualMarker(sess, sym); marker != "" {
			lines = append(lines, marker)
		}
		if where := definedIn(sym); where != "" {
			lines = append(lines, where)
		}
		if sym.Decl != nil && sym.Decl.Doc != "" {
			lines = append(lines, "", sym.Decl.Doc)
		}
	}
	if !resolved || wantsTypeLine(sym) {
		if t, ok := sem.TypeOf(off); ok {
			lines = append(lines, "Type: `"+t.String()+"`")
		}
	}
	if len(lines) == 0 {
		return nil
	}
	h := &hover{Contents: markupContent{Kind: "markdown", Value: strings.Join(lines, "\n")}}
	if !target.Empty() {
		r := rangeForSpan(file.Source, target)
		h.Range = &r
	}
	return h
}

// wantsTypeLine reports whether the signature alone hides the value type,
// as for calls and locals without a written type.
func wantsTypeLine(sym *analyzer.Symbol) bool {
	switch sym.Kind {
	case analyzer.SymFunction, analyzer.SymConstructor:
		return true
	case analyzer.SymLocal, analyzer.SymParam:
		return sym.Local != nil && sym.Local.Type == nil
	}
	return false
}

func expectActualMarker(sess *session.Session, sym *analyzer.Symbol) string {
	switch {
	case sym.IsExpect():
		n := len(sess.Overrides().GetImplementationsFor(sym.Name))
		switch n {
		case 0:
			return "*expect* declaration, no actual implementations"
		case 1:
			return "*expect* declaration, 1 actual implementation"
		default:
			return fmt.Sprintf("*expect* declaration, %d actual implementations", n)
		}
	case sym.IsActual():
		return "*actual* declaration"
	}
	return ""
}

func definedIn(sym *analyzer.Symbol) string {
	if sym.Builtin {
		return "Built-in"
	}
	if !sym.HasLocation() || sym.Local != nil || sym.Param != nil {
		return ""
	}
	where := "Defined in `" + filepath.Base(sym.Path) + "`"
	if sym.Module != "" {
		where += " (module `" + sym.Module + "`)"
	}
	return where
}
