package lsp

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/syntax"
)

const (
	codeActionQuickFix        = "quickfix"
	codeActionOrganizeImports = "source.organizeImports"
)

var errNoAction = errors.New("no action")

func (s *Server) handleCodeAction(msg *rpcMessage) error {
	var params codeActionParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	return s.sendResponse(msg.ID, buildCodeActions(s.sess, uri, params.Context.Diagnostics, params.Context.Only))
}

func buildCodeActions(sess *session.Session, uri string, diags []lspDiagnostic, only []string) []codeAction {
	out := []codeAction{}
	tree, ok := sess.SyntaxTree(uri)
	if !ok || tree.File == nil {
		return out
	}
	if wants(only, codeActionOrganizeImports) {
		if a, ok := organizeImportsAction(sess, uri); ok {
			out = append(out, a)
		}
	}
	if !wants(only, codeActionQuickFix) {
		return out
	}
	for _, d := range diags {
		switch d.Code {
		case analyzer.CodeUnresolved:
			out = append(out, importActions(sess, uri, tree.File, d)...)
		case analyzer.CodeUnusedImport:
			if a, ok := removeImportAction(uri, tree.File, d); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

// importActions proposes one import per top-level declaration of the
// unresolved name found in another package.
func importActions(sess *session.Session, uri string, f *syntax.File, d lspDiagnostic) []codeAction {
	tk, ok := identAt(f, offsetAt(f.Source, d.Range.Start))
	if !ok {
		return nil
	}
	name := tk.Name()
	imported := make(map[string]struct{}, len(f.Imports))
	for _, imp := range f.Imports {
		imported[imp.Path] = struct{}{}
	}
	var paths []string
	for _, decl := range sess.Declarations().FindByName(name) {
		if decl.Container != "" || decl.Package == "" || decl.Package == f.Package.Name {
			continue
		}
		q := decl.QualifiedName()
		if _, dup := imported[q]; dup {
			continue
		}
		imported[q] = struct{}{}
		paths = append(paths, q)
	}
	slices.Sort(paths)
	out := make([]codeAction, 0, len(paths))
	for _, q := range paths {
		out = append(out, codeAction{
			Title:       fmt.Sprintf("Import '%s'", q),
			Kind:        codeActionQuickFix,
			Diagnostics: []lspDiagnostic{d},
			Edit:        &workspaceEdit{Changes: map[string][]textEdit{uri: {importEdit(f, q)}}},
			IsPreferred: len(paths) == 1,
		})
	}
	return out
}

// importEdit inserts the directive after the last import, else after the
// package header, else at the top of the file.
func importEdit(f *syntax.File, path string) textEdit {
	directive := "import " + path + "\n"
	if n := len(f.Imports); n > 0 {
		line := f.Source.PositionOf(f.Imports[n-1].Span.End).Line + 1
		return insertAt(line, directive)
	}
	if f.Package.Name != "" {
		line := f.Source.PositionOf(f.Package.Span.End).Line + 1
		return insertAt(line, "\n"+directive)
	}
	return insertAt(0, directive+"\n")
}

func insertAt(line int, text string) textEdit {
	at := position{Line: line}
	return textEdit{Range: lspRange{Start: at, End: at}, NewText: text}
}

func removeImportAction(uri string, f *syntax.File, d lspDiagnostic) (codeAction, bool) {
	off := source.SafeUint32(offsetAt(f.Source, d.Range.Start))
	for _, imp := range f.Imports {
		if off < imp.Span.Start || off > imp.Span.End {
			continue
		}
		first := f.Source.PositionOf(imp.Span.Start).Line
		last := f.Source.PositionOf(imp.Span.End).Line
		del := textEdit{Range: lspRange{Start: position{Line: first}, End: position{Line: last + 1}}}
		return codeAction{
			Title:       fmt.Sprintf("Remove unused import '%s'", imp.Path),
			Kind:        codeActionQuickFix,
			Diagnostics: []lspDiagnostic{d},
			Edit:        &workspaceEdit{Changes: map[string][]textEdit{uri: {del}}},
			IsPreferred: true,
		}, true
	}
	return codeAction{}, false
}

// wants reports whether kind passes the client's "only" filter; a parent
// kind such as "source" selects its children.
func wants(only []string, kind string) bool {
	if len(only) == 0 {
		return true
	}
	for _, o := range only {
		if o == kind || strings.HasPrefix(kind, o+".") {
			return true
		}
	}
	return false
}

// organizeImportsAction sorts the import list, drops duplicates and unused
// imports. Lists with comments between directives are left alone.
func organizeImportsAction(sess *session.Session, uri string) (codeAction, bool) {
	return session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) (codeAction, error) {
		f := sem.File()
		if len(f.Imports) == 0 {
			return codeAction{}, errNoAction
		}
		first, last := f.Imports[0].Span, f.Imports[len(f.Imports)-1].Span
		for _, tk := range tokensIn(f, source.Span{File: first.File, Start: first.Start, End: last.End}) {
			for _, tv := range tk.Leading {
				if tv.IsComment() {
					return codeAction{}, errNoAction
				}
			}
		}
		unused := make(map[uint32]bool)
		for _, d := range sem.Diagnostics() {
			if d.Code == analyzer.CodeUnusedImport {
				unused[d.Span.Start] = true
			}
		}
		seen := make(map[string]bool, len(f.Imports))
		lines := make([]string, 0, len(f.Imports))
		for _, imp := range f.Imports {
			if unused[imp.Span.Start] {
				continue
			}
			text := importDirective(imp)
			if seen[text] {
				continue
			}
			seen[text] = true
			lines = append(lines, text)
		}
		slices.Sort(lines)
		var b strings.Builder
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		startLine := f.Source.PositionOf(first.Start).Line
		endLine := f.Source.PositionOf(last.End).Line + 1
		lineStart, _ := f.Source.LineBounds(startLine)
		old := ""
		if endLine < f.Source.LineCount() {
			endStart, _ := f.Source.LineBounds(endLine)
			old = string(f.Source.Content[lineStart:endStart])
		} else {
			old = string(f.Source.Content[lineStart:])
		}
		if old == b.String() {
			return codeAction{}, errNoAction
		}
		edit := textEdit{
			Range:   lspRange{Start: position{Line: startLine}, End: position{Line: endLine}},
			NewText: b.String(),
		}
		return codeAction{
			Title: "Organize imports",
			Kind:  codeActionOrganizeImports,
			Edit:  &workspaceEdit{Changes: map[string][]textEdit{uri: {edit}}},
		}, nil
	})
}

func importDirective(imp *syntax.Import) string {
	text := "import " + imp.Path
	if imp.Star {
		text += ".*"
	}
	if imp.Alias != "" {
		text += " as " + imp.Alias
	}
	return text
}
