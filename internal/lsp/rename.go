package lsp

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/token"
)

var errNotRenamable = errors.New("symbol cannot be renamed")

func (s *Server) handlePrepareRename(msg *rpcMessage) error {
	var params textDocumentPositionParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	result, ok := buildPrepareRename(s.sess, canonicalURI(params.TextDocument.URI), params.Position)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleRename(msg *rpcMessage) error {
	var params renameParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	edit, err := buildRename(s.sess, canonicalURI(params.TextDocument.URI), params.Position, params.NewName)
	if err != nil {
		return s.sendError(msg.ID, codeRequestFailed, err.Error())
	}
	return s.sendResponse(msg.ID, edit)
}

func buildPrepareRename(sess *session.Session, uri string, pos position) (prepareRenameResult, bool) {
	return session.WithSemanticAnalysis(sess, uri, func(sem *analyzer.Semantic) (prepareRenameResult, error) {
		off := semOffset(sem, pos)
		tk, ok := identAt(sem.File(), off)
		if !ok {
			return prepareRenameResult{}, errNotRenamable
		}
		sym, ok := sem.Resolve(off)
		if !ok || !renamable(sym) {
			return prepareRenameResult{}, errNotRenamable
		}
		return prepareRenameResult{
			Range:       rangeForSpan(sem.File().Source, tk.Span),
			Placeholder: tk.Name(),
		}, nil
	})
}

func renamable(sym *analyzer.Symbol) bool {
	if !sym.HasLocation() {
		return false
	}
	switch sym.Kind {
	case analyzer.SymExternal, analyzer.SymPackage, analyzer.SymConstructor:
		return false
	}
	return true
}

// buildRename edits every reference of the symbol, its declaration and the
// declarations pairing with it across expect and actual.
func buildRename(sess *session.Session, uri string, pos position, newName string) (*workspaceEdit, error) {
	if !validIdentifier(newName) {
		return nil, fmt.Errorf("%q is not a valid identifier", newName)
	}
	t, ok := resolveTarget(sess, uri, pos, true)
	if !ok {
		return nil, errNotRenamable
	}
	if t.builtin {
		return nil, fmt.Errorf("%s is built in and cannot be renamed", t.name)
	}
	edit := &workspaceEdit{Changes: make(map[string][]textEdit)}
	for _, loc := range findReferences(sess, t, true) {
		edit.Changes[loc.URI] = append(edit.Changes[loc.URI], textEdit{Range: loc.Range, NewText: newName})
	}
	return edit, nil
}

// validIdentifier accepts plain identifiers that are not hard keywords and
// backticked names.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	if len(name) > 2 && name[0] == '`' && name[len(name)-1] == '`' {
		inner := name[1 : len(name)-1]
		for _, r := range inner {
			if r == '`' || r == '\n' || r == '\r' {
				return false
			}
		}
		return true
	}
	if _, kw := token.LookupKeyword(name); kw {
		return false
	}
	first, _ := utf8.DecodeRuneInString(name)
	if first != '_' && !unicode.IsLetter(first) {
		return false
	}
	for _, r := range name {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
