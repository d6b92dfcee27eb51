package lsp

import (
	"context"
	"encoding/json"

	"kmpls/internal/source"
)

// canonicalURI normalizes file URIs so every map in the server and the
// session keys documents the same way. Non-file URIs pass unchanged.
func canonicalURI(uri string) string {
	if uri == "" || !source.IsFileURI(uri) {
		return uri
	}
	path := source.URIToPath(uri)
	if path == "" {
		return uri
	}
	return source.PathToURI(path)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.versions[uri] = params.TextDocument.Version
	s.mu.Unlock()
	s.sess.UpdateDocument(uri, params.TextDocument.Text)
	s.scheduleDiagnostics(uri)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	text, _ := s.sess.Documents().Get(uri)
	text = applyChanges(text, params.ContentChanges)
	s.mu.Lock()
	old := s.versions[uri]
	s.versions[uri] = params.TextDocument.Version
	trace := s.settings.trace
	s.mu.Unlock()
	if trace {
		s.log.Debug("didChange", "uri", uri, "version", params.TextDocument.Version, "previous", old, "changes", len(params.ContentChanges))
	}
	s.sess.UpdateDocument(uri, text)
	s.scheduleDiagnostics(uri)
	return nil
}

// handleDidSave stores the saved text and rebuilds the analyzer context in
// the background.
func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	if params.Text != nil {
		s.sess.UpdateDocument(uri, *params.Text)
	}
	s.background(func() {
		if err := s.sess.ForceRebuild(context.WithoutCancel(s.baseCtx)); err != nil {
			s.log.Debug("rebuild after save", "uri", uri, "err", err)
		}
		s.refreshOpenDiagnostics()
	})
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.sess.CloseDocument(uri)
	s.mu.Lock()
	delete(s.versions, uri)
	if t := s.diagTimers[uri]; t != nil {
		t.Stop()
		delete(s.diagTimers, uri)
	}
	s.diagSeq[uri]++
	_, hadDiagnostics := s.published[uri]
	delete(s.published, uri)
	s.mu.Unlock()
	if hadDiagnostics {
		if err := s.sendPublish(uri, nil, nil); err != nil {
			s.log.Warn("failed to clear diagnostics", "uri", uri, "err", err)
		}
	}
	return nil
}
