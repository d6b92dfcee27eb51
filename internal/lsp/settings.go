package lsp

import "encoding/json"

func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	if len(msg.Params) == 0 {
		return nil
	}
	var params didChangeConfigurationParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	if s.applySettings(params.Settings) {
		s.refreshOpenDiagnostics()
	}
	return nil
}

// applySettings merges the "kmpls" section and reports whether a
// diagnostics-relevant value changed.
func (s *Server) applySettings(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var settings lspSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return false
	}
	cfg := settings.Kmpls
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.settings
	if cfg.Trace != nil {
		s.settings.trace = *cfg.Trace
	}
	if cfg.Completion.Keywords != nil {
		s.settings.keywords = *cfg.Completion.Keywords
	}
	if cfg.Diagnostics.Unresolved != nil {
		s.settings.unresolved = *cfg.Diagnostics.Unresolved
	}
	if cfg.Diagnostics.TreeSitter != nil {
		s.settings.treeSitter = *cfg.Diagnostics.TreeSitter
	}
	if cfg.InlayHints.Types != nil {
		s.settings.hintTypes = *cfg.InlayHints.Types
	}
	if cfg.InlayHints.ParameterNames != nil {
		s.settings.hintParams = *cfg.InlayHints.ParameterNames
	}
	return before.unresolved != s.settings.unresolved || before.treeSitter != s.settings.treeSitter
}
