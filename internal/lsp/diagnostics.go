package lsp

import (
	"context"
	"errors"
	"sort"
	"time"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/treesitter"
)

const (
	diagnosticSource   = "kmpls"
	treeSitterSource   = "tree-sitter"
	treeSitterCode     = "TREE_SITTER"
	treeSitterDeadline = 2 * time.Second
)

// scheduleDiagnostics (re)arms the per-document timer. The latest schedule
// wins; earlier timers that already fired drop their result.
func (s *Server) scheduleDiagnostics(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdownRequested {
		return
	}
	if t := s.diagTimers[uri]; t != nil {
		t.Stop()
	}
	s.diagSeq[uri]++
	seq := s.diagSeq[uri]
	s.diagTimers[uri] = time.AfterFunc(s.diagDelay, func() {
		s.runDiagnostics(uri, seq)
	})
}

func (s *Server) isLatestDiagnostics(uri string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.shutdownRequested && s.diagSeq[uri] == seq
}

func (s *Server) runDiagnostics(uri string, seq uint64) {
	if !s.isLatestDiagnostics(uri, seq) {
		return
	}
	list := s.collectDiagnostics(uri)
	if !s.isLatestDiagnostics(uri, seq) || !s.sess.Documents().IsOpen(uri) {
		return
	}
	s.publishDiagnostics(uri, list)
}

// refreshOpenDiagnostics schedules every open document.
func (s *Server) refreshOpenDiagnostics() {
	for _, uri := range s.sess.Documents().URIs() {
		s.scheduleDiagnostics(uri)
	}
}

func (s *Server) publishDiagnostics(uri string, list []lspDiagnostic) {
	s.mu.Lock()
	var version *int
	if v, ok := s.versions[uri]; ok {
		version = &v
	}
	if len(list) > 0 {
		s.published[uri] = struct{}{}
	} else {
		delete(s.published, uri)
	}
	s.mu.Unlock()
	if err := s.sendPublish(uri, version, list); err != nil {
		s.log.Warn("failed to publish diagnostics", "uri", uri, "err", err)
	}
}

type analyzedDiagnostics struct {
	list []analyzer.Diagnostic
	file *source.File
}

// collectDiagnostics runs the analyzer for uri. An analyzer failure yields
// an empty list.
func (s *Server) collectDiagnostics(uri string) []lspDiagnostic {
	cfg := s.currentSettings()
	res, ok := session.WithSemanticAnalysis(s.sess, uri, func(sem *analyzer.Semantic) (analyzedDiagnostics, error) {
		return analyzedDiagnostics{list: sem.Diagnostics(), file: sem.File().Source}, nil
	})
	if !ok || res.file == nil {
		return []lspDiagnostic{}
	}
	out := make([]lspDiagnostic, 0, len(res.list))
	for _, d := range res.list {
		if !cfg.unresolved && d.Code == analyzer.CodeUnresolved {
			continue
		}
		out = append(out, lspDiagnostic{
			Range:    res.file.RangeOf(d.Span),
			Severity: int(d.Severity),
			Code:     d.Code,
			Source:   diagnosticSource,
			Message:  d.Message,
		})
	}
	if s.treeSitter && cfg.treeSitter {
		out = append(out, s.treeSitterDiagnostics(res.file)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.Start.Less(out[j].Range.Start)
	})
	if len(out) > s.maxDiagnostics {
		out = out[:s.maxDiagnostics]
	}
	return out
}

func (s *Server) treeSitterDiagnostics(file *source.File) []lspDiagnostic {
	ctx, cancel := context.WithTimeout(s.baseCtx, treeSitterDeadline)
	defer cancel()
	issues, err := treesitter.Check(ctx, file.Content, treesitter.DefaultLimit)
	if err != nil {
		if !errors.Is(err, treesitter.ErrUnavailable) {
			s.log.Debug("tree-sitter check failed", "path", file.Path, "err", err)
		}
		return nil
	}
	out := make([]lspDiagnostic, 0, len(issues))
	for _, is := range issues {
		out = append(out, lspDiagnostic{
			Range:    file.RangeOf(is.Span),
			Severity: int(analyzer.SeverityWarning),
			Code:     treeSitterCode,
			Source:   treeSitterSource,
			Message:  is.Message,
		})
	}
	return out
}

func (s *Server) stopDiagnostics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, t := range s.diagTimers {
		t.Stop()
		delete(s.diagTimers, uri)
	}
}

func (s *Server) clearPublishedDiagnostics() {
	s.mu.Lock()
	uris := make([]string, 0, len(s.published))
	for uri := range s.published {
		uris = append(uris, uri)
	}
	clear(s.published)
	s.mu.Unlock()
	sort.Strings(uris)
	for _, uri := range uris {
		if err := s.sendPublish(uri, nil, nil); err != nil {
			s.log.Warn("failed to clear diagnostics", "uri", uri, "err", err)
		}
	}
}
