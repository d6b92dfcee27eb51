package lsp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"kmpls/internal/project"
	"kmpls/internal/source"
	"kmpls/internal/watch"
)

// startWorkspace indexes the workspace in the background. Requests wait for
// it; notifications do not.
func (s *Server) startWorkspace() {
	s.mu.Lock()
	root := s.workspaceRoot
	if root == "" || s.ready != nil {
		s.mu.Unlock()
		return
	}
	ready := make(chan struct{})
	s.ready = ready
	s.mu.Unlock()

	s.background(func() {
		defer close(ready)
		s.loadWorkspace(s.baseCtx, root)
	})
}

// loadWorkspace imports the descriptor and initializes the session.
func (s *Server) loadWorkspace(ctx context.Context, root string) {
	done := s.beginProgress("Indexing workspace")
	desc := s.importDescriptor(root)
	fp, err := project.Fingerprint(desc)
	if err != nil {
		s.log.Warn("descriptor fingerprint", "err", err)
	}
	s.mu.Lock()
	s.fingerprint = fp
	s.mu.Unlock()
	if err := s.sess.Initialize(ctx, root, desc); err != nil {
		s.log.Error("workspace initialization failed", "root", root, "err", err)
	}
	st := s.sess.Stats()
	done("indexed")
	s.log.Info("workspace ready", "root", root, "modules", st.Modules, "declarations", st.Declarations,
		"expects", st.Expects, "actuals", st.Actuals, "attached", st.Attached)

	if s.watchEnabled {
		s.startWatcher(ctx, root)
	}
	s.refreshOpenDiagnostics()
}

func (s *Server) importDescriptor(root string) *project.Descriptor {
	desc, err := s.importFn(root)
	switch {
	case err == nil:
		return desc
	case errors.Is(err, project.ErrNoProject):
		s.log.Info("no project descriptor, using fallback module", "root", root)
	default:
		s.log.Warn("project import failed, using fallback module", "root", root, "err", err)
	}
	return nil
}

// beginProgress reports work-done progress when the client supports it and
// returns the matching end callback.
func (s *Server) beginProgress(title string) func(message string) {
	s.mu.Lock()
	enabled := s.clientProgress
	s.mu.Unlock()
	if !enabled {
		return func(string) {}
	}
	token := uuid.NewString()
	if err := s.sendRequest("window/workDoneProgress/create", workDoneProgressCreateParams{Token: token}); err != nil {
		s.log.Debug("progress create failed", "err", err)
		return func(string) {}
	}
	_ = s.sendNotification("$/progress", progressParams{
		Token: token,
		Value: workDoneProgress{Kind: "begin", Title: title},
	})
	return func(message string) {
		_ = s.sendNotification("$/progress", progressParams{
			Token: token,
			Value: workDoneProgress{Kind: "end", Message: message},
		})
	}
}

func (s *Server) startWatcher(ctx context.Context, root string) {
	w, err := watch.New(root, s.onFileChanges, watch.Options{Logger: s.log})
	if err != nil {
		s.log.Warn("file watcher unavailable", "root", root, "err", err)
		return
	}
	if err := w.Start(ctx); err != nil {
		s.log.Warn("file watcher start failed", "root", root, "err", err)
		return
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

func (s *Server) stopWatcher() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (s *Server) handleDidChangeWatchedFiles(msg *rpcMessage) error {
	var params didChangeWatchedFilesParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}
	changes := make([]watch.Change, 0, len(params.Changes))
	for _, ev := range params.Changes {
		path := source.URIToPath(ev.URI)
		if path == "" {
			continue
		}
		ch := watch.Change{Path: path, Op: watch.OpWrite, Config: project.IsConfigFile(path)}
		switch ev.Type {
		case fileCreated:
			ch.Op = watch.OpCreate
		case fileDeleted:
			ch.Op = watch.OpRemove
		}
		if !ch.Config && !project.IsSourceFile(path) {
			continue
		}
		changes = append(changes, ch)
	}
	if len(changes) > 0 {
		s.onFileChanges(changes)
	}
	return nil
}

// onFileChanges applies a batch from the client or the fsnotify watcher.
// Open documents stay authoritative over the disk.
func (s *Server) onFileChanges(changes []watch.Change) {
	reimport := false
	touched := 0
	for _, ch := range changes {
		if ch.Config {
			reimport = true
			continue
		}
		s.sess.InvalidateFile(source.PathToURI(ch.Path))
		touched++
	}
	if s.currentSettings().trace {
		s.log.Debug("file changes", "sources", touched, "config", reimport)
	}
	if reimport {
		s.background(s.reimport)
		return
	}
	if touched > 0 {
		s.refreshOpenDiagnostics()
	}
}

// reimport re-reads the project descriptor and re-initializes the session
// when its fingerprint changed.
func (s *Server) reimport() {
	s.mu.Lock()
	root := s.workspaceRoot
	old := s.fingerprint
	s.mu.Unlock()
	if root == "" {
		return
	}
	desc := s.importDescriptor(root)
	fp, err := project.Fingerprint(desc)
	if err != nil {
		s.log.Warn("descriptor fingerprint", "err", err)
		return
	}
	if fp == old {
		s.sess.InvalidateSession()
		s.refreshOpenDiagnostics()
		return
	}
	s.mu.Lock()
	s.fingerprint = fp
	s.mu.Unlock()
	s.log.Info("project descriptor changed, re-initializing", "root", root, "fingerprint", fp.String()[:12])
	if err := s.sess.Initialize(s.baseCtx, root, desc); err != nil {
		s.log.Error("re-initialization failed", "root", root, "err", err)
	}
	s.refreshOpenDiagnostics()
}
