package session

import (
	"context"
	"fmt"

	"kmpls/internal/analyzer"
	"kmpls/internal/project"
)

// due: dirty, and both the last edit and the last rebuild are at least one
// debounce period old.
func (s *Session) due() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized || s.disposed || !s.dirty {
		return false
	}
	now := s.now()
	return now.Sub(s.lastEdit) >= s.debounce && now.Sub(s.lastRebuild) >= s.debounce
}

func (s *Session) rebuildIfDue() {
	if !s.due() {
		return
	}
	if err := s.rebuild(context.Background(), !s.skipIndex); err != nil {
		s.log.Warn("debounced rebuild failed", "err", err)
	}
}

// ForceRebuild rebuilds the analyzer context regardless of the debounce
// state. Concurrent calls share one rebuild.
func (s *Session) ForceRebuild(ctx context.Context) error {
	s.mu.Lock()
	disposed, initialized := s.disposed, s.initialized
	s.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	if !initialized {
		return fmt.Errorf("session not initialized")
	}
	return s.rebuild(ctx, !s.skipIndex)
}

func (s *Session) rebuild(ctx context.Context, rescan bool) error {
	_, err, shared := s.flight.Do("rebuild", func() (any, error) {
		return nil, s.doRebuild(ctx, rescan)
	})
	if shared {
		s.log.Debug("rebuild shared with a concurrent caller")
	}
	return err
}

func moduleSpecs(mods []project.ModuleDescriptor) []analyzer.ModuleSpec {
	specs := make([]analyzer.ModuleSpec, 0, len(mods))
	for _, m := range mods {
		specs = append(specs, analyzer.ModuleSpec{
			Name:        m.Name,
			Platform:    string(m.Platform),
			SourceRoots: m.SourceRoots,
			Libraries:   m.Dependencies,
			DependsOn:   m.DependsOn,
		})
	}
	return specs
}

// doRebuild replaces the analyzer context. The write lock keeps semantic
// scopes out while the old context is disposed and the new one is built.
func (s *Session) doRebuild(ctx context.Context, rescan bool) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	specs := moduleSpecs(s.modules)
	s.mu.Unlock()

	started := s.now()
	s.ctxMu.Lock()
	if old := s.actx.Swap(nil); old != nil {
		old.Dispose()
	}
	actx, buildErr := s.engine.BuildContext(ctx, specs)
	if buildErr == nil {
		s.actx.Store(actx)
	}
	s.ctxMu.Unlock()

	var indexErr error
	if rescan {
		indexErr = s.idx.Overrides.Rebuild(ctx, s.SourceFiles(), s.readPath)
	}

	s.generation.Add(1)
	s.rebuilds.Add(1)
	s.trees.clear()
	s.mu.Lock()
	clear(s.pendingWrites)
	s.dirty = false
	s.lastRebuild = s.now()
	s.mu.Unlock()

	if buildErr != nil {
		return fmt.Errorf("build analyzer context: %w", buildErr)
	}
	if indexErr != nil {
		return fmt.Errorf("rebuild override index: %w", indexErr)
	}
	s.log.Debug("session rebuilt", "generation", s.generation.Load(), "modules", len(specs), "elapsed", s.now().Sub(started))
	return nil
}
