package session

import (
	"fmt"

	"kmpls/internal/analyzer"
)

// WithSemanticAnalysis runs fn inside a semantic scope for the current tree
// of uri. Any error or panic from the analyzer yields (zero, false).
func WithSemanticAnalysis[T any](s *Session, uri string, fn func(*analyzer.Semantic) (T, error)) (T, bool) {
	var zero, out T
	tree, ok := s.SyntaxTree(uri)
	if !ok {
		return zero, false
	}
	err := s.enter(tree, func(sem *analyzer.Semantic) error {
		v, err := fn(sem)
		out = v
		return err
	})
	if err != nil {
		s.log.Debug("semantic query failed", "uri", uri, "err", err)
		return zero, false
	}
	return out, true
}

// enter holds the read side of the context lock for the whole scope.
func (s *Session) enter(tree *SyntaxTree, fn func(*analyzer.Semantic) error) (err error) {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in semantic scope: %v", r)
		}
	}()
	actx := s.actx.Load()
	if actx == nil {
		return analyzer.EnterDetached(tree.File, fn)
	}
	module := ""
	if tree.Attached {
		module = tree.Module
	}
	return actx.Enter(tree.File, module, fn)
}
