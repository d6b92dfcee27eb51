//go:build cgo

// Package treesitter cross-checks source files with the tree-sitter Kotlin
// grammar.
package treesitter

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/kotlin"

	"kmpls/internal/source"
)

// Available reports whether the grammar is compiled in.
func Available() bool { return true }

// Check parses src and reports ERROR and MISSING nodes, at most limit of
// them (limit <= 0 means DefaultLimit).
func Check(ctx context.Context, src []byte, limit int) ([]Issue, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(kotlin.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()
	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}
	var out []Issue
	collect(root, src, &out, 0, limit)
	return out, nil
}

func collect(node *sitter.Node, src []byte, out *[]Issue, depth, limit int) {
	if depth > maxDepth || len(*out) >= limit {
		return
	}
	if node.IsError() || node.IsMissing() {
		start, end := node.StartByte(), node.EndByte()
		if n := source.SafeUint32(len(src)); end > n {
			end = n
		}
		start = min(start, end)
		*out = append(*out, Issue{
			Span:    source.Span{Start: start, End: end},
			Missing: node.IsMissing(),
			Message: message(node, src[start:end]),
		})
		// потомки ERROR узла дают только шум
		return
	}
	if !node.HasError() {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collect(node.Child(i), src, out, depth+1, limit)
	}
}

func message(node *sitter.Node, text []byte) string {
	if node.IsMissing() {
		return fmt.Sprintf("missing %s", node.Type())
	}
	if len(text) == 0 || len(text) > 40 {
		return "syntax error"
	}
	return fmt.Sprintf("unexpected %s", truncate(string(text)))
}
