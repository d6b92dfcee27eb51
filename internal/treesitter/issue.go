package treesitter

import (
	"errors"
	"strings"

	"kmpls/internal/source"
)

// ErrUnavailable is returned by Check in builds without cgo.
var ErrUnavailable = errors.New("tree-sitter cross-check requires cgo")

// DefaultLimit caps the issues reported per file.
const DefaultLimit = 50

const maxDepth = 1000

// Issue is one syntax problem reported by the grammar.
type Issue struct {
	Span    source.Span
	Missing bool
	Message string
}

// truncate keeps the first line of an error fragment.
func truncate(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}
