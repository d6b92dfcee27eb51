//go:build !cgo

package treesitter

import "context"

// Available reports whether the grammar is compiled in.
func Available() bool { return false }

// Check always fails without cgo.
func Check(context.Context, []byte, int) ([]Issue, error) {
	return nil, ErrUnavailable
}
