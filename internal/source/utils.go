package source

import (
	"bytes"
	"path/filepath"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func detectFlags(content []byte) FileFlags {
	var flags FileFlags
	if bytes.HasPrefix(content, utf8BOM) {
		flags |= FileHadBOM
	}
	if bytes.Contains(content, []byte("\r\n")) {
		flags |= FileHasCRLF
	}
	return flags
}

func buildLineIndex(content []byte) []uint32 {
	out := make([]uint32, 0, len(content)/32+1)
	for i, b := range content {
		if b == '\n' {
			out = append(out, uint32(i))
		}
	}
	return out
}

// NormalizePath cleans p and converts separators to '/' so that paths coming
// from URIs and from directory walks compare equal.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(p))
}
