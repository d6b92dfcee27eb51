package source

import (
	"net/url"
	"path/filepath"
	"strings"
)

// URIToPath converts a file:// URI (or a bare path) to an absolute OS path.
// Other schemes yield "".
func URIToPath(uri string) string {
	if uri == "" {
		return ""
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" && parsed.Scheme != "file" {
		// C:\foo parses with scheme "c"
		if len(parsed.Scheme) != 1 {
			return ""
		}
		parsed = &url.URL{Path: uri}
	}
	path := parsed.Path
	if parsed.Scheme == "" {
		path = uri
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	// file:///C:/x -> C:/x
	if len(path) > 2 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	path = filepath.FromSlash(path)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// PathToURI converts an OS path to a file:// URI.
func PathToURI(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String()
}

// IsFileURI reports whether uri uses the file scheme.
func IsFileURI(uri string) bool { return strings.HasPrefix(uri, "file:") }
