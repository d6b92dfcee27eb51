package source

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPositionRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"fun main() {}\n",
		"val s = \"héllo\"\nval e = \"😀 ok\"\n",
		"line one\n\nline three",
		"класс\n\tx😀y\n",
	}
	for _, text := range texts {
		f := NewFile("a.kt", []byte(text))
		for off := 0; off <= len(text); off++ {
			if off < len(text) && !utf8.RuneStart(text[off]) {
				continue
			}
			pos := f.PositionOf(uint32(off))
			back := f.OffsetOf(pos)
			if back != uint32(off) {
				t.Fatalf("text %q: offset %d -> %+v -> %d", text, off, pos, back)
			}
		}
	}
}

func TestPositionSurrogatePairs(t *testing.T) {
	f := NewFile("a.kt", []byte("a😀b"))
	// 😀 occupies 2 UTF-16 units and 4 bytes.
	if got := f.PositionOf(5); got != (Position{Line: 0, Character: 3}) {
		t.Fatalf("PositionOf(5) = %+v", got)
	}
	if got := f.OffsetOf(Position{Line: 0, Character: 3}); got != 5 {
		t.Fatalf("OffsetOf(char 3) = %d", got)
	}
	// inside the pair resolves to the rune start
	if got := f.OffsetOf(Position{Line: 0, Character: 2}); got != 1 {
		t.Fatalf("OffsetOf(char 2) = %d, want 1", got)
	}
	if got := f.PositionOf(3); got != (Position{Line: 0, Character: 1}) {
		t.Fatalf("PositionOf(mid-rune) = %+v", got)
	}
}

func TestOffsetClamping(t *testing.T) {
	f := NewFile("a.kt", []byte("ab\ncd\n"))
	tests := []struct {
		name string
		pos  Position
		want uint32
	}{
		{"start", Position{0, 0}, 0},
		{"past line end", Position{0, 40}, 2},
		{"second line", Position{1, 1}, 4},
		{"last empty line", Position{2, 0}, 6},
		{"past file end", Position{9, 0}, 6},
		{"negative", Position{-1, 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.OffsetOf(tt.pos); got != tt.want {
				t.Fatalf("OffsetOf(%+v) = %d, want %d", tt.pos, got, tt.want)
			}
		})
	}
}

func TestLineBoundsCRLF(t *testing.T) {
	f := NewFile("a.kt", []byte("ab\r\ncd"))
	if got := f.LineText(0); got != "ab" {
		t.Fatalf("LineText(0) = %q", got)
	}
	if got := f.LineText(1); got != "cd" {
		t.Fatalf("LineText(1) = %q", got)
	}
	if f.Flags&FileHasCRLF == 0 {
		t.Fatal("expected CRLF flag")
	}
}

func TestPositionInsideCRLF(t *testing.T) {
	f := NewFile("a.kt", []byte("ab\r\ncd\r\n"))
	for _, off := range []uint32{2, 3} {
		if got := f.PositionOf(off); got != (Position{Line: 0, Character: 2}) {
			t.Fatalf("PositionOf(%d) = %+v", off, got)
		}
	}
	for off := range uint32(len(f.Content) + 1) {
		pos := f.PositionOf(off)
		if back := f.PositionOf(f.OffsetOf(pos)); back != pos {
			t.Fatalf("offset %d: %+v -> %d -> %+v", off, pos, f.OffsetOf(pos), back)
		}
	}
}

func TestFileSetShadowsByPath(t *testing.T) {
	fs := NewFileSet()
	id1 := fs.Add("src/a.kt", []byte("one"), 0)
	id2 := fs.Add("src/a.kt", []byte("two"), 0)
	if id1 == id2 {
		t.Fatal("expected distinct ids")
	}
	f, ok := fs.GetByPath("src/./a.kt")
	if !ok || string(f.Content) != "two" {
		t.Fatalf("GetByPath returned %v %v", f, ok)
	}
	if got := fs.Paths(); len(got) != 1 || got[0] != "src/a.kt" {
		t.Fatalf("Paths() = %v", got)
	}
	if fs.Get(99) != nil {
		t.Fatal("expected nil for unknown id")
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{Start: 4, End: 8}
	b := Span{Start: 2, End: 6}
	if got := a.Cover(b); got.Start != 2 || got.End != 8 {
		t.Fatalf("Cover = %v", got)
	}
	if !a.Contains(8) || a.Contains(9) {
		t.Fatal("Contains should include the end offset only")
	}
}

func TestURIRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "with space", "Main.kt")
	uri := PathToURI(path)
	if !strings.HasPrefix(uri, "file:///") || !strings.Contains(uri, "with%20space") {
		t.Fatalf("PathToURI = %q", uri)
	}
	if got := URIToPath(uri); got != path {
		t.Fatalf("URIToPath(%q) = %q, want %q", uri, got, path)
	}
	if got := URIToPath("untitled:Untitled-1"); got != "" {
		t.Fatalf("non-file URI mapped to %q", got)
	}
}
