package lsp

import (
	"testing"

	"kmpls/internal/source"
)

type decodedToken struct {
	line, char, length int
	typ, mods          uint32
}

func decodeSemanticTokens(t *testing.T, data []uint32) []decodedToken {
	t.Helper()
	if len(data)%5 != 0 {
		t.Fatalf("data length %d is not a multiple of five", len(data))
	}
	var out []decodedToken
	line, char := 0, 0
	for i := 0; i < len(data); i += 5 {
		if data[i] > 0 {
			char = 0
		}
		line += int(data[i])
		char += int(data[i+1])
		out = append(out, decodedToken{line: line, char: char, length: int(data[i+2]), typ: data[i+3], mods: data[i+4]})
	}
	return out
}

func tokenAt(toks []decodedToken, line, char int) (decodedToken, bool) {
	for _, tk := range toks {
		if tk.line == line && tk.char == char {
			return tk, true
		}
	}
	return decodedToken{}, false
}

func TestSemanticTokens(t *testing.T) {
	w := newTestWorkspace(t, nil)
	toks := decodeSemanticTokens(t, buildSemanticTokens(w.sess, w.uri("common/Platform.kt")).Data)
	if len(toks) == 0 || toks[0] != (decodedToken{line: 0, char: 0, length: 7, typ: semKeyword}) {
		t.Fatalf("first token = %+v", toks)
	}
	tests := []struct {
		name       string
		line, char int
		typ, mods  uint32
	}{
		{"package name", 0, 8, semNamespace, 0},
		{"expect", 2, 0, semModifier, 0},
		{"function declaration", 2, 11, semFunction, semModDeclaration},
		{"doc comment", 4, 0, semComment, 0},
		{"class declaration", 5, 6, semType, semModDeclaration},
		{"property parameter", 5, 18, semProperty, semModDeclaration | semModReadonly},
		{"type reference", 5, 26, semType, 0},
		{"parameter declaration", 6, 14, semParameter, semModDeclaration},
		{"property reference", 6, 38, semProperty, semModReadonly},
		{"operator", 6, 45, semOperator, 0},
		{"parameter reference", 6, 47, semParameter, 0},
	}
	for _, tt := range tests {
		tk, ok := tokenAt(toks, tt.line, tt.char)
		if !ok {
			t.Errorf("%s: no token at %d:%d", tt.name, tt.line, tt.char)
			continue
		}
		if tk.typ != tt.typ || tk.mods != tt.mods {
			t.Errorf("%s: token = %+v, want type %d mods %d", tt.name, tk, tt.typ, tt.mods)
		}
	}
	if n := len(semanticLegend().TokenTypes); n != int(semNamespace)+1 {
		t.Fatalf("legend has %d types", n)
	}
}

func TestSemanticTokensLiterals(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{"jvm/Lit.kt": "package app\n\nval n = 42 // answer\nval s = \"\"\"a\nb\"\"\"\n"})
	toks := decodeSemanticTokens(t, buildSemanticTokens(w.sess, w.uri("jvm/Lit.kt")).Data)
	num, ok := tokenAt(toks, 2, 8)
	if !ok || num.typ != semNumber || num.length != 2 {
		t.Fatalf("number = %+v", num)
	}
	if c, ok := tokenAt(toks, 2, 11); !ok || c.typ != semComment {
		t.Fatalf("comment = %+v", c)
	}
	first, ok := tokenAt(toks, 3, 8)
	second, ok2 := tokenAt(toks, 4, 0)
	if !ok || !ok2 || first.typ != semString || second.typ != semString || first.length != 4 || second.length != 4 {
		t.Fatalf("raw string pieces = %+v / %+v", first, second)
	}
}

func TestEncodeSemanticTokensDropsOverlaps(t *testing.T) {
	file := source.NewFile("/tmp/x.kt", []byte("abc def\n"))
	toks := []semToken{
		{span: source.Span{Start: 0, End: 3}, typ: semType},
		{span: source.Span{Start: 1, End: 2}, typ: semKeyword},
		{span: source.Span{Start: 4, End: 7}, typ: semFunction},
	}
	got := encodeSemanticTokens(file, toks)
	want := []uint32{0, 0, 3, semType, 0, 0, 4, 3, semFunction, 0}
	if len(got) != len(want) {
		t.Fatalf("data = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("data = %v, want %v", got, want)
		}
	}
}
