package format

import (
	"testing"

	"kmpls/internal/lexer"
	"kmpls/internal/source"
)

func normalize(t *testing.T, src string) string {
	t.Helper()
	sf := source.NewFile("commas.kt", []byte(src))
	toks := lexer.Tokenize(sf, lexer.Options{})
	return string(NormalizeCommas(sf, toks, 0, -1))
}

func TestNormalizeCommas(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"space after", "fun f(a: Int,b: Int) = g(a,b)\n", "fun f(a: Int, b: Int) = g(a, b)\n"},
		{"space before", "val xs = listOf(1 , 2 ,3)\n", "val xs = listOf(1, 2, 3)\n"},
		{"collapse", "g(a,    b)\n", "g(a, b)\n"},
		{"trailing comma", "g(a, b,)\n", "g(a, b,)\n"},
		{"line break kept", "g(\n    a,\n    b,\n)\n", "g(\n    a,\n    b,\n)\n"},
		{"comment kept", "g(a, /* b */ c)\n", "g(a, /* b */ c)\n"},
		{"string untouched", "val s = \"a ,b\"\n", "val s = \"a ,b\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalize(t, tc.src); got != tc.want {
				t.Fatalf("NormalizeCommas(%q) = %q, want %q", tc.src, got, tc.want)
			}
		})
	}
}

func TestNormalizeCommasRange(t *testing.T) {
	src := "g(a,b)\ng(a,b)\ng(a,b)\n"
	sf := source.NewFile("commas.kt", []byte(src))
	toks := lexer.Tokenize(sf, lexer.Options{})
	got := string(NormalizeCommas(sf, toks, 1, 1))
	want := "g(a,b)\ng(a, b)\ng(a,b)\n"
	if got != want {
		t.Fatalf("range normalize = %q, want %q", got, want)
	}
}
