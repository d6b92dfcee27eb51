package lsp

import (
	"strings"
	"testing"

	"kmpls/internal/lexer"
	"kmpls/internal/source"
)

const useSrc = `package app

fun use() {
    pad("a", 3, 'x')
    Greeter("p")
    listOf(1).map { it + 1 }
}
`

func TestSignatureHelpActiveParameter(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{"jvm/Use.kt": useSrc})
	tests := []struct {
		needle string
		delta  int
		param  int
	}{
		{`pad("a"`, 4, 0},
		{`3, 'x'`, 0, 1},
		{`'x'`, 1, 2},
	}
	for _, tt := range tests {
		help := buildSignatureHelp(w.sess, w.uri("jvm/Use.kt"), w.pos(t, "jvm/Use.kt", tt.needle, tt.delta))
		if help == nil {
			t.Fatalf("%s: no signature help", tt.needle)
		}
		sig := help.Signatures[help.ActiveSignature]
		if sig.Label != "fun pad(text: String, width: Int, fill: Char): String" {
			t.Fatalf("%s: label = %q", tt.needle, sig.Label)
		}
		if len(sig.Parameters) != 3 || sig.Parameters[1].Label != "width: Int" {
			t.Fatalf("%s: parameters = %+v", tt.needle, sig.Parameters)
		}
		if help.ActiveParameter != tt.param {
			t.Errorf("%s: active parameter = %d, want %d", tt.needle, help.ActiveParameter, tt.param)
		}
	}
}

func TestSignatureHelpConstructor(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{"jvm/Use.kt": useSrc})
	help := buildSignatureHelp(w.sess, w.uri("jvm/Use.kt"), w.pos(t, "jvm/Use.kt", `"p"`, 1))
	if help == nil || len(help.Signatures) == 0 {
		t.Fatal("no constructor signature")
	}
	sig := help.Signatures[help.ActiveSignature]
	if sig.Label != "Greeter(prefix: String)" || sig.Documentation != "Greets people." {
		t.Fatalf("constructor signature = %+v", sig)
	}
}

func TestSignatureHelpOutsideCall(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{"jvm/Use.kt": useSrc})
	for _, needle := range []string{"fun use", "it + 1"} {
		if help := buildSignatureHelp(w.sess, w.uri("jvm/Use.kt"), w.pos(t, "jvm/Use.kt", needle, 0)); help != nil {
			t.Errorf("%s: unexpected help %+v", needle, help)
		}
	}
}

func TestFindOpenCall(t *testing.T) {
	tests := []struct {
		src    string
		cursor string
		callee string
		arg    int
		ok     bool
	}{
		{"f(a, b, c)", "c)", "f", 2, true},
		{"f(g(x), y)", "x)", "g", 0, true},
		{"f(g(x), y)", "y)", "f", 1, true},
		{"f<Int>(a)", "a)", "f", 0, true},
		{"f(a, { b }", "b }", "", 0, false},
		{"f(a, [b, c", "c", "f", 1, true},
		{"(a)", "a)", "", 0, false},
	}
	for _, tt := range tests {
		toks := lexer.Tokenize(source.NewFile("t.kt", []byte(tt.src)), lexer.Options{})
		call, ok := findOpenCall(toks, strings.Index(tt.src, tt.cursor))
		if ok != tt.ok {
			t.Errorf("%q: ok = %v", tt.src, ok)
			continue
		}
		if !ok {
			continue
		}
		if call.callee.Name() != tt.callee || call.argIndex != tt.arg {
			t.Errorf("%q: callee %q arg %d, want %q %d", tt.src, call.callee.Name(), call.argIndex, tt.callee, tt.arg)
		}
	}
}
