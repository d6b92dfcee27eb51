package lsp

import "testing"

func findDocumentSymbol(syms []documentSymbol, name string) (documentSymbol, bool) {
	for _, s := range syms {
		if s.Name == name {
			return s, true
		}
	}
	return documentSymbol{}, false
}

func TestDocumentSymbols(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"common/Shapes.kt": `package app

enum class Shape { CIRCLE, SQUARE }

class Box {
    companion object {
        fun empty(): Box = Box()
    }
}
`,
	})
	syms := buildDocumentSymbols(w.sess, w.uri("common/Platform.kt"))
	fn, ok := findDocumentSymbol(syms, "platformName")
	if !ok || fn.Kind != symbolKindFunction || fn.SelectionRange.Start.Line != 2 {
		t.Fatalf("platformName = %+v", fn)
	}
	cls, ok := findDocumentSymbol(syms, "Greeter")
	if !ok || cls.Kind != symbolKindClass {
		t.Fatalf("Greeter = %+v", cls)
	}
	greet, ok := findDocumentSymbol(cls.Children, "greet")
	if !ok || greet.Kind != symbolKindMethod || greet.Detail != "fun greet(name: String): String" {
		t.Fatalf("greet = %+v", greet)
	}
	if cls.Range.Start.Line > greet.Range.Start.Line || cls.Range.End.Line < greet.Range.End.Line {
		t.Fatalf("child range outside parent: %+v / %+v", cls.Range, greet.Range)
	}

	syms = buildDocumentSymbols(w.sess, w.uri("common/Shapes.kt"))
	shape, ok := findDocumentSymbol(syms, "Shape")
	if !ok || shape.Kind != symbolKindEnum || len(shape.Children) != 2 || shape.Children[0].Kind != symbolKindEnumMember {
		t.Fatalf("Shape = %+v", shape)
	}
	box, _ := findDocumentSymbol(syms, "Box")
	companion, ok := findDocumentSymbol(box.Children, "Companion")
	if !ok || companion.Kind != symbolKindObject {
		t.Fatalf("companion = %+v", box.Children)
	}
	if _, ok := findDocumentSymbol(companion.Children, "empty"); !ok {
		t.Fatalf("companion members = %+v", companion.Children)
	}
}

func TestDocumentSymbolsUnknownDocument(t *testing.T) {
	w := newTestWorkspace(t, nil)
	if syms := buildDocumentSymbols(w.sess, "file:///nowhere/X.kt"); syms == nil || len(syms) != 0 {
		t.Fatalf("symbols = %+v", syms)
	}
}

func TestWorkspaceSymbols(t *testing.T) {
	w := newTestWorkspace(t, nil)
	got := buildWorkspaceSymbols(w.sess, "greet")
	byName := make(map[string]symbolInformation)
	for _, s := range got {
		if s.Kind == symbolKindConstructor {
			t.Fatalf("constructor listed: %+v", s)
		}
		byName[s.Name] = s
	}
	cls, ok := byName["Greeter"]
	if !ok || cls.Kind != symbolKindClass || cls.ContainerName != "app" || cls.Location.URI != w.uri("common/Platform.kt") {
		t.Fatalf("Greeter = %+v", cls)
	}
	m, ok := byName["greet"]
	if !ok || m.ContainerName != "Greeter" {
		t.Fatalf("greet = %+v", m)
	}
	if _, ok := byName["helper"]; ok {
		t.Fatal("helper does not match greet")
	}

	all := buildWorkspaceSymbols(w.sess, "")
	if len(all) < 5 {
		t.Fatalf("empty query lists %d symbols", len(all))
	}
}
