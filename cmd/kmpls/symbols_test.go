package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"kmpls/internal/index"
	"kmpls/internal/source"
)

func symbolIndex(t *testing.T, root string) *index.DeclarationIndex {
	t.Helper()
	x := index.NewDeclarationIndex()
	x.IndexText(source.PathToURI(filepath.Join(root, "src", "Shapes.kt")), `package geo

class Circle(val radius: Double) {
    fun area(): Double = radius * radius
}

fun circleOf(r: Double) = Circle(r)
`)
	return x
}

func TestSearchSymbols(t *testing.T) {
	root := t.TempDir()
	x := symbolIndex(t, root)
	rows, err := searchSymbols(x, root, "circ", []string{"class", "function"}, 0)
	if err != nil {
		t.Fatalf("searchSymbols: %v", err)
	}
	if len(rows) != 2 || rows[0].Qualified != "geo.Circle" || rows[1].Qualified != "geo.circleOf" {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Path != "src/Shapes.kt" || rows[0].Line != 3 || rows[1].Line != 7 {
		t.Fatalf("locations = %+v", rows)
	}

	rows, err = searchSymbols(x, root, "", nil, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("limited rows = %+v, %v", rows, err)
	}
	if _, err := searchSymbols(x, root, "", []string{"struct"}, 0); err == nil {
		t.Fatal("unknown kind should fail")
	}
}

func TestRenderSymbolTable(t *testing.T) {
	var buf bytes.Buffer
	renderSymbolTable(&buf, []symbolRow{
		{Qualified: "geo.Circle", Kind: "class", Path: "src/Shapes.kt", Line: 3},
		{Qualified: "geo.面積", Kind: "function", Path: "src/Shapes.kt", Line: 4},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("table = %q", buf.String())
	}
	// 面積 takes four columns but six bytes
	col := strings.Index(lines[0], "KIND")
	if strings.Index(lines[1], "class") != col || strings.Index(lines[2], "function") != col+len("面積")-4 {
		t.Fatalf("misaligned table:\n%s", buf.String())
	}

	buf.Reset()
	renderSymbolTable(&buf, nil)
	if buf.String() != "no symbols found\n" {
		t.Fatalf("empty table = %q", buf.String())
	}
}
