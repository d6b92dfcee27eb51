package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kmpls/internal/source"
)

const recordSrc = `package demo

class Box() {
    fun open() {}
}

enum class Color { RED, GREEN }
`

func describe(ds []Declaration) string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		parts = append(parts, d.Kind.String()+":"+d.Container+":"+d.Name)
	}
	return strings.Join(parts, " ")
}

func TestScanRecordCounts(t *testing.T) {
	f := parseURI("file:///w/Records.kt", recordSrc)
	got := describe(Scan("file:///w/Records.kt", f))
	want := "class::Box constructor:Box:Box function:Box:open enum::Color enumEntry:Color:RED enumEntry:Color:GREEN"
	if got != want {
		t.Fatalf("records:\n got %s\nwant %s", got, want)
	}
}

func TestScanPropertyParamsAndNesting(t *testing.T) {
	src := "package p\nclass Outer(val a: Int, b: Int, var c: String) {\n    class Inner { val x = 1 }\n    companion object { fun make() = Outer(1, 2, \"\") }\n}\n"
	ds := Scan("file:///w/A.kt", parseURI("file:///w/A.kt", src))
	got := describe(ds)
	want := "class::Outer constructor:Outer:Outer property:Outer:a property:Outer:c class:Outer:Inner property:Outer.Inner:x object:Outer:Companion function:Outer.Companion:make"
	if got != want {
		t.Fatalf("records:\n got %s\nwant %s", got, want)
	}
	if q := ds[len(ds)-1].QualifiedName(); q != "p.Outer.Companion.make" {
		t.Fatalf("qualified = %q", q)
	}
	if r := ds[0].NameRange; r.Start.Line != 1 || r.Start.Character != 6 || r.End.Character != 11 {
		t.Fatalf("Outer name range = %+v", r)
	}
}

func TestReindexIsIdempotent(t *testing.T) {
	x := NewDeclarationIndex()
	x.IndexText("file:///w/R.kt", recordSrc)
	n := x.Len()
	for range 3 {
		x.IndexText("file:///w/R.kt", recordSrc)
	}
	if x.Len() != n || n != 6 {
		t.Fatalf("Len = %d after re-index, want %d (6)", x.Len(), n)
	}
	if got := x.FindByName("open"); len(got) != 1 {
		t.Fatalf("open records = %d", len(got))
	}
	x.IndexText("file:///w/R.kt", "package demo\nfun close() {}\n")
	if len(x.FindByName("open")) != 0 || len(x.FindByName("close")) != 1 || x.Len() != 1 {
		t.Fatalf("stale records after edit: %s", describe(x.FileDeclarations("file:///w/R.kt")))
	}
}

func TestRemoveFile(t *testing.T) {
	x := NewDeclarationIndex()
	x.IndexText("file:///w/R.kt", recordSrc)
	x.RemoveFile("file:///w/R.kt")
	if x.Len() != 0 || len(x.Files()) != 0 || len(x.FindByName("Box")) != 0 {
		t.Fatal("records survived RemoveFile")
	}
	if _, ok := x.FindByQualifiedName("demo.Box"); ok {
		t.Fatal("qualified record survived RemoveFile")
	}
	if got := x.Search("", 0); len(got) != 0 {
		t.Fatalf("search after remove = %s", describe(got))
	}
}

func TestQualifiedNameLastWriteWins(t *testing.T) {
	x := NewDeclarationIndex()
	x.IndexText("file:///w/A.kt", "package demo\nclass Box\n")
	x.IndexText("file:///w/B.kt", "package demo\nclass Box\n")
	d, ok := x.FindByQualifiedName("demo.Box")
	if !ok || d.FileURI != "file:///w/B.kt" {
		t.Fatalf("FindByQualifiedName = %+v", d)
	}
	x.RemoveFile("file:///w/B.kt")
	d, ok = x.FindByQualifiedName("demo.Box")
	if !ok || d.FileURI != "file:///w/A.kt" {
		t.Fatalf("after removal = %+v, %v", d, ok)
	}
	if got := x.FindByNameInPackage("Box", "other"); len(got) != 0 {
		t.Fatal("package filter ignored")
	}
}

func TestMatchOrder(t *testing.T) {
	tests := []struct {
		name, query string
		want        MatchKind
	}{
		{"GreetingService", "greet", MatchPrefix},
		{"GreetingService", "GREET", MatchPrefix},
		{"GreetingService", "service", MatchSubstring},
		{"GreetingService", "gsv", MatchSubsequence},
		{"GreetingService", "", MatchPrefix},
		{"Greeter", "xyz", MatchNone},
	}
	for _, tt := range tests {
		got, ok := Match(tt.name, tt.query)
		if got != tt.want || ok != (tt.want != MatchNone) {
			t.Errorf("Match(%q, %q) = %d, %v; want %d", tt.name, tt.query, got, ok, tt.want)
		}
	}
}

func TestInitials(t *testing.T) {
	tests := map[string]string{
		"parseHTTPRequest": "pHR",
		"max_value":        "mv",
		"GreetingService":  "GS",
		"x":                "x",
	}
	for in, want := range tests {
		if got := initials(in); got != want {
			t.Errorf("initials(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchKeepsInsertionOrder(t *testing.T) {
	x := NewDeclarationIndex()
	x.IndexText("file:///w/A.kt", "fun helperTwo() {}\nfun other() {}\n")
	x.IndexText("file:///w/B.kt", "fun helper() {}\nfun theHelper() {}\n")
	got := x.Search("helper", 0)
	names := make([]string, 0, len(got))
	for _, d := range got {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "helperTwo,helper,theHelper" {
		t.Fatalf("search = %v", names)
	}
	if limited := x.Search("helper", 2); len(limited) != 2 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}

const (
	expectSrc = "package app\nexpect fun platformName(a: Int, b: String): String\nexpect class Logger\nfun plain() {}\n"
	jvmSrc    = "package app\nactual fun platformName(a: Int, b: String): String = \"JVM\"\nactual typealias Logger = java.util.logging.Logger\n"
	jsSrc     = "package app\nactual fun platformName(a: Int, b: String) = \"JS\"\nactual class Logger\n"
)

func TestOverrideSymmetry(t *testing.T) {
	x := NewOverrideIndex()
	x.IndexFile("file:///w/common.kt", expectSrc)
	x.IndexFile("file:///w/jvm.kt", jvmSrc)
	x.IndexFile("file:///w/js.kt", jsSrc)

	decls := x.GetDeclarationsFor("platformName")
	if len(decls) != 1 || decls[0].FileURI != "file:///w/common.kt" || decls[0].Signature != "a,b" {
		t.Fatalf("declarations = %+v", decls)
	}
	impls := x.GetImplementationsFor("platformName")
	if len(impls) != 2 || impls[0].FileURI != "file:///w/jvm.kt" || impls[1].FileURI != "file:///w/js.kt" {
		t.Fatalf("implementations = %+v", impls)
	}
	for _, impl := range impls {
		back := x.GetDeclarationsFor(impl.Name)
		if len(back) != 1 || back[0] != decls[0] {
			t.Fatalf("reverse lookup from %s = %+v", impl.FileURI, back)
		}
	}
	if off := strings.Index(expectSrc, "platformName"); decls[0].Offset != off {
		t.Fatalf("offset = %d, want %d", decls[0].Offset, off)
	}

	loggers := x.GetImplementationsFor("Logger")
	if len(loggers) != 2 || !Compatible(x.GetDeclarationsFor("Logger")[0].Kind, loggers[0].Kind) {
		t.Fatalf("typealias should implement the expect class: %+v", loggers)
	}
	if len(x.GetDeclarationsFor("plain")) != 0 {
		t.Fatal("unmarked declarations are not recorded")
	}
}

func TestOverrideRemovalPrunes(t *testing.T) {
	x := NewOverrideIndex()
	x.IndexFile("file:///w/common.kt", expectSrc)
	x.IndexFile("file:///w/jvm.kt", jvmSrc)
	x.IndexFile("file:///w/jvm.kt", jvmSrc)
	if got := len(x.GetImplementationsFor("platformName")); got != 1 {
		t.Fatalf("re-index duplicated entries: %d", got)
	}
	x.RemoveEntriesForFile("file:///w/jvm.kt")
	x.RemoveEntriesForFile("file:///w/common.kt")
	if len(x.declared) != 0 || len(x.implementing) != 0 || x.FileCount() != 0 {
		t.Fatalf("buckets left: %v %v", x.declared, x.implementing)
	}
	x.IndexFile("file:///w/plain.kt", "fun main() {}\n")
	if !x.IsIndexed("file:///w/plain.kt") || x.FileCount() != 1 {
		t.Fatal("file without markers should still count as indexed")
	}
}

func TestReferenceIndex(t *testing.T) {
	x := NewReferenceIndex()
	x.IndexText("file:///w/A.kt", "fun helper() = 1\n")
	x.IndexText("file:///w/B.kt", "fun main() { println(\"${helper()}\") }\n")
	files, ok := x.FilesFor("helper")
	if !ok || strings.Join(files, ",") != "file:///w/A.kt,file:///w/B.kt" {
		t.Fatalf("FilesFor(helper) = %v, %v", files, ok)
	}
	x.RemoveFile("file:///w/B.kt")
	if files, _ := x.FilesFor("helper"); len(files) != 1 {
		t.Fatalf("after removal = %v", files)
	}
	if _, ok := x.FilesFor("main"); ok {
		t.Fatal("main should be gone with B.kt")
	}
}

func TestSetBuild(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"common.kt": expectSrc,
		"jvm.kt":    jvmSrc,
		"gone.kt":   "",
	}
	var paths []string
	for name, text := range files {
		p := filepath.Join(dir, name)
		if name != "gone.kt" {
			if err := os.WriteFile(p, []byte(text), 0o600); err != nil {
				t.Fatal(err)
			}
		}
		paths = append(paths, p)
	}
	s := NewSet()
	s.Declarations.IndexText("file:///stale.kt", "class Stale\n")
	if err := s.Build(context.Background(), paths, nil); err != nil {
		t.Fatal(err)
	}
	if len(s.Declarations.FindByName("Stale")) != 0 {
		t.Fatal("Build must replace earlier content")
	}
	if got := len(s.Declarations.FindByName("platformName")); got != 2 {
		t.Fatalf("platformName records = %d", got)
	}
	if s.Overrides.FileCount() != 2 {
		t.Fatalf("override files = %d", s.Overrides.FileCount())
	}
	common := source.PathToURI(filepath.Join(dir, "common.kt"))
	if files, ok := s.References.FilesFor("plain"); !ok || len(files) != 1 || files[0] != common {
		t.Fatalf("FilesFor(plain) = %v", files)
	}

	s.Update(common, "package app\nfun replaced() {}\n")
	if len(s.Overrides.GetDeclarationsFor("platformName")) != 0 || len(s.Declarations.FindByName("replaced")) != 1 {
		t.Fatal("Update did not refresh every index")
	}
	s.Remove(common)
	if s.Overrides.IsIndexed(common) || s.References.Contains(common) || len(s.Declarations.FileDeclarations(common)) != 0 {
		t.Fatal("Remove left entries behind")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Build(ctx, paths, nil); err == nil {
		t.Fatal("Build should honor a cancelled context")
	}
}
