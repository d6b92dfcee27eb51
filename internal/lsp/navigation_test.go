package lsp

import (
	"strings"
	"testing"
)

func TestHoverShowsSignatureAndDoc(t *testing.T) {
	w := newTestWorkspace(t, nil)
	tests := []struct {
		name   string
		rel    string
		needle string
		want   []string
	}{
		{"member call", "jvm/Main.kt", "greet(\"Bob", []string{"fun greet(name: String): String", "Defined in `Platform.kt`"}},
		{"class doc", "jvm/Main.kt", "Greeter(\"Hi", []string{"class Greeter", "Greets people."}},
		{"expect marker", "common/Platform.kt", "platformName", []string{"*expect* declaration, 1 actual implementation"}},
		{"actual marker", "jvm/Platform.jvm.kt", "platformName", []string{"*actual* declaration"}},
		{"local type", "jvm/Main.kt", "text = g", []string{"val text: String"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := buildHover(w.sess, w.uri(tt.rel), w.pos(t, tt.rel, tt.needle, 0))
			if h == nil {
				t.Fatal("no hover")
			}
			for _, want := range tt.want {
				if !strings.Contains(h.Contents.Value, want) {
					t.Fatalf("hover %q does not contain %q", h.Contents.Value, want)
				}
			}
			if h.Contents.Kind != "markdown" {
				t.Fatalf("kind = %q", h.Contents.Kind)
			}
		})
	}
}

func TestHoverOnWhitespace(t *testing.T) {
	w := newTestWorkspace(t, nil)
	if h := buildHover(w.sess, w.uri("jvm/Main.kt"), position{Line: 1, Character: 0}); h != nil {
		t.Fatalf("expected no hover on a blank line, got %+v", h)
	}
}

func TestDefinitionAcrossModules(t *testing.T) {
	w := newTestWorkspace(t, nil)
	locs := buildDefinition(w.sess, w.uri("jvm/Main.kt"), w.pos(t, "jvm/Main.kt", "helper()", 1))
	if !hasLocation(locs, w.uri("common/Utils.kt"), 2) {
		t.Fatalf("helper definition = %+v", locs)
	}
	locs = buildDefinition(w.sess, w.uri("jvm/Main.kt"), w.pos(t, "jvm/Main.kt", "Greeter(", 0))
	if !hasLocation(locs, w.uri("common/Platform.kt"), 5) {
		t.Fatalf("Greeter definition = %+v", locs)
	}
}

func TestDefinitionFromActualJumpsToExpect(t *testing.T) {
	w := newTestWorkspace(t, nil)
	locs := buildDefinition(w.sess, w.uri("jvm/Platform.jvm.kt"), w.pos(t, "jvm/Platform.jvm.kt", "platformName", 2))
	if len(locs) != 1 || !hasLocation(locs, w.uri("common/Platform.kt"), 2) {
		t.Fatalf("actual definition = %+v", locs)
	}
}

func TestDefinitionOfUnknownName(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"jvm/Broken.kt": "package app\n\nfun broken() {\n    missing()\n}\n",
	})
	locs := buildDefinition(w.sess, w.uri("jvm/Broken.kt"), w.pos(t, "jvm/Broken.kt", "missing", 0))
	if locs == nil || len(locs) != 0 {
		t.Fatalf("expected an empty list, got %+v", locs)
	}
}

func TestImplementationBothWays(t *testing.T) {
	w := newTestWorkspace(t, nil)
	locs := buildImplementation(w.sess, w.uri("common/Platform.kt"), w.pos(t, "common/Platform.kt", "platformName", 0))
	if len(locs) != 1 || !hasLocation(locs, w.uri("jvm/Platform.jvm.kt"), 2) {
		t.Fatalf("implementations = %+v", locs)
	}
	locs = buildImplementation(w.sess, w.uri("jvm/Platform.jvm.kt"), w.pos(t, "jvm/Platform.jvm.kt", "platformName", 0))
	if len(locs) != 1 || !hasLocation(locs, w.uri("common/Platform.kt"), 2) {
		t.Fatalf("expect side = %+v", locs)
	}
	locs = buildImplementation(w.sess, w.uri("common/Utils.kt"), w.pos(t, "common/Utils.kt", "helper", 0))
	if len(locs) != 0 {
		t.Fatalf("plain function has no counterparts: %+v", locs)
	}
}

func TestReferencesAcrossFiles(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"jvm/Other.kt": "package app\n\nfun other() = helper() + helper()\n",
	})
	pos := w.pos(t, "common/Utils.kt", "helper", 0)
	locs := buildReferences(w.sess, w.uri("common/Utils.kt"), pos, true)
	if len(locs) != 4 {
		t.Fatalf("references = %+v", locs)
	}
	if !hasLocation(locs, w.uri("common/Utils.kt"), 2) || !hasLocation(locs, w.uri("jvm/Main.kt"), 5) || !hasLocation(locs, w.uri("jvm/Other.kt"), 2) {
		t.Fatalf("missing a reference: %+v", locs)
	}
	withoutDecl := buildReferences(w.sess, w.uri("common/Utils.kt"), pos, false)
	if len(withoutDecl) != 3 {
		t.Fatalf("references without declaration = %+v", withoutDecl)
	}
}

func TestNavigationFollowsUnbuiltEdits(t *testing.T) {
	w := newTestWorkspace(t, nil)
	w.open("common/Utils.kt", "// moved down one line\n"+commonUtils)
	w.open("common/Platform.kt", "\n"+commonPlatform)

	call := w.pos(t, "jvm/Main.kt", "helper()", 1)
	locs := buildDefinition(w.sess, w.uri("jvm/Main.kt"), call)
	want := lspRange{Start: position{Line: 3, Character: 4}, End: position{Line: 3, Character: 10}}
	if len(locs) != 1 || locs[0].URI != w.uri("common/Utils.kt") || locs[0].Range != want {
		t.Fatalf("helper definition = %+v", locs)
	}
	locs = buildDefinition(w.sess, w.uri("jvm/Main.kt"), w.pos(t, "jvm/Main.kt", "g.greet", 2))
	if len(locs) != 1 || !hasLocation(locs, w.uri("common/Platform.kt"), 7) {
		t.Fatalf("greet definition = %+v", locs)
	}

	for _, from := range []struct {
		rel string
		pos position
	}{
		{"jvm/Main.kt", call},
		{"common/Utils.kt", w.pos(t, "common/Utils.kt", "helper", 0)},
	} {
		refs := buildReferences(w.sess, w.uri(from.rel), from.pos, true)
		if len(refs) != 2 || !hasLocation(refs, w.uri("common/Utils.kt"), 3) || !hasLocation(refs, w.uri("jvm/Main.kt"), 5) {
			t.Fatalf("references from %s = %+v", from.rel, refs)
		}
	}

	edit, err := buildRename(w.sess, w.uri("jvm/Main.kt"), call, "assist")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	utils := edit.Changes[w.uri("common/Utils.kt")]
	if len(edit.Changes[w.uri("jvm/Main.kt")]) != 1 || len(utils) != 1 || utils[0].Range != want {
		t.Fatalf("edits = %+v", edit.Changes)
	}
}

func TestReferencesOfLocalStayInFile(t *testing.T) {
	w := newTestWorkspace(t, nil)
	locs := buildReferences(w.sess, w.uri("jvm/Main.kt"), w.pos(t, "jvm/Main.kt", "val g", 4), true)
	if len(locs) != 2 {
		t.Fatalf("references of g = %+v", locs)
	}
	for _, l := range locs {
		if l.URI != w.uri("jvm/Main.kt") {
			t.Fatalf("local reference outside its file: %+v", l)
		}
	}
}

func TestPrepareRename(t *testing.T) {
	w := newTestWorkspace(t, nil)
	res, ok := buildPrepareRename(w.sess, w.uri("jvm/Main.kt"), w.pos(t, "jvm/Main.kt", "val g", 4))
	if !ok || res.Placeholder != "g" || res.Range.Start.Line != 3 {
		t.Fatalf("prepareRename = %+v, %v", res, ok)
	}
	if _, ok := buildPrepareRename(w.sess, w.uri("jvm/Main.kt"), w.pos(t, "jvm/Main.kt", "println", 0)); ok {
		t.Fatal("built-in println must not be renamable")
	}
}

func TestRenameLocal(t *testing.T) {
	w := newTestWorkspace(t, nil)
	edit, err := buildRename(w.sess, w.uri("jvm/Main.kt"), w.pos(t, "jvm/Main.kt", "g.greet", 0), "greeter")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	edits := edit.Changes[w.uri("jvm/Main.kt")]
	if len(edit.Changes) != 1 || len(edits) != 2 {
		t.Fatalf("edits = %+v", edit.Changes)
	}
	for _, e := range edits {
		if e.NewText != "greeter" {
			t.Fatalf("new text = %q", e.NewText)
		}
	}
}

func TestRenameExpectRenamesActual(t *testing.T) {
	w := newTestWorkspace(t, nil)
	edit, err := buildRename(w.sess, w.uri("common/Platform.kt"), w.pos(t, "common/Platform.kt", "platformName", 0), "hostName")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	for _, rel := range []string{"common/Platform.kt", "jvm/Platform.jvm.kt", "jvm/Main.kt"} {
		if len(edit.Changes[w.uri(rel)]) != 1 {
			t.Fatalf("%s edits = %+v", rel, edit.Changes[w.uri(rel)])
		}
	}
}

func TestRenameRejectsInvalidNames(t *testing.T) {
	w := newTestWorkspace(t, nil)
	pos := w.pos(t, "jvm/Main.kt", "val g", 4)
	for _, name := range []string{"", "1abc", "fun", "a-b"} {
		if _, err := buildRename(w.sess, w.uri("jvm/Main.kt"), pos, name); err == nil {
			t.Errorf("rename to %q should fail", name)
		}
	}
	if _, err := buildRename(w.sess, w.uri("jvm/Main.kt"), pos, "`my name`"); err != nil {
		t.Errorf("backticked name rejected: %v", err)
	}
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"value", true},
		{"_x1", true},
		{"имя", true},
		{"class", false},
		{"9lives", false},
		{"``", false},
		{"`a`b`", false},
	}
	for _, tt := range tests {
		if got := validIdentifier(tt.name); got != tt.want {
			t.Errorf("validIdentifier(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
