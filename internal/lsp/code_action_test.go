package lsp

import (
	"testing"

	"kmpls/internal/analyzer"
)

const toolsSrc = `package tools

fun slugify(s: String): String = s
`

func (w *testWorkspace) diagnostic(t *testing.T, rel, needle, code string) lspDiagnostic {
	t.Helper()
	start := w.pos(t, rel, needle, 0)
	end := w.pos(t, rel, needle, len(needle))
	return lspDiagnostic{Range: lspRange{Start: start, End: end}, Code: code, Message: needle}
}

func TestCodeActionAddsImport(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"common/Tools.kt": toolsSrc,
		"jvm/Run.kt":      "package app\n\nfun run() = slugify(\"x\")\n",
	})
	d := w.diagnostic(t, "jvm/Run.kt", "slugify", analyzer.CodeUnresolved)
	actions := buildCodeActions(w.sess, w.uri("jvm/Run.kt"), []lspDiagnostic{d}, nil)
	var fix *codeAction
	for i := range actions {
		if actions[i].Kind == codeActionQuickFix {
			fix = &actions[i]
		}
	}
	if fix == nil {
		t.Fatalf("no quick fix in %+v", actions)
	}
	if fix.Title != "Import 'tools.slugify'" || !fix.IsPreferred {
		t.Fatalf("fix = %+v", fix)
	}
	edits := fix.Edit.Changes[w.uri("jvm/Run.kt")]
	if len(edits) != 1 || edits[0].NewText != "\nimport tools.slugify\n" || edits[0].Range.Start.Line != 1 {
		t.Fatalf("edits = %+v", edits)
	}
}

func TestCodeActionImportAfterExisting(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"common/Tools.kt": toolsSrc,
		"jvm/Run.kt":      "package demo\n\nimport app.helper\n\nfun run() = slugify(helper())\n",
	})
	d := w.diagnostic(t, "jvm/Run.kt", "slugify", analyzer.CodeUnresolved)
	actions := buildCodeActions(w.sess, w.uri("jvm/Run.kt"), []lspDiagnostic{d}, []string{codeActionQuickFix})
	if len(actions) != 1 {
		t.Fatalf("actions = %+v", actions)
	}
	edit := actions[0].Edit.Changes[w.uri("jvm/Run.kt")][0]
	if edit.NewText != "import tools.slugify\n" || edit.Range.Start.Line != 3 {
		t.Fatalf("edit = %+v", edit)
	}
}

func TestCodeActionRemovesUnusedImport(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"common/Tools.kt": toolsSrc,
		"jvm/Run.kt":      "package app\n\nimport tools.slugify\nimport java.io.File\n\nfun run() = slugify(\"x\")\n",
	})
	d := w.diagnostic(t, "jvm/Run.kt", "import java.io.File", analyzer.CodeUnusedImport)
	actions := buildCodeActions(w.sess, w.uri("jvm/Run.kt"), []lspDiagnostic{d}, []string{codeActionQuickFix})
	if len(actions) != 1 || actions[0].Title != "Remove unused import 'java.io.File'" {
		t.Fatalf("actions = %+v", actions)
	}
	edit := actions[0].Edit.Changes[w.uri("jvm/Run.kt")][0]
	if edit.NewText != "" || edit.Range.Start != (position{Line: 3}) || edit.Range.End != (position{Line: 4}) {
		t.Fatalf("edit = %+v", edit)
	}
}

func TestOrganizeImports(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"common/Tools.kt": toolsSrc,
		"jvm/Run.kt":      "package demo\n\nimport tools.slugify\nimport java.io.File\nimport app.helper\nimport app.helper\n\nfun run() = slugify(helper())\n",
	})
	actions := buildCodeActions(w.sess, w.uri("jvm/Run.kt"), nil, []string{"source"})
	if len(actions) != 1 || actions[0].Kind != codeActionOrganizeImports {
		t.Fatalf("actions = %+v", actions)
	}
	edit := actions[0].Edit.Changes[w.uri("jvm/Run.kt")][0]
	if edit.NewText != "import app.helper\nimport tools.slugify\n" {
		t.Fatalf("organized = %q", edit.NewText)
	}
	if edit.Range.Start.Line != 2 || edit.Range.End.Line != 6 {
		t.Fatalf("range = %+v", edit.Range)
	}
}

func TestOrganizeImportsNoop(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{
		"common/Tools.kt":  toolsSrc,
		"jvm/Sorted.kt":    "package demo\n\nimport app.helper\nimport tools.slugify\n\nfun run() = slugify(helper())\n",
		"jvm/Commented.kt": "package demo\n\nimport tools.slugify\n// keep\nimport app.helper\n\nfun other() = slugify(helper())\n",
	})
	for _, rel := range []string{"jvm/Sorted.kt", "jvm/Commented.kt"} {
		if actions := buildCodeActions(w.sess, w.uri(rel), nil, []string{codeActionOrganizeImports}); len(actions) != 0 {
			t.Errorf("%s: actions = %+v", rel, actions)
		}
	}
}

func TestWants(t *testing.T) {
	tests := []struct {
		only []string
		kind string
		want bool
	}{
		{nil, codeActionQuickFix, true},
		{[]string{codeActionQuickFix}, codeActionOrganizeImports, false},
		{[]string{"source"}, codeActionOrganizeImports, true},
		{[]string{"source.organize"}, codeActionOrganizeImports, false},
	}
	for _, tt := range tests {
		if got := wants(tt.only, tt.kind); got != tt.want {
			t.Errorf("wants(%v, %s) = %v", tt.only, tt.kind, got)
		}
	}
}
