package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"kmpls/internal/check"
)

func newModel(files ...string) *progressModel {
	return NewProgressModel("checking", files, nil).(*progressModel)
}

func TestApplyEventTracksFiles(t *testing.T) {
	m := newModel("a.kt", "b.kt")
	m.applyEvent(check.Event{File: "a.kt", Stage: check.StageAnalyze, Status: check.StatusWorking})
	if m.items[0].status != "analyzing" || m.items[1].status != "queued" {
		t.Fatalf("items = %+v", m.items)
	}
	if m.percent != 0.2 {
		t.Fatalf("percent = %v", m.percent)
	}
	m.applyEvent(check.Event{File: "a.kt", Stage: check.StageAnalyze, Status: check.StatusDone})
	m.applyEvent(check.Event{File: "b.kt", Stage: check.StageAnalyze, Status: check.StatusError, Err: errors.New("boom")})
	if m.percent != 1 || m.failed != 1 {
		t.Fatalf("percent = %v failed = %d", m.percent, m.failed)
	}
	m.applyEvent(check.Event{File: "unknown.kt", Status: check.StatusDone})
	m.applyEvent(check.Event{Stage: check.StageIndex, Status: check.StatusWorking})
	if m.stageLabel != "indexing" {
		t.Fatalf("stage label = %q", m.stageLabel)
	}
}

func TestViewListsFiles(t *testing.T) {
	m := newModel("src/A.kt")
	m.applyEvent(check.Event{File: "src/A.kt", Stage: check.StageCrossCheck, Status: check.StatusWorking})
	out := m.View()
	if !strings.Contains(out, "checking") || !strings.Contains(out, "src/A.kt") || !strings.Contains(out, "grammar") {
		t.Fatalf("view = %q", out)
	}
	if newModel().View() != "" {
		t.Fatal("empty model should render nothing")
	}
}

func TestVisibleItemsPrefersActive(t *testing.T) {
	files := make([]string, maxRows+5)
	for i := range files {
		files[i] = fmt.Sprintf("f%02d.kt", i)
	}
	m := newModel(files...)
	last := files[len(files)-1]
	m.applyEvent(check.Event{File: last, Stage: check.StageAnalyze, Status: check.StatusWorking})
	rows, hidden := m.visibleItems()
	if len(rows) != maxRows || hidden != 5 || rows[0].path != last {
		t.Fatalf("rows = %+v hidden = %d", rows, hidden)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in       string
		width    int
		ellipsis bool
	}{
		{"short", 10, false},
		{"abcdefghijklmnop", 10, true},
		{"abcdef", 2, false},
		{"日本語のファイル名", 9, true},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.width)
		if w := runewidth.StringWidth(got); w > tt.width {
			t.Errorf("truncate(%q, %d) = %q has width %d", tt.in, tt.width, got, w)
		}
		if strings.HasSuffix(got, "...") != tt.ellipsis {
			t.Errorf("truncate(%q, %d) = %q", tt.in, tt.width, got)
		}
	}
	if got := truncate("anything", 0); got != "anything" {
		t.Fatalf("zero width = %q", got)
	}
}
