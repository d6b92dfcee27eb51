package check

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"kmpls/internal/analyzer"
	"kmpls/internal/session"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func openWorkspace(t *testing.T) (*session.Session, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "Utils.kt"), "package app\n\nfun helper(): String = \"x\"\n")
	writeFile(t, filepath.Join(root, "src", "Broken.kt"), "package app\n\nfun broken() {\n    missing()\n}\n")
	sess, err := Open(context.Background(), root, session.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(sess.Dispose)
	return sess, root
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func TestRunReportsDiagnostics(t *testing.T) {
	sess, _ := openWorkspace(t)
	rec := &recorder{}
	res, err := Run(context.Background(), sess, Request{Progress: rec, Jobs: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Files) != 2 || res.Files[0].Path != "src/Broken.kt" || res.Files[1].Path != "src/Utils.kt" {
		t.Fatalf("files = %+v", res.Files)
	}
	broken := res.Files[0]
	if len(broken.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %+v", broken.Diagnostics)
	}
	d := broken.Diagnostics[0]
	if d.Code != analyzer.CodeUnresolved || d.Range.Start.Line != 3 || d.Range.Start.Character != 4 {
		t.Fatalf("diagnostic = %+v", d)
	}
	if len(res.Files[1].Diagnostics) != 0 || res.Files[1].Detached {
		t.Fatalf("utils = %+v", res.Files[1])
	}
	if !res.HasErrors() || res.Count(analyzer.SeverityWarning) != 0 {
		t.Fatalf("counts: errors=%v warnings=%d", res.HasErrors(), res.Count(analyzer.SeverityWarning))
	}

	final := map[string]Status{}
	queued := 0
	for _, ev := range rec.events {
		if ev.Status == StatusQueued {
			queued++
		}
		final[ev.File] = ev.Status
	}
	if queued != 2 || final["src/Broken.kt"] != StatusError || final["src/Utils.kt"] != StatusDone || final[""] != StatusDone {
		t.Fatalf("events = %+v", rec.events)
	}
}

func TestRunSkipUnresolvedAndSelection(t *testing.T) {
	sess, root := openWorkspace(t)
	req := Request{Files: []string{filepath.Join(root, "src", "Broken.kt")}, SkipUnresolved: true}
	if got := Files(sess, req); len(got) != 1 || got[0] != "src/Broken.kt" {
		t.Fatalf("Files = %v", got)
	}
	res, err := Run(context.Background(), sess, req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Files) != 1 || len(res.Files[0].Diagnostics) != 0 || res.HasErrors() {
		t.Fatalf("result = %+v", res.Files)
	}
}

func TestRunCancelled(t *testing.T) {
	sess, _ := openWorkspace(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, sess, Request{}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestDisplayPath(t *testing.T) {
	root := filepath.FromSlash("/work/proj")
	tests := []struct {
		path string
		want string
	}{
		{filepath.FromSlash("/work/proj/src/A.kt"), "src/A.kt"},
		{filepath.FromSlash("/elsewhere/B.kt"), "/elsewhere/B.kt"},
	}
	for _, tt := range tests {
		if got := DisplayPath(root, tt.path); got != tt.want {
			t.Errorf("DisplayPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestChannelSink(t *testing.T) {
	ch := make(chan Event, 1)
	ChannelSink{Ch: ch}.OnEvent(Event{File: "a"})
	if ev := <-ch; ev.File != "a" {
		t.Fatalf("event = %+v", ev)
	}
	ChannelSink{}.OnEvent(Event{})
	var got []Event
	FuncSink(func(e Event) { got = append(got, e) }).OnEvent(Event{Stage: StageIndex})
	if len(got) != 1 || got[0].Stage != StageIndex {
		t.Fatalf("func sink = %+v", got)
	}
}
