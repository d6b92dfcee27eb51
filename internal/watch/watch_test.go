package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDedupe(t *testing.T) {
	in := []Change{
		{Path: "a.kt", Op: OpCreate},
		{Path: "b.kt", Op: OpWrite},
		{Path: "a.kt", Op: OpWrite},
		{Path: "b.kt", Op: OpRemove},
	}
	got := dedupe(in)
	if len(got) != 2 || got[0].Path != "a.kt" || got[0].Op != OpCreate || got[1].Op != OpRemove {
		t.Fatalf("dedupe = %+v", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path         string
		keep, config bool
	}{
		{"/w/src/Main.kt", true, false},
		{"/w/build.gradle.kts", true, true},
		{"/w/kmpls.json", true, true},
		{"/w/README.md", false, false},
	}
	for _, tt := range tests {
		keep, config := classify(tt.path)
		if keep != tt.keep || config != tt.config {
			t.Errorf("classify(%q) = %v, %v", tt.path, keep, config)
		}
	}
}

func TestWatcherDeliversBatch(t *testing.T) {
	root := t.TempDir()
	got := make(chan []Change, 4)
	w, err := New(root, func(cs []Change) { got <- cs }, Options{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "Main.kt")
	if err := os.WriteFile(path, []byte("fun main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case batch := <-got:
		if len(batch) != 1 || batch[0].Path != path || batch[0].Config {
			t.Fatalf("batch = %+v", batch)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}
}
