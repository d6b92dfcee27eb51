package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"kmpls/internal/format"
)

func TestFormatFiles(t *testing.T) {
	root := t.TempDir()
	messy := filepath.Join(root, "src", "Messy.kt")
	clean := filepath.Join(root, "src", "Clean.kt")
	writeFile(t, messy, "fun f(a: Int,b: Int) {  \n\treturn\n}\n\n\n")
	writeFile(t, clean, "fun g() {\n    return\n}\n")

	paths, err := expandFmtPaths([]string{root})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}

	results := formatFiles(paths, root, format.Options{}, false)
	changed := map[string]bool{}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("%s: %v", r.Display, r.Err)
		}
		changed[r.Display] = r.Changed
	}
	if !changed["src/Messy.kt"] || changed["src/Clean.kt"] {
		t.Fatalf("changed = %v", changed)
	}
	if data, _ := os.ReadFile(messy); !bytes.Contains(data, []byte("\t")) {
		t.Fatal("check run rewrote the file")
	}

	formatFiles([]string{messy}, root, format.Options{}, true)
	data, err := os.ReadFile(messy)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fun f(a: Int, b: Int) {\n    return\n}\n" {
		t.Fatalf("formatted = %q", data)
	}
}

func TestFormatFilesReportsErrors(t *testing.T) {
	root := t.TempDir()
	results := formatFiles([]string{filepath.Join(root, "gone.kt")}, root, format.Options{}, true)
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("results = %+v", results)
	}
	var buf bytes.Buffer
	if err := renderFmtJSON(&buf, results, true); err != nil {
		t.Fatal(err)
	}
	var payload []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload[0]["path"] != "gone.kt" || payload[0]["error"] == nil || payload[0]["check"] != true {
		t.Fatalf("payload = %v", payload)
	}
}
