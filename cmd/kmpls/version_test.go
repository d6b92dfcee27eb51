package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestRenderVersionPretty(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })

	info := versionInfo{Version: "0.1.0-dev", GitCommit: "abc123"}
	var buf bytes.Buffer
	renderVersionPretty(&buf, info, versionOptions{format: "pretty", showHash: true, showDate: true})
	out := buf.String()
	if !strings.HasPrefix(out, "kmpls ") || !strings.Contains(out, "commit: abc123") || !strings.Contains(out, "built:  unknown") {
		t.Fatalf("output = %q", out)
	}
	if strings.Contains(out, "message:") {
		t.Fatalf("message shown without --message: %q", out)
	}
}

func TestRenderVersionJSON(t *testing.T) {
	info := versionInfo{Version: "1.2.3", GitMessage: "fix"}
	var buf bytes.Buffer
	if err := renderVersionJSON(&buf, info, versionOptions{format: "json", showMessage: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Tool != "kmpls" || payload.Version != "1.2.3" || payload.GitMessage != "fix" || payload.GitCommit != "" {
		t.Fatalf("payload = %+v", payload)
	}
}
