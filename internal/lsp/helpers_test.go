package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf16"

	"kmpls/internal/project"
	"kmpls/internal/session"
	"kmpls/internal/source"
)

const commonPlatform = `package app

expect fun platformName(): String

/** Greets people. */
class Greeter(val prefix: String) {
    fun greet(name: String): String = prefix + name
}
`

const commonUtils = `package app

fun helper(): String = "x"

fun pad(text: String, width: Int, fill: Char): String = text
`

const jvmPlatform = `package app

actual fun platformName(): String = "JVM"
`

const jvmMain = `package app

fun main() {
    val g = Greeter("Hi ")
    val text = g.greet("Bob")
    println(platformName() + text + helper())
}
`

// testWorkspace is a two-module project: common and jvm depending on it.
type testWorkspace struct {
	root  string
	sess  *session.Session
	files map[string]string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func newTestWorkspace(t *testing.T, extra map[string]string) *testWorkspace {
	t.Helper()
	files := map[string]string{
		"common/Platform.kt":  commonPlatform,
		"common/Utils.kt":     commonUtils,
		"jvm/Platform.jvm.kt": jvmPlatform,
		"jvm/Main.kt":         jvmMain,
	}
	for rel, content := range extra {
		files[rel] = content
	}
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
	desc := &project.Descriptor{
		Name:     "demo",
		RootPath: root,
		Modules: []project.ModuleDescriptor{
			{Name: "common", Platform: project.PlatformCommon, SourceRoots: []string{filepath.Join(root, "common")}},
			{Name: "jvm", Platform: project.PlatformJVM, SourceRoots: []string{filepath.Join(root, "jvm")}, DependsOn: []string{"common"}},
		},
	}
	writeThrough := false
	sess := session.New(session.Options{WriteThrough: &writeThrough})
	t.Cleanup(sess.Dispose)
	if err := sess.Initialize(context.Background(), root, desc); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return &testWorkspace{root: root, sess: sess, files: files}
}

func (w *testWorkspace) uri(rel string) string {
	return source.PathToURI(filepath.Join(w.root, filepath.FromSlash(rel)))
}

// pos returns the position delta bytes after the first occurrence of needle
// in the file.
func (w *testWorkspace) pos(t *testing.T, rel, needle string, delta int) position {
	t.Helper()
	text := w.files[rel]
	i := strings.Index(text, needle)
	if i < 0 {
		t.Fatalf("%q not found in %s", needle, rel)
	}
	return positionForOffsetUTF16(text, i+delta)
}

// open pushes new content for rel as an open document.
func (w *testWorkspace) open(rel, content string) {
	w.files[rel] = content
	w.sess.UpdateDocument(w.uri(rel), content)
}

func positionForOffsetUTF16(text string, offset int) position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	line := strings.Count(text[:offset], "\n")
	lineStart := strings.LastIndex(text[:offset], "\n")
	if lineStart == -1 {
		lineStart = 0
	} else {
		lineStart++
	}
	units := 0
	for _, r := range text[lineStart:offset] {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		units += n
	}
	return position{Line: line, Character: units}
}

// readMessages decodes every framed message written to out.
func readMessages(t *testing.T, out *bytes.Buffer) []rpcMessage {
	t.Helper()
	reader := bufio.NewReader(bytes.NewReader(out.Bytes()))
	var msgs []rpcMessage
	for {
		payload, err := readMessage(reader)
		if err != nil {
			return msgs
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		msgs = append(msgs, msg)
	}
}

func request(t *testing.T, id int, method string, params any) *rpcMessage {
	t.Helper()
	payload, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	rawID, _ := json.Marshal(id)
	return &rpcMessage{JSONRPC: "2.0", ID: rawID, Method: method, Params: payload}
}

func hasLocation(locs []location, uri string, line int) bool {
	for _, l := range locs {
		if l.URI == uri && l.Range.Start.Line == line {
			return true
		}
	}
	return false
}
