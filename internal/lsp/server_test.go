package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"kmpls/internal/analyzer"
	"kmpls/internal/project"
	"kmpls/internal/session"
	"kmpls/internal/source"
)

func frame(t *testing.T, buf *bytes.Buffer, msg any) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := writeMessage(buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func responseByID(msgs []rpcMessage, id int) (rpcMessage, bool) {
	want, _ := json.Marshal(id)
	for _, m := range msgs {
		if m.Method == "" && bytes.Equal(m.ID, want) {
			return m, true
		}
	}
	return rpcMessage{}, false
}

func TestRunLifecycle(t *testing.T) {
	var in, out bytes.Buffer
	frame(t, &in, request(t, 1, "initialize", map[string]any{"capabilities": map[string]any{}}))
	frame(t, &in, request(t, 2, "kmpls/unknown", nil))
	frame(t, &in, request(t, 3, "shutdown", nil))
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})

	sess := session.New(session.Options{})
	defer sess.Dispose()
	srv := NewServer(&in, &out, ServerOptions{Session: sess, Version: "1.2.3"})
	if err := srv.Run(context.Background()); !errors.Is(err, ErrExit) {
		t.Fatalf("Run = %v, want ErrExit", err)
	}
	msgs := readMessages(t, &out)

	initResp, ok := responseByID(msgs, 1)
	if !ok {
		t.Fatalf("no initialize response in %+v", msgs)
	}
	var result initializeResult
	if err := json.Unmarshal(initResp.Result, &result); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if result.ServerInfo.Name != "kmpls" || result.ServerInfo.Version != "1.2.3" {
		t.Fatalf("server info = %+v", result.ServerInfo)
	}
	caps := result.Capabilities
	if caps.TextDocumentSync.Change != 1 || !caps.HoverProvider || !caps.ImplementationProvider || caps.SemanticTokensProvider == nil {
		t.Fatalf("capabilities = %+v", caps)
	}

	unknown, ok := responseByID(msgs, 2)
	if !ok || unknown.Error == nil || unknown.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method response = %+v", unknown)
	}
	if _, ok := responseByID(msgs, 3); !ok {
		t.Fatal("no shutdown response")
	}
}

func TestRunExitWithoutShutdown(t *testing.T) {
	var in, out bytes.Buffer
	frame(t, &in, map[string]any{"jsonrpc": "2.0", "method": "exit"})
	sess := session.New(session.Options{})
	defer sess.Dispose()
	srv := NewServer(&in, &out, ServerOptions{Session: sess})
	if err := srv.Run(context.Background()); !errors.Is(err, ErrExitWithoutShutdown) {
		t.Fatalf("Run = %v", err)
	}
}

func TestRunEndOfInput(t *testing.T) {
	var out bytes.Buffer
	sess := session.New(session.Options{})
	defer sess.Dispose()
	srv := NewServer(bytes.NewReader(nil), &out, ServerOptions{Session: sess})
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

const brokenSrc = "package app\n\nfun broken() {\n    missing()\n}\n"

func TestDiagnosticsPublishAndClear(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{"jvm/Broken.kt": brokenSrc})
	var out bytes.Buffer
	srv := NewServer(bytes.NewReader(nil), &out, ServerOptions{Session: w.sess})
	uri := w.uri("jvm/Broken.kt")

	open := request(t, 0, "textDocument/didOpen", didOpenTextDocumentParams{
		TextDocument: textDocumentItem{URI: uri, LanguageID: "kotlin", Version: 4, Text: brokenSrc},
	})
	open.ID = nil
	if err := srv.handleDidOpen(open); err != nil {
		t.Fatalf("didOpen: %v", err)
	}
	srv.stopDiagnostics()
	srv.mu.Lock()
	seq := srv.diagSeq[uri]
	srv.mu.Unlock()
	srv.runDiagnostics(uri, seq)

	closeMsg := request(t, 0, "textDocument/didClose", didCloseTextDocumentParams{TextDocument: textDocumentIdentifier{URI: uri}})
	closeMsg.ID = nil
	if err := srv.handleDidClose(closeMsg); err != nil {
		t.Fatalf("didClose: %v", err)
	}

	msgs := readMessages(t, &out)
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	var first, second publishDiagnosticsParams
	if err := json.Unmarshal(msgs[0].Params, &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(msgs[1].Params, &second); err != nil {
		t.Fatal(err)
	}
	if first.URI != uri || first.Version == nil || *first.Version != 4 {
		t.Fatalf("publish = %+v", first)
	}
	found := false
	for _, d := range first.Diagnostics {
		if d.Code == analyzer.CodeUnresolved && d.Range.Start.Line == 3 && d.Source == diagnosticSource {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing unresolved reference: %+v", first.Diagnostics)
	}
	if second.URI != uri || second.Diagnostics == nil || len(second.Diagnostics) != 0 {
		t.Fatalf("clear = %+v", second)
	}
}

func TestStaleDiagnosticsAreDropped(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{"jvm/Broken.kt": brokenSrc})
	var out bytes.Buffer
	srv := NewServer(bytes.NewReader(nil), &out, ServerOptions{Session: w.sess})
	uri := w.uri("jvm/Broken.kt")
	w.sess.UpdateDocument(uri, brokenSrc)
	srv.scheduleDiagnostics(uri)
	srv.scheduleDiagnostics(uri)
	srv.stopDiagnostics()
	srv.runDiagnostics(uri, 1)
	if out.Len() != 0 {
		t.Fatalf("stale run published: %q", out.String())
	}
	srv.runDiagnostics(uri, 2)
	if msgs := readMessages(t, &out); len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestSettingsFilterDiagnostics(t *testing.T) {
	w := newTestWorkspace(t, map[string]string{"jvm/Broken.kt": brokenSrc})
	srv := NewServer(bytes.NewReader(nil), &bytes.Buffer{}, ServerOptions{Session: w.sess, MaxDiagnostics: 10})
	uri := w.uri("jvm/Broken.kt")
	if got := srv.collectDiagnostics(uri); len(got) == 0 {
		t.Fatal("expected diagnostics")
	}
	if !srv.applySettings(json.RawMessage(`{"kmpls":{"diagnostics":{"unresolved":false},"completion":{"keywords":false}}}`)) {
		t.Fatal("unresolved toggle should report a diagnostics change")
	}
	for _, d := range srv.collectDiagnostics(uri) {
		if d.Code == analyzer.CodeUnresolved {
			t.Fatalf("unresolved reported while disabled: %+v", d)
		}
	}
	if cfg := srv.currentSettings(); cfg.keywords || !cfg.hintTypes {
		t.Fatalf("settings = %+v", cfg)
	}
	if srv.applySettings(json.RawMessage(`{"kmpls":{"inlayHints":{"types":false}}}`)) {
		t.Fatal("inlay hint settings do not affect diagnostics")
	}
}

func TestCanonicalURI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"untitled:Untitled-1", "untitled:Untitled-1"},
		{"file:///tmp/a/../b/X.kt", "file:///tmp/b/X.kt"},
	}
	for _, tt := range tests {
		if got := canonicalURI(tt.in); got != tt.want {
			t.Errorf("canonicalURI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplyChanges(t *testing.T) {
	text := "fun a() {\n    val 😀 = 1\n}\n"
	rng := lspRange{Start: position{Line: 1, Character: 13}, End: position{Line: 1, Character: 14}}
	got := applyChanges(text, []textDocumentContentChangeEvent{{Range: &rng, Text: "2"}})
	if got != "fun a() {\n    val 😀 = 2\n}\n" {
		t.Fatalf("ranged change = %q", got)
	}
	if got := applyChanges(text, []textDocumentContentChangeEvent{{Text: "x"}}); got != "x" {
		t.Fatalf("full change = %q", got)
	}
}

func TestWorkDoneProgress(t *testing.T) {
	var out bytes.Buffer
	sess := session.New(session.Options{})
	defer sess.Dispose()
	srv := NewServer(bytes.NewReader(nil), &out, ServerOptions{Session: sess})

	srv.beginProgress("Indexing")("done")
	if out.Len() != 0 {
		t.Fatalf("progress sent without client support: %q", out.String())
	}

	srv.clientProgress = true
	srv.beginProgress("Indexing")("done")
	msgs := readMessages(t, &out)
	if len(msgs) != 3 || msgs[0].Method != "window/workDoneProgress/create" || msgs[1].Method != "$/progress" || msgs[2].Method != "$/progress" {
		t.Fatalf("messages = %+v", msgs)
	}
	var create workDoneProgressCreateParams
	if err := json.Unmarshal(msgs[0].Params, &create); err != nil {
		t.Fatal(err)
	}
	var begin, end struct {
		Token string           `json:"token"`
		Value workDoneProgress `json:"value"`
	}
	if err := json.Unmarshal(msgs[1].Params, &begin); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(msgs[2].Params, &end); err != nil {
		t.Fatal(err)
	}
	if create.Token == "" || begin.Token != create.Token || end.Token != create.Token {
		t.Fatalf("tokens = %q %q %q", create.Token, begin.Token, end.Token)
	}
	if begin.Value.Kind != "begin" || begin.Value.Title != "Indexing" || end.Value.Kind != "end" || end.Value.Message != "done" {
		t.Fatalf("progress = %+v / %+v", begin.Value, end.Value)
	}
}

func TestBusyWorkersDoNotBlockNotifications(t *testing.T) {
	root := t.TempDir()
	release := make(chan struct{})
	sess := session.New(session.Options{})
	defer sess.Dispose()
	pr, pw := io.Pipe()
	var out bytes.Buffer
	srv := NewServer(pr, &out, ServerOptions{
		Session: sess,
		Workers: 1,
		Import: func(string) (*project.Descriptor, error) {
			<-release
			return nil, project.ErrNoProject
		},
	})
	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(context.Background()) }()

	uri := source.PathToURI(filepath.Join(root, "Open.kt"))
	send := func(msg any) {
		var buf bytes.Buffer
		frame(t, &buf, msg)
		if _, err := pw.Write(buf.Bytes()); err != nil {
			t.Errorf("write: %v", err)
		}
	}
	hover := textDocumentPositionParams{TextDocument: textDocumentIdentifier{URI: uri}}
	written := make(chan struct{})
	go func() {
		defer close(written)
		send(request(t, 1, "initialize", map[string]any{"rootUri": source.PathToURI(root), "capabilities": map[string]any{}}))
		send(map[string]any{"jsonrpc": "2.0", "method": "initialized", "params": map[string]any{}})
		// both requests wait for the workspace; the second one has no free slot
		send(request(t, 2, "textDocument/hover", hover))
		send(request(t, 3, "textDocument/hover", hover))
		send(map[string]any{"jsonrpc": "2.0", "method": "textDocument/didOpen", "params": didOpenTextDocumentParams{
			TextDocument: textDocumentItem{URI: uri, LanguageID: "kotlin", Version: 1, Text: "fun f() {}\n"},
		}})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !sess.Documents().IsOpen(uri) {
		if time.Now().After(deadline) {
			close(release)
			t.Fatal("didOpen was not handled while requests were waiting for a worker")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	<-written

	send(request(t, 4, "shutdown", nil))
	send(map[string]any{"jsonrpc": "2.0", "method": "exit"})
	if err := <-runErr; !errors.Is(err, ErrExit) {
		t.Fatalf("Run = %v", err)
	}
	_ = pw.Close()
	msgs := readMessages(t, &out)
	for _, id := range []int{2, 3} {
		if _, ok := responseByID(msgs, id); !ok {
			t.Fatalf("no response to hover %d in %+v", id, msgs)
		}
	}
}
