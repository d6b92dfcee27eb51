package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"kmpls/internal/project"
	"kmpls/internal/session"
	"kmpls/internal/source"
	"kmpls/internal/watch"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// Defaults for ServerOptions zero values.
const (
	DefaultDiagnosticsDelay = 300 * time.Millisecond
	DefaultMaxDiagnostics   = 100
)

// ImportFunc loads the project descriptor of a workspace root.
type ImportFunc func(root string) (*project.Descriptor, error)

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	// Session is required; the caller owns it and disposes it after Run.
	Session *session.Session
	Logger  *slog.Logger
	// Workers bounds concurrently served requests; GOMAXPROCS when zero.
	Workers          int
	DiagnosticsDelay time.Duration
	MaxDiagnostics   int
	// TreeSitter enables the grammar cross-check in diagnostics when the
	// binary was built with cgo.
	TreeSitter bool
	// Watch starts an fsnotify watcher on the workspace root after
	// initialization.
	Watch   bool
	Import  ImportFunc
	Version string
}

type serverSettings struct {
	trace      bool
	keywords   bool
	unresolved bool
	treeSitter bool
	hintTypes  bool
	hintParams bool
}

// Server handles stdio JSON-RPC for kmpls.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex
	mu     sync.Mutex
	log    *slog.Logger
	sess   *session.Session

	versions   map[string]int
	published  map[string]struct{}
	diagTimers map[string]*time.Timer
	diagSeq    map[string]uint64

	workspaceRoot     string
	fingerprint       project.Digest
	initializeSeen    bool
	shutdownRequested bool
	clientProgress    bool
	ready             chan struct{}
	settings          serverSettings

	workers        int
	diagDelay      time.Duration
	maxDiagnostics int
	treeSitter     bool
	watchEnabled   bool
	watcher        *watch.Watcher
	importFn       ImportFunc
	version        string

	baseCtx context.Context
	bg      sync.WaitGroup
	nextID  atomic.Int64
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	sess := opts.Session
	if sess == nil {
		sess = session.New(session.Options{Logger: log})
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	delay := opts.DiagnosticsDelay
	if delay <= 0 {
		delay = DefaultDiagnosticsDelay
	}
	maxDiagnostics := opts.MaxDiagnostics
	if maxDiagnostics <= 0 {
		maxDiagnostics = DefaultMaxDiagnostics
	}
	importFn := opts.Import
	if importFn == nil {
		importFn = project.Import
	}
	return &Server{
		in:             bufio.NewReader(in),
		out:            bufio.NewWriter(out),
		log:            log.With("component", "lsp"),
		sess:           sess,
		versions:       make(map[string]int),
		published:      make(map[string]struct{}),
		diagTimers:     make(map[string]*time.Timer),
		diagSeq:        make(map[string]uint64),
		settings:       serverSettings{keywords: true, unresolved: true, treeSitter: true, hintTypes: true, hintParams: true},
		workers:        workers,
		diagDelay:      delay,
		maxDiagnostics: maxDiagnostics,
		treeSitter:     opts.TreeSitter,
		watchEnabled:   opts.Watch,
		importFn:       importFn,
		version:        opts.Version,
		baseCtx:        context.Background(),
	}
}

// Run serves LSP messages until exit or end of input. Notifications are
// handled on the read loop in receipt order; every request gets its own
// goroutine, and at most s.workers of them run at once. The read loop never
// waits for a worker slot.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	var pool errgroup.Group
	slots := semaphore.NewWeighted(int64(s.workers))
	defer func() {
		_ = pool.Wait()
		s.stop()
	}()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Warn("failed to parse message", "err", err)
			continue
		}
		if msg.Method == "" {
			// ответы клиента на наши запросы (workDoneProgress/create)
			continue
		}
		if s.concurrent(&msg) {
			m := msg
			pool.Go(func() error {
				if err := slots.Acquire(ctx, 1); err != nil {
					return nil
				}
				defer slots.Release(1)
				s.dispatch(&m)
				return nil
			})
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			if errors.Is(err, ErrExit) || errors.Is(err, ErrExitWithoutShutdown) {
				return err
			}
			s.log.Warn("notification failed", "method", msg.Method, "err", err)
		}
	}
}

// concurrent reports whether msg is a query request served off the read
// loop.
func (s *Server) concurrent(msg *rpcMessage) bool {
	if len(msg.ID) == 0 {
		return false
	}
	switch msg.Method {
	case "initialize", "shutdown":
		return false
	}
	return true
}

// dispatch serves one request on a worker goroutine. A panicking handler is
// answered with a null result.
func (s *Server) dispatch(msg *rpcMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", "method", msg.Method, "panic", r, "stack", string(debug.Stack()))
			_ = s.sendResponse(msg.ID, nil)
		}
	}()
	s.awaitReady()
	start := time.Now()
	if err := s.handleMessage(msg); err != nil {
		s.log.Warn("request failed", "method", msg.Method, "err", err)
	}
	s.traceDuration(msg.Method, start)
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	s.traceMessage(msg)
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		s.startWorkspace()
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		s.mu.Lock()
		shutdown := s.shutdownRequested
		s.mu.Unlock()
		if shutdown {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "$/cancelRequest", "$/setTrace":
		return nil
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "workspace/didChangeWatchedFiles":
		return s.handleDidChangeWatchedFiles(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	case "textDocument/completion":
		return s.handleCompletion(msg)
	case "textDocument/signatureHelp":
		return s.handleSignatureHelp(msg)
	case "textDocument/definition":
		return s.handleDefinition(msg)
	case "textDocument/implementation":
		return s.handleImplementation(msg)
	case "textDocument/references":
		return s.handleReferences(msg)
	case "textDocument/prepareRename":
		return s.handlePrepareRename(msg)
	case "textDocument/rename":
		return s.handleRename(msg)
	case "textDocument/documentSymbol":
		return s.handleDocumentSymbol(msg)
	case "workspace/symbol":
		return s.handleWorkspaceSymbol(msg)
	case "textDocument/codeAction":
		return s.handleCodeAction(msg)
	case "textDocument/formatting":
		return s.handleFormatting(msg)
	case "textDocument/rangeFormatting":
		return s.handleRangeFormatting(msg)
	case "textDocument/semanticTokens/full":
		return s.handleSemanticTokens(msg)
	case "textDocument/foldingRange":
		return s.handleFoldingRange(msg)
	case "textDocument/inlayHint":
		return s.handleInlayHint(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

// decodeParams unmarshals request params; on failure the invalid-params
// error has already been sent and ok is false.
func (s *Server) decodeParams(msg *rpcMessage, v any) (ok bool, err error) {
	if len(msg.Params) == 0 {
		return true, nil
	}
	if jerr := json.Unmarshal(msg.Params, v); jerr != nil {
		return false, s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	return true, nil
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if ok, err := s.decodeParams(msg, &params); !ok {
		return err
	}
	root := ""
	if params.RootURI != "" {
		root = source.URIToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = source.URIToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	s.mu.Lock()
	s.workspaceRoot = root
	s.initializeSeen = true
	s.clientProgress = params.Capabilities.Window.WorkDoneProgress
	s.mu.Unlock()
	if len(params.Options) > 0 {
		s.applySettings(params.Options)
	}

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    1,
				Save: saveOptions{
					IncludeText: true,
				},
			},
			HoverProvider:          true,
			DefinitionProvider:     true,
			ImplementationProvider: true,
			ReferencesProvider:     true,
			RenameProvider:         &renameOptions{PrepareProvider: true},
			CompletionProvider: &completionOptions{
				TriggerCharacters: []string{"."},
			},
			SignatureHelpProvider: &signatureHelpOptions{
				TriggerCharacters:   []string{"(", ","},
				RetriggerCharacters: []string{","},
			},
			DocumentSymbolProvider:          true,
			WorkspaceSymbolProvider:         true,
			CodeActionProvider:              &codeActionOptions{CodeActionKinds: []string{codeActionQuickFix, codeActionOrganizeImports}},
			DocumentFormattingProvider:      true,
			DocumentRangeFormattingProvider: true,
			SemanticTokensProvider: &semanticTokensOptions{
				Legend: semanticLegend(),
				Full:   true,
			},
			FoldingRangeProvider: true,
			InlayHintProvider:    true,
		},
		ServerInfo: serverInfo{Name: "kmpls", Version: s.version},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	s.stopDiagnostics()
	s.clearPublishedDiagnostics()
	s.stopWatcher()
	return s.sendResponse(msg.ID, nil)
}

// stop releases timers and the watcher and waits for background work.
func (s *Server) stop() {
	s.stopDiagnostics()
	s.stopWatcher()
	s.bg.Wait()
}

func (s *Server) awaitReady() {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if ready == nil {
		return
	}
	select {
	case <-ready:
	case <-s.baseCtx.Done():
	}
}

// background runs fn on a tracked goroutine that Run waits for.
func (s *Server) background(fn func()) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("background panic", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendNotification(method string, params any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	}
	return s.send(msg)
}

// sendRequest issues a server-to-client request; replies are ignored.
func (s *Server) sendRequest(method string, params any) error {
	id := s.nextID.Add(1)
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("kmpls-%d", id),
		"method":  method,
		"params":  params,
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, version *int, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	return s.sendNotification("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: list,
	})
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) currentSettings() serverSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Server) traceMessage(msg *rpcMessage) {
	if !s.currentSettings().trace {
		return
	}
	s.log.Debug("message", "method", msg.Method, "id", string(msg.ID), "params", len(msg.Params))
}

func (s *Server) traceDuration(method string, start time.Time) {
	if !s.currentSettings().trace {
		return
	}
	s.log.Debug("served", "method", method, "elapsed", time.Since(start))
}
