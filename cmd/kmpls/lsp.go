package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kmpls/internal/lsp"
	"kmpls/internal/project"
	"kmpls/internal/session"
	"kmpls/internal/treesitter"
	"kmpls/internal/version"
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server over stdio",
	RunE:  runLSP,
}

func init() {
	defineServerFlags(lspCmd)
}

func defineServerFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("debounce", session.DefaultDebounce, "quiet period before the analyzer context is rebuilt")
	cmd.Flags().Duration("diagnostics-delay", lsp.DefaultDiagnosticsDelay, "delay before diagnostics are published after an edit")
	cmd.Flags().Int("workers", 0, "concurrently served requests (0 = GOMAXPROCS)")
	cmd.Flags().Bool("write-through", true, "write edits of existing source files to disk")
	cmd.Flags().Bool("watch", true, "watch the workspace for external changes")
	cmd.Flags().Bool("tree-sitter", false, "add tree-sitter syntax diagnostics (cgo builds only)")
}

func runLSP(cmd *cobra.Command, _ []string) error {
	cfg, log, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	if cfg.TreeSitter && !treesitter.Available() {
		log.Warn("tree-sitter requested but the binary was built without cgo")
	}

	writeThrough := cfg.WriteThrough
	sess := session.New(session.Options{
		Debounce:     cfg.Debounce,
		WriteThrough: &writeThrough,
		Logger:       log,
	})
	defer sess.Dispose()

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Session:          sess,
		Logger:           log,
		Workers:          cfg.Workers,
		DiagnosticsDelay: cfg.DiagnosticsDelay,
		MaxDiagnostics:   cfg.MaxDiagnostics,
		TreeSitter:       cfg.TreeSitter,
		Watch:            cfg.Watch,
		Import:           project.Import,
		Version:          version.Version,
	})
	log.Info("kmpls language server starting", "version", version.Version, "pid", os.Getpid())
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
