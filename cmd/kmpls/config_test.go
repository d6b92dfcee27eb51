package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func newServerCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "lsp"}
	defineGlobalFlags(cmd)
	defineServerFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, configName+".yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newServerCmd(t), t.TempDir())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Debounce != 750*time.Millisecond || cfg.DiagnosticsDelay != 300*time.Millisecond {
		t.Fatalf("durations = %v / %v", cfg.Debounce, cfg.DiagnosticsDelay)
	}
	if !cfg.WriteThrough || !cfg.Watch || cfg.TreeSitter || cfg.Workers != 0 || cfg.MaxDiagnostics != 100 || cfg.LogLevel != "info" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "workers: 3\ntree-sitter: true\ndebounce: 2s\nwrite-through: false\n")

	cfg, err := loadConfig(newServerCmd(t), dir)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Workers != 3 || !cfg.TreeSitter || cfg.Debounce != 2*time.Second || cfg.WriteThrough {
		t.Fatalf("file cfg = %+v", cfg)
	}

	t.Setenv("KMPLS_WORKERS", "5")
	t.Setenv("KMPLS_DIAGNOSTICS_DELAY", "1s")
	cfg, err = loadConfig(newServerCmd(t), dir)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Workers != 5 || cfg.DiagnosticsDelay != time.Second {
		t.Fatalf("env cfg = %+v", cfg)
	}

	cfg, err = loadConfig(newServerCmd(t, "--workers=7", "--debounce=10ms"), dir)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Workers != 7 || cfg.Debounce != 10*time.Millisecond {
		t.Fatalf("flag cfg = %+v", cfg)
	}
}

func TestLoadConfigExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("max-diagnostics: 7\nlog-level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(newServerCmd(t, "--config", path), "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.MaxDiagnostics != 7 || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if _, err := loadConfig(newServerCmd(t, "--config", path+".missing"), ""); err == nil {
		t.Fatal("missing explicit config should fail")
	}
}

func TestLoadConfigRejectsNegative(t *testing.T) {
	if _, err := loadConfig(newServerCmd(t, "--workers=-1"), t.TempDir()); err == nil {
		t.Fatal("negative workers should fail")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn, err := newLogger(serverConfig{LogLevel: "warn"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closeFn()
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown k=v") {
		t.Fatalf("log output = %q", out)
	}

	path := filepath.Join(t.TempDir(), "kmpls.log")
	log, closeFn, err = newLogger(serverConfig{LogLevel: "DEBUG", LogFile: path}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Debug("to file")
	closeFn()
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "to file") {
		t.Fatalf("log file = %q, %v", data, err)
	}

	if _, _, err := newLogger(serverConfig{LogLevel: "loud"}, &buf); err == nil {
		t.Fatal("unknown level should fail")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("parseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}
