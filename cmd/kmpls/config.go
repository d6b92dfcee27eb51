package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configName = "kmpls-server"
	envPrefix  = "KMPLS"
)

// serverConfig is the resolved server configuration. Precedence: explicit
// flag, KMPLS_* environment, config file, flag default.
type serverConfig struct {
	Debounce         time.Duration
	DiagnosticsDelay time.Duration
	Workers          int
	WriteThrough     bool
	Watch            bool
	LogLevel         string
	LogFile          string
	MaxDiagnostics   int
	TreeSitter       bool
}

// loadConfig binds the flags of cmd into a fresh viper instance. configDir
// is searched for kmpls-server.yaml unless --config names a file.
func loadConfig(cmd *cobra.Command, configDir string) (serverConfig, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return serverConfig{}, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	explicit := v.GetString("config")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if configDir != "" {
			v.AddConfigPath(configDir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return serverConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := serverConfig{
		Debounce:         v.GetDuration("debounce"),
		DiagnosticsDelay: v.GetDuration("diagnostics-delay"),
		Workers:          v.GetInt("workers"),
		WriteThrough:     v.GetBool("write-through"),
		Watch:            v.GetBool("watch"),
		LogLevel:         v.GetString("log-level"),
		LogFile:          v.GetString("log-file"),
		MaxDiagnostics:   v.GetInt("max-diagnostics"),
		TreeSitter:       v.GetBool("tree-sitter"),
	}
	if cfg.Workers < 0 || cfg.MaxDiagnostics < 0 {
		return serverConfig{}, fmt.Errorf("workers and max-diagnostics must not be negative")
	}
	return cfg, nil
}

// defaultConfigDir is <user config dir>/kmpls, or "" when unknown.
func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kmpls")
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", s)
	}
	return lvl, nil
}

// newLogger returns a text logger on stderr or on cfg.LogFile. The closer
// releases the log file.
func newLogger(cfg serverConfig, stderr io.Writer) (*slog.Logger, func(), error) {
	lvl, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	out, closeFn := stderr, func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closeFn = f, func() { _ = f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closeFn, nil
}

// setup resolves config and logger for a command.
func setup(cmd *cobra.Command) (serverConfig, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd, defaultConfigDir())
	if err != nil {
		return serverConfig{}, nil, nil, err
	}
	log, closeFn, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return serverConfig{}, nil, nil, err
	}
	return cfg, log, closeFn, nil
}
