package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kmpls/internal/lsp"
	"kmpls/internal/prof"
	"kmpls/internal/version"
)

var rootCmd = &cobra.Command{
	Use:               "kmpls",
	Short:             "Language server for Kotlin Multiplatform projects",
	Long:              `kmpls indexes multiplatform modules and serves LSP requests over stdio`,
	SilenceUsage:      true,
	PersistentPreRunE: applyGlobals,
}

// errSilent завершает процесс с кодом 1 без повторной печати ошибки
var errSilent = errors.New("")

// profiling запускается в applyGlobals и останавливается после Execute
var profiling *prof.Session

func main() {
	// Устанавливаем версию для автоматического флага --version
	rootCmd.Version = version.Version
	rootCmd.SilenceErrors = true

	// Добавляем команды
	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	defineGlobalFlags(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if profErr := profiling.Stop(); profErr != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("warning:"), profErr)
	}
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		}
		os.Exit(1)
	}
}

func applyGlobals(cmd *cobra.Command, _ []string) error {
	if err := applyColor(cmd); err != nil {
		return err
	}
	flags := cmd.Flags()
	var opts prof.Options
	opts.CPU, _ = flags.GetString("cpu-profile")
	opts.Mem, _ = flags.GetString("mem-profile")
	opts.Trace, _ = flags.GetString("runtime-trace")
	if !opts.Enabled() {
		return nil
	}
	s, err := prof.Start(opts)
	if err != nil {
		return err
	}
	profiling = s
	return nil
}

func applyColor(cmd *cobra.Command) error {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto", "":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

func defineGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	cmd.PersistentFlags().String("config", "", "server config file (default: <user config dir>/kmpls/kmpls-server.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")
	cmd.PersistentFlags().Int("max-diagnostics", lsp.DefaultMaxDiagnostics, "maximum number of diagnostics per file")
	cmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to this file")
	cmd.PersistentFlags().String("mem-profile", "", "write a heap profile to this file on exit")
	cmd.PersistentFlags().String("runtime-trace", "", "write a runtime trace to this file")
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
