package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kmpls/internal/analyzer"
	"kmpls/internal/check"
	"kmpls/internal/observ"
	"kmpls/internal/project"
	"kmpls/internal/session"
)

var checkCmd = &cobra.Command{
	Use:   "check [path...]",
	Short: "Analyze a workspace and print its diagnostics",
	Long: `check imports the project around the given paths (the current directory
by default), analyzes every source file and prints the diagnostics the
language server would publish. Paths may name the workspace root or single
files inside it. The exit code is 1 when any error is reported.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Int("workers", 0, "files analyzed in parallel (0 = GOMAXPROCS)")
	checkCmd.Flags().Bool("tree-sitter", false, "add tree-sitter syntax diagnostics (cgo builds only)")
	checkCmd.Flags().Bool("no-unresolved", false, "skip unresolved reference diagnostics")
	checkCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	checkCmd.Flags().String("format", "text", "output format (text|json)")
	checkCmd.Flags().Bool("timings", false, "print phase timings to stderr")
}

// resolveTargets finds the workspace root for args and the files they name.
// The first path decides the root: the nearest directory with a project
// marker, else the path itself.
func resolveTargets(args []string) (string, []string, error) {
	start := "."
	var files []string
	for i, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return "", nil, fmt.Errorf("failed to stat %q: %w", arg, err)
		}
		if info.IsDir() {
			if i == 0 {
				start = arg
			}
			continue
		}
		files = append(files, project.AbsPath(arg))
		if i == 0 {
			start = filepath.Dir(arg)
		}
	}
	root, ok, err := project.FindProjectRoot(start)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		root = project.AbsPath(start)
	}
	return root, files, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, log, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be text or json)", format)
	}
	uiFlag, _ := cmd.Flags().GetString("ui")
	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}
	skipUnresolved, _ := cmd.Flags().GetBool("no-unresolved")
	showTimings, _ := cmd.Flags().GetBool("timings")
	timer := observ.NewTimer()

	root, files, err := resolveTargets(args)
	if err != nil {
		return err
	}
	noWrite := false
	var sess *session.Session
	err = timer.Time("open workspace", func() error {
		var openErr error
		sess, openErr = check.Open(cmd.Context(), root, session.Options{Logger: log, WriteThrough: &noWrite})
		return openErr
	})
	if err != nil {
		return err
	}
	defer sess.Dispose()

	req := check.Request{
		Files:          files,
		Jobs:           cfg.Workers,
		TreeSitter:     cfg.TreeSitter,
		SkipUnresolved: skipUnresolved,
		MaxPerFile:     cfg.MaxDiagnostics,
		Logger:         log,
	}
	var res *check.Result
	err = timer.Time("analyze", func() error {
		var runErr error
		if shouldUseTUI(mode, isTerminal(os.Stderr), format) {
			res, runErr = runCheckWithUI(cmd.Context(), "checking "+filepath.Base(root), sess, req)
		} else {
			res, runErr = check.Run(cmd.Context(), sess, req)
		}
		return runErr
	})
	if err != nil {
		return err
	}
	if showTimings {
		fmt.Fprint(cmd.ErrOrStderr(), timer.Summary())
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		if err := renderCheckJSON(out, res); err != nil {
			return err
		}
	} else {
		renderCheckText(out, res)
	}
	if res.HasErrors() {
		return errSilent
	}
	return nil
}

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	pathColor    = color.New(color.Bold)
	codeColor    = color.New(color.Faint)
)

func severityLabel(sev analyzer.Severity) string {
	switch sev {
	case analyzer.SeverityError:
		return errorColor.Sprint("error")
	case analyzer.SeverityWarning:
		return warningColor.Sprint("warning")
	case analyzer.SeverityInfo:
		return infoColor.Sprint("info")
	default:
		return infoColor.Sprint("hint")
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// renderCheckText prints one line per diagnostic with 1-based positions.
func renderCheckText(out io.Writer, res *check.Result) {
	for _, f := range res.Files {
		for _, d := range f.Diagnostics {
			fmt.Fprintf(out, "%s:%d:%d: %s: %s %s\n",
				pathColor.Sprint(f.Path), d.Range.Start.Line+1, d.Range.Start.Character+1,
				severityLabel(d.Severity), d.Message, codeColor.Sprintf("[%s]", d.Code))
		}
	}
	summary := fmt.Sprintf("%s checked, %s, %s",
		plural(len(res.Files), "file"),
		plural(res.Count(analyzer.SeverityError), "error"),
		plural(res.Count(analyzer.SeverityWarning), "warning"))
	var detached []string
	for _, f := range res.Files {
		if f.Detached {
			detached = append(detached, f.Path)
		}
	}
	if len(detached) > 0 {
		summary += fmt.Sprintf(" (%d without module context)", len(detached))
	}
	fmt.Fprintf(out, "%s in %s\n", summary, res.Elapsed.Round(time.Millisecond))
}

type jsonDiagnostic struct {
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Severity  string `json:"severity"`
	Code      string `json:"code"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

type jsonFile struct {
	Path        string           `json:"path"`
	Detached    bool             `json:"detached,omitempty"`
	Diagnostics []jsonDiagnostic `json:"diagnostics"`
}

var severityNames = map[analyzer.Severity]string{
	analyzer.SeverityError:   "error",
	analyzer.SeverityWarning: "warning",
	analyzer.SeverityInfo:    "info",
	analyzer.SeverityHint:    "hint",
}

func renderCheckJSON(out io.Writer, res *check.Result) error {
	files := make([]jsonFile, 0, len(res.Files))
	for _, f := range res.Files {
		jf := jsonFile{Path: f.Path, Detached: f.Detached, Diagnostics: []jsonDiagnostic{}}
		for _, d := range f.Diagnostics {
			jf.Diagnostics = append(jf.Diagnostics, jsonDiagnostic{
				Line:      d.Range.Start.Line + 1,
				Column:    d.Range.Start.Character + 1,
				EndLine:   d.Range.End.Line + 1,
				EndColumn: d.Range.End.Character + 1,
				Severity:  severityNames[d.Severity],
				Code:      d.Code,
				Source:    d.Source,
				Message:   strings.TrimSpace(d.Message),
			})
		}
		files = append(files, jf)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(files)
}
