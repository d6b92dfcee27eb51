package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"kmpls/internal/check"
	"kmpls/internal/format"
	"kmpls/internal/project"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [flags] <path> [path...]",
	Short: "Normalize whitespace in source files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFmt,
}

func init() {
	fmtCmd.Flags().Bool("check", false, "list files that need formatting and fail if any do")
	fmtCmd.Flags().String("format", "text", "output format (text|json)")
	fmtCmd.Flags().Bool("stdout", false, "print formatted code to stdout instead of rewriting files")
	fmtCmd.Flags().Int("indent", 4, "columns per indentation level")
	fmtCmd.Flags().Bool("tabs", false, "indent with tabs")
}

type fmtResult struct {
	Path      string
	Display   string
	Changed   bool
	Formatted []byte
	Err       error
}

// expandFmtPaths turns directories into the source files beneath them.
func expandFmtPaths(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %q: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, project.AbsPath(arg))
			continue
		}
		dir := project.AbsPath(arg)
		found, err := project.SourceFiles(dir, []string{dir})
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func formatFiles(paths []string, cwd string, opt format.Options, write bool) []fmtResult {
	results := make([]fmtResult, 0, len(paths))
	for _, path := range paths {
		res := fmtResult{Path: path, Display: check.DisplayPath(cwd, path)}
		content, err := os.ReadFile(path)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		res.Formatted = format.Source(path, content, opt)
		res.Changed = !bytes.Equal(content, res.Formatted)
		if write && res.Changed {
			if err := os.WriteFile(path, res.Formatted, 0o644); err != nil {
				res.Err = fmt.Errorf("write: %w", err)
			}
		}
		results = append(results, res)
	}
	return results
}

func runFmt(cmd *cobra.Command, args []string) error {
	checkOnly, _ := cmd.Flags().GetBool("check")
	outputFormat, _ := cmd.Flags().GetString("format")
	toStdout, _ := cmd.Flags().GetBool("stdout")
	indent, _ := cmd.Flags().GetInt("indent")
	tabs, _ := cmd.Flags().GetBool("tabs")

	if toStdout && checkOnly {
		return fmt.Errorf("fmt: --stdout cannot be used with --check")
	}
	if outputFormat != "text" && outputFormat != "json" {
		return fmt.Errorf("fmt: unsupported output format %q", outputFormat)
	}
	if toStdout && outputFormat != "text" {
		return fmt.Errorf("fmt: --stdout is only supported with text output")
	}

	paths, err := expandFmtPaths(args)
	if err != nil {
		return err
	}
	cwd, _ := os.Getwd()
	results := formatFiles(paths, cwd, format.Options{IndentWidth: indent, UseTabs: tabs}, !checkOnly && !toStdout)

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	hasErrors, hasChanges := false, false
	for _, res := range results {
		if res.Err != nil {
			hasErrors = true
			fmt.Fprintf(errOut, "fmt: %s: %v\n", res.Display, res.Err)
		}
		if res.Changed {
			hasChanges = true
		}
	}
	switch {
	case outputFormat == "json":
		if err := renderFmtJSON(out, results, checkOnly); err != nil {
			return err
		}
	case toStdout:
		for _, res := range results {
			if res.Err == nil {
				_, _ = out.Write(res.Formatted)
			}
		}
	default:
		for _, res := range results {
			if res.Err != nil || !res.Changed {
				continue
			}
			if checkOnly {
				fmt.Fprintln(out, res.Display)
			} else {
				fmt.Fprintf(out, "reformatted %s\n", res.Display)
			}
		}
	}

	if hasErrors {
		return fmt.Errorf("fmt: failed to format some files")
	}
	if checkOnly && hasChanges {
		return fmt.Errorf("fmt: formatting changes required")
	}
	return nil
}

func renderFmtJSON(out io.Writer, results []fmtResult, checkOnly bool) error {
	type jsonResult struct {
		Path     string `json:"path"`
		Changed  bool   `json:"changed"`
		Error    string `json:"error,omitempty"`
		CheckRun bool   `json:"check"`
	}
	payload := make([]jsonResult, 0, len(results))
	for _, res := range results {
		jr := jsonResult{Path: res.Display, Changed: res.Changed, CheckRun: checkOnly}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		payload = append(payload, jr)
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
