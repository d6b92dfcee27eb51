package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kmpls/internal/check"
	"kmpls/internal/project"
	"kmpls/internal/project/dag"
)

var modulesCmd = &cobra.Command{
	Use:   "modules [path]",
	Short: "Show the modules imported for a workspace",
	Long: `modules prints the project descriptor the language server would build for
the workspace: modules in dependency order, their platforms, source roots,
libraries and dependsOn edges, plus descriptor problems.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModules,
}

func init() {
	modulesCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type modulesPayload struct {
	Name        string                     `json:"name"`
	Root        string                     `json:"root"`
	Source      string                     `json:"source"`
	Fingerprint string                     `json:"fingerprint"`
	Modules     []project.ModuleDescriptor `json:"modules"`
	Issues      []string                   `json:"issues,omitempty"`
	Cycles      [][2]string                `json:"brokenCycles,omitempty"`
}

func runModules(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	root, _, err := resolveTargets(args)
	if err != nil {
		return err
	}
	payload, err := describeModules(root)
	if err != nil {
		return err
	}
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
	renderModulesPretty(cmd.OutOrStdout(), payload)
	return nil
}

// describeModules imports root; a workspace without configuration reports
// the single fallback module over the conventional roots.
func describeModules(root string) (modulesPayload, error) {
	desc, err := project.Import(root)
	switch {
	case errors.Is(err, project.ErrNoProject):
		desc = &project.Descriptor{
			Name:     "main",
			RootPath: project.AbsPath(root),
			Source:   project.SourceFallback,
			Modules: []project.ModuleDescriptor{{
				Name:        "main",
				Platform:    project.PlatformCommon,
				SourceRoots: project.ConventionalRoots(root),
			}},
		}
	case err != nil:
		return modulesPayload{}, fmt.Errorf("import project: %w", err)
	}
	digest, err := project.Fingerprint(desc)
	if err != nil {
		return modulesPayload{}, err
	}
	payload := modulesPayload{
		Name:        desc.Name,
		Root:        desc.RootPath,
		Source:      desc.Source,
		Fingerprint: digest.String()[:16],
	}
	for _, issue := range desc.Validate() {
		payload.Issues = append(payload.Issues, string(issue.Code)+": "+issue.Message)
	}
	payload.Modules, payload.Cycles = dag.Order(desc.Modules)
	for i := range payload.Modules {
		m := &payload.Modules[i]
		for j, r := range m.SourceRoots {
			m.SourceRoots[j] = check.DisplayPath(desc.RootPath, r)
		}
	}
	return payload, nil
}

func renderModulesPretty(out io.Writer, p modulesPayload) {
	title := color.New(color.Bold)
	faint := color.New(color.Faint)
	fmt.Fprintf(out, "%s %s\n", title.Sprint(p.Name), faint.Sprintf("(%s, %s)", p.Source, p.Fingerprint))
	for _, m := range p.Modules {
		fmt.Fprintf(out, "  %s %s\n", color.CyanString(m.Name), faint.Sprintf("[%s]", m.Platform))
		if len(m.DependsOn) > 0 {
			fmt.Fprintf(out, "    dependsOn: %s\n", strings.Join(m.DependsOn, ", "))
		}
		for _, r := range m.SourceRoots {
			fmt.Fprintf(out, "    src: %s\n", r)
		}
		for _, lib := range m.Dependencies {
			kind := "source"
			if lib.IsBinaryPackage {
				kind = "binary"
			}
			fmt.Fprintf(out, "    lib: %s %s\n", lib.Name, faint.Sprintf("(%s)", kind))
		}
	}
	for _, c := range p.Cycles {
		fmt.Fprintf(out, "%s dependsOn cycle broken at %s -> %s\n", color.YellowString("warning:"), c[0], c[1])
	}
	for _, issue := range p.Issues {
		fmt.Fprintf(out, "%s %s\n", color.YellowString("warning:"), issue)
	}
}
