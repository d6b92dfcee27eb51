package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"kmpls/internal/check"
	"kmpls/internal/index"
	"kmpls/internal/session"
	"kmpls/internal/source"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [query]",
	Short: "Search the declaration index of a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSymbols,
}

func init() {
	symbolsCmd.Flags().String("root", ".", "workspace root")
	symbolsCmd.Flags().StringSlice("kind", nil, "only these kinds (class, interface, object, enum, function, property, typeAlias, constructor, enumEntry)")
	symbolsCmd.Flags().Int("limit", 200, "maximum number of results (0 = all)")
	symbolsCmd.Flags().String("format", "text", "output format (text|json)")
}

type symbolRow struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Qualified string `json:"qualifiedName"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
}

func runSymbols(cmd *cobra.Command, args []string) error {
	_, log, closeLog, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	rootFlag, _ := cmd.Flags().GetString("root")
	kinds, _ := cmd.Flags().GetStringSlice("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be text or json)", format)
	}
	root, _, err := resolveTargets([]string{rootFlag})
	if err != nil {
		return err
	}
	sess, err := check.Open(cmd.Context(), root, session.Options{Logger: log})
	if err != nil {
		return err
	}
	defer sess.Dispose()

	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	rows, err := searchSymbols(sess.Declarations(), sess.Root(), query, kinds, limit)
	if err != nil {
		return err
	}
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	renderSymbolTable(cmd.OutOrStdout(), rows)
	return nil
}

func parseKinds(names []string) ([]index.Kind, error) {
	var out []index.Kind
	for _, name := range names {
		found := false
		for k := index.KindClass; k <= index.KindEnumEntry; k++ {
			if strings.EqualFold(k.String(), strings.TrimSpace(name)) {
				out = append(out, k)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown symbol kind %q", name)
		}
	}
	return out, nil
}

// searchSymbols filters after the search so that limit counts kept rows.
func searchSymbols(decls *index.DeclarationIndex, root, query string, kindNames []string, limit int) ([]symbolRow, error) {
	kinds, err := parseKinds(kindNames)
	if err != nil {
		return nil, err
	}
	rows := []symbolRow{}
	for _, d := range decls.Search(query, 0) {
		if len(kinds) > 0 && !slices.Contains(kinds, d.Kind) {
			continue
		}
		rows = append(rows, symbolRow{
			Name:      d.Name,
			Kind:      d.Kind.String(),
			Qualified: d.QualifiedName(),
			Path:      check.DisplayPath(root, source.URIToPath(d.FileURI)),
			Line:      d.NameRange.Start.Line + 1,
		})
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

// renderSymbolTable aligns columns by display width.
func renderSymbolTable(out io.Writer, rows []symbolRow) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no symbols found")
		return
	}
	nameW, kindW := runewidth.StringWidth("NAME"), runewidth.StringWidth("KIND")
	for _, r := range rows {
		nameW = max(nameW, runewidth.StringWidth(r.Qualified))
		kindW = max(kindW, runewidth.StringWidth(r.Kind))
	}
	fmt.Fprintf(out, "%s  %s  %s\n", runewidth.FillRight("NAME", nameW), runewidth.FillRight("KIND", kindW), "LOCATION")
	for _, r := range rows {
		fmt.Fprintf(out, "%s  %s  %s:%d\n",
			runewidth.FillRight(r.Qualified, nameW), runewidth.FillRight(r.Kind, kindW), r.Path, r.Line)
	}
}
