// cmd/list.go

package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/cis"
)

// newListCmd creates the list subcommand
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the benchmark rules",
		Long: `Prints every rule of the benchmark with its category and section.
Category names and rule ids printed here are accepted by --include, --skip and --check.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
	cmd.Flags().String("category", "", "Only list rules of this category")
	cmd.Flags().Bool("markdown", false, "Print a markdown table")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	category, _ := cmd.Flags().GetString("category")
	markdown, _ := cmd.Flags().GetBool("markdown")

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Severity", "Category", "Section", "Rule"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 70}})

	count := 0
	for _, entry := range cis.Catalog() {
		if category != "" && audit.Slug(category) != audit.Slug(entry.Category) {
			continue
		}
		t.AppendRow(table.Row{entry.Rule.ID, entry.Rule.Severity, entry.Category, entry.Section, entry.Rule.Title})
		count++
	}
	if count == 0 {
		return fmt.Errorf("no rules found for category %q", category)
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d rules", count)})

	out := cmd.OutOrStdout()
	if markdown {
		fmt.Fprintln(out, t.RenderMarkdown())
		return nil
	}
	fmt.Fprintln(out, t.Render())
	return nil
}
