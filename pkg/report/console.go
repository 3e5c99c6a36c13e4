// pkg/report/console.go

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
)

// ConsoleReport prints an audit report as terminal tables
type ConsoleReport struct {
	Out io.Writer

	// NoColor disables ANSI colors
	NoColor bool

	// Verbose prints the narrative of every rule, not only the failing ones
	Verbose bool

	// FailedOnly hides passing rules
	FailedOnly bool

	// NarrativeWidth wraps the narrative column; 0 uses the default
	NarrativeWidth int
}

type palette struct {
	pass, fail, manual, header *color.Color
}

func (c *ConsoleReport) palette() palette {
	p := palette{
		pass:   color.New(color.FgGreen),
		fail:   color.New(color.FgRed, color.Bold),
		manual: color.New(color.FgYellow),
		header: color.New(color.FgCyan, color.Bold),
	}
	if c.NoColor {
		for _, col := range []*color.Color{p.pass, p.fail, p.manual, p.header} {
			col.DisableColor()
		}
	}
	return p
}

// Render writes the report to Out
func (c *ConsoleReport) Render(report *audit.Report) error {
	p := c.palette()

	if _, err := fmt.Fprintf(c.Out, "%s %s (run %s)\n\n",
		p.header.Sprint("CIS audit of"), report.Hostname, report.RunID); err != nil {
		return err
	}
	if report.Interrupted {
		if _, err := fmt.Fprintf(c.Out, "%s\n\n", p.fail.Sprint("Run interrupted: results are partial")); err != nil {
			return err
		}
	}

	for _, section := range report.Sections {
		t := c.sectionTable(p, section)
		if t == nil {
			continue
		}
		if _, err := fmt.Fprintln(c.Out, t.Render()); err != nil {
			return err
		}
		fmt.Fprintln(c.Out)
	}

	if _, err := fmt.Fprintln(c.Out, c.summaryTable(p, report).Render()); err != nil {
		return err
	}

	if len(report.Diagnostics) > 0 {
		fmt.Fprintln(c.Out)
		if _, err := fmt.Fprintln(c.Out, c.diagnosticsTable(report.Diagnostics).Render()); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleReport) sectionTable(p palette, section *audit.CategoryReport) table.Writer {
	var rows []table.Row
	for _, item := range SectionItems(section) {
		if c.FailedOnly && item.Result.Passed() {
			continue
		}
		narrative := ""
		if c.Verbose || !item.Result.Passed() {
			narrative = item.Result.Narrative
		}
		rows = append(rows, table.Row{
			item.Result.ID,
			item.Result.Title,
			c.statusCell(p, item.Result.Status),
			string(item.Result.Severity),
			narrative,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	width := c.NarrativeWidth
	if width <= 0 {
		width = 60
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(p.header.Sprint(section.Name))
	t.AppendHeader(table.Row{"ID", "Rule", "Status", "Severity", "Observation"})
	for _, row := range rows {
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d/%d passed, %.1f%%",
		section.Summary.Passed, section.Summary.Total, section.Summary.CompliancePercentage)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 50},
		{Number: 3, Align: text.AlignCenter},
		{Number: 5, WidthMax: width},
	})
	return t
}

func (c *ConsoleReport) summaryTable(p palette, report *audit.Report) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(p.header.Sprint("Compliance"))
	t.AppendHeader(table.Row{"Category", "Total", "Passed", "Failed", "Manual", "Compliance"})
	for _, section := range report.Sections {
		t.AppendRow(summaryRow(section.Name, section.Summary))
	}
	t.AppendFooter(summaryRow("Overall", report.Summary))
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return t
}

func summaryRow(name string, s audit.Summary) table.Row {
	return table.Row{name, s.Total, s.Passed, s.Failed, s.Manual, fmt.Sprintf("%.1f%%", s.CompliancePercentage)}
}

func (c *ConsoleReport) diagnosticsTable(diagnostics []audit.Diagnostic) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("Diagnostics")
	t.AppendHeader(table.Row{"Kind", "Category", "Check", "Message"})
	for _, d := range diagnostics {
		t.AppendRow(table.Row{d.Kind, d.Category, strings.TrimSpace(d.CheckID + " " + d.Key), d.Message})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 70}})
	return t
}

func (c *ConsoleReport) statusCell(p palette, status audit.Status) string {
	label := strings.ToUpper(string(status))
	switch status {
	case audit.StatusPass:
		return p.pass.Sprint(label)
	case audit.StatusManual:
		return p.manual.Sprint(label)
	}
	return p.fail.Sprint(label)
}
