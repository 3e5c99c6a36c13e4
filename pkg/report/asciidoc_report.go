// pkg/report/asciidoc_report.go

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
)

// AsciiDocReport renders an audit report as an AsciiDoc document
type AsciiDocReport struct {
	// OutputPath is where the report will be saved
	OutputPath string

	// Title is the title of the report
	Title string

	// Report is the audit being rendered
	Report *audit.Report
}

// NewAsciiDocReport creates a new AsciiDoc report
func NewAsciiDocReport(outputPath, title string, report *audit.Report) *AsciiDocReport {
	if title == "" {
		title = fmt.Sprintf("CIS Benchmark Audit - %s", report.Hostname)
	}
	return &AsciiDocReport{
		OutputPath: outputPath,
		Title:      title,
		Report:     report,
	}
}

// Generate generates the report and writes it to the output path
func (r *AsciiDocReport) Generate() (string, error) {
	outputDir := filepath.Dir(r.OutputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(r.OutputPath, []byte(r.Content()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return r.OutputPath, nil
}

// Content returns the full report document
func (r *AsciiDocReport) Content() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("= %s\n", r.Title))
	sb.WriteString(fmt.Sprintf("Host: %s | Run: %s | Started: %s | Duration: %s\n\n",
		r.Report.Hostname, r.Report.RunID,
		r.Report.StartedAt.Format("2006-01-02 15:04:05 MST"), r.Report.Duration.Round(time.Millisecond)))
	sb.WriteString("ifdef::env-github[]\n:tip-caption: :bulb:\n:note-caption: :information_source:\n:important-caption: :heavy_exclamation_mark:\n:caution-caption: :fire:\n:warning-caption: :warning:\nendif::[]\n\n")

	if r.Report.Interrupted {
		sb.WriteString("WARNING: The run was interrupted. Categories that did not run are listed under diagnostics.\n\n")
	}
	sb.WriteString(generateKeySection())
	sb.WriteString(r.generateComplianceSection())
	sb.WriteString(r.generateSummarySection())

	for _, section := range r.Report.Sections {
		items := SectionItems(section)
		if len(items) == 0 {
			continue
		}
		sb.WriteString(r.generateCategorySection(section, items))
	}

	if len(r.Report.Diagnostics) > 0 {
		sb.WriteString(r.generateDiagnosticsSection())
	}

	// Reset bgcolor for future tables
	sb.WriteString("// Reset bgcolor for future tables\n[grid=none,frame=none]\n|===\n|{set:cellbgcolor!}\n|===\n\n")

	return sb.String()
}

// generateKeySection creates the color-coded key section
func generateKeySection() string {
	var sb strings.Builder

	sb.WriteString("= Key\n\n")
	sb.WriteString("[cols=\"1,3\", options=header]\n|===\n|Value\n|Description\n\n")

	sb.WriteString("|\n{set:cellbgcolor:#FF0000}\nChanges Required\n|\n{set:cellbgcolor!}\n")
	sb.WriteString("A high severity rule failed. The host does not meet the benchmark.\n\n")

	sb.WriteString("|\n{set:cellbgcolor:#FEFE20}\nChanges Recommended\n|\n{set:cellbgcolor!}\n")
	sb.WriteString("A low or medium severity rule failed, or could not be verified.\n\n")

	sb.WriteString("|\n{set:cellbgcolor:#00FF00}\nNo Change\n|\n{set:cellbgcolor!}\n")
	sb.WriteString("No change required. In alignment with the benchmark.\n\n")

	sb.WriteString("|\n{set:cellbgcolor:#FFFFFF}\nTo Be Evaluated\n|\n{set:cellbgcolor!}\n")
	sb.WriteString("The rule cannot be automated and needs manual review.\n|===\n\n")

	return sb.String()
}

// generateComplianceSection lists the per category and overall statistics
func (r *AsciiDocReport) generateComplianceSection() string {
	var sb strings.Builder

	sb.WriteString("= Compliance\n\n")
	sb.WriteString("[cols=\"3,1,1,1,1,1\", options=header]\n|===\n|*Category*\n|*Total*\n|*Passed*\n|*Failed*\n|*Manual*\n|*Compliance*\n\n")

	for _, section := range r.Report.Sections {
		sb.WriteString(complianceRow(section.Name, section.Summary))
	}
	sb.WriteString(complianceRow("*Overall*", r.Report.Summary))

	sb.WriteString("|===\n\n")
	return sb.String()
}

func complianceRow(name string, s audit.Summary) string {
	return fmt.Sprintf("|%s\n|%d\n|%d\n|%d\n|%d\n|%.1f%%\n\n",
		name, s.Total, s.Passed, s.Failed, s.Manual, s.CompliancePercentage)
}

// generateSummarySection lists every rule that needs attention
func (r *AsciiDocReport) generateSummarySection() string {
	var sb strings.Builder

	sb.WriteString("= Summary\n\n")

	var findings []Item
	for _, item := range Items(r.Report) {
		if item.ResultKey() != ResultKeyNoChange {
			findings = append(findings, item)
		}
	}
	if len(findings) == 0 {
		sb.WriteString("Every evaluated rule is in alignment with the benchmark.\n\n<<<\n\n")
		return sb.String()
	}

	sb.WriteString("[cols=\"1,2,2,3\", options=header]\n|===\n|*Section*\n|*Item Evaluated*\n|*Observed Result*\n|*Recommendation*\n\n")
	for _, item := range findings {
		sb.WriteString(formatItemRow(item))
		sb.WriteString("\n")
	}

	sb.WriteString("|===\n\n")
	sb.WriteString("<<<\n\n")
	sb.WriteString("{set:cellbgcolor!}\n\n")

	return sb.String()
}

// generateCategorySection creates a section for a specific category
func (r *AsciiDocReport) generateCategorySection(section *audit.CategoryReport, items []Item) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", section.Name))
	sb.WriteString(fmt.Sprintf("%d of %d rules passed (%.1f%%), %d need manual review.\n\n",
		section.Summary.Passed, section.Summary.Total, section.Summary.CompliancePercentage, section.Summary.Manual))

	sb.WriteString("[cols=\"1,2,2,3\", options=header]\n|===\n|*Section*\n|*Item Evaluated*\n|*Observed Result*\n|*Recommendation*\n\n")
	for _, item := range items {
		sb.WriteString(formatItemRow(item))
	}
	sb.WriteString("|===\n\n")

	for _, item := range items {
		sb.WriteString(formatCheckDetail(item))
	}

	sb.WriteString("<<<\n\n")
	sb.WriteString("{set:cellbgcolor!}\n\n")

	return sb.String()
}

func formatItemRow(item Item) string {
	var sb strings.Builder

	sb.WriteString("// ------------------------ITEM START\n")
	sb.WriteString("// ----ITEM SOURCE:  " + item.Result.ID + " " + item.Key + "\n\n")
	sb.WriteString("// Section\n")
	sb.WriteString("|\n{set:cellbgcolor!}\n" + escapeCell(item.Section) + "\n\n")

	sb.WriteString("// Item Evaluated\n")
	sb.WriteString(fmt.Sprintf("a|\n<<%s,%s %s>>\n\n", anchor(item), item.Result.ID, escapeCell(item.Result.Title)))

	sb.WriteString("| " + escapeCell(firstLine(item.Result.Narrative)) + " \n\n")

	sb.WriteString(getResultFormatting(item.ResultKey()) + "\n\n")
	sb.WriteString("// ------------------------ITEM END\n")

	return sb.String()
}

// formatCheckDetail formats detailed information about a check
func formatCheckDetail(item Item) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[[%s]]\n== %s %s\n\n", anchor(item), item.Result.ID, item.Result.Title))
	sb.WriteString(getStatusTable(item.ResultKey()) + "\n\n")

	sb.WriteString(fmt.Sprintf("*Status:* %s | *Severity:* %s | *Key:* `%s`\n\n",
		item.Result.Status, item.Result.Severity, item.Key))

	sb.WriteString("**Observation**\n\n")
	if strings.Contains(item.Result.Narrative, "\n") {
		sb.WriteString(formatAsCodeBlock(item.Result.Narrative, "text"))
	} else {
		sb.WriteString(item.Result.Narrative + "\n\n")
	}

	return sb.String()
}

// generateDiagnosticsSection lists run problems that are not rule results
func (r *AsciiDocReport) generateDiagnosticsSection() string {
	var sb strings.Builder

	sb.WriteString("# Diagnostics\n\n")
	sb.WriteString("[cols=\"1,2,1,4\", options=header]\n|===\n|*Kind*\n|*Category*\n|*Check*\n|*Message*\n\n")
	for _, d := range r.Report.Diagnostics {
		check := d.CheckID
		if d.Key != "" {
			check = strings.TrimSpace(check + " " + d.Key)
		}
		sb.WriteString(fmt.Sprintf("|%s\n|%s\n|%s\n|%s\n\n",
			d.Kind, escapeCell(d.Category), escapeCell(check), escapeCell(d.Message)))
	}
	sb.WriteString("|===\n\n")

	return sb.String()
}

// getResultFormatting returns formatted AsciiDoc for a result key (used in tables)
func getResultFormatting(resultKey ResultKey) string {
	label, color := keyLabel(resultKey)
	return fmt.Sprintf("|\n{set:cellbgcolor:%s}\n%s", color, label)
}

// getStatusTable returns a colored status table for a result key (used in detailed sections)
func getStatusTable(resultKey ResultKey) string {
	label, color := keyLabel(resultKey)
	return fmt.Sprintf("[cols=\"^\"] \n|===\n|\n{set:cellbgcolor:%s}\n%s\n|===", color, label)
}

func keyLabel(resultKey ResultKey) (label, color string) {
	switch resultKey {
	case ResultKeyRequired:
		return "Changes Required", "#FF0000"
	case ResultKeyRecommended:
		return "Changes Recommended", "#FEFE20"
	case ResultKeyNoChange:
		return "No Change", "#00FF00"
	}
	return "To Be Evaluated", "#FFFFFF"
}

// formatAsCodeBlock formats text as a source block
func formatAsCodeBlock(content string, language string) string {
	if language == "" {
		language = "text"
	}
	content = strings.TrimRight(content, "\n")
	return fmt.Sprintf("[source,%s]\n----\n%s\n----\n\n", language, content)
}

// anchor builds a stable cross reference id for an item
func anchor(item Item) string {
	id := strings.NewReplacer(".", "-", " ", "-").Replace(item.Result.ID)
	if id == "" {
		id = item.Key
	}
	return "rule-" + id + "-" + item.Key
}

// escapeCell keeps cell separators in free text from splitting table cells
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func firstLine(s string) string {
	if line, _, found := strings.Cut(s, "\n"); found {
		return line + " ..."
	}
	return s
}
