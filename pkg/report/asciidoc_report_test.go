package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
)

func TestAsciiDocReport_Content(t *testing.T) {
	content := NewAsciiDocReport("unused.adoc", "", sampleReport("web01")).Content()

	assert.True(t, strings.HasPrefix(content, "= CIS Benchmark Audit - web01\n"))
	assert.Contains(t, content, "Run: run-1")
	assert.Contains(t, content, "= Key")
	assert.Contains(t, content, "|*Overall*\n|4\n|1\n|3\n|1\n|25.0%")

	// required change for the failing high severity rule
	assert.Contains(t, content, "<<rule-6-2-1-auditd_installed,6.2.1 Ensure auditd packages are installed>>")
	assert.Contains(t, content, "{set:cellbgcolor:#FF0000}\nChanges Required")
	assert.Contains(t, content, "{set:cellbgcolor:#FEFE20}\nChanges Recommended")
	assert.Contains(t, content, "{set:cellbgcolor:#FFFFFF}\nTo Be Evaluated")

	// pipes in free text are escaped inside table cells, multi-line narratives become source blocks
	assert.Contains(t, content, "| missing packages \\| auditd ... \n")
	assert.Contains(t, content, "[source,text]\n----\nmissing packages | auditd\naudispd-plugins\n----")

	assert.Contains(t, content, "# Diagnostics")
	assert.Contains(t, content, "|timeout\n|System Auditing\n|6.2.4\n|check timed out")

	assert.Less(t, strings.Index(content, "[[rule-5-1-2-"), strings.Index(content, "[[rule-5-1-10-"))
	assert.Less(t, strings.Index(content, "# Access Control"), strings.Index(content, "# Logging and Auditing"))
}

func TestAsciiDocReport_SummaryListsFindingsOnly(t *testing.T) {
	content := NewAsciiDocReport("unused.adoc", "Audit", sampleReport("web01")).Content()

	summary := content[strings.Index(content, "= Summary"):strings.Index(content, "# Access Control")]
	assert.NotContains(t, summary, "5.1.2 ")
	assert.Contains(t, summary, "5.1.10 ")
	assert.Contains(t, summary, "5.3.1 ")
	assert.Contains(t, summary, "6.2.1 ")
}

func TestAsciiDocReport_AllCompliant(t *testing.T) {
	report := &audit.Report{
		Hostname: "db01",
		Sections: []*audit.CategoryReport{section("Services", audit.ResultSet{
			"telnet": {ID: "2.2.4", Title: "Ensure telnet client is not installed", Status: audit.StatusPass},
		})},
	}

	content := NewAsciiDocReport("unused.adoc", "", report).Content()

	assert.Contains(t, content, "Every evaluated rule is in alignment with the benchmark.")
	assert.NotContains(t, content, "# Diagnostics")
}

func TestAsciiDocReport_Generate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts", "web01.adoc")

	written, err := NewAsciiDocReport(path, "", sampleReport("web01")).Generate()
	require.NoError(t, err)
	assert.Equal(t, path, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Logging and Auditing")
}

func TestAsciiDocReport_Interrupted(t *testing.T) {
	partial := sampleReport("web01")
	partial.Interrupted = true

	assert.Contains(t, NewAsciiDocReport("unused.adoc", "", partial).Content(), "WARNING: The run was interrupted.")
	assert.NotContains(t, NewAsciiDocReport("unused.adoc", "", sampleReport("web01")).Content(), "WARNING: The run was interrupted.")
}
