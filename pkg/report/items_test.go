package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
)

func section(name string, results audit.ResultSet, subs ...*audit.CategoryReport) *audit.CategoryReport {
	merged := results.Clone()
	for _, sub := range subs {
		merged.Merge(sub.Results)
	}
	return &audit.CategoryReport{
		Name:          name,
		Results:       merged,
		Summary:       audit.Summarize(merged, audit.ManualAsFailed),
		Subcategories: subs,
	}
}

func sampleReport(hostname string) *audit.Report {
	accessControl := section("Access Control", audit.ResultSet{},
		section("SSH Server", audit.ResultSet{
			"sshd_config_perms": {ID: "5.1.2", Title: "Ensure permissions on sshd_config are configured",
				Status: audit.StatusPass, Severity: audit.SeverityMedium, Narrative: "mode 0600 root:root"},
			"sshd_ciphers": {ID: "5.1.10", Title: "Ensure sshd Ciphers are configured",
				Status: audit.StatusFail, Severity: audit.SeverityMedium, Narrative: "weak ciphers enabled: 3des-cbc"},
		}),
		section("Pluggable Authentication Modules", audit.ResultSet{
			"pam_versions": {ID: "5.3.1", Title: "Ensure PAM packages are current",
				Status: audit.StatusManual, Severity: audit.SeverityLow, Narrative: "review libpam-runtime version"},
		}),
	)
	logging := section("Logging and Auditing", audit.ResultSet{},
		section("System Auditing", audit.ResultSet{
			"auditd_installed": {ID: "6.2.1", Title: "Ensure auditd packages are installed",
				Status: audit.StatusFail, Severity: audit.SeverityHigh,
				Narrative: "missing packages | auditd\naudispd-plugins"},
		}),
	)

	report := &audit.Report{
		RunID:      "run-1",
		Hostname:   hostname,
		StartedAt:  time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
		Duration:   1500 * time.Millisecond,
		Categories: []string{accessControl.Name, logging.Name},
		Results: map[string]audit.ResultSet{
			accessControl.Name: accessControl.Results,
			logging.Name:       logging.Results,
		},
		Sections: []*audit.CategoryReport{accessControl, logging},
		Diagnostics: []audit.Diagnostic{
			{Kind: audit.DiagnosticTimeout, Category: "System Auditing", CheckID: "6.2.4", Message: "check timed out"},
		},
	}
	report.Summary.Accumulate(accessControl.Summary)
	report.Summary.Accumulate(logging.Summary)
	return report
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2", "1.10", -1},
		{"1.10", "1.2", 1},
		{"5.1.1", "5.1.1", 0},
		{"5.1", "5.1.1", -1},
		{"6.2.3.10", "6.2.3.9", 1},
		{"1.a", "1.b", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, ResultKeyNoChange, KeyFor(audit.CheckResult{Status: audit.StatusPass, Severity: audit.SeverityHigh}))
	assert.Equal(t, ResultKeyEvaluate, KeyFor(audit.CheckResult{Status: audit.StatusManual, Severity: audit.SeverityHigh}))
	assert.Equal(t, ResultKeyRequired, KeyFor(audit.CheckResult{Status: audit.StatusFail, Severity: audit.SeverityHigh}))
	assert.Equal(t, ResultKeyRecommended, KeyFor(audit.CheckResult{Status: audit.StatusFail, Severity: audit.SeverityMedium}))
	assert.Equal(t, ResultKeyRecommended, KeyFor(audit.CheckResult{Status: audit.StatusFail}))
}

func TestItems_OrderedBySectionThenID(t *testing.T) {
	items := Items(sampleReport("web01"))

	var ids, sections []string
	for _, item := range items {
		ids = append(ids, item.Result.ID)
		sections = append(sections, item.Section)
	}
	assert.Equal(t, []string{"5.1.2", "5.1.10", "5.3.1", "6.2.1"}, ids)
	assert.Equal(t, []string{"SSH Server", "SSH Server", "Pluggable Authentication Modules", "System Auditing"}, sections)
	assert.Equal(t, "Access Control", items[0].Category)
	assert.Equal(t, "Logging and Auditing", items[3].Category)
}

func TestSectionItems_OwnResultsFirst(t *testing.T) {
	cr := section("Network", audit.ResultSet{
		"ipv6_status": {ID: "3.1.1", Status: audit.StatusManual},
	}, section("Network Kernel Parameters", audit.ResultSet{
		"ip_forwarding": {ID: "3.3.1", Status: audit.StatusPass},
	}))

	items := SectionItems(cr)

	if assert.Len(t, items, 2) {
		assert.Equal(t, "ipv6_status", items[0].Key)
		assert.Equal(t, "Network", items[0].Section)
		assert.Equal(t, "ip_forwarding", items[1].Key)
		assert.Equal(t, "Network Kernel Parameters", items[1].Section)
	}
}

func TestSectionItems_CollidingSubcategoriesListedOnce(t *testing.T) {
	cr := section("Services", audit.ResultSet{},
		section("Server Services", audit.ResultSet{
			"service_disabled": {ID: "2.1.1", Status: audit.StatusFail},
			"autofs":           {ID: "2.1.2", Status: audit.StatusPass},
		}),
		section("Client Services", audit.ResultSet{
			"service_disabled": {ID: "2.2.1", Status: audit.StatusPass},
		}),
	)

	items := SectionItems(cr)

	assert.Equal(t, 2, cr.Summary.Total)
	if assert.Len(t, items, cr.Summary.Total) {
		assert.Equal(t, "autofs", items[0].Key)
		assert.Equal(t, "service_disabled", items[1].Key)
		assert.Equal(t, "2.2.1", items[1].Result.ID)
		assert.Equal(t, "Client Services", items[1].Section)
	}
}

func TestCount(t *testing.T) {
	tally := Count(Items(sampleReport("web01")))
	assert.Equal(t, Tally{Required: 1, Recommended: 1, Evaluate: 1, NoChange: 1}, tally)
}
