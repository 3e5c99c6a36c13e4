// pkg/report/summary_report.go

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
)

// HostReport is the outcome of auditing one host of a multi-host run
type HostReport struct {
	Hostname string

	// ReportPath is the per-host AsciiDoc report, relative links use its base name
	ReportPath string

	// Report is nil when the host could not be audited
	Report *audit.Report
	Err    error
}

// SummaryReport consolidates the audits of several hosts. Hosts may be added
// concurrently.
type SummaryReport struct {
	GeneratedTime time.Time
	OutputDir     string

	mu    sync.Mutex
	hosts map[string]*HostReport
}

// NewSummaryReport creates a new summary report generator
func NewSummaryReport(outputDir string) *SummaryReport {
	return &SummaryReport{
		GeneratedTime: time.Now(),
		OutputDir:     outputDir,
		hosts:         make(map[string]*HostReport),
	}
}

// AddHostReport records a completed host audit
func (s *SummaryReport) AddHostReport(hostname, reportPath string, report *audit.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[hostname] = &HostReport{Hostname: hostname, ReportPath: reportPath, Report: report}
}

// AddFailedHost records a host that could not be audited
func (s *SummaryReport) AddFailedHost(hostname string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[hostname] = &HostReport{Hostname: hostname, Err: err}
}

// Hosts returns every recorded host, sorted by name
func (s *SummaryReport) Hosts() []*HostReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	hosts := make([]*HostReport, 0, len(s.hosts))
	for _, host := range s.hosts {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Hostname < hosts[j].Hostname })
	return hosts
}

// Stats are the fleet wide counters of a summary
type Stats struct {
	TotalHosts       int
	CriticalHosts    int // hosts with at least one required change
	WarningHosts     int // hosts with only recommended changes
	CompliantHosts   int
	UnreachableHosts int

	Issues  Tally
	Summary audit.Summary
}

// Analyze computes the fleet statistics
func (s *SummaryReport) Analyze() Stats {
	var st Stats
	for _, host := range s.Hosts() {
		st.TotalHosts++
		if host.Report == nil {
			st.UnreachableHosts++
			continue
		}

		tally := Count(Items(host.Report))
		st.Issues.Required += tally.Required
		st.Issues.Recommended += tally.Recommended
		st.Issues.Evaluate += tally.Evaluate
		st.Issues.NoChange += tally.NoChange
		st.Summary.Accumulate(host.Report.Summary)

		switch {
		case tally.Required > 0:
			st.CriticalHosts++
		case tally.Recommended > 0:
			st.WarningHosts++
		default:
			st.CompliantHosts++
		}
	}
	return st
}

// GenerateAllReports writes the fleet summary and the critical issues report
// and returns their paths
func (s *SummaryReport) GenerateAllReports() ([]string, error) {
	if err := os.MkdirAll(s.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	summary, err := s.GenerateSummaryReport()
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary report: %w", err)
	}

	critical, err := s.GenerateCriticalIssuesReport()
	if err != nil {
		return []string{summary}, fmt.Errorf("failed to generate critical issues report: %w", err)
	}

	return []string{summary, critical}, nil
}

func (s *SummaryReport) filename(suffix string) string {
	return filepath.Join(s.OutputDir, fmt.Sprintf("%s-%s.adoc",
		s.GeneratedTime.Format("2006-01-02-150405"), suffix))
}

// GenerateSummaryReport generates the main consolidated summary report
func (s *SummaryReport) GenerateSummaryReport() (string, error) {
	st := s.Analyze()
	var content strings.Builder

	content.WriteString("= Fleet Compliance Summary\n")
	content.WriteString(fmt.Sprintf("Generated: %s\n", s.GeneratedTime.Format("2006-01-02 15:04:05")))
	content.WriteString(fmt.Sprintf("Total Hosts: %d | Critical: %d | Warnings: %d | Compliant: %d | Unreachable: %d\n\n",
		st.TotalHosts, st.CriticalHosts, st.WarningHosts, st.CompliantHosts, st.UnreachableHosts))

	content.WriteString(generateKeySection())

	content.WriteString("== Executive Dashboard\n\n")
	content.WriteString(s.generateDashboard(st))

	if critical := s.groupIssues(ResultKeyRequired); len(critical) > 0 {
		content.WriteString("== PRIORITY 1: Required Changes\n\n")
		content.WriteString(formatGroupedIssues(critical))
	}

	if warnings := s.groupIssues(ResultKeyRecommended); len(warnings) > 0 {
		content.WriteString("== PRIORITY 2: Recommended Changes\n\n")
		content.WriteString(formatGroupedIssues(warnings))
	}

	content.WriteString("== Common Findings\n\n")
	content.WriteString(s.generatePatternAnalysis(st.TotalHosts))

	content.WriteString("== Host Compliance Matrix\n\n")
	content.WriteString(s.generateHealthMatrix())

	content.WriteString("== Individual Host Reports\n\n")
	for _, host := range s.Hosts() {
		if host.Report == nil {
			content.WriteString(fmt.Sprintf("* %s - audit failed: %v\n", host.Hostname, host.Err))
			continue
		}
		content.WriteString(fmt.Sprintf("* link:hosts/%s[%s]\n", filepath.Base(host.ReportPath), host.Hostname))
	}

	filename := s.filename("fleet-summary")
	return filename, os.WriteFile(filename, []byte(content.String()), 0644)
}

// generateDashboard creates a visual dashboard
func (s *SummaryReport) generateDashboard(st Stats) string {
	var sb strings.Builder

	sb.WriteString("=== Host Status Summary\n\n")
	sb.WriteString("[listing]\n----\n")
	sb.WriteString(dashboardBar("Critical Hosts: ", st.CriticalHosts, st.TotalHosts))
	sb.WriteString(dashboardBar("Warning Hosts:  ", st.WarningHosts, st.TotalHosts))
	sb.WriteString(dashboardBar("Compliant Hosts:", st.CompliantHosts, st.TotalHosts))
	if st.UnreachableHosts > 0 {
		sb.WriteString(dashboardBar("Unreachable:    ", st.UnreachableHosts, st.TotalHosts))
	}
	sb.WriteString("----\n\n")

	sb.WriteString("=== Findings Across All Hosts\n\n")
	sb.WriteString(fmt.Sprintf("* Required Changes: %d\n", st.Issues.Required))
	sb.WriteString(fmt.Sprintf("* Recommended Changes: %d\n", st.Issues.Recommended))
	sb.WriteString(fmt.Sprintf("* Manual Reviews: %d\n", st.Issues.Evaluate))
	sb.WriteString(fmt.Sprintf("* Fleet Compliance: %.1f%% (%d of %d rules)\n\n",
		st.Summary.CompliancePercentage, st.Summary.Passed, st.Summary.Total))

	return sb.String()
}

func dashboardBar(label string, count, total int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(count) / float64(total) * 100
	}
	return fmt.Sprintf("%s %s %d (%.0f%%)\n", label, strings.Repeat("█", min(count*5, 20)), count, pct)
}

// IssueSummary is one finding and the hosts it was observed on
type IssueSummary struct {
	RuleID   string
	Title    string
	Category string
	Message  string
	Severity ResultKey
	Hosts    []string
}

// groupIssues groups findings with the given key by rule, then by narrative
func (s *SummaryReport) groupIssues(key ResultKey) map[string][]IssueSummary {
	grouped := make(map[string][]IssueSummary)

	for _, host := range s.Hosts() {
		if host.Report == nil {
			continue
		}
		for _, item := range Items(host.Report) {
			if item.ResultKey() != key {
				continue
			}
			ruleKey := item.Result.ID + " " + item.Key

			found := false
			for i := range grouped[ruleKey] {
				if grouped[ruleKey][i].Message == item.Result.Narrative {
					grouped[ruleKey][i].Hosts = append(grouped[ruleKey][i].Hosts, host.Hostname)
					found = true
					break
				}
			}
			if !found {
				grouped[ruleKey] = append(grouped[ruleKey], IssueSummary{
					RuleID:   item.Result.ID,
					Title:    item.Result.Title,
					Category: item.Category,
					Message:  item.Result.Narrative,
					Severity: key,
					Hosts:    []string{host.Hostname},
				})
			}
		}
	}

	return grouped
}

// formatGroupedIssues formats grouped issues in benchmark order
func formatGroupedIssues(grouped map[string][]IssueSummary) string {
	var sb strings.Builder

	ruleKeys := make([]string, 0, len(grouped))
	for ruleKey := range grouped {
		ruleKeys = append(ruleKeys, ruleKey)
	}
	sort.Slice(ruleKeys, func(i, j int) bool {
		a, b := grouped[ruleKeys[i]][0], grouped[ruleKeys[j]][0]
		if c := CompareIDs(a.RuleID, b.RuleID); c != 0 {
			return c < 0
		}
		return ruleKeys[i] < ruleKeys[j]
	})

	for _, ruleKey := range ruleKeys {
		issues := grouped[ruleKey]
		representative := issues[0]

		affected := 0
		for _, issue := range issues {
			affected += len(issue.Hosts)
		}

		icon := "🔴"
		if representative.Severity == ResultKeyRecommended {
			icon = "⚠️"
		}
		sb.WriteString(fmt.Sprintf("=== %s %s %s (Affects %d hosts)\n\n",
			icon, representative.RuleID, representative.Title, affected))

		sb.WriteString("[cols=\"2,6\", options=header]\n|===\n")
		sb.WriteString("|Host |Observation\n\n")
		for _, issue := range issues {
			for _, host := range issue.Hosts {
				sb.WriteString(fmt.Sprintf("|%s |%s\n", host, escapeCell(firstLine(issue.Message))))
			}
		}
		sb.WriteString("|===\n\n")
	}

	return sb.String()
}

// Pattern is a failing rule shared by several hosts
type Pattern struct {
	RuleID string
	Title  string
	Hosts  []string
}

// findCommonPatterns returns the five failing rules shared by the most hosts
func (s *SummaryReport) findCommonPatterns() []Pattern {
	patternMap := make(map[string]*Pattern)

	for _, host := range s.Hosts() {
		if host.Report == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, item := range Items(host.Report) {
			key := item.ResultKey()
			if key != ResultKeyRequired && key != ResultKeyRecommended {
				continue
			}
			if seen[item.Result.ID] {
				continue
			}
			seen[item.Result.ID] = true

			if pattern, exists := patternMap[item.Result.ID]; exists {
				pattern.Hosts = append(pattern.Hosts, host.Hostname)
			} else {
				patternMap[item.Result.ID] = &Pattern{
					RuleID: item.Result.ID,
					Title:  item.Result.Title,
					Hosts:  []string{host.Hostname},
				}
			}
		}
	}

	var patterns []Pattern
	for _, pattern := range patternMap {
		if len(pattern.Hosts) >= 2 {
			patterns = append(patterns, *pattern)
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i].Hosts) != len(patterns[j].Hosts) {
			return len(patterns[i].Hosts) > len(patterns[j].Hosts)
		}
		return CompareIDs(patterns[i].RuleID, patterns[j].RuleID) < 0
	})

	if len(patterns) > 5 {
		patterns = patterns[:5]
	}
	return patterns
}

// generatePatternAnalysis creates the common findings section
func (s *SummaryReport) generatePatternAnalysis(totalHosts int) string {
	var sb strings.Builder

	patterns := s.findCommonPatterns()
	if len(patterns) == 0 {
		sb.WriteString("No failing rule is shared by more than one host.\n\n")
		return sb.String()
	}

	for i, pattern := range patterns {
		percentage := float64(len(pattern.Hosts)) / float64(totalHosts) * 100
		sb.WriteString(fmt.Sprintf("%d. **%.0f%% of hosts** (%d/%d) fail %s %s\n",
			i+1, percentage, len(pattern.Hosts), totalHosts, pattern.RuleID, pattern.Title))
		sb.WriteString(fmt.Sprintf("   - Affected hosts: %s\n",
			strings.Join(pattern.Hosts[:min(5, len(pattern.Hosts))], ", ")))
		if len(pattern.Hosts) > 5 {
			sb.WriteString(fmt.Sprintf("   - ... and %d more\n", len(pattern.Hosts)-5))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// generateHealthMatrix creates the host compliance matrix
func (s *SummaryReport) generateHealthMatrix() string {
	var sb strings.Builder

	sb.WriteString("[cols=\"3,1,1,1,1,1\", options=header]\n|===\n")
	sb.WriteString("|Host |Required |Recommended |Manual |Compliance |Status\n\n")

	for _, host := range s.Hosts() {
		if host.Report == nil {
			sb.WriteString(fmt.Sprintf("|%s |- |- |- |- |{set:cellbgcolor:#A6B9BF}Unreachable\n", host.Hostname))
			continue
		}

		tally := Count(Items(host.Report))

		healthColor := "#00FF00"
		healthStatus := "Compliant"
		if tally.Required > 0 {
			healthColor = "#FF0000"
			healthStatus = "Critical"
		} else if tally.Recommended > 0 {
			healthColor = "#FEFE20"
			healthStatus = "Warning"
		}

		sb.WriteString(fmt.Sprintf("|link:hosts/%s[%s] |%d |%d |%d |%.1f%% |{set:cellbgcolor:%s}%s\n",
			filepath.Base(host.ReportPath), host.Hostname,
			tally.Required, tally.Recommended, tally.Evaluate,
			host.Report.Summary.CompliancePercentage, healthColor, healthStatus))
	}

	sb.WriteString("|===\n\n")
	sb.WriteString("{set:cellbgcolor!}\n\n")

	return sb.String()
}

// GenerateCriticalIssuesReport generates a report focusing only on required changes
func (s *SummaryReport) GenerateCriticalIssuesReport() (string, error) {
	st := s.Analyze()
	var content strings.Builder

	content.WriteString("= Critical Issues Report\n")
	content.WriteString(fmt.Sprintf("Generated: %s\n", s.GeneratedTime.Format("2006-01-02 15:04:05")))
	content.WriteString(fmt.Sprintf("Total Required Changes: %d across %d hosts\n\n",
		st.Issues.Required, st.CriticalHosts))

	critical := s.groupIssues(ResultKeyRequired)
	if len(critical) == 0 {
		content.WriteString("== No Critical Issues Found\n\n")
		content.WriteString("No high severity rule failed on any audited host.\n")
	} else {
		content.WriteString("== Required Changes\n\n")
		content.WriteString(formatGroupedIssues(critical))
	}

	filename := s.filename("critical-issues")
	return filename, os.WriteFile(filename, []byte(content.String()), 0644)
}
