// pkg/audit/summary.go

package audit

import (
	"fmt"
	"strings"
)

// ManualPolicy decides how results requiring manual review are counted
type ManualPolicy int

const (
	// ManualAsFailed counts manual results in Total and Failed
	ManualAsFailed ManualPolicy = iota

	// ManualExcluded leaves manual results out of Total, Passed and Failed
	ManualExcluded
)

// String returns the configuration name of the policy
func (p ManualPolicy) String() string {
	if p == ManualExcluded {
		return "exclude"
	}
	return "fail"
}

// ParseManualPolicy converts a configuration value into a ManualPolicy
func ParseManualPolicy(s string) (ManualPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "failed":
		return ManualAsFailed, nil
	case "exclude", "excluded", "skip":
		return ManualExcluded, nil
	}
	return ManualAsFailed, fmt.Errorf("unknown manual review policy %q", s)
}

// Summary holds aggregate compliance statistics. Total always equals Passed + Failed.
type Summary struct {
	Total                int     `json:"total" yaml:"total"`
	Passed               int     `json:"passed" yaml:"passed"`
	Failed               int     `json:"failed" yaml:"failed"`
	Manual               int     `json:"manual" yaml:"manual"`
	CompliancePercentage float64 `json:"compliance_percentage" yaml:"compliance_percentage"`
}

// Summarize computes the summary of a flat result set
func Summarize(results ResultSet, policy ManualPolicy) Summary {
	var s Summary
	for _, result := range results {
		s.add(result, policy)
	}
	s.computePercentage()
	return s
}

func (s *Summary) add(result CheckResult, policy ManualPolicy) {
	switch {
	case result.Passed():
		s.Total++
		s.Passed++
	case result.Status == StatusManual:
		s.Manual++
		if policy == ManualExcluded {
			return
		}
		s.Total++
		s.Failed++
	default:
		s.Total++
		s.Failed++
	}
}

// Accumulate adds the counters of other into s and recomputes the percentage
func (s *Summary) Accumulate(other Summary) {
	s.Total += other.Total
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.Manual += other.Manual
	s.computePercentage()
}

func (s *Summary) computePercentage() {
	if s.Total == 0 {
		s.CompliancePercentage = 0.0
		return
	}
	s.CompliancePercentage = float64(s.Passed) / float64(s.Total) * 100
}

// Consistent reports whether the counters obey the summary invariants
func (s Summary) Consistent() bool {
	return s.Total >= 0 && s.Passed >= 0 && s.Failed >= 0 && s.Manual >= 0 &&
		s.Total == s.Passed+s.Failed
}
