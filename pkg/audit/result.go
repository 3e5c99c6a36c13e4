// pkg/audit/result.go

package audit

import (
	"sort"
)

// Status is the outcome of a single rule
type Status string

const (
	// StatusPass indicates the host complies with the rule
	StatusPass Status = "pass"

	// StatusFail indicates the host does not comply, or the probe could not decide
	StatusFail Status = "fail"

	// StatusManual indicates the rule cannot be automated and requires human review
	StatusManual Status = "manual"
)

// Valid reports whether s is one of the three known outcomes
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusManual:
		return true
	}
	return false
}

// Severity is an informational classification with no effect on aggregation
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// CheckResult is the finding produced by one rule
type CheckResult struct {
	// ID is the stable benchmark identifier, e.g. "5.1.6"
	ID string `json:"id" yaml:"id"`

	// Title is the human-readable rule name
	Title string `json:"title" yaml:"title"`

	// Status is the tri-state outcome
	Status Status `json:"status" yaml:"status"`

	// Severity is informational only
	Severity Severity `json:"severity" yaml:"severity"`

	// Narrative explains the finding and is always populated
	Narrative string `json:"narrative" yaml:"narrative"`
}

// Passed reports whether the result is a strict pass
func (r CheckResult) Passed() bool {
	return r.Status == StatusPass
}

// ResultSet maps a short result key, chosen by the check, to its result
type ResultSet map[string]CheckResult

// Merge copies every entry of other into rs. Existing keys are overwritten and
// returned, sorted, so the caller can report the collision.
func (rs ResultSet) Merge(other ResultSet) []string {
	var collisions []string
	for key, result := range other {
		if _, exists := rs[key]; exists {
			collisions = append(collisions, key)
		}
		rs[key] = result
	}
	sort.Strings(collisions)
	return collisions
}

// Keys returns the result keys in lexical order
func (rs ResultSet) Keys() []string {
	keys := make([]string, 0, len(rs))
	for key := range rs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of rs
func (rs ResultSet) Clone() ResultSet {
	out := make(ResultSet, len(rs))
	for key, result := range rs {
		out[key] = result
	}
	return out
}
