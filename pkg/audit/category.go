// pkg/audit/category.go

package audit

import (
	"fmt"
	"strings"
)

// Category is a named group of checks, optionally composed of sub-categories
type Category struct {
	// Name is the display name, e.g. "SSH Server"
	Name string

	// Registry lists the category's own checks in execution order
	Registry *Registry

	// Subcategories run after the category's own checks, in order
	Subcategories []*Category
}

// NewCategory creates a category with an empty registry
func NewCategory(name string, subcategories ...*Category) *Category {
	return &Category{
		Name:          name,
		Registry:      NewRegistry(),
		Subcategories: subcategories,
	}
}

// CheckIDs returns every check id of the category tree in execution order
func (c *Category) CheckIDs() []string {
	ids := c.Registry.IDs()
	for _, sub := range c.Subcategories {
		ids = append(ids, sub.CheckIDs()...)
	}
	return ids
}

// CountChecks returns the number of checks in the category tree
func (c *Category) CountChecks() int {
	n := c.Registry.Len()
	for _, sub := range c.Subcategories {
		n += sub.CountChecks()
	}
	return n
}

// Slug normalizes a category name for matching against user filters:
// "Initial Setup", "initial_setup" and "initial-setup" are equal.
func Slug(name string) string {
	replacer := strings.NewReplacer(" ", "-", "_", "-", "/", "-")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(name)))
}

// DiagnosticKind classifies a run-level problem
type DiagnosticKind string

const (
	// DiagnosticResolution means a registry entry could not be turned into a check
	DiagnosticResolution DiagnosticKind = "resolution"

	// DiagnosticFault means a check returned an error or panicked
	DiagnosticFault DiagnosticKind = "fault"

	// DiagnosticTimeout means a check exceeded the configured timeout
	DiagnosticTimeout DiagnosticKind = "timeout"

	// DiagnosticCollision means a result key was overwritten during a merge
	DiagnosticCollision DiagnosticKind = "collision"

	// DiagnosticCategory means a whole category was skipped
	DiagnosticCategory DiagnosticKind = "category"

	// DiagnosticCanceled means checks were not run because the run was interrupted
	DiagnosticCanceled DiagnosticKind = "canceled"
)

// Diagnostic records a problem that is not itself a check result
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind" yaml:"kind"`
	Category string         `json:"category" yaml:"category"`
	CheckID  string         `json:"check_id,omitempty" yaml:"check_id,omitempty"`
	Key      string         `json:"key,omitempty" yaml:"key,omitempty"`
	Message  string         `json:"message" yaml:"message"`
}

// CategoryReport is what a category run produces
type CategoryReport struct {
	Name string `json:"name" yaml:"name"`

	// Results is the flat merge of the category's checks and all sub-categories
	Results ResultSet `json:"results" yaml:"results"`

	// Summary is computed from Results
	Summary Summary `json:"summary" yaml:"summary"`

	// Subcategories holds the standalone report of each sub-category
	Subcategories []*CategoryReport `json:"subcategories,omitempty" yaml:"subcategories,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Validate checks that the report has the shape a system run expects
func (r *CategoryReport) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil report", ErrMalformedReport)
	}
	if !r.Summary.Consistent() {
		return fmt.Errorf("%w: total %d does not match passed %d + failed %d",
			ErrMalformedReport, r.Summary.Total, r.Summary.Passed, r.Summary.Failed)
	}
	return nil
}
