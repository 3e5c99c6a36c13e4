// pkg/audit/system.go

package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EntryPoint runs one top-level category
type EntryPoint func(ctx context.Context) (*CategoryReport, error)

// Entry names a top-level category and its entry point
type Entry struct {
	Name string
	Run  EntryPoint
}

// Report is the combined result of a system run
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Hostname   string        `json:"hostname" yaml:"hostname"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Categories []string      `json:"categories" yaml:"categories"`

	// Results is keyed by category name, then by the category's own result keys
	Results map[string]ResultSet `json:"results" yaml:"results"`

	// Sections keeps each category report, in run order, for presentation
	Sections []*CategoryReport `json:"sections" yaml:"sections"`

	Summary     Summary      `json:"summary" yaml:"summary"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`

	// Interrupted is set when the run context ended before the run finished
	Interrupted bool `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

// Section returns the report of the named category, if it ran
func (r *Report) Section(name string) (*CategoryReport, bool) {
	for _, section := range r.Sections {
		if section.Name == name {
			return section, true
		}
	}
	return nil, false
}

// SystemRunner runs every top-level category in a fixed order
type SystemRunner struct {
	logger  zerolog.Logger
	entries []Entry
	include []string
	skip    []string
}

// NewSystemRunner creates a runner over the given top-level categories
func NewSystemRunner(logger zerolog.Logger, entries ...Entry) *SystemRunner {
	return &SystemRunner{
		logger:  logger,
		entries: entries,
	}
}

// NewSystemRunnerFor builds a SystemRunner whose entries run the categories with runner
func NewSystemRunnerFor(logger zerolog.Logger, runner *Runner, categories ...*Category) *SystemRunner {
	entries := make([]Entry, 0, len(categories))
	for _, category := range categories {
		entries = append(entries, Entry{Name: category.Name, Run: runner.EntryPoint(category)})
	}
	return NewSystemRunner(logger, entries...)
}

// WithFilter restricts the run. A non-empty include list wins over skip.
func (s *SystemRunner) WithFilter(include, skip []string) *SystemRunner {
	s.include = include
	s.skip = skip
	return s
}

// Enabled reports whether the named category passes the include/skip filter
func (s *SystemRunner) Enabled(name string) bool {
	if len(s.include) > 0 {
		return containsSlug(s.include, name)
	}
	return !containsSlug(s.skip, name)
}

// Run executes every enabled category. A missing or broken category is
// logged and skipped; the returned report is always well formed.
func (s *SystemRunner) Run(ctx context.Context) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Results:   make(map[string]ResultSet),
	}

	seen := make(map[string]bool, len(s.entries))
	for _, entry := range s.entries {
		if !s.Enabled(entry.Name) {
			s.logger.Debug().Str("category", entry.Name).Msg("category filtered out")
			continue
		}

		if err := ctx.Err(); err != nil {
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Kind:     DiagnosticCanceled,
				Category: entry.Name,
				Message:  fmt.Sprintf("category not run: %v", context.Cause(ctx)),
			})
			continue
		}

		var section *CategoryReport
		var err error
		if seen[entry.Name] {
			err = fmt.Errorf("category %s: %w", entry.Name, ErrDuplicateCategory)
		} else {
			seen[entry.Name] = true
			section, err = runEntry(ctx, entry)
		}
		if err != nil {
			s.logger.Error().Err(err).Str("category", entry.Name).Str("kind", string(DiagnosticCategory)).
				Msg("category skipped")
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Kind:     DiagnosticCategory,
				Category: entry.Name,
				Message:  err.Error(),
			})
			continue
		}

		report.Categories = append(report.Categories, entry.Name)
		results := section.Results
		if results == nil {
			results = make(ResultSet)
		}
		report.Results[entry.Name] = results
		report.Sections = append(report.Sections, section)
		report.Diagnostics = append(report.Diagnostics, section.Diagnostics...)
		report.Summary.Accumulate(section.Summary)
	}

	report.Duration = time.Since(report.StartedAt)
	if err := ctx.Err(); err != nil {
		report.Interrupted = true
		s.logger.Warn().Err(err).Msg("audit interrupted, report is partial")
	}
	s.logger.Info().
		Str("run_id", report.RunID).
		Int("categories", len(report.Categories)).
		Int("total", report.Summary.Total).
		Int("passed", report.Summary.Passed).
		Int("failed", report.Summary.Failed).
		Float64("compliance", report.Summary.CompliancePercentage).
		Msg("audit complete")

	return report
}

// runEntry invokes an entry point and validates what it returned
func runEntry(ctx context.Context, entry Entry) (section *CategoryReport, err error) {
	if entry.Run == nil {
		return nil, fmt.Errorf("category %s: %w", entry.Name, ErrMissingEntryPoint)
	}

	defer func() {
		if p := recover(); p != nil {
			section = nil
			err = fmt.Errorf("category %s: %w: %v", entry.Name, ErrCheckPanic, p)
		}
	}()

	section, err = entry.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", entry.Name, err)
	}
	if err := section.Validate(); err != nil {
		return nil, fmt.Errorf("category %s: %w", entry.Name, err)
	}
	return section, nil
}

func containsSlug(list []string, name string) bool {
	slug := Slug(name)
	for _, item := range list {
		if Slug(item) == slug || strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}
