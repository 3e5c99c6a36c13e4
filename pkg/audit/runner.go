// pkg/audit/runner.go

package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// CheckEvent is emitted after each check of a category run has finished
type CheckEvent struct {
	Category string
	CheckID  string
	Duration time.Duration
	Err      error
}

// Options tunes a Runner. The zero value runs checks one at a time with no timeout.
type Options struct {
	// Workers bounds how many checks of a category run at once; values below 2 run sequentially
	Workers int

	// CheckTimeout bounds a single check; zero disables the bound
	CheckTimeout time.Duration

	// ManualPolicy decides how manual-review results are summarized
	ManualPolicy ManualPolicy

	// Checks restricts the run to these ids; empty runs every registered check
	Checks []string

	// OnCheckDone is called after every check. It may be called concurrently when Workers > 1.
	OnCheckDone func(CheckEvent)
}

// Runner executes categories with per-check failure isolation
type Runner struct {
	logger zerolog.Logger
	opts   Options
	only   map[string]bool
}

// NewRunner creates a category runner that reports diagnostics to logger
func NewRunner(logger zerolog.Logger, opts Options) *Runner {
	r := &Runner{
		logger: logger,
		opts:   opts,
	}
	if len(opts.Checks) > 0 {
		r.only = make(map[string]bool, len(opts.Checks))
		for _, id := range opts.Checks {
			r.only[id] = true
		}
	}
	return r
}

// Options returns the options the runner was created with
func (r *Runner) Options() Options {
	return r.opts
}

// checkOutcome is what one registry entry produced
type checkOutcome struct {
	results  ResultSet
	err      error
	kind     DiagnosticKind
	duration time.Duration
	canceled bool
}

// RunCategory executes every check of the category, then every sub-category,
// and merges all results into one flat set. It never fails: problems are
// logged and recorded as diagnostics on the returned report.
func (r *Runner) RunCategory(ctx context.Context, category *Category) *CategoryReport {
	report := &CategoryReport{
		Name:    category.Name,
		Results: make(ResultSet),
	}
	logger := r.logger.With().Str("category", category.Name).Logger()
	ctx = logger.WithContext(ctx)

	ids := r.selectIDs(category.Registry)
	outcomes := r.execute(ctx, category, ids)

	canceled := 0
	for i, id := range ids {
		outcome := outcomes[i]
		if outcome.canceled {
			canceled++
			continue
		}
		if outcome.err != nil {
			logger.Error().Err(outcome.err).Str("check", id).Str("kind", string(outcome.kind)).
				Msg("check skipped")
			report.Diagnostics = append(report.Diagnostics, Diagnostic{
				Kind:     outcome.kind,
				Category: category.Name,
				CheckID:  id,
				Message:  outcome.err.Error(),
			})
			continue
		}
		r.merge(logger, report, id, outcome.results)
	}

	for _, sub := range category.Subcategories {
		if ctx.Err() != nil {
			canceled += r.planned(sub)
			continue
		}
		subReport := r.RunCategory(ctx, sub)
		report.Subcategories = append(report.Subcategories, subReport)
		report.Diagnostics = append(report.Diagnostics, subReport.Diagnostics...)
		r.merge(logger, report, sub.Name, subReport.Results)
	}

	if canceled > 0 {
		logger.Warn().Int("checks", canceled).Msg("category interrupted")
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Kind:     DiagnosticCanceled,
			Category: category.Name,
			Message:  fmt.Sprintf("%d checks not run: %v", canceled, context.Cause(ctx)),
		})
	}

	report.Summary = Summarize(report.Results, r.opts.ManualPolicy)
	logger.Debug().
		Int("total", report.Summary.Total).
		Int("passed", report.Summary.Passed).
		Int("failed", report.Summary.Failed).
		Float64("compliance", report.Summary.CompliancePercentage).
		Msg("category complete")

	return report
}

// EntryPoint adapts the category into the shape consumed by a SystemRunner
func (r *Runner) EntryPoint(category *Category) EntryPoint {
	return func(ctx context.Context) (*CategoryReport, error) {
		return r.RunCategory(ctx, category), nil
	}
}

// merge folds results into the report, recording every overwritten key
func (r *Runner) merge(logger zerolog.Logger, report *CategoryReport, source string, results ResultSet) {
	for _, key := range report.Results.Merge(results) {
		logger.Warn().Str("key", key).Str("source", source).Msg("result key overwritten")
		report.Diagnostics = append(report.Diagnostics, Diagnostic{
			Kind:     DiagnosticCollision,
			Category: report.Name,
			CheckID:  source,
			Key:      key,
			Message:  fmt.Sprintf("result %q replaced by %s", key, source),
		})
	}
}

// planned counts the checks a run of category would execute
func (r *Runner) planned(category *Category) int {
	n := len(r.selectIDs(category.Registry))
	for _, sub := range category.Subcategories {
		n += r.planned(sub)
	}
	return n
}

func (r *Runner) selectIDs(registry *Registry) []string {
	ids := registry.IDs()
	if r.only == nil {
		return ids
	}
	selected := ids[:0]
	for _, id := range ids {
		if r.only[id] {
			selected = append(selected, id)
		}
	}
	return selected
}

// execute runs the ids and returns their outcomes indexed like ids, so the
// merge order is the registry order regardless of completion order.
func (r *Runner) execute(ctx context.Context, category *Category, ids []string) []checkOutcome {
	outcomes := make([]checkOutcome, len(ids))

	if r.opts.Workers < 2 || len(ids) < 2 {
		for i, id := range ids {
			if ctx.Err() != nil {
				outcomes[i] = checkOutcome{canceled: true}
				continue
			}
			outcomes[i] = r.runOne(ctx, category, id)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = checkOutcome{canceled: true}
				return nil
			}
			outcomes[i] = r.runOne(ctx, category, id)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// runOne resolves and invokes a single check
func (r *Runner) runOne(ctx context.Context, category *Category, id string) checkOutcome {
	start := time.Now()
	outcome := r.resolveAndInvoke(ctx, category, id)
	outcome.duration = time.Since(start)

	if r.opts.OnCheckDone != nil {
		r.opts.OnCheckDone(CheckEvent{
			Category: category.Name,
			CheckID:  id,
			Duration: outcome.duration,
			Err:      outcome.err,
		})
	}
	return outcome
}

func (r *Runner) resolveAndInvoke(ctx context.Context, category *Category, id string) checkOutcome {
	check, err := category.Registry.Resolve(id)
	if err != nil {
		return checkOutcome{err: err, kind: DiagnosticResolution}
	}

	results, err := r.invoke(ctx, check)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return checkOutcome{err: err, canceled: true}
		}
		kind := DiagnosticFault
		if errors.Is(err, ErrCheckTimeout) {
			kind = DiagnosticTimeout
		}
		return checkOutcome{err: err, kind: kind}
	}
	return checkOutcome{results: results}
}

// invoke runs the check, bounded by CheckTimeout when one is configured.
// A check that ignores its context keeps running in the background after a
// timeout; its late results are discarded.
func (r *Runner) invoke(ctx context.Context, check Check) (ResultSet, error) {
	if r.opts.CheckTimeout <= 0 {
		return safeRun(ctx, check)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.CheckTimeout)
	defer cancel()

	type result struct {
		results ResultSet
		err     error
	}
	done := make(chan result, 1)
	go func() {
		results, err := safeRun(ctx, check)
		done <- result{results: results, err: err}
	}()

	select {
	case res := <-done:
		if ctx.Err() == nil {
			return res.results, res.err
		}
	case <-ctx.Done():
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("check %s: %w after %s", check.ID(), ErrCheckTimeout, r.opts.CheckTimeout)
	}
	return nil, fmt.Errorf("check %s: %w", check.ID(), ctx.Err())
}

// safeRun calls check.Run and turns a panic into an error
func safeRun(ctx context.Context, check Check) (results ResultSet, err error) {
	defer func() {
		if p := recover(); p != nil {
			results = nil
			err = fmt.Errorf("check %s: %w: %v", check.ID(), ErrCheckPanic, p)
		}
	}()

	results, err = check.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", check.ID(), err)
	}
	return results, nil
}
