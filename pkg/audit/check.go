// pkg/audit/check.go

package audit

import (
	"context"
	"errors"
)

var (
	ErrUnknownCheck      = errors.New("unknown check")
	ErrDuplicateCheck    = errors.New("check already registered")
	ErrNilCheck          = errors.New("check factory returned nil")
	ErrCheckPanic        = errors.New("check panicked")
	ErrCheckTimeout      = errors.New("check timed out")
	ErrMissingEntryPoint = errors.New("category has no entry point")
	ErrDuplicateCategory = errors.New("category already ran")
	ErrMalformedReport   = errors.New("category report is malformed")
)

// Check is one rule of the catalogue.
//
// Run must not mutate host state. Expected inspection outcomes (missing files,
// absent commands) belong in the returned results; an error or a panic is
// contained by the Runner and costs the check its results.
type Check interface {
	ID() string
	Run(ctx context.Context) (ResultSet, error)
}

// CheckFunc adapts a plain function into a Check
type CheckFunc struct {
	id string
	fn func(ctx context.Context) (ResultSet, error)
}

// NewCheck creates a Check from an id and a function
func NewCheck(id string, fn func(ctx context.Context) (ResultSet, error)) *CheckFunc {
	return &CheckFunc{id: id, fn: fn}
}

// ID returns the benchmark identifier
func (c *CheckFunc) ID() string {
	return c.id
}

// Run invokes the wrapped function
func (c *CheckFunc) Run(ctx context.Context) (ResultSet, error) {
	return c.fn(ctx)
}

// Single builds a one-entry result set, the common shape of a rule
func Single(key string, result CheckResult) ResultSet {
	return ResultSet{key: result}
}
