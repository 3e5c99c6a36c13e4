// pkg/checks/probe/probe.go

// Package probe holds the read-only inspections the benchmark rules are
// built from. A probe never returns an error: anything that prevents a
// decision is reported as a failed outcome with an explanation.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

// Env is the host the probes inspect
type Env struct {
	Exec utils.CommandExecutor
}

// NewEnv creates a probe environment on top of an executor
func NewEnv(exec utils.CommandExecutor) *Env {
	return &Env{Exec: exec}
}

// Outcome is the verdict of a probe
type Outcome struct {
	Status    audit.Status
	Narrative string
}

// Pass builds a passing outcome
func Pass(format string, args ...any) Outcome {
	return Outcome{Status: audit.StatusPass, Narrative: fmt.Sprintf(format, args...)}
}

// Fail builds a failing outcome
func Fail(format string, args ...any) Outcome {
	return Outcome{Status: audit.StatusFail, Narrative: fmt.Sprintf(format, args...)}
}

// Review builds an outcome that needs a human decision
func Review(format string, args ...any) Outcome {
	return Outcome{Status: audit.StatusManual, Narrative: fmt.Sprintf(format, args...)}
}

// Probe inspects the host and decides on an outcome
type Probe func(ctx context.Context, env *Env) Outcome

// Rule is the static description of one benchmark recommendation
type Rule struct {
	ID       string
	Title    string
	Severity audit.Severity
	Key      string
}

// Result stamps an outcome with the rule's identity
func (r Rule) Result(out Outcome) audit.CheckResult {
	narrative := out.Narrative
	if narrative == "" {
		narrative = string(out.Status)
	}
	return audit.CheckResult{
		ID:        r.ID,
		Title:     r.Title,
		Status:    out.Status,
		Severity:  r.Severity,
		Narrative: narrative,
	}
}

// Check binds the rule to a probe. The check only errors when its context
// ends before the probe has decided.
func (r Rule) Check(env *Env, p Probe) audit.Check {
	return audit.NewCheck(r.ID, func(ctx context.Context) (audit.ResultSet, error) {
		out := p(ctx, env)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return audit.Single(r.Key, r.Result(out)), nil
	})
}

// Manual is a probe for recommendations that cannot be automated
func Manual(reason string) Probe {
	return func(context.Context, *Env) Outcome {
		return Review("%s", reason)
	}
}

// AllOf passes when every probe passes. Any failure fails the whole; with no
// failure, any manual outcome makes the whole manual.
func AllOf(probes ...Probe) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		var failed, manual, passed []string
		for _, p := range probes {
			out := p(ctx, env)
			switch out.Status {
			case audit.StatusPass:
				passed = append(passed, out.Narrative)
			case audit.StatusManual:
				manual = append(manual, out.Narrative)
			default:
				failed = append(failed, out.Narrative)
			}
		}
		switch {
		case len(failed) > 0:
			return Fail("%s", strings.Join(failed, "; "))
		case len(manual) > 0:
			return Review("%s", strings.Join(manual, "; "))
		}
		return Pass("%s", strings.Join(passed, "; "))
	}
}

// AnyOf passes as soon as one probe passes
func AnyOf(probes ...Probe) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		var failed []string
		for _, p := range probes {
			out := p(ctx, env)
			if out.Status == audit.StatusPass {
				return out
			}
			failed = append(failed, out.Narrative)
		}
		return Fail("%s", strings.Join(failed, "; "))
	}
}

// fault records an inspection that could not be completed and turns it into
// a failed outcome
func fault(ctx context.Context, what string, err error) Outcome {
	zerolog.Ctx(ctx).Debug().Err(err).Str("target", what).Msg("probe fault")
	return Fail("unable to inspect %s: %v", what, err)
}

// readFile returns the content of path; ok is false when the file is absent
func (e *Env) readFile(ctx context.Context, path string) (content string, ok bool, err error) {
	data, err := e.Exec.ReadFile(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// run executes a command; err is set only when it could not be started
func (e *Env) run(ctx context.Context, name string, args ...string) (utils.CommandResult, error) {
	return e.Exec.RunCommand(ctx, name, args...)
}

// File evaluates the content of path. Absent files fail unless onMissing is set.
func File(path string, eval func(content string) Outcome, onMissing *Outcome) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		content, ok, err := env.readFile(ctx, path)
		if err != nil {
			return fault(ctx, path, err)
		}
		if !ok {
			if onMissing != nil {
				return *onMissing
			}
			return Fail("%s does not exist", path)
		}
		return eval(content)
	}
}

// Command evaluates the result of a command. A command that cannot be started
// is a fault.
func Command(eval func(res utils.CommandResult) Outcome, name string, args ...string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		res, err := env.run(ctx, name, args...)
		if err != nil {
			return fault(ctx, name, err)
		}
		return eval(res)
	}
}

// Shell evaluates a pipeline run by sh -c
func Shell(script string, eval func(res utils.CommandResult) Outcome) Probe {
	return Command(eval, "sh", "-c", script)
}

// Missing is a convenience for File's onMissing argument
func Missing(out Outcome) *Outcome {
	return &out
}
