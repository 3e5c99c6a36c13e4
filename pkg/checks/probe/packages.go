// pkg/checks/probe/packages.go

package probe

import (
	"context"
	"fmt"
	"strings"
)

// Installed reports whether a Debian package is installed
func (e *Env) Installed(ctx context.Context, pkg string) (bool, error) {
	res, err := e.run(ctx, "dpkg-query", "-W", "-f=${db:Status-Status}", pkg)
	if err != nil {
		return false, err
	}
	return res.Success() && res.Output() == "installed", nil
}

// UnitState returns the enablement and activity of a systemd unit
func (e *Env) UnitState(ctx context.Context, unit string) (enabled, active string, err error) {
	res, err := e.run(ctx, "systemctl", "is-enabled", unit)
	if err != nil {
		return "", "", err
	}
	enabled = firstLine(res.Output())

	res, err = e.run(ctx, "systemctl", "is-active", unit)
	if err != nil {
		return "", "", err
	}
	active = firstLine(res.Output())
	return enabled, active, nil
}

// PackageInstalled passes when pkg is installed
func PackageInstalled(pkg string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		ok, err := env.Installed(ctx, pkg)
		if err != nil {
			return fault(ctx, "dpkg-query", err)
		}
		if !ok {
			return Fail("%s is not installed", pkg)
		}
		return Pass("%s is installed", pkg)
	}
}

// PackagesAbsent passes when none of pkgs is installed
func PackagesAbsent(pkgs ...string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		var installed []string
		for _, pkg := range pkgs {
			ok, err := env.Installed(ctx, pkg)
			if err != nil {
				return fault(ctx, "dpkg-query", err)
			}
			if ok {
				installed = append(installed, pkg)
			}
		}
		if len(installed) > 0 {
			return Fail("installed: %s", strings.Join(installed, ", "))
		}
		return Pass("%s not installed", strings.Join(pkgs, ", "))
	}
}

// ServiceNotInUse passes when none of the packages is installed, or when they
// are installed but none of the units is enabled or active
func ServiceNotInUse(pkgs []string, units []string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		var installed []string
		for _, pkg := range pkgs {
			ok, err := env.Installed(ctx, pkg)
			if err != nil {
				return fault(ctx, "dpkg-query", err)
			}
			if ok {
				installed = append(installed, pkg)
			}
		}
		if len(installed) == 0 {
			return Pass("%s not installed", strings.Join(pkgs, ", "))
		}

		var inUse []string
		for _, unit := range units {
			enabled, active, err := env.UnitState(ctx, unit)
			if err != nil {
				return fault(ctx, "systemctl", err)
			}
			if enabled == "enabled" || active == "active" {
				inUse = append(inUse, fmt.Sprintf("%s (%s, %s)", unit, enabled, active))
			}
		}
		if len(inUse) > 0 {
			return Fail("%s installed and in use: %s", strings.Join(installed, ", "), strings.Join(inUse, ", "))
		}
		return Pass("%s installed but no unit is enabled or active", strings.Join(installed, ", "))
	}
}

// UnitEnabledActive passes when the unit is enabled and running
func UnitEnabledActive(unit string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		enabled, active, err := env.UnitState(ctx, unit)
		if err != nil {
			return fault(ctx, "systemctl", err)
		}
		if enabled != "enabled" || active != "active" {
			return Fail("%s is %s and %s", unit, orUnknown(enabled), orUnknown(active))
		}
		return Pass("%s is enabled and active", unit)
	}
}

// UnitInactive passes when the unit is neither enabled nor active
func UnitInactive(unit string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		enabled, active, err := env.UnitState(ctx, unit)
		if err != nil {
			return fault(ctx, "systemctl", err)
		}
		if enabled == "enabled" || active == "active" {
			return Fail("%s is %s and %s", unit, enabled, active)
		}
		return Pass("%s is not in use", unit)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// UnitEnabled passes when the unit is enabled, running or not
func UnitEnabled(unit string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		enabled, _, err := env.UnitState(ctx, unit)
		if err != nil {
			return fault(ctx, "systemctl", err)
		}
		if enabled != "enabled" {
			return Fail("%s is %s", unit, orUnknown(enabled))
		}
		return Pass("%s is enabled", unit)
	}
}

// WhenInstalled runs p only when pkg is installed; otherwise the rule does not apply and passes
func WhenInstalled(pkg string, p Probe) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		ok, err := env.Installed(ctx, pkg)
		if err != nil {
			return fault(ctx, "dpkg-query", err)
		}
		if !ok {
			return Pass("%s is not installed", pkg)
		}
		return p(ctx, env)
	}
}
