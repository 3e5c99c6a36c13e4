// pkg/checks/probe/kernel.go

package probe

import (
	"context"
	"strings"
)

// SysctlPath maps a dotted kernel parameter to its /proc/sys file
func SysctlPath(key string) string {
	return "/proc/sys/" + strings.ReplaceAll(key, ".", "/")
}

// Sysctl checks the running value of a kernel parameter. IPv6 parameters
// pass when IPv6 is disabled and the parameter does not exist.
func Sysctl(key string, want ...string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		content, ok, err := env.readFile(ctx, SysctlPath(key))
		if err != nil {
			return fault(ctx, key, err)
		}
		if !ok {
			if strings.HasPrefix(key, "net.ipv6.") {
				return Pass("%s is not present, IPv6 is disabled", key)
			}
			return Fail("%s is not present", key)
		}

		value := strings.Join(strings.Fields(content), " ")
		for _, w := range want {
			if value == w {
				return Pass("%s = %s", key, value)
			}
		}
		return Fail("%s = %s, expected %s", key, value, strings.Join(want, " or "))
	}
}

// LoadedModules parses /proc/modules into a set of module names
func LoadedModules(content string) map[string]bool {
	loaded := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			loaded[fields[0]] = true
		}
	}
	return loaded
}

// ModuleUnavailable checks that a kernel module is neither loaded nor
// loadable. A module the kernel does not ship passes.
func ModuleUnavailable(name string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		modName := strings.ReplaceAll(name, "-", "_")

		content, _, err := env.readFile(ctx, "/proc/modules")
		if err != nil {
			return fault(ctx, "/proc/modules", err)
		}
		if LoadedModules(content)[modName] {
			return Fail("%s module is loaded", name)
		}

		res, err := env.run(ctx, "modprobe", "-n", "-v", name)
		if err != nil {
			return fault(ctx, "modprobe", err)
		}
		dryRun := strings.ToLower(res.Stdout + res.Stderr)
		if !res.Success() && strings.Contains(dryRun, "not found") {
			return Pass("%s module is not available in this kernel", name)
		}
		loadable := !strings.Contains(dryRun, "install /bin/false") && !strings.Contains(dryRun, "install /bin/true")

		cfg, err := env.run(ctx, "modprobe", "--showconfig")
		if err != nil {
			return fault(ctx, "modprobe", err)
		}
		denied := false
		for _, line := range strings.Split(cfg.Stdout, "\n") {
			fields := strings.Fields(line)
			if len(fields) == 2 && fields[0] == "blacklist" && strings.ReplaceAll(fields[1], "-", "_") == modName {
				denied = true
				break
			}
		}

		switch {
		case loadable && !denied:
			return Fail("%s module is loadable and not deny listed", name)
		case loadable:
			return Fail("%s module is deny listed but still loadable", name)
		case !denied:
			return Fail("%s module is not loadable but not deny listed", name)
		}
		return Pass("%s module is not loadable and deny listed", name)
	}
}

// KernelCmdline checks that the boot command line carries every argument
func KernelCmdline(args ...string) Probe {
	return File("/proc/cmdline", func(content string) Outcome {
		present := make(map[string]bool)
		for _, f := range strings.Fields(content) {
			present[f] = true
		}
		var missing []string
		for _, a := range args {
			if !present[a] {
				missing = append(missing, a)
			}
		}
		if len(missing) > 0 {
			return Fail("kernel command line is missing %s", strings.Join(missing, " "))
		}
		return Pass("kernel command line has %s", strings.Join(args, " "))
	}, nil)
}
