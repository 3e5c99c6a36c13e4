// pkg/checks/cis/helpers.go

package cis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

var (
	pass   = probe.Pass
	fail   = probe.Fail
	review = probe.Review
)

// lines splits output into trimmed, non-empty lines
func lines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	return out
}

// lineWith returns the first line holding every part
func lineWith(content string, parts ...string) (string, bool) {
	for _, line := range lines(content) {
		ok := true
		for _, p := range parts {
			if !strings.Contains(line, p) {
				ok = false
				break
			}
		}
		if ok {
			return line, true
		}
	}
	return "", false
}

// limit shortens long listings for narratives
func limit(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:n], ", "), len(items)-n)
}

// noOutput passes when a search command prints nothing
func noOutput(script, found string) probe.Probe {
	return probe.Shell(script, func(res utils.CommandResult) probe.Outcome {
		items := lines(res.Stdout)
		if len(items) > 0 {
			return fail("%s: %s", found, limit(items, 10))
		}
		return pass("none found")
	})
}

// grepFound passes when a grep script matches; exit status 1 means no match
func grepFound(script, what string) probe.Probe {
	return probe.Shell(script, func(res utils.CommandResult) probe.Outcome {
		switch res.ExitCode {
		case 0:
			return pass("%s: %s", what, firstOf(res.Stdout))
		case 1:
			return fail("%s is not configured", what)
		}
		return fail("unable to search for %s: %s", what, strings.TrimSpace(res.Stderr))
	})
}

// grepAbsent passes when a grep script finds nothing
func grepAbsent(script, what string) probe.Probe {
	return probe.Shell(script, func(res utils.CommandResult) probe.Outcome {
		switch res.ExitCode {
		case 0:
			return fail("%s: %s", what, firstOf(res.Stdout))
		case 1:
			return pass("%s not found", what)
		}
		return fail("unable to search for %s: %s", what, strings.TrimSpace(res.Stderr))
	})
}

func firstOf(s string) string {
	if l := lines(s); len(l) > 0 {
		return l[0]
	}
	return ""
}

// gdmSetting checks a dconf key of the GDM database when GDM is installed
func gdmSetting(key string, expect probe.Expect) probe.Probe {
	script := fmt.Sprintf(`grep -Ehrs '^\s*%s\s*=' /etc/dconf/db/`, key)
	return probe.WhenInstalled("gdm3", probe.Shell(script, func(res utils.CommandResult) probe.Outcome {
		line := firstOf(res.Stdout)
		if line == "" {
			return fail("%s is not set in the dconf database", key)
		}
		_, value, _ := strings.Cut(line, "=")
		value = strings.Trim(strings.TrimSpace(value), `'"`)
		if err := expect(value); err != nil {
			return fail("%s %s", key, err)
		}
		return pass("%s is %s", key, value)
	}))
}

// gdmLocked checks that dconf keys are locked against user overrides
func gdmLocked(paths ...string) probe.Probe {
	return probe.WhenInstalled("gdm3", probe.Shell(`cat /etc/dconf/db/*/locks/* 2>/dev/null`, func(res utils.CommandResult) probe.Outcome {
		locked := make(map[string]bool)
		for _, line := range lines(res.Stdout) {
			locked[line] = true
		}
		var open []string
		for _, p := range paths {
			if !locked[p] {
				open = append(open, p)
			}
		}
		if len(open) > 0 {
			return fail("not locked: %s", strings.Join(open, ", "))
		}
		return pass("locked: %s", strings.Join(paths, ", "))
	}))
}

// uint32Value unwraps a GVariant "uint32 N" before applying expect
func uint32Value(expect probe.Expect) probe.Expect {
	return func(value string) error {
		return expect(strings.TrimSpace(strings.TrimPrefix(value, "uint32")))
	}
}

// auditRule is a set of fragments that must all occur on one loaded audit rule
type auditRule []string

// auditRules checks the loaded audit rules, falling back to the on-disk
// rules when auditctl is unavailable
func auditRules(rules ...auditRule) probe.Probe {
	return func(ctx context.Context, env *probe.Env) probe.Outcome {
		loaded, source, err := loadAuditRules(ctx, env)
		if err != nil {
			return fail("unable to read audit rules: %v", err)
		}
		var missing []string
		for _, r := range rules {
			if _, ok := lineWith(loaded, r...); !ok {
				missing = append(missing, strings.Join(r, " "))
			}
		}
		if len(missing) > 0 {
			return fail("no audit rule for %s (%s)", strings.Join(missing, "; "), source)
		}
		return pass("audit rules present (%s)", source)
	}
}

func loadAuditRules(ctx context.Context, env *probe.Env) (string, string, error) {
	res, err := env.Exec.RunCommand(ctx, "auditctl", "-l")
	if err == nil && res.Success() {
		return res.Stdout, "auditctl -l", nil
	}
	res, err = env.Exec.RunCommand(ctx, "sh", "-c", "cat /etc/audit/rules.d/*.rules")
	if err != nil {
		return "", "", err
	}
	return res.Stdout, "/etc/audit/rules.d", nil
}

// pamLines returns the lines of a PAM file that load module
func pamLines(content, module string) []string {
	var out []string
	for _, line := range lines(content) {
		if strings.Contains(line, module) {
			out = append(out, line)
		}
	}
	return out
}

// pamModule checks that every file loads module, optionally with an argument
func pamModule(module, arg string, files ...string) probe.Probe {
	var probes []probe.Probe
	for _, file := range files {
		file := file
		probes = append(probes, probe.File(file, func(content string) probe.Outcome {
			found := pamLines(content, module)
			if len(found) == 0 {
				return fail("%s is not loaded by %s", module, file)
			}
			if arg != "" {
				for _, line := range found {
					if !containsField(line, arg) {
						return fail("%s in %s lacks %s", module, file, arg)
					}
				}
				return pass("%s in %s has %s", module, file, arg)
			}
			return pass("%s is loaded by %s", module, file)
		}, nil))
	}
	return probe.AllOf(probes...)
}

// pamArgAbsent checks that no file passes arg to module
func pamArgAbsent(module, arg string, files ...string) probe.Probe {
	var probes []probe.Probe
	for _, file := range files {
		file := file
		probes = append(probes, probe.File(file, func(content string) probe.Outcome {
			for _, line := range pamLines(content, module) {
				if containsField(line, arg) {
					return fail("%s in %s has %s", module, file, arg)
				}
			}
			return pass("%s does not use %s in %s", module, arg, file)
		}, probe.Missing(pass("%s does not exist", file))))
	}
	return probe.AllOf(probes...)
}

func containsField(line, field string) bool {
	for _, f := range strings.Fields(line) {
		if f == field || strings.HasPrefix(f, field+"=") {
			return true
		}
	}
	return false
}

// listeningPort is a socket in LISTEN state
type listeningPort struct {
	proto string
	addr  string
	port  int
}

// parseListening parses "ss -tulnH" output
func parseListening(out string) []listeningPort {
	var ports []listeningPort
	for _, line := range lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		local := fields[4]
		i := strings.LastIndex(local, ":")
		if i < 0 {
			continue
		}
		port, err := strconv.Atoi(local[i+1:])
		if err != nil {
			continue
		}
		ports = append(ports, listeningPort{proto: fields[0], addr: local[:i], port: port})
	}
	return ports
}

// loopback reports whether a listening address is local to the host
func (p listeningPort) loopback() bool {
	addr := strings.Trim(p.addr, "[]")
	if i := strings.Index(addr, "%"); i >= 0 {
		addr = addr[:i]
	}
	return strings.HasPrefix(addr, "127.") || addr == "::1"
}

// mergedSetting checks an INI style key across a file and its drop-ins,
// concatenated in order so later files win. def applies when the key is unset.
func mergedSetting(paths, section, key string, expect probe.Expect, def string) probe.Probe {
	return probe.Shell("cat "+paths+" 2>/dev/null", func(res utils.CommandResult) probe.Outcome {
		file, err := probe.ParseKeyValue(res.Stdout)
		if err != nil {
			return fail("unable to parse %s: %v", paths, err)
		}
		value, found := def, false
		if sec, err := file.GetSection(section); err == nil && sec.HasKey(key) {
			value, found = sec.Key(key).String(), true
		}
		if !found && def == "" {
			return fail("%s is not set in %s", key, paths)
		}
		if err := expect(value); err != nil {
			return fail("%s %s", key, err)
		}
		return pass("%s is %s", key, value)
	})
}
