// pkg/checks/cis/firewall.go

package cis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

const (
	fwUFW      = "ufw"
	fwNftables = "nftables"
	fwIptables = "iptables"
)

// firewallUtility is one of the mutually exclusive firewall front ends
type firewallUtility struct {
	name string
	pkg  string
	unit string
}

var firewallUtilities = []firewallUtility{
	{fwUFW, "ufw", "ufw.service"},
	{fwNftables, "nftables", "nftables.service"},
	{fwIptables, "iptables-persistent", "netfilter-persistent.service"},
}

// activeFirewalls lists the utilities that are installed and in use
func activeFirewalls(ctx context.Context, env *probe.Env) ([]string, error) {
	var active []string
	for _, fw := range firewallUtilities {
		ok, err := env.Installed(ctx, fw.pkg)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		enabled, state, err := env.UnitState(ctx, fw.unit)
		if err != nil {
			return nil, err
		}
		if enabled == "enabled" || state == "active" {
			active = append(active, fw.name)
		}
	}
	return active, nil
}

// forFirewall applies p unless another utility is the one in use
func forFirewall(name string, p probe.Probe) probe.Probe {
	return func(ctx context.Context, env *probe.Env) probe.Outcome {
		active, err := activeFirewalls(ctx, env)
		if err != nil {
			return fail("unable to determine the firewall in use: %v", err)
		}
		if len(active) > 0 && !contains(active, name) {
			return pass("%s is not the firewall in use (%s)", name, strings.Join(active, ", "))
		}
		return p(ctx, env)
	}
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func hostFirewall() chapter {
	return chapter{
		name: "Host Based Firewall",
		sections: []section{
			{name: "Single Firewall Utility", entries: []entry{
				rule("4.1.1", medium, "firewall_utility", "Ensure a single firewall configuration utility is in use", singleFirewall),
			}},
			{name: "UncomplicatedFirewall", entries: ufwRules()},
			{name: "nftables", entries: nftablesRules()},
			{name: "iptables", entries: iptablesRules()},
		},
	}
}

func singleFirewall(ctx context.Context, env *probe.Env) probe.Outcome {
	active, err := activeFirewalls(ctx, env)
	if err != nil {
		return fail("unable to determine the firewall in use: %v", err)
	}
	switch len(active) {
	case 0:
		return fail("no firewall utility is in use")
	case 1:
		return pass("%s is the only firewall utility in use", active[0])
	}
	return fail("more than one firewall utility is in use: %s", strings.Join(active, ", "))
}

func ufwStatus(eval func(out string) probe.Outcome) probe.Probe {
	return probe.Command(func(res utils.CommandResult) probe.Outcome {
		if !res.Success() {
			return fail("ufw status failed: %s", strings.TrimSpace(res.Stderr))
		}
		return eval(res.Stdout)
	}, "ufw", "status", "verbose")
}

func ufwRules() []entry {
	return []entry{
		rule("4.2.1", high, "ufw_installed", "Ensure ufw is installed",
			forFirewall(fwUFW, probe.PackageInstalled("ufw"))),
		rule("4.2.2", medium, "iptables_persistent", "Ensure iptables-persistent is not installed",
			forFirewall(fwUFW, probe.PackagesAbsent("iptables-persistent"))),
		rule("4.2.3", high, "ufw_service", "Ensure ufw service is enabled",
			forFirewall(fwUFW, probe.AllOf(
				probe.UnitEnabledActive("ufw.service"),
				ufwStatus(func(out string) probe.Outcome {
					if _, ok := lineWith(out, "Status: active"); !ok {
						return fail("ufw is not active")
					}
					return pass("ufw is active")
				}),
			))),
		rule("4.2.4", medium, "ufw_loopback_configuration", "Ensure ufw loopback traffic is configured",
			forFirewall(fwUFW, ufwStatus(func(out string) probe.Outcome {
				var missing []string
				if _, ok := lineWith(out, "on lo", "ALLOW IN"); !ok {
					missing = append(missing, "allow in on lo")
				}
				if _, ok := lineWith(out, "ALLOW OUT", "on lo"); !ok {
					missing = append(missing, "allow out on lo")
				}
				if _, ok := lineWith(out, "DENY IN", "127.0.0.0/8"); !ok {
					missing = append(missing, "deny in from 127.0.0.0/8")
				}
				if len(missing) > 0 {
					return fail("missing loopback rules: %s", strings.Join(missing, ", "))
				}
				return pass("loopback traffic rules are configured")
			}))),
		rule("4.2.6", high, "ufw_open_ports", "Ensure UFW rules exist for all open ports",
			forFirewall(fwUFW, ufwOpenPorts)),
		rule("4.2.7", high, "ufw_default_policy", "Ensure UFW default deny firewall policy",
			forFirewall(fwUFW, ufwStatus(ufwDefaultPolicy))),
	}
}

// ufwRulePorts collects the port numbers named by ufw status rules
func ufwRulePorts(out string) map[int]bool {
	ports := make(map[int]bool)
	for _, line := range lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		spec, _, _ := strings.Cut(fields[0], "/")
		for _, p := range strings.Split(spec, ",") {
			lo, hi, isRange := strings.Cut(p, ":")
			from, err := strconv.Atoi(lo)
			if err != nil {
				continue
			}
			to := from
			if isRange {
				if to, err = strconv.Atoi(hi); err != nil {
					continue
				}
			}
			for n := from; n <= to; n++ {
				ports[n] = true
			}
		}
	}
	return ports
}

func ufwOpenPorts(ctx context.Context, env *probe.Env) probe.Outcome {
	ss, err := env.Exec.RunCommand(ctx, "ss", "-tulnH")
	if err != nil {
		return fail("unable to list listening sockets: %v", err)
	}
	status, err := env.Exec.RunCommand(ctx, "ufw", "status", "verbose")
	if err != nil {
		return fail("unable to query ufw: %v", err)
	}
	covered := ufwRulePorts(status.Stdout)

	var uncovered []string
	seen := make(map[int]bool)
	for _, p := range parseListening(ss.Stdout) {
		if p.loopback() || covered[p.port] || seen[p.port] {
			continue
		}
		seen[p.port] = true
		uncovered = append(uncovered, fmt.Sprintf("%s/%d", p.proto, p.port))
	}
	if len(uncovered) > 0 {
		return fail("open ports without a ufw rule: %s", strings.Join(uncovered, ", "))
	}
	return pass("every open port has a ufw rule")
}

// ufwDefaultPolicy checks "Default: deny (incoming), deny (outgoing), disabled (routed)"
func ufwDefaultPolicy(out string) probe.Outcome {
	line, ok := lineWith(out, "Default:")
	if !ok {
		return fail("ufw reports no default policy")
	}
	var weak []string
	for _, part := range strings.Split(strings.TrimPrefix(line, "Default:"), ",") {
		f := strings.Fields(part)
		if len(f) != 2 {
			continue
		}
		policy, direction := f[0], strings.Trim(f[1], "()")
		if policy == "allow" {
			weak = append(weak, direction)
		}
	}
	if len(weak) > 0 {
		return fail("default policy allows %s traffic", strings.Join(weak, ", "))
	}
	return pass("%s", line)
}

func nftRuleset(eval func(out string) probe.Outcome) probe.Probe {
	return probe.Command(func(res utils.CommandResult) probe.Outcome {
		if !res.Success() {
			return fail("nft list ruleset failed: %s", strings.TrimSpace(res.Stderr))
		}
		return eval(res.Stdout)
	}, "nft", "list", "ruleset")
}

var nftHooks = []string{"input", "forward", "output"}

func nftablesRules() []entry {
	return []entry{
		rule("4.3.1", high, "nftables_installed", "Ensure nftables is installed",
			forFirewall(fwNftables, probe.PackageInstalled("nftables"))),
		rule("4.3.2", medium, "ufw_disabled_or_uninstalled", "Ensure UFW is uninstalled or disabled with nftables",
			forFirewall(fwNftables, probe.AnyOf(probe.PackagesAbsent("ufw"), probe.UnitInactive("ufw.service")))),
		rule("4.3.4", high, "nftables_table_exists", "Ensure a nftables table exists",
			forFirewall(fwNftables, nftRuleset(func(out string) probe.Outcome {
				if line, ok := lineWith(out, "table "); ok {
					return pass("%s", strings.TrimSuffix(line, " {"))
				}
				return fail("no nftables table exists")
			}))),
		rule("4.3.5", high, "nftables_base_chains_exist", "Ensure nftables base chains exist",
			forFirewall(fwNftables, nftRuleset(func(out string) probe.Outcome {
				var missing []string
				for _, h := range nftHooks {
					if _, ok := lineWith(out, "hook "+h); !ok {
						missing = append(missing, h)
					}
				}
				if len(missing) > 0 {
					return fail("no base chain for hook %s", strings.Join(missing, ", "))
				}
				return pass("base chains exist for input, forward and output")
			}))),
		rule("4.3.6", high, "nftables_loopback_configured", "Ensure nftables loopback traffic is configured",
			forFirewall(fwNftables, nftRuleset(func(out string) probe.Outcome {
				var missing []string
				if _, ok := lineWith(out, `iif "lo"`, "accept"); !ok {
					missing = append(missing, "accept on lo")
				}
				if _, ok := lineWith(out, "ip saddr 127.0.0.0/8", "drop"); !ok {
					missing = append(missing, "drop from 127.0.0.0/8")
				}
				if len(missing) > 0 {
					return fail("missing loopback rules: %s", strings.Join(missing, ", "))
				}
				return pass("loopback traffic rules are configured")
			}))),
		rule("4.3.8", high, "nftables_default_deny_policy", "Ensure nftables default deny firewall policy",
			forFirewall(fwNftables, nftRuleset(func(out string) probe.Outcome {
				var open []string
				for _, h := range nftHooks {
					line, ok := lineWith(out, "hook "+h)
					if !ok || !strings.Contains(line, "policy drop") {
						open = append(open, h)
					}
				}
				if len(open) > 0 {
					return fail("base chains without a drop policy: %s", strings.Join(open, ", "))
				}
				return pass("every base chain has a drop policy")
			}))),
		rule("4.3.9", high, "nftables_service_enabled", "Ensure nftables service is enabled",
			forFirewall(fwNftables, probe.UnitEnabled("nftables.service"))),
		rule("4.3.10", high, "nftables_rules_persistent", "Ensure nftables rules are permanent",
			forFirewall(fwNftables, grepFound(`grep -Es '^\s*include' /etc/nftables.conf`, "nftables.conf include"))),
	}
}

func iptablesRules() []entry {
	return []entry{
		rule("4.4.1.2", medium, "nftables_with_iptables", "Ensure nftables is not in use with iptables",
			forFirewall(fwIptables, probe.AnyOf(probe.PackagesAbsent("nftables"), probe.UnitInactive("nftables.service")))),
		rule("4.4.1.3", medium, "ufw_with_iptables", "Ensure ufw is not in use with iptables",
			forFirewall(fwIptables, probe.AnyOf(probe.PackagesAbsent("ufw"), probe.UnitInactive("ufw.service")))),
		rule("4.4.2.2", high, "iptables_loopback_traffic", "Ensure iptables loopback traffic is configured",
			forFirewall(fwIptables, probe.Shell(`iptables -L INPUT -v -n && iptables -L OUTPUT -v -n`, func(res utils.CommandResult) probe.Outcome {
				if !res.Success() {
					return fail("iptables failed: %s", strings.TrimSpace(res.Stderr))
				}
				var missing []string
				if _, ok := lineWith(res.Stdout, "ACCEPT", "lo"); !ok {
					missing = append(missing, "accept on lo")
				}
				if _, ok := lineWith(res.Stdout, "DROP", "127.0.0.0/8"); !ok {
					missing = append(missing, "drop from 127.0.0.0/8")
				}
				if len(missing) > 0 {
					return fail("missing loopback rules: %s", strings.Join(missing, ", "))
				}
				return pass("loopback traffic rules are configured")
			}))),
	}
}
