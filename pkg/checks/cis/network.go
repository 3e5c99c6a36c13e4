// pkg/checks/cis/network.go

package cis

import (
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
)

func network() chapter {
	return chapter{
		name: "Network",
		sections: []section{
			{name: "Network Devices", entries: networkDevices()},
			{name: "Network Kernel Modules", entries: []entry{
				rule("3.2.2", medium, "tipc_module", "Ensure tipc kernel module is not available", probe.ModuleUnavailable("tipc")),
				rule("3.2.3", medium, "rds_module", "Ensure rds kernel module is not available", probe.ModuleUnavailable("rds")),
				rule("3.2.4", medium, "sctp_module", "Ensure sctp kernel module is not available", probe.ModuleUnavailable("sctp")),
			}},
			{name: "Network Kernel Parameters", entries: networkParameters()},
		},
	}
}

func networkDevices() []entry {
	return []entry{
		rule("3.1.1", medium, "ipv6_status", "Ensure IPv6 status is identified",
			probe.File(probe.SysctlPath("net.ipv6.conf.all.disable_ipv6"), func(content string) probe.Outcome {
				if strings.TrimSpace(content) == "1" {
					return review("IPv6 is disabled; confirm this matches site policy")
				}
				return review("IPv6 is enabled; confirm this matches site policy")
			}, probe.Missing(review("IPv6 is not available in the kernel; confirm this matches site policy")))),
		rule("3.1.2", medium, "wireless_interfaces", "Ensure wireless interfaces are disabled",
			noOutput(`for d in /sys/class/net/*/wireless; do [ -d "$d" ] && basename "$(dirname "$d")"; done; true`, "wireless interfaces present")),
		rule("3.1.3", medium, "bluetooth_services", "Ensure bluetooth services are not in use",
			notInUse(pkgs("bluez"), "bluetooth.service")),
	}
}

// ipv4 checks a parameter on both the all and default interfaces
func ipv4(param string, want ...string) probe.Probe {
	return probe.AllOf(
		probe.Sysctl("net.ipv4.conf.all."+param, want...),
		probe.Sysctl("net.ipv4.conf.default."+param, want...),
	)
}

func ipv6(param string, want ...string) probe.Probe {
	return probe.AllOf(
		probe.Sysctl("net.ipv6.conf.all."+param, want...),
		probe.Sysctl("net.ipv6.conf.default."+param, want...),
	)
}

func networkParameters() []entry {
	return []entry{
		rule("3.3.1", medium, "ip_forwarding", "Ensure IP forwarding is disabled",
			probe.AllOf(probe.Sysctl("net.ipv4.ip_forward", "0"), probe.Sysctl("net.ipv6.conf.all.forwarding", "0"))),
		rule("3.3.2", medium, "packet_redirect_sending", "Ensure packet redirect sending is disabled",
			ipv4("send_redirects", "0")),
		rule("3.3.3", medium, "bogus_icmp_responses", "Ensure bogus ICMP responses are ignored",
			probe.Sysctl("net.ipv4.icmp_ignore_bogus_error_responses", "1")),
		rule("3.3.4", medium, "broadcast_icmp_requests", "Ensure broadcast ICMP requests are ignored",
			probe.Sysctl("net.ipv4.icmp_echo_ignore_broadcasts", "1")),
		rule("3.3.5", medium, "icmp_redirects", "Ensure ICMP redirects are not accepted",
			probe.AllOf(ipv4("accept_redirects", "0"), ipv6("accept_redirects", "0"))),
		rule("3.3.6", medium, "secure_icmp_redirects", "Ensure secure ICMP redirects are not accepted",
			ipv4("secure_redirects", "0")),
		rule("3.3.7", medium, "reverse_path_filtering", "Ensure reverse path filtering is enabled",
			ipv4("rp_filter", "1")),
		rule("3.3.8", medium, "source_routed_packets", "Ensure source routed packets are not accepted",
			probe.AllOf(ipv4("accept_source_route", "0"), ipv6("accept_source_route", "0"))),
		rule("3.3.9", medium, "suspicious_packets_logging", "Ensure suspicious packets are logged",
			ipv4("log_martians", "1")),
		rule("3.3.10", medium, "tcp_syn_cookies", "Ensure TCP SYN Cookies is enabled",
			probe.Sysctl("net.ipv4.tcp_syncookies", "1")),
		rule("3.3.11", medium, "ipv6_router_advertisements", "Ensure IPv6 router advertisements are not accepted",
			ipv6("accept_ra", "0")),
	}
}
