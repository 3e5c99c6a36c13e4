// pkg/checks/cis/services.go

package cis

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

func services() chapter {
	return chapter{
		name: "Services",
		sections: []section{
			{name: "Server Services", entries: serverServices()},
			{name: "Client Services", entries: clientServices()},
			{name: "Time Synchronization", entries: timeSynchronization()},
			{name: "Job Schedulers", entries: jobSchedulers()},
		},
	}
}

func notInUse(pkgs []string, units ...string) probe.Probe {
	return probe.ServiceNotInUse(pkgs, units)
}

func pkgs(names ...string) []string { return names }

func serverServices() []entry {
	return []entry{
		rule("2.1.1", medium, "autofs_service", "Ensure autofs services are not in use",
			notInUse(pkgs("autofs"), "autofs.service")),
		rule("2.1.2", medium, "avahi_service", "Ensure avahi daemon services are not in use",
			notInUse(pkgs("avahi-daemon"), "avahi-daemon.socket", "avahi-daemon.service")),
		rule("2.1.3", medium, "dhcp_service", "Ensure dhcp server services are not in use",
			notInUse(pkgs("isc-dhcp-server"), "isc-dhcp-server.service", "isc-dhcp-server6.service")),
		rule("2.1.4", medium, "dns_service", "Ensure dns server services are not in use",
			notInUse(pkgs("bind9"), "named.service")),
		rule("2.1.5", medium, "dnsmasq_service", "Ensure dnsmasq services are not in use",
			notInUse(pkgs("dnsmasq"), "dnsmasq.service")),
		rule("2.1.6", medium, "ftp_service", "Ensure ftp server services are not in use",
			notInUse(pkgs("vsftpd"), "vsftpd.service")),
		rule("2.1.7", medium, "ldap_service", "Ensure ldap server services are not in use",
			notInUse(pkgs("slapd"), "slapd.service")),
		rule("2.1.8", medium, "message_access_service", "Ensure message access server services are not in use",
			notInUse(pkgs("dovecot-imapd", "dovecot-pop3d"), "dovecot.socket", "dovecot.service")),
		rule("2.1.9", medium, "nfs_services", "Ensure network file system services are not in use",
			notInUse(pkgs("nfs-kernel-server"), "nfs-server.service")),
		rule("2.1.10", medium, "nis_services", "Ensure nis server services are not in use",
			notInUse(pkgs("ypserv"), "ypserv.service")),
		rule("2.1.11", medium, "print_server_services", "Ensure print server services are not in use",
			notInUse(pkgs("cups"), "cups.socket", "cups.service")),
		rule("2.1.12", medium, "rpcbind_services", "Ensure rpcbind services are not in use",
			notInUse(pkgs("rpcbind"), "rpcbind.socket", "rpcbind.service")),
		rule("2.1.13", medium, "rsync_services", "Ensure rsync services are not in use",
			notInUse(pkgs("rsync"), "rsync.service")),
		rule("2.1.14", medium, "samba_services", "Ensure samba file server services are not in use",
			notInUse(pkgs("samba"), "smbd.service")),
		rule("2.1.15", medium, "snmp_services", "Ensure snmp services are not in use",
			notInUse(pkgs("snmpd"), "snmpd.service")),
		rule("2.1.16", medium, "tftp_services", "Ensure tftp server services are not in use",
			notInUse(pkgs("tftpd-hpa"), "tftpd-hpa.service")),
		rule("2.1.17", medium, "web_proxy_services", "Ensure web proxy server services are not in use",
			notInUse(pkgs("squid"), "squid.service")),
		rule("2.1.18", medium, "web_server_services", "Ensure web server services are not in use",
			notInUse(pkgs("apache2", "nginx"), "apache2.service", "nginx.service")),
		rule("2.1.19", medium, "xinetd_services", "Ensure xinetd services are not in use",
			notInUse(pkgs("xinetd"), "xinetd.service")),
		rule("2.1.20", medium, "x_window_services", "Ensure X Window server services are not in use",
			probe.PackagesAbsent("xserver-common")),
		rule("2.1.21", medium, "mta_local_only", "Ensure mail transfer agent is configured for local-only mode",
			listening(func(ports []listeningPort) probe.Outcome {
				var exposed []string
				for _, p := range ports {
					if (p.port == 25 || p.port == 465 || p.port == 587) && !p.loopback() {
						exposed = append(exposed, fmt.Sprintf("%s:%d", p.addr, p.port))
					}
				}
				if len(exposed) > 0 {
					return fail("MTA listens on non-loopback addresses: %s", strings.Join(exposed, ", "))
				}
				return pass("no MTA port is exposed beyond loopback")
			})),
		rule("2.1.22", high, "network_services", "Ensure only approved services are listening on a network interface",
			listening(func(ports []listeningPort) probe.Outcome {
				var exposed []string
				for _, p := range ports {
					if !p.loopback() {
						exposed = append(exposed, fmt.Sprintf("%s %s:%d", p.proto, p.addr, p.port))
					}
				}
				if len(exposed) == 0 {
					return pass("no service listens beyond loopback")
				}
				return review("verify these listeners are approved: %s", limit(exposed, 20))
			})),
	}
}

// listening evaluates the sockets in LISTEN state
func listening(eval func(ports []listeningPort) probe.Outcome) probe.Probe {
	return probe.Command(func(res utils.CommandResult) probe.Outcome {
		if !res.Success() {
			return fail("ss failed: %s", strings.TrimSpace(res.Stderr))
		}
		return eval(parseListening(res.Stdout))
	}, "ss", "-tulnH")
}

func clientServices() []entry {
	return []entry{
		rule("2.2.1", medium, "nis_client", "Ensure NIS Client is not installed", probe.PackagesAbsent("nis")),
		rule("2.2.2", medium, "rsh_client", "Ensure rsh Client is not installed", probe.PackagesAbsent("rsh-client")),
		rule("2.2.3", medium, "talk_client", "Ensure talk Client is not installed", probe.PackagesAbsent("talk")),
		rule("2.2.4", medium, "telnet_client", "Ensure telnet Client is not installed", probe.PackagesAbsent("telnet", "inetutils-telnet")),
		rule("2.2.5", medium, "ldap_client", "Ensure ldap Client is not installed", probe.PackagesAbsent("ldap-utils")),
		rule("2.2.6", medium, "ftp_client", "Ensure ftp Client is not installed", probe.PackagesAbsent("ftp", "tnftp")),
	}
}

const timesyncdFiles = "/etc/systemd/timesyncd.conf /etc/systemd/timesyncd.conf.d/*.conf"

func timeSynchronization() []entry {
	return []entry{
		rule("2.3.1.1", medium, "single_time_sync_daemon", "Ensure a single time synchronization daemon is in use",
			singleTimeDaemon),
		rule("2.3.2.1", medium, "timesyncd_timeserver", "Ensure systemd-timesyncd configured with authorized timeserver",
			whenTimesyncd(mergedSetting(timesyncdFiles, "Time", "NTP", probe.NotEmpty(), ""))),
		rule("2.3.2.2", medium, "timesyncd_status", "Ensure systemd-timesyncd is enabled and running",
			whenTimesyncd(probe.UnitEnabledActive("systemd-timesyncd.service"))),
		rule("2.3.3.1", medium, "chrony_timeserver", "Ensure chrony is configured with authorized timeserver",
			probe.WhenInstalled("chrony", grepFound(`grep -Ehs '^\s*(server|pool)\s+\S' /etc/chrony/chrony.conf /etc/chrony/sources.d/*.sources /etc/chrony/conf.d/*.conf`, "time source"))),
		rule("2.3.3.2", medium, "chrony_user", "Ensure chrony is running as user _chrony",
			probe.WhenInstalled("chrony", probe.Command(func(res utils.CommandResult) probe.Outcome {
				users := lines(res.Stdout)
				if len(users) == 0 {
					return fail("chronyd is not running")
				}
				for _, u := range users {
					if u != "_chrony" {
						return fail("chronyd runs as %s", u)
					}
				}
				return pass("chronyd runs as _chrony")
			}, "ps", "-C", "chronyd", "-o", "user="))),
	}
}

// whenTimesyncd applies p only when chrony is not the chosen daemon
func whenTimesyncd(p probe.Probe) probe.Probe {
	return func(ctx context.Context, env *probe.Env) probe.Outcome {
		enabled, active, err := env.UnitState(ctx, "chrony.service")
		if err == nil && (enabled == "enabled" || active == "active") {
			return pass("chrony is in use")
		}
		return p(ctx, env)
	}
}

func singleTimeDaemon(ctx context.Context, env *probe.Env) probe.Outcome {
	var inUse []string
	for _, unit := range []string{"systemd-timesyncd.service", "chrony.service"} {
		enabled, active, err := env.UnitState(ctx, unit)
		if err != nil {
			return fail("unable to query %s: %v", unit, err)
		}
		if enabled == "enabled" || active == "active" {
			inUse = append(inUse, unit)
		}
	}
	switch len(inUse) {
	case 0:
		return fail("no time synchronization daemon is in use")
	case 1:
		return pass("%s is the only time synchronization daemon", inUse[0])
	}
	return fail("more than one time synchronization daemon is in use: %s", strings.Join(inUse, ", "))
}

func cronDir(id, key, path string) entry {
	return rule(id, medium, key, fmt.Sprintf("Ensure permissions on %s are configured", path),
		probe.FileMode(path, probe.RootOwned(0o700)))
}

func jobSchedulers() []entry {
	return []entry{
		rule("2.4.1.1", medium, "cron_daemon_status", "Ensure cron daemon is enabled and active",
			probe.WhenInstalled("cron", probe.UnitEnabledActive("cron.service"))),
		rule("2.4.1.2", medium, "crontab_permissions", "Ensure permissions on /etc/crontab are configured",
			probe.FileMode("/etc/crontab", probe.RootOwned(0o600))),
		cronDir("2.4.1.3", "cron_hourly_permissions", "/etc/cron.hourly"),
		cronDir("2.4.1.4", "cron_daily_permissions", "/etc/cron.daily"),
		cronDir("2.4.1.5", "cron_weekly_permissions", "/etc/cron.weekly"),
		cronDir("2.4.1.6", "cron_monthly_permissions", "/etc/cron.monthly"),
		cronDir("2.4.1.7", "cron_d_permissions", "/etc/cron.d"),
		rule("2.4.1.8", medium, "crontab_restrictions", "Ensure crontab is restricted to authorized users",
			probe.WhenInstalled("cron", probe.AllOf(
				probe.FileMode("/etc/cron.allow", probe.Perm{Max: 0o640, Owner: "root", Groups: []string{"root", "crontab"}}),
				probe.FileMode("/etc/cron.deny", probe.Perm{Max: 0o640, Owner: "root", Groups: []string{"root", "crontab"}, Optional: true}),
			))),
		rule("2.4.2.1", medium, "at_daemon_restrictions", "Ensure at is restricted to authorized users",
			probe.WhenInstalled("at", probe.AllOf(
				probe.FileMode("/etc/at.allow", probe.Perm{Max: 0o640, Owner: "root", Groups: []string{"root", "daemon"}}),
				probe.FileMode("/etc/at.deny", probe.Perm{Max: 0o640, Owner: "root", Groups: []string{"root", "daemon"}, Optional: true}),
			))),
	}
}
