// pkg/checks/cis/logging.go

package cis

import (
	"context"
	"strconv"
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

func loggingAndAuditing() chapter {
	return chapter{
		name: "Logging and Auditing",
		sections: []section{
			{name: "System Logging", entries: systemLogging()},
			{name: "System Auditing", entries: systemAuditing()},
			{name: "Integrity Checking", entries: integrityChecking()},
		},
	}
}

const (
	journaldFiles = "/etc/systemd/journald.conf /etc/systemd/journald.conf.d/*.conf"
	rsyslogFiles  = "/etc/rsyslog.conf /etc/rsyslog.d/*.conf"
	auditdConf    = "/etc/audit/auditd.conf"
)

func systemLogging() []entry {
	return []entry{
		rule("6.1.1.4", high, "logging_system_check", "Ensure only one logging system is in use", loggingSystem),
		rule("6.1.2.3", medium, "journald_compress_configured", "Ensure journald Compress is configured",
			mergedSetting(journaldFiles, "Journal", "Compress", probe.Equals("yes"), "")),
		rule("6.1.3.2", high, "rsyslog_service_active", "Ensure rsyslog service is enabled and active",
			probe.WhenInstalled("rsyslog", probe.UnitEnabledActive("rsyslog.service"))),
		rule("6.1.3.4", medium, "rsyslog_log_file_creation_mode", "Ensure rsyslog log file creation mode is configured",
			probe.WhenInstalled("rsyslog", probe.Shell(`grep -Ehs '^\s*\$FileCreateMode' `+rsyslogFiles, fileCreateMode))),
		rule("6.1.3.7", high, "rsyslog_receive_remote_logs", "Ensure rsyslog is not configured to receive logs from a remote client",
			grepAbsent(`grep -Ehs '^\s*(module\(load="?imtcp"?|input\(type="?imtcp"?|\$ModLoad\s+imtcp|\$InputTCPServerRun)' `+rsyslogFiles,
				"rsyslog accepts remote logs")),
		rule("6.1.4.1", high, "logfile_access", "Ensure access to all log files has been configured",
			noOutput(`find /var/log -type f -perm /0137 2>/dev/null`, "log files more permissive than 0640")),
	}
}

func loggingSystem(ctx context.Context, env *probe.Env) probe.Outcome {
	_, rsyslog, err := env.UnitState(ctx, "rsyslog.service")
	if err != nil {
		return fail("unable to query rsyslog: %v", err)
	}
	if rsyslog == "active" {
		return pass("rsyslog is the logging system in use")
	}
	_, journald, err := env.UnitState(ctx, "systemd-journald.service")
	if err != nil {
		return fail("unable to query journald: %v", err)
	}
	if journald == "active" {
		return pass("journald is the logging system in use")
	}
	return fail("no logging system is active")
}

func fileCreateMode(res utils.CommandResult) probe.Outcome {
	line := ""
	for _, l := range lines(res.Stdout) {
		line = l
	}
	if line == "" {
		return fail("$FileCreateMode is not set")
	}
	f := strings.Fields(line)
	if len(f) < 2 {
		return fail("$FileCreateMode has no value")
	}
	mode, err := strconv.ParseUint(f[1], 8, 32)
	if err != nil {
		return fail("$FileCreateMode %q is not an octal mode", f[1])
	}
	if mode&^0o640 != 0 {
		return fail("$FileCreateMode %04o is more permissive than 0640", mode)
	}
	return pass("$FileCreateMode is %04o", mode)
}

var auditTools = []string{
	"/sbin/auditctl", "/sbin/aureport", "/sbin/ausearch", "/sbin/autrace", "/sbin/auditd", "/sbin/augenrules",
}

// bothArches expands a syscall rule to the 64 and 32 bit ABIs
func bothArches(parts ...string) []auditRule {
	return []auditRule{
		append(auditRule{"arch=b64"}, parts...),
		append(auditRule{"arch=b32"}, parts...),
	}
}

func watches(paths ...string) []auditRule {
	var rules []auditRule
	for _, p := range paths {
		rules = append(rules, auditRule{"-w " + p, "-p wa"})
	}
	return rules
}

func systemAuditing() []entry {
	return []entry{
		rule("6.2.1.2", high, "auditd_service", "Ensure auditd service is enabled and active",
			probe.AllOf(probe.PackageInstalled("auditd"), probe.UnitEnabledActive("auditd.service"))),
		rule("6.2.1.4", high, "audit_backlog_limit", "Ensure audit_backlog_limit is sufficient",
			probe.File("/proc/cmdline", backlogLimit, nil)),
		rule("6.2.2.1", high, "audit_log_storage_size", "Ensure audit log storage size is configured",
			probe.KeyValue(auditdConf, "", "max_log_file", probe.AtLeast(1), "")),
		rule("6.2.2.4", high, "system_warns_when_logs_low_space", "Ensure system warns when audit logs are low on space",
			probe.AllOf(
				probe.KeyValue(auditdConf, "", "space_left_action", probe.Equals("email", "exec", "single", "halt"), ""),
				probe.KeyValue(auditdConf, "", "admin_space_left_action", probe.Equals("single", "halt"), ""),
			)),
		rule("6.2.3.2", high, "actions_as_another_user_logged", "Ensure actions as another user are always logged",
			auditRules(bothArches("-C", "euid", "execve")...)),
		rule("6.2.3.4", high, "date_and_time_modifications_collected", "Ensure events that modify date and time information are collected",
			auditRules(append(bothArches("adjtimex", "settimeofday"), watches("/etc/localtime")...)...)),
		rule("6.2.3.6", high, "privileged_commands_collected", "Ensure use of privileged commands are collected", privilegedCommands),
		rule("6.2.3.11", high, "session_initiation_collected", "Ensure session initiation information is collected",
			auditRules(watches("/var/run/utmp", "/var/log/wtmp", "/var/log/btmp")...)),
		rule("6.2.3.12", high, "login_logout_collected", "Ensure login and logout events are collected",
			auditRules(watches("/var/log/lastlog", "/var/run/faillock")...)),
		rule("6.2.3.13", high, "file_deletion_collected", "Ensure file deletion events by users are collected",
			auditRules(bothArches("unlink", "rename")...)),
		rule("6.2.3.14", high, "mac_modifications_collected", "Ensure events that modify the system's Mandatory Access Controls are collected",
			auditRules(watches("/etc/apparmor", "/etc/apparmor.d")...)),
		rule("6.2.3.16", high, "setfacl_usage_collected", "Ensure successful and unsuccessful attempts to use the setfacl command are collected",
			auditRules(auditRule{"path=/usr/bin/setfacl"})),
		rule("6.2.3.17", high, "chacl_usage_collected", "Ensure successful and unsuccessful attempts to use the chacl command are collected",
			auditRules(auditRule{"path=/usr/bin/chacl"})),
		rule("6.2.3.20", high, "audit_config_immutable", "Ensure the audit configuration is immutable",
			probe.AnyOf(
				probe.Command(func(res utils.CommandResult) probe.Outcome {
					if _, ok := lineWith(res.Stdout, "enabled 2"); ok {
						return pass("audit configuration is locked (enabled 2)")
					}
					return fail("auditctl reports the configuration is not locked")
				}, "auditctl", "-s"),
				grepFound(`grep -Ehs '^\s*-e\s+2\b' /etc/audit/rules.d/*.rules`, "-e 2"),
			)),
		rule("6.2.4.5", high, "audit_configuration_files_mode", "Ensure audit configuration files mode is configured",
			noOutput(`find /etc/audit -type f \( -name '*.conf' -o -name '*.rules' \) -perm /0137 2>/dev/null`,
				"audit configuration files more permissive than 0640")),
		rule("6.2.4.6", high, "audit_configuration_files_owner", "Ensure audit configuration files owner is configured",
			noOutput(`find /etc/audit -type f \( -name '*.conf' -o -name '*.rules' \) ! -user root 2>/dev/null`,
				"audit configuration files not owned by root")),
		rule("6.2.4.8", high, "audit_tools_mode", "Ensure audit tools mode is configured", auditToolsMode()),
	}
}

func backlogLimit(content string) probe.Outcome {
	for _, f := range strings.Fields(content) {
		v, ok := strings.CutPrefix(f, "audit_backlog_limit=")
		if !ok {
			continue
		}
		if err := probe.AtLeast(8192)(v); err != nil {
			return fail("audit_backlog_limit %s", err)
		}
		return pass("audit_backlog_limit is %s", v)
	}
	return fail("audit_backlog_limit is not set on the kernel command line")
}

// privilegedCommands requires an audit rule for every setuid or setgid
// binary on the root filesystem
func privilegedCommands(ctx context.Context, env *probe.Env) probe.Outcome {
	res, err := env.Exec.RunCommand(ctx, "sh", "-c", `find / -xdev -type f -perm /6000 2>/dev/null`)
	if err != nil {
		return fail("unable to list privileged commands: %v", err)
	}
	loaded, source, err := loadAuditRules(ctx, env)
	if err != nil {
		return fail("unable to read audit rules: %v", err)
	}
	binaries := lines(res.Stdout)
	var missing []string
	for _, bin := range binaries {
		if _, ok := lineWith(loaded, "path="+bin); !ok {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return fail("no audit rule (%s) for %s", source, limit(missing, 10))
	}
	return pass("all %d privileged commands are audited", len(binaries))
}

func auditToolsMode() probe.Probe {
	var probes []probe.Probe
	for _, tool := range auditTools {
		probes = append(probes, probe.FileMode(tool, probe.Perm{Max: 0o755, Owner: "root", Groups: []string{"root"}, Optional: true}))
	}
	return probe.AllOf(probes...)
}

func integrityChecking() []entry {
	return []entry{
		rule("6.3.1", high, "aide_installed", "Ensure AIDE is installed",
			probe.AllOf(probe.PackageInstalled("aide"), probe.PackageInstalled("aide-common"))),
		rule("6.3.2", high, "filesystem_integrity_checked", "Ensure filesystem integrity is regularly checked",
			probe.AnyOf(
				probe.UnitEnabled("dailyaidecheck.timer"),
				grepFound(`grep -Ehs '(aide|aidecheck)' /etc/crontab /etc/cron.d/* /var/spool/cron/crontabs/*`, "scheduled aide run"),
			)),
		rule("6.3.3", high, "cryptographic_mechanisms_for_audit_tools", "Ensure cryptographic mechanisms are used to protect the integrity of audit tools",
			probe.Shell(`cat /etc/aide/aide.conf /etc/aide/aide.conf.d/* 2>/dev/null`, aideAuditTools)),
	}
}

// aideAuditTools requires every audit tool to be covered with a sha512 checksum
func aideAuditTools(res utils.CommandResult) probe.Outcome {
	var missing []string
	for _, tool := range auditTools {
		line, ok := lineWith(res.Stdout, tool+" ")
		if !ok || !strings.Contains(line, "sha512") {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fail("AIDE does not verify %s with sha512", strings.Join(missing, ", "))
	}
	return pass("AIDE verifies every audit tool with sha512")
}
