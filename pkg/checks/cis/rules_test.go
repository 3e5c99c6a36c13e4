package cis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe/probetest"
)

const apparmorOutput = `apparmor module is loaded.
34 profiles are loaded.
32 profiles are in enforce mode.
2 profiles are in complain mode.
0 processes have profiles defined.
0 processes are unconfined but have a profile defined.
`

func TestAppArmorProfiles(t *testing.T) {
	host := probetest.NewExecutor().Command(apparmorOutput, 0, "apparmor_status")

	mode := evaluate(t, host, "1.3.1.3")
	assert.Equal(t, audit.StatusPass, mode.Status, mode.Narrative)
	assert.Equal(t, "34 profiles loaded, 32 enforcing, 2 complaining", mode.Narrative)

	enforcing := evaluate(t, host, "1.3.1.4")
	assert.Equal(t, audit.StatusFail, enforcing.Status)
	assert.Equal(t, "32 of 34 profiles are enforcing", enforcing.Narrative)
}

const listeners = `tcp   LISTEN 0      100        127.0.0.1:25        0.0.0.0:*
tcp   LISTEN 0      128          0.0.0.0:22        0.0.0.0:*
tcp   LISTEN 0      100             [::]:587          [::]:*
tcp   LISTEN 0      128          0.0.0.0:80        0.0.0.0:*
udp   UNCONN 0      0          127.0.0.53%lo:53      0.0.0.0:*
`

func TestParseListening(t *testing.T) {
	ports := parseListening(listeners)
	require.Len(t, ports, 5)
	assert.Equal(t, listeningPort{proto: "tcp", addr: "127.0.0.1", port: 25}, ports[0])
	assert.True(t, ports[0].loopback())
	assert.False(t, ports[1].loopback())
	assert.Equal(t, "[::]", ports[2].addr)
	assert.False(t, ports[2].loopback())
	assert.True(t, ports[4].loopback())
}

func TestMTALocalOnly(t *testing.T) {
	host := probetest.NewExecutor().Command(listeners, 0, "ss", "-tulnH")

	out := evaluate(t, host, "2.1.21")
	assert.Equal(t, audit.StatusFail, out.Status)
	assert.Contains(t, out.Narrative, "[::]:587")
	assert.NotContains(t, out.Narrative, "127.0.0.1")

	review := evaluate(t, host, "2.1.22")
	assert.Equal(t, audit.StatusManual, review.Status)
	assert.Contains(t, review.Narrative, "tcp 0.0.0.0:22")
}

func TestServiceNotInUseRule(t *testing.T) {
	host := notInstalled(installed(probetest.NewExecutor(), "apache2"), "nginx")
	unit(host, "apache2.service", "enabled", "active")
	unit(host, "nginx.service", "disabled", "inactive")

	out := evaluate(t, host, "2.1.18")
	assert.Equal(t, audit.StatusFail, out.Status)
	assert.Equal(t, "apache2 installed and in use: apache2.service (enabled, active)", out.Narrative)
}

func ufwHost(activeFirewalls ...string) *probetest.Executor {
	host := probetest.NewExecutor()
	for _, fw := range firewallUtilities {
		if contains(activeFirewalls, fw.name) {
			installed(host, fw.pkg)
			unit(host, fw.unit, "enabled", "active")
		} else {
			notInstalled(host, fw.pkg)
		}
	}
	return host
}

const ufwVerbose = `Status: active
Logging: on (low)
Default: deny (incoming), allow (outgoing), disabled (routed)
New profiles: skip

To                         Action      From
--                         ------      ----
22/tcp                     ALLOW IN    Anywhere
Anywhere on lo             ALLOW IN    Anywhere
Anywhere                   DENY IN     127.0.0.0/8
`

func TestSingleFirewall(t *testing.T) {
	out := evaluate(t, ufwHost("ufw"), "4.1.1")
	assert.Equal(t, audit.StatusPass, out.Status)

	out = evaluate(t, ufwHost("ufw", "nftables"), "4.1.1")
	assert.Equal(t, audit.StatusFail, out.Status)
	assert.Equal(t, "more than one firewall utility is in use: ufw, nftables", out.Narrative)

	out = evaluate(t, ufwHost(), "4.1.1")
	assert.Equal(t, audit.StatusFail, out.Status)
}

func TestUFWRules(t *testing.T) {
	host := ufwHost("ufw").
		Command(ufwVerbose, 0, "ufw", "status", "verbose").
		Command(listeners, 0, "ss", "-tulnH")

	policy := evaluate(t, host, "4.2.7")
	assert.Equal(t, audit.StatusFail, policy.Status)
	assert.Equal(t, "default policy allows outgoing traffic", policy.Narrative)

	ports := evaluate(t, host, "4.2.6")
	assert.Equal(t, audit.StatusFail, ports.Status)
	assert.Equal(t, "open ports without a ufw rule: tcp/587, tcp/80", ports.Narrative)

	loopback := evaluate(t, host, "4.2.4")
	assert.Equal(t, audit.StatusFail, loopback.Status)
	assert.Equal(t, "missing loopback rules: allow out on lo", loopback.Narrative)
}

func TestFirewallRulesSkipOtherUtilities(t *testing.T) {
	out := evaluate(t, ufwHost("nftables"), "4.2.1")
	assert.Equal(t, audit.StatusPass, out.Status)
	assert.Equal(t, "ufw is not the firewall in use (nftables)", out.Narrative)
}

func TestUFWRulePorts(t *testing.T) {
	ports := ufwRulePorts("80,443/tcp  ALLOW IN  Anywhere\n6000:6002/tcp  ALLOW IN  Anywhere\nAnywhere on lo  ALLOW IN  Anywhere\n")
	assert.Equal(t, map[int]bool{80: true, 443: true, 6000: true, 6001: true, 6002: true}, ports)
}

const nftRules = `table inet filter {
	chain input {
		type filter hook input priority filter; policy drop;
		iif "lo" accept
		ip saddr 127.0.0.0/8 counter packets 0 bytes 0 drop
	}
	chain forward {
		type filter hook forward priority filter; policy drop;
	}
	chain output {
		type filter hook output priority filter; policy accept;
	}
}
`

func TestNftablesRules(t *testing.T) {
	host := ufwHost("nftables").Command(nftRules, 0, "nft", "list", "ruleset")

	assert.Equal(t, audit.StatusPass, evaluate(t, host, "4.3.4").Status)
	assert.Equal(t, audit.StatusPass, evaluate(t, host, "4.3.5").Status)
	assert.Equal(t, audit.StatusPass, evaluate(t, host, "4.3.6").Status)

	policy := evaluate(t, host, "4.3.8")
	assert.Equal(t, audit.StatusFail, policy.Status)
	assert.Equal(t, "base chains without a drop policy: output", policy.Narrative)
}

func TestSSHRules(t *testing.T) {
	host := probetest.NewExecutor().Command(
		"permitrootlogin without-password\nmaxstartups 10:30:60\nciphers aes256-ctr,aes128-cbc\nclientaliveinterval 15\nclientalivecountmax 3\n",
		0, "sshd", "-T")

	root := evaluate(t, host, "5.1.20")
	assert.Equal(t, audit.StatusFail, root.Status)

	assert.Equal(t, audit.StatusPass, evaluate(t, host, "5.1.18").Status)
	assert.Equal(t, audit.StatusPass, evaluate(t, host, "5.1.7").Status)

	ciphers := evaluate(t, host, "5.1.6")
	assert.Equal(t, audit.StatusFail, ciphers.Status)
	assert.Contains(t, ciphers.Narrative, "aes128-cbc")

	access := evaluate(t, host, "5.1.4")
	assert.Equal(t, audit.StatusFail, access.Status)
}

func TestMaxStartups(t *testing.T) {
	assert.NoError(t, maxStartups("10:30:60"))
	assert.NoError(t, maxStartups("5:50:30"))
	assert.Error(t, maxStartups("10:30:100"))
	assert.Error(t, maxStartups("20:30:60"))
	assert.Error(t, maxStartups("10"))
	assert.Error(t, maxStartups("a:b:c"))
}

func TestUmaskAtLeast(t *testing.T) {
	expect := umaskAtLeast(0o027)
	assert.NoError(t, expect("027"))
	assert.NoError(t, expect("077"))
	assert.NoError(t, expect("0027"))
	assert.Error(t, expect("022"))
	assert.Error(t, expect("abc"))
}

func TestPwquality(t *testing.T) {
	host := probetest.NewExecutor().Command("minlen = 8\n# drop-in\nminlen = 14\ndifok=1\n", 0, "sh", "-c", "cat "+pwqualityFiles+" 2>/dev/null")

	minlen := evaluate(t, host, "5.3.3.2.2")
	assert.Equal(t, audit.StatusPass, minlen.Status, minlen.Narrative)
	assert.Equal(t, "minlen is 14", minlen.Narrative)

	difok := evaluate(t, host, "5.3.3.2.1")
	assert.Equal(t, audit.StatusFail, difok.Status)

	dictcheck := evaluate(t, host, "5.3.3.2.6")
	assert.Equal(t, audit.StatusPass, dictcheck.Status, "dictcheck defaults to enabled")
}

func TestPAMRules(t *testing.T) {
	host := probetest.NewExecutor().
		File("/etc/pam.d/common-auth", "auth [success=1 default=ignore] pam_unix.so nullok\n").
		File("/etc/pam.d/common-account", "account [success=1 new_authtok_reqd=done default=ignore] pam_unix.so\n").
		File("/etc/pam.d/common-password", "password requisite pam_pwhistory.so remember=24 use_authtok\npassword [success=1 default=ignore] pam_unix.so obscure yescrypt\n").
		File("/etc/pam.d/common-session", "session required pam_unix.so\n")

	assert.Equal(t, audit.StatusPass, evaluate(t, host, "5.3.2.1").Status)
	assert.Equal(t, audit.StatusPass, evaluate(t, host, "5.3.3.3.3").Status)

	nullok := evaluate(t, host, "5.3.3.4.1")
	assert.Equal(t, audit.StatusFail, nullok.Status)
	assert.Equal(t, "pam_unix.so in /etc/pam.d/common-auth has nullok", nullok.Narrative)

	authtok := evaluate(t, host, "5.3.3.4.4")
	assert.Equal(t, audit.StatusFail, authtok.Status)
}

const passwd = `root:x:0:0:root:/root:/bin/bash
daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin
games:x:5:0:games:/usr/games:/bin/sh
alice:x:1000:1000:Alice:/home/alice:/bin/bash
bob:x:1001:1001:Bob:/home/bob:/bin/bash
`

const shells = `# /etc/shells: valid login shells
/bin/sh
/bin/bash
/usr/sbin/nologin
`

func TestAccountRules(t *testing.T) {
	host := probetest.NewExecutor().
		File("/etc/passwd", passwd).
		File("/etc/shells", shells).
		File("/etc/group", "root:x:0:\ndaemon:x:1:\nalice:x:1000:\nshadow:x:42:bob\n")

	gid := evaluate(t, host, "5.4.2.2")
	assert.Equal(t, audit.StatusFail, gid.Status)
	assert.Equal(t, "GID 0 is used by user games", gid.Narrative)

	system := evaluate(t, host, "5.4.2.7")
	assert.Equal(t, audit.StatusFail, system.Status)
	assert.Equal(t, "system accounts with a login shell: games (/bin/sh)", system.Narrative)

	nologin := evaluate(t, host, "5.4.3.1")
	assert.Equal(t, audit.StatusFail, nologin.Status)

	missing := evaluate(t, host, "7.2.3")
	assert.Equal(t, audit.StatusFail, missing.Status)
	assert.Equal(t, "primary groups missing from /etc/group: bob (gid 1001)", missing.Narrative)

	shadow := evaluate(t, host, "7.2.4")
	assert.Equal(t, audit.StatusFail, shadow.Status)
	assert.Equal(t, "shadow group is not empty (members: bob)", shadow.Narrative)

	assert.Equal(t, audit.StatusPass, evaluate(t, host, "7.2.5").Status)
	assert.Equal(t, audit.StatusPass, evaluate(t, host, "7.2.1").Status)
}

func TestHomeDirectories(t *testing.T) {
	host := probetest.NewExecutor().
		File("/etc/passwd", passwd).
		File("/etc/shells", shells).
		Dir("/root", 0o700, "root", "root").
		Dir("/home/alice", 0o750, "alice", "alice").
		Dir("/home/bob", 0o755, "root", "bob").
		Dir("/usr/games", 0o755, "root", "root")

	out := evaluate(t, host, "7.2.9")
	assert.Equal(t, audit.StatusFail, out.Status)
	assert.Contains(t, out.Narrative, "bob: /home/bob is owned by root")
	assert.Contains(t, out.Narrative, "bob: /home/bob is 0755")
	assert.Contains(t, out.Narrative, "games: /usr/games is owned by root")
	assert.NotContains(t, out.Narrative, "alice")
}

func TestShellTimeout(t *testing.T) {
	script := `grep -Ehs '^\s*([^#]+\s+)?TMOUT=' /etc/profile /etc/profile.d/*.sh /etc/bash.bashrc`

	host := probetest.NewExecutor().Command("readonly TMOUT=900 ; export TMOUT\n", 0, "sh", "-c", script)
	out := evaluate(t, host, "5.4.3.2")
	assert.Equal(t, audit.StatusPass, out.Status, out.Narrative)
	assert.Equal(t, "TMOUT is 900", out.Narrative)

	host = probetest.NewExecutor().Command("TMOUT=3600\n", 0, "sh", "-c", script)
	assert.Equal(t, audit.StatusFail, evaluate(t, host, "5.4.3.2").Status)

	host = probetest.NewExecutor().Command("", 1, "sh", "-c", script)
	assert.Equal(t, "TMOUT is not configured", evaluate(t, host, "5.4.3.2").Narrative)
}

func TestAuditRules(t *testing.T) {
	host := probetest.NewExecutor().Command(`-w /etc/localtime -p wa -k time-change
-a always,exit -F arch=b64 -S adjtimex,settimeofday -F key=time-change
-a always,exit -F arch=b32 -S settimeofday,adjtimex -F key=time-change
-w /var/run/utmp -p wa -k session
`, 0, "auditctl", "-l")

	assert.Equal(t, audit.StatusPass, evaluate(t, host, "6.2.3.4").Status)

	session := evaluate(t, host, "6.2.3.11")
	assert.Equal(t, audit.StatusFail, session.Status)
	assert.Equal(t, "no audit rule for -w /var/log/wtmp -p wa; -w /var/log/btmp -p wa (auditctl -l)", session.Narrative)
}

func TestBacklogLimit(t *testing.T) {
	assert.Equal(t, audit.StatusPass, backlogLimit("BOOT_IMAGE=/vmlinuz audit=1 audit_backlog_limit=8192 quiet").Status)
	assert.Equal(t, audit.StatusFail, backlogLimit("audit_backlog_limit=64").Status)
	assert.Equal(t, audit.StatusFail, backlogLimit("quiet splash").Status)
}

func TestMountRules(t *testing.T) {
	host := probetest.NewExecutor().
		Command("rw,nosuid,nodev,relatime\n", 0, "findmnt", "-kn", "-o", "OPTIONS", "/tmp")

	assert.Equal(t, audit.StatusPass, evaluate(t, host, "1.1.2.1.1").Status)
	assert.Equal(t, audit.StatusPass, evaluate(t, host, "1.1.2.1.2").Status)
	noexec := evaluate(t, host, "1.1.2.1.4")
	assert.Equal(t, audit.StatusFail, noexec.Status)
	assert.Equal(t, "/tmp is mounted without noexec", noexec.Narrative)
}

func TestGDMRulesPassWithoutGDM(t *testing.T) {
	host := notInstalled(probetest.NewExecutor(), "gdm3")
	for _, id := range []string{"1.7.2", "1.7.3", "1.7.4", "1.7.5", "1.7.9"} {
		out := evaluate(t, host, id)
		assert.Equal(t, audit.StatusPass, out.Status, id)
		assert.Contains(t, out.Narrative, "gdm3 is not installed", id)
	}
}
