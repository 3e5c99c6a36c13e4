// pkg/checks/cis/access_control.go

package cis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

func accessControl() chapter {
	return chapter{
		name: "Access Control",
		sections: []section{
			{name: "SSH Server", entries: sshServer()},
			{name: "Privilege Escalation", entries: privilegeEscalation()},
			{name: "Pluggable Authentication Modules", entries: pluggableAuthentication()},
			{name: "User Accounts and Environment", entries: userAccounts()},
		},
	}
}

var (
	weakCiphers = []string{
		"3des-cbc", "aes128-cbc", "aes192-cbc", "aes256-cbc", "arcfour", "arcfour128", "arcfour256",
		"blowfish-cbc", "cast128-cbc", "rijndael-cbc@lysator.liu.se",
	}
	weakKex = []string{
		"diffie-hellman-group1-sha1", "diffie-hellman-group14-sha1", "diffie-hellman-group-exchange-sha1",
	}
	weakMACs = []string{
		"hmac-md5", "hmac-md5-96", "hmac-ripemd160", "hmac-sha1-96", "umac-64@openssh.com",
		"hmac-md5-etm@openssh.com", "hmac-md5-96-etm@openssh.com", "hmac-ripemd160-etm@openssh.com",
		"hmac-sha1-96-etm@openssh.com", "umac-64-etm@openssh.com",
	}
)

// OpenSSH built-in defaults, used when the keyword is not set in the file
const (
	defaultCiphers = "chacha20-poly1305@openssh.com,aes128-ctr,aes192-ctr,aes256-ctr,aes128-gcm@openssh.com,aes256-gcm@openssh.com"
	defaultKex     = "sntrup761x25519-sha512@openssh.com,curve25519-sha256,curve25519-sha256@libssh.org,ecdh-sha2-nistp256,ecdh-sha2-nistp384,ecdh-sha2-nistp521,diffie-hellman-group-exchange-sha256,diffie-hellman-group16-sha512,diffie-hellman-group18-sha512,diffie-hellman-group14-sha256"
	defaultMACs    = "umac-64-etm@openssh.com,umac-128-etm@openssh.com,hmac-sha2-256-etm@openssh.com,hmac-sha2-512-etm@openssh.com,hmac-sha1-etm@openssh.com,umac-64@openssh.com,umac-128@openssh.com,hmac-sha2-256,hmac-sha2-512,hmac-sha1"
)

func sshServer() []entry {
	return []entry{
		rule("5.1.1", high, "sshd_config_permissions", "Ensure permissions on /etc/ssh/sshd_config are configured",
			probe.WhenInstalled("openssh-server", probe.FileMode("/etc/ssh/sshd_config", probe.RootOwned(0o600)))),
		rule("5.1.4", high, "sshd_access_configuration", "Ensure sshd access is configured",
			probe.AnyOf(
				probe.SSHD("AllowUsers", probe.NotEmpty(), ""),
				probe.SSHD("AllowGroups", probe.NotEmpty(), ""),
				probe.SSHD("DenyUsers", probe.NotEmpty(), ""),
				probe.SSHD("DenyGroups", probe.NotEmpty(), ""),
			)),
		rule("5.1.6", high, "sshd_ciphers_configuration", "Ensure sshd Ciphers are configured",
			probe.SSHD("Ciphers", probe.ExcludesAll(weakCiphers...), defaultCiphers)),
		rule("5.1.7", high, "sshd_client_alive_configuration", "Ensure sshd ClientAliveInterval and ClientAliveCountMax are configured",
			probe.AllOf(
				probe.SSHD("ClientAliveInterval", probe.Between(1, 15), "0"),
				probe.SSHD("ClientAliveCountMax", probe.Between(1, 3), "3"),
			)),
		rule("5.1.12", high, "sshd_kex_algorithms_configuration", "Ensure sshd KexAlgorithms is configured",
			probe.SSHD("KexAlgorithms", probe.ExcludesAll(weakKex...), defaultKex)),
		rule("5.1.15", high, "sshd_macs_configuration", "Ensure sshd MACs are configured",
			probe.SSHD("MACs", probe.ExcludesAll(weakMACs...), defaultMACs)),
		rule("5.1.18", high, "sshd_max_startups_configuration", "Ensure sshd MaxStartups is configured",
			probe.SSHD("MaxStartups", maxStartups, "10:30:100")),
		rule("5.1.20", high, "sshd_permit_root_login_configuration", "Ensure sshd PermitRootLogin is disabled",
			probe.SSHD("PermitRootLogin", probe.Equals("no"), "prohibit-password")),
	}
}

// maxStartups accepts "start:rate:full" no looser than 10:30:60
func maxStartups(value string) error {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return fmt.Errorf("is %q, expected start:rate:full", value)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("is %q, not start:rate:full", value)
		}
		n[i] = v
	}
	if n[0] > 10 || n[1] < 30 || n[2] > 60 {
		return fmt.Errorf("is %s, expected 10:30:60 or more restrictive", value)
	}
	return nil
}

const sudoers = "/etc/sudoers /etc/sudoers.d"

func privilegeEscalation() []entry {
	return []entry{
		rule("5.2.2", high, "sudo_use_pty", "Ensure sudo commands use pty",
			grepFound(`grep -rEhis '^\s*Defaults\s+([^#]+,\s*)?use_pty(,|\s|$)' `+sudoers, "Defaults use_pty")),
		rule("5.2.3", high, "sudo_log_file", "Ensure sudo log file exists",
			grepFound(`grep -rEhis '^\s*Defaults\s+([^#]+,\s*)?logfile\s*=' `+sudoers, "Defaults logfile")),
		rule("5.2.5", high, "sudo_reauthentication", "Ensure re-authentication for privilege escalation is not disabled globally",
			grepAbsent(`grep -rEhs '^[^#].*!authenticate' `+sudoers, "!authenticate")),
	}
}

var (
	pamCommon = []string{
		"/etc/pam.d/common-account", "/etc/pam.d/common-auth",
		"/etc/pam.d/common-password", "/etc/pam.d/common-session",
	}
	pamAuth     = "/etc/pam.d/common-auth"
	pamAccount  = "/etc/pam.d/common-account"
	pamPassword = "/etc/pam.d/common-password"
)

const pwqualityFiles = "/etc/security/pwquality.conf /etc/security/pwquality.conf.d/*.conf"

func pwquality(key string, expect probe.Expect, def string) probe.Probe {
	return mergedSetting(pwqualityFiles, "", key, expect, def)
}

func pluggableAuthentication() []entry {
	return []entry{
		rule("5.3.1.1", high, "pam_installed", "Ensure latest version of PAM is installed", probe.PackageInstalled("libpam-runtime")),
		rule("5.3.1.2", high, "libpam_modules_installed", "Ensure libpam-modules is installed", probe.PackageInstalled("libpam-modules")),
		rule("5.3.1.3", high, "libpam_pwquality_installed", "Ensure libpam-pwquality is installed", probe.PackageInstalled("libpam-pwquality")),
		rule("5.3.2.1", high, "pam_unix_enabled", "Ensure pam_unix module is enabled", pamModule("pam_unix.so", "", pamCommon...)),
		rule("5.3.2.2", high, "pam_faillock_enabled", "Ensure pam_faillock module is enabled", pamModule("pam_faillock.so", "", pamAuth, pamAccount)),
		rule("5.3.2.4", high, "pam_pwhistory_enabled", "Ensure pam_pwhistory module is enabled", pamModule("pam_pwhistory.so", "", pamPassword)),
		rule("5.3.3.2.1", high, "changed_characters_config", "Ensure password number of changed characters is configured",
			pwquality("difok", probe.AtLeast(2), "1")),
		rule("5.3.3.2.2", high, "min_password_length_config", "Ensure minimum password length is configured",
			pwquality("minlen", probe.AtLeast(14), "8")),
		rule("5.3.3.2.5", high, "max_sequential_chars_config", "Ensure password maximum sequential characters is configured",
			pwquality("maxsequence", probe.Between(1, 3), "0")),
		rule("5.3.3.2.6", high, "password_dictionary_check", "Ensure password dictionary check is enabled",
			pwquality("dictcheck", probe.Equals("1"), "1")),
		rule("5.3.3.3.3", medium, "pam_pwhistory_use_authtok", "Ensure pam_pwhistory includes use_authtok",
			pamModule("pam_pwhistory.so", "use_authtok", pamPassword)),
		rule("5.3.3.4.1", high, "pam_unix_nullok", "Ensure pam_unix does not include nullok",
			pamArgAbsent("pam_unix.so", "nullok", pamCommon...)),
		rule("5.3.3.4.4", medium, "pam_unix_use_authtok", "Ensure pam_unix includes use_authtok",
			pamModule("pam_unix.so", "use_authtok", pamPassword)),
	}
}

// accounts allowed to keep a primary GID of 0
var gidZeroAccounts = map[string]bool{"root": true, "sync": true, "shutdown": true, "halt": true, "operator": true}

func userAccounts() []entry {
	return []entry{
		rule("5.4.1.2", low, "min_password_days", "Ensure minimum password days is configured",
			probe.AllOf(
				probe.LoginDefs("PASS_MIN_DAYS", probe.AtLeast(1)),
				probe.Shadow(func(entries []probe.ShadowEntry) probe.Outcome {
					var short []string
					for _, e := range entries {
						if e.HasPassword() && e.MinDays < 1 {
							short = append(short, e.Name)
						}
					}
					if len(short) > 0 {
						return fail("accounts without a minimum password age: %s", limit(short, 10))
					}
					return pass("every account with a password has a minimum age")
				}),
			)),
		rule("5.4.1.5", medium, "inactive_password_lock", "Ensure inactive password lock is configured",
			probe.AllOf(
				probe.KeyValue("/etc/default/useradd", "", "INACTIVE", probe.Between(0, 45), "-1"),
				probe.Shadow(func(entries []probe.ShadowEntry) probe.Outcome {
					var loose []string
					for _, e := range entries {
						if e.HasPassword() && (e.Inactive < 0 || e.Inactive > 45) {
							loose = append(loose, e.Name)
						}
					}
					if len(loose) > 0 {
						return fail("accounts without a 45 day inactivity lock: %s", limit(loose, 10))
					}
					return pass("every account with a password locks after inactivity")
				}),
			)),
		rule("5.4.1.6", medium, "last_password_change", "Ensure all users' last password change date is in the past",
			probe.Shadow(func(entries []probe.ShadowEntry) probe.Outcome {
				today := int(time.Now().Unix() / 86400)
				var future []string
				for _, e := range entries {
					if e.LastChange > today {
						future = append(future, e.Name)
					}
				}
				if len(future) > 0 {
					return fail("last password change is in the future for %s", limit(future, 10))
				}
				return pass("every last password change is in the past")
			})),
		rule("5.4.2.1", high, "root_uid", "Ensure root is the only UID 0 account",
			probe.Accounts(func(accounts []probe.Account) probe.Outcome {
				var extra []string
				for _, a := range accounts {
					if a.UID == 0 && a.Name != "root" {
						extra = append(extra, a.Name)
					}
				}
				if len(extra) > 0 {
					return fail("accounts other than root with UID 0: %s", strings.Join(extra, ", "))
				}
				return pass("root is the only UID 0 account")
			})),
		rule("5.4.2.2", high, "root_gid_account", "Ensure root is the only GID 0 account",
			probe.AccountsAndGroups(func(accounts []probe.Account, groups []probe.Group) probe.Outcome {
				var extra []string
				for _, a := range accounts {
					if a.GID == 0 && !gidZeroAccounts[a.Name] {
						extra = append(extra, "user "+a.Name)
					}
				}
				for _, g := range groups {
					if g.GID == 0 && g.Name != "root" {
						extra = append(extra, "group "+g.Name)
					}
				}
				if len(extra) > 0 {
					return fail("GID 0 is used by %s", strings.Join(extra, ", "))
				}
				return pass("root is the only GID 0 account")
			})),
		rule("5.4.2.5", high, "root_path_integrity", "Ensure root path integrity", rootPathIntegrity),
		rule("5.4.2.7", high, "system_accounts_shells", "Ensure system accounts do not have a valid login shell", systemAccountShells),
		rule("5.4.3.1", medium, "nologin_in_shells", "Ensure nologin is not listed in /etc/shells",
			probe.File("/etc/shells", func(content string) probe.Outcome {
				for _, line := range lines(content) {
					if path.Base(line) == "nologin" {
						return fail("%s is listed in /etc/shells", line)
					}
				}
				return pass("nologin is not listed in /etc/shells")
			}, nil)),
		rule("5.4.3.2", medium, "shell_timeout", "Ensure default user shell timeout is configured",
			probe.Shell(`grep -Ehs '^\s*([^#]+\s+)?TMOUT=' /etc/profile /etc/profile.d/*.sh /etc/bash.bashrc`, shellTimeout)),
		rule("5.4.3.3", medium, "default_umask", "Ensure default user umask is configured",
			probe.LoginDefs("UMASK", umaskAtLeast(0o027))),
	}
}

// readText returns a whole file through the executor
func readText(ctx context.Context, env *probe.Env, path string) (string, error) {
	data, err := env.Exec.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func rootPathIntegrity(ctx context.Context, env *probe.Env) probe.Outcome {
	res, err := env.Exec.RunCommand(ctx, "sh", "-lc", `echo "$PATH"`)
	if err != nil {
		return fail("unable to read root PATH: %v", err)
	}
	rootPath := res.Output()
	if rootPath == "" {
		return fail("root PATH is empty")
	}

	var issues []string
	if strings.Contains(rootPath, "::") {
		issues = append(issues, "empty directory (::)")
	}
	if strings.HasSuffix(rootPath, ":") {
		issues = append(issues, "trailing colon")
	}
	for _, dir := range strings.Split(rootPath, ":") {
		if dir == "" {
			continue
		}
		if !strings.HasPrefix(dir, "/") {
			issues = append(issues, fmt.Sprintf("%s is relative", dir))
			continue
		}
		info, err := env.Exec.Stat(ctx, dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", dir, err))
			continue
		}
		if !info.IsDir {
			issues = append(issues, fmt.Sprintf("%s is not a directory", dir))
		}
		if info.Owner != "root" {
			issues = append(issues, fmt.Sprintf("%s is owned by %s", dir, info.Owner))
		}
		if info.Mode&0o022 != 0 {
			issues = append(issues, fmt.Sprintf("%s is group or world writable", dir))
		}
	}
	if len(issues) > 0 {
		return fail("root PATH: %s", strings.Join(issues, "; "))
	}
	return pass("root PATH is %s", rootPath)
}

func systemAccountShells(ctx context.Context, env *probe.Env) probe.Outcome {
	passwd, err := readText(ctx, env, "/etc/passwd")
	if err != nil {
		return fail("unable to read /etc/passwd: %v", err)
	}
	shellsFile, err := readText(ctx, env, "/etc/shells")
	if err != nil {
		return fail("unable to read /etc/shells: %v", err)
	}
	uidMin := 1000
	if defs, err := readText(ctx, env, "/etc/login.defs"); err == nil {
		if v, ok := probe.ParseDirectives(defs).Get("UID_MIN"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				uidMin = n
			}
		}
	}

	valid := probe.ValidShells(shellsFile)
	var interactive []string
	for _, a := range probe.ParsePasswd(passwd) {
		if a.UID >= uidMin || gidZeroAccounts[a.Name] || a.Name == "nfsnobody" {
			continue
		}
		if contains(valid, a.Shell) {
			interactive = append(interactive, fmt.Sprintf("%s (%s)", a.Name, a.Shell))
		}
	}
	if len(interactive) > 0 {
		return fail("system accounts with a login shell: %s", limit(interactive, 10))
	}
	return pass("no system account has a login shell")
}

func shellTimeout(res utils.CommandResult) probe.Outcome {
	var values []string
	for _, line := range lines(res.Stdout) {
		i := strings.Index(line, "TMOUT=")
		v := strings.Fields(line[i+len("TMOUT="):])
		if len(v) == 0 {
			continue
		}
		value := strings.Trim(strings.TrimRight(v[0], ";"), `'"`)
		if err := probe.Between(1, 900)(value); err != nil {
			return fail("TMOUT %s", err)
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return fail("TMOUT is not configured")
	}
	return pass("TMOUT is %s", strings.Join(values, ", "))
}

// umaskAtLeast accepts octal umasks that mask at least the bits of want
func umaskAtLeast(want uint64) probe.Expect {
	return func(value string) error {
		n, err := strconv.ParseUint(strings.TrimSpace(value), 8, 32)
		if err != nil {
			return fmt.Errorf("is %q, not an octal umask", value)
		}
		if n&want != want {
			return fmt.Errorf("is %03o, expected %03o or more restrictive", n, want)
		}
		return nil
	}
}
