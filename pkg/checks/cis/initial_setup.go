// pkg/checks/cis/initial_setup.go

package cis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

func initialSetup() chapter {
	return chapter{
		name: "Initial Setup",
		sections: []section{
			{name: "Filesystem", entries: filesystem()},
			{name: "Package Management", entries: packageManagement()},
			{name: "Mandatory Access Control", entries: mandatoryAccessControl()},
			{name: "Bootloader", entries: bootloader()},
			{name: "Process Hardening", entries: processHardening()},
			{name: "Warning Banners", entries: warningBanners()},
			{name: "GNOME Display Manager", entries: gnomeDisplayManager()},
		},
	}
}

func filesystem() []entry {
	entries := []entry{
		rule("1.1.1.1", medium, "cramfs_module", "Ensure cramfs kernel module is not available", probe.ModuleUnavailable("cramfs")),
		rule("1.1.1.2", medium, "freevxfs_module", "Ensure freevxfs kernel module is not available", probe.ModuleUnavailable("freevxfs")),
		rule("1.1.1.3", medium, "hfs_module", "Ensure hfs kernel module is not available", probe.ModuleUnavailable("hfs")),
		rule("1.1.1.4", medium, "hfsplus_module", "Ensure hfsplus kernel module is not available", probe.ModuleUnavailable("hfsplus")),
		rule("1.1.1.6", medium, "overlayfs_module", "Ensure overlayfs kernel module is not available", probe.ModuleUnavailable("overlay")),
		rule("1.1.1.7", medium, "squashfs_module", "Ensure squashfs kernel module is not available", probe.ModuleUnavailable("squashfs")),
		rule("1.1.1.9", medium, "usb_storage_module", "Ensure usb-storage kernel module is not available", probe.ModuleUnavailable("usb-storage")),
		rule("1.1.1.10", medium, "unused_filesystem_modules", "Ensure unused filesystem kernel modules are not available",
			probe.Shell(`ls /lib/modules/$(uname -r)/kernel/fs 2>/dev/null`, func(res utils.CommandResult) probe.Outcome {
				return review("review the filesystem modules shipped with the kernel: %s", limit(strings.Fields(res.Stdout), 40))
			})),
	}

	mounts := []struct {
		id, path, key, keyPrefix string
		options                  map[string]string
		optionKey                func(prefix, opt string) string
	}{
		{"1.1.2.1", "/tmp", "tmp_separate_partition", "tmp", map[string]string{"2": "nodev", "3": "nosuid", "4": "noexec"}, optionSuffix},
		{"1.1.2.2", "/dev/shm", "devshm_separate_partition", "devshm", map[string]string{"2": "nodev", "3": "nosuid", "4": "noexec"}, bareOption},
		{"1.1.2.3", "/home", "home_separate_partition", "home", map[string]string{"3": "nosuid"}, optionSuffix},
		{"1.1.2.4", "/var", "var_separate_partition", "var", map[string]string{"2": "nodev"}, optionSuffix},
		{"1.1.2.5", "/var/tmp", "var_tmp_separate_partition", "var_tmp", map[string]string{"3": "nosuid", "4": "noexec"}, optionSuffix},
		{"1.1.2.6", "/var/log", "var_log_separate_partition", "var_log", map[string]string{"2": "nodev", "3": "nosuid", "4": "noexec"}, optionSuffix},
		{"1.1.2.7", "/var/log/audit", "var_log_audit_separate_partition", "var_log_audit", map[string]string{"2": "nodev", "3": "nosuid", "4": "noexec"}, optionSuffix},
	}
	for _, m := range mounts {
		title := fmt.Sprintf("Ensure separate partition exists for %s", m.path)
		if m.path == "/tmp" || m.path == "/dev/shm" {
			title = fmt.Sprintf("Ensure %s is a separate partition", m.path)
		}
		entries = append(entries, rule(m.id+".1", medium, m.key, title, probe.SeparatePartition(m.path)))
		for _, n := range []string{"2", "3", "4"} {
			opt, ok := m.options[n]
			if !ok {
				continue
			}
			entries = append(entries, rule(m.id+"."+n, medium, m.optionKey(m.keyPrefix, opt),
				fmt.Sprintf("Ensure %s option set on %s partition", opt, m.path), probe.MountOption(m.path, opt)))
		}
	}
	return entries
}

func optionSuffix(prefix, opt string) string { return prefix + "_" + opt + "_option" }
func bareOption(prefix, opt string) string   { return prefix + "_" + opt }

func packageManagement() []entry {
	return []entry{
		rule("1.2.1.1", high, "gpg_keys_configured", "Ensure GPG keys are configured",
			probe.Shell(`ls /etc/apt/trusted.gpg.d /etc/apt/keyrings /usr/share/keyrings 2>/dev/null`, func(res utils.CommandResult) probe.Outcome {
				keys := lines(res.Stdout)
				if len(keys) == 0 {
					return fail("no package signing keys found")
				}
				return review("verify the package signing keys follow site policy: %s", limit(keys, 15))
			})),
		rule("1.2.1.2", high, "package_manager_repos_configured", "Ensure package manager repositories are configured",
			probe.Command(func(res utils.CommandResult) probe.Outcome {
				if !res.Success() {
					return fail("apt-cache policy failed: %s", strings.TrimSpace(res.Stderr))
				}
				return review("verify the configured repositories: %s", limit(repoLines(res.Stdout), 10))
			}, "apt-cache", "policy")),
		rule("1.2.2.1", high, "system_updates_installed", "Ensure updates, patches, and additional security software are installed",
			probe.Shell(`apt list --upgradable 2>/dev/null`, func(res utils.CommandResult) probe.Outcome {
				var pending []string
				for _, line := range lines(res.Stdout) {
					if strings.HasPrefix(line, "Listing") {
						continue
					}
					name, _, _ := strings.Cut(line, "/")
					pending = append(pending, name)
				}
				if len(pending) > 0 {
					return fail("%d packages have pending updates: %s", len(pending), limit(pending, 10))
				}
				return pass("no pending updates")
			})),
	}
}

func repoLines(out string) []string {
	var repos []string
	for _, line := range lines(out) {
		if strings.HasPrefix(line, "500 ") || strings.HasPrefix(line, "100 ") || strings.HasPrefix(line, "990 ") {
			repos = append(repos, strings.TrimSpace(line[4:]))
		}
	}
	return repos
}

func mandatoryAccessControl() []entry {
	return []entry{
		rule("1.3.1.1", high, "apparmor_installed", "Ensure AppArmor is installed",
			probe.AllOf(probe.PackageInstalled("apparmor"), probe.PackageInstalled("apparmor-utils"))),
		rule("1.3.1.2", high, "apparmor_bootloader_enabled", "Ensure AppArmor is enabled in the bootloader configuration",
			probe.KernelCmdline("apparmor=1", "security=apparmor")),
		rule("1.3.1.3", medium, "apparmor_profiles_mode", "Ensure all AppArmor Profiles are in enforce or complain mode",
			apparmorProfiles(false)),
		rule("1.3.1.4", high, "apparmor_profiles_enforcing", "Ensure all AppArmor Profiles are enforcing",
			apparmorProfiles(true)),
	}
}

var apparmorCount = regexp.MustCompile(`^(\d+) (profiles are loaded|profiles are in enforce mode|profiles are in complain mode|processes are unconfined)`)

// apparmorStatus extracts the counters printed by apparmor_status
func apparmorStatus(out string) map[string]int {
	counts := make(map[string]int)
	for _, line := range lines(out) {
		if m := apparmorCount.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			counts[m[2]] = n
		}
	}
	return counts
}

func apparmorProfiles(enforcingOnly bool) probe.Probe {
	return probe.Command(func(res utils.CommandResult) probe.Outcome {
		if !res.Success() {
			return fail("apparmor_status failed: %s", strings.TrimSpace(res.Stderr))
		}
		c := apparmorStatus(res.Stdout)
		loaded := c["profiles are loaded"]
		enforce := c["profiles are in enforce mode"]
		complain := c["profiles are in complain mode"]
		unconfined := c["processes are unconfined"]

		switch {
		case loaded == 0:
			return fail("no AppArmor profiles are loaded")
		case unconfined > 0:
			return fail("%d processes are unconfined", unconfined)
		case enforcingOnly && enforce != loaded:
			return fail("%d of %d profiles are enforcing", enforce, loaded)
		case !enforcingOnly && enforce+complain != loaded:
			return fail("%d of %d profiles are in enforce or complain mode", enforce+complain, loaded)
		}
		return pass("%d profiles loaded, %d enforcing, %d complaining", loaded, enforce, complain)
	}, "apparmor_status")
}

const grubCfg = "/boot/grub/grub.cfg"

func bootloader() []entry {
	return []entry{
		rule("1.4.1", high, "bootloader_password_set", "Ensure bootloader password is set",
			probe.File(grubCfg, func(content string) probe.Outcome {
				_, superusers := lineWith(content, "set superusers")
				_, password := lineWith(content, "password_pbkdf2")
				if !superusers || !password {
					return fail("%s does not set a superuser with a hashed password", grubCfg)
				}
				return pass("bootloader superuser password is set")
			}, nil)),
		rule("1.4.2", high, "bootloader_permissions_restricted", "Ensure access to bootloader config is restricted",
			probe.FileMode(grubCfg, probe.RootOwned(0o600))),
	}
}

func processHardening() []entry {
	return []entry{
		rule("1.5.1", high, "aslr_enabled", "Ensure ASLR is enabled", probe.Sysctl("kernel.randomize_va_space", "2")),
		rule("1.5.2", medium, "ptrace_scope_restricted", "Ensure ptrace_scope is restricted", probe.Sysctl("kernel.yama.ptrace_scope", "1", "2", "3")),
		rule("1.5.3", medium, "core_dumps_restricted", "Ensure core dumps are restricted",
			probe.AllOf(
				probe.Sysctl("fs.suid_dumpable", "0"),
				probe.File("/etc/security/limits.conf", func(content string) probe.Outcome {
					for _, line := range lines(content) {
						f := strings.Fields(line)
						if len(f) == 4 && f[0] == "*" && f[1] == "hard" && f[2] == "core" && f[3] == "0" {
							return pass("hard core limit is 0")
						}
					}
					return fail("no \"* hard core 0\" limit")
				}, nil),
			)),
	}
}

func warningBanners() []entry {
	return []entry{
		rule("1.6.1", low, "motd_configured", "Ensure MOTD is configured properly", probe.Banner("/etc/motd", false)),
		rule("1.6.2", low, "local_login_banner", "Ensure local login warning banner is configured properly", probe.Banner("/etc/issue", true)),
		rule("1.6.3", low, "remote_login_banner", "Ensure remote login warning banner is configured properly", probe.Banner("/etc/issue.net", true)),
		rule("1.6.4", low, "motd_permissions", "Ensure access to /etc/motd is configured",
			probe.FileMode("/etc/motd", probe.Perm{Max: 0o644, Owner: "root", Groups: []string{"root"}, Optional: true})),
		rule("1.6.5", low, "issue_permissions", "Ensure access to /etc/issue is configured", probe.FileMode("/etc/issue", probe.RootOwned(0o644))),
		rule("1.6.6", low, "issue_net_permissions", "Ensure access to /etc/issue.net is configured", probe.FileMode("/etc/issue.net", probe.RootOwned(0o644))),
	}
}

func gnomeDisplayManager() []entry {
	return []entry{
		rule("1.7.1", medium, "gdm_removed", "Ensure GDM is removed", probe.PackagesAbsent("gdm3")),
		rule("1.7.2", medium, "gdm_login_banner", "Ensure GDM login banner is configured",
			probe.AllOf(gdmSetting("banner-message-enable", probe.Equals("true")), gdmSetting("banner-message-text", probe.NotEmpty()))),
		rule("1.7.3", medium, "gdm_disable_user_list", "Ensure GDM disable-user-list option is enabled",
			gdmSetting("disable-user-list", probe.Equals("true"))),
		rule("1.7.4", medium, "gdm_screen_lock", "Ensure GDM screen locks when the user is idle",
			probe.AllOf(gdmSetting("idle-delay", uint32Value(probe.Between(1, 900))), gdmSetting("lock-delay", uint32Value(probe.AtMost(5))))),
		rule("1.7.5", medium, "gdm_screen_lock_override", "Ensure GDM screen locks cannot be overridden",
			gdmLocked("/org/gnome/desktop/session/idle-delay", "/org/gnome/desktop/screensaver/lock-delay")),
		rule("1.7.6", medium, "gdm_auto_mount", "Ensure GDM automatic mounting of removable media is disabled",
			probe.AllOf(gdmSetting("automount", probe.Equals("false")), gdmSetting("automount-open", probe.Equals("false")))),
		rule("1.7.7", medium, "gdm_removable_media", "Ensure GDM disabling automatic mounting of removable media is not overridden",
			gdmLocked("/org/gnome/desktop/media-handling/automount", "/org/gnome/desktop/media-handling/automount-open")),
		rule("1.7.8", medium, "gdm_autorun_never", "Ensure GDM autorun-never is enabled",
			gdmSetting("autorun-never", probe.Equals("true"))),
		rule("1.7.9", medium, "gdm_autorun_never_override", "Ensure GDM autorun-never is not overridden",
			gdmLocked("/org/gnome/desktop/media-handling/autorun-never")),
		rule("1.7.10", high, "xdmcp_disabled", "Ensure XDMCP is not enabled",
			probe.File("/etc/gdm3/custom.conf", func(content string) probe.Outcome {
				file, err := probe.ParseKeyValue(content)
				if err != nil {
					return fail("unable to parse /etc/gdm3/custom.conf: %v", err)
				}
				if sec, err := file.GetSection("xdmcp"); err == nil && sec.HasKey("Enable") {
					if v, _ := sec.Key("Enable").Bool(); v {
						return fail("XDMCP is enabled in /etc/gdm3/custom.conf")
					}
				}
				return pass("XDMCP is not enabled")
			}, probe.Missing(pass("/etc/gdm3/custom.conf does not exist")))),
	}
}
