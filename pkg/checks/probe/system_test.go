package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xhunter101/cis-benchmark-tool/pkg/audit"
	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe/probetest"
)

func TestSysctl(t *testing.T) {
	host := probetest.NewExecutor().
		File("/proc/sys/net/ipv4/ip_forward", "1\n").
		File("/proc/sys/kernel/yama/ptrace_scope", "2\n")

	assert.Equal(t, "/proc/sys/net/ipv4/conf/all/rp_filter", SysctlPath("net.ipv4.conf.all.rp_filter"))

	out := eval(t, host, Sysctl("net.ipv4.ip_forward", "0"))
	assert.Equal(t, Fail("net.ipv4.ip_forward = 1, expected 0"), out)
	assert.Equal(t, audit.StatusPass, eval(t, host, Sysctl("kernel.yama.ptrace_scope", "1", "2", "3")).Status)
	assert.Equal(t, audit.StatusPass, eval(t, host, Sysctl("net.ipv6.conf.all.forwarding", "0")).Status)
	assert.Equal(t, audit.StatusFail, eval(t, host, Sysctl("kernel.randomize_va_space", "2")).Status)
}

func TestModuleUnavailable(t *testing.T) {
	host := probetest.NewExecutor().
		File("/proc/modules", "usb_storage 81920 0 - Live 0x0\next4 999 1 - Live 0x0\n").
		Command("install /bin/false\n", 0, "modprobe", "-n", "-v", "cramfs").
		Command("blacklist cramfs\nblacklist hfs\n", 0, "modprobe", "--showconfig").
		Command("insmod /lib/modules/hfs.ko\n", 0, "modprobe", "-n", "-v", "hfs").
		CommandStderr("modprobe: FATAL: Module tipc not found in directory /lib/modules/6.8\n", 1, "modprobe", "-n", "-v", "tipc").
		Command("install /bin/true\n", 0, "modprobe", "-n", "-v", "squashfs")

	assert.Equal(t, Pass("cramfs module is not loadable and deny listed"), eval(t, host, ModuleUnavailable("cramfs")))
	assert.Equal(t, Fail("usb-storage module is loaded"), eval(t, host, ModuleUnavailable("usb-storage")))
	assert.Equal(t, Fail("hfs module is deny listed but still loadable"), eval(t, host, ModuleUnavailable("hfs")))
	assert.Equal(t, audit.StatusPass, eval(t, host, ModuleUnavailable("tipc")).Status)
	assert.Equal(t, Fail("squashfs module is not loadable but not deny listed"), eval(t, host, ModuleUnavailable("squashfs")))
}

func TestKernelCmdline(t *testing.T) {
	host := probetest.NewExecutor().File("/proc/cmdline", "BOOT_IMAGE=/vmlinuz ro apparmor=1 security=apparmor\n")

	assert.Equal(t, audit.StatusPass, eval(t, host, KernelCmdline("apparmor=1", "security=apparmor")).Status)
	assert.Equal(t, Fail("kernel command line is missing audit=1"), eval(t, host, KernelCmdline("audit=1")))
}

func TestPackages(t *testing.T) {
	host := probetest.NewExecutor().
		Command("installed", 0, "dpkg-query", "-W", "-f=${db:Status-Status}", "ufw").
		Command("installed", 0, "dpkg-query", "-W", "-f=${db:Status-Status}", "rsync").
		CommandStderr("dpkg-query: no packages found matching telnet", 1, "dpkg-query", "-W", "-f=${db:Status-Status}", "telnet").
		CommandStderr("dpkg-query: no packages found matching inetutils-telnet", 1, "dpkg-query", "-W", "-f=${db:Status-Status}", "inetutils-telnet").
		Command("disabled\n", 1, "systemctl", "is-enabled", "rsync.service").
		Command("inactive\n", 3, "systemctl", "is-active", "rsync.service").
		Command("enabled\n", 0, "systemctl", "is-enabled", "ufw.service").
		Command("active\n", 0, "systemctl", "is-active", "ufw.service")

	assert.Equal(t, audit.StatusPass, eval(t, host, PackageInstalled("ufw")).Status)
	assert.Equal(t, Fail("telnet is not installed"), eval(t, host, PackageInstalled("telnet")))
	assert.Equal(t, Pass("telnet, inetutils-telnet not installed"), eval(t, host, PackagesAbsent("telnet", "inetutils-telnet")))
	assert.Equal(t, Fail("installed: ufw"), eval(t, host, PackagesAbsent("ufw", "telnet")))

	out := eval(t, host, ServiceNotInUse([]string{"rsync"}, []string{"rsync.service"}))
	assert.Equal(t, Pass("rsync installed but no unit is enabled or active"), out)
	out = eval(t, host, ServiceNotInUse([]string{"ufw"}, []string{"ufw.service"}))
	assert.Equal(t, Fail("ufw installed and in use: ufw.service (enabled, active)"), out)
	out = eval(t, host, ServiceNotInUse([]string{"telnet"}, []string{"telnet.socket"}))
	assert.Equal(t, audit.StatusPass, out.Status)

	assert.Equal(t, Pass("ufw.service is enabled and active"), eval(t, host, UnitEnabledActive("ufw.service")))
	assert.Equal(t, Fail("rsync.service is disabled and inactive"), eval(t, host, UnitEnabledActive("rsync.service")))
	assert.Equal(t, audit.StatusPass, eval(t, host, UnitInactive("rsync.service")).Status)
}

func TestMounts(t *testing.T) {
	host := probetest.NewExecutor().
		Command("rw,nosuid,nodev,noexec,relatime\n", 0, "findmnt", "-kn", "-o", "OPTIONS", "/tmp").
		Command("", 1, "findmnt", "-kn", "-o", "OPTIONS", "/var")

	assert.Equal(t, audit.StatusPass, eval(t, host, SeparatePartition("/tmp")).Status)
	assert.Equal(t, Fail("/var is not a separate partition"), eval(t, host, SeparatePartition("/var")))
	assert.Equal(t, Pass("/tmp is mounted with noexec"), eval(t, host, MountOption("/tmp", "noexec")))
	assert.Equal(t, Fail("/var is not a separate partition"), eval(t, host, MountOption("/var", "nodev")))
}

func TestAccounts(t *testing.T) {
	passwd := "root:x:0:0:root:/root:/bin/bash\nbroken:line\ndaemon:x:1:1::/usr/sbin:/usr/sbin/nologin\ntoor:x:0:0::/root:/bin/sh\n"
	accounts := ParsePasswd(passwd)
	assert.Len(t, accounts, 3)
	assert.Equal(t, "/usr/sbin/nologin", accounts[1].Shell)

	groups := ParseGroup("root:x:0:\nshadow:x:42:alice, bob\n")
	assert.Equal(t, []string{"alice", "bob"}, groups[1].Members)
	assert.Empty(t, groups[0].Members)

	shadow := ParseShadow("root:$6$abc:19000:1:365:7:30::\nnobody:*:19000:::::: \nlocked:!$6$x:19000:0:99999:7:::\n")
	assert.True(t, shadow[0].HasPassword())
	assert.Equal(t, 30, shadow[0].Inactive)
	assert.False(t, shadow[1].HasPassword())
	assert.Equal(t, noValue, shadow[1].MinDays)
	assert.False(t, shadow[2].HasPassword())

	assert.Equal(t, []string{"0"}, Duplicates([]string{"0", "1", "0", "0"}))
	assert.Equal(t, []string{"/bin/bash"}, ValidShells("# shells\n/bin/bash\n/usr/sbin/nologin\n"))

	host := probetest.NewExecutor().File("/etc/passwd", passwd)
	out := eval(t, host, AccountsAndGroups(func([]Account, []Group) Outcome { return Pass("unreachable") }))
	assert.Contains(t, out.Narrative, "/etc/group does not exist")
}
