// pkg/checks/cis/maintenance.go

package cis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/xhunter101/cis-benchmark-tool/pkg/checks/probe"
)

func systemMaintenance() chapter {
	return chapter{
		name: "System Maintenance",
		sections: []section{
			{name: "System File Permissions", entries: systemFilePermissions()},
			{name: "Local User and Group Settings", entries: localUsersAndGroups()},
		},
	}
}

var shadowPerm = probe.Perm{Max: 0o640, Owner: "root", Groups: []string{"root", "shadow"}}

func permissions(id, key, path string, perm probe.Perm) entry {
	return rule(id, high, key, fmt.Sprintf("Ensure permissions on %s are configured", path), probe.FileMode(path, perm))
}

func systemFilePermissions() []entry {
	return []entry{
		permissions("7.1.1", "passwd_permissions", "/etc/passwd", probe.RootOwned(0o644)),
		permissions("7.1.2", "passwd_dash_permissions", "/etc/passwd-", probe.RootOwned(0o644)),
		permissions("7.1.3", "group_permissions", "/etc/group", probe.RootOwned(0o644)),
		permissions("7.1.4", "group_dash_permissions", "/etc/group-", probe.RootOwned(0o644)),
		permissions("7.1.5", "shadow_permissions", "/etc/shadow", shadowPerm),
		permissions("7.1.6", "shadow_dash_permissions", "/etc/shadow-", shadowPerm),
		permissions("7.1.7", "gshadow_permissions", "/etc/gshadow", shadowPerm),
		permissions("7.1.8", "gshadow_dash_permissions", "/etc/gshadow-", shadowPerm),
		permissions("7.1.9", "shells_permissions", "/etc/shells", probe.RootOwned(0o644)),
		permissions("7.1.10", "opasswd_permissions", "/etc/security/opasswd",
			probe.Perm{Max: 0o600, Owner: "root", Groups: []string{"root"}, Optional: true}),
		rule("7.1.11", high, "world_writable_files", "Ensure world writable files and directories are secured",
			noOutput(`find / -xdev \( -type f -perm -0002 -o -type d -perm -0002 ! -perm -1000 \) ! -path '/proc/*' ! -path '/sys/*' 2>/dev/null`,
				"world writable files or directories without the sticky bit")),
		rule("7.1.12", high, "files_without_owner", "Ensure no files or directories without an owner and a group exist",
			noOutput(`find / -xdev \( -nouser -o -nogroup \) ! -path '/proc/*' ! -path '/sys/*' 2>/dev/null`,
				"files without an owner or group")),
	}
}

func localUsersAndGroups() []entry {
	return []entry{
		rule("7.2.1", high, "shadowed_passwords_check", "Ensure accounts in /etc/passwd use shadowed passwords",
			probe.Accounts(func(accounts []probe.Account) probe.Outcome {
				var unshadowed []string
				for _, a := range accounts {
					if a.Password != "x" {
						unshadowed = append(unshadowed, a.Name)
					}
				}
				if len(unshadowed) > 0 {
					return fail("accounts not using shadowed passwords: %s", limit(unshadowed, 10))
				}
				return pass("every account uses a shadowed password")
			})),
		rule("7.2.2", high, "shadow_password_fields_check", "Ensure /etc/shadow password fields are not empty",
			probe.Shadow(func(entries []probe.ShadowEntry) probe.Outcome {
				var empty []string
				for _, e := range entries {
					if e.Hash == "" {
						empty = append(empty, e.Name)
					}
				}
				if len(empty) > 0 {
					return fail("accounts with an empty password field: %s", limit(empty, 10))
				}
				return pass("no account has an empty password field")
			})),
		rule("7.2.3", high, "groups_in_passwd_and_group_check", "Ensure all groups in /etc/passwd exist in /etc/group",
			probe.AccountsAndGroups(func(accounts []probe.Account, groups []probe.Group) probe.Outcome {
				known := make(map[int]bool, len(groups))
				for _, g := range groups {
					known[g.GID] = true
				}
				var orphans []string
				for _, a := range accounts {
					if !known[a.GID] {
						orphans = append(orphans, fmt.Sprintf("%s (gid %d)", a.Name, a.GID))
					}
				}
				if len(orphans) > 0 {
					return fail("primary groups missing from /etc/group: %s", limit(orphans, 10))
				}
				return pass("every primary group exists in /etc/group")
			})),
		rule("7.2.4", high, "shadow_group_empty_check", "Ensure shadow group is empty",
			probe.AccountsAndGroups(func(accounts []probe.Account, groups []probe.Group) probe.Outcome {
				var issues []string
				for _, g := range groups {
					if g.Name != "shadow" {
						continue
					}
					if len(g.Members) > 0 {
						issues = append(issues, "members: "+strings.Join(g.Members, ", "))
					}
					for _, a := range accounts {
						if a.GID == g.GID {
							issues = append(issues, "primary group of "+a.Name)
						}
					}
				}
				if len(issues) > 0 {
					return fail("shadow group is not empty (%s)", strings.Join(issues, "; "))
				}
				return pass("shadow group is empty")
			})),
		rule("7.2.5", high, "duplicate_uids_check", "Ensure no duplicate UIDs exist",
			probe.Accounts(func(accounts []probe.Account) probe.Outcome {
				var uids []string
				for _, a := range accounts {
					uids = append(uids, strconv.Itoa(a.UID))
				}
				return noDuplicates("UIDs", uids)
			})),
		rule("7.2.6", high, "duplicate_gids_check", "Ensure no duplicate GIDs exist",
			probe.Groups(func(groups []probe.Group) probe.Outcome {
				var gids []string
				for _, g := range groups {
					gids = append(gids, strconv.Itoa(g.GID))
				}
				return noDuplicates("GIDs", gids)
			})),
		rule("7.2.7", high, "duplicate_usernames_check", "Ensure no duplicate user names exist",
			probe.Accounts(func(accounts []probe.Account) probe.Outcome {
				var names []string
				for _, a := range accounts {
					names = append(names, a.Name)
				}
				return noDuplicates("user names", names)
			})),
		rule("7.2.8", high, "duplicate_groupnames_check", "Ensure no duplicate group names exist",
			probe.Groups(func(groups []probe.Group) probe.Outcome {
				var names []string
				for _, g := range groups {
					names = append(names, g.Name)
				}
				return noDuplicates("group names", names)
			})),
		rule("7.2.9", medium, "local_interactive_user_home_dirs_check", "Ensure local interactive user home directories are configured", homeDirectories),
		rule("7.2.10", medium, "dot_files_access_check", "Ensure local interactive user dot files access is configured", dotFiles),
	}
}

func noDuplicates(what string, values []string) probe.Outcome {
	if dups := probe.Duplicates(values); len(dups) > 0 {
		return fail("duplicate %s: %s", what, strings.Join(dups, ", "))
	}
	return pass("no duplicate %s", what)
}

// interactiveUsers returns the accounts whose shell is listed in /etc/shells
func interactiveUsers(ctx context.Context, env *probe.Env) ([]probe.Account, error) {
	passwd, err := readText(ctx, env, "/etc/passwd")
	if err != nil {
		return nil, err
	}
	shells, err := readText(ctx, env, "/etc/shells")
	if err != nil {
		return nil, err
	}
	valid := probe.ValidShells(shells)
	var users []probe.Account
	for _, a := range probe.ParsePasswd(passwd) {
		if contains(valid, a.Shell) {
			users = append(users, a)
		}
	}
	return users, nil
}

func homeDirectories(ctx context.Context, env *probe.Env) probe.Outcome {
	users, err := interactiveUsers(ctx, env)
	if err != nil {
		return fail("unable to list interactive users: %v", err)
	}
	var issues []string
	for _, u := range users {
		info, err := env.Exec.Stat(ctx, u.Home)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			issues = append(issues, fmt.Sprintf("%s: %s does not exist", u.Name, u.Home))
			continue
		case err != nil:
			issues = append(issues, fmt.Sprintf("%s: %v", u.Name, err))
			continue
		}
		if !info.IsDir {
			issues = append(issues, fmt.Sprintf("%s: %s is not a directory", u.Name, u.Home))
		}
		if info.Owner != u.Name {
			issues = append(issues, fmt.Sprintf("%s: %s is owned by %s", u.Name, u.Home, info.Owner))
		}
		if info.Mode&^0o750 != 0 {
			issues = append(issues, fmt.Sprintf("%s: %s is %04o", u.Name, u.Home, uint32(info.Mode)))
		}
	}
	if len(issues) > 0 {
		return fail("%s", limit(issues, 10))
	}
	return pass("%d interactive home directories are configured", len(users))
}

func dotFiles(ctx context.Context, env *probe.Env) probe.Outcome {
	users, err := interactiveUsers(ctx, env)
	if err != nil {
		return fail("unable to list interactive users: %v", err)
	}
	if len(users) == 0 {
		return pass("no interactive users")
	}
	args := make([]string, 0, len(users)+16)
	for _, u := range users {
		args = append(args, u.Home)
	}
	args = append(args, "-maxdepth", "1", "-type", "f", "-name", ".*",
		"(", "-perm", "/0133", "-o", "-name", ".forward", "-o", "-name", ".rhosts", "-o", "-name", ".netrc", ")")

	res, err := env.Exec.RunCommand(ctx, "find", args...)
	if err != nil {
		return fail("unable to search dot files: %v", err)
	}
	if found := lines(res.Stdout); len(found) > 0 {
		return fail("dot files with excessive access or forbidden dot files: %s", limit(found, 10))
	}
	return pass("dot files of %d interactive users are configured", len(users))
}
