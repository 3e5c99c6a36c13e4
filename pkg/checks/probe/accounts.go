// pkg/checks/probe/accounts.go

package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Account is one line of /etc/passwd
type Account struct {
	Name     string
	Password string
	UID      int
	GID      int
	Home     string
	Shell    string
}

// Group is one line of /etc/group
type Group struct {
	Name    string
	GID     int
	Members []string
}

// ShadowEntry is one line of /etc/shadow
type ShadowEntry struct {
	Name       string
	Hash       string
	LastChange int
	MinDays    int
	MaxDays    int
	Inactive   int
}

// noValue marks an empty numeric shadow field
const noValue = -1

// ParsePasswd parses /etc/passwd content, skipping malformed lines
func ParsePasswd(content string) []Account {
	var accounts []Account
	for _, fields := range colonRecords(content, 7) {
		uid, err1 := strconv.Atoi(fields[2])
		gid, err2 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil {
			continue
		}
		accounts = append(accounts, Account{
			Name:     fields[0],
			Password: fields[1],
			UID:      uid,
			GID:      gid,
			Home:     fields[5],
			Shell:    fields[6],
		})
	}
	return accounts
}

// ParseGroup parses /etc/group content, skipping malformed lines
func ParseGroup(content string) []Group {
	var groups []Group
	for _, fields := range colonRecords(content, 4) {
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		var members []string
		for _, m := range strings.Split(fields[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		groups = append(groups, Group{Name: fields[0], GID: gid, Members: members})
	}
	return groups
}

// ParseShadow parses /etc/shadow content
func ParseShadow(content string) []ShadowEntry {
	var entries []ShadowEntry
	for _, fields := range colonRecords(content, 8) {
		entries = append(entries, ShadowEntry{
			Name:       fields[0],
			Hash:       fields[1],
			LastChange: shadowInt(fields[2]),
			MinDays:    shadowInt(fields[3]),
			MaxDays:    shadowInt(fields[4]),
			Inactive:   shadowInt(fields[6]),
		})
	}
	return entries
}

// HasPassword reports whether the entry holds a usable password hash
func (s ShadowEntry) HasPassword() bool {
	return s.Hash != "" && !strings.HasPrefix(s.Hash, "!") && !strings.HasPrefix(s.Hash, "*")
}

func shadowInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return noValue
	}
	return n
}

func colonRecords(content string, min int) [][]string {
	var records [][]string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < min {
			continue
		}
		records = append(records, fields)
	}
	return records
}

// Accounts evaluates the parsed /etc/passwd
func Accounts(eval func(accounts []Account) Outcome) Probe {
	return File("/etc/passwd", func(content string) Outcome {
		return eval(ParsePasswd(content))
	}, nil)
}

// Groups evaluates the parsed /etc/group
func Groups(eval func(groups []Group) Outcome) Probe {
	return File("/etc/group", func(content string) Outcome {
		return eval(ParseGroup(content))
	}, nil)
}

// Shadow evaluates the parsed /etc/shadow
func Shadow(eval func(entries []ShadowEntry) Outcome) Probe {
	return File("/etc/shadow", func(content string) Outcome {
		return eval(ParseShadow(content))
	}, nil)
}

// AccountsAndGroups evaluates /etc/passwd together with /etc/group
func AccountsAndGroups(eval func(accounts []Account, groups []Group) Outcome) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		passwd, ok, err := env.readFile(ctx, "/etc/passwd")
		if err != nil || !ok {
			return fault(ctx, "/etc/passwd", orMissing(err, "/etc/passwd"))
		}
		group, ok, err := env.readFile(ctx, "/etc/group")
		if err != nil || !ok {
			return fault(ctx, "/etc/group", orMissing(err, "/etc/group"))
		}
		return eval(ParsePasswd(passwd), ParseGroup(group))
	}
}

// Duplicates returns the values that occur more than once, in first-seen order
func Duplicates(values []string) []string {
	seen := make(map[string]int)
	var dups []string
	for _, v := range values {
		seen[v]++
		if seen[v] == 2 {
			dups = append(dups, v)
		}
	}
	return dups
}

// ValidShells returns the login shells listed in /etc/shells
func ValidShells(content string) []string {
	var shells []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.Contains(line, "nologin") {
			continue
		}
		shells = append(shells, line)
	}
	return shells
}

func orMissing(err error, path string) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%s does not exist", path)
}
