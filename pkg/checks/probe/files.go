// pkg/checks/probe/files.go

package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Perm is the expected ownership and maximum mode of a file
type Perm struct {
	// Max is the most permissive acceptable mode
	Max fs.FileMode

	// Owner is the required owning user; empty accepts any
	Owner string

	// Groups lists the acceptable owning groups; empty accepts any
	Groups []string

	// Optional passes when the file does not exist
	Optional bool
}

// FileMode checks the mode and ownership of path
func FileMode(path string, perm Perm) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		info, err := env.Exec.Stat(ctx, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				if perm.Optional {
					return Pass("%s does not exist", path)
				}
				return Fail("%s does not exist", path)
			}
			return fault(ctx, path, err)
		}

		var issues []string
		if extra := info.Mode &^ perm.Max; extra != 0 {
			issues = append(issues, fmt.Sprintf("mode %04o is more permissive than %04o", uint32(info.Mode), uint32(perm.Max)))
		}
		if perm.Owner != "" && info.Owner != perm.Owner {
			issues = append(issues, fmt.Sprintf("owned by %s instead of %s", info.Owner, perm.Owner))
		}
		if len(perm.Groups) > 0 && !contains(perm.Groups, info.Group) {
			issues = append(issues, fmt.Sprintf("group %s is not one of %s", info.Group, strings.Join(perm.Groups, ", ")))
		}

		if len(issues) > 0 {
			return Fail("%s: %s", path, strings.Join(issues, "; "))
		}
		return Pass("%s is %04o %s:%s", path, uint32(info.Mode), info.Owner, info.Group)
	}
}

// RootOwned is the common Perm for configuration owned by root:root
func RootOwned(max fs.FileMode) Perm {
	return Perm{Max: max, Owner: "root", Groups: []string{"root"}}
}

// FileAbsent passes when path does not exist
func FileAbsent(path string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		_, err := env.Exec.Stat(ctx, path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return Pass("%s does not exist", path)
		case err != nil:
			return fault(ctx, path, err)
		}
		return Fail("%s exists", path)
	}
}

// FileExists passes when path exists
func FileExists(path string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		_, err := env.Exec.Stat(ctx, path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return Fail("%s does not exist", path)
		case err != nil:
			return fault(ctx, path, err)
		}
		return Pass("%s exists", path)
	}
}

// bannerEscapes are getty escapes that disclose system details
var bannerEscapes = []string{`\m`, `\r`, `\s`, `\v`}

// Banner checks that a login banner does not disclose the OS or its version.
// When required is false an absent file passes.
func Banner(path string, required bool) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		content, ok, err := env.readFile(ctx, path)
		if err != nil {
			return fault(ctx, path, err)
		}
		if !ok {
			if required {
				return Fail("%s does not exist", path)
			}
			return Pass("%s does not exist", path)
		}
		if required && strings.TrimSpace(content) == "" {
			return Fail("%s is empty", path)
		}

		var found []string
		for _, esc := range bannerEscapes {
			if strings.Contains(content, esc) {
				found = append(found, esc)
			}
		}
		if osID := env.osID(ctx); osID != "" && strings.Contains(strings.ToLower(content), osID) {
			found = append(found, osID)
		}

		if len(found) > 0 {
			return Fail("%s discloses system information: %s", path, strings.Join(found, ", "))
		}
		return Pass("%s does not disclose system information", path)
	}
}

// osID returns the lowercased ID from /etc/os-release, or "" when unknown
func (e *Env) osID(ctx context.Context) string {
	content, ok, err := e.readFile(ctx, "/etc/os-release")
	if err != nil || !ok {
		return ""
	}
	for _, line := range strings.Split(content, "\n") {
		if value, found := strings.CutPrefix(strings.TrimSpace(line), "ID="); found {
			return strings.ToLower(strings.Trim(value, `"'`))
		}
	}
	return ""
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
