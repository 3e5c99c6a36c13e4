// pkg/checks/probe/mounts.go

package probe

import (
	"context"
	"strings"
)

// mountOptions returns the options of the filesystem mounted at path, and
// false when path is not a mount point
func (e *Env) mountOptions(ctx context.Context, path string) ([]string, bool, error) {
	res, err := e.run(ctx, "findmnt", "-kn", "-o", "OPTIONS", path)
	if err != nil {
		return nil, false, err
	}
	if !res.Success() || res.Output() == "" {
		return nil, false, nil
	}
	return strings.Split(firstLine(res.Output()), ","), true, nil
}

// SeparatePartition passes when path is its own mount point
func SeparatePartition(path string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		_, mounted, err := env.mountOptions(ctx, path)
		if err != nil {
			return fault(ctx, "findmnt", err)
		}
		if !mounted {
			return Fail("%s is not a separate partition", path)
		}
		return Pass("%s is a separate partition", path)
	}
}

// MountOption passes when the mount at path carries option. An unmounted path
// fails: the option cannot be set on a directory of the parent filesystem.
func MountOption(path, option string) Probe {
	return func(ctx context.Context, env *Env) Outcome {
		options, mounted, err := env.mountOptions(ctx, path)
		if err != nil {
			return fault(ctx, "findmnt", err)
		}
		if !mounted {
			return Fail("%s is not a separate partition", path)
		}
		if !contains(options, option) {
			return Fail("%s is mounted without %s", path, option)
		}
		return Pass("%s is mounted with %s", path, option)
	}
}
