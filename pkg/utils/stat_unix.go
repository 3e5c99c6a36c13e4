//go:build unix

// pkg/utils/stat_unix.go

package utils

import (
	"io/fs"
	"os/user"
	"strconv"
	"syscall"
)

// localFileInfo fills ownership from the platform stat structure
func localFileInfo(path string, info fs.FileInfo) FileInfo {
	fi := FileInfo{
		Path:  path,
		Mode:  info.Mode().Perm(),
		IsDir: info.IsDir(),
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		fi.UID = int(st.Uid)
		fi.GID = int(st.Gid)
	}

	fi.Owner = strconv.Itoa(fi.UID)
	if u, err := user.LookupId(fi.Owner); err == nil {
		fi.Owner = u.Username
	}
	fi.Group = strconv.Itoa(fi.GID)
	if g, err := user.LookupGroupId(fi.Group); err == nil {
		fi.Group = g.Name
	}
	return fi
}
