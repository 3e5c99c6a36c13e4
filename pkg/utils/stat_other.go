//go:build !unix

// pkg/utils/stat_other.go

package utils

import "io/fs"

// localFileInfo reports mode only; ownership is not available on this platform
func localFileInfo(path string, info fs.FileInfo) FileInfo {
	return FileInfo{
		Path:  path,
		Mode:  info.Mode().Perm(),
		UID:   -1,
		GID:   -1,
		IsDir: info.IsDir(),
	}
}
