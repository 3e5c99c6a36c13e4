package utils

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatOutput(t *testing.T) {
	info, err := parseStatOutput("/etc/shadow", "640 0 42 root shadow regular file")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o640), info.Mode)
	assert.Equal(t, 0, info.UID)
	assert.Equal(t, 42, info.GID)
	assert.Equal(t, "root", info.Owner)
	assert.Equal(t, "shadow", info.Group)
	assert.False(t, info.IsDir)

	dir, err := parseStatOutput("/etc/cron.d", "700 0 0 root root directory")
	require.NoError(t, err)
	assert.True(t, dir.IsDir)

	_, err = parseStatOutput("/x", "garbage")
	assert.Error(t, err)
	_, err = parseStatOutput("/x", "9z9 0 0 root root regular file")
	assert.Error(t, err)
}

func TestRemotePathError(t *testing.T) {
	err := remotePathError("read", "/nope", CommandResult{ExitCode: 1, Stderr: "cat: /nope: No such file or directory"})
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	err = remotePathError("read", "/etc/shadow", CommandResult{ExitCode: 1, Stderr: "cat: /etc/shadow: Permission denied"})
	assert.True(t, errors.Is(err, fs.ErrPermission))

	err = remotePathError("stat", "/x", CommandResult{ExitCode: 2, Stderr: "boom"})
	assert.False(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "exit status 2")
}

func TestShellJoin(t *testing.T) {
	assert.Equal(t, "stat -L -c '%a %u' -- /etc/passwd", ShellJoin("stat", "-L", "-c", "%a %u", "--", "/etc/passwd"))
	assert.Equal(t, "echo ''", ShellJoin("echo", ""))
	assert.Equal(t, `echo 'it'\''s'`, ShellJoin("echo", "it's"))
	assert.Equal(t, "sysctl net.ipv4.ip_forward", ShellJoin("sysctl", "net.ipv4.ip_forward"))
}

func TestLocalExecutor(t *testing.T) {
	ctx := context.Background()
	e := NewLocalExecutor()
	assert.True(t, e.IsLocal())
	assert.NotEmpty(t, e.Hostname())

	dir := t.TempDir()
	path := filepath.Join(dir, "motd")
	require.NoError(t, os.WriteFile(path, []byte("Authorized uses only\n"), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))

	content, err := e.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "Authorized uses only\n", string(content))

	info, err := e.Stat(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o644), info.Mode)
	assert.Equal(t, os.Getuid(), info.UID)
	assert.NotEmpty(t, info.Owner)

	_, err = e.ReadFile(ctx, filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = e.Stat(ctx, filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLocalExecutor_RunCommand(t *testing.T) {
	ctx := context.Background()
	e := NewLocalExecutor()

	result, err := e.RunCommand(ctx, "sh", "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Success())
	assert.Equal(t, "out", result.Output())
	assert.Equal(t, "err\n", result.Stderr)

	_, err = e.RunCommand(ctx, "definitely-not-a-real-binary-xyz")
	assert.Error(t, err)
}

func TestLocalExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewLocalExecutor()

	_, err := e.ReadFile(ctx, "/etc/hostname")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = e.Stat(ctx, "/etc/hostname")
	assert.ErrorIs(t, err, context.Canceled)
}
