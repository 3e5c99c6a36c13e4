// pkg/utils/command_executor.go

package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CommandResult is the captured outcome of a command. A non-zero exit code
// is not an error: probes routinely run commands expected to fail.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the command exited with status 0
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// Output returns trimmed stdout
func (r CommandResult) Output() string {
	return strings.TrimSpace(r.Stdout)
}

// FileInfo is the subset of file metadata the probes inspect
type FileInfo struct {
	Path  string
	Mode  fs.FileMode
	UID   int
	GID   int
	Owner string
	Group string
	IsDir bool
}

// CommandExecutor runs read-only inspections against a host
type CommandExecutor interface {
	// RunCommand runs name with args. The error is reserved for commands that
	// could not be started at all.
	RunCommand(ctx context.Context, name string, args ...string) (CommandResult, error)

	// ReadFile returns the content of path. Missing files wrap fs.ErrNotExist.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Stat returns metadata for path. Missing files wrap fs.ErrNotExist.
	Stat(ctx context.Context, path string) (FileInfo, error)

	Hostname() string
	IsLocal() bool
}

// LocalExecutor executes commands on this host
type LocalExecutor struct {
	hostname string
}

// NewLocalExecutor creates a new local executor
func NewLocalExecutor() *LocalExecutor {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return &LocalExecutor{hostname: hostname}
}

// RunCommand executes a command locally
func (e *LocalExecutor) RunCommand(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("command '%s %s' failed: %w", name, strings.Join(args, " "), err)
	}
	return result, nil
}

// ReadFile reads a local file
func (e *LocalExecutor) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Stat returns metadata for a local file
func (e *LocalExecutor) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return localFileInfo(path, info), nil
}

// Hostname returns the hostname
func (e *LocalExecutor) Hostname() string {
	return e.hostname
}

// IsLocal returns true for local executor
func (e *LocalExecutor) IsLocal() bool {
	return true
}

// RemoteExecutor executes commands via SSH
type RemoteExecutor struct {
	hostname   string
	connection *SSHConnection
}

// NewRemoteExecutor connects to the host described by config
func NewRemoteExecutor(ctx context.Context, config *SSHConfig) (*RemoteExecutor, error) {
	conn := NewSSHConnection(config)
	if err := conn.Connect(); err != nil {
		return nil, err
	}

	e := &RemoteExecutor{hostname: config.Host, connection: conn}
	if result, err := conn.Run(ctx, "hostname -f"); err == nil && result.Success() && result.Output() != "" {
		e.hostname = result.Output()
	}
	return e, nil
}

// RunCommand executes a command remotely
func (e *RemoteExecutor) RunCommand(ctx context.Context, name string, args ...string) (CommandResult, error) {
	if e.connection == nil {
		return CommandResult{}, fmt.Errorf("remote connection is not established")
	}
	return e.connection.Run(ctx, ShellJoin(name, args...))
}

// ReadFile reads a remote file with cat
func (e *RemoteExecutor) ReadFile(ctx context.Context, path string) ([]byte, error) {
	result, err := e.RunCommand(ctx, "cat", "--", path)
	if err != nil {
		return nil, err
	}
	if !result.Success() {
		return nil, remotePathError("read", path, result)
	}
	return []byte(result.Stdout), nil
}

// Stat returns metadata for a remote file using GNU stat
func (e *RemoteExecutor) Stat(ctx context.Context, path string) (FileInfo, error) {
	result, err := e.RunCommand(ctx, "stat", "-L", "-c", "%a %u %g %U %G %F", "--", path)
	if err != nil {
		return FileInfo{}, err
	}
	if !result.Success() {
		return FileInfo{}, remotePathError("stat", path, result)
	}
	return parseStatOutput(path, result.Output())
}

// Hostname returns the remote hostname
func (e *RemoteExecutor) Hostname() string {
	return e.hostname
}

// IsLocal returns false for remote executor
func (e *RemoteExecutor) IsLocal() bool {
	return false
}

// Close closes the remote connection
func (e *RemoteExecutor) Close() error {
	if e.connection != nil {
		return e.connection.Close()
	}
	return nil
}

// parseStatOutput parses "%a %u %g %U %G %F"
func parseStatOutput(path, out string) (FileInfo, error) {
	fields := strings.Fields(out)
	if len(fields) < 6 {
		return FileInfo{}, fmt.Errorf("unexpected stat output for %s: %q", path, out)
	}
	mode, err := strconv.ParseUint(fields[0], 8, 32)
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid mode for %s: %w", path, err)
	}
	uid, err := strconv.Atoi(fields[1])
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid uid for %s: %w", path, err)
	}
	gid, err := strconv.Atoi(fields[2])
	if err != nil {
		return FileInfo{}, fmt.Errorf("invalid gid for %s: %w", path, err)
	}
	fileType := strings.Join(fields[5:], " ")

	return FileInfo{
		Path:  path,
		Mode:  fs.FileMode(mode) & fs.ModePerm,
		UID:   uid,
		GID:   gid,
		Owner: fields[3],
		Group: fields[4],
		IsDir: fileType == "directory",
	}, nil
}

func remotePathError(op, path string, result CommandResult) error {
	msg := strings.TrimSpace(result.Stderr)
	if strings.Contains(msg, "No such file") {
		return &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
	}
	if strings.Contains(msg, "Permission denied") {
		return &fs.PathError{Op: op, Path: path, Err: fs.ErrPermission}
	}
	return &fs.PathError{Op: op, Path: path, Err: fmt.Errorf("exit status %d: %s", result.ExitCode, msg)}
}

// ShellJoin quotes name and args for a POSIX shell
func ShellJoin(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, arg := range args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("-_./=:,+%@", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
