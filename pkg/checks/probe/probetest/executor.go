// pkg/checks/probe/probetest/executor.go

// Package probetest provides an in-memory host for probe tests.
package probetest

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/xhunter101/cis-benchmark-tool/pkg/utils"
)

// Executor is a scripted utils.CommandExecutor. Commands are keyed by their
// shell-joined command line.
type Executor struct {
	mu       sync.Mutex
	files    map[string]string
	stats    map[string]utils.FileInfo
	commands map[string]utils.CommandResult
	errs     map[string]error
	calls    []string
}

// NewExecutor returns an empty host
func NewExecutor() *Executor {
	return &Executor{
		files:    make(map[string]string),
		stats:    make(map[string]utils.FileInfo),
		commands: make(map[string]utils.CommandResult),
		errs:     make(map[string]error),
	}
}

// File adds a readable file
func (e *Executor) File(path, content string) *Executor {
	e.files[path] = content
	return e
}

// StatFile adds file metadata
func (e *Executor) StatFile(path string, mode fs.FileMode, owner, group string) *Executor {
	e.stats[path] = utils.FileInfo{Path: path, Mode: mode, Owner: owner, Group: group}
	return e
}

// Dir adds directory metadata
func (e *Executor) Dir(path string, mode fs.FileMode, owner, group string) *Executor {
	e.stats[path] = utils.FileInfo{Path: path, Mode: mode, Owner: owner, Group: group, IsDir: true}
	return e
}

// Command scripts the output of a command line
func (e *Executor) Command(stdout string, exitCode int, name string, args ...string) *Executor {
	e.commands[utils.ShellJoin(name, args...)] = utils.CommandResult{Stdout: stdout, ExitCode: exitCode}
	return e
}

// CommandStderr scripts a failing command that writes to stderr
func (e *Executor) CommandStderr(stderr string, exitCode int, name string, args ...string) *Executor {
	e.commands[utils.ShellJoin(name, args...)] = utils.CommandResult{Stderr: stderr, ExitCode: exitCode}
	return e
}

// Fail makes reads, stats and runs of target return err
func (e *Executor) Fail(target string, err error) *Executor {
	e.errs[target] = err
	return e
}

// Calls returns the command lines run so far
func (e *Executor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// RunCommand returns the scripted result. Unknown commands behave like a
// missing binary.
func (e *Executor) RunCommand(ctx context.Context, name string, args ...string) (utils.CommandResult, error) {
	line := utils.ShellJoin(name, args...)
	e.mu.Lock()
	e.calls = append(e.calls, line)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return utils.CommandResult{}, err
	}
	if err, ok := e.errs[line]; ok {
		return utils.CommandResult{}, err
	}
	res, ok := e.commands[line]
	if !ok {
		return utils.CommandResult{}, fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return res, nil
}

// ReadFile returns the scripted file content
func (e *Executor) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err, ok := e.errs[path]; ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: err}
	}
	content, ok := e.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(content), nil
}

// Stat returns scripted metadata; files added with File stat as 0644 root:root
func (e *Executor) Stat(ctx context.Context, path string) (utils.FileInfo, error) {
	if err, ok := e.errs[path]; ok {
		return utils.FileInfo{}, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	if info, ok := e.stats[path]; ok {
		return info, nil
	}
	if _, ok := e.files[path]; ok {
		return utils.FileInfo{Path: path, Mode: 0o644, Owner: "root", Group: "root"}, nil
	}
	return utils.FileInfo{}, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// Hostname returns a fixed test hostname
func (e *Executor) Hostname() string {
	return "testhost"
}

// IsLocal returns true
func (e *Executor) IsLocal() bool {
	return true
}
