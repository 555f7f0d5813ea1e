// Package process runs shell command lines for shell-form pipeline leaves.
package process

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/vk/chainrun/internal/ctxlog"
)

// Runner executes a command line in a working directory.
type Runner interface {
	Run(ctx context.Context, commandLine, dir string) (stdout, stderr string, err error)
}

// Error is returned for a command that could not start or exited non-zero.
// Its message is the command's stderr when there is any.
type Error struct {
	CommandLine string
	Stderr      string
	Err         error
}

func (e *Error) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ShellRunner runs command lines through `sh -c`. Stderr is copied to
// Diagnostics as it is produced, when Diagnostics is set.
type ShellRunner struct {
	Shell       string
	Diagnostics io.Writer
}

// NewShellRunner returns a ShellRunner using /bin/sh.
func NewShellRunner(diagnostics io.Writer) *ShellRunner {
	return &ShellRunner{Shell: "/bin/sh", Diagnostics: diagnostics}
}

// Run implements Runner.
func (r *ShellRunner) Run(ctx context.Context, commandLine, dir string) (string, string, error) {
	logger := ctxlog.FromContext(ctx)
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, shell, "-c", commandLine)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.Diagnostics != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Diagnostics)
	}

	logger.Debug("Running shell command.", "command", commandLine, "dir", dir)
	if err := cmd.Run(); err != nil {
		logger.Debug("Shell command failed.", "command", commandLine, "error", err)
		return stdout.String(), stderr.String(), &Error{CommandLine: commandLine, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), stderr.String(), nil
}
