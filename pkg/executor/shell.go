package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// CommandResult is the captured outcome of one process.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Shell spawns processes for actions. A non-zero exit is reported through
// CommandResult.ExitCode; the error return is reserved for spawn failures
// and cancellation.
type Shell interface {
	// Run executes script through the platform shell.
	Run(ctx context.Context, script string) (*CommandResult, error)
	// Exec runs a binary with explicit arguments, no shell involved.
	Exec(ctx context.Context, name string, args ...string) (*CommandResult, error)
}

// waitDelay bounds how long a killed process may hold its output pipes open.
const waitDelay = time.Second

// OSShell runs commands via os/exec. Scripts go through `sh -c`, or
// `cmd.exe /C` on Windows.
type OSShell struct {
	// Dir is the working directory; empty inherits the process directory.
	Dir string
	// Env replaces the process environment when non-empty.
	Env []string
}

// Run implements Shell.
func (s OSShell) Run(ctx context.Context, script string) (*CommandResult, error) {
	if runtime.GOOS == "windows" {
		return s.Exec(ctx, "cmd.exe", "/C", script)
	}
	return s.Exec(ctx, "sh", "-c", script)
}

// Exec implements Shell.
func (s OSShell) Exec(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...) //#nosec G204 -- commands come from the user's own handler config
	cmd.Dir = s.Dir
	cmd.WaitDelay = waitDelay
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &CommandResult{
		Stdout:   normalizeLineEndings(stdout.String()),
		Stderr:   normalizeLineEndings(stderr.String()),
		Duration: time.Since(start),
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("execute %q: %w", name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("execute %q: %w", name, err)
	}
	return res, nil
}

// normalizeLineEndings replaces \r\n with \n for cross-platform consistency.
func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
