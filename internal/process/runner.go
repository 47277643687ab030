// Package process provides abstractions for running external processes:
// short-lived commands whose output is captured, and detached long-lived
// processes that must outlive the tool.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a command to completion and captures its output.
// This interface lets callers (relay, lifecycle, remote) be tested without
// spawning real processes.
type Runner interface {
	// Run executes name with args. The returned error is non-nil only when
	// the command could not be started or was cut short by ctx; a non-zero
	// exit status is reported through Result.ExitCode.
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// Result captures the outcome of a process execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Output returns stderr when it is non-empty, otherwise stdout. Windows
// tools (netsh in particular) print their errors on stdout.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// waitDelay bounds how long Run waits for output pipes after the process exits.
const waitDelay = time.Second

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	// Timeout bounds each command. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// NewExecRunner creates an ExecRunner with the given per-command timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run executes the command and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// A grandchild holding the pipes open must not keep Wait blocked after
	// the command itself was killed.
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", name, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", name, err)
	}

	return result, nil
}

// CommandString renders a command line for display.
func CommandString(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(name))
	for _, a := range args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
