package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
)

// PowerShell is the interpreter reachable from WSL through interop.
const PowerShell = "powershell.exe"

// DefaultTimeout bounds one remote invocation, including a UAC prompt.
const DefaultTimeout = 60 * time.Second

// ErrTimeout is returned when the remote side did not finish in time.
var ErrTimeout = errors.New("remote invocation timed out")

// Result is the outcome of one remote invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the remote command exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Executor runs PowerShell scripts on the Windows host as a single
// request/response.
type Executor struct {
	runner  process.Runner
	timeout time.Duration
	logger  *slog.Logger
	verbose bool
}

// NewExecutor creates an Executor. timeout <= 0 uses DefaultTimeout.
func NewExecutor(runner process.Runner, timeout time.Duration, logger *slog.Logger, verbose bool) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{runner: runner, timeout: timeout, logger: logger, verbose: verbose}
}

// NewPowerShellExecutor creates an Executor over a subprocess runner with
// no per-command bound of its own, so timeout alone limits the call.
func NewPowerShellExecutor(timeout time.Duration, logger *slog.Logger, verbose bool) *Executor {
	return NewExecutor(process.NewExecRunner(0), timeout, logger, verbose)
}

// CommandArgs returns the powershell.exe arguments for script.
func CommandArgs(script string) []string {
	return []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", script}
}

// Execute runs script and returns its exit status and output. The error
// is set when the channel itself failed (interop missing, timeout).
func (e *Executor) Execute(ctx context.Context, script string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Debug("remote_execute", "timeout", e.timeout)
	res, err := e.runner.Run(ctx, PowerShell, CommandArgs(script)...)

	out := &Result{ExitCode: -1}
	if res != nil {
		out = &Result{
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Duration: res.Duration,
		}
	}

	stderr := logging.NewOutputBuffer("powershell", e.logger, e.verbose)
	stderr.AddText(out.Stderr)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
		}
		return out, err
	}

	e.logger.Debug("remote_done", "exit_code", out.ExitCode, "duration", out.Duration)
	return out, nil
}

// Run renders inv and executes it.
func (e *Executor) Run(ctx context.Context, inv Invocation) (*Result, error) {
	script, err := Script(inv)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, script)
}
