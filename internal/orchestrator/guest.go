package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/network"
	"github.com/randomizedcoder/go-wsl-devkit/internal/remote"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// Defaults for the guest's connectivity polling.
const (
	DefaultVerifyAttempts = 5
	DefaultVerifyInterval = 2 * time.Second
	DefaultConnectTimeout = 2 * time.Second
)

// HostFinder returns the control host's address as seen from the guest.
type HostFinder interface {
	Find(ctx context.Context) (string, network.HostSource, error)
}

// Reacher makes a single bounded TCP connect attempt.
type Reacher interface {
	CanReach(ctx context.Context, host string, port int, timeout time.Duration) bool
}

// RemoteRunner executes the control-side invocation.
type RemoteRunner interface {
	Run(ctx context.Context, inv remote.Invocation) (*remote.Result, error)
}

// GuestConfig holds the parameters and collaborators of a guest-side run.
type GuestConfig struct {
	Kind           browser.Kind
	Port           int
	VerifyAttempts int
	VerifyInterval time.Duration
	ConnectTimeout time.Duration

	Hosts  HostFinder
	Reach  Reacher
	Remote RemoteRunner

	// Binary resolves the Windows path of the control-side executable.
	Binary func(ctx context.Context) (string, error)

	Elevate   bool
	RunID     string
	ExtraArgs []string

	Reporter report.Reporter
	Logger   *slog.Logger
	Observer Observer

	// Sleep waits between polling attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Guest runs inside WSL: it asks the Windows side to set up the browser
// and then checks the endpoint from here.
type Guest struct {
	cfg      GuestConfig
	reporter report.Reporter
	logger   *slog.Logger
	obs      Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGuest creates a Guest.
func NewGuest(cfg GuestConfig) *Guest {
	g := &Guest{cfg: cfg, reporter: cfg.Reporter, logger: cfg.Logger, obs: cfg.Observer, sleep: cfg.Sleep}
	if g.reporter == nil {
		g.reporter = report.Silent{}
	}
	if g.logger == nil {
		g.logger = logging.Discard()
	}
	if g.obs == nil {
		g.obs = noopObserver{}
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	if g.cfg.ConnectTimeout <= 0 {
		g.cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return g
}

// Invocation returns the control-side command for binary.
func (g *Guest) Invocation(binary string) remote.Invocation {
	return remote.Invocation{
		Binary:  binary,
		Browser: string(g.cfg.Kind),
		Port:    g.cfg.Port,
		RunID:   g.cfg.RunID,
		Elevate: g.cfg.Elevate,
		Extra:   g.cfg.ExtraArgs,
	}
}

// Run executes the guest-side sequence.
func (g *Guest) Run(ctx context.Context) (res *GuestResult) {
	start := time.Now()
	res = &GuestResult{}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("guest_panic", "panic", r, "stack", string(debug.Stack()))
			res.Success = false
			res.Err = newError(KindInternal, nil, "unexpected failure: %v", r)
			g.reporter.Error(res.Err.Message)
		}
		res.Duration = time.Since(start)
		g.obs.ObserveRun(ModeGuest, res.Success, kindOf(res.Err), res.Duration)
		g.logger.Info("guest_done", "success", res.Success, "kind", kindOf(res.Err), "duration", res.Duration)
	}()

	cfg := g.cfg
	g.reporter.Step("Running from WSL - initiating cross-environment setup")

	// 1. Host address.
	g.reporter.Step("Detecting Windows host IP")
	step := startStep(g.obs, ModeGuest, "host")
	host, source, err := cfg.Hosts.Find(ctx)
	if !step.done(err == nil) {
		g.fail(res, newError(KindHostAddressUnknown, err, "Could not detect Windows host IP from WSL"),
			"Make sure you're running from WSL, not native Linux")
		return res
	}
	res.HostFound = true
	res.HostAddr = host
	res.HostSource = string(source)
	g.reporter.Success(fmt.Sprintf("Windows host IP: %s (from %s)", host, source))

	// 2. Fast path: already reachable means already configured.
	g.reporter.Step("Checking existing connection")
	if cfg.Reach.CanReach(ctx, host, cfg.Port, cfg.ConnectTimeout) {
		res.AlreadyConnected = true
		res.Skipped = true
		res.ConnectivityVerified = true
		res.Success = true
		res.Endpoint = Endpoint{Host: host, Port: cfg.Port}
		g.reporter.Success("Browser debug port already accessible")
		g.reporter.Info("Skipping Windows setup (already configured)")
		return res
	}

	// 3. Remote setup.
	g.reporter.Step("Preparing Windows setup")
	step = startStep(g.obs, ModeGuest, "remote")
	binary, err := cfg.Binary(ctx)
	if err != nil {
		step.done(false)
		g.fail(res, newError(KindRemoteSetupFailed, err, "Could not determine Windows path to this tool"),
			"Place "+remote.WindowsBinaryName+" next to this binary or pass --windows-binary")
		return res
	}

	g.reporter.Step("Executing setup on Windows (requires Administrator)")
	if cfg.Elevate {
		g.reporter.Warning("You may see a UAC prompt on Windows - please approve it")
	}
	out, err := cfg.Remote.Run(ctx, g.Invocation(binary))
	if out != nil {
		res.RemoteStderr = strings.TrimSpace(out.Stderr)
	}
	if !step.done(err == nil && out.Success()) {
		msg := "Windows setup failed"
		if res.RemoteStderr != "" {
			msg += ": " + lastLines(res.RemoteStderr, 3)
		} else if out != nil && err == nil {
			msg += fmt.Sprintf(" (exit %d)", out.ExitCode)
		}
		g.fail(res, newError(KindRemoteSetupFailed, err, "%s", msg),
			"Run the WSL terminal as Administrator, or pass --elevate",
			"Windows binary: "+binary)
		return res
	}
	res.ControlSetupCompleted = true
	g.reporter.Success("Windows setup completed")

	// 4. Verify from the guest.
	g.reporter.Step("Verifying connection from WSL")
	step = startStep(g.obs, ModeGuest, "verify")
	for attempt := 1; attempt <= cfg.VerifyAttempts; attempt++ {
		res.Attempts = attempt
		ok := cfg.Reach.CanReach(ctx, host, cfg.Port, cfg.ConnectTimeout)
		g.obs.ObservePoll(ModeGuest, ok)
		if ok {
			res.ConnectivityVerified = true
			break
		}
		if attempt < cfg.VerifyAttempts {
			g.reporter.Info(fmt.Sprintf("Attempt %d/%d - waiting", attempt, cfg.VerifyAttempts))
			if g.sleep(ctx, cfg.VerifyInterval) != nil {
				break
			}
		}
	}
	if !step.done(res.ConnectivityVerified) {
		g.fail(res, newError(KindConnectivityVerificationFailed, ctx.Err(), "Could not connect to %s:%d", host, cfg.Port),
			"Windows setup may have completed but the port is not accessible",
			"Check the Windows firewall for the WSL adapter")
		return res
	}

	// 5. Done.
	res.Success = true
	res.Endpoint = Endpoint{Host: host, Port: cfg.Port}
	g.reporter.Success("WSL orchestration complete")
	g.reporter.Success(fmt.Sprintf("Browser debug endpoint: %s", res.Endpoint))
	return res
}

func (g *Guest) fail(res *GuestResult, e *Error, hints ...string) {
	res.Success = false
	res.Err = e
	g.reporter.Error(e.Message)
	for _, h := range hints {
		g.reporter.Info(h)
	}
	g.logger.Warn("guest_failed", "kind", string(e.Kind), "error", e.Error())
}

// lastLines returns the last n non-blank lines of s joined with "; ".
func lastLines(s string, n int) string {
	buf := logging.NewOutputBuffer("powershell", nil, false)
	buf.AddText(s)
	return buf.Summary(n)
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
