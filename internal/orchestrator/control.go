package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/lock"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/privilege"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// AdapterFinder returns the guest-facing adapter's IPv4 address.
type AdapterFinder interface {
	Find(ctx context.Context) (string, error)
}

// BrowserFinder resolves a browser's install path.
type BrowserFinder interface {
	Locate(k browser.Kind, ctx env.Context) (string, bool)
}

// Launcher drives one browser launch.
type Launcher interface {
	Prepare(ctx context.Context, kind browser.Kind, path string, port int) (*process.Handle, error)
	WaitUntilListening(ctx context.Context, port, maxAttempts int, interval time.Duration) bool
	Fail()
}

// RelayInstaller installs the relay rule.
type RelayInstaller interface {
	Install(ctx context.Context, listenAddr string, port int) (bool, error)
}

// LockFunc takes the exclusive (kind, port) lock and returns its release.
type LockFunc func(kind browser.Kind, port int) (release func(), err error)

// FileLock returns a LockFunc backed by lock files in dir.
func FileLock(dir string) LockFunc {
	return func(kind browser.Kind, port int) (func(), error) {
		l, err := lock.Acquire(lock.Path(dir, string(kind), port))
		if err != nil {
			return nil, err
		}
		return func() { _ = l.Release() }, nil
	}
}

// ControlConfig holds the parameters and collaborators of a control-side run.
type ControlConfig struct {
	Kind           browser.Kind
	Port           int
	ListenAttempts int
	ListenInterval time.Duration

	Privilege privilege.Checker
	Adapters  AdapterFinder
	Browsers  BrowserFinder
	Lifecycle Launcher
	Relay     RelayInstaller

	// Lock, when set, guards the run against concurrent invocations.
	Lock LockFunc

	Reporter report.Reporter
	Logger   *slog.Logger
	Observer Observer
}

// Control runs on the Windows host: it launches the browser and publishes
// its debugging port on the WSL adapter.
type Control struct {
	cfg      ControlConfig
	reporter report.Reporter
	logger   *slog.Logger
	obs      Observer
}

// NewControl creates a Control.
func NewControl(cfg ControlConfig) *Control {
	c := &Control{cfg: cfg, reporter: cfg.Reporter, logger: cfg.Logger, obs: cfg.Observer}
	if c.reporter == nil {
		c.reporter = report.Silent{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.obs == nil {
		c.obs = noopObserver{}
	}
	return c
}

// Run executes the setup. Each step gates the next; nothing completed
// before a failure is rolled back.
func (c *Control) Run(ctx context.Context) (res *ControlResult) {
	start := time.Now()
	res = &ControlResult{}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("control_panic", "panic", r, "stack", string(debug.Stack()))
			res.Success = false
			res.Err = newError(KindInternal, nil, "unexpected failure: %v", r)
			c.reporter.Error(res.Err.Message)
		}
		res.Duration = time.Since(start)
		c.obs.ObserveRun(ModeControl, res.Success, kindOf(res.Err), res.Duration)
		c.logger.Info("control_done", "success", res.Success, "kind", kindOf(res.Err), "duration", res.Duration)
	}()

	cfg := c.cfg

	// 1. Privilege comes first: nothing may change without it.
	step := startStep(c.obs, ModeControl, "privilege")
	if !step.done(cfg.Privilege.IsElevated()) {
		c.fail(res, newError(KindPermissionDenied, nil, "Administrator privileges required"),
			"Run this tool from an elevated (Administrator) terminal")
		return res
	}
	res.PrivilegeVerified = true
	c.reporter.Step("Running as Administrator")

	// 2. Adapter.
	c.reporter.Step("Detecting WSL network adapter")
	step = startStep(c.obs, ModeControl, "adapter")
	addr, err := cfg.Adapters.Find(ctx)
	if !step.done(err == nil) {
		c.fail(res, newError(KindAdapterNotFound, err, "Could not find WSL network adapter"),
			"Make sure WSL is installed and has been started at least once")
		return res
	}
	res.AdapterFound = true
	res.AdapterAddr = addr
	c.reporter.Success(fmt.Sprintf("WSL adapter IP: %s", addr))

	// 3. Browser.
	c.reporter.Step(fmt.Sprintf("Locating %s", cfg.Kind))
	step = startStep(c.obs, ModeControl, "locate")
	path, ok := cfg.Browsers.Locate(cfg.Kind, env.ControlNative)
	if !step.done(ok) {
		c.fail(res, newError(KindBrowserNotFound, nil, "Could not find %s installation", cfg.Kind))
		return res
	}
	res.BrowserFound = true
	res.BrowserPath = path
	c.reporter.Success(fmt.Sprintf("Found: %s", path))

	if cfg.Lock != nil {
		release, err := cfg.Lock(cfg.Kind, cfg.Port)
		if err != nil {
			c.fail(res, newError(KindBusy, err, "Port %d is being set up by another invocation", cfg.Port))
			return res
		}
		defer release()
	}

	// 4. Terminate, reset, launch.
	c.reporter.Step("Preparing browser environment")
	step = startStep(c.obs, ModeControl, "launch")
	h, err := cfg.Lifecycle.Prepare(ctx, cfg.Kind, path, cfg.Port)
	if !step.done(err == nil) {
		c.fail(res, newError(KindBrowserNotListening, err, "Failed to launch %s", cfg.Kind))
		return res
	}
	res.BrowserLaunched = true
	res.PID = h.PID

	// 5. Wait for the protocol.
	step = startStep(c.obs, ModeControl, "listen")
	if !step.done(cfg.Lifecycle.WaitUntilListening(ctx, cfg.Port, cfg.ListenAttempts, cfg.ListenInterval)) {
		cfg.Lifecycle.Fail()
		c.fail(res, newError(KindBrowserNotListening, ctx.Err(),
			"%s is not listening on port %d", cfg.Kind, cfg.Port))
		return res
	}
	res.BrowserListening = true

	// 6. Relay, only once the browser is verified.
	step = startStep(c.obs, ModeControl, "relay")
	installed, err := cfg.Relay.Install(ctx, addr, cfg.Port)
	if !step.done(installed && err == nil) {
		if err == nil {
			err = errors.New("netsh portproxy add failed")
		}
		c.fail(res, newError(KindRelayInstallFailed, err, "Failed to set up port forwarding"))
		return res
	}
	res.RelayInstalled = true

	// 7. Done.
	res.Success = true
	res.Endpoint = Endpoint{Host: addr, Port: cfg.Port}
	c.reporter.Success("Windows setup complete")
	c.reporter.Success(fmt.Sprintf("Browser debug endpoint: %s", res.Endpoint))
	c.reporter.Info("WSL can now connect to the browser")
	return res
}

func (c *Control) fail(res *ControlResult, e *Error, hints ...string) {
	res.Success = false
	res.Err = e
	c.reporter.Error(e.Message)
	for _, h := range hints {
		c.reporter.Info(h)
	}
	c.logger.Warn("control_failed", "kind", string(e.Kind), "error", e.Error())
}
