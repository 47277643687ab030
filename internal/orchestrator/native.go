package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// NativeConfig holds the parameters of a local launch.
type NativeConfig struct {
	Kind           browser.Kind
	Port           int
	Context        env.Context
	ListenAttempts int
	ListenInterval time.Duration

	Browsers  BrowserFinder
	Lifecycle Launcher
	Lock      LockFunc

	Reporter report.Reporter
	Logger   *slog.Logger
	Observer Observer
}

// Native launches the browser on the local machine (plain Linux or
// macOS); no relay is involved.
type Native struct {
	cfg      NativeConfig
	reporter report.Reporter
	logger   *slog.Logger
	obs      Observer
}

// NewNative creates a Native.
func NewNative(cfg NativeConfig) *Native {
	n := &Native{cfg: cfg, reporter: cfg.Reporter, logger: cfg.Logger, obs: cfg.Observer}
	if n.reporter == nil {
		n.reporter = report.Silent{}
	}
	if n.logger == nil {
		n.logger = logging.Discard()
	}
	if n.obs == nil {
		n.obs = noopObserver{}
	}
	return n
}

// Run terminates, resets, launches and waits.
func (n *Native) Run(ctx context.Context) (res *NativeResult) {
	start := time.Now()
	res = &NativeResult{}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("native_panic", "panic", r, "stack", string(debug.Stack()))
			res.Success = false
			res.Err = newError(KindInternal, nil, "unexpected failure: %v", r)
			n.reporter.Error(res.Err.Message)
		}
		res.Duration = time.Since(start)
		n.obs.ObserveRun(ModeNative, res.Success, kindOf(res.Err), res.Duration)
	}()

	cfg := n.cfg
	n.reporter.Step("Native environment detected - launching browser locally")

	step := startStep(n.obs, ModeNative, "locate")
	path, ok := cfg.Browsers.Locate(cfg.Kind, cfg.Context)
	if !step.done(ok) {
		n.fail(res, newError(KindBrowserNotFound, nil, "Could not find %s installation", cfg.Kind))
		return res
	}
	res.BrowserFound = true
	res.BrowserPath = path

	if cfg.Lock != nil {
		release, err := cfg.Lock(cfg.Kind, cfg.Port)
		if err != nil {
			n.fail(res, newError(KindBusy, err, "Port %d is being set up by another invocation", cfg.Port))
			return res
		}
		defer release()
	}

	step = startStep(n.obs, ModeNative, "launch")
	h, err := cfg.Lifecycle.Prepare(ctx, cfg.Kind, path, cfg.Port)
	if !step.done(err == nil) {
		n.fail(res, newError(KindBrowserNotListening, err, "Failed to launch %s", cfg.Kind))
		return res
	}
	res.BrowserLaunched = true
	res.PID = h.PID

	step = startStep(n.obs, ModeNative, "listen")
	if !step.done(cfg.Lifecycle.WaitUntilListening(ctx, cfg.Port, cfg.ListenAttempts, cfg.ListenInterval)) {
		cfg.Lifecycle.Fail()
		n.fail(res, newError(KindBrowserNotListening, ctx.Err(),
			"%s is not listening on port %d", cfg.Kind, cfg.Port))
		return res
	}
	res.BrowserListening = true

	res.Success = true
	res.Endpoint = Endpoint{Host: browser.LoopbackAddr, Port: cfg.Port}
	n.reporter.Success(fmt.Sprintf("Browser launched successfully on port %d", cfg.Port))
	n.reporter.Info("Browser is running in the background")
	return res
}

func (n *Native) fail(res *NativeResult, e *Error) {
	res.Success = false
	res.Err = e
	n.reporter.Error(e.Message)
	n.logger.Warn("native_failed", "kind", string(e.Kind), "error", e.Error())
}
