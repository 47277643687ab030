package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/diagnose"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/lifecycle"
	"github.com/randomizedcoder/go-wsl-devkit/internal/metrics"
	"github.com/randomizedcoder/go-wsl-devkit/internal/netcheck"
	"github.com/randomizedcoder/go-wsl-devkit/internal/network"
	"github.com/randomizedcoder/go-wsl-devkit/internal/orchestrator"
	"github.com/randomizedcoder/go-wsl-devkit/internal/privilege"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
	"github.com/randomizedcoder/go-wsl-devkit/internal/relay"
	"github.com/randomizedcoder/go-wsl-devkit/internal/remote"
	"github.com/randomizedcoder/go-wsl-devkit/internal/testpage"
	"github.com/randomizedcoder/go-wsl-devkit/internal/tui"
)

// runBridge performs the launch for the detected context.
func (a *app) runBridge(ctx context.Context) int {
	switch a.context {
	case env.ControlNative:
		return a.runControl(ctx)
	case env.GuestVirtualized:
		return a.runGuest(ctx)
	case env.OtherLinux, env.OtherMacOS:
		return a.runNative(ctx)
	default:
		a.console.Error("Unsupported operating system")
		return 1
	}
}

func (a *app) runControl(ctx context.Context) int {
	adapters, err := a.adapterFinder()
	if err != nil {
		a.console.Error(err.Error())
		return 1
	}

	rl := relay.NewManager(a.runner, privilege.System(), a.console, a.logger)
	rl.SetVerbose(a.cfg.Verbose)

	res := orchestrator.NewControl(orchestrator.ControlConfig{
		Kind:           a.kind,
		Port:           a.cfg.Port,
		ListenAttempts: a.cfg.ListenAttempts,
		ListenInterval: a.cfg.ListenInterval,
		Privilege:      privilege.System(),
		Adapters:       adapters,
		Browsers:       a.locator,
		Lifecycle:      a.lifecycle(),
		Relay:          rl,
		Lock:           orchestrator.FileLock(a.lockDir()),
		Reporter:       a.console,
		Logger:         a.logger,
		Observer:       a.collector,
	}).Run(ctx)

	if res.Success {
		a.console.Success(fmt.Sprintf("Debugging endpoint ready at %s", res.Endpoint))
	}
	return orchestrator.ExitCode(res.Success)
}

func (a *app) runGuest(ctx context.Context) int {
	res := a.guest().Run(ctx)
	if res.Success {
		a.console.Success(fmt.Sprintf("Debugging endpoint ready at %s", res.Endpoint))
	}
	return orchestrator.ExitCode(res.Success)
}

func (a *app) runNative(ctx context.Context) int {
	res := orchestrator.NewNative(orchestrator.NativeConfig{
		Kind:           a.kind,
		Port:           a.cfg.Port,
		Context:        a.context,
		ListenAttempts: a.cfg.ListenAttempts,
		ListenInterval: a.cfg.ListenInterval,
		Browsers:       a.locator,
		Lifecycle:      a.lifecycle(),
		Lock:           orchestrator.FileLock(a.lockDir()),
		Reporter:       a.console,
		Logger:         a.logger,
		Observer:       a.collector,
	}).Run(ctx)

	if res.Success {
		a.console.Success(fmt.Sprintf("Debugging endpoint ready at %s", res.Endpoint))
	}
	return orchestrator.ExitCode(res.Success)
}

// runCleanup terminates the browser. In the guest the Windows side is
// asked to clean up as well when its binary can be found.
func (a *app) runCleanup(ctx context.Context) int {
	cfg := orchestrator.CleanupConfig{
		Kind:       a.kind,
		Port:       a.cfg.Port,
		Context:    a.context,
		Terminator: a.lifecycle(),
		Reporter:   a.console,
		Logger:     a.logger,
		Observer:   a.collector,
	}
	if a.context == env.ControlNative {
		adapters, err := a.adapterFinder()
		if err != nil {
			a.console.Warning(err.Error())
		} else {
			cfg.Adapters = adapters
		}
		cfg.Privilege = privilege.System()
		cfg.Relay = relay.NewManager(a.runner, privilege.System(), a.console, a.logger)
	}
	orchestrator.Cleanup(ctx, cfg)

	if a.context == env.GuestVirtualized {
		a.remoteCleanup(ctx)
	}
	return 0
}

func (a *app) remoteCleanup(ctx context.Context) {
	binary, err := a.windowsBinary(ctx)
	if err != nil {
		a.logger.Debug("remote_cleanup_skipped", "error", err)
		return
	}
	g := a.guestConfig()
	g.ExtraArgs = append(g.ExtraArgs, "--cleanup")
	inv := orchestrator.NewGuest(g).Invocation(binary)

	res, err := a.remoteExecutor().Run(ctx, inv)
	switch {
	case err != nil:
		a.console.Warning(fmt.Sprintf("Windows-side cleanup failed: %v", err))
	case !res.Success():
		a.console.Warning(fmt.Sprintf("Windows-side cleanup exited with code %d", res.ExitCode))
	default:
		a.console.Success("Windows-side cleanup complete")
	}
}

// runDiagnose prints the diagnostic report and returns it.
func (a *app) runDiagnose(ctx context.Context) *diagnose.Result {
	cfg := diagnose.Config{
		Context:        a.context,
		Kind:           a.kind,
		Port:           a.cfg.Port,
		Browsers:       a.locator,
		Privilege:      privilege.System(),
		Prober:         a.verifier,
		PortTimeout:    a.cfg.ConnectTimeout,
		LatencySamples: a.cfg.LatencySamples,
		Deep:           a.cfg.Deep,
		Logger:         a.logger,
	}
	if a.cfg.LatencySamples == 0 {
		cfg.LatencySamples = -1
	}

	switch a.context {
	case env.ControlNative:
		if adapters, err := a.adapterFinder(); err == nil {
			cfg.Adapters = adapters
		}
		cfg.Rules = relay.NewManager(a.runner, privilege.System(), a.console, a.logger)
	case env.GuestVirtualized:
		cfg.Hosts = network.NewHostFinder(a.runner, a.logger)
	}

	a.console.Step("Running diagnostics...")
	res := diagnose.Run(ctx, cfg)
	diagnose.PrintResults(a.console, res)
	if res.Latency != nil && res.Latency.Samples > 0 {
		a.collector.SetLatencyWindow(res.Latency.P50, res.Latency.P95, res.Latency.Max)
	}
	return res
}

func (a *app) runDetectOnly(ctx context.Context) int {
	a.console.Info(fmt.Sprintf("Context: %s", a.context))

	if a.context == env.GuestVirtualized {
		host, source, err := network.NewHostFinder(a.runner, a.logger).Find(ctx)
		if err != nil {
			a.console.Warning(err.Error())
		} else {
			a.console.Info(fmt.Sprintf("Windows host: %s (from %s)", host, source))
		}
	}

	path, ok := a.locator.Locate(a.kind, a.context)
	if !ok {
		a.console.Error(fmt.Sprintf("%s not found", a.kind))
		for _, c := range a.locator.Candidates(a.kind, a.context) {
			a.console.Info("  searched: " + c)
		}
		return 1
	}
	a.console.Success(fmt.Sprintf("Found %s: %s", a.kind, path))
	return 0
}

// runPrintCmd prints what a run would execute without executing it.
func (a *app) runPrintCmd(ctx context.Context) int {
	if a.context == env.GuestVirtualized {
		binary, err := a.windowsBinary(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		script, err := remote.Script(a.guest().Invocation(binary))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println("# PowerShell script run on the Windows host:")
		fmt.Println(script)
		return 0
	}

	path, ok := a.locator.Locate(a.kind, a.context)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: %s not found\n", a.kind)
		return 1
	}
	spec := a.lifecycle().Spec(a.kind, path, a.cfg.Port)
	fmt.Println(process.CommandString(spec.Path, spec.Args))
	return 0
}

// runServe hosts the test page until interrupted. With open set the page
// is also opened in the selected browser.
func (a *app) runServe(ctx context.Context, open bool) int {
	srv := testpage.NewServer(a.cfg.HTTPPort, a.logger)
	if err := srv.Start(); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			a.console.Error(fmt.Sprintf("Port %d is already in use. Try a different port with --http-port", a.cfg.HTTPPort))
		} else {
			a.console.Error(fmt.Sprintf("Failed to start server: %v", err))
		}
		return 1
	}
	a.console.Success(fmt.Sprintf("Test page available at %s", srv.URL()))

	if open {
		path, ok := a.locator.Locate(a.kind, a.context)
		if !ok {
			a.console.Warning(fmt.Sprintf("%s not found; open %s manually", a.kind, srv.URL()))
		} else if _, err := testpage.Open(process.SpawnerFor(a.context), path, srv.URL()); err != nil {
			a.console.Warning(fmt.Sprintf("Failed to open %s: %v", a.kind, err))
		} else {
			a.console.Success(fmt.Sprintf("Opened test page in %s", a.kind))
		}
	}

	a.console.Info("Press Ctrl+C to stop")
	if err := srv.Serve(ctx); err != nil {
		a.console.Error(err.Error())
		return 1
	}
	return 0
}

// runWatch shows the live dashboard until the user quits.
func (a *app) runWatch(ctx context.Context) int {
	host := "127.0.0.1"
	if a.context == env.GuestVirtualized {
		h, _, err := network.NewHostFinder(a.runner, a.logger).Find(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		host = h
	}

	scraper := metrics.NewEndpointScraper(host, a.cfg.Port, a.cfg.WatchInterval, a.cfg.WatchWindow,
		a.verifier, a.collector, a.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go scraper.Run(ctx)

	p := tea.NewProgram(tui.New(tui.Config{
		Context:     a.context.String(),
		Browser:     string(a.kind),
		Host:        host,
		Port:        a.cfg.Port,
		MetricsAddr: a.cfg.MetricsAddr,
		Source:      scraper,
	}), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		tui.SendQuit(p)
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// guest builds the guest orchestrator from the configuration.
func (a *app) guest() *orchestrator.Guest {
	return orchestrator.NewGuest(a.guestConfig())
}

func (a *app) guestConfig() orchestrator.GuestConfig {
	var extra []string
	if a.cfg.Verbose {
		extra = append(extra, "-v")
	}
	if a.cfg.ProfileDir != "" {
		if dir, ok := remote.DrivePath(a.cfg.ProfileDir); ok {
			extra = append(extra, "--profile-dir", dir)
		} else {
			a.logger.Warn("profile_dir_not_forwarded",
				"profile_dir", a.cfg.ProfileDir,
				"reason", "only /mnt/<drive> paths are visible to the Windows side")
		}
	}
	return orchestrator.GuestConfig{
		Kind:           a.kind,
		Port:           a.cfg.Port,
		VerifyAttempts: a.cfg.VerifyAttempts,
		VerifyInterval: a.cfg.VerifyInterval,
		ConnectTimeout: a.cfg.ConnectTimeout,
		Hosts:          network.NewHostFinder(a.runner, a.logger),
		Reach:          a.verifier,
		Remote:         a.remoteExecutor(),
		Binary:         a.windowsBinary,
		Elevate:        a.cfg.Elevate,
		RunID:          a.runID,
		ExtraArgs:      extra,
		Reporter:       a.console,
		Logger:         a.logger,
		Observer:       a.collector,
	}
}

// remoteExecutor returns the PowerShell channel. Its subprocess runner has
// no deadline of its own; --remote-timeout is the only bound.
func (a *app) remoteExecutor() *remote.Executor {
	return remote.NewPowerShellExecutor(a.cfg.RemoteTimeout, a.logger, a.cfg.Verbose)
}

// windowsBinary resolves the control-side executable as a Windows path.
func (a *app) windowsBinary(ctx context.Context) (string, error) {
	p, err := remote.NewBinaryLocator().Locate(a.cfg.WindowsBinary)
	if err != nil {
		return "", err
	}
	conv := remote.PathConverter{Runner: a.runner}
	return conv.ToWindows(ctx, p)
}

func (a *app) adapterFinder() (*network.AdapterFinder, error) {
	return network.NewAdapterFinder(a.cfg.AdapterPattern,
		network.WithPowerShellFallback(a.runner),
		network.WithLogger(a.logger))
}

func (a *app) lifecycle() *lifecycle.Manager {
	return lifecycle.New(lifecycle.Config{
		Context:        a.context,
		Runner:         a.runner,
		Spawner:        process.SpawnerFor(a.context),
		Prober:         a.verifier,
		Reporter:       a.console,
		Logger:         a.logger,
		ProfileRoot:    a.cfg.ProfileDir,
		ConnectTimeout: a.cfg.ConnectTimeout,
		Callbacks: lifecycle.Callbacks{
			OnStateChange: func(from, to lifecycle.State) {
				a.logger.Debug("browser_state", "from", from.String(), "to", to.String())
			},
			OnSpawn: func(h *process.Handle) {
				a.logger.Info("browser_spawned", "pid", h.PID)
			},
			OnPoll: func(attempt int, verified bool) {
				a.collector.ObservePoll("launch", verified)
			},
		},
	})
}

func (a *app) lockDir() string {
	if a.cfg.LockDir != "" {
		return a.cfg.LockDir
	}
	return os.TempDir()
}

// Compile-time checks that the concrete collaborators satisfy the
// orchestrator interfaces.
var (
	_ orchestrator.BrowserFinder = (*browser.Locator)(nil)
	_ orchestrator.Launcher      = (*lifecycle.Manager)(nil)
	_ orchestrator.Terminator    = (*lifecycle.Manager)(nil)
	_ orchestrator.Observer      = (*metrics.Collector)(nil)
	_ diagnose.Prober            = (*netcheck.Verifier)(nil)
)
