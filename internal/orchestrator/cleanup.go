package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/privilege"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// Terminator kills running instances of a browser kind.
type Terminator interface {
	Terminate(ctx context.Context, kind browser.Kind)
}

// RelayRemover removes the relay rule.
type RelayRemover interface {
	Remove(ctx context.Context, listenAddr string, port int) (bool, error)
}

// CleanupConfig holds the collaborators of --cleanup.
type CleanupConfig struct {
	Kind    browser.Kind
	Port    int
	Context env.Context

	Terminator Terminator

	// Privilege, Adapters and Relay are only consulted on the Windows host.
	Privilege privilege.Checker
	Adapters  AdapterFinder
	Relay     RelayRemover

	Reporter report.Reporter
	Logger   *slog.Logger
	Observer Observer
}

// Cleanup undoes a setup: the browser is terminated and, on the Windows
// host with privilege, the relay rule is removed. Every step is best
// effort.
func Cleanup(ctx context.Context, cfg CleanupConfig) *CleanupResult {
	start := time.Now()
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = report.Silent{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = noopObserver{}
	}

	res := &CleanupResult{}
	reporter.Step("Cleaning up")

	cfg.Terminator.Terminate(ctx, cfg.Kind)
	res.Terminated = true

	if cfg.Context.IsWindowsHost() && cfg.Privilege != nil && cfg.Adapters != nil && cfg.Relay != nil {
		if !cfg.Privilege.IsElevated() {
			reporter.Warning("Administrator privileges required for port forwarding cleanup")
		} else if addr, err := cfg.Adapters.Find(ctx); err != nil {
			logger.Debug("cleanup_no_adapter", "error", err)
		} else {
			res.AdapterAddr = addr
			removed, err := cfg.Relay.Remove(ctx, addr, cfg.Port)
			if err != nil {
				reporter.Warning("Port forwarding cleanup issue: " + err.Error())
			}
			res.RelayRemoved = removed
		}
	}

	obs.ObserveRun(ModeCleanup, true, "", time.Since(start))
	reporter.Success("Cleanup complete")
	return res
}
