// Package main provides the go-wsl-devkit CLI entry point.
//
// go-wsl-devkit launches a browser with remote debugging enabled and makes
// its debugging port reachable from WSL. Run inside WSL it drives the
// Windows build of itself over PowerShell interop; run on Windows it
// launches the browser and installs a netsh portproxy rule on the WSL
// adapter.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/config"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/metrics"
	"github.com/randomizedcoder/go-wsl-devkit/internal/netcheck"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-wsl-devkit
var version = "dev"

// exitInterrupted is returned when the run was cancelled by a signal.
const exitInterrupted = 130

func main() {
	os.Exit(run())
}

// app carries what every mode needs.
type app struct {
	cfg       *config.Config
	context   env.Context
	kind      browser.Kind
	runID     string
	logger    *slog.Logger
	console   *report.Console
	collector *metrics.Collector
	runner    process.Runner
	verifier  *netcheck.Verifier
	locator   *browser.Locator
}

func run() int {
	cfg, err := config.ParseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, config.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if cfg.Version {
		fmt.Printf("go-wsl-devkit %s\n", version)
		return 0
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	runID := cfg.RunID
	if runID == "" {
		runID = logging.NewRunID()
	}

	// The dashboard owns the terminal; logs would corrupt it.
	var logger *slog.Logger
	if cfg.Mode() == config.ModeWatch {
		logger = logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.LogLevel)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logger = logging.WithRun(logger, runID)
	logging.SetDefault(logger)

	kind, _ := browser.ParseKind(cfg.Browser) // checked by Validate
	envCtx := env.Detect()

	a := &app{
		cfg:      cfg,
		context:  envCtx,
		kind:     kind,
		runID:    runID,
		logger:   logger,
		console:  report.NewConsole(report.ConsoleOptions{NoColor: cfg.NoColor}),
		runner:   process.NewExecRunner(30 * time.Second),
		verifier: netcheck.NewVerifier(),
		locator:  browser.NewLocator(),
		collector: metrics.NewCollector(metrics.CollectorConfig{
			Version: version,
			Context: envCtx.String(),
			Browser: string(kind),
			Port:    cfg.Port,
		}),
	}

	logger.Info("starting",
		"version", version,
		"mode", string(cfg.Mode()),
		"context", envCtx.String(),
		"browser", string(kind),
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, a.collector.Registry(), logger)
		srv.SetReadiness(a.collector.Ready)
		if err := srv.Start(); err != nil {
			a.console.Error(err.Error())
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	code := a.dispatch(ctx)

	if cfg.MetricsFile != "" {
		if err := a.collector.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("metrics_file_failed", "path", cfg.MetricsFile, "error", err)
		}
	}

	if ctx.Err() != nil && code != 0 {
		a.console.Info("Interrupted")
		return exitInterrupted
	}
	return code
}

// dispatch runs the selected mode and returns the exit code.
func (a *app) dispatch(ctx context.Context) int {
	mode := a.cfg.Mode()
	if mode != config.ModeWatch && mode != config.ModePrintCmd {
		a.console.Header("WSL Dev Kit - Browser Debug Bridge")
	}

	switch mode {
	case config.ModeServe, config.ModeTest:
		return a.runServe(ctx, mode == config.ModeTest)
	case config.ModeDiagnose:
		a.runDiagnose(ctx)
		return 0
	case config.ModeValidate:
		a.console.Info("Running validation check...")
		if a.runDiagnose(ctx).Valid() {
			a.console.Success("Validation PASSED")
			return 0
		}
		a.console.Error("Validation FAILED")
		return 1
	case config.ModeDetectOnly:
		return a.runDetectOnly(ctx)
	case config.ModeCleanup:
		return a.runCleanup(ctx)
	case config.ModeWatch:
		return a.runWatch(ctx)
	case config.ModePrintCmd:
		return a.runPrintCmd(ctx)
	default:
		return a.runBridge(ctx)
	}
}
