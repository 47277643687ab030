package config

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// ErrHelp is returned by ParseFlags when -h or --help was given. Usage has
// already been printed.
var ErrHelp = pflag.ErrHelp

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. A --config file is loaded first; flags given on the
// command line override its values.
func ParseFlags(args []string, stderr io.Writer) (*Config, error) {
	if stderr == nil {
		stderr = os.Stderr
	}

	// First pass only discovers --config. Errors surface here, with usage.
	probe := newFlagSet(DefaultConfig(), stderr)
	if err := probe.Parse(args); err != nil {
		return nil, err
	}
	configFile, _ := probe.GetString("config")

	cfg := DefaultConfig()
	if configFile != "" {
		if err := LoadFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	fs := newFlagSet(cfg, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return cfg, nil
}

// newFlagSet binds every flag to cfg, using cfg's current values as
// defaults.
func newFlagSet(cfg *Config, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("go-wsl-devkit", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	fs.Usage = func() { printUsage(fs, stderr) }

	// Target
	fs.StringVar(&cfg.Browser, "browser", cfg.Browser, `Browser to launch: "chrome", "firefox" or "librewolf"`)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Remote debugging port")

	// Modes
	fs.BoolVar(&cfg.DetectOnly, "detect-only", cfg.DetectOnly, "Only detect the context and locate the browser")
	fs.BoolVar(&cfg.Cleanup, "cleanup", cfg.Cleanup, "Terminate the browser and remove the relay rule")
	fs.BoolVar(&cfg.Diagnose, "diagnose", cfg.Diagnose, "Run full diagnostic checks")
	fs.BoolVar(&cfg.Validate, "validate", cfg.Validate, "Quick pass/fail validation check")
	fs.BoolVar(&cfg.Watch, "watch", cfg.Watch, "Live dashboard of the debugging endpoint")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the browser command (and remote script in WSL) and exit")
	fs.BoolVar(&cfg.Version, "version", cfg.Version, "Show version information and exit")

	// Test page
	fs.BoolVar(&cfg.Serve, "serve", cfg.Serve, "Serve the embedded test page over HTTP")
	fs.BoolVar(&cfg.Test, "test", cfg.Test, "Serve the test page and open it in the browser (implies --serve)")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "HTTP port for the test page (0 = any free port)")

	// Launch
	fs.StringVar(&cfg.ProfileDir, "profile-dir", cfg.ProfileDir, "Parent directory for throwaway browser profiles (default: temp dir)")
	fs.IntVar(&cfg.ListenAttempts, "listen-attempts", cfg.ListenAttempts, "Polls while waiting for the browser to listen")
	fs.DurationVar(&cfg.ListenInterval, "listen-interval", cfg.ListenInterval, "Delay between listen polls")

	// Guest / remote
	fs.IntVar(&cfg.VerifyAttempts, "verify-attempts", cfg.VerifyAttempts, "Reachability checks from WSL")
	fs.DurationVar(&cfg.VerifyInterval, "verify-interval", cfg.VerifyInterval, "Delay between reachability checks")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Timeout of a single TCP connect")
	fs.DurationVar(&cfg.RemoteTimeout, "remote-timeout", cfg.RemoteTimeout, "Timeout of the Windows-side invocation")
	fs.BoolVar(&cfg.Elevate, "elevate", cfg.Elevate, "Request elevation (UAC) for the Windows-side invocation")
	fs.StringVar(&cfg.WindowsBinary, "windows-binary", cfg.WindowsBinary, "Path of the Windows build of this tool (default: next to this binary)")

	// Control
	fs.StringVar(&cfg.AdapterPattern, "adapter-pattern", cfg.AdapterPattern, "Glob matched against Windows interface names")
	fs.StringVar(&cfg.LockDir, "lock-dir", cfg.LockDir, "Directory for per-port lock files (default: temp dir)")

	// Diagnostics
	fs.BoolVar(&cfg.Deep, "deep", cfg.Deep, "Also perform a websocket handshake with the debugger")
	fs.IntVar(&cfg.LatencySamples, "latency-samples", cfg.LatencySamples, "Connect samples for latency percentiles (0 disables)")

	// Watch
	fs.DurationVar(&cfg.WatchInterval, "watch-interval", cfg.WatchInterval, "Probe interval in watch mode")
	fs.DurationVar(&cfg.WatchWindow, "watch-window", cfg.WatchWindow, "Rolling latency window in watch mode (10s-300s)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address, e.g. 127.0.0.1:17092 (default: disabled)")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write metrics in textfile format on exit")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable coloured output")
	fs.StringVar(&cfg.RunID, "run-id", cfg.RunID, "Correlation ID for logs (default: generated)")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file; flags override its values")

	return fs
}

// printUsage prints flags grouped by category.
func printUsage(fs *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `go-wsl-devkit - browser remote-debugging bridge between WSL and Windows

Usage:
  go-wsl-devkit [flags]

Target:
`)
	printFlagCategory(fs, w, []string{"browser", "port"})

	fmt.Fprintf(w, "\nModes:\n")
	printFlagCategory(fs, w, []string{"detect-only", "cleanup", "diagnose", "validate", "watch", "print-cmd", "version"})

	fmt.Fprintf(w, "\nTest Page:\n")
	printFlagCategory(fs, w, []string{"serve", "test", "http-port"})

	fmt.Fprintf(w, "\nLaunch:\n")
	printFlagCategory(fs, w, []string{"profile-dir", "listen-attempts", "listen-interval"})

	fmt.Fprintf(w, "\nWSL / Remote:\n")
	printFlagCategory(fs, w, []string{"verify-attempts", "verify-interval", "connect-timeout", "remote-timeout", "elevate", "windows-binary"})

	fmt.Fprintf(w, "\nWindows:\n")
	printFlagCategory(fs, w, []string{"adapter-pattern", "lock-dir"})

	fmt.Fprintf(w, "\nDiagnostics:\n")
	printFlagCategory(fs, w, []string{"deep", "latency-samples", "watch-interval", "watch-window"})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(fs, w, []string{"metrics", "metrics-file", "verbose", "log-format", "log-level", "no-color", "run-id", "config"})

	fmt.Fprintf(w, `
Examples:
  # Windows (elevated): launch Chrome and expose it to WSL
  go-wsl-devkit.exe

  # WSL: drive the Windows side and verify the bridge
  go-wsl-devkit --browser firefox --port 9223

  # WSL: request UAC elevation for the Windows side
  go-wsl-devkit --elevate

  # Check an existing setup
  go-wsl-devkit --diagnose --deep

`)
}

// printFlagCategory prints flags matching the given names, in that order.
func printFlagCategory(fs *pflag.FlagSet, w io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		flagName := "--" + f.Name
		if f.Shorthand != "" {
			flagName = "-" + f.Shorthand + ", " + flagName
		}
		fmt.Fprintf(w, "  %s %s\n    \t%s", flagName, flagType(f), f.Usage)
		if showDefault(f.DefValue) {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *pflag.Flag) string {
	if t := f.Value.Type(); t != "bool" {
		return t
	}
	return ""
}

func showDefault(v string) bool {
	switch v {
	case "", "false", "0", "0s", "[]":
		return false
	}
	return true
}
