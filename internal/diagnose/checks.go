// Package diagnose runs the diagnostic report behind --diagnose and
// --validate.
package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/netcheck"
	"github.com/randomizedcoder/go-wsl-devkit/internal/network"
	"github.com/randomizedcoder/go-wsl-devkit/internal/privilege"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// Defaults for the port and latency checks.
const (
	DefaultPortTimeout    = time.Second
	DefaultLatencySamples = 5
)

// Check names.
const (
	CheckContext   = "context"
	CheckBrowser   = "browser"
	CheckPrivilege = "privilege"
	CheckAdapter   = "adapter"
	CheckHost      = "host"
	CheckRelayRule = "relay_rule"
	CheckPort      = "port"
	CheckLatency   = "latency"
	CheckProtocol  = "protocol"
)

// Check represents the result of a single diagnostic check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Info    bool   // Informational only, never fails
	Message string // Additional context
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	switch {
	case !c.Passed:
		status = "✗"
	case c.Warning:
		status = "⚠"
	case c.Info:
		status = "•"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Result holds the results of all diagnostic checks.
type Result struct {
	Context        env.Context
	Checks         []Check
	BrowserFound   bool
	BrowserPath    string
	Elevated       bool
	AdapterIP      string
	HostIP         string
	HostSource     network.HostSource
	RuleExists     bool
	CheckedAddr    string
	PortAccessible bool
	Latency        *netcheck.LatencyStats
	Protocol       *netcheck.ProtocolVersion
}

// Valid reports the --validate verdict: browser found and port accessible.
func (r *Result) Valid() bool {
	return r.BrowserFound && r.PortAccessible
}

// Check returns the named check and whether it ran.
func (r *Result) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
}

// BrowserFinder resolves a browser's install path.
type BrowserFinder interface {
	Locate(k browser.Kind, ctx env.Context) (string, bool)
}

// AdapterFinder returns the guest-facing adapter address.
type AdapterFinder interface {
	Find(ctx context.Context) (string, error)
}

// HostFinder returns the control host address seen from the guest.
type HostFinder interface {
	Find(ctx context.Context) (string, network.HostSource, error)
}

// RuleChecker reports whether a relay rule is installed.
type RuleChecker interface {
	Exists(ctx context.Context, listenAddr string, port int) bool
}

// Prober is the subset of netcheck.Verifier used by the port checks.
type Prober interface {
	CanReach(ctx context.Context, host string, port int, timeout time.Duration) bool
	MeasureLatency(ctx context.Context, host string, port, samples int, timeout time.Duration) netcheck.LatencyStats
	ProbeWebSocket(ctx context.Context, host string, port int, timeout time.Duration) (*netcheck.ProtocolVersion, error)
}

// Config holds the inputs of a diagnostic run. Adapters and Rules are only
// consulted on the control side; Hosts only in the guest.
type Config struct {
	Context   env.Context
	Kind      browser.Kind
	Port      int
	Browsers  BrowserFinder
	Privilege privilege.Checker
	Adapters  AdapterFinder
	Hosts     HostFinder
	Rules     RuleChecker
	Prober    Prober

	PortTimeout    time.Duration
	LatencySamples int  // 0 means default, negative disables
	Deep           bool // websocket handshake with Browser.getVersion

	Logger *slog.Logger
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg Config) *Result {
	if cfg.PortTimeout <= 0 {
		cfg.PortTimeout = DefaultPortTimeout
	}
	if cfg.LatencySamples == 0 {
		cfg.LatencySamples = DefaultLatencySamples
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	r := &Result{Context: cfg.Context}

	r.add(Check{Name: CheckContext, Passed: true, Info: true, Message: cfg.Context.String()})

	r.add(checkBrowser(cfg, r))
	r.add(checkPrivilege(cfg, r))

	switch cfg.Context {
	case env.ControlNative:
		r.add(checkAdapter(ctx, cfg, r))
		r.add(checkRelayRule(ctx, cfg, r))
	case env.GuestVirtualized:
		r.add(checkHost(ctx, cfg, r))
	}

	r.add(checkPort(ctx, cfg, r))

	if r.PortAccessible && cfg.LatencySamples > 0 {
		r.add(checkLatency(ctx, cfg, r))
	}
	if r.PortAccessible && cfg.Deep {
		r.add(checkProtocol(ctx, cfg, r))
	}

	cfg.Logger.Debug("diagnose_complete",
		"context", cfg.Context.String(),
		"browser_found", r.BrowserFound,
		"port_accessible", r.PortAccessible,
		"valid", r.Valid())

	return r
}

// checkBrowser verifies the browser executable can be found.
func checkBrowser(cfg Config, r *Result) Check {
	path, ok := cfg.Browsers.Locate(cfg.Kind, cfg.Context)
	if !ok {
		return Check{
			Name:    CheckBrowser,
			Passed:  false,
			Message: fmt.Sprintf("%s not found", cfg.Kind),
		}
	}
	r.BrowserFound = true
	r.BrowserPath = path
	return Check{
		Name:    CheckBrowser,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkPrivilege reports administrative rights. Only meaningful on the
// control host.
func checkPrivilege(cfg Config, r *Result) Check {
	if !cfg.Context.IsWindowsHost() || cfg.Privilege == nil {
		return Check{Name: CheckPrivilege, Passed: true, Info: true, Message: "N/A (not Windows)"}
	}
	r.Elevated = cfg.Privilege.IsElevated()
	if r.Elevated {
		return Check{Name: CheckPrivilege, Passed: true, Message: "Yes"}
	}
	return Check{Name: CheckPrivilege, Passed: true, Warning: true, Message: "No (relay rules need an elevated shell)"}
}

func checkAdapter(ctx context.Context, cfg Config, r *Result) Check {
	if cfg.Adapters == nil {
		return Check{Name: CheckAdapter, Passed: true, Warning: true, Message: "not checked"}
	}
	ip, err := cfg.Adapters.Find(ctx)
	if err != nil {
		cfg.Logger.Debug("diagnose_adapter_error", "error", err)
		return Check{Name: CheckAdapter, Passed: true, Warning: true, Message: "WSL adapter not found"}
	}
	r.AdapterIP = ip
	return Check{Name: CheckAdapter, Passed: true, Message: ip}
}

func checkHost(ctx context.Context, cfg Config, r *Result) Check {
	if cfg.Hosts == nil {
		return Check{Name: CheckHost, Passed: true, Warning: true, Message: "not checked"}
	}
	ip, source, err := cfg.Hosts.Find(ctx)
	if err != nil {
		cfg.Logger.Debug("diagnose_host_error", "error", err)
		return Check{Name: CheckHost, Passed: true, Warning: true, Message: "Windows host address not found"}
	}
	r.HostIP = ip
	r.HostSource = source
	return Check{Name: CheckHost, Passed: true, Message: fmt.Sprintf("%s (from %s)", ip, source)}
}

// checkRelayRule needs privilege and a known adapter address; otherwise
// it is skipped.
func checkRelayRule(ctx context.Context, cfg Config, r *Result) Check {
	if !r.Elevated || r.AdapterIP == "" || cfg.Rules == nil {
		return Check{Name: CheckRelayRule, Passed: true, Info: true, Message: "skipped (needs privilege and adapter address)"}
	}
	target := netcheck.Addr(r.AdapterIP, cfg.Port)
	if cfg.Rules.Exists(ctx, r.AdapterIP, cfg.Port) {
		r.RuleExists = true
		return Check{Name: CheckRelayRule, Passed: true, Message: fmt.Sprintf("rule exists for %s", target)}
	}
	return Check{Name: CheckRelayRule, Passed: true, Warning: true, Message: fmt.Sprintf("no rule for %s", target)}
}

// checkPort makes one bounded connect to the endpoint the user would
// attach to: the host address in the guest, loopback elsewhere.
func checkPort(ctx context.Context, cfg Config, r *Result) Check {
	host := browser.LoopbackAddr
	if cfg.Context == env.GuestVirtualized && r.HostIP != "" {
		host = r.HostIP
	}
	r.CheckedAddr = netcheck.Addr(host, cfg.Port)

	if cfg.Prober.CanReach(ctx, host, cfg.Port, cfg.PortTimeout) {
		r.PortAccessible = true
		return Check{Name: CheckPort, Passed: true, Message: fmt.Sprintf("%s is accessible", r.CheckedAddr)}
	}
	return Check{Name: CheckPort, Passed: false, Message: fmt.Sprintf("%s is NOT accessible", r.CheckedAddr)}
}

func checkLatency(ctx context.Context, cfg Config, r *Result) Check {
	host, port := r.checkedHost(), cfg.Port
	stats := cfg.Prober.MeasureLatency(ctx, host, port, cfg.LatencySamples, cfg.PortTimeout)
	r.Latency = &stats

	msg := fmt.Sprintf("p50 %s, p95 %s, max %s over %d samples",
		round(stats.P50), round(stats.P95), round(stats.Max), stats.Samples)
	if stats.Failures > 0 {
		return Check{
			Name:    CheckLatency,
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s (%d failed)", msg, stats.Failures),
		}
	}
	return Check{Name: CheckLatency, Passed: true, Message: msg}
}

func checkProtocol(ctx context.Context, cfg Config, r *Result) Check {
	pv, err := cfg.Prober.ProbeWebSocket(ctx, r.checkedHost(), cfg.Port, cfg.PortTimeout*2)
	if err != nil {
		return Check{Name: CheckProtocol, Passed: true, Warning: true, Message: err.Error()}
	}
	r.Protocol = pv
	return Check{
		Name:    CheckProtocol,
		Passed:  true,
		Message: fmt.Sprintf("%s (protocol %s)", pv.Product, pv.ProtocolVersion),
	}
}

func (r *Result) checkedHost() string {
	if r.Context == env.GuestVirtualized && r.HostIP != "" {
		return r.HostIP
	}
	return browser.LoopbackAddr
}

func round(d time.Duration) time.Duration {
	return d.Round(10 * time.Microsecond)
}

// PrintResults writes the check results to the reporter.
func PrintResults(rep report.Reporter, r *Result) {
	rep.Step("Diagnostic checks:")
	for _, check := range r.Checks {
		line := check.String()
		switch {
		case !check.Passed:
			rep.Error(line)
			rep.Info("    Fix: " + suggestFix(check.Name, r.Context))
		case check.Warning:
			rep.Warning(line)
			if fix := suggestFix(check.Name, r.Context); fix != "" {
				rep.Info("    Fix: " + fix)
			}
		case check.Info:
			rep.Info(line)
		default:
			rep.Success(line)
		}
	}
}

// suggestFix returns a suggestion for fixing a failed or warning check.
func suggestFix(name string, ctx env.Context) string {
	switch name {
	case CheckBrowser:
		return "install the browser or add its directory to PATH"
	case CheckPrivilege:
		return "run from an elevated (Administrator) shell"
	case CheckAdapter:
		return "start a WSL distribution so the vEthernet (WSL) adapter exists"
	case CheckHost:
		return "check /etc/resolv.conf and `ip route` inside WSL"
	case CheckRelayRule:
		return "run go-wsl-devkit without flags from WSL or an elevated Windows shell"
	case CheckPort:
		if ctx == env.GuestVirtualized {
			return "run go-wsl-devkit to launch the browser and install the relay, and check the Windows firewall"
		}
		return "launch the browser with go-wsl-devkit"
	case CheckLatency:
		return "check firewall or VPN software between WSL and Windows"
	case CheckProtocol:
		return "the port is held by something other than a debugging browser; run --cleanup"
	default:
		return ""
	}
}
