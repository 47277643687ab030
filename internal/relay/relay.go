// Package relay manages the netsh portproxy rule that republishes the
// browser's loopback debugging port on the guest-facing adapter.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/privilege"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// ErrPermissionDenied is returned when the relay is changed without
// elevated privilege.
var ErrPermissionDenied = errors.New("administrator privileges required to configure port forwarding")

// netshBinary is the network configuration tool.
const netshBinary = "netsh"

// Substrings netsh prints when a rule being deleted is not there.
var absentMarkers = []string{
	"does not exist",
	"cannot find",
	"element not found",
}

// Rule forwards ListenAddr:ListenPort to ConnectAddr:ConnectPort.
type Rule struct {
	ListenAddr  string
	ListenPort  int
	ConnectAddr string
	ConnectPort int
}

// NewRule returns the rule publishing the loopback port on listenAddr.
// The connect side is always loopback.
func NewRule(listenAddr string, port int) Rule {
	return Rule{
		ListenAddr:  listenAddr,
		ListenPort:  port,
		ConnectAddr: browser.LoopbackAddr,
		ConnectPort: port,
	}
}

// String renders the rule as listen -> connect.
func (r Rule) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", r.ListenAddr, r.ListenPort, r.ConnectAddr, r.ConnectPort)
}

func (r Rule) addArgs() []string {
	return []string{
		"interface", "portproxy", "add", "v4tov4",
		"listenaddress=" + r.ListenAddr,
		"listenport=" + strconv.Itoa(r.ListenPort),
		"connectaddress=" + r.ConnectAddr,
		"connectport=" + strconv.Itoa(r.ConnectPort),
	}
}

func deleteArgs(listenAddr string, port int) []string {
	return []string{
		"interface", "portproxy", "delete", "v4tov4",
		"listenaddress=" + listenAddr,
		"listenport=" + strconv.Itoa(port),
	}
}

var showArgs = []string{"interface", "portproxy", "show", "v4tov4"}

// Manager installs and removes relay rules.
type Manager struct {
	runner    process.Runner
	privilege privilege.Checker
	reporter  report.Reporter
	logger    *slog.Logger
	verbose   bool
}

// NewManager creates a Manager. reporter and logger may be nil.
func NewManager(runner process.Runner, checker privilege.Checker, reporter report.Reporter, logger *slog.Logger) *Manager {
	if reporter == nil {
		reporter = report.Silent{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		runner:    runner,
		privilege: checker,
		reporter:  reporter,
		logger:    logger,
	}
}

// SetVerbose makes every line of netsh output go to the debug log.
func (m *Manager) SetVerbose(v bool) {
	m.verbose = v
}

// Install replaces any rule on listenAddr:port with one forwarding to
// loopback. Installing the same rule twice leaves the same rule set as
// installing it once.
func (m *Manager) Install(ctx context.Context, listenAddr string, port int) (bool, error) {
	if !m.privilege.IsElevated() {
		return false, ErrPermissionDenied
	}
	rule := NewRule(listenAddr, port)
	m.reporter.Step(fmt.Sprintf("Setting up port forwarding %s", rule))

	// Whatever the delete says, the add below decides the outcome.
	if res, err := m.runner.Run(ctx, netshBinary, deleteArgs(listenAddr, port)...); err != nil {
		m.logger.Debug("relay_delete_failed", "rule", rule.String(), "error", err)
	} else {
		m.logger.Debug("relay_delete", "rule", rule.String(), "exit_code", res.ExitCode)
	}

	res, err := m.runner.Run(ctx, netshBinary, rule.addArgs()...)
	if err != nil {
		return false, fmt.Errorf("netsh add: %w", err)
	}
	if !res.Success() {
		out := m.capture(res)
		m.reporter.Error(fmt.Sprintf("Failed to set up port forwarding: %s", out))
		return false, nil
	}

	m.logger.Info("relay_installed", "rule", rule.String())
	m.reporter.Success(fmt.Sprintf("Port forwarding configured: %s", rule))
	return true, nil
}

// Remove deletes the rule on listenAddr:port. A rule that is already
// gone counts as removed.
func (m *Manager) Remove(ctx context.Context, listenAddr string, port int) (bool, error) {
	if !m.privilege.IsElevated() {
		return false, ErrPermissionDenied
	}

	res, err := m.runner.Run(ctx, netshBinary, deleteArgs(listenAddr, port)...)
	if err != nil {
		return false, fmt.Errorf("netsh delete: %w", err)
	}
	if res.Success() || isAbsent(res) {
		m.logger.Info("relay_removed", "listen", listenAddr, "port", port)
		m.reporter.Success(fmt.Sprintf("Removed port forwarding rule for %s:%d", listenAddr, port))
		return true, nil
	}

	out := m.capture(res)
	m.reporter.Warning(fmt.Sprintf("Could not remove port forwarding rule: %s", out))
	return false, nil
}

// Exists reports whether a rule for listenAddr:port is installed. It is
// used for diagnostics only.
func (m *Manager) Exists(ctx context.Context, listenAddr string, port int) bool {
	rules, err := m.Rules(ctx)
	if err != nil {
		return false
	}
	for _, r := range rules {
		if r.ListenAddr == listenAddr && r.ListenPort == port {
			return true
		}
	}
	return false
}

// Rules lists the installed v4tov4 rules.
func (m *Manager) Rules(ctx context.Context) ([]Rule, error) {
	res, err := m.runner.Run(ctx, netshBinary, showArgs...)
	if err != nil {
		return nil, fmt.Errorf("netsh show: %w", err)
	}
	if !res.Success() {
		return nil, fmt.Errorf("netsh show: exit %d: %s", res.ExitCode, res.Output())
	}
	return ParseRules(res.Stdout), nil
}

// ParseRules extracts rules from `netsh interface portproxy show v4tov4`
// output. Header and separator lines are skipped.
func ParseRules(out string) []Rule {
	var rules []Rule
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) != 4 {
			continue
		}
		lp, err1 := strconv.Atoi(f[1])
		cp, err2 := strconv.Atoi(f[3])
		if err1 != nil || err2 != nil {
			continue
		}
		rules = append(rules, Rule{ListenAddr: f[0], ListenPort: lp, ConnectAddr: f[2], ConnectPort: cp})
	}
	return rules
}

// FormatRules renders rules the way netsh shows them.
func FormatRules(rules []Rule) string {
	var b strings.Builder
	b.WriteString("\nListen on ipv4:             Connect to ipv4:\n\n")
	b.WriteString("Address         Port        Address         Port\n")
	b.WriteString("--------------- ----------  --------------- ----------\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "%-15s %-10d  %-15s %d\n", r.ListenAddr, r.ListenPort, r.ConnectAddr, r.ConnectPort)
	}
	return b.String()
}

func isAbsent(res *process.Result) bool {
	out := strings.ToLower(res.Stdout + " " + res.Stderr)
	for _, m := range absentMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

// capture logs netsh output and returns a one-line summary.
func (m *Manager) capture(res *process.Result) string {
	buf := logging.NewOutputBuffer(netshBinary, m.logger, m.verbose)
	buf.AddText(res.Stdout)
	buf.AddText(res.Stderr)
	if s := buf.Summary(3); s != "" {
		return s
	}
	return fmt.Sprintf("exit status %d", res.ExitCode)
}
