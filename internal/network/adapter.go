// Package network discovers the addresses that join the two sides of the
// bridge: the guest-facing adapter on the Windows host and the host's
// address as seen from the guest.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/gobwas/glob"

	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
)

// DefaultAdapterPattern matches the virtual switch adapter WSL creates,
// e.g. "vEthernet (WSL)" or "vEthernet (WSL (Hyper-V firewall))".
const DefaultAdapterPattern = "*WSL*"

// ErrAdapterNotFound is returned when no interface matches the pattern.
var ErrAdapterNotFound = errors.New("WSL network adapter not found")

// Interface is a named network interface and its addresses.
type Interface struct {
	Name  string
	Addrs []net.IP
}

// SystemInterfaces lists the host's interfaces with package net.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		item := Interface{Name: ifc.Name}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok {
				item.Addrs = append(item.Addrs, ipn.IP)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// AdapterFinder finds the IPv4 address of the guest-facing adapter.
type AdapterFinder struct {
	pattern    string
	matcher    glob.Glob
	interfaces func() ([]Interface, error)
	runner     process.Runner
	logger     *slog.Logger
}

// AdapterOption configures an AdapterFinder.
type AdapterOption func(*AdapterFinder)

// WithInterfaces replaces the interface lister.
func WithInterfaces(fn func() ([]Interface, error)) AdapterOption {
	return func(f *AdapterFinder) { f.interfaces = fn }
}

// WithPowerShellFallback asks PowerShell when no local interface matches.
func WithPowerShellFallback(r process.Runner) AdapterOption {
	return func(f *AdapterFinder) { f.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(f *AdapterFinder) { f.logger = l }
}

// NewAdapterFinder compiles pattern (case-insensitive glob; empty means
// DefaultAdapterPattern).
func NewAdapterFinder(pattern string, opts ...AdapterOption) (*AdapterFinder, error) {
	if pattern == "" {
		pattern = DefaultAdapterPattern
	}
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid adapter pattern %q: %w", pattern, err)
	}
	f := &AdapterFinder{
		pattern:    pattern,
		matcher:    g,
		interfaces: SystemInterfaces,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Pattern returns the adapter name pattern.
func (f *AdapterFinder) Pattern() string {
	return f.pattern
}

// Match reports whether an interface name matches the pattern.
func (f *AdapterFinder) Match(name string) bool {
	return f.matcher.Match(strings.ToLower(name))
}

// Find returns the first IPv4 address on a matching interface.
func (f *AdapterFinder) Find(ctx context.Context) (string, error) {
	ifaces, err := f.interfaces()
	if err != nil {
		f.logger.Debug("interface_list_failed", "error", err)
	}
	for _, ifc := range ifaces {
		if !f.Match(ifc.Name) {
			continue
		}
		for _, ip := range ifc.Addrs {
			if v4 := ip.To4(); v4 != nil {
				f.logger.Debug("adapter_found", "name", ifc.Name, "addr", v4.String())
				return v4.String(), nil
			}
		}
	}

	if f.runner != nil {
		addr, err := f.queryPowerShell(ctx)
		if err == nil {
			return addr, nil
		}
		f.logger.Debug("adapter_powershell_failed", "error", err)
	}
	return "", ErrAdapterNotFound
}

func (f *AdapterFinder) queryPowerShell(ctx context.Context) (string, error) {
	script := fmt.Sprintf(
		"Get-NetIPAddress -InterfaceAlias '%s' -AddressFamily IPv4 | Select-Object -ExpandProperty IPAddress",
		strings.ReplaceAll(f.pattern, "'", "''"))
	res, err := f.runner.Run(ctx, "powershell.exe", "-NoProfile", "-Command", script)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("Get-NetIPAddress: exit %d: %s", res.ExitCode, res.Output())
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		ip := net.ParseIP(strings.TrimSpace(line))
		if ip != nil && ip.To4() != nil {
			return ip.To4().String(), nil
		}
	}
	return "", ErrAdapterNotFound
}
