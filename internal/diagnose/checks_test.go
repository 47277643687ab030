package diagnose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/netcheck"
	"github.com/randomizedcoder/go-wsl-devkit/internal/network"
	"github.com/randomizedcoder/go-wsl-devkit/internal/privilege"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeBrowsers struct{ path string }

func (f fakeBrowsers) Locate(browser.Kind, env.Context) (string, bool) {
	return f.path, f.path != ""
}

type fakeAdapters struct {
	ip  string
	err error
}

func (f fakeAdapters) Find(context.Context) (string, error) { return f.ip, f.err }

type fakeHosts struct {
	ip  string
	err error
}

func (f fakeHosts) Find(context.Context) (string, network.HostSource, error) {
	return f.ip, network.SourceResolvConf, f.err
}

type fakeRules struct{ exists bool }

func (f fakeRules) Exists(context.Context, string, int) bool { return f.exists }

type fakeProber struct {
	reachable bool
	hosts     []string
	stats     netcheck.LatencyStats
	version   *netcheck.ProtocolVersion
	wsErr     error
}

func (f *fakeProber) CanReach(_ context.Context, host string, _ int, _ time.Duration) bool {
	f.hosts = append(f.hosts, host)
	return f.reachable
}

func (f *fakeProber) MeasureLatency(context.Context, string, int, int, time.Duration) netcheck.LatencyStats {
	return f.stats
}

func (f *fakeProber) ProbeWebSocket(context.Context, string, int, time.Duration) (*netcheck.ProtocolVersion, error) {
	return f.version, f.wsErr
}

func baseConfig(ctx env.Context, p *fakeProber) Config {
	return Config{
		Context:   ctx,
		Kind:      browser.Chrome,
		Port:      9222,
		Browsers:  fakeBrowsers{path: "/usr/bin/google-chrome"},
		Privilege: privilege.Static(true),
		Adapters:  fakeAdapters{ip: "172.20.0.1"},
		Hosts:     fakeHosts{ip: "172.20.0.1"},
		Rules:     fakeRules{exists: true},
		Prober:    p,
	}
}

// =============================================================================
// Tests: Check
// =============================================================================

func TestCheck_String(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		want  string
	}{
		{name: "passed", check: Check{Name: "browser", Passed: true, Message: "found"}, want: "✓ browser: found"},
		{name: "failed", check: Check{Name: "port", Message: "closed"}, want: "✗ port: closed"},
		{name: "warning", check: Check{Name: "adapter", Passed: true, Warning: true, Message: "missing"}, want: "⚠ adapter: missing"},
		{name: "info", check: Check{Name: "context", Passed: true, Info: true, Message: "wsl"}, want: "• context: wsl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "  "+tt.want, tt.check.String())
		})
	}
}

// =============================================================================
// Tests: Run
// =============================================================================

func TestRun_Guest(t *testing.T) {
	p := &fakeProber{reachable: true, stats: netcheck.LatencyStats{Samples: 5, P50: time.Millisecond}}
	r := Run(context.Background(), baseConfig(env.GuestVirtualized, p))

	assert.True(t, r.Valid())
	assert.Equal(t, "172.20.0.1", r.HostIP)
	assert.Equal(t, "172.20.0.1:9222", r.CheckedAddr)
	assert.Equal(t, []string{"172.20.0.1"}, p.hosts)

	_, ok := r.Check(CheckAdapter)
	assert.False(t, ok, "adapter check is control-side only")
	_, ok = r.Check(CheckRelayRule)
	assert.False(t, ok)

	priv, ok := r.Check(CheckPrivilege)
	require.True(t, ok)
	assert.True(t, priv.Info)

	require.NotNil(t, r.Latency)
	assert.Equal(t, 5, r.Latency.Samples)
}

func TestRun_GuestWithoutHostFallsBackToLoopback(t *testing.T) {
	p := &fakeProber{reachable: false}
	cfg := baseConfig(env.GuestVirtualized, p)
	cfg.Hosts = fakeHosts{err: network.ErrHostUnknown}

	r := Run(context.Background(), cfg)

	assert.False(t, r.Valid())
	assert.Equal(t, []string{"127.0.0.1"}, p.hosts)
	host, _ := r.Check(CheckHost)
	assert.True(t, host.Warning)
	port, _ := r.Check(CheckPort)
	assert.False(t, port.Passed)
	assert.Nil(t, r.Latency, "no latency measurement when the port is closed")
}

func TestRun_Control(t *testing.T) {
	tests := []struct {
		name        string
		elevated    bool
		adapter     fakeAdapters
		ruleExists  bool
		wantRule    bool
		wantWarning bool
		wantInfo    bool
	}{
		{name: "rule present", elevated: true, adapter: fakeAdapters{ip: "172.20.0.1"}, ruleExists: true, wantRule: true},
		{name: "rule missing", elevated: true, adapter: fakeAdapters{ip: "172.20.0.1"}, wantWarning: true},
		{name: "not elevated", elevated: false, adapter: fakeAdapters{ip: "172.20.0.1"}, ruleExists: true, wantInfo: true},
		{name: "no adapter", elevated: true, adapter: fakeAdapters{err: errors.New("none")}, ruleExists: true, wantInfo: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(env.ControlNative, &fakeProber{reachable: true})
			cfg.Privilege = privilege.Static(tt.elevated)
			cfg.Adapters = tt.adapter
			cfg.Rules = fakeRules{exists: tt.ruleExists}
			cfg.LatencySamples = -1

			r := Run(context.Background(), cfg)

			assert.Equal(t, tt.wantRule, r.RuleExists)
			c, ok := r.Check(CheckRelayRule)
			require.True(t, ok)
			assert.Equal(t, tt.wantWarning, c.Warning)
			assert.Equal(t, tt.wantInfo, c.Info)
			assert.Equal(t, "127.0.0.1:9222", r.CheckedAddr)
			assert.Nil(t, r.Latency)
		})
	}
}

func TestRun_BrowserMissingFailsValidation(t *testing.T) {
	cfg := baseConfig(env.OtherLinux, &fakeProber{reachable: true})
	cfg.Browsers = fakeBrowsers{}

	r := Run(context.Background(), cfg)

	assert.False(t, r.BrowserFound)
	assert.True(t, r.PortAccessible)
	assert.False(t, r.Valid())
}

func TestRun_Deep(t *testing.T) {
	t.Run("handshake ok", func(t *testing.T) {
		p := &fakeProber{reachable: true, version: &netcheck.ProtocolVersion{Product: "Chrome/120", ProtocolVersion: "1.3"}}
		cfg := baseConfig(env.OtherLinux, p)
		cfg.Deep = true

		r := Run(context.Background(), cfg)

		c, ok := r.Check(CheckProtocol)
		require.True(t, ok)
		assert.Contains(t, c.Message, "Chrome/120")
		assert.NotNil(t, r.Protocol)
	})

	t.Run("handshake fails", func(t *testing.T) {
		p := &fakeProber{reachable: true, wsErr: errors.New("bad handshake")}
		cfg := baseConfig(env.OtherLinux, p)
		cfg.Deep = true

		r := Run(context.Background(), cfg)

		c, _ := r.Check(CheckProtocol)
		assert.True(t, c.Warning)
		assert.True(t, r.Valid(), "deep check does not affect validation")
	})
}

func TestRun_LatencyFailuresWarn(t *testing.T) {
	p := &fakeProber{reachable: true, stats: netcheck.LatencyStats{Samples: 5, Failures: 2}}
	r := Run(context.Background(), baseConfig(env.OtherMacOS, p))

	c, ok := r.Check(CheckLatency)
	require.True(t, ok)
	assert.True(t, c.Warning)
	assert.Contains(t, c.Message, "2 failed")
}

// =============================================================================
// Tests: PrintResults
// =============================================================================

func TestPrintResults(t *testing.T) {
	cfg := baseConfig(env.GuestVirtualized, &fakeProber{reachable: false})
	cfg.Browsers = fakeBrowsers{}
	r := Run(context.Background(), cfg)

	rec := report.NewRecorder()
	PrintResults(rec, r)

	errs := rec.Messages(report.LevelError)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "browser")
	assert.Contains(t, errs[1], "NOT accessible")

	var fixes int
	for _, m := range rec.Messages(report.LevelInfo) {
		if strings.Contains(m, "Fix:") {
			fixes++
		}
	}
	assert.Equal(t, 2, fixes)
}

func TestSuggestFix(t *testing.T) {
	for _, name := range []string{CheckBrowser, CheckPrivilege, CheckAdapter, CheckHost, CheckRelayRule, CheckPort, CheckLatency, CheckProtocol} {
		assert.NotEmpty(t, suggestFix(name, env.GuestVirtualized), name)
	}
	assert.Empty(t, suggestFix("unknown", env.GuestVirtualized))
	assert.NotEqual(t, suggestFix(CheckPort, env.GuestVirtualized), suggestFix(CheckPort, env.OtherLinux))
}
