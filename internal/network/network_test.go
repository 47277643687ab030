package network

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process/processtest"
)

// =============================================================================
// Adapter discovery
// =============================================================================

func staticInterfaces(ifaces ...Interface) func() ([]Interface, error) {
	return func() ([]Interface, error) { return ifaces, nil }
}

func TestAdapterFinder_Match(t *testing.T) {
	f, err := NewAdapterFinder("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAdapterPattern, f.Pattern())

	tests := []struct {
		name string
		want bool
	}{
		{"vEthernet (WSL)", true},
		{"vEthernet (WSL (Hyper-V firewall))", true},
		{"vethernet (wsl)", true},
		{"Ethernet", false},
		{"Wi-Fi", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Match(tt.name), tt.name)
	}
}

func TestAdapterFinder_InvalidPattern(t *testing.T) {
	_, err := NewAdapterFinder("[WSL")
	assert.Error(t, err)
}

func TestAdapterFinder_FirstIPv4OnMatch(t *testing.T) {
	f, err := NewAdapterFinder("", WithInterfaces(staticInterfaces(
		Interface{Name: "Ethernet", Addrs: []net.IP{net.ParseIP("192.168.1.20")}},
		Interface{Name: "vEthernet (WSL)", Addrs: []net.IP{
			net.ParseIP("fe80::1"),
			net.ParseIP("10.0.0.5"),
		}},
	)))
	require.NoError(t, err)

	addr, err := f.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", addr)
}

func TestAdapterFinder_NotFound(t *testing.T) {
	f, err := NewAdapterFinder("", WithInterfaces(staticInterfaces(
		Interface{Name: "Ethernet", Addrs: []net.IP{net.ParseIP("192.168.1.20")}},
	)))
	require.NoError(t, err)

	_, err = f.Find(context.Background())
	assert.ErrorIs(t, err, ErrAdapterNotFound)
}

func TestAdapterFinder_PowerShellFallback(t *testing.T) {
	runner := &processtest.Runner{Handler: func(name string, args []string) (*process.Result, error) {
		return processtest.Exit(0, "\r\n172.28.160.1\r\n")
	}}
	f, err := NewAdapterFinder("*WSL*",
		WithInterfaces(func() ([]Interface, error) { return nil, errors.New("not supported") }),
		WithPowerShellFallback(runner),
	)
	require.NoError(t, err)

	addr, err := f.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "172.28.160.1", addr)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "powershell.exe", calls[0].Name)
	assert.Contains(t, calls[0].Args[len(calls[0].Args)-1], "-InterfaceAlias '*WSL*' -AddressFamily IPv4")
}

func TestAdapterFinder_PowerShellFallbackEmpty(t *testing.T) {
	runner := &processtest.Runner{Handler: func(string, []string) (*process.Result, error) {
		return processtest.Exit(0, "")
	}}
	f, err := NewAdapterFinder("", WithInterfaces(staticInterfaces()), WithPowerShellFallback(runner))
	require.NoError(t, err)

	_, err = f.Find(context.Background())
	assert.ErrorIs(t, err, ErrAdapterNotFound)
}

// =============================================================================
// Host discovery
// =============================================================================

func TestParseResolvConf(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"wsl generated", "# This file was automatically generated by WSL.\nnameserver 172.28.160.1\n", "172.28.160.1"},
		{"first wins", "nameserver 192.168.1.1\nnameserver 8.8.8.8\n", "192.168.1.1"},
		{"skips loopback stub", "nameserver 127.0.0.53\nnameserver 10.1.1.1\n", "10.1.1.1"},
		{"skips dns tunnel", "nameserver 10.255.255.254\n", ""},
		{"skips ipv6", "nameserver fe80::1\n", ""},
		{"no nameserver", "search lan\n", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseResolvConf(tt.data))
		})
	}
}

func TestParseDefaultRoute(t *testing.T) {
	assert.Equal(t, "172.28.160.1", ParseDefaultRoute("default via 172.28.160.1 dev eth0 proto kernel\n"))
	assert.Equal(t, "", ParseDefaultRoute("172.28.160.0/20 dev eth0 proto kernel scope link\n"))
	assert.Equal(t, "", ParseDefaultRoute(""))
}

func TestParseProcRoute(t *testing.T) {
	data := "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\n" +
		"eth0\t0000A8C0\t00000000\t0001\t0\t0\t0\t00FFFFFF\n" +
		"eth0\t00000000\t0100A8C0\t0003\t0\t0\t0\t00000000\n"
	assert.Equal(t, "192.168.0.1", ParseProcRoute(data))
	assert.Equal(t, "", ParseProcRoute("Iface\tDestination\tGateway\n"))
}

func fakeFiles(files map[string]string) func(string) ([]byte, error) {
	return func(name string) ([]byte, error) {
		if s, ok := files[name]; ok {
			return []byte(s), nil
		}
		return nil, fs.ErrNotExist
	}
}

func TestHostFinder_ResolvConfFirst(t *testing.T) {
	runner := &processtest.Runner{}
	h := &HostFinder{
		ReadFile: fakeFiles(map[string]string{ResolvConfPath: "nameserver 192.168.1.1\n"}),
		Runner:   runner,
	}

	ip, src, err := h.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", ip)
	assert.Equal(t, SourceResolvConf, src)
	assert.Empty(t, runner.Calls())
}

func TestHostFinder_FallsBackToRoute(t *testing.T) {
	runner := &processtest.Runner{Handler: func(name string, args []string) (*process.Result, error) {
		return processtest.Exit(0, "default via 172.28.160.1 dev eth0\n")
	}}
	h := &HostFinder{ReadFile: fakeFiles(nil), Runner: runner}

	ip, src, err := h.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "172.28.160.1", ip)
	assert.Equal(t, SourceIPRoute, src)
	require.Len(t, runner.Calls(), 1)
	assert.Equal(t, "ip route show default", runner.Calls()[0].String())
}

func TestHostFinder_ProcRouteLastResort(t *testing.T) {
	runner := &processtest.Runner{Handler: func(string, []string) (*process.Result, error) {
		return &process.Result{ExitCode: -1}, errors.New("ip: not found")
	}}
	h := &HostFinder{
		ReadFile: fakeFiles(map[string]string{
			ProcRoutePath: "Iface\tDestination\tGateway\neth0\t00000000\t01A01CAC\n",
		}),
		Runner: runner,
	}

	ip, src, err := h.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "172.28.160.1", ip)
	assert.Equal(t, SourceProcRoute, src)
}

func TestHostFinder_Unknown(t *testing.T) {
	h := &HostFinder{ReadFile: fakeFiles(nil)}
	_, _, err := h.Find(context.Background())
	assert.ErrorIs(t, err, ErrHostUnknown)
}
