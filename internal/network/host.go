package network

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
)

// Well-known guest files.
const (
	ResolvConfPath = "/etc/resolv.conf"
	ProcRoutePath  = "/proc/net/route"
)

// dnsTunnelAddr is the resolver WSL advertises when DNS tunneling is on;
// it is not the host.
const dnsTunnelAddr = "10.255.255.254"

// ErrHostUnknown is returned when no discovery method yields an address.
var ErrHostUnknown = errors.New("could not determine Windows host IP")

// HostSource names the method that produced a host address.
type HostSource string

const (
	SourceResolvConf HostSource = "resolv.conf"
	SourceIPRoute    HostSource = "ip route"
	SourceProcRoute  HostSource = "/proc/net/route"
)

// HostFinder discovers the control host's address from inside the guest.
type HostFinder struct {
	ReadFile func(name string) ([]byte, error)
	Runner   process.Runner
	Logger   *slog.Logger
}

// NewHostFinder returns a HostFinder reading the real guest files.
func NewHostFinder(runner process.Runner, logger *slog.Logger) *HostFinder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &HostFinder{
		ReadFile: os.ReadFile,
		Runner:   runner,
		Logger:   logger,
	}
}

// Find tries the resolver configuration first, then the default route.
func (h *HostFinder) Find(ctx context.Context) (string, HostSource, error) {
	logger := h.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if data, err := h.ReadFile(ResolvConfPath); err == nil {
		if ip := ParseResolvConf(string(data)); ip != "" {
			return ip, SourceResolvConf, nil
		}
	} else {
		logger.Debug("resolv_conf_unreadable", "error", err)
	}

	if h.Runner != nil {
		res, err := h.Runner.Run(ctx, "ip", "route", "show", "default")
		if err == nil && res.Success() {
			if ip := ParseDefaultRoute(res.Stdout); ip != "" {
				return ip, SourceIPRoute, nil
			}
		} else {
			logger.Debug("ip_route_failed", "error", err)
		}
	}

	if data, err := h.ReadFile(ProcRoutePath); err == nil {
		if ip := ParseProcRoute(string(data)); ip != "" {
			return ip, SourceProcRoute, nil
		}
	}

	return "", "", ErrHostUnknown
}

// ParseResolvConf returns the first usable IPv4 nameserver. Loopback stub
// resolvers and the DNS tunneling address are skipped.
func ParseResolvConf(data string) string {
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 2 || f[0] != "nameserver" {
			continue
		}
		ip := net.ParseIP(f[1])
		if ip == nil || ip.To4() == nil || ip.IsLoopback() || f[1] == dnsTunnelAddr {
			continue
		}
		return ip.To4().String()
	}
	return ""
}

// ParseDefaultRoute extracts the gateway from `ip route show default`
// output ("default via 172.28.0.1 dev eth0 ...").
func ParseDefaultRoute(out string) string {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 3 || f[0] != "default" || f[1] != "via" {
			continue
		}
		if ip := net.ParseIP(f[2]); ip != nil && ip.To4() != nil {
			return ip.To4().String()
		}
	}
	return ""
}

// ParseProcRoute extracts the default gateway from /proc/net/route, where
// addresses are little-endian hex.
func ParseProcRoute(data string) string {
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 3 || f[1] != "00000000" {
			continue
		}
		raw, err := hex.DecodeString(f[2])
		if err != nil || len(raw) != 4 {
			continue
		}
		gw := make(net.IP, 4)
		binary.BigEndian.PutUint32(gw, binary.LittleEndian.Uint32(raw))
		if gw.IsUnspecified() {
			continue
		}
		return gw.String()
	}
	return ""
}
