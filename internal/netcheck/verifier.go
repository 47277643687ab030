// Package netcheck verifies that a browser debugging endpoint is reachable
// and is actually serving the debugging protocol.
package netcheck

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single connect or metadata request.
const DefaultTimeout = 2 * time.Second

// DialFunc opens a network connection.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Verifier performs single, bounded reachability checks. Retry policy
// belongs to callers.
type Verifier struct {
	Dial   DialFunc
	Client *http.Client
}

// NewVerifier returns a Verifier using the system dialer and a plain HTTP
// client.
func NewVerifier() *Verifier {
	d := &net.Dialer{}
	return &Verifier{
		Dial:   d.DialContext,
		Client: &http.Client{},
	}
}

// CanReach makes one TCP connect attempt to host:port. A timeout or refusal
// is a normal negative result.
func (v *Verifier) CanReach(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := v.dial()(ctx, "tcp", Addr(host, port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ServesProtocol reports whether host:port accepts connections and answers
// /json/version with debugging protocol metadata.
func (v *Verifier) ServesProtocol(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if !v.CanReach(ctx, host, port, timeout) {
		return false
	}
	body, err := v.fetch(ctx, host, port, timeout)
	if err != nil {
		return false
	}
	return IsProtocolMetadata(body)
}

func (v *Verifier) dial() DialFunc {
	if v.Dial != nil {
		return v.Dial
	}
	d := &net.Dialer{}
	return d.DialContext
}

func (v *Verifier) client() *http.Client {
	if v.Client != nil {
		return v.Client
	}
	return http.DefaultClient
}

// Addr joins host and port.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
