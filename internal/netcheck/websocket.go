package netcheck

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ProtocolVersion is the result of a Browser.getVersion call.
type ProtocolVersion struct {
	ProtocolVersion string `json:"protocolVersion"`
	Product         string `json:"product"`
	Revision        string `json:"revision"`
	UserAgent       string `json:"userAgent"`
	JSVersion       string `json:"jsVersion"`
}

type cdpRequest struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
}

type cdpResponse struct {
	ID     int              `json:"id"`
	Result *ProtocolVersion `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ProbeWebSocket performs the deep check: it reads the browser's websocket
// URL from /json/version, connects to it through host:port, and issues a
// single Browser.getVersion command.
//
// The advertised URL names the loopback address the browser bound to, so
// its host is replaced with the address the caller can actually reach.
func (v *Verifier) ProbeWebSocket(ctx context.Context, host string, port int, timeout time.Duration) (*ProtocolVersion, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	info, err := v.FetchVersion(ctx, host, port, timeout)
	if err != nil {
		return nil, err
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, errors.New("no webSocketDebuggerUrl advertised")
	}

	wsURL, err := RewriteHost(info.WebSocketDebuggerURL, host, port)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		NetDialContext:   v.dial(),
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(cdpRequest{ID: 1, Method: "Browser.getVersion"}); err != nil {
		return nil, fmt.Errorf("send Browser.getVersion: %w", err)
	}

	for {
		var resp cdpResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("read Browser.getVersion: %w", err)
		}
		// Events carry no id; skip them.
		if resp.ID != 1 {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("Browser.getVersion: %s (code %d)", resp.Error.Message, resp.Error.Code)
		}
		if resp.Result == nil {
			return nil, errors.New("Browser.getVersion: empty result")
		}
		return resp.Result, nil
	}
}

// RewriteHost replaces the host and port of a websocket URL.
func RewriteHost(raw, host string, port int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse websocket url %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("unexpected websocket scheme %q", u.Scheme)
	}
	u.Host = Addr(host, port)
	return u.String(), nil
}
