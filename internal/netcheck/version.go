package netcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// VersionPath is the metadata endpoint served by a debugging port.
const VersionPath = "/json/version"

// maxMetadataBytes caps how much of the metadata response is read.
const maxMetadataBytes = 64 << 10

// VersionInfo is the document served at /json/version.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	V8Version            string `json:"V8-Version"`
	WebKitVersion        string `json:"WebKit-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// IsProtocolMetadata reports whether body looks like debugging protocol
// metadata rather than some other service that happens to hold the port.
func IsProtocolMetadata(body []byte) bool {
	return bytes.Contains(body, []byte("Browser")) ||
		bytes.Contains(body, []byte("webSocketDebuggerUrl"))
}

// FetchVersion retrieves and decodes /json/version from host:port.
func (v *Verifier) FetchVersion(ctx context.Context, host string, port int, timeout time.Duration) (*VersionInfo, error) {
	body, err := v.fetch(ctx, host, port, timeout)
	if err != nil {
		return nil, err
	}
	if !IsProtocolMetadata(body) {
		return nil, fmt.Errorf("%s does not serve debugging metadata", Addr(host, port))
	}

	var info VersionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode %s: %w", VersionPath, err)
	}
	return &info, nil
}

func (v *Verifier) fetch(ctx context.Context, host string, port int, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := url.URL{Scheme: "http", Host: Addr(host, port), Path: VersionPath}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := v.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", u.String(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", VersionPath, err)
	}
	return body, nil
}
