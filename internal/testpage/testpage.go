// Package testpage serves an embedded HTML page for exercising a browser
// through the debugging bridge (--serve and --test).
package testpage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
)

// DefaultPort is the default --http-port.
const DefaultPort = 8080

//go:embed assets/index.html
var indexHTML []byte

// HTML returns the embedded page.
func HTML() []byte {
	return indexHTML
}

// Handler serves the page on / and /index.html, gzip-compressed when the
// client accepts it. Every other path is 404.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", servePage)
	mux.HandleFunc("/index.html", servePage)
	return gzhttp.GzipHandler(mux)
}

func servePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(indexHTML)
	}
}

// Server serves the test page.
type Server struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewServer creates a server listening on all interfaces at port. Port 0
// picks a free port; URL reports the effective one after Start.
func NewServer(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	addr := ":" + strconv.Itoa(port)
	return &Server{
		addr:   addr,
		logger: logger,
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       30 * time.Second,
		},
	}
}

// Start binds the port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("test page listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("test_page_starting", "url", s.URL())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("test_page_error", "error", err)
		}
	}()
	return nil
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL returns the page URL on localhost.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d/", s.Port())
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("test_page_shutting_down")
	return s.server.Shutdown(ctx)
}

// Open starts the browser at path on url as a detached process.
func Open(sp process.Spawner, path, url string) (*process.Handle, error) {
	h, err := sp.SpawnDetached(path, []string{url})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return h, nil
}
