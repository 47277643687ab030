package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes a collector's registry on /metrics, plus liveness and
// readiness probes for whoever supervises the bridge.
type Server struct {
	addr     string
	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
	ready    func() bool
	logger   *slog.Logger
}

// NewServer creates a server for gatherer. Readiness is always true until
// SetReadiness is called.
func NewServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		mux:    http.NewServeMux(),
		logger: logger,
	}

	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	for _, p := range []string{"/health", "/healthz"} {
		s.mux.HandleFunc(p, writeStatus(http.StatusOK, "ok"))
	}
	for _, p := range []string{"/ready", "/readyz"} {
		s.mux.HandleFunc(p, s.readyHandler)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	return s
}

// SetReadiness makes /ready answer 503 while fn returns false. Must be
// called before Start.
func (s *Server) SetReadiness(fn func() bool) {
	s.ready = fn
}

// Handle registers an extra route. Must be called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeStatus(http.StatusServiceUnavailable, "not ready")(w, r)
		return
	}
	writeStatus(http.StatusOK, "ok")(w, r)
}

func writeStatus(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(code)
		fmt.Fprintln(w, body)
	}
}

// Start binds the listen address and serves in a goroutine. A bind
// failure is returned so the caller can stop before doing any work.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("metrics_server_starting", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
