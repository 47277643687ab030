package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
)

// Watch window bounds.
const (
	MinWatchWindow = 10 * time.Second
	MaxWatchWindow = 300 * time.Second
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := browser.ParseKind(cfg.Browser); err != nil {
		add("browser", "must be chrome, firefox or librewolf (got %q)", cfg.Browser)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		add("port", "must be between 1 and 65535 (got %d)", cfg.Port)
	}
	if cfg.HTTPPort < 0 || cfg.HTTPPort > 65535 {
		add("http_port", "must be between 0 and 65535 (got %d)", cfg.HTTPPort)
	}
	if cfg.Mode() == ModeServe || cfg.Mode() == ModeTest {
		if cfg.HTTPPort == cfg.Port {
			add("http_port", "must differ from the debugging port %d", cfg.Port)
		}
	}

	if modes := cfg.selectedModes(); len(modes) > 1 {
		names := make([]string, len(modes))
		for i, m := range modes {
			names[i] = "--" + string(m)
		}
		add("mode", "only one of %s may be given", strings.Join(names, ", "))
	}

	// Attempts and intervals
	if cfg.ListenAttempts < 1 {
		add("listen_attempts", "must be at least 1")
	}
	if cfg.VerifyAttempts < 1 {
		add("verify_attempts", "must be at least 1")
	}
	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"listen_interval", cfg.ListenInterval},
		{"verify_interval", cfg.VerifyInterval},
		{"connect_timeout", cfg.ConnectTimeout},
		{"remote_timeout", cfg.RemoteTimeout},
		{"watch_interval", cfg.WatchInterval},
	} {
		if d.value <= 0 {
			add(d.field, "must be positive")
		}
	}

	if cfg.AdapterPattern == "" {
		add("adapter_pattern", "must not be empty")
	} else if _, err := glob.Compile(cfg.AdapterPattern); err != nil {
		add("adapter_pattern", "invalid glob: %v", err)
	}

	if cfg.LatencySamples < 0 {
		add("latency_samples", "must not be negative")
	}

	if cfg.Watch {
		if cfg.WatchWindow < MinWatchWindow {
			add("watch_window", "must be at least %v (got %v)", MinWatchWindow, cfg.WatchWindow)
		}
		if cfg.WatchWindow > MaxWatchWindow {
			add("watch_window", "must be at most %v (got %v)", MaxWatchWindow, cfg.WatchWindow)
		}
		// At least two probes per window for meaningful percentiles
		if cfg.WatchWindow < 2*cfg.WatchInterval {
			add("watch_window", "must be at least 2× watch interval (%v), got %v", 2*cfg.WatchInterval, cfg.WatchWindow)
		}
	}

	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			add("metrics_addr", "%v", err)
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		add("log_level", "must be debug, info, warn or error (got %q)", cfg.LogLevel)
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// validateAddr checks a host:port listen address.
func validateAddr(addr string) error {
	if strings.Contains(addr, "://") {
		return errors.New("must be host:port, not a URL")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
