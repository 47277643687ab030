// Package config provides configuration management for go-wsl-devkit.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode is the action selected on the command line.
type Mode string

const (
	ModeRun        Mode = "run" // launch and bridge, per detected context
	ModeDetectOnly Mode = "detect-only"
	ModeCleanup    Mode = "cleanup"
	ModeDiagnose   Mode = "diagnose"
	ModeValidate   Mode = "validate"
	ModeServe      Mode = "serve"
	ModeTest       Mode = "test"
	ModeWatch      Mode = "watch"
	ModePrintCmd   Mode = "print-cmd"
)

// Config holds all configuration options. Fields tagged yaml:"-" are
// command-line only.
type Config struct {
	// Target
	Browser string `yaml:"browser"`
	Port    int    `yaml:"port"`

	// Modes
	DetectOnly bool   `yaml:"-"`
	Cleanup    bool   `yaml:"-"`
	Diagnose   bool   `yaml:"-"`
	Validate   bool   `yaml:"-"`
	Serve      bool   `yaml:"-"`
	Test       bool   `yaml:"-"`
	Watch      bool   `yaml:"-"`
	PrintCmd   bool   `yaml:"-"`
	Version    bool   `yaml:"-"`
	ConfigFile string `yaml:"-"`

	// Test page
	HTTPPort int `yaml:"http_port"`

	// Launch
	ProfileDir     string        `yaml:"profile_dir"` // parent of per-browser profiles; empty = temp dir
	ListenAttempts int           `yaml:"listen_attempts"`
	ListenInterval time.Duration `yaml:"listen_interval"`

	// Guest
	VerifyAttempts int           `yaml:"verify_attempts"`
	VerifyInterval time.Duration `yaml:"verify_interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RemoteTimeout  time.Duration `yaml:"remote_timeout"`
	Elevate        bool          `yaml:"elevate"`
	WindowsBinary  string        `yaml:"windows_binary"`

	// Control
	AdapterPattern string `yaml:"adapter_pattern"`
	LockDir        string `yaml:"lock_dir"` // empty = temp dir

	// Diagnostics
	Deep           bool `yaml:"deep"`
	LatencySamples int  `yaml:"latency_samples"`

	// Watch
	WatchInterval time.Duration `yaml:"watch_interval"`
	WatchWindow   time.Duration `yaml:"watch_window"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"` // empty = disabled
	MetricsFile string `yaml:"metrics_file"` // empty = disabled
	Verbose     bool   `yaml:"verbose"`
	LogFormat   string `yaml:"log_format"` // json, text
	LogLevel    string `yaml:"log_level"`
	NoColor     bool   `yaml:"no_color"`
	RunID       string `yaml:"-"` // empty = generate
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: "chrome",
		Port:    9222,

		HTTPPort: 8080,

		ListenAttempts: 10,
		ListenInterval: time.Second,

		VerifyAttempts: 5,
		VerifyInterval: 2 * time.Second,
		ConnectTimeout: 2 * time.Second,
		RemoteTimeout:  60 * time.Second,

		AdapterPattern: "*WSL*",

		LatencySamples: 5,

		WatchInterval: time.Second,
		WatchWindow:   30 * time.Second,

		LogFormat: "text",
		LogLevel:  "warn",
	}
}

// Mode returns the selected action. When several mode flags are set the
// first in this order wins; Validate reports the conflict.
func (c *Config) Mode() Mode {
	switch {
	case c.Test:
		return ModeTest
	case c.Serve:
		return ModeServe
	case c.Diagnose:
		return ModeDiagnose
	case c.Validate:
		return ModeValidate
	case c.DetectOnly:
		return ModeDetectOnly
	case c.Cleanup:
		return ModeCleanup
	case c.Watch:
		return ModeWatch
	case c.PrintCmd:
		return ModePrintCmd
	default:
		return ModeRun
	}
}

// selectedModes lists every mode flag that is set. --test implies --serve,
// so the pair counts once.
func (c *Config) selectedModes() []Mode {
	var modes []Mode
	add := func(set bool, m Mode) {
		if set {
			modes = append(modes, m)
		}
	}
	add(c.Test || c.Serve, c.Mode())
	add(c.Diagnose, ModeDiagnose)
	add(c.Validate, ModeValidate)
	add(c.DetectOnly, ModeDetectOnly)
	add(c.Cleanup, ModeCleanup)
	add(c.Watch, ModeWatch)
	add(c.PrintCmd, ModePrintCmd)
	return modes
}

// LoadFile reads a YAML config file into cfg. Keys absent from the file
// keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// YAML renders the file-backed fields in config file form.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
