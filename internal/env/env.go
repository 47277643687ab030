// Package env classifies the execution context the tool is running in.
package env

import (
	"os"
	"runtime"
	"strings"
)

// Context identifies where the tool is running. It is determined once per
// run and drives every platform-specific branch in the other packages.
type Context int

const (
	// Unknown is any operating system the tool does not recognise.
	Unknown Context = iota

	// ControlNative is the Windows host that owns the browser and the
	// loopback-bound debugging port.
	ControlNative

	// GuestVirtualized is a WSL instance running on top of the control host.
	GuestVirtualized

	// OtherLinux is a plain Linux machine (no WSL markers).
	OtherLinux

	// OtherMacOS is a macOS machine.
	OtherMacOS
)

// String returns the short name used in logs and on the command line.
func (c Context) String() string {
	switch c {
	case ControlNative:
		return "windows"
	case GuestVirtualized:
		return "wsl"
	case OtherLinux:
		return "linux"
	case OtherMacOS:
		return "macos"
	default:
		return "unknown"
	}
}

// IsWindowsHost reports whether processes and paths follow Windows conventions.
func (c Context) IsWindowsHost() bool {
	return c == ControlNative
}

// versionFile holds kernel version metadata on Linux.
const versionFile = "/proc/version"

// wslMarkers are substrings of the lower-cased kernel version string that
// identify a WSL kernel.
var wslMarkers = []string{"microsoft", "wsl"}

// Detector classifies the host. The zero value is not usable; use
// NewDetector or set both fields.
type Detector struct {
	// GOOS is the operating system identity (normally runtime.GOOS).
	GOOS string

	// ReadVersion returns the kernel version metadata. Only consulted on linux.
	ReadVersion func() (string, error)
}

// NewDetector returns a Detector for the running process.
func NewDetector() *Detector {
	return &Detector{
		GOOS: runtime.GOOS,
		ReadVersion: func() (string, error) {
			data, err := os.ReadFile(versionFile)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

// Detect classifies the running host.
func Detect() Context {
	return NewDetector().Detect()
}

// Detect classifies the host. It never fails: anything unrecognised is Unknown,
// and a Linux host whose version metadata cannot be read is OtherLinux.
func (d *Detector) Detect() Context {
	switch strings.ToLower(d.GOOS) {
	case "windows":
		return ControlNative
	case "linux":
		if d.ReadVersion == nil {
			return OtherLinux
		}
		version, err := d.ReadVersion()
		if err != nil {
			return OtherLinux
		}
		lower := strings.ToLower(version)
		for _, marker := range wslMarkers {
			if strings.Contains(lower, marker) {
				return GuestVirtualized
			}
		}
		return OtherLinux
	case "darwin":
		return OtherMacOS
	default:
		return Unknown
	}
}
