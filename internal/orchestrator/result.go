package orchestrator

import (
	"net"
	"strconv"
	"time"
)

// Endpoint is the address a debugging client should connect to.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	if e.Host == "" {
		return ""
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ControlResult is the outcome of a control-side run. The booleans are
// milestones in the order they are reached.
type ControlResult struct {
	PrivilegeVerified bool
	AdapterFound      bool
	BrowserFound      bool
	BrowserLaunched   bool
	BrowserListening  bool
	RelayInstalled    bool
	Success           bool

	AdapterAddr string
	BrowserPath string
	PID         int
	Endpoint    Endpoint
	Duration    time.Duration

	Err *Error
}

// GuestResult is the outcome of a guest-side run.
type GuestResult struct {
	HostFound             bool
	AlreadyConnected      bool
	ControlSetupCompleted bool

	// Skipped is set when the fast path found the endpoint already
	// reachable and the control side was not contacted.
	Skipped              bool
	ConnectivityVerified bool
	Success              bool

	HostAddr     string
	HostSource   string
	RemoteStderr string
	Attempts     int
	Endpoint     Endpoint
	Duration     time.Duration

	Err *Error
}

// NativeResult is the outcome of a local launch on plain Linux or macOS.
type NativeResult struct {
	BrowserFound     bool
	BrowserLaunched  bool
	BrowserListening bool
	Success          bool

	BrowserPath string
	PID         int
	Endpoint    Endpoint
	Duration    time.Duration

	Err *Error
}

// CleanupResult is the outcome of --cleanup. Cleanup is best effort and
// always succeeds; the flags say what was done.
type CleanupResult struct {
	Terminated   bool
	RelayRemoved bool
	AdapterAddr  string
}

// ExitCode maps a run's success to a process exit status.
func ExitCode(success bool) int {
	if success {
		return 0
	}
	return 1
}
