// Package lifecycle drives a browser into a debuggable state: stale
// instances terminated, profile reset, fresh instance spawned and its
// debugging port verified.
package lifecycle

// State is the progress of one launch.
type State int

const (
	// StateIdle is the initial state before anything was touched.
	StateIdle State = iota

	// StateTerminatedStale means running instances of the kind were killed.
	StateTerminatedStale

	// StateProfileReset means the throwaway profile directory was cleared.
	StateProfileReset

	// StateSpawned means a fresh browser process was started.
	StateSpawned

	// StatePortOpen means the debugging port accepts TCP connections.
	StatePortOpen

	// StateProtocolVerified means the port answered with protocol metadata.
	StateProtocolVerified

	// StateFailed means the launch could not complete.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTerminatedStale:
		return "terminated-stale"
	case StateProfileReset:
		return "profile-reset"
	case StateSpawned:
		return "spawned"
	case StatePortOpen:
		return "port-open"
	case StateProtocolVerified:
		return "protocol-verified"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the launch has either been verified or failed.
func (s State) IsTerminal() bool {
	return s == StateProtocolVerified || s == StateFailed
}
