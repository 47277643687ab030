package orchestrator

import "fmt"

// Kind classifies why a run stopped. Every kind is terminal for the run.
type Kind string

const (
	KindPermissionDenied               Kind = "PermissionDenied"
	KindAdapterNotFound                Kind = "AdapterNotFound"
	KindBrowserNotFound                Kind = "BrowserNotFound"
	KindBrowserNotListening            Kind = "BrowserNotListening"
	KindRelayInstallFailed             Kind = "RelayInstallFailed"
	KindHostAddressUnknown             Kind = "HostAddressUnknown"
	KindRemoteSetupFailed              Kind = "RemoteSetupFailed"
	KindConnectivityVerificationFailed Kind = "ConnectivityVerificationFailed"

	// KindBusy means another invocation holds the (kind, port) lock.
	KindBusy Kind = "Busy"

	// KindInternal is a recovered panic.
	KindInternal Kind = "Internal"
)

// Error is a structured run failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the same kind, so callers can write
// errors.Is(err, orchestrator.ErrPermissionDenied).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinels for errors.Is.
var (
	ErrPermissionDenied               = &Error{Kind: KindPermissionDenied}
	ErrAdapterNotFound                = &Error{Kind: KindAdapterNotFound}
	ErrBrowserNotFound                = &Error{Kind: KindBrowserNotFound}
	ErrBrowserNotListening            = &Error{Kind: KindBrowserNotListening}
	ErrRelayInstallFailed             = &Error{Kind: KindRelayInstallFailed}
	ErrHostAddressUnknown             = &Error{Kind: KindHostAddressUnknown}
	ErrRemoteSetupFailed              = &Error{Kind: KindRemoteSetupFailed}
	ErrConnectivityVerificationFailed = &Error{Kind: KindConnectivityVerificationFailed}
	ErrBusy                           = &Error{Kind: KindBusy}
)
