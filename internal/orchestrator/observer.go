package orchestrator

import "time"

// Mode names reported to the Observer.
const (
	ModeControl = "control"
	ModeGuest   = "guest"
	ModeNative  = "native"
	ModeCleanup = "cleanup"
)

// Observer receives run and step timings. metrics.Collector implements it.
type Observer interface {
	ObserveStep(mode, step string, ok bool, d time.Duration)
	ObserveRun(mode string, ok bool, kind string, d time.Duration)
	ObservePoll(mode string, ok bool)
}

type noopObserver struct{}

func (noopObserver) ObserveStep(string, string, bool, time.Duration) {}
func (noopObserver) ObserveRun(string, bool, string, time.Duration)  {}
func (noopObserver) ObservePoll(string, bool)                        {}

// stepTimer measures one step.
type stepTimer struct {
	obs   Observer
	mode  string
	step  string
	start time.Time
}

func startStep(obs Observer, mode, step string) *stepTimer {
	return &stepTimer{obs: obs, mode: mode, step: step, start: time.Now()}
}

func (t *stepTimer) done(ok bool) bool {
	t.obs.ObserveStep(t.mode, t.step, ok, time.Since(t.start))
	return ok
}

func kindOf(e *Error) string {
	if e == nil {
		return ""
	}
	return string(e.Kind)
}
