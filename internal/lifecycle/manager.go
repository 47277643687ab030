package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/netcheck"
	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

// Default polling parameters for WaitUntilListening.
const (
	DefaultListenAttempts = 10
	DefaultListenInterval = time.Second
	DefaultConnectTimeout = 2 * time.Second

	// DefaultSettleDelay gives terminated processes time to exit and
	// release profile files.
	DefaultSettleDelay = time.Second
)

// Exit codes that mean "no matching process", not a failure.
const (
	taskkillNotFound = 128
	pkillNoMatch     = 1
)

// Prober checks a local debugging port.
type Prober interface {
	CanReach(ctx context.Context, host string, port int, timeout time.Duration) bool
	ServesProtocol(ctx context.Context, host string, port int, timeout time.Duration) bool
}

// LaunchSpec describes one browser launch.
type LaunchSpec struct {
	Kind        browser.Kind
	Path        string
	Port        int
	ProfileDir  string
	Args        []string
	ProcessName string
}

// Callbacks contains optional callback functions for lifecycle events.
type Callbacks struct {
	// OnStateChange is called on every state transition.
	OnStateChange func(oldState, newState State)

	// OnSpawn is called after the browser process was started.
	OnSpawn func(h *process.Handle)

	// OnPoll is called after each WaitUntilListening attempt.
	OnPoll func(attempt int, verified bool)
}

// Config holds the collaborators of a Manager. Nil fields get defaults
// where one exists.
type Config struct {
	Context  env.Context
	Runner   process.Runner
	Spawner  process.Spawner
	Prober   Prober
	Reporter report.Reporter
	Logger   *slog.Logger
	FS       FS

	// ProfileRoot is the parent of the throwaway profile directories
	// (default os.TempDir()).
	ProfileRoot string

	// ConnectTimeout bounds each probe of the debugging port.
	ConnectTimeout time.Duration

	// SettleDelay is waited after terminating stale instances. Zero uses
	// DefaultSettleDelay; negative disables it.
	SettleDelay time.Duration

	Callbacks Callbacks

	// Sleep waits between polling attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// Now is used to name stale profile copies.
	Now func() time.Time
}

// Manager terminates, resets and launches browsers.
type Manager struct {
	ctx            env.Context
	runner         process.Runner
	spawner        process.Spawner
	prober         Prober
	reporter       report.Reporter
	logger         *slog.Logger
	fs             FS
	profileRoot    string
	connectTimeout time.Duration
	settleDelay    time.Duration
	callbacks      Callbacks
	sleep          func(ctx context.Context, d time.Duration) error
	now            func() time.Time

	state   State
	stateMu sync.RWMutex
}

// New creates a Manager.
func New(cfg Config) *Manager {
	m := &Manager{
		ctx:            cfg.Context,
		runner:         cfg.Runner,
		spawner:        cfg.Spawner,
		prober:         cfg.Prober,
		reporter:       cfg.Reporter,
		logger:         cfg.Logger,
		fs:             cfg.FS,
		profileRoot:    cfg.ProfileRoot,
		connectTimeout: cfg.ConnectTimeout,
		settleDelay:    cfg.SettleDelay,
		callbacks:      cfg.Callbacks,
		sleep:          cfg.Sleep,
		now:            cfg.Now,
	}
	if m.runner == nil {
		m.runner = process.NewExecRunner(30 * time.Second)
	}
	if m.spawner == nil {
		m.spawner = process.SpawnerFor(m.ctx)
	}
	if m.prober == nil {
		m.prober = netcheck.NewVerifier()
	}
	if m.reporter == nil {
		m.reporter = report.Silent{}
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	if m.fs == nil {
		m.fs = OSFS{}
	}
	if m.profileRoot == "" {
		m.profileRoot = os.TempDir()
	}
	if m.connectTimeout <= 0 {
		m.connectTimeout = DefaultConnectTimeout
	}
	if m.settleDelay == 0 {
		m.settleDelay = DefaultSettleDelay
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// State returns the current launch state.
func (m *Manager) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.stateMu.Lock()
	old := m.state
	m.state = s
	m.stateMu.Unlock()

	if old == s {
		return
	}
	m.logger.Debug("lifecycle_state", "from", old.String(), "to", s.String())
	if m.callbacks.OnStateChange != nil {
		m.callbacks.OnStateChange(old, s)
	}
}

// ProfileDir returns the throwaway profile directory for kind.
func (m *Manager) ProfileDir(kind browser.Kind) string {
	return filepath.Join(m.profileRoot, browser.ProfileDirName(kind))
}

// Spec builds the launch description for kind at path.
func (m *Manager) Spec(kind browser.Kind, path string, port int) LaunchSpec {
	dir := m.ProfileDir(kind)
	return LaunchSpec{
		Kind:        kind,
		Path:        path,
		Port:        port,
		ProfileDir:  dir,
		Args:        browser.DebugArgs(kind, port, dir),
		ProcessName: browser.ProcessName(kind, m.ctx),
	}
}

// Terminate kills every running instance of kind. It is best effort:
// failures are reported as warnings.
func (m *Manager) Terminate(ctx context.Context, kind browser.Kind) {
	name := browser.ProcessName(kind, m.ctx)
	m.reporter.Step(fmt.Sprintf("Terminating running %s instances", kind))

	var (
		res      *process.Result
		err      error
		notFound int
	)
	if m.ctx.IsWindowsHost() {
		res, err = m.runner.Run(ctx, "taskkill", "/F", "/IM", name, "/T")
		notFound = taskkillNotFound
	} else {
		res, err = m.runner.Run(ctx, "pkill", "-9", name)
		notFound = pkillNoMatch
	}

	switch {
	case err != nil:
		m.reporter.Warning(fmt.Sprintf("Could not terminate %s: %v", name, err))
	case res.Success():
		m.reporter.Info(fmt.Sprintf("Terminated existing %s processes", name))
	case res.ExitCode == notFound:
		m.logger.Debug("no_running_instances", "process", name)
	default:
		m.reporter.Warning(fmt.Sprintf("Could not terminate %s (exit %d): %s", name, res.ExitCode, res.Output()))
	}
}

// ResetProfile removes the profile directory at path. If the delete fails
// part way, what is left is renamed aside so a following launch never
// sees a half-deleted profile; the stale copy is then removed best effort.
func (m *Manager) ResetProfile(path string) {
	if _, err := m.fs.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return
	}

	err := m.fs.RemoveAll(path)
	if err == nil {
		m.reporter.Info("Cleaned up old profile directory")
		return
	}
	m.logger.Debug("profile_remove_failed", "path", path, "error", err)

	stale := fmt.Sprintf("%s.stale-%d", path, m.now().UnixNano())
	if rerr := m.fs.Rename(path, stale); rerr != nil {
		m.reporter.Warning(fmt.Sprintf("Could not clean profile directory %s: %v", path, err))
		return
	}
	if serr := m.fs.RemoveAll(stale); serr != nil {
		m.reporter.Warning(fmt.Sprintf("Moved locked profile aside to %s", stale))
		return
	}
	m.reporter.Info("Cleaned up old profile directory")
}

// Launch spawns the browser described by spec, detached from the tool.
func (m *Manager) Launch(ctx context.Context, spec LaunchSpec) (*process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.reporter.Step(fmt.Sprintf("Launching %s with remote debugging on port %d", spec.Kind, spec.Port))
	m.logger.Debug("browser_launch", "path", spec.Path, "args", spec.Args)

	h, err := m.spawner.SpawnDetached(spec.Path, spec.Args)
	if err != nil {
		return nil, err
	}

	m.logger.Info("browser_spawned", "pid", h.PID, "kind", string(spec.Kind), "port", spec.Port)
	if m.callbacks.OnSpawn != nil {
		m.callbacks.OnSpawn(h)
	}
	return h, nil
}

// WaitUntilListening polls the loopback debugging port until it serves
// protocol metadata. It sleeps interval between attempts, never after the
// last one. maxAttempts <= 0 returns false at once.
func (m *Manager) WaitUntilListening(ctx context.Context, port, maxAttempts int, interval time.Duration) bool {
	if maxAttempts <= 0 {
		return false
	}
	m.reporter.Step(fmt.Sprintf("Waiting for the debugging port %d", port))

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		verified := false
		if m.prober.CanReach(ctx, browser.LoopbackAddr, port, m.connectTimeout) {
			if m.State() < StatePortOpen {
				m.setState(StatePortOpen)
			}
			verified = m.prober.ServesProtocol(ctx, browser.LoopbackAddr, port, m.connectTimeout)
		}

		m.logger.Debug("listen_poll", "attempt", attempt, "max", maxAttempts, "verified", verified)
		if m.callbacks.OnPoll != nil {
			m.callbacks.OnPoll(attempt, verified)
		}

		if verified {
			m.setState(StateProtocolVerified)
			m.reporter.Success(fmt.Sprintf("Debugging port %d is serving the protocol", port))
			return true
		}

		if attempt < maxAttempts {
			if err := m.sleep(ctx, interval); err != nil {
				return false
			}
		}
	}
	return false
}

// Prepare runs idle → terminated-stale → profile-reset → spawned for one
// launch of kind at path. The caller continues with WaitUntilListening.
func (m *Manager) Prepare(ctx context.Context, kind browser.Kind, path string, port int) (*process.Handle, error) {
	m.setState(StateIdle)
	spec := m.Spec(kind, path, port)

	m.Terminate(ctx, kind)
	if m.settleDelay > 0 {
		if err := m.sleep(ctx, m.settleDelay); err != nil {
			m.setState(StateFailed)
			return nil, err
		}
	}
	m.setState(StateTerminatedStale)

	m.ResetProfile(spec.ProfileDir)
	m.setState(StateProfileReset)

	h, err := m.Launch(ctx, spec)
	if err != nil {
		m.setState(StateFailed)
		return nil, fmt.Errorf("launch %s: %w", kind, err)
	}
	m.setState(StateSpawned)
	return h, nil
}

// Fail marks the current launch as failed.
func (m *Manager) Fail() {
	m.setState(StateFailed)
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
