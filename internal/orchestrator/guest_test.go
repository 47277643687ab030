package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-wsl-devkit/internal/browser"
	"github.com/randomizedcoder/go-wsl-devkit/internal/network"
	"github.com/randomizedcoder/go-wsl-devkit/internal/remote"
	"github.com/randomizedcoder/go-wsl-devkit/internal/report"
)

type staticHost struct {
	addr string
	err  error
}

func (h staticHost) Find(context.Context) (string, network.HostSource, error) {
	return h.addr, network.SourceResolvConf, h.err
}

// scriptedReach answers connect attempts from a list; past the end it
// repeats the last answer.
type scriptedReach struct {
	answers []bool
	calls   []string
}

func (r *scriptedReach) CanReach(_ context.Context, host string, port int, _ time.Duration) bool {
	r.calls = append(r.calls, Endpoint{Host: host, Port: port}.String())
	i := min(len(r.calls)-1, len(r.answers)-1)
	return r.answers[i]
}

type fakeRemote struct {
	result *remote.Result
	err    error
	invs   []remote.Invocation
}

func (f *fakeRemote) Run(_ context.Context, inv remote.Invocation) (*remote.Result, error) {
	f.invs = append(f.invs, inv)
	return f.result, f.err
}

type guestFixture struct {
	reach    *scriptedReach
	remote   *fakeRemote
	recorder *report.Recorder
	sleeps   int
	cfg      GuestConfig
}

func newGuestFixture(reach ...bool) *guestFixture {
	f := &guestFixture{
		reach:    &scriptedReach{answers: reach},
		remote:   &fakeRemote{result: &remote.Result{ExitCode: 0}},
		recorder: report.NewRecorder(),
	}
	f.cfg = GuestConfig{
		Kind:           browser.Chrome,
		Port:           9222,
		VerifyAttempts: 3,
		VerifyInterval: 2 * time.Second,
		Hosts:          staticHost{addr: "192.168.1.1"},
		Reach:          f.reach,
		Remote:         f.remote,
		Binary:         func(context.Context) (string, error) { return `C:\tools\go-wsl-devkit.exe`, nil },
		RunID:          "run-1",
		Reporter:       f.recorder,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps++
			return ctx.Err()
		},
	}
	return f
}

// =============================================================================
// End-to-end runs
// =============================================================================

func TestGuest_VerificationFailsAfterRemoteSetup(t *testing.T) {
	f := newGuestFixture(false)

	res := NewGuest(f.cfg).Run(context.Background())

	assert.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, KindConnectivityVerificationFailed, res.Err.Kind)
	assert.True(t, res.ControlSetupCompleted)
	assert.Len(t, f.remote.invs, 1)
	assert.Equal(t, 3, res.Attempts)
	// One fast-path check plus three polls, all against the host.
	assert.Equal(t, []string{"192.168.1.1:9222", "192.168.1.1:9222", "192.168.1.1:9222", "192.168.1.1:9222"}, f.reach.calls)
	assert.Equal(t, 2, f.sleeps, "no sleep after the last attempt")
}

func TestGuest_FastPathSkipsRemote(t *testing.T) {
	f := newGuestFixture(true)

	res := NewGuest(f.cfg).Run(context.Background())

	assert.True(t, res.Success)
	assert.Nil(t, res.Err)
	assert.Empty(t, f.remote.invs, "zero remote invocations")
	assert.False(t, res.ControlSetupCompleted)
	assert.True(t, res.Skipped)
	assert.True(t, res.AlreadyConnected)
	assert.Equal(t, Endpoint{Host: "192.168.1.1", Port: 9222}, res.Endpoint)
}

func TestGuest_SecondRunMakesNoRemoteCalls(t *testing.T) {
	// First run: not yet reachable, setup succeeds, then reachable.
	f := newGuestFixture(false, true)
	g := NewGuest(f.cfg)

	first := g.Run(context.Background())
	require.True(t, first.Success)
	require.Len(t, f.remote.invs, 1)

	second := g.Run(context.Background())
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Len(t, f.remote.invs, 1, "second run must not contact the control side")
}

func TestGuest_Success(t *testing.T) {
	f := newGuestFixture(false, false, true)
	f.cfg.Elevate = true

	res := NewGuest(f.cfg).Run(context.Background())

	require.True(t, res.Success, "err: %v", res.Err)
	assert.True(t, res.ControlSetupCompleted)
	assert.False(t, res.Skipped)
	assert.True(t, res.ConnectivityVerified)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "192.168.1.1:9222", res.Endpoint.String())
	assert.Equal(t, string(network.SourceResolvConf), res.HostSource)

	require.Len(t, f.remote.invs, 1)
	inv := f.remote.invs[0]
	assert.Equal(t, `C:\tools\go-wsl-devkit.exe`, inv.Binary)
	assert.Equal(t, "chrome", inv.Browser)
	assert.Equal(t, 9222, inv.Port)
	assert.Equal(t, "run-1", inv.RunID)
	assert.True(t, inv.Elevate)
	assert.Equal(t, 1, f.recorder.Count(report.LevelWarning), "UAC prompt warning")
}

// =============================================================================
// Failures
// =============================================================================

func TestGuest_HostUnknown(t *testing.T) {
	f := newGuestFixture(true)
	f.cfg.Hosts = staticHost{err: network.ErrHostUnknown}

	res := NewGuest(f.cfg).Run(context.Background())

	assert.ErrorIs(t, res.Err, ErrHostAddressUnknown)
	assert.ErrorIs(t, res.Err, network.ErrHostUnknown)
	assert.Empty(t, f.reach.calls)
	assert.Empty(t, f.remote.invs)
}

func TestGuest_RemoteNonZeroCarriesStderr(t *testing.T) {
	f := newGuestFixture(false)
	f.remote.result = &remote.Result{
		ExitCode: 1,
		Stderr:   "✗ Administrator privileges required\r\nℹ Run this tool from an elevated (Administrator) terminal\r\n",
	}

	res := NewGuest(f.cfg).Run(context.Background())

	require.NotNil(t, res.Err)
	assert.Equal(t, KindRemoteSetupFailed, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "Administrator privileges required")
	assert.Contains(t, res.RemoteStderr, "elevated")
	assert.False(t, res.ControlSetupCompleted)
	assert.Len(t, f.reach.calls, 1, "no polling after a failed setup")
}

func TestGuest_RemoteChannelError(t *testing.T) {
	f := newGuestFixture(false)
	f.remote.result = &remote.Result{ExitCode: -1}
	f.remote.err = remote.ErrTimeout

	res := NewGuest(f.cfg).Run(context.Background())

	assert.ErrorIs(t, res.Err, ErrRemoteSetupFailed)
	assert.ErrorIs(t, res.Err, remote.ErrTimeout)
}

func TestGuest_BinaryMissing(t *testing.T) {
	f := newGuestFixture(false)
	f.cfg.Binary = func(context.Context) (string, error) { return "", remote.ErrBinaryNotFound }

	res := NewGuest(f.cfg).Run(context.Background())

	assert.ErrorIs(t, res.Err, ErrRemoteSetupFailed)
	assert.Empty(t, f.remote.invs)
}

func TestGuest_RecoversPanic(t *testing.T) {
	f := newGuestFixture(false)
	f.cfg.Binary = func(context.Context) (string, error) { panic(errors.New("boom")) }

	var res *GuestResult
	assert.NotPanics(t, func() { res = NewGuest(f.cfg).Run(context.Background()) })
	require.NotNil(t, res.Err)
	assert.Equal(t, KindInternal, res.Err.Kind)
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "b; c", lastLines("a\nb\n\nc\n", 2))
}
