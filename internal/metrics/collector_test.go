package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/netcheck"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{
		Version: "test",
		Context: "guest-virtualized",
		Browser: "chrome",
		Port:    9222,
	}, registry)
	return c, registry
}

// fakeProber answers from a scripted list of reachability results.
type fakeProber struct {
	mu         sync.Mutex
	reachable  []bool
	calls      int
	versionErr error
}

func (f *fakeProber) CanReach(ctx context.Context, host string, port int, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.reachable) {
		return f.reachable[len(f.reachable)-1]
	}
	return f.reachable[i]
}

func (f *fakeProber) FetchVersion(ctx context.Context, host string, port int, timeout time.Duration) (*netcheck.VersionInfo, error) {
	if f.versionErr != nil {
		return nil, f.versionErr
	}
	return &netcheck.VersionInfo{Browser: "Chrome/120.0", ProtocolVersion: "1.3"}, nil
}

// =============================================================================
// Tests: Collector
// =============================================================================

func TestNewCollector_Info(t *testing.T) {
	c, _ := newTestCollector(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.info.WithLabelValues("test", "guest-virtualized", "chrome", "9222")))
}

func TestNewCollector_IsolatedRegistries(t *testing.T) {
	// Two collectors must not collide on registration.
	assert.NotPanics(t, func() {
		NewCollector(CollectorConfig{})
		NewCollector(CollectorConfig{})
	})
}

func TestCollector_ObserveStep(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveStep("control", "privilege", true, 10*time.Millisecond)
	c.ObserveStep("control", "relay", false, 20*time.Millisecond)
	c.ObserveStep("control", "relay", false, 20*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.stepFailures.WithLabelValues("control", "privilege")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.stepFailures.WithLabelValues("control", "relay")))
}

func TestCollector_ObserveRun(t *testing.T) {
	tests := []struct {
		name     string
		ok       bool
		kind     string
		wantRes  string
		wantKind string
	}{
		{name: "success", ok: true, kind: "", wantRes: "success"},
		{name: "failure", ok: false, kind: "permission-denied", wantRes: "failure", wantKind: "permission-denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCollector(t)
			c.ObserveRun("guest", tt.ok, tt.kind, time.Second)

			assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("guest", tt.wantRes, tt.kind)))

			at, ok, kind := c.LastRun()
			assert.False(t, at.IsZero())
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestCollector_ObservePoll(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObservePoll("guest", false)
	c.ObservePoll("guest", false)
	c.ObservePoll("guest", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.pollsTotal.WithLabelValues("guest", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pollsTotal.WithLabelValues("guest", "success")))
}

func TestCollector_RecordProbe(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordProbe(true, true, 3*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.endpointUp))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.protocolUp))

	c.RecordProbe(false, false, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.endpointUp))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.protocolUp))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probesTotal.WithLabelValues("failure")))

	// Only reachable probes feed the latency histogram.
	assert.Equal(t, 1, testutil.CollectAndCount(c.probeLatency))
}

func TestCollector_SetLatencyWindow(t *testing.T) {
	c, _ := newTestCollector(t)
	c.SetLatencyWindow(time.Millisecond, 2*time.Millisecond, 5*time.Millisecond)

	assert.InDelta(t, 0.001, testutil.ToFloat64(c.latencyWindow.WithLabelValues("0.5")), 1e-9)
	assert.InDelta(t, 0.002, testutil.ToFloat64(c.latencyWindow.WithLabelValues("0.95")), 1e-9)
	assert.InDelta(t, 0.005, testutil.ToFloat64(c.latencyWindow.WithLabelValues("1")), 1e-9)
}

func TestCollector_Lint(t *testing.T) {
	c, registry := newTestCollector(t)
	c.ObserveRun("control", true, "", time.Second)

	problems, err := testutil.GatherAndLint(registry)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestCollector_ThreadSafety(t *testing.T) {
	c, _ := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.ObservePoll("guest", j%2 == 0)
				c.RecordProbe(true, j%3 == 0, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(c.probesTotal.WithLabelValues("success")))
}

// =============================================================================
// Tests: Snapshot and textfile
// =============================================================================

func TestCollector_Snapshot(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveStep("control", "adapter", true, 250*time.Millisecond)
	c.ObserveStep("control", "relay", false, 500*time.Millisecond)
	c.ObservePoll("control", false)
	c.ObservePoll("control", true)
	c.ObserveRun("control", false, "relay-failed", 2*time.Second)
	c.RecordProbe(true, true, time.Millisecond)

	s, err := c.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, 1.0, s.Runs)
	assert.Equal(t, 1.0, s.FailedRuns)
	assert.Equal(t, 1.0, s.StepFailures)
	assert.Equal(t, 2.0, s.Polls)
	assert.Equal(t, 1.0, s.FailedPolls)
	assert.Equal(t, 1.0, s.Probes)
	assert.True(t, s.EndpointUp)
	assert.True(t, s.ProtocolUp)
	assert.InDelta(t, 0.25, s.StepDurations["control/adapter"], 1e-9)
	assert.InDelta(t, 0.5, s.StepDurations["control/relay"], 1e-9)
}

func TestCollector_WriteTextfile(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveRun("native", true, "", time.Second)

	path := filepath.Join(t.TempDir(), "devkit.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `wsl_devkit_runs_total{kind="",mode="native",result="success"} 1`)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCollector_WriteTextfile_BadDir(t *testing.T) {
	c, _ := newTestCollector(t)
	err := c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "devkit.prom"))
	assert.Error(t, err)
}

// =============================================================================
// Tests: EndpointScraper
// =============================================================================

func TestEndpointScraper_InitialState(t *testing.T) {
	s := NewEndpointScraper("172.20.0.1", 9222, time.Second, time.Minute, &fakeProber{reachable: []bool{true}}, nil, nil)

	m := s.GetMetrics()
	assert.False(t, m.Reachable)
	assert.Equal(t, "Not yet probed", m.Error)
	assert.Equal(t, 0.0, m.SuccessRate())
}

func TestEndpointScraper_WindowClamp(t *testing.T) {
	tests := []struct {
		name   string
		window time.Duration
		want   int
	}{
		{name: "below minimum", window: time.Second, want: 10},
		{name: "in range", window: time.Minute, want: 60},
		{name: "above maximum", window: time.Hour, want: 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEndpointScraper("h", 1, time.Second, tt.window, &fakeProber{reachable: []bool{true}}, nil, nil)
			s.Probe(context.Background())
			assert.Equal(t, tt.want, s.GetMetrics().WindowSeconds)
		})
	}
}

func TestEndpointScraper_Probe(t *testing.T) {
	c, _ := newTestCollector(t)
	prober := &fakeProber{reachable: []bool{true, false, true}}
	s := NewEndpointScraper("172.20.0.1", 9222, time.Second, time.Minute, prober, c, logging.Discard())

	s.Probe(context.Background())
	m := s.GetMetrics()
	assert.True(t, m.Reachable)
	assert.True(t, m.Protocol)
	assert.Equal(t, "Chrome/120.0", m.Browser)
	assert.Equal(t, "1.3", m.Version)
	assert.Empty(t, m.Error)
	firstChange := m.LastChange
	assert.False(t, firstChange.IsZero())

	s.Probe(context.Background())
	m = s.GetMetrics()
	assert.False(t, m.Reachable)
	assert.Equal(t, "connection failed", m.Error)
	assert.Equal(t, int64(2), m.Probes)
	assert.Equal(t, int64(1), m.Failures)
	assert.InDelta(t, 0.5, m.SuccessRate(), 1e-9)

	s.Probe(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probesTotal.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.probesTotal.WithLabelValues("success")))
}

func TestEndpointScraper_MetadataError(t *testing.T) {
	prober := &fakeProber{reachable: []bool{true}, versionErr: errors.New("not a debugger")}
	s := NewEndpointScraper("h", 9222, time.Second, time.Minute, prober, nil, nil)

	s.Probe(context.Background())
	m := s.GetMetrics()
	assert.True(t, m.Reachable)
	assert.False(t, m.Protocol)
	assert.Equal(t, "not a debugger", m.Error)
}

func TestEndpointScraper_WindowExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewEndpointScraper("h", 9222, time.Second, MinWindow, &fakeProber{reachable: []bool{true, false}}, nil, nil)
	s.now = func() time.Time { return now }

	s.Probe(context.Background())
	assert.Len(t, s.samples, 1)

	// The only sample falls out of the window.
	now = now.Add(2 * MinWindow)
	s.Probe(context.Background())
	m := s.GetMetrics()
	assert.Empty(t, s.samples)
	assert.Equal(t, time.Duration(0), m.LatencyP50)
	assert.Equal(t, time.Duration(0), m.LatencyMax)
}

func TestEndpointScraper_RunStopsOnCancel(t *testing.T) {
	prober := &fakeProber{reachable: []bool{true}}
	s := NewEndpointScraper("h", 9222, 10*time.Millisecond, time.Minute, prober, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.GetMetrics().Probes >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// =============================================================================
// Tests: Server
// =============================================================================

func TestServer_Endpoints(t *testing.T) {
	c, registry := newTestCollector(t)
	c.ObserveRun("control", true, "", time.Second)

	srv := NewServer("127.0.0.1:0", registry, logging.Discard())
	srv.Handle("/extra", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "extra")
	}))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	base := "http://" + srv.Addr()
	tests := []struct {
		path string
		want string
	}{
		{path: "/health", want: "ok"},
		{path: "/readyz", want: "ok"},
		{path: "/metrics", want: "wsl_devkit_runs_total"},
		{path: "/extra", want: "extra"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(base + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.True(t, strings.Contains(string(body), tt.want), "body: %s", body)
		})
	}
}

func TestServer_StartBindError(t *testing.T) {
	_, registry := newTestCollector(t)
	first := NewServer("127.0.0.1:0", registry, logging.Discard())
	require.NoError(t, first.Start())
	t.Cleanup(func() { first.Shutdown(context.Background()) })

	second := NewServer(first.Addr(), registry, logging.Discard())
	assert.Error(t, second.Start())
}

func TestServer_ReadinessFollowsCollector(t *testing.T) {
	c, registry := newTestCollector(t)
	srv := NewServer("127.0.0.1:0", registry, logging.Discard())
	srv.SetReadiness(c.Ready)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	status := func() int {
		resp, err := http.Get("http://" + srv.Addr() + "/ready")
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusServiceUnavailable, status())

	c.RecordProbe(true, true, time.Millisecond)
	assert.Equal(t, http.StatusOK, status())

	c.RecordProbe(false, false, 0)
	assert.Equal(t, http.StatusServiceUnavailable, status())

	c.ObserveRun("guest", true, "", time.Second)
	assert.Equal(t, http.StatusOK, status())
}
