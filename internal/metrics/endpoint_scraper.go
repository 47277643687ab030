package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-wsl-devkit/internal/logging"
	"github.com/randomizedcoder/go-wsl-devkit/internal/netcheck"
)

// Window bounds for the rolling latency window.
const (
	MinWindow = 10 * time.Second
	MaxWindow = 300 * time.Second
)

// EndpointProber is the subset of netcheck.Verifier the scraper needs.
type EndpointProber interface {
	CanReach(ctx context.Context, host string, port int, timeout time.Duration) bool
	FetchVersion(ctx context.Context, host string, port int, timeout time.Duration) (*netcheck.VersionInfo, error)
}

// EndpointMetrics is the latest view of the debugging endpoint.
type EndpointMetrics struct {
	Host string
	Port int

	Reachable bool
	Protocol  bool
	Browser   string
	Version   string

	// Rolling window percentiles of connect latency
	LatencyP50    time.Duration
	LatencyP95    time.Duration
	LatencyMax    time.Duration
	WindowSeconds int

	Probes     int64
	Failures   int64
	LastChange time.Time

	// Metadata
	LastUpdate time.Time
	Error      string
}

// SuccessRate is the fraction of probes that connected.
func (m *EndpointMetrics) SuccessRate() float64 {
	if m == nil || m.Probes == 0 {
		return 0
	}
	return float64(m.Probes-m.Failures) / float64(m.Probes)
}

type latencySample struct {
	value float64
	time  time.Time
}

// EndpointScraper periodically probes the debugging endpoint. Reads are
// lock-free through atomic.Value.
type EndpointScraper struct {
	host      string
	port      int
	interval  time.Duration
	timeout   time.Duration
	prober    EndpointProber
	collector *Collector
	logger    *slog.Logger

	metrics  atomic.Value // *EndpointMetrics
	probes   atomic.Int64
	failures atomic.Int64

	digest     *tdigest.TDigest
	samples    []latencySample
	mu         sync.Mutex
	windowSize time.Duration

	now func() time.Time
}

// NewEndpointScraper creates a scraper for host:port. collector may be nil.
func NewEndpointScraper(host string, port int, interval, windowSize time.Duration, prober EndpointProber, collector *Collector, logger *slog.Logger) *EndpointScraper {
	if windowSize < MinWindow {
		windowSize = MinWindow
	}
	if windowSize > MaxWindow {
		windowSize = MaxWindow
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &EndpointScraper{
		host:       host,
		port:       port,
		interval:   interval,
		timeout:    netcheck.DefaultTimeout,
		prober:     prober,
		collector:  collector,
		logger:     logger,
		digest:     tdigest.NewWithCompression(100),
		windowSize: windowSize,
		now:        time.Now,
	}
	s.metrics.Store(&EndpointMetrics{
		Host:  host,
		Port:  port,
		Error: "Not yet probed",
	})
	return s
}

// Run probes until ctx is done.
func (s *EndpointScraper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Probe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe makes one probe and publishes the result.
func (s *EndpointScraper) Probe(ctx context.Context) {
	now := s.now()
	last := s.GetMetrics()

	start := time.Now()
	reachable := s.prober.CanReach(ctx, s.host, s.port, s.timeout)
	latency := time.Since(start)

	next := &EndpointMetrics{
		Host:       s.host,
		Port:       s.port,
		Reachable:  reachable,
		LastUpdate: now,
		LastChange: last.LastChange,
	}

	s.probes.Add(1)
	if reachable {
		s.addSample(float64(latency), now)
		info, err := s.prober.FetchVersion(ctx, s.host, s.port, s.timeout)
		if err != nil {
			next.Error = err.Error()
			s.logger.Debug("endpoint_metadata_error", "error", err)
		} else {
			next.Protocol = true
			next.Browser = info.Browser
			next.Version = info.ProtocolVersion
		}
	} else {
		s.failures.Add(1)
		next.Error = "connection failed"
	}
	if reachable != last.Reachable || next.Protocol != last.Protocol {
		next.LastChange = now
	}

	next.Probes = s.probes.Load()
	next.Failures = s.failures.Load()
	next.LatencyP50, next.LatencyP95, next.LatencyMax = s.window(now)
	next.WindowSeconds = int(s.windowSize.Seconds())

	s.metrics.Store(next)

	if s.collector != nil {
		s.collector.RecordProbe(reachable, next.Protocol, latency)
		s.collector.SetLatencyWindow(next.LatencyP50, next.LatencyP95, next.LatencyMax)
	}
}

// GetMetrics returns the current metrics (thread-safe, lock-free).
func (s *EndpointScraper) GetMetrics() *EndpointMetrics {
	m := s.metrics.Load().(*EndpointMetrics)
	cp := *m
	return &cp
}

func (s *EndpointScraper) addSample(v float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, latencySample{value: v, time: now})
	s.digest.Add(v, 1)
}

// window drops expired samples and returns p50, p95 and max.
func (s *EndpointScraper) window(now time.Time) (p50, p95, maxv time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.windowSize)
	valid := make([]latencySample, 0, len(s.samples))
	expired := 0
	for _, sample := range s.samples {
		if sample.time.After(cutoff) {
			valid = append(valid, sample)
		} else {
			expired++
		}
	}

	// Only rebuild the digest if samples expired
	if expired > 0 {
		s.digest = tdigest.NewWithCompression(100)
		for _, sample := range valid {
			s.digest.Add(sample.value, 1)
		}
	}
	s.samples = valid

	if len(valid) == 0 {
		return 0, 0, 0
	}
	var m float64
	for _, sample := range valid {
		if sample.value > m {
			m = sample.value
		}
	}
	return time.Duration(s.digest.Quantile(0.50)), time.Duration(s.digest.Quantile(0.95)), time.Duration(m)
}
