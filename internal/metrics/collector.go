// Package metrics provides Prometheus metrics for go-wsl-devkit.
//
// A Collector is created per invocation with its own registry. Orchestrators
// report step and run timings through it; watch mode adds endpoint probe
// results. The registry is exposed over HTTP (--metrics) or written to a
// node_exporter textfile (--metrics-file).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wsl_devkit"

// CollectorConfig describes the run the collector belongs to.
type CollectorConfig struct {
	Version string
	Context string
	Browser string
	Port    int
}

// Collector holds the metrics of one invocation.
type Collector struct {
	registry *prometheus.Registry

	info          *prometheus.GaugeVec
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stepDuration  *prometheus.HistogramVec
	stepFailures  *prometheus.CounterVec
	pollsTotal    *prometheus.CounterVec
	probesTotal   *prometheus.CounterVec
	endpointUp    prometheus.Gauge
	protocolUp    prometheus.Gauge
	probeLatency  prometheus.Histogram
	latencyWindow *prometheus.GaugeVec

	mu        sync.Mutex
	lastRun   time.Time
	lastKind  string
	succeeded bool
	reachable bool
}

// NewCollector creates a collector with a fresh registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.NewRegistry())
}

// NewCollectorWithRegistry creates a collector registered in registry.
// Used by tests and when embedding into an existing registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,

		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the invocation (value always 1)",
		}, []string{"version", "context", "browser", "port"}),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestration runs by mode, result and failure kind",
		}, []string{"mode", "result", "kind"}),

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of orchestration runs",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"mode"}),

		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of individual orchestration steps",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"mode", "step"}),

		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Orchestration steps that did not pass their gate",
		}, []string{"mode", "step"}),

		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Connectivity polls by mode and result",
		}, []string{"mode", "result"}),

		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_probes_total",
			Help:      "Endpoint probes made in watch mode by result",
		}, []string{"result"}),

		endpointUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_up",
			Help:      "1 if the debugging endpoint accepted the last TCP connect",
		}),

		protocolUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_protocol_up",
			Help:      "1 if the debugging endpoint served protocol metadata on the last probe",
		}),

		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "endpoint_connect_seconds",
			Help:      "TCP connect latency to the debugging endpoint",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),

		latencyWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_connect_window_seconds",
			Help:      "Connect latency percentiles over the rolling window",
		}, []string{"quantile"}),
	}

	registry.MustRegister(
		c.info,
		c.runsTotal,
		c.runDuration,
		c.stepDuration,
		c.stepFailures,
		c.pollsTotal,
		c.probesTotal,
		c.endpointUp,
		c.protocolUp,
		c.probeLatency,
		c.latencyWindow,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Context, cfg.Browser, itoa(cfg.Port)).Set(1)
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStep records one orchestration step.
func (c *Collector) ObserveStep(mode, step string, ok bool, d time.Duration) {
	c.stepDuration.WithLabelValues(mode, step).Observe(d.Seconds())
	if !ok {
		c.stepFailures.WithLabelValues(mode, step).Inc()
	}
}

// ObserveRun records the end of an orchestration run.
func (c *Collector) ObserveRun(mode string, ok bool, kind string, d time.Duration) {
	c.runsTotal.WithLabelValues(mode, result(ok), kind).Inc()
	c.runDuration.WithLabelValues(mode).Observe(d.Seconds())

	c.mu.Lock()
	c.lastRun = time.Now()
	c.lastKind = kind
	c.succeeded = ok
	c.mu.Unlock()
}

// ObservePoll records one connectivity poll.
func (c *Collector) ObservePoll(mode string, ok bool) {
	c.pollsTotal.WithLabelValues(mode, result(ok)).Inc()
}

// RecordProbe records one watch-mode probe.
func (c *Collector) RecordProbe(reachable, protocol bool, latency time.Duration) {
	c.probesTotal.WithLabelValues(result(reachable)).Inc()
	c.endpointUp.Set(boolToFloat(reachable))
	c.protocolUp.Set(boolToFloat(protocol))
	if reachable {
		c.probeLatency.Observe(latency.Seconds())
	}

	c.mu.Lock()
	c.reachable = reachable
	c.mu.Unlock()
}

// SetLatencyWindow publishes rolling-window percentiles. The maximum is
// reported as quantile "1".
func (c *Collector) SetLatencyWindow(p50, p95, maxLatency time.Duration) {
	c.latencyWindow.WithLabelValues("0.5").Set(p50.Seconds())
	c.latencyWindow.WithLabelValues("0.95").Set(p95.Seconds())
	c.latencyWindow.WithLabelValues("1").Set(maxLatency.Seconds())
}

// LastRun returns when the last run finished, whether it succeeded and its
// failure kind.
func (c *Collector) LastRun() (time.Time, bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.succeeded, c.lastKind
}

// Ready reports whether the endpoint is known to be usable: the last run
// succeeded or the last probe reached it.
func (c *Collector) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.succeeded || c.reachable
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
