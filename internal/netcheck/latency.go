package netcheck

import (
	"context"
	"time"

	"github.com/influxdata/tdigest"
)

// digestCompression keeps roughly a hundred centroids.
const digestCompression = 100

// LatencyStats summarises a series of connect attempts.
type LatencyStats struct {
	Samples  int
	Failures int
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	Max      time.Duration
}

// SuccessRate returns the fraction of attempts that connected.
func (s LatencyStats) SuccessRate() float64 {
	if s.Samples == 0 {
		return 0
	}
	return float64(s.Samples-s.Failures) / float64(s.Samples)
}

// LatencyRecorder accumulates connect durations in a t-digest.
type LatencyRecorder struct {
	digest   *tdigest.TDigest
	samples  int
	failures int
	max      time.Duration
}

// NewLatencyRecorder creates an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{digest: tdigest.NewWithCompression(digestCompression)}
}

// Record adds one attempt.
func (r *LatencyRecorder) Record(d time.Duration, ok bool) {
	r.samples++
	if !ok {
		r.failures++
		return
	}
	r.digest.Add(float64(d), 1)
	if d > r.max {
		r.max = d
	}
}

// Stats returns the current summary.
func (r *LatencyRecorder) Stats() LatencyStats {
	s := LatencyStats{
		Samples:  r.samples,
		Failures: r.failures,
		Max:      r.max,
	}
	if r.samples > r.failures {
		s.P50 = time.Duration(r.digest.Quantile(0.50))
		s.P95 = time.Duration(r.digest.Quantile(0.95))
		s.P99 = time.Duration(r.digest.Quantile(0.99))
	}
	return s
}

// MeasureLatency makes samples sequential connect attempts to host:port and
// summarises their durations.
func (v *Verifier) MeasureLatency(ctx context.Context, host string, port, samples int, timeout time.Duration) LatencyStats {
	rec := NewLatencyRecorder()
	for i := 0; i < samples; i++ {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		ok := v.CanReach(ctx, host, port, timeout)
		rec.Record(time.Since(start), ok)
	}
	return rec.Stats()
}
