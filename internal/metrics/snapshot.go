package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Snapshot is a flattened view of the gathered metrics.
type Snapshot struct {
	Runs          float64
	FailedRuns    float64
	StepFailures  float64
	Polls         float64
	FailedPolls   float64
	Probes        float64
	EndpointUp    bool
	ProtocolUp    bool
	StepDurations map[string]float64 // "mode/step" -> summed seconds
}

// Snapshot gathers the registry and summarises it.
func (c *Collector) Snapshot() (*Snapshot, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	s := &Snapshot{StepDurations: make(map[string]float64)}
	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_runs_total":
			for _, m := range mf.GetMetric() {
				v := m.GetCounter().GetValue()
				s.Runs += v
				if label(m, "result") == "failure" {
					s.FailedRuns += v
				}
			}
		case namespace + "_step_failures_total":
			s.StepFailures = sumCounters(mf)
		case namespace + "_polls_total":
			for _, m := range mf.GetMetric() {
				v := m.GetCounter().GetValue()
				s.Polls += v
				if label(m, "result") == "failure" {
					s.FailedPolls += v
				}
			}
		case namespace + "_endpoint_probes_total":
			s.Probes = sumCounters(mf)
		case namespace + "_endpoint_up":
			s.EndpointUp = gaugeValue(mf) == 1
		case namespace + "_endpoint_protocol_up":
			s.ProtocolUp = gaugeValue(mf) == 1
		case namespace + "_step_duration_seconds":
			for _, m := range mf.GetMetric() {
				key := label(m, "mode") + "/" + label(m, "step")
				s.StepDurations[key] += m.GetHistogram().GetSampleSum()
			}
		}
	}
	return s, nil
}

// WriteTextfile writes the registry in the text exposition format to
// path, for node_exporter's textfile collector. The file is replaced
// atomically.
func (c *Collector) WriteTextfile(path string) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sumCounters(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func gaugeValue(mf *dto.MetricFamily) float64 {
	ms := mf.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	return ms[0].GetGauge().GetValue()
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
