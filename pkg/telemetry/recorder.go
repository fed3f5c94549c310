// Package telemetry mirrors a run's samples and phase timings into
// Prometheus collectors that can be dumped as a node_exporter textfile.
package telemetry

import (
	"fmt"
	"time"

	"LoadMonitor/pkg/sampling"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loadmon"

type Recorder struct {
	registry *prometheus.Registry

	cpu           *prometheus.GaugeVec
	mem           *prometheus.GaugeVec
	disk          *prometheus.GaugeVec
	samples       *prometheus.CounterVec
	phaseDuration *prometheus.GaugeVec
	phaseFailures *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cpu: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_percent",
			Help:      "Last sampled system-wide CPU utilization",
		}, []string{"phase"}),
		mem: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_percent",
			Help:      "Last sampled virtual memory utilization",
		}, []string{"phase"}),
		disk: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_percent",
			Help:      "Last sampled filesystem utilization",
		}, []string{"phase"}),
		samples: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples recorded per phase",
		}, []string{"phase"}),
		phaseDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time spent in each phase",
		}, []string{"phase"}),
		phaseFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_failures_total",
			Help:      "Phases that ended in an error",
		}, []string{"phase"}),
	}
}

// Observe matches sampling.Observer. A nil Recorder ignores every call.
func (r *Recorder) Observe(phase string, s sampling.Sample) {
	if r == nil {
		return
	}
	r.cpu.WithLabelValues(phase).Set(s.CPUPct)
	r.mem.WithLabelValues(phase).Set(s.MemPct)
	r.disk.WithLabelValues(phase).Set(s.DiskPct)
	r.samples.WithLabelValues(phase).Inc()
}

func (r *Recorder) PhaseDone(phase string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Set(d.Seconds())
	if err != nil {
		r.phaseFailures.WithLabelValues(phase).Inc()
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile atomically writes the current values in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
