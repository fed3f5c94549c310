// Package sampling collects host CPU, memory and disk utilization as
// phase-relative time series.
package sampling

import (
	"errors"
	"time"
)

// ErrMetricUnavailable is returned when a host metric cannot be read.
var ErrMetricUnavailable = errors.New("metric unavailable")

// Sample is one CPU/memory/disk reading.
type Sample struct {
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	CPUPct         float64   `json:"cpuPct"`
	MemPct         float64   `json:"memPct"`
	DiskPct        float64   `json:"diskPct"`
	Timestamp      time.Time `json:"timestamp"`
}

// PhaseRecording holds the samples of one monitoring phase in sampling order.
type PhaseRecording struct {
	Phase   string   `json:"phase"`
	Samples []Sample `json:"samples"`
}

func (r *PhaseRecording) Len() int { return len(r.Samples) }

// Last returns the most recent sample.
func (r *PhaseRecording) Last() (Sample, bool) {
	if len(r.Samples) == 0 {
		return Sample{}, false
	}
	return r.Samples[len(r.Samples)-1], true
}

// Span returns the wall clock window covered by the samples.
func (r *PhaseRecording) Span() (first, last time.Time) {
	if len(r.Samples) == 0 {
		return time.Time{}, time.Time{}
	}
	return r.Samples[0].Timestamp, r.Samples[len(r.Samples)-1].Timestamp
}

// Series splits the recording into parallel columns for plotting.
func (r *PhaseRecording) Series() (elapsed, cpu, mem, disk []float64) {
	n := len(r.Samples)
	elapsed = make([]float64, n)
	cpu = make([]float64, n)
	mem = make([]float64, n)
	disk = make([]float64, n)
	for i, s := range r.Samples {
		elapsed[i] = s.ElapsedSeconds
		cpu[i] = s.CPUPct
		mem[i] = s.MemPct
		disk[i] = s.DiskPct
	}
	return elapsed, cpu, mem, disk
}
