// Package graphing renders phase recordings as chart artifacts.
package graphing

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"LoadMonitor/pkg/sampling"
)

const (
	FormatPNG  = "png"
	FormatHTML = "html"
	FormatBoth = "both"

	xAxisLabel = "Time (seconds)"
	yAxisLabel = "Usage (%)"
)

// ErrEmptyRecording is returned when asked to render a recording with no samples.
var ErrEmptyRecording = errors.New("recording has no samples")

// Sink writes one chart artifact per Render call.
type Sink interface {
	Render(rec sampling.PhaseRecording, title, outputPath string) error
	// Extension is the file extension, with leading dot, of the artifacts.
	Extension() string
}

// NewSink returns the sink for a chart format name.
func NewSink(format string) (Sink, error) {
	switch strings.ToLower(format) {
	case "", FormatPNG:
		return NewPNGRenderer(), nil
	case FormatHTML:
		return NewHTMLRenderer(), nil
	case FormatBoth:
		return MultiSink{NewPNGRenderer(), NewHTMLRenderer()}, nil
	default:
		return nil, fmt.Errorf("unsupported chart format: %s", format)
	}
}

// MultiSink fans a recording out to several sinks, each writing next to
// outputPath with its own extension.
type MultiSink []Sink

func (m MultiSink) Extension() string {
	if len(m) == 0 {
		return ""
	}
	return m[0].Extension()
}

func (m MultiSink) Render(rec sampling.PhaseRecording, title, outputPath string) error {
	base := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
	var errs []error
	for _, s := range m {
		if err := s.Render(rec, title, base+s.Extension()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type series struct {
	label  string
	values []float64
}

// seriesOf splits a recording into the three plotted lines.
func seriesOf(rec sampling.PhaseRecording) ([]float64, []series) {
	elapsed, cpu, mem, disk := rec.Series()
	return elapsed, []series{
		{label: "CPU Usage (%)", values: cpu},
		{label: "Memory Usage (%)", values: mem},
		{label: "Disk Usage (%)", values: disk},
	}
}
