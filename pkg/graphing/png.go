package graphing

import (
	"fmt"

	"LoadMonitor/pkg/sampling"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	defaultWidth  = 10 * vg.Inch
	defaultHeight = 6 * vg.Inch
)

// PNGRenderer draws CPU, memory and disk lines into a PNG image.
type PNGRenderer struct {
	width  vg.Length
	height vg.Length
}

func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{width: defaultWidth, height: defaultHeight}
}

func (r *PNGRenderer) Extension() string { return ".png" }

func (r *PNGRenderer) Render(rec sampling.PhaseRecording, title, outputPath string) error {
	if rec.Len() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyRecording, rec.Phase)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xAxisLabel
	p.Y.Label.Text = yAxisLabel
	p.Add(plotter.NewGrid())

	elapsed, lines := seriesOf(rec)
	for i, s := range lines {
		pts := make(plotter.XYs, len(elapsed))
		for j := range elapsed {
			pts[j].X = elapsed[j]
			pts[j].Y = s.values[j]
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", s.label, err)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}
	p.Legend.Top = true

	if err := p.Save(r.width, r.height, outputPath); err != nil {
		return fmt.Errorf("failed to save %s: %w", outputPath, err)
	}
	return nil
}
