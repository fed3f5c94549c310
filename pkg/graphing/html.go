package graphing

import (
	"fmt"
	"os"
	"strconv"

	"LoadMonitor/pkg/sampling"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var lineTypes = []string{"solid", "dashed", "dotted"}

// HTMLRenderer writes an interactive go-echarts line chart.
type HTMLRenderer struct {
	height string
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{height: "480px"}
}

func (r *HTMLRenderer) Extension() string { return ".html" }

func (r *HTMLRenderer) Render(rec sampling.PhaseRecording, title, outputPath string) error {
	if rec.Len() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyRecording, rec.Phase)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: r.height}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: xAxisLabel, Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yAxisLabel, Type: "value"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	elapsed, lines := seriesOf(rec)
	xLabels := make([]string, len(elapsed))
	for i, e := range elapsed {
		xLabels[i] = strconv.FormatFloat(e, 'f', 1, 64)
	}
	line.SetXAxis(xLabels)

	for i, s := range lines {
		data := make([]opts.LineData, len(s.values))
		for j, v := range s.values {
			data[j] = opts.LineData{Value: v}
		}
		line.AddSeries(s.label, data,
			charts.WithLineStyleOpts(opts.LineStyle{Type: lineTypes[i%len(lineTypes)]}),
		)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return fmt.Errorf("failed to render %s: %w", outputPath, err)
	}
	return nil
}
