package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// AssetsHost is where rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// MaxChartPoints bounds the signal series; longer windows are strided.
const MaxChartPoints = 6000

// EChartsPage writes an HTML page with the signal, its R-peaks and the
// per-interval heart rate.
func EChartsPage(w io.Writer, v View) error {
	page := components.NewPage()
	page.SetPageTitle(pageTitle(v))
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(signalChart(v), rateChart(v))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

func pageTitle(v View) string {
	if v.Title != "" {
		return v.Title
	}
	return "ECG"
}

func signalChart(v View) *charts.Line {
	t := v.Times()
	stride := 1
	if len(v.Signal) > MaxChartPoints {
		stride = int(math.Ceil(float64(len(v.Signal)) / float64(MaxChartPoints)))
	}
	data := make([]opts.LineData, 0, len(v.Signal)/stride+1)
	for i := 0; i < len(v.Signal); i += stride {
		data = append(data, opts.LineData{Value: []interface{}{t[i], finite(v.Signal[i])}})
	}

	r := AmplitudeRange(v.Signal)
	xmin, xmax := v.StartSec, v.StartSec
	if len(t) > 0 {
		xmax = t[len(t)-1]
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: pageTitle(v), Width: "100%", Height: "420px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: pageTitle(v), Subtitle: v.Subtitle()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: xmin, Max: xmax, Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: -r, Max: r, Name: "mV", NameLocation: "middle", NameGap: 30}),
	)
	line.AddSeries("signal", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: 1, Color: "#222222"}),
	)

	pts := make([]opts.ScatterData, 0, len(v.Peaks))
	for _, i := range v.Peaks {
		if i >= 0 && i < len(v.Signal) {
			pts = append(pts, opts.ScatterData{Value: []interface{}{t[i], finite(v.Signal[i])}})
		}
	}
	peaks := charts.NewScatter()
	peaks.AddSeries("R-peaks", pts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}),
	)
	line.Overlap(peaks)
	return line
}

func rateChart(v View) *charts.Bar {
	x := make([]string, len(v.HR))
	y := make([]opts.BarData, len(v.HR))
	for i, hr := range v.HR {
		x[i] = fmt.Sprintf("RR %d", i+1)
		y[i] = opts.BarData{Value: math.Round(hr*10) / 10}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "280px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Instantaneous heart rate", Subtitle: fmt.Sprintf("median %s, %d valid intervals", v.Summary, len(v.HR))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bpm"}),
	)
	bar.SetXAxis(x).
		AddSeries("hr", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
