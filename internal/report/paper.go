package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ECG paper spacing: 1 mm = 0.04 s = 0.1 mV, 5 mm = 0.2 s = 0.5 mV.
const (
	MinorSec = 0.04
	MajorSec = 0.20
	MinorMV  = 0.1
	MajorMV  = 0.5
)

// Paper dimensions for saved figures.
const (
	PaperWidth  = 14 * vg.Inch
	PaperHeight = 4 * vg.Inch
)

var (
	paperMinor = color.RGBA{R: 255, G: 205, B: 205, A: 255}
	paperMajor = color.RGBA{R: 240, G: 120, B: 120, A: 255}
	traceColor = color.RGBA{A: 255}
	peakColor  = color.RGBA{R: 200, A: 255}
)

// AmplitudeRange is the symmetric vertical half-range: at least 1 mV, or
// the largest absolute sample.
func AmplitudeRange(x []float64) float64 {
	r := 1.0
	for _, v := range x {
		if a := math.Abs(v); a > r && !math.IsInf(a, 0) {
			r = a
		}
	}
	return r
}

// paperGrid draws the ECG-paper grid at fixed data spacings. plotter.Grid
// only follows axis ticks, which cannot express two line weights.
type paperGrid struct {
	minorX, majorX float64
	minorY, majorY float64
}

func (g paperGrid) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	minor := draw.LineStyle{Color: paperMinor, Width: vg.Points(0.3)}
	major := draw.LineStyle{Color: paperMajor, Width: vg.Points(0.8)}

	for _, l := range gridLines(plt.X.Min, plt.X.Max, g.minorX, g.majorX) {
		sty := minor
		if l.major {
			sty = major
		}
		x := trX(l.v)
		c.StrokeLine2(sty, x, c.Min.Y, x, c.Max.Y)
	}
	for _, l := range gridLines(plt.Y.Min, plt.Y.Max, g.minorY, g.majorY) {
		sty := minor
		if l.major {
			sty = major
		}
		y := trY(l.v)
		c.StrokeLine2(sty, c.Min.X, y, c.Max.X, y)
	}
}

type gridLine struct {
	v     float64
	major bool
}

// finite maps gaps to the baseline; plotter rejects NaN and Inf.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// gridLines returns multiples of minor in [lo, hi]; every major/minor-th
// line is major.
func gridLines(lo, hi, minor, major float64) []gridLine {
	if !(minor > 0) || !(hi > lo) {
		return nil
	}
	per := int(math.Round(major / minor))
	if per < 1 {
		per = 1
	}
	first := int(math.Ceil(lo/minor - 1e-9))
	last := int(math.Floor(hi/minor + 1e-9))
	if last-first > 100000 {
		return nil
	}
	out := make([]gridLine, 0, last-first+1)
	for k := first; k <= last; k++ {
		out = append(out, gridLine{v: float64(k) * minor, major: k%per == 0})
	}
	return out
}

// NewPaperPlot builds an ECG-paper figure of x against t with R-peaks
// marked.
func NewPaperPlot(title string, t, x []float64, peaks []int) (*plot.Plot, error) {
	if len(t) != len(x) {
		return nil, fmt.Errorf("time axis has %d samples, signal has %d", len(t), len(x))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Amplitude (mV)"

	g := paperGrid{minorX: MinorSec, majorX: MajorSec, minorY: MinorMV, majorY: MajorMV}
	p.Add(g)

	if len(x) > 0 {
		pts := make(plotter.XYs, len(x))
		for i := range x {
			pts[i] = plotter.XY{X: t[i], Y: finite(x[i])}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("signal line: %w", err)
		}
		line.Color = traceColor
		line.Width = vg.Points(0.8)
		p.Add(line)
	}

	var marks plotter.XYs
	for _, i := range peaks {
		if i >= 0 && i < len(x) {
			marks = append(marks, plotter.XY{X: t[i], Y: finite(x[i])})
		}
	}
	if len(marks) > 0 {
		sc, err := plotter.NewScatter(marks)
		if err != nil {
			return nil, fmt.Errorf("peak markers: %w", err)
		}
		sc.GlyphStyle.Color = peakColor
		sc.GlyphStyle.Radius = vg.Points(3)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add("R-peaks", sc)
		p.Legend.Top = true
	}

	r := AmplitudeRange(x)
	p.Y.Min, p.Y.Max = -r, r
	if len(t) > 0 {
		p.X.Min, p.X.Max = t[0], t[len(t)-1]
	}
	return p, nil
}

// PaperPlot saves an ECG-paper figure to path. The format follows the file
// extension.
func PaperPlot(t, x []float64, peaks []int, path string) error {
	p, err := NewPaperPlot("", t, x, peaks)
	if err != nil {
		return err
	}
	if err := p.Save(PaperWidth, PaperHeight, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// WritePaperPNG renders v as a PNG to w.
func WritePaperPNG(w io.Writer, v View) error {
	title := v.Title
	if sub := v.Subtitle(); title != "" {
		title += "\n" + sub
	} else {
		title = sub
	}
	p, err := NewPaperPlot(title, v.Times(), v.Signal, v.Peaks)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PaperWidth, PaperHeight, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}
