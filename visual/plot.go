package visual

import (
	"fmt"
	"image/color"
	"math"
	"os"

	"github.com/invertedv/psm"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	groupColors = [2]color.RGBA{{R: 31, G: 119, B: 180, A: 255}, {R: 214, G: 39, B: 40, A: 255}}
	groupNames  = [2]string{"blue", "red"}
)

// Plotter builds comparison panels and draws them.
type Plotter struct {
	binWidth float64
	span     float64
	degree   int
	points   int

	width  vg.Length
	height vg.Length

	xLabel string
	yLabel string
	groups [2]string
}

type Opt func(p *Plotter) error

// WithBinWidth sets the width of the x bins. 0 plots raw x values.
func WithBinWidth(w float64) Opt {
	return func(p *Plotter) error {
		if w < 0 {
			return fmt.Errorf("bin width must be non-negative")
		}

		p.binWidth = w
		return nil
	}
}

func WithSpan(span float64) Opt {
	return func(p *Plotter) error {
		if span <= 0 {
			return fmt.Errorf("span must be positive")
		}

		p.span = span
		return nil
	}
}

func WithDegree(d int) Opt {
	return func(p *Plotter) error {
		if d < 0 || d > 2 {
			return fmt.Errorf("degree must be 0, 1 or 2")
		}

		p.degree = d
		return nil
	}
}

// WithGridPoints sets how many points the smoothed curve is evaluated at.
func WithGridPoints(n int) Opt {
	return func(p *Plotter) error {
		if n < 2 {
			return fmt.Errorf("need at least 2 grid points")
		}

		p.points = n
		return nil
	}
}

// WithSize sets the size of one panel, in inches.
func WithSize(width, height float64) Opt {
	return func(p *Plotter) error {
		if width <= 0 || height <= 0 {
			return fmt.Errorf("panel size must be positive")
		}

		p.width, p.height = vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch
		return nil
	}
}

func WithLabels(xLabel, yLabel string) Opt {
	return func(p *Plotter) error {
		p.xLabel, p.yLabel = xLabel, yLabel
		return nil
	}
}

// WithGroupNames sets the legend names of the control and treated groups.
func WithGroupNames(control, treated string) Opt {
	return func(p *Plotter) error {
		p.groups = [2]string{control, treated}
		return nil
	}
}

func New(opts ...Opt) (*Plotter, error) {
	p := &Plotter{
		span:   0.75,
		degree: 2,
		points: 50,
		width:  5 * vg.Inch,
		height: 4 * vg.Inch,
		groups: [2]string{"control", "treated"},
	}

	for _, o := range opts {
		if e := o(p); e != nil {
			return nil, e
		}
	}

	return p, nil
}

// Panel is one plot: bin means and a LOESS curve per group. Points and Curves are indexed by treatment.
type Panel struct {
	Title  string
	XLabel string
	YLabel string

	Points [2]*Series
	Curves [2]*Series // nil if the group has fewer than two bins
}

// Panel bins x, averages y by bin and group, and smooths the averages, weighting each bin by its size.
func (p *Plotter) Panel(title string, x, y []float64, treat []int, w []float64) (*Panel, error) {
	var (
		pts [2]*Series
		e   error
	)
	if pts[0], pts[1], e = GroupMeans(x, y, treat, w, p.binWidth); e != nil {
		return nil, e
	}

	pnl := &Panel{Title: title, XLabel: p.xLabel, YLabel: p.yLabel, Points: pts}
	for g := 0; g < 2; g++ {
		pts[g].Label = p.groups[g]
		if pts[g].Len() < 2 {
			continue
		}

		at := Grid(pts[g].X[0], pts[g].X[pts[g].Len()-1], p.points)
		degree := min(p.degree, pts[g].Len()-1)

		var fit []float64
		if fit, e = Loess(pts[g].X, pts[g].Y, pts[g].N, p.span, degree, at); e != nil {
			return nil, fmt.Errorf("%s, %s: %w", title, p.groups[g], e)
		}

		pnl.Curves[g] = &Series{Label: p.groups[g], X: at, Y: fit}
	}

	return pnl, nil
}

// SideBySide draws the panels in one row, on a common y scale, and writes a PNG.
func (p *Plotter) SideBySide(fileName string, panels ...*Panel) error {
	if len(panels) == 0 {
		return fmt.Errorf("no panels to draw")
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, pnl := range panels {
		for g := 0; g < 2; g++ {
			for _, s := range []*Series{pnl.Points[g], pnl.Curves[g]} {
				if s == nil {
					continue
				}

				for _, yv := range s.Y {
					lo, hi = math.Min(lo, yv), math.Max(hi, yv)
				}
			}
		}
	}

	plots := [][]*plot.Plot{make([]*plot.Plot, len(panels))}
	for col, pnl := range panels {
		pl, e := p.draw(pnl)
		if e != nil {
			return e
		}

		if lo <= hi {
			pl.Y.Min, pl.Y.Max = lo, hi
		}

		plots[0][col] = pl
	}

	img := vgimg.New(vg.Length(len(panels))*p.width, p.height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      len(panels),
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}

	canvases := plot.Align(plots, tiles, dc)
	for col := range panels {
		plots[0][col].Draw(canvases[0][col])
	}

	f, e := os.Create(fileName)
	if e != nil {
		return e
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, e = png.WriteTo(f); e != nil {
		_ = f.Close()
		return e
	}

	return f.Close()
}

func (p *Plotter) draw(pnl *Panel) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = pnl.Title
	pl.X.Label.Text = pnl.XLabel
	pl.Y.Label.Text = pnl.YLabel
	pl.Legend.Top = true

	for g := 0; g < 2; g++ {
		pts := pnl.Points[g]
		if pts == nil || pts.Len() == 0 {
			continue
		}

		sc, e := plotter.NewScatter(xys(pts))
		if e != nil {
			return nil, e
		}

		sc.GlyphStyle.Color = groupColors[g]
		sc.GlyphStyle.Radius = vg.Points(2)
		pl.Add(sc)

		if pnl.Curves[g] == nil {
			pl.Legend.Add(pts.Label, sc)
			continue
		}

		ln, e1 := plotter.NewLine(xys(pnl.Curves[g]))
		if e1 != nil {
			return nil, e1
		}

		ln.LineStyle.Color = groupColors[g]
		ln.LineStyle.Width = vg.Points(1.5)
		pl.Add(ln)
		pl.Legend.Add(pts.Label, sc, ln)
	}

	return pl, nil
}

// Interactive writes the panel as an HTML figure.
func (p *Plotter) Interactive(fileName string, pnl *Panel) error {
	var (
		fig *psm.Plot
		e   error
	)
	if fig, e = psm.NewPlot(psm.PlotTitle(pnl.Title), psm.PlotXlabel(pnl.XLabel), psm.PlotYlabel(pnl.YLabel),
		psm.PlotLegend(true), psm.PlotWidth(float64(p.width.Dots(96))), psm.PlotHeight(float64(p.height.Dots(96)))); e != nil {
		return e
	}

	for g := 0; g < 2; g++ {
		if pts := pnl.Points[g]; pts != nil && pts.Len() > 0 {
			if e = fig.PlotPoints(pts.X, pts.Y, pts.Label, groupNames[g]); e != nil {
				return e
			}
		}

		if c := pnl.Curves[g]; c != nil {
			if e = fig.PlotXY(c.X, c.Y, c.Label+" (loess)", groupNames[g]); e != nil {
				return e
			}
		}
	}

	return fig.Save(fileName)
}

func xys(s *Series) plotter.XYs {
	out := make(plotter.XYs, s.Len())
	for ind := range s.X {
		out[ind].X, out[ind].Y = s.X[ind], s.Y[ind]
	}

	return out
}
