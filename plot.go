package psm

import (
	"fmt"
	"os"
	"strings"

	grob "github.com/MetalBlueberry/go-plotly/graph_objects"
	"github.com/MetalBlueberry/go-plotly/offline"
)

// Plot is an interactive (HTML) figure.
type Plot struct {
	Fig *grob.Fig
	Lay *grob.Layout
}

// PlotOpt sets a property of a Plot.
type PlotOpt func(plot *Plot) error

func NewPlot(opts ...PlotOpt) (*Plot, error) {
	fig := &grob.Fig{}
	lay := &grob.Layout{}
	fig.Layout = lay
	p := &Plot{Fig: fig, Lay: lay}
	for _, o := range opts {
		if e := o(p); e != nil {
			return nil, e
		}
	}

	return p, nil
}

func PlotWidth(w float64) PlotOpt {
	return func(p *Plot) error {
		if w < 100.0 {
			return fmt.Errorf("width must be at least 100")
		}

		p.Lay.Width = w
		return nil
	}
}

func PlotHeight(h float64) PlotOpt {
	return func(p *Plot) error {
		if h < 100.0 {
			return fmt.Errorf("height must be at least 100")
		}

		p.Lay.Height = h
		return nil
	}
}

func PlotTitle(title string) PlotOpt {
	return func(p *Plot) error { p.Lay.Title = &grob.LayoutTitle{Text: title}; return nil }
}

// PlotSubtitle adds a line below the x-axis label.
func PlotSubtitle(subTitle string) PlotOpt {
	return func(p *Plot) error {
		xAxis := p.xAxis()
		xLabel, _ := xAxis.Title.Text.(string)
		if xLabel != "" {
			xLabel += "<br>"
		}

		xAxis.Title.Text = xLabel + subTitle
		return nil
	}
}

func PlotLegend(show bool) PlotOpt {
	return func(p *Plot) error {
		if show {
			p.Lay.Showlegend = grob.True
		} else {
			p.Lay.Showlegend = grob.False
		}

		return nil
	}
}

func PlotXlabel(label string) PlotOpt {
	return func(p *Plot) error {
		xAxis := p.xAxis()

		subTitle := ""
		xLabel, _ := xAxis.Title.Text.(string)
		if ind := strings.Index(xLabel, "<br>"); ind >= 0 {
			subTitle = xLabel[ind:]
		}

		xAxis.Title.Text = label + subTitle
		return nil
	}
}

func PlotYlabel(label string) PlotOpt {
	return func(p *Plot) error {
		if p.Lay.Yaxis == nil {
			p.Lay.Yaxis = &grob.LayoutYaxis{}
		}
		if p.Lay.Yaxis.Title == nil {
			p.Lay.Yaxis.Title = &grob.LayoutYaxisTitle{}
		}

		p.Lay.Yaxis.Title.Text = label
		return nil
	}
}

func (p *Plot) xAxis() *grob.LayoutXaxis {
	if p.Lay.Xaxis == nil {
		p.Lay.Xaxis = &grob.LayoutXaxis{}
	}

	if p.Lay.Xaxis.Title == nil {
		p.Lay.Xaxis.Title = &grob.LayoutXaxisTitle{Text: ""}
	}

	return p.Lay.Xaxis
}

// PlotXY adds a line trace.
func (p *Plot) PlotXY(x, y []float64, seriesName, color string) error {
	if len(x) != len(y) {
		return fmt.Errorf("x and y have different lengths: %d, %d", len(x), len(y))
	}

	tr := &grob.Scatter{Type: grob.TraceTypeScatter, Name: seriesName, X: x, Y: y,
		Mode: grob.ScatterModeLines, Line: &grob.ScatterLine{Color: color}}

	p.Fig.AddTraces(tr)

	return nil
}

// PlotPoints adds a markers-only trace.
func (p *Plot) PlotPoints(x, y []float64, seriesName, color string) error {
	if len(x) != len(y) {
		return fmt.Errorf("x and y have different lengths: %d, %d", len(x), len(y))
	}

	tr := &grob.Scatter{Type: grob.TraceTypeScatter, Name: seriesName, X: x, Y: y,
		Mode: grob.ScatterModeMarkers, Marker: &grob.ScatterMarker{Color: color}}

	p.Fig.AddTraces(tr)

	return nil
}

// Traces returns the number of traces in the figure.
func (p *Plot) Traces() int {
	return len(p.Fig.Data)
}

// Save writes the figure as a self-contained HTML file.
func (p *Plot) Save(fileName string) error {
	if fileName == "" {
		return fmt.Errorf("no file name in Plot.Save")
	}

	offline.ToHtml(p.Fig, fileName)

	if _, e := os.Stat(fileName); e != nil {
		return e
	}

	return nil
}
