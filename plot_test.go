package psm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotXY(t *testing.T) {
	p, e0 := NewPlot(PlotTitle("This Is A Test"), PlotXlabel("X-Axis"),
		PlotYlabel("Y-Axis"), PlotLegend(true))
	require.Nil(t, e0)
	assert.Nil(t, PlotSubtitle("(subtitle here)")(p))
	assert.Nil(t, PlotXlabel("New X Label")(p))
	assert.Equal(t, "New X Label<br>(subtitle here)", p.Lay.Xaxis.Title.Text)
	assert.Nil(t, PlotHeight(800)(p))
	assert.Nil(t, PlotWidth(800)(p))

	x := []float64{1, 2, 3}
	assert.Nil(t, p.PlotXY(x, []float64{2, 4, 6}, "s1", "red"))
	assert.Nil(t, p.PlotPoints(x, []float64{1, 1, 1}, "s2", "black"))
	assert.Equal(t, 2, p.Traces())
	assert.NotNil(t, p.PlotXY(x, []float64{1}, "bad", "red"))

	assert.NotNil(t, PlotHeight(10)(p))

	fn := filepath.Join(t.TempDir(), "plot.html")
	assert.Nil(t, p.Save(fn))
	_, e := os.Stat(fn)
	assert.Nil(t, e)
}
