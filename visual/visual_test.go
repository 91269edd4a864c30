package visual

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBin(t *testing.T) {
	x := []float64{1901, 1909.5, 1910, 1925, -3, math.NaN()}
	b := Bin(x, 10)
	assert.Equal(t, []float64{1900, 1900, 1910, 1920, -10}, b[:5])
	assert.True(t, math.IsNaN(b[5]))

	assert.Equal(t, x[:5], Bin(x, 0)[:5])
}

func TestGroupMeans(t *testing.T) {
	x := []float64{1, 2, 11, 12, 1, 15, math.NaN()}
	y := []float64{1, 3, 5, 7, 10, 20, 1}
	treat := []int{0, 0, 0, 0, 1, 1, 1}
	w := []float64{1, 3, 1, 1, 1, 1, 1}

	c, tr, e := GroupMeans(x, y, treat, w, 10)
	require.Nil(t, e)
	assert.Equal(t, []float64{0, 10}, c.X)
	assert.Equal(t, []float64{2.5, 6}, c.Y)
	assert.Equal(t, []float64{4, 2}, c.N)
	assert.Equal(t, []float64{0, 10}, tr.X)
	assert.Equal(t, []float64{10, 20}, tr.Y)

	_, _, e = GroupMeans(x, y[:2], treat, nil, 10)
	assert.NotNil(t, e)
	_, _, e = GroupMeans(x, y, []int{0, 0, 0, 0, 1, 2, 1}, nil, 10)
	assert.NotNil(t, e)
	_, _, e = GroupMeans(x, y, treat, nil, -1)
	assert.NotNil(t, e)
}

func TestGrid(t *testing.T) {
	g := Grid(0, 1, 5)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, g)
	assert.Equal(t, []float64{3}, Grid(3, 3, 50))
}

func TestLoess(t *testing.T) {
	x := Grid(0, 10, 30)
	quad := make([]float64, len(x))
	line := make([]float64, len(x))
	for ind, xv := range x {
		quad[ind] = 1 + 2*xv - 0.3*xv*xv
		line[ind] = 4 - xv
	}

	at := []float64{0, 2.5, 5, 9.9}

	// local polynomials reproduce polynomials of their degree
	fit, e := Loess(x, quad, nil, 0.75, 2, at)
	require.Nil(t, e)
	for ind, a := range at {
		assert.InDelta(t, 1+2*a-0.3*a*a, fit[ind], 1e-8)
	}

	fit, e = Loess(x, line, nil, 0.5, 1, at)
	require.Nil(t, e)
	for ind, a := range at {
		assert.InDelta(t, 4-a, fit[ind], 1e-8)
	}

	// smoothing pulls noisy data toward the trend
	rnd := rand.New(rand.NewSource(1))
	noisy := make([]float64, len(x))
	for ind := range x {
		noisy[ind] = line[ind] + 0.5*rnd.NormFloat64()
	}

	fit, e = Loess(x, noisy, nil, 0.75, 1, x)
	require.Nil(t, e)
	errRaw, errFit := 0.0, 0.0
	for ind := range x {
		errRaw += math.Abs(noisy[ind] - line[ind])
		errFit += math.Abs(fit[ind] - line[ind])
	}

	assert.Less(t, errFit, errRaw)

	_, e = Loess(x[:2], quad[:2], nil, 0.75, 2, at)
	assert.NotNil(t, e)
	_, e = Loess(x, quad, nil, 0, 2, at)
	assert.NotNil(t, e)
	_, e = Loess(x, quad, nil, 0.75, 3, at)
	assert.NotNil(t, e)
	_, e = Loess(x, quad[:3], nil, 0.75, 2, at)
	assert.NotNil(t, e)
}

func TestNew(t *testing.T) {
	for _, o := range []Opt{WithBinWidth(-1), WithSpan(0), WithDegree(3), WithGridPoints(1), WithSize(0, 1)} {
		_, e := New(o)
		assert.NotNil(t, e)
	}

	p, e := New(WithBinWidth(5), WithSpan(0.5), WithDegree(1), WithGridPoints(10), WithSize(4, 3),
		WithLabels("birth year", "ITM"), WithGroupNames("direct", "indirect"))
	require.Nil(t, e)
	assert.Equal(t, 5.0, p.binWidth)
	assert.Equal(t, [2]string{"direct", "indirect"}, p.groups)
}

func panelData(n int, seed int64) (x, y []float64, treat []int) {
	rnd := rand.New(rand.NewSource(seed))
	for ind := 0; ind < n; ind++ {
		xv := 1920 + 80*rnd.Float64()
		tv := ind % 2
		x = append(x, xv)
		y = append(y, 0.02*(xv-1920)+0.5*float64(tv)+0.3*rnd.NormFloat64())
		treat = append(treat, tv)
	}

	return x, y, treat
}

func TestPanel_Draw(t *testing.T) {
	p, e := New(WithBinWidth(5), WithLabels("birth year", "ITM"))
	require.Nil(t, e)

	x, y, treat := panelData(300, 2)
	raw, e1 := p.Panel("all data", x, y, treat, nil)
	require.Nil(t, e1)
	assert.Equal(t, "birth year", raw.XLabel)
	assert.Equal(t, "control", raw.Points[0].Label)
	assert.Equal(t, 50, raw.Curves[1].Len())
	assert.LessOrEqual(t, raw.Points[0].Len(), 16)

	w := make([]float64, len(x))
	for ind := range w {
		w[ind] = float64(ind % 3)
	}

	matched, e2 := p.Panel("matched data", x, y, treat, w)
	require.Nil(t, e2)

	// one bin per group: points, no curve
	one, e3 := p.Panel("one bin", []float64{1, 2, 1}, []float64{1, 2, 3}, []int{0, 0, 1}, nil)
	require.Nil(t, e3)
	assert.Nil(t, one.Curves[0])

	dir := t.TempDir()
	png := filepath.Join(dir, "side.png")
	require.Nil(t, p.SideBySide(png, raw, matched, one))
	st, e4 := os.Stat(png)
	require.Nil(t, e4)
	assert.Greater(t, st.Size(), int64(0))

	html := filepath.Join(dir, "raw.html")
	assert.Nil(t, p.Interactive(html, raw))
	_, e5 := os.Stat(html)
	assert.Nil(t, e5)

	assert.NotNil(t, p.SideBySide(png))
}
