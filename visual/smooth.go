// Package visual summarizes an outcome by covariate bin and treatment group, smooths the bin means with
// LOESS and draws raw and matched data side by side.
package visual

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Series is a set of (x, y) points. N is the weight behind each point.
type Series struct {
	Label string
	X     []float64
	Y     []float64
	N     []float64
}

func (s *Series) Len() int {
	return len(s.X)
}

// Bin rounds x down to a multiple of width. A width of 0 leaves x as is.
func Bin(x []float64, width float64) []float64 {
	out := make([]float64, len(x))
	for ind, xv := range x {
		out[ind] = xv
		if width > 0 {
			out[ind] = math.Floor(xv/width) * width
		}
	}

	return out
}

// GroupMeans bins x and returns the weighted mean of y in each bin, for treat==0 and treat==1.
// w may be nil. Rows with NaN x or y, or non-positive weight, are skipped. Bins are in ascending order.
func GroupMeans(x, y []float64, treat []int, w []float64, width float64) (control, treated *Series, err error) {
	if len(x) != len(y) || len(x) != len(treat) || (w != nil && len(w) != len(x)) {
		return nil, nil, fmt.Errorf("GroupMeans: length mismatch")
	}

	if width < 0 {
		return nil, nil, fmt.Errorf("GroupMeans: negative bin width")
	}

	type acc struct{ sw, swy float64 }
	groups := [2]map[float64]*acc{make(map[float64]*acc), make(map[float64]*acc)}

	bins := Bin(x, width)
	for ind, b := range bins {
		wv := 1.0
		if w != nil {
			wv = w[ind]
		}

		if math.IsNaN(b) || math.IsNaN(y[ind]) || wv <= 0 {
			continue
		}

		g := treat[ind]
		if g != 0 && g != 1 {
			return nil, nil, fmt.Errorf("GroupMeans: treatment must be 0 or 1, got %d", g)
		}

		a, ok := groups[g][b]
		if !ok {
			a = &acc{}
			groups[g][b] = a
		}

		a.sw += wv
		a.swy += wv * y[ind]
	}

	var out [2]*Series
	for g := 0; g < 2; g++ {
		s := &Series{}
		for b := range groups[g] {
			s.X = append(s.X, b)
		}

		sort.Float64s(s.X)
		for _, b := range s.X {
			a := groups[g][b]
			s.Y = append(s.Y, a.swy/a.sw)
			s.N = append(s.N, a.sw)
		}

		out[g] = s
	}

	return out[0], out[1], nil
}

// Grid returns n equally spaced points from lo to hi.
func Grid(lo, hi float64, n int) []float64 {
	if n < 2 || lo == hi {
		return []float64{lo}
	}

	return floats.Span(make([]float64, n), lo, hi)
}

// Loess evaluates a local polynomial fit of y on x at each point of at. Each fit uses the ceil(span*n)
// nearest points with tricube weights, times w if w is not nil. degree is 0, 1 or 2.
func Loess(x, y, w []float64, span float64, degree int, at []float64) ([]float64, error) {
	n := len(x)
	if len(y) != n || (w != nil && len(w) != n) {
		return nil, fmt.Errorf("loess: length mismatch")
	}

	if degree < 0 || degree > 2 {
		return nil, fmt.Errorf("loess: degree must be 0, 1 or 2, got %d", degree)
	}

	if span <= 0 {
		return nil, fmt.Errorf("loess: span must be positive")
	}

	if n < degree+1 {
		return nil, fmt.Errorf("loess: need %d points for degree %d, have %d", degree+1, degree, n)
	}

	q := min(n, int(math.Ceil(span*float64(n))))
	q = max(q, degree+1)

	out := make([]float64, len(at))
	dist := make([]float64, n)
	for ind, x0 := range at {
		for j := 0; j < n; j++ {
			dist[j] = math.Abs(x[j] - x0)
		}

		sorted := append([]float64{}, dist...)
		sort.Float64s(sorted)
		h := sorted[q-1]
		if span > 1 {
			h *= span
		}

		wts := make([]float64, n)
		for j := 0; j < n; j++ {
			wts[j] = tricube(dist[j], h)
			if w != nil {
				wts[j] *= w[j]
			}
		}

		// drop the degree until the local fit is solvable
		var e error
		for d := degree; d >= 0; d-- {
			if out[ind], e = localFit(x, y, wts, x0, d); e == nil {
				break
			}
		}

		if e != nil {
			return nil, fmt.Errorf("loess: no local fit at %v: %w", x0, e)
		}
	}

	return out, nil
}

func tricube(d, h float64) float64 {
	if h == 0 {
		if d == 0 {
			return 1
		}

		return 0
	}

	u := d / h
	if u >= 1 {
		return 0
	}

	v := 1 - u*u*u

	return v * v * v
}

// localFit solves the weighted least squares fit of y on powers of (x - x0) and returns the intercept.
func localFit(x, y, w []float64, x0 float64, degree int) (float64, error) {
	p := degree + 1
	xtwx := mat.NewDense(p, p, nil)
	xtwy := mat.NewVecDense(p, nil)

	used := 0
	for j := range x {
		if w[j] <= 0 {
			continue
		}

		used++
		pow := make([]float64, p)
		pow[0] = 1
		for k := 1; k < p; k++ {
			pow[k] = pow[k-1] * (x[j] - x0)
		}

		for r := 0; r < p; r++ {
			xtwy.SetVec(r, xtwy.AtVec(r)+w[j]*pow[r]*y[j])
			for c := 0; c < p; c++ {
				xtwx.Set(r, c, xtwx.At(r, c)+w[j]*pow[r]*pow[c])
			}
		}
	}

	if used < p {
		return 0, fmt.Errorf("%d points with weight for %d coefficients", used, p)
	}

	var beta mat.VecDense
	if e := beta.SolveVec(xtwx, xtwy); e != nil {
		return 0, e
	}

	return beta.AtVec(0), nil
}
