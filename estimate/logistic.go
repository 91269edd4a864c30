package estimate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrSeparation    = errors.New("fitted probabilities are 0 or 1: the outcome is separated")
	ErrNoConvergence = errors.New("logistic regression did not converge")
)

const (
	tolerance = 1e-8
	maxIter   = 25

	// past this |eta| the fitted probability is within 3e-7 of 0 or 1
	maxEta = 15.0
)

// Logit is a fitted binomial regression with a logit link. Index 0 is the intercept.
type Logit struct {
	Names []string
	Coef  []float64
	SE    []float64
	Z     []float64
	P     []float64
	Lower []float64
	Upper []float64

	Level    float64
	Deviance float64
	Iter     int
	N        float64
}

// Logistic fits y (0/1) on an intercept plus the columns of x by iteratively reweighted least squares.
// w are prior weights; nil means 1. names label the columns of x.
func Logistic(x [][]float64, y, w []float64, names []string, level float64) (*Logit, error) {
	if e := checkLevel(level); e != nil {
		return nil, e
	}

	n := len(y)
	if n == 0 || len(x) != n || (w != nil && len(w) != n) {
		return nil, fmt.Errorf("logistic: length mismatch")
	}

	p := len(x[0]) + 1
	if len(names) != p-1 {
		return nil, fmt.Errorf("logistic: %d names for %d columns", len(names), p-1)
	}

	design := mat.NewDense(n, p, nil)
	prior := make([]float64, n)
	for row := 0; row < n; row++ {
		if len(x[row]) != p-1 {
			return nil, fmt.Errorf("logistic: row %d has %d columns", row, len(x[row]))
		}

		if y[row] != 0 && y[row] != 1 {
			return nil, fmt.Errorf("logistic: y must be 0 or 1, got %v at row %d", y[row], row)
		}

		design.Set(row, 0, 1)
		for j, xv := range x[row] {
			design.Set(row, j+1, xv)
		}

		prior[row] = 1
		if w != nil {
			prior[row] = w[row]
		}
	}

	if mn, mx := floats.Min(y), floats.Max(y); mn == mx {
		return nil, fmt.Errorf("logistic: y has a single value: %w", ErrSeparation)
	}

	var (
		beta  = mat.NewVecDense(p, nil)
		info  *mat.Dense
		eta   = make([]float64, n)
		dev   float64
		iter  int
		found bool
	)

	devOld := math.Inf(1)
	for iter = 1; iter <= maxIter; iter++ {
		xtwx := mat.NewDense(p, p, nil)
		xtwz := mat.NewVecDense(p, nil)
		for row := 0; row < n; row++ {
			mu := 1 / (1 + math.Exp(-eta[row]))
			v := math.Max(mu*(1-mu), 1e-300)
			wr := prior[row] * v
			z := eta[row] + (y[row]-mu)/v

			for j := 0; j < p; j++ {
				xj := design.At(row, j)
				xtwz.SetVec(j, xtwz.AtVec(j)+wr*xj*z)
				for k := 0; k < p; k++ {
					xtwx.Set(j, k, xtwx.At(j, k)+wr*xj*design.At(row, k))
				}
			}
		}

		if e := beta.SolveVec(xtwx, xtwz); e != nil {
			return nil, fmt.Errorf("logistic: singular design: %w", e)
		}

		for row := 0; row < n; row++ {
			eta[row] = mat.Dot(design.RowView(row), beta)
		}

		dev = deviance(y, eta, prior)
		if math.Abs(dev-devOld)/(math.Abs(dev)+0.1) < tolerance {
			found = true
			break
		}

		devOld = dev
	}

	for _, ev := range eta {
		if math.Abs(ev) > maxEta {
			return nil, ErrSeparation
		}
	}

	if !found {
		return nil, ErrNoConvergence
	}

	// Fisher information at the estimate
	info = mat.NewDense(p, p, nil)
	for row := 0; row < n; row++ {
		mu := 1 / (1 + math.Exp(-eta[row]))
		wr := prior[row] * mu * (1 - mu)
		for j := 0; j < p; j++ {
			for k := 0; k < p; k++ {
				info.Set(j, k, info.At(j, k)+wr*design.At(row, j)*design.At(row, k))
			}
		}
	}

	var cov mat.Dense
	if e := cov.Inverse(info); e != nil {
		return nil, fmt.Errorf("logistic: information matrix: %w", e)
	}

	fit := &Logit{
		Names:    append([]string{"(Intercept)"}, names...),
		Level:    level,
		Deviance: dev,
		Iter:     iter,
		N:        floats.Sum(prior),
	}

	norm := distuv.UnitNormal
	q := norm.Quantile(1 - (1-level)/2)
	for j := 0; j < p; j++ {
		b := beta.AtVec(j)
		se := math.Sqrt(cov.At(j, j))
		z := b / se
		fit.Coef = append(fit.Coef, b)
		fit.SE = append(fit.SE, se)
		fit.Z = append(fit.Z, z)
		fit.P = append(fit.P, 2*norm.Survival(math.Abs(z)))
		fit.Lower = append(fit.Lower, b-q*se)
		fit.Upper = append(fit.Upper, b+q*se)
	}

	return fit, nil
}

// OddsRatio returns exp of coefficient j.
func (l *Logit) OddsRatio(j int) float64 {
	return math.Exp(l.Coef[j])
}

func (l *Logit) String() string {
	s := fmt.Sprintf("%-14s %10s %10s %8s %10s\n", "", "Estimate", "Std.Error", "z", "Pr(>|z|)")
	for j := range l.Coef {
		s += fmt.Sprintf("%-14s %10.4f %10.4f %8.3f %10.4g\n", l.Names[j], l.Coef[j], l.SE[j], l.Z[j], l.P[j])
	}

	return s + fmt.Sprintf("residual deviance %.4f, iterations %d", l.Deviance, l.Iter)
}

func deviance(y, eta, w []float64) float64 {
	d := 0.0
	for row := range y {
		// log(1+exp(eta)) - y*eta is -log-likelihood for one row
		d += w[row] * (softplus(eta[row]) - y[row]*eta[row])
	}

	return 2 * d
}

func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}

	return math.Log1p(math.Exp(x))
}
