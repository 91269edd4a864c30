// Package estimate tests for a treatment effect on matched data: Welch's t-test for continuous outcomes and
// a logistic regression on the treatment indicator for binary outcomes.
package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TTest is the result of Welch's two-sample t-test. Diff is treated minus control.
type TTest struct {
	MeanT, MeanC float64
	VarT, VarC   float64
	NT, NC       float64 // sums of weights

	Diff  float64
	SE    float64
	T     float64
	DF    float64
	P     float64
	Level float64
	Lower float64
	Upper float64
}

// Welch compares y between treat==1 and treat==0. w are frequency weights; nil means 1 for each row.
// Rows with NaN y or zero weight are skipped.
func Welch(y []float64, treat []int, w []float64, level float64) (*TTest, error) {
	if e := checkLevel(level); e != nil {
		return nil, e
	}

	if len(y) != len(treat) || (w != nil && len(w) != len(y)) {
		return nil, fmt.Errorf("welch: length mismatch")
	}

	var yt, wt, yc, wc []float64
	for ind, yv := range y {
		wv := 1.0
		if w != nil {
			wv = w[ind]
		}

		if math.IsNaN(yv) || wv <= 0 {
			continue
		}

		switch treat[ind] {
		case 1:
			yt, wt = append(yt, yv), append(wt, wv)
		case 0:
			yc, wc = append(yc, yv), append(wc, wv)
		default:
			return nil, fmt.Errorf("welch: treatment must be 0 or 1, got %d", treat[ind])
		}
	}

	tt := &TTest{Level: level, NT: sum(wt), NC: sum(wc)}
	if len(yt) < 2 || len(yc) < 2 || tt.NT <= 1 || tt.NC <= 1 {
		return nil, fmt.Errorf("welch: need at least two observations per group, have %d treated and %d control", len(yt), len(yc))
	}

	tt.MeanT, tt.VarT = stat.MeanVariance(yt, wt)
	tt.MeanC, tt.VarC = stat.MeanVariance(yc, wc)
	tt.Diff = tt.MeanT - tt.MeanC

	a, b := tt.VarT/tt.NT, tt.VarC/tt.NC
	if a+b == 0 {
		return nil, fmt.Errorf("welch: outcome is constant within both groups")
	}

	tt.SE = math.Sqrt(a + b)
	tt.T = tt.Diff / tt.SE
	tt.DF = (a + b) * (a + b) / (a*a/(tt.NT-1) + b*b/(tt.NC-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: tt.DF}
	tt.P = 2 * dist.Survival(math.Abs(tt.T))
	q := dist.Quantile(1 - (1-level)/2)
	tt.Lower, tt.Upper = tt.Diff-q*tt.SE, tt.Diff+q*tt.SE

	return tt, nil
}

func (tt *TTest) String() string {
	return fmt.Sprintf("Welch t = %.4f, df = %.2f, p-value = %.4g\n"+
		"mean of treated %.4f, mean of control %.4f, difference %.4f\n"+
		"%.0f%% confidence interval: %.4f %.4f",
		tt.T, tt.DF, tt.P, tt.MeanT, tt.MeanC, tt.Diff, 100*tt.Level, tt.Lower, tt.Upper)
}

func checkLevel(level float64) error {
	if !(level > 0 && level < 1) {
		return fmt.Errorf("confidence level must be in (0,1), got %v", level)
	}

	return nil
}

func sum(x []float64) float64 {
	s := 0.0
	for _, xv := range x {
		s += xv
	}

	return s
}
