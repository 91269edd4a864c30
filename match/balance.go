package match

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/invertedv/psm"
	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/stat"
)

// Balance compares the treated and control distributions of one covariate.
type Balance struct {
	Name   string
	Binary bool

	MeanT float64
	MeanC float64
	// SMD is the mean difference over the standard deviation of the treated units in the full sample.
	SMD      float64
	VarRatio float64 // NaN for binary covariates
	ECDFMean float64
	ECDFMax  float64
}

// Summary is the balance of the covariates before and after matching.
type Summary struct {
	Sizes   Sizes
	All     []Balance
	Matched []Balance
}

// Summary computes balance for the distance and the covariates. String covariates are expanded into one
// indicator per level, named <covariate>_<level>.
func (r *Result) Summary(covariates ...string) (*Summary, error) {
	type covariate struct {
		name   string
		x      []float64
		binary bool
	}

	covs := []covariate{{name: DistanceCol, x: r.score}}
	for _, cn := range covariates {
		col, e := r.source.Column(cn)
		if e != nil {
			return nil, e
		}

		switch col.DataType() {
		case psm.DTdate:
			return nil, fmt.Errorf("covariate %s is a date", cn)
		case psm.DTstring:
			codes, levels := col.Codes()
			for lvl, l := range levels {
				x := make([]float64, len(codes))
				for ind, c := range codes {
					switch c {
					case -1:
						x[ind] = math.NaN()
					case lvl:
						x[ind] = 1
					}
				}

				covs = append(covs, covariate{name: cn + "_" + l, x: x, binary: true})
			}
		default:
			x := col.AsFloat()
			covs = append(covs, covariate{name: cn, x: x, binary: isBinary(x)})
		}
	}

	ones := make([]float64, len(r.treat))
	for ind := range ones {
		ones[ind] = 1
	}

	s := &Summary{Sizes: r.Sizes()}
	for _, c := range covs {
		sd := treatedSD(c.x, r.treat, c.binary)
		s.All = append(s.All, balance(c.name, c.x, r.treat, ones, sd, c.binary))
		s.Matched = append(s.Matched, balance(c.name, c.x, r.treat, r.Pairs.Weights, sd, c.binary))
	}

	return s, nil
}

// Write renders the summary as tables.
func (s *Summary) Write(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Balance for all data:")
	balanceTable(w, s.All)
	_, _ = fmt.Fprintln(w, "\nBalance for matched data:")
	balanceTable(w, s.Matched)
	_, _ = fmt.Fprintln(w, "\nSample sizes:")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "Control", "Treated"})
	for _, r := range []struct {
		nm string
		n  [2]int
	}{
		{"All", s.Sizes.All},
		{"Matched", s.Sizes.Matched},
		{"Unmatched", s.Sizes.Unmatched},
		{"Discarded", s.Sizes.Discarded},
	} {
		table.Append([]string{r.nm, strconv.Itoa(r.n[0]), strconv.Itoa(r.n[1])})
	}

	table.Render()
}

func (s *Summary) String() string {
	var buf bytes.Buffer
	s.Write(&buf)

	return buf.String()
}

// MaxAbsSMD returns the largest absolute standardized mean difference among the matched covariates,
// the distance excluded.
func (s *Summary) MaxAbsSMD() float64 {
	mx := 0.0
	for _, b := range s.Matched {
		if b.Name == DistanceCol || math.IsNaN(b.SMD) {
			continue
		}

		mx = math.Max(mx, math.Abs(b.SMD))
	}

	return mx
}

func balanceTable(w io.Writer, bal []Balance) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "Means Treated", "Means Control", "Std. Mean Diff.", "Var. Ratio", "eCDF Mean", "eCDF Max"})
	for _, b := range bal {
		table.Append([]string{b.Name, num(b.MeanT), num(b.MeanC), num(b.SMD), num(b.VarRatio), num(b.ECDFMean), num(b.ECDFMax)})
	}

	table.Render()
}

func num(x float64) string {
	if math.IsNaN(x) {
		return ""
	}

	return strconv.FormatFloat(x, 'f', 4, 64)
}

func balance(name string, x []float64, treat []int, w []float64, sdT float64, binary bool) Balance {
	var xt, wt, xc, wc []float64
	for row, xv := range x {
		if w[row] <= 0 || math.IsNaN(xv) {
			continue
		}

		if treat[row] == 1 {
			xt, wt = append(xt, xv), append(wt, w[row])
			continue
		}

		xc, wc = append(xc, xv), append(wc, w[row])
	}

	b := Balance{Name: name, Binary: binary, MeanT: math.NaN(), MeanC: math.NaN(), SMD: math.NaN(),
		VarRatio: math.NaN(), ECDFMean: math.NaN(), ECDFMax: math.NaN()}
	if len(xt) == 0 || len(xc) == 0 {
		return b
	}

	b.MeanT, b.MeanC = stat.Mean(xt, wt), stat.Mean(xc, wc)

	diff := b.MeanT - b.MeanC
	switch {
	case sdT > 0:
		b.SMD = diff / sdT
	case diff == 0:
		b.SMD = 0
	}

	if !binary && len(xt) > 1 && len(xc) > 1 {
		if vc := stat.Variance(xc, wc); vc > 0 {
			b.VarRatio = stat.Variance(xt, wt) / vc
		}
	}

	b.ECDFMean, b.ECDFMax = ecdfDiff(xt, wt, xc, wc)

	return b
}

// ecdfDiff returns the mean and max absolute difference of the weighted eCDFs, taken at each distinct value
// but the largest.
func ecdfDiff(xt, wt, xc, wc []float64) (mean, mx float64) {
	vals := append(append([]float64{}, xt...), xc...)
	sort.Float64s(vals)

	var uniq []float64
	for ind, v := range vals {
		if ind == 0 || v != vals[ind-1] {
			uniq = append(uniq, v)
		}
	}

	if len(uniq) < 2 {
		return 0, 0
	}

	uniq = uniq[:len(uniq)-1]
	for _, v := range uniq {
		d := math.Abs(cdf(xt, wt, v) - cdf(xc, wc, v))
		mean += d
		mx = math.Max(mx, d)
	}

	return mean / float64(len(uniq)), mx
}

func cdf(x, w []float64, at float64) float64 {
	below, tot := 0.0, 0.0
	for ind, xv := range x {
		tot += w[ind]
		if xv <= at {
			below += w[ind]
		}
	}

	return below / tot
}

// treatedSD is the standard deviation of x over the treated units. Binary covariates use sqrt(p(1-p)).
func treatedSD(x []float64, treat []int, binary bool) float64 {
	var xt []float64
	for row, xv := range x {
		if treat[row] == 1 && !math.IsNaN(xv) {
			xt = append(xt, xv)
		}
	}

	if len(xt) < 2 {
		return 0
	}

	if binary {
		p := stat.Mean(xt, nil)
		return math.Sqrt(p * (1 - p))
	}

	return stat.StdDev(xt, nil)
}

func isBinary(x []float64) bool {
	for _, xv := range x {
		if !math.IsNaN(xv) && xv != 0 && xv != 1 {
			return false
		}
	}

	return true
}
