package estimate

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/invertedv/psm"
	"github.com/olekukonko/tablewriter"
)

// Effect is the test of one outcome. Exactly one of TTest and Logit is set.
type Effect struct {
	Outcome  string
	Kind     Kind
	Positive string // event level of a binary outcome

	N       int // rows used
	Dropped int // rows with a missing outcome

	TTest *TTest
	Logit *Logit
}

// Estimate tests the outcome for a difference between treatment==1 and treatment==0 rows of df.
// weights names a column of frequency weights, "" for none.
func Estimate(df *psm.DF, treatment, weights string, o Outcome, level float64) (*Effect, error) {
	var (
		treat    []int
		w        []float64
		y        []float64
		kind     Kind
		positive string
		e        error
	)
	if treat, e = df.Int(treatment); e != nil {
		return nil, fmt.Errorf("treatment %s: %w", treatment, e)
	}

	if weights != "" {
		if w, e = df.Float(weights); e != nil {
			return nil, fmt.Errorf("weights %s: %w", weights, e)
		}
	}

	if kind, y, positive, e = o.Resolve(df); e != nil {
		return nil, e
	}

	eff := &Effect{Outcome: o.Name, Kind: kind, Positive: positive}

	var (
		tk []int
		yk []float64
		wk []float64
	)
	for row, yv := range y {
		if math.IsNaN(yv) {
			eff.Dropped++
			continue
		}

		tk, yk = append(tk, treat[row]), append(yk, yv)
		if w != nil {
			wk = append(wk, w[row])
		}
	}

	eff.N = len(yk)

	if kind == KindContinuous {
		if eff.TTest, e = Welch(yk, tk, wk, level); e != nil {
			return nil, fmt.Errorf("outcome %s: %w", o.Name, e)
		}

		return eff, nil
	}

	if e = separated(yk, tk); e != nil {
		return nil, fmt.Errorf("outcome %s: %w", o.Name, e)
	}

	x := make([][]float64, len(tk))
	for ind, tv := range tk {
		x[ind] = []float64{float64(tv)}
	}

	if eff.Logit, e = Logistic(x, yk, wk, []string{treatment}, level); e != nil {
		return nil, fmt.Errorf("outcome %s: %w", o.Name, e)
	}

	return eff, nil
}

// Estimate returns the treated minus control mean difference, or the log odds ratio for binary outcomes.
func (eff *Effect) Estimate() float64 {
	if eff.TTest != nil {
		return eff.TTest.Diff
	}

	return eff.Logit.Coef[1]
}

func (eff *Effect) SE() float64 {
	if eff.TTest != nil {
		return eff.TTest.SE
	}

	return eff.Logit.SE[1]
}

// Statistic is t or z.
func (eff *Effect) Statistic() float64 {
	if eff.TTest != nil {
		return eff.TTest.T
	}

	return eff.Logit.Z[1]
}

func (eff *Effect) P() float64 {
	if eff.TTest != nil {
		return eff.TTest.P
	}

	return eff.Logit.P[1]
}

func (eff *Effect) CI() (lower, upper float64) {
	if eff.TTest != nil {
		return eff.TTest.Lower, eff.TTest.Upper
	}

	return eff.Logit.Lower[1], eff.Logit.Upper[1]
}

func (eff *Effect) String() string {
	if eff.TTest != nil {
		return fmt.Sprintf("outcome %s (dropped %d missing)\n%s", eff.Outcome, eff.Dropped, eff.TTest)
	}

	return fmt.Sprintf("outcome %s == %s (dropped %d missing), odds ratio %.4f\n%s",
		eff.Outcome, eff.Positive, eff.Dropped, eff.Logit.OddsRatio(1), eff.Logit)
}

// Report writes the effects as a table.
func Report(w io.Writer, effects ...*Effect) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Outcome", "Test", "Estimate", "Std. Error", "Statistic", "df", "p-value", "CI Lower", "CI Upper", "N", "Dropped"})
	for _, eff := range effects {
		test, df := "logistic", ""
		if eff.TTest != nil {
			test, df = "welch t", strconv.FormatFloat(eff.TTest.DF, 'f', 2, 64)
		}

		lower, upper := eff.CI()
		table.Append([]string{
			eff.Outcome,
			test,
			fmtFloat(eff.Estimate()),
			fmtFloat(eff.SE()),
			fmtFloat(eff.Statistic()),
			df,
			strconv.FormatFloat(eff.P(), 'g', 4, 64),
			fmtFloat(lower),
			fmtFloat(upper),
			strconv.Itoa(eff.N),
			strconv.Itoa(eff.Dropped),
		})
	}

	table.Render()
}

// ReportString is Report into a string.
func ReportString(effects ...*Effect) string {
	var buf bytes.Buffer
	Report(&buf, effects...)

	return buf.String()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 4, 64)
}

// separated checks that both groups are present and neither has a single outcome value.
func separated(y []float64, treat []int) error {
	var (
		n    [2]int
		ones [2]int
	)
	for ind, tv := range treat {
		if tv != 0 && tv != 1 {
			return fmt.Errorf("treatment must be 0 or 1, got %d", tv)
		}

		n[tv]++
		if y[ind] == 1 {
			ones[tv]++
		}
	}

	for g := 0; g < 2; g++ {
		if n[g] == 0 {
			return fmt.Errorf("no rows with treatment %d", g)
		}

		if ones[g] == 0 || ones[g] == n[g] {
			return fmt.Errorf("treatment %d: %w", g, ErrSeparation)
		}
	}

	return nil
}
