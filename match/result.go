package match

import (
	"fmt"

	"github.com/invertedv/psm"
)

// names of the columns added to the matched data
const (
	DistanceCol = "distance"
	WeightsCol  = "weights"
	SubclassCol = "subclass"
)

// Result is the matched data along with what is needed to summarize it.
type Result struct {
	// Data holds the matched rows, in their original order, with DistanceCol, WeightsCol and SubclassCol added.
	Data  *psm.DF
	Pairs *Pairs

	source    *psm.DF
	treatment string
	treat     []int
	score     []float64
}

// MatchDF matches the rows of df on score. The treatment column must hold 0/1 values.
func (m *Matcher) MatchDF(df *psm.DF, treatment string, score []float64) (*Result, error) {
	if df == nil {
		return nil, fmt.Errorf("nil data")
	}

	if len(score) != df.RowCount() {
		return nil, fmt.Errorf("data has %d rows, score has %d", df.RowCount(), len(score))
	}

	var (
		treat []int
		pairs *Pairs
		e     error
	)
	if treat, e = df.Int(treatment); e != nil {
		return nil, fmt.Errorf("treatment column %s: %w", treatment, e)
	}

	if pairs, e = m.Match(treat, score); e != nil {
		return nil, e
	}

	rows := pairs.Matched()

	var data *psm.DF
	if data, e = df.Subset(rows); e != nil {
		return nil, e
	}

	dist := make([]float64, len(rows))
	wts := make([]float64, len(rows))
	sub := make([]int, len(rows))
	for ind, row := range rows {
		dist[ind], wts[ind], sub[ind] = score[row], pairs.Weights[row], pairs.Subclass[row]
	}

	add := []struct {
		name string
		data any
		dt   psm.DataTypes
	}{
		{DistanceCol, dist, psm.DTfloat},
		{WeightsCol, wts, psm.DTfloat},
		{SubclassCol, sub, psm.DTint},
	}

	for _, a := range add {
		var col *psm.Col
		if col, e = psm.NewCol(a.data, a.dt, psm.ColName(a.name)); e != nil {
			return nil, e
		}

		if e = data.AppendColumn(col); e != nil {
			return nil, e
		}
	}

	return &Result{Data: data, Pairs: pairs, source: df, treatment: treatment, treat: treat, score: score}, nil
}

// Score returns the propensity score of every row of the source data.
func (r *Result) Score() []float64 {
	return r.score
}

// Source returns the data that was matched.
func (r *Result) Source() *psm.DF {
	return r.source
}

// Sizes counts units by group: index 0 is control, 1 is treated.
type Sizes struct {
	All       [2]int
	Matched   [2]int
	Unmatched [2]int
	Discarded [2]int
}

func (r *Result) Sizes() Sizes {
	var s Sizes
	for row, tv := range r.treat {
		s.All[tv]++
		switch {
		case r.Pairs.Weights[row] > 0:
			s.Matched[tv]++
		case r.Pairs.Discarded[row]:
			s.Discarded[tv]++
		default:
			s.Unmatched[tv]++
		}
	}

	return s
}
