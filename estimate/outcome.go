package estimate

import (
	"fmt"
	"math"
	"strings"

	"github.com/invertedv/psm"
)

// Kind is how an outcome is tested.
type Kind int

const (
	KindAuto Kind = 0 + iota
	KindContinuous
	KindBinary
)

var kindNames = []string{"auto", "continuous", "binary"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}

	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return KindAuto, nil
	}

	for ind, nm := range kindNames {
		if strings.EqualFold(s, nm) {
			return Kind(ind), nil
		}
	}

	// "categorical" is tested the same way as binary
	if strings.EqualFold(s, "categorical") {
		return KindBinary, nil
	}

	return KindAuto, fmt.Errorf("unknown outcome kind %q", s)
}

// Outcome names an outcome column and how to test it. Positive is the level counted as the event for
// binary outcomes; if empty, the column must have exactly two levels and the second (sorted) is the event.
type Outcome struct {
	Name     string
	Kind     Kind
	Positive string
}

// Resolve decides the kind of the outcome and returns it as float64. Binary outcomes come back as 0/1.
// Missing values are NaN. positive is the event level for binary outcomes.
func (o Outcome) Resolve(df *psm.DF) (kind Kind, y []float64, positive string, err error) {
	var col *psm.Col
	if col, err = df.Column(o.Name); err != nil {
		return KindAuto, nil, "", err
	}

	if col.DataType() == psm.DTdate {
		return KindAuto, nil, "", fmt.Errorf("outcome %s is a date", o.Name)
	}

	kind = o.Kind
	if kind == KindAuto {
		kind = KindBinary
		// a 0/1 column with missing values loads as float
		lv := col.Levels()
		zeroOne := len(lv) == 2 && lv[0] == "0" && lv[1] == "1"
		if col.DataType() == psm.DTfloat && o.Positive == "" && !zeroOne {
			kind = KindContinuous
		}
	}

	if kind == KindContinuous {
		y = col.AsFloat()
		for _, yv := range y {
			if !math.IsNaN(yv) {
				return kind, y, "", nil
			}
		}

		return KindAuto, nil, "", fmt.Errorf("outcome %s has no numeric values", o.Name)
	}

	levels := col.Levels()
	positive = o.Positive
	switch {
	case positive != "":
		if !psm.Has(positive, levels) {
			return KindAuto, nil, "", fmt.Errorf("outcome %s has no level %q", o.Name, positive)
		}
	case len(levels) == 2:
		positive = levels[1]
	default:
		return KindAuto, nil, "", fmt.Errorf("outcome %s has %d levels; name the positive level to test it as binary", o.Name, len(levels))
	}

	y = make([]float64, col.Len())
	for ind, s := range col.AsString() {
		switch {
		case col.Missing(ind):
			y[ind] = math.NaN()
		case s == positive:
			y[ind] = 1
		}
	}

	return kind, y, positive, nil
}
