package psm

import (
	"fmt"
	"sort"
	"strings"
)

// Col is a named Vector.
type Col struct {
	name string

	*Vector
}

// ColOpt sets a property of a Col at creation.
type ColOpt func(c *Col) error

// ColName sets the name of the column.
func ColName(name string) ColOpt {
	return func(c *Col) error {
		if c == nil {
			return fmt.Errorf("nil column to ColName")
		}

		if !validName(name) {
			return fmt.Errorf("invalid column name: %q", name)
		}

		c.name = name

		return nil
	}
}

// NewCol creates a column. data may be a *Vector or a slice of a supported type.
func NewCol(data any, dt DataTypes, opts ...ColOpt) (*Col, error) {
	var col *Col
	if v, ok := data.(*Vector); ok {
		col = &Col{Vector: v}
	}

	if col == nil {
		var (
			v *Vector
			e error
		)
		if v, e = NewVector(data, dt); e != nil {
			return nil, e
		}

		col = &Col{Vector: v}
	}

	for _, opt := range opts {
		if e := opt(col); e != nil {
			return nil, e
		}
	}

	return col, nil
}

func (c *Col) Name() string {
	return c.name
}

func (c *Col) DataType() DataTypes {
	return c.VectorType()
}

func (c *Col) Data() *Vector {
	return c.Vector
}

func (c *Col) Copy() *Col {
	return &Col{name: c.name, Vector: c.Vector.Copy()}
}

// Levels returns the sorted distinct non-missing values of the column as strings.
func (c *Col) Levels() []string {
	seen := make(map[string]bool)
	var lvls []string
	for ind, s := range c.AsString() {
		if c.Missing(ind) || seen[s] {
			continue
		}

		seen[s] = true
		lvls = append(lvls, s)
	}

	if c.DataType() == DTint || c.DataType() == DTfloat {
		sort.SliceStable(lvls, func(i, j int) bool {
			return numericLess(lvls[i], lvls[j])
		})

		return lvls
	}

	sort.Strings(lvls)

	return lvls
}

// Codes maps each row to the position of its value in Levels(). Missing values are -1.
func (c *Col) Codes() (codes []int, levels []string) {
	levels = c.Levels()
	lookup := make(map[string]int)
	for ind, l := range levels {
		lookup[l] = ind
	}

	codes = make([]int, c.Len())
	for ind, s := range c.AsString() {
		codes[ind] = -1
		if c.Missing(ind) {
			continue
		}

		codes[ind] = lookup[s]
	}

	return codes, levels
}

func (c *Col) String() string {
	t := fmt.Sprintf("column: %s\ntype: %s\n", c.Name(), c.DataType())

	if c.DataType() != DTfloat {
		counts := make(map[string]int)
		for ind, s := range c.AsString() {
			if c.Missing(ind) {
				s = "<missing>"
			}
			counts[s]++
		}

		var (
			keys []string
			vals []int
		)
		for k := range counts {
			keys = append(keys, k)
		}

		sort.Slice(keys, func(i, j int) bool {
			if counts[keys[i]] == counts[keys[j]] {
				return keys[i] < keys[j]
			}

			return counts[keys[i]] > counts[keys[j]]
		})

		for _, k := range keys {
			vals = append(vals, counts[k])
		}

		return t + prettyPrint([]string{c.Name(), "count"}, keys, vals)
	}

	var (
		cats []string
		vals []float64
	)
	s := summarize(c.AsFloat())
	cats = []string{"min", "lq", "median", "mean", "uq", "max", "n", "missing"}
	vals = []float64{s.min, s.q25, s.q50, s.mean, s.q75, s.max, float64(s.n), float64(s.missing)}

	return t + prettyPrint([]string{"metric", "value"}, cats, vals)
}

func numericLess(a, b string) bool {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if !oka || !okb {
		return strings.Compare(a, b) < 0
	}

	return fa.(float64) < fb.(float64)
}
