// Package psm holds the data frame the analyses run on: typed columns, CSV files, ClickHouse and Postgres
// tables, and interactive figures.
package psm

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DF is a set of equal-length named columns. A DF is not changed after it is built except by AppendColumn;
// Subset and Where return new frames.
type DF struct {
	head    *columnList
	current *columnList
}

type columnList struct {
	col *Col

	prior *columnList
	next  *columnList
}

func NewDF(cols ...*Col) (df *DF, err error) {
	if cols == nil {
		return nil, fmt.Errorf("no columns in NewDF")
	}

	df = &DF{}
	for ind := 0; ind < len(cols); ind++ {
		if e := df.AppendColumn(cols[ind]); e != nil {
			return nil, e
		}
	}

	return df, nil
}

// Next iterates through the columns. Pass reset=true to start at the first column; nil signals the end.
func (df *DF) Next(reset bool) *Col {
	if df.head == nil {
		return nil
	}

	if reset || df.current == nil {
		df.current = df.head
		return df.current.col
	}

	if df.current.next == nil {
		df.current = nil
		return nil
	}

	df.current = df.current.next
	return df.current.col
}

func (df *DF) RowCount() int {
	if df.head == nil {
		return 0
	}

	return df.head.col.Len()
}

func (df *DF) ColumnCount() int {
	cols := 0
	for c := df.head; c != nil; c = c.next {
		cols++
	}

	return cols
}

func (df *DF) ColumnNames() []string {
	var names []string

	for h := df.head; h != nil; h = h.next {
		names = append(names, h.col.Name())
	}

	return names
}

func (df *DF) ColumnTypes() []DataTypes {
	var dts []DataTypes

	for h := df.head; h != nil; h = h.next {
		dts = append(dts, h.col.DataType())
	}

	return dts
}

func (df *DF) Column(colName string) (col *Col, err error) {
	for h := df.head; h != nil; h = h.next {
		if h.col.Name() == colName {
			return h.col, nil
		}
	}

	return nil, fmt.Errorf("column %s not found", colName)
}

func (df *DF) HasColumns(colNames ...string) error {
	for _, cn := range colNames {
		if !Has(cn, df.ColumnNames()) {
			return fmt.Errorf("column %s not found", cn)
		}
	}

	return nil
}

func (df *DF) AppendColumn(col *Col) error {
	if col == nil {
		return fmt.Errorf("nil column in AppendColumn")
	}

	if !validName(col.Name()) {
		return fmt.Errorf("invalid column name: %q", col.Name())
	}

	if Has(col.Name(), df.ColumnNames()) {
		return fmt.Errorf("duplicate column name: %s", col.Name())
	}

	node := &columnList{col: col}
	if df.head == nil {
		df.head = node
		return nil
	}

	if col.Len() != df.RowCount() {
		return fmt.Errorf("length mismatch: df - %d, append col - %d", df.RowCount(), col.Len())
	}

	var tail *columnList
	for tail = df.head; tail.next != nil; tail = tail.next {
	}

	node.prior = tail
	tail.next = node

	return nil
}

// KeepColumns returns a new DF with only the named columns, in the order given. The data is shared.
func (df *DF) KeepColumns(colNames ...string) (*DF, error) {
	var cols []*Col
	for ind := 0; ind < len(colNames); ind++ {
		var (
			col *Col
			e   error
		)

		if col, e = df.Column(colNames[ind]); e != nil {
			return nil, e
		}

		cols = append(cols, col)
	}

	return NewDF(cols...)
}

// Subset returns a new DF with the rows given, in that order.
func (df *DF) Subset(rows []int) (*DF, error) {
	n := df.RowCount()
	for _, r := range rows {
		if r < 0 || r >= n {
			return nil, fmt.Errorf("row %d out of range in Subset", r)
		}
	}

	if rows == nil {
		rows = []int{}
	}

	var cols []*Col
	for h := df.head; h != nil; h = h.next {
		cols = append(cols, &Col{name: h.col.Name(), Vector: h.col.Subset(rows)})
	}

	return NewDF(cols...)
}

// Where returns the rows for which keep is true for the value in colName.
func (df *DF) Where(colName string, keep func(x any) bool) (*DF, error) {
	var (
		col *Col
		e   error
	)
	if col, e = df.Column(colName); e != nil {
		return nil, e
	}

	var rows []int
	for ind := 0; ind < col.Len(); ind++ {
		if keep(col.Element(ind)) {
			rows = append(rows, ind)
		}
	}

	return df.Subset(rows)
}

// Complete returns the row indices that have no missing value in any of colNames.
func (df *DF) Complete(colNames ...string) ([]int, error) {
	var cols []*Col
	for _, cn := range colNames {
		c, e := df.Column(cn)
		if e != nil {
			return nil, e
		}

		cols = append(cols, c)
	}

	var rows []int
	for ind := 0; ind < df.RowCount(); ind++ {
		ok := true
		for _, c := range cols {
			if c.Missing(ind) {
				ok = false
				break
			}
		}

		if ok {
			rows = append(rows, ind)
		}
	}

	return rows, nil
}

// Float returns the column as []float64.
func (df *DF) Float(colName string) ([]float64, error) {
	var (
		col *Col
		e   error
	)
	if col, e = df.Column(colName); e != nil {
		return nil, e
	}

	if col.DataType() == DTdate {
		return nil, fmt.Errorf("column %s is %s, not numeric", colName, col.DataType())
	}

	return col.AsFloat(), nil
}

// Int returns the column as []int.
func (df *DF) Int(colName string) ([]int, error) {
	var (
		col *Col
		e   error
	)
	if col, e = df.Column(colName); e != nil {
		return nil, e
	}

	return col.AsInt()
}

func (df *DF) Strings(colName string) ([]string, error) {
	var (
		col *Col
		e   error
	)
	if col, e = df.Column(colName); e != nil {
		return nil, e
	}

	return col.AsString(), nil
}

// Categorical returns integer codes for the column, indexing its sorted levels. Missing values are -1.
func (df *DF) Categorical(colName string) (codes []int, levels []string, err error) {
	var col *Col
	if col, err = df.Column(colName); err != nil {
		return nil, nil, err
	}

	codes, levels = col.Codes()

	return codes, levels, nil
}

// Sort returns a new DF sorted ascending on keys. The sort is stable.
func (df *DF) Sort(keys ...string) (*DF, error) {
	var by []*Col
	for _, k := range keys {
		c, e := df.Column(k)
		if e != nil {
			return nil, e
		}

		by = append(by, c)
	}

	rows := make([]int, df.RowCount())
	for ind := 0; ind < len(rows); ind++ {
		rows[ind] = ind
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, c := range by {
			if c.Less(rows[i], rows[j]) {
				return true
			}

			if c.Less(rows[j], rows[i]) {
				return false
			}
		}

		return false
	})

	return df.Subset(rows)
}

func (df *DF) String() string {
	var s string
	for h := df.head; h != nil; h = h.next {
		s += h.col.String() + "\n"
	}

	return s
}

type summary struct {
	min, q25, q50, mean, q75, max float64
	n, missing                    int
}

func summarize(xIn []float64) summary {
	var x []float64
	s := summary{}
	for _, xv := range xIn {
		if math.IsNaN(xv) {
			s.missing++
			continue
		}

		x = append(x, xv)
	}

	s.n = len(x)
	if s.n == 0 {
		s.min, s.q25, s.q50, s.mean, s.q75, s.max = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}

	sort.Float64s(x)
	s.min = x[0]
	s.max = x[len(x)-1]
	s.q25 = stat.Quantile(0.25, stat.LinInterp, x, nil)
	s.q50 = stat.Quantile(0.5, stat.LinInterp, x, nil)
	s.q75 = stat.Quantile(0.75, stat.LinInterp, x, nil)
	s.mean = stat.Mean(x, nil)

	return s
}
