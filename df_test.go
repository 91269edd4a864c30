package psm

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDF() *DF {
	x, _ := NewCol([]float64{1, -2, 3, 0, 2, math.NaN()}, DTfloat, ColName("x"))
	y, _ := NewCol([]int{1, -5, 6, 1, 4, 5}, DTint, ColName("y"))
	z, _ := NewCol([]string{"b", "a", "c", "a", "", "b"}, DTstring, ColName("z"))
	df, e := NewDF(x, y, z)
	if e != nil {
		panic(e)
	}

	return df
}

func TestNewDF(t *testing.T) {
	df := testDF()
	assert.Equal(t, 6, df.RowCount())
	assert.Equal(t, 3, df.ColumnCount())
	assert.Equal(t, []string{"x", "y", "z"}, df.ColumnNames())
	assert.Equal(t, []DataTypes{DTfloat, DTint, DTstring}, df.ColumnTypes())

	_, e := NewDF()
	assert.NotNil(t, e)

	short, _ := NewCol([]int{1, 2}, DTint, ColName("short"))
	assert.NotNil(t, df.AppendColumn(short))

	dup, _ := NewCol([]int{1, 2, 3, 4, 5, 6}, DTint, ColName("y"))
	assert.NotNil(t, df.AppendColumn(dup))

	_, e1 := NewCol([]int{1}, DTint, ColName("bad name"))
	assert.NotNil(t, e1)
}

func TestDF_Column(t *testing.T) {
	df := testDF()

	yg, ey := df.Column("y")
	assert.Nil(t, ey)
	assert.Equal(t, []int{1, -5, 6, 1, 4, 5}, yg.Data().AsAny())

	_, e := df.Column("nope")
	assert.NotNil(t, e)

	assert.Nil(t, df.HasColumns("x", "z"))
	assert.NotNil(t, df.HasColumns("x", "q"))

	n := 0
	for c := df.Next(true); c != nil; c = df.Next(false) {
		n++
	}
	assert.Equal(t, 3, n)
}

func TestDF_Subset(t *testing.T) {
	df := testDF()

	sub, e := df.Subset([]int{4, 0})
	require.Nil(t, e)
	assert.Equal(t, 2, sub.RowCount())
	y, _ := sub.Int("y")
	assert.Equal(t, []int{4, 1}, y)

	// original untouched
	yAll, _ := df.Int("y")
	assert.Equal(t, []int{1, -5, 6, 1, 4, 5}, yAll)

	empty, e1 := df.Subset(nil)
	assert.Nil(t, e1)
	assert.Equal(t, 0, empty.RowCount())
	assert.Equal(t, 3, empty.ColumnCount())

	_, e2 := df.Subset([]int{6})
	assert.NotNil(t, e2)
}

func TestDF_Where(t *testing.T) {
	df := testDF()
	pos, e := df.Where("y", func(x any) bool { return x.(int) > 1 })
	assert.Nil(t, e)
	z, _ := pos.Strings("z")
	assert.Equal(t, []string{"c", "", "b"}, z)

	_, e1 := df.Where("nope", func(x any) bool { return true })
	assert.NotNil(t, e1)
}

func TestDF_Complete(t *testing.T) {
	df := testDF()
	rows, e := df.Complete("x", "z")
	assert.Nil(t, e)
	assert.Equal(t, []int{0, 1, 2, 3}, rows)

	rows, e = df.Complete("y")
	assert.Nil(t, e)
	assert.Len(t, rows, 6)
}

func TestDF_Sort(t *testing.T) {
	df := testDF()
	sorted, e := df.Sort("z", "y")
	assert.Nil(t, e)
	z, _ := sorted.Strings("z")
	y, _ := sorted.Int("y")
	assert.Equal(t, []string{"", "a", "a", "b", "b", "c"}, z)
	assert.Equal(t, []int{4, -5, 1, 1, 5, 6}, y)
}

func TestCol_Codes(t *testing.T) {
	df := testDF()
	z, _ := df.Column("z")
	codes, levels := z.Codes()
	assert.Equal(t, []string{"a", "b", "c"}, levels)
	assert.Equal(t, []int{1, 0, 2, 0, -1, 1}, codes)

	y, _ := df.Column("y")
	assert.Equal(t, []string{"-5", "1", "4", "5", "6"}, y.Levels())

	yc, yl, e := df.Categorical("y")
	assert.Nil(t, e)
	assert.Equal(t, []int{1, 0, 4, 1, 2, 3}, yc)
	assert.Len(t, yl, 5)

	_, _, e = df.Categorical("nope")
	assert.NotNil(t, e)
}

func TestVector(t *testing.T) {
	v, e := NewVector([]string{"1", "2.5", "NA"}, DTfloat)
	assert.Nil(t, e)
	x := v.AsFloat()
	assert.Equal(t, 1.0, x[0])
	assert.Equal(t, 2.5, x[1])
	assert.True(t, math.IsNaN(x[2]))
	assert.True(t, v.Missing(2))

	_, e1 := NewVector([]string{"a"}, DTint)
	assert.NotNil(t, e1)

	iv := MakeVector(DTint, 2)
	iv.SetInt(3, 1)
	assert.Equal(t, []float64{0, 3}, iv.AsFloat())
	assert.Panics(t, func() { iv.SetFloat(1, 0) })
	assert.Panics(t, func() { iv.SetInt(1, 5) })

	s := iv.AsString()
	assert.Equal(t, []string{"0", "3"}, s)
}

func TestString(t *testing.T) {
	df := testDF()
	s := df.String()
	assert.Contains(t, s, "column: x")
	assert.Contains(t, s, "median")
	fmt.Println(df)
}

func TestPromote(t *testing.T) {
	assert.Equal(t, DTint, bestType("12"))
	assert.Equal(t, DTfloat, bestType("1.5"))
	assert.Equal(t, DTunknown, bestType("NA"))
	assert.Equal(t, DTdate, bestType("2021-03-04"))
	assert.Equal(t, DTstring, bestType("Russian"))

	assert.Equal(t, DTfloat, promote(DTint, DTfloat))
	assert.Equal(t, DTfloat, promote(DTint, DTunknown))
	assert.Equal(t, DTstring, promote(DTint, DTstring))
	assert.Equal(t, DTint, promote(DTunknown, DTint))
	assert.Equal(t, DTfloat, DTFromString("DTfloat"))
}

func TestHas(t *testing.T) {
	assert.True(t, Has("sex", []string{"birth_year", "sex"}))
	assert.False(t, Has(3, []int{1, 2}))
	assert.Equal(t, 1, Position(2.5, []float64{1, 2.5}))
	assert.Equal(t, -1, Position("x", nil))
}
