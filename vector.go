package psm

import (
	"fmt"
	"math"
	"time"
)

// DataTypes are the types of data that the package supports
type DataTypes uint8

// values of DataTypes
const (
	DTunknown DataTypes = 0 + iota
	DTstring
	DTfloat
	DTint
	DTdate
)

// max value of DataTypes type
const MaxDT = DTdate

func (dt DataTypes) String() string {
	switch dt {
	case DTstring:
		return "DTstring"
	case DTfloat:
		return "DTfloat"
	case DTint:
		return "DTint"
	case DTdate:
		return "DTdate"
	default:
		return "DTunknown"
	}
}

func DTFromString(nm string) DataTypes {
	for ind := DataTypes(0); ind <= MaxDT; ind++ {
		if ind.String() == nm {
			return ind
		}
	}

	return DTunknown
}

// Vector holds a slice of one of the supported types.
type Vector struct {
	dt DataTypes

	data any
}

func NewVector(data any, dt DataTypes) (*Vector, error) {
	var (
		v  any
		ok bool
	)
	if v, ok = toSlc(data, dt); !ok {
		return nil, fmt.Errorf("cannot make vector of type %s", dt)
	}

	return &Vector{dt: dt, data: v}, nil
}

func MakeVector(dt DataTypes, n int) *Vector {
	switch dt {
	case DTfloat:
		return &Vector{dt: dt, data: make([]float64, n)}
	case DTint:
		return &Vector{dt: dt, data: make([]int, n)}
	case DTstring:
		return &Vector{dt: dt, data: make([]string, n)}
	case DTdate:
		return &Vector{dt: dt, data: make([]time.Time, n)}
	default:
		panic(fmt.Errorf("cannot make Vector with data type %s", dt))
	}
}

func (v *Vector) VectorType() DataTypes {
	return v.dt
}

func (v *Vector) Len() int {
	switch v.dt {
	case DTfloat:
		return len(v.data.([]float64))
	case DTint:
		return len(v.data.([]int))
	case DTstring:
		return len(v.data.([]string))
	case DTdate:
		return len(v.data.([]time.Time))
	default:
		return -1
	}
}

func (v *Vector) check(dt DataTypes, indx int) {
	if v.dt != dt {
		panic(fmt.Errorf("vector isn't %s", dt))
	}

	if indx < 0 || indx >= v.Len() {
		panic(fmt.Errorf("index out of range"))
	}
}

func (v *Vector) SetFloat(val float64, indx int) {
	v.check(DTfloat, indx)
	v.data.([]float64)[indx] = val
}

func (v *Vector) SetInt(val, indx int) {
	v.check(DTint, indx)
	v.data.([]int)[indx] = val
}

func (v *Vector) SetString(val string, indx int) {
	v.check(DTstring, indx)
	v.data.([]string)[indx] = val
}

func (v *Vector) SetDate(val time.Time, indx int) {
	v.check(DTdate, indx)
	v.data.([]time.Time)[indx] = val
}

func (v *Vector) AsAny() any {
	return v.data
}

// AsFloat returns the data as []float64. Strings that don't parse are NaN.
func (v *Vector) AsFloat() []float64 {
	switch v.dt {
	case DTfloat:
		return v.data.([]float64)
	case DTint:
		xOut := make([]float64, v.Len())
		for ind, xx := range v.data.([]int) {
			xOut[ind] = float64(xx)
		}

		return xOut
	case DTstring:
		xOut := make([]float64, v.Len())
		for ind, xx := range v.data.([]string) {
			xOut[ind] = math.NaN()
			if f, ok := toFloat(xx); ok {
				xOut[ind] = f.(float64)
			}
		}

		return xOut
	default:
		panic(fmt.Errorf("cannot convert %s to Vector.AsFloat", v.dt))
	}
}

func (v *Vector) AsInt() ([]int, error) {
	switch v.dt {
	case DTint:
		return v.data.([]int), nil
	case DTfloat:
		xOut := make([]int, v.Len())
		for ind, xx := range v.data.([]float64) {
			if math.IsNaN(xx) {
				return nil, fmt.Errorf("NaN at row %d cannot be an int", ind)
			}

			xOut[ind] = int(xx)
		}

		return xOut, nil
	case DTstring:
		xOut := make([]int, v.Len())
		for ind, xx := range v.data.([]string) {
			i, ok := toInt(xx)
			if !ok {
				return nil, fmt.Errorf("cannot convert %q at row %d to int", xx, ind)
			}

			xOut[ind] = i.(int)
		}

		return xOut, nil
	default:
		return nil, fmt.Errorf("cannot convert %s to int", v.dt)
	}
}

func (v *Vector) AsString() []string {
	if v.dt == DTstring {
		return v.data.([]string)
	}

	xOut := make([]string, v.Len())
	for ind := 0; ind < v.Len(); ind++ {
		s, _ := toString(v.Element(ind))
		xOut[ind] = s.(string)
	}

	return xOut
}

func (v *Vector) AsDate() ([]time.Time, error) {
	if v.dt == DTdate {
		return v.data.([]time.Time), nil
	}

	var (
		x  any
		ok bool
	)
	if x, ok = toSlc(v.data, DTdate); !ok {
		return nil, fmt.Errorf("cannot convert %s to date", v.dt)
	}

	return x.([]time.Time), nil
}

func (v *Vector) Element(indx int) any {
	if indx < 0 || indx >= v.Len() {
		panic(fmt.Errorf("index out of range"))
	}

	switch v.dt {
	case DTfloat:
		return v.data.([]float64)[indx]
	case DTint:
		return v.data.([]int)[indx]
	case DTstring:
		return v.data.([]string)[indx]
	case DTdate:
		return v.data.([]time.Time)[indx]
	default:
		panic(fmt.Errorf("error in Element"))
	}
}

// Missing reports whether row indx holds a missing value: NaN for floats,
// blank or "NA" for strings.
func (v *Vector) Missing(indx int) bool {
	switch v.dt {
	case DTfloat:
		return math.IsNaN(v.data.([]float64)[indx])
	case DTstring:
		return missingString(v.data.([]string)[indx])
	default:
		return false
	}
}

func (v *Vector) Copy() *Vector {
	return v.Subset(nil)
}

// Subset returns a new Vector with the elements at rows, in that order. nil rows copies everything.
func (v *Vector) Subset(rows []int) *Vector {
	if rows == nil {
		rows = make([]int, v.Len())
		for ind := 0; ind < len(rows); ind++ {
			rows[ind] = ind
		}
	}

	out := MakeVector(v.dt, len(rows))
	for ind, r := range rows {
		switch v.dt {
		case DTfloat:
			out.data.([]float64)[ind] = v.data.([]float64)[r]
		case DTint:
			out.data.([]int)[ind] = v.data.([]int)[r]
		case DTstring:
			out.data.([]string)[ind] = v.data.([]string)[r]
		case DTdate:
			out.data.([]time.Time)[ind] = v.data.([]time.Time)[r]
		}
	}

	return out
}

func (v *Vector) Less(i, j int) bool {
	switch v.dt {
	case DTfloat:
		return v.data.([]float64)[i] < v.data.([]float64)[j]
	case DTint:
		return v.data.([]int)[i] < v.data.([]int)[j]
	case DTstring:
		return v.data.([]string)[i] < v.data.([]string)[j]
	case DTdate:
		return v.data.([]time.Time)[i].Before(v.data.([]time.Time)[j])
	default:
		panic(fmt.Errorf("unsupported data type in Less"))
	}
}

func missingString(s string) bool {
	return s == "" || s == "NA" || s == "NaN"
}
