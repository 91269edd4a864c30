package psm

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var dateFormats = []string{"20060102", "1/2/2006", "01/02/2006", "Jan 2, 2006", "January 2, 2006",
	"Jan 2 2006", "January 2 2006", "2006-01-02"}

// *********** Conversions ***********

func toFloat(x any) (any, bool) {
	if f, ok := x.(float64); ok {
		return f, true
	}

	if s, ok := x.(string); ok {
		if missingString(s) {
			return math.NaN(), true
		}

		if f, e := strconv.ParseFloat(strings.TrimSpace(s), 64); e == nil {
			return f, true
		}

		return nil, false
	}

	xv := reflect.ValueOf(x)
	if xv.CanFloat() {
		return xv.Float(), true
	}

	if xv.CanInt() {
		return float64(xv.Int()), true
	}

	if xv.CanUint() {
		return float64(xv.Uint()), true
	}

	return nil, false
}

func toInt(x any) (any, bool) {
	if i, ok := x.(int); ok {
		return i, true
	}

	if s, ok := x.(string); ok {
		if i, e := strconv.ParseInt(strings.TrimSpace(s), 10, 64); e == nil {
			return int(i), true
		}

		return nil, false
	}

	xv := reflect.ValueOf(x)
	if xv.CanInt() {
		return int(xv.Int()), true
	}

	if xv.CanUint() {
		return int(xv.Uint()), true
	}

	if xv.CanFloat() {
		f := xv.Float()
		if math.IsNaN(f) || f != math.Trunc(f) {
			return nil, false
		}

		return int(f), true
	}

	return nil, false
}

func toString(x any) (any, bool) {
	switch v := x.(type) {
	case string:
		return v, true
	case float64:
		if math.IsNaN(v) {
			return "", true
		}

		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case time.Time:
		return v.Format("2006-01-02"), true
	}

	return nil, false
}

func toDate(x any) (any, bool) {
	if d, ok := x.(time.Time); ok {
		return d, true
	}

	xv := reflect.ValueOf(x)
	if xv.CanInt() {
		return toDate(fmt.Sprintf("%d", xv.Int()))
	}

	if d, ok := x.(string); ok {
		for _, fmtx := range dateFormats {
			if dt, e := time.Parse(fmtx, strings.ReplaceAll(d, "'", "")); e == nil {
				return dt, true
			}
		}
	}

	return nil, false
}

// bestType finds the narrowest type that holds xIn: int, then float, then date, then string.
func bestType(xIn string) DataTypes {
	if _, ok := toInt(xIn); ok {
		return DTint
	}

	if missingString(xIn) {
		return DTunknown
	}

	if _, ok := toFloat(xIn); ok {
		return DTfloat
	}

	if _, ok := toDate(xIn); ok {
		return DTdate
	}

	return DTstring
}

// promote returns the type that can hold both a column currently typed dt and a new value typed next.
func promote(dt, next DataTypes) DataTypes {
	switch {
	case next == DTunknown:
		if dt == DTint {
			return DTfloat
		}

		return dt
	case dt == DTunknown:
		return next
	case dt == next:
		return dt
	case (dt == DTint && next == DTfloat) || (dt == DTfloat && next == DTint):
		return DTfloat
	default:
		return DTstring
	}
}

func WhatAmI(val any) DataTypes {
	switch val.(type) {
	case float64, []float64:
		return DTfloat
	case int, []int:
		return DTint
	case string, []string:
		return DTstring
	case time.Time, []time.Time:
		return DTdate
	default:
		return DTunknown
	}
}

func toSlc(xIn any, target DataTypes) (any, bool) {
	typSlc := []reflect.Type{reflect.TypeOf([]float64{}), reflect.TypeOf([]int{}), reflect.TypeOf([]string{""}), reflect.TypeOf([]time.Time{})}
	toFns := []func(a any) (any, bool){toFloat, toInt, toString, toDate}

	x := reflect.ValueOf(xIn)

	var indx int
	switch target {
	case DTfloat:
		indx = 0
	case DTint:
		indx = 1
	case DTstring:
		indx = 2
	case DTdate:
		indx = 3
	default:
		return nil, false
	}

	outType := typSlc[indx]

	// nothing to do
	if x.Type() == outType {
		return xIn, true
	}

	toFn := toFns[indx]
	if x.Kind() == reflect.Slice {
		xOut := reflect.MakeSlice(outType, x.Len(), x.Len())
		for ind := 0; ind < x.Len(); ind++ {
			var (
				val any
				ok  bool
			)

			if val, ok = toFn(x.Index(ind).Interface()); !ok {
				return nil, false
			}

			xOut.Index(ind).Set(reflect.ValueOf(val))
		}

		return xOut.Interface(), true
	}

	// input is not a slice:
	if val, ok := toFn(xIn); ok {
		xOut := reflect.MakeSlice(outType, 1, 1)
		xOut.Index(0).Set(reflect.ValueOf(val))
		return xOut.Interface(), true
	}

	return nil, false
}

// *********** Other ***********

// Has reports whether needle is in haystack.
func Has[C comparable](needle C, haystack []C) bool {
	return Position(needle, haystack) >= 0
}

// Position returns the index of needle in haystack, -1 if absent.
func Position[C comparable](needle C, haystack []C) int {
	for ind, straw := range haystack {
		if needle == straw {
			return ind
		}
	}

	return -1
}

func validName(name string) bool {
	const illegal = "!@#$%^&*()=+-;:'`/.,>< ~ " + `"`

	return name != "" && !strings.ContainsAny(name, illegal)
}
