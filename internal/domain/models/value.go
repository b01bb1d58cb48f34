package models

import (
	"math"
	"strconv"
)

// Value is an optional float. Missing observations and undefined indicator
// cells are represented by OK == false, never by NaN.
type Value struct {
	V  float64
	OK bool
}

// Some wraps v, mapping NaN and infinities to a missing value.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{V: v, OK: true}
}

// None is the missing value.
var None = Value{}

// Or returns the value or def when missing.
func (v Value) Or(def float64) float64 {
	if !v.OK {
		return def
	}
	return v.V
}

// Format renders the value with the given strconv format and precision, or "n/a".
func (v Value) Format(fmtByte byte, prec int) string {
	if !v.OK {
		return "n/a"
	}
	return strconv.FormatFloat(v.V, fmtByte, prec, 64)
}
