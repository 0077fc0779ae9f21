package market

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is a float64 that may be undefined. Indicator warm-up slots and
// degenerate computations (0/0, ±Inf) are carried as Undefined instead of
// NaN so they never reach a JSON encoder or a comparison by accident.
type Value struct {
	v  float64
	ok bool
}

// Undefined is the zero Value.
var Undefined = Value{}

// Defined wraps x. NaN and ±Inf become Undefined.
func Defined(x float64) Value {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return Undefined
	}
	return Value{v: x, ok: true}
}

func (v Value) IsDefined() bool { return v.ok }

// Float64 returns the value and whether it is defined.
func (v Value) Float64() (float64, bool) { return v.v, v.ok }

// Or returns the value, or def when undefined.
func (v Value) Or(def float64) float64 {
	if !v.ok {
		return def
	}
	return v.v
}

// Ptr returns nil for Undefined.
func (v Value) Ptr() *float64 {
	if !v.ok {
		return nil
	}
	x := v.v
	return &x
}

func (v Value) String() string {
	if !v.ok {
		return "undefined"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = Undefined
		return nil
	}
	var x float64
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	*v = Defined(x)
	return nil
}

// Series is an indicator output aligned index-for-index with its input.
type Series []Value

// At returns Undefined for out-of-range indices.
func (s Series) At(i int) Value {
	if i < 0 || i >= len(s) {
		return Undefined
	}
	return s[i]
}

// Tail returns the last n values (or all of them when n <= 0 or n >= len).
func (s Series) Tail(n int) Series {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
