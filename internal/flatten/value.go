package flatten

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
)

// Value is a string, int or float cell. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) Str() string       { return v.s }
func (v Value) IntVal() int64     { return v.i }
func (v Value) FloatVal() float64 { return v.f }

// Interface returns the underlying Go value (string, int64, float64 or nil).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	default:
		return nil
	}
}

// Text renders v for CSV output. Integral floats keep a ".0" suffix so they
// stay distinguishable from ints.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	default:
		return ""
	}
}

func (v Value) String() string { return v.Text() }

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
