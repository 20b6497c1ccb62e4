package sml

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind tags the representation held by a Value.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "text"
	}
}

// Value is a reading as found on a data line: an integer, a float or,
// when neither parses, the raw text.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(i int64) Value { return Value{kind: KindInt, i: i} }

func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

func Text(s string) Value { return Value{kind: KindText, s: s} }

// Coerce tries an integer, then a decimal float, and falls back to text.
// Non-finite and hexadecimal floats stay text: no meter reports them and
// they cannot be encoded as JSON numbers.
func Coerce(text string) Value {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(i)
	}
	if strings.ContainsAny(text, "xX") {
		return Text(text)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return Float(f)
	}
	return Text(text)
}

func (v Value) Kind() Kind { return v.kind }

// IsNumeric reports whether the value holds an Int or a Float.
func (v Value) IsNumeric() bool { return v.kind != KindText }

// Float64 returns the numeric view of v. ok is false for text values.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// String renders v the way it is published as a scalar payload.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	default:
		return v.s
	}
}

// formatFloat keeps a trailing ".0" on integral floats so a float reading
// never reads back as an integer.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.ContainsAny(s, ".e") {
		return s
	}
	return s + ".0"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return json.Marshal(v.f)
		}
		return []byte(formatFloat(v.f)), nil
	default:
		return json.Marshal(v.s)
	}
}
