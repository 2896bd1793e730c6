package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the dynamic type of a feature value.
type Kind uint8

const (
	// KindInvalid marks values that are neither numbers nor strings (null, objects, arrays).
	KindInvalid Kind = iota
	// KindNumber is a numeric value.
	KindNumber
	// KindString is a text value.
	KindString
)

// Value is an immutable feature value: a number or a string.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// Number creates a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Uint creates a numeric value from an unsigned header field.
func Uint(u uint64) Value { return Value{kind: KindNumber, num: float64(u)} }

// Int creates a numeric value from a count.
func Int(i int) Value { return Value{kind: KindNumber, num: float64(i)} }

// String creates a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Kind returns the value's dynamic type.
func (v Value) Kind() Kind { return v.kind }

// Text returns the string form of the value.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		return ""
	}
}

// Float returns the numeric form of the value. Numeric strings are accepted.
// ok is false for non-numeric or non-finite values.
func (v Value) Float() (f float64, ok bool) {
	switch v.kind {
	case KindNumber:
		f = v.num
	case KindString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MarshalJSON encodes numbers as JSON numbers and strings as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("non-finite feature value %v", v.num)
		}
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON number or string; anything else becomes KindInvalid.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty feature value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string value: %w", err)
		}
		*v = String(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			// Out-of-range literals are kept as invalid rather than failing the whole payload.
			*v = Value{}
			return nil //nolint:nilerr // reported later by schema enforcement
		}
		*v = Number(f)
	default:
		if !json.Valid(data) {
			return fmt.Errorf("invalid feature value %q", data)
		}
		*v = Value{}
	}
	return nil
}
