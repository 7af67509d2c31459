package types

import (
	"encoding/json"
	"math"
)

// Value is one raw field of a decoded document. It keeps the difference
// between a field that is missing and a field that is explicitly null.
type Value struct {
	raw any
	set bool
}

// ValueOf wraps v as a present field.
func ValueOf(v any) Value {
	return Value{raw: v, set: true}
}

// lookup reads key from m, reporting absence as the zero Value.
func lookup(m map[string]any, key string) Value {
	if m == nil {
		return Value{}
	}
	v, ok := m[key]
	if !ok {
		return Value{}
	}
	return ValueOf(v)
}

func (v Value) IsSet() bool { return v.set }

func (v Value) Raw() any { return v.raw }

// IsNotEmpty is false for an absent field, a null field, an empty string
// and an empty array. Everything else counts as present, including "0",
// 0 and false.
func (v Value) IsNotEmpty() bool {
	if !v.set || v.raw == nil {
		return false
	}
	switch t := v.raw.(type) {
	case string:
		return len(t) != 0
	case []any:
		return len(t) != 0
	}
	return true
}

// Truthy follows JavaScript truthiness: absent, null, false, 0, NaN and ""
// are falsy. Objects and arrays are truthy even when empty.
func (v Value) Truthy() bool {
	if !v.set || v.raw == nil {
		return false
	}
	switch t := v.raw.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return true
		}
		return f != 0 && !math.IsNaN(f)
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return true
}

// Text returns the field as a string when it is a string or a number.
func (v Value) Text() (string, bool) {
	if !v.set {
		return "", false
	}
	switch t := v.raw.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64, int, int64:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	return "", false
}
