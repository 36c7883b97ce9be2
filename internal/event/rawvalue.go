package event

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawKind discriminates the loosely-typed values found in inbound payloads.
type RawKind int

const (
	KindNull RawKind = iota
	KindBool
	KindNumber
	KindString
	KindMap
	KindList
)

func (k RawKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// RawValue is one untrusted payload value. Inbound data is modeled as this
// explicit sum type and pattern-matched during validation; no dynamic casts
// escape this package.
type RawValue struct {
	kind RawKind
	b    bool
	n    float64
	s    string
	m    map[string]RawValue
	l    []RawValue
}

func Null() RawValue             { return RawValue{kind: KindNull} }
func Bool(v bool) RawValue       { return RawValue{kind: KindBool, b: v} }
func Number(v float64) RawValue  { return RawValue{kind: KindNumber, n: v} }
func String(v string) RawValue   { return RawValue{kind: KindString, s: v} }
func List(v []RawValue) RawValue { return RawValue{kind: KindList, l: v} }

func Map(v map[string]RawValue) RawValue {
	if v == nil {
		v = map[string]RawValue{}
	}
	return RawValue{kind: KindMap, m: v}
}

// FromAny wraps a value produced by encoding/json decoding into an `any`.
// Unrecognized Go types degrade to Null rather than panicking; payloads are
// untrusted and must never crash the process.
func FromAny(v any) RawValue {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case string:
		return String(t)
	case map[string]any:
		m := make(map[string]RawValue, len(t))
		for k, mv := range t {
			m[k] = FromAny(mv)
		}
		return Map(m)
	case map[string]RawValue:
		return Map(t)
	case []any:
		l := make([]RawValue, 0, len(t))
		for _, lv := range t {
			l = append(l, FromAny(lv))
		}
		return List(l)
	default:
		return Null()
	}
}

func (v RawValue) Kind() RawKind { return v.kind }

func (v RawValue) IsNull() bool { return v.kind == KindNull }

// AsString returns the string form of a string value. No cross-type coercion:
// a number is not silently a string.
func (v RawValue) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsInt returns an integer from either a number or a numeric-looking string.
// Fractional numbers do not coerce.
func (v RawValue) AsInt() (int64, bool) {
	switch v.kind {
	case KindNumber:
		if v.n != math.Trunc(v.n) {
			return 0, false
		}
		return int64(v.n), true
	case KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func (v RawValue) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v RawValue) AsMap() (map[string]RawValue, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Describe renders the value for diagnostics. Bounded so that a hostile
// payload cannot blow up log lines.
func (v RawValue) Describe() string {
	const maxLen = 120
	var s string
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		s = strconv.Quote(v.s)
	case KindMap:
		s = "map[" + strconv.Itoa(len(v.m)) + " keys]"
	case KindList:
		s = "list[" + strconv.Itoa(len(v.l)) + " items]"
	}
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
