// Package ldvalue provides tolerant handling of the arbitrary JSON values
// that flow through flag variations and clause values.
//
// Flag authors can put any JSON value in a variation slot (bool, number,
// string, array, object, null). Rather than threading a sum type through
// every component, this package normalizes the handful of cases the
// evaluator and preprocessor actually branch on.
package ldvalue

import "encoding/json"

// Null is the canonical representation of a JSON null used inside clause
// value lists, so nil and explicit null compare equal after normalization
// (spec §4.3 "Normalize nulls inside value lists to a canonical null").
var Null = (*struct{})(nil)

// NormalizeValues replaces any nil entries in a value list with Null so
// equality checks in the operator kernel don't need a separate nil case.
func NormalizeValues(values []any) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = Null
		} else {
			out[i] = v
		}
	}
	return out
}

// AsFloat64 converts a decoded JSON number (or a numeric Go value built by
// tests) into a float64. Returns ok=false for anything that isn't numeric.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsString returns v as a string, ok=false if v isn't a string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// UnmarshalLenient decodes data into out, logging nothing and returning no
// error on malformed input — the caller gets a zero-value out instead.
// Grounded on the teacher's snapshot.BuildFromRows "ignore unmarshal
// errors, config stays nil" convention (internal/snapshot/snapshot.go).
func UnmarshalLenient(data []byte, out any) bool {
	if len(data) == 0 {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
