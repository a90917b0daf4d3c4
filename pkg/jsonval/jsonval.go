// Package jsonval normalizes values crossing the guest-script boundary.
//
// The guest language is dynamically typed, so input and return values are
// represented as plain JSON-compatible Go values (nil, bool, float64,
// string, []any, map[string]any) rather than relying on host object
// identity. Normalization goes through encoding/json, which also rejects
// values with no JSON representation (NaN, Inf, channels, cycles).
package jsonval

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Normalize converts v to its canonical JSON-compatible form.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("re-reading normalized value: %w", err)
	}
	return out, nil
}

// NormalizeMap normalizes every value of m. A nil map yields an empty map.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		nv, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// Equal reports deep equality of two values after normalization. Values
// that cannot be normalized are never equal.
func Equal(a, b any) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}
