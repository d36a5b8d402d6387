// Package convert provides loose numeric coercion for values decoded
// from JSON or YAML where the wire type is not guaranteed.
package convert

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ToFloat64 converts common numeric wire types to float64. The second
// return value reports whether the conversion succeeded.
func ToFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt converts v to int, truncating fractional parts.
func ToInt(v any) (int, bool) {
	f, ok := ToFloat64(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
