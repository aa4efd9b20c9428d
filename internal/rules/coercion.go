// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/solatis/decider/internal/types"
)

/*
 * Value coercion for condition evaluation.
 *
 * Context values arrive as decoded JSON (float64, string, bool, nil, maps,
 * slices) or, from YAML table files, as Go ints. Two numeric views exist:
 *
 *   - toFloat64: strict. Only numeric kinds count. Used where the grammar
 *     asks "is the input numeric" (IN set selection, fallback equality).
 *   - coerceNumeric: lenient. Numeric strings parse too. Used by range and
 *     comparison, which accept "42" as well as 42.
 *
 * Booleans are never numeric in either view. Maps and slices never coerce,
 * so feeding them to a numeric operator yields false instead of an error.
 *
 * Text comparison goes through types.FormatValue so conditions and context
 * values render identically (True/False, integral floats without fraction).
 */

// toFloat64 converts value to float64 if it's a numeric type.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceNumeric extends toFloat64 to numeric strings.
// Whitespace-only strings are not numbers.
func coerceNumeric(v any) (float64, bool) {
	if f, ok := toFloat64(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// stringify renders v for textual comparison.
func stringify(v any) string {
	return types.FormatValue(v)
}
