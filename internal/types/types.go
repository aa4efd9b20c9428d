// Package types provides domain models shared across decider components.
//
// Decision tables, rules and the attribute registry are plain structs with
// JSON tags; persistence and transport packages convert at their boundary so
// the rules engine only ever sees these shapes. ID utilities in ids.go import
// uuid; everything else depends on the standard library only.
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TableID represents a UUIDv7 decision table identifier.
type TableID string

// RuleID represents a rule identifier. Persisted rules carry UUIDv7 values;
// simulated rules may carry caller-chosen ids such as "sim-10".
type RuleID string

// Context is the transient field-name to value mapping a decision is
// evaluated against. Values are JSON scalars as decoded by encoding/json.
type Context map[string]any

// Clone returns a shallow copy so hydration never mutates caller state.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// HitPolicy selects how simultaneously matching rules reduce to one decision.
type HitPolicy string

const (
	HitPolicyFirstHit   HitPolicy = "FIRST_HIT"
	HitPolicyUnique     HitPolicy = "UNIQUE"
	HitPolicyCollectAll HitPolicy = "COLLECT_ALL"
)

// ParseHitPolicy normalizes s. Blank input defaults to FIRST_HIT.
func ParseHitPolicy(s string) (HitPolicy, error) {
	switch p := HitPolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return HitPolicyFirstHit, nil
	case HitPolicyFirstHit, HitPolicyUnique, HitPolicyCollectAll:
		return p, nil
	default:
		return "", NewValidationError("Unsupported hit policy '%s'. Allowed: COLLECT_ALL, FIRST_HIT, UNIQUE.", s)
	}
}

// FieldType is a schema type tag for a table input or output field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDecimal FieldType = "decimal"
	FieldTypeBoolean FieldType = "boolean"
)

var allowedFieldTypes = map[FieldType]bool{
	FieldTypeString:  true,
	FieldTypeNumber:  true,
	FieldTypeDecimal: true,
	FieldTypeBoolean: true,
}

// IsNumeric reports whether the type accepts range and comparison conditions.
func (f FieldType) IsNumeric() bool {
	return f == FieldTypeNumber || f == FieldTypeDecimal
}

// Schema maps field names to their declared types.
type Schema map[string]FieldType

// Keys returns the field names in sorted order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeSchema trims field names and lower-cases type tags, rejecting
// blank names and types outside the allowed set.
func NormalizeSchema(raw map[string]string) (Schema, error) {
	out := make(Schema, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, rawKey := range keys {
		key := strings.TrimSpace(rawKey)
		if key == "" {
			return nil, NewValidationError("Schema field names cannot be empty.")
		}
		ft := FieldType(strings.ToLower(strings.TrimSpace(raw[rawKey])))
		if !allowedFieldTypes[ft] {
			return nil, NewValidationError(
				"Unsupported schema type '%s' for field '%s'. Allowed types: boolean, decimal, number, string.",
				raw[rawKey], key)
		}
		out[key] = ft
	}
	return out, nil
}

// FormatValue renders a context or condition value the way conditions
// compare textually: integral floats without a fraction, booleans as
// True/False.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
