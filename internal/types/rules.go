// internal/types/rules.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

/*
 * Domain types for decision tables.
 *
 * DecisionTable carries the hit policy and the declared input/output
 * schemas; Rule carries a priority and its logic block. Both persisted rows
 * and ad-hoc simulation definitions are converted to Rule at the boundary so
 * the engine walks a single shape.
 *
 * Conditions preserve declaration order from the wire format. Go maps do not,
 * and evaluation traces must list fields the way the author wrote them.
 */

// DecisionTable is a named set of rules sharing a hit policy and schema.
type DecisionTable struct {
	ID           TableID   `json:"id" db:"id"`
	Slug         string    `json:"slug" db:"slug"`
	ObjectType   string    `json:"object_type" db:"object_type"`
	Description  string    `json:"description" db:"description"`
	HitPolicy    HitPolicy `json:"hit_policy" db:"hit_policy"`
	InputSchema  Schema    `json:"input_schema" db:"-"`
	OutputSchema Schema    `json:"output_schema" db:"-"`
}

// SchemaEnforced reports whether rules must conform to the table schema.
// Unschemed tables accept any field references.
func (t *DecisionTable) SchemaEnforced() bool {
	return len(t.InputSchema) > 0 || len(t.OutputSchema) > 0
}

// Rule is the single rule shape seen by the engine.
type Rule struct {
	ID       RuleID    `json:"id"`
	TableID  TableID   `json:"table_id,omitempty"`
	Priority int       `json:"priority"`
	Logic    RuleLogic `json:"logic"`
}

// SortRules orders rules by ascending priority. Equal priorities keep their
// relative order.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}

// RuleLogic is the {inputs, outputs} block of a rule.
type RuleLogic struct {
	Inputs  Conditions     `json:"inputs"`
	Outputs map[string]any `json:"outputs"`
}

// Condition pairs an input field with its condition text.
type Condition struct {
	Field string
	Expr  string
}

// Conditions is an ordered field -> condition mapping. It marshals as a JSON
// object.
type Conditions []Condition

// Get returns the condition for field.
func (c Conditions) Get(field string) (string, bool) {
	for _, cond := range c {
		if cond.Field == field {
			return cond.Expr, true
		}
	}
	return "", false
}

// Has reports whether field is declared.
func (c Conditions) Has(field string) bool {
	_, ok := c.Get(field)
	return ok
}

// MarshalJSON writes the conditions as an object in declaration order.
func (c Conditions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cond := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(cond.Field)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(cond.Expr)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order. Non-string condition
// values are stringified; null becomes the blank (wildcard) condition.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("inputs must be a JSON object")
	}

	out := Conditions{}
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("inputs key must be a string")
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		expr := conditionText(raw)
		if idx, dup := seen[key]; dup {
			out[idx].Expr = expr
			continue
		}
		seen[key] = len(out)
		out = append(out, Condition{Field: key, Expr: expr})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return err
	}
	*c = out
	return nil
}

func conditionText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return FormatValue(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// OutputKeys returns the output field names in sorted order.
func (l RuleLogic) OutputKeys() []string {
	keys := make([]string, 0, len(l.Outputs))
	for k := range l.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Slug and object-type charset check shared by table validation.
func validSlug(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// MaxDescriptionLength bounds the free-text table description.
const MaxDescriptionLength = 240

// TableSpec is the caller-supplied definition of a table before it is
// persisted or simulated.
type TableSpec struct {
	Slug         string            `json:"slug" yaml:"slug"`
	ObjectType   string            `json:"object_type,omitempty" yaml:"object_type"`
	Description  string            `json:"description,omitempty" yaml:"description"`
	HitPolicy    string            `json:"hit_policy,omitempty" yaml:"hit_policy"`
	InputSchema  map[string]string `json:"input_schema,omitempty" yaml:"input_schema"`
	OutputSchema map[string]string `json:"output_schema,omitempty" yaml:"output_schema"`
}

// Normalize validates the spec and returns the table it describes (without
// an ID).
func (s TableSpec) Normalize() (DecisionTable, error) {
	slug := strings.TrimSpace(s.Slug)
	if slug == "" {
		return DecisionTable{}, NewValidationError("Table slug is required.")
	}
	if !validSlug(slug) {
		return DecisionTable{}, NewValidationError("Table slug can use letters, numbers, underscore, and hyphen.")
	}

	objectType := strings.TrimSpace(s.ObjectType)
	if objectType != "" && !validSlug(objectType) {
		return DecisionTable{}, NewValidationError("Object type can use letters, numbers, underscore, and hyphen.")
	}

	desc := strings.TrimSpace(s.Description)
	if len([]rune(desc)) > MaxDescriptionLength {
		return DecisionTable{}, NewValidationError("Description must be %d characters or less.", MaxDescriptionLength)
	}

	policy, err := ParseHitPolicy(s.HitPolicy)
	if err != nil {
		return DecisionTable{}, err
	}

	in, err := NormalizeSchema(s.InputSchema)
	if err != nil {
		return DecisionTable{}, err
	}
	out, err := NormalizeSchema(s.OutputSchema)
	if err != nil {
		return DecisionTable{}, err
	}

	var overlap []string
	for k := range in {
		if _, ok := out[k]; ok {
			overlap = append(overlap, "'"+k+"'")
		}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		return DecisionTable{}, NewValidationError(
			"Input and output field names must be distinct. Overlap: [%s]", strings.Join(overlap, ", "))
	}

	return DecisionTable{
		Slug:         slug,
		ObjectType:   objectType,
		Description:  desc,
		HitPolicy:    policy,
		InputSchema:  in,
		OutputSchema: out,
	}, nil
}
