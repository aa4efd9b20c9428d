// internal/rules/schema.go
package rules

import (
	"regexp"
	"strings"

	"github.com/solatis/decider/internal/types"
)

/*
 * Schema validation.
 *
 * Checks run in a fixed order and stop at the first violation:
 *   1. every input_schema field appears in the rule inputs (sorted order)
 *   2. every rule input is declared, and its condition shape suits the type
 *   3. every rule output is declared
 *
 * Shape detection is syntactic and independent of ValidateSyntax: "5..1"
 * is a range shape even though it is not a valid range.
 *
 * Callers only validate when the table schema is enforced (non-empty input
 * or output schema); unschemed tables accept any field references.
 */

var cpShapeRe = regexp.MustCompile(`(?i)^CP\s+.+$`)

// ValidateRuleAgainstSchema checks logic against the declared schemas.
func ValidateRuleAgainstSchema(logic types.RuleLogic, input, output types.Schema) error {
	for _, key := range input.Keys() {
		if !logic.Inputs.Has(key) {
			return types.NewValidationError("Missing required input field '%s'", key)
		}
	}

	for _, cond := range logic.Inputs {
		fieldType, ok := input[cond.Field]
		if !ok {
			return types.NewValidationError("Input field '%s' not defined in table schema", cond.Field)
		}

		s := strings.TrimSpace(cond.Expr)
		isCP := cpShapeRe.MatchString(s)
		isRange := rangeRe.MatchString(s)
		isComparison := s != "" && (s[0] == '>' || s[0] == '<')

		switch {
		case fieldType == types.FieldTypeBoolean && (isRange || isComparison):
			return types.NewValidationError("Field '%s' is boolean and does not support range or comparison logic", cond.Field)
		case fieldType == types.FieldTypeBoolean && isCP:
			return types.NewValidationError("Field '%s' is boolean and does not support CP pattern logic", cond.Field)
		case fieldType.IsNumeric() && isCP:
			return types.NewValidationError("Field '%s' is numeric and does not support CP pattern logic", cond.Field)
		case fieldType == types.FieldTypeString && (isRange || isComparison):
			return types.NewValidationError("Field '%s' is string and does not support numeric range/comparison operators", cond.Field)
		}
	}

	for _, key := range logic.OutputKeys() {
		if _, ok := output[key]; !ok {
			return types.NewValidationError("Output field '%s' not defined in table schema", key)
		}
	}
	return nil
}

// ValidateRuleSyntax returns an error naming the first input, in
// declaration order, whose condition fails ValidateSyntax.
func ValidateRuleSyntax(logic types.RuleLogic) error {
	for _, cond := range logic.Inputs {
		if !ValidateSyntax(cond.Expr) {
			return syntaxError(cond)
		}
	}
	return nil
}

func syntaxError(cond types.Condition) error {
	return types.NewValidationError("Invalid syntax for field '%s': '%s'", cond.Field, cond.Expr)
}

// ValidateRule applies schema checks (when the table enforces a schema)
// followed by syntax checks. This is the gate for every rule write and
// every simulated rule.
func ValidateRule(table *types.DecisionTable, logic types.RuleLogic) error {
	if table.SchemaEnforced() {
		if err := ValidateRuleAgainstSchema(logic, table.InputSchema, table.OutputSchema); err != nil {
			return err
		}
	}
	return ValidateRuleSyntax(logic)
}

// CheckSchemaEvolution rejects a schema change that removes a field still
// referenced by an existing rule. It reports the first offending rule in
// the order given, inputs before outputs.
func CheckSchemaEvolution(rules []types.Rule, newInput, newOutput types.Schema) error {
	for _, rule := range rules {
		for _, cond := range rule.Logic.Inputs {
			if _, ok := newInput[cond.Field]; !ok {
				return types.NewValidationError(
					"Cannot remove field '%s' from schema: Rule '%s' depends on it.", cond.Field, rule.ID)
			}
		}
		for _, key := range rule.Logic.OutputKeys() {
			if _, ok := newOutput[key]; !ok {
				return types.NewValidationError(
					"Cannot remove output field '%s' from schema: Rule '%s' depends on it.", key, rule.ID)
			}
		}
	}
	return nil
}

// Issue is one finding of a consistency check.
type Issue struct {
	Row     int     `json:"row"`
	LocalID *string `json:"local_id"`
	Field   *string `json:"field"`
	Message string  `json:"message"`
}

// DraftRule is a rule awaiting validation, tagged with the caller's id.
type DraftRule struct {
	LocalID  *string
	Priority int
	Logic    types.RuleLogic
}

// Report summarizes a consistency check.
type Report struct {
	TotalRules int     `json:"total_rules"`
	ErrorCount int     `json:"error_count"`
	Errors     []Issue `json:"errors"`
}

// ConsistencyCheck validates every draft without stopping at the first
// failure. Row numbers start at 2, matching a spreadsheet with a header
// line. The schema check is always applied, even for an empty schema.
func ConsistencyCheck(table *types.DecisionTable, drafts []DraftRule) Report {
	report := Report{TotalRules: len(drafts), Errors: []Issue{}}
	for idx, draft := range drafts {
		row := idx + 2
		if err := ValidateRuleAgainstSchema(draft.Logic, table.InputSchema, table.OutputSchema); err != nil {
			report.Errors = append(report.Errors, Issue{
				Row:     row,
				LocalID: draft.LocalID,
				Message: err.Error(),
			})
		}
		for _, cond := range draft.Logic.Inputs {
			if ValidateSyntax(cond.Expr) {
				continue
			}
			field := cond.Field
			report.Errors = append(report.Errors, Issue{
				Row:     row,
				LocalID: draft.LocalID,
				Field:   &field,
				Message: syntaxError(cond).Error(),
			})
		}
	}
	report.ErrorCount = len(report.Errors)
	return report
}
