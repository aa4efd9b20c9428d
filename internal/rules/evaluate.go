// internal/rules/evaluate.go
package rules

import (
	"github.com/solatis/decider/internal/types"
)

/*
 * Rule evaluation.
 *
 * A rule matches iff every declared input condition matches (AND across
 * fields). Evaluation does not short-circuit: every field is checked so the
 * trace explains all failures, not just the first.
 *
 * Per field:
 *   1. Blank condition  -> wildcard entry, matched, actual taken from context
 *   2. Field absent     -> failure "input missing in context"
 *   3. Otherwise        -> Condition Grammar Engine (EvaluateCondition)
 *
 * A present field with a null value reaches step 3 and fails there with
 * "input value is missing"; absence and null are reported differently.
 */

// SummaryNoInputs is reported for rules without input conditions.
const SummaryNoInputs = "Rule has no input conditions"

// FieldResult is the trace entry for one input field.
type FieldResult struct {
	Field     string `json:"field"`
	Condition string `json:"condition"`
	Actual    any    `json:"actual"`
	Matched   bool   `json:"matched"`
	Reason    string `json:"reason"`
}

// RuleTrace is the outcome of evaluating one rule with diagnostics.
type RuleTrace struct {
	Matched      bool          `json:"matched"`
	FieldResults []FieldResult `json:"field_results"`
	FailedFields []FieldResult `json:"failed_fields"`
	Summary      string        `json:"summary"`
}

// EvaluateRule evaluates logic against ctx, recording every field.
func EvaluateRule(logic types.RuleLogic, ctx types.Context) RuleTrace {
	trace := RuleTrace{
		Matched:      true,
		FieldResults: []FieldResult{},
		FailedFields: []FieldResult{},
	}
	if len(logic.Inputs) == 0 {
		trace.Summary = SummaryNoInputs
		return trace
	}

	for _, cond := range logic.Inputs {
		compiled := Compile(cond.Expr)
		if compiled.Kind == KindBlank {
			trace.FieldResults = append(trace.FieldResults, FieldResult{
				Field:   cond.Field,
				Actual:  ctx[cond.Field],
				Matched: true,
				Reason:  ReasonWildcard,
			})
			continue
		}

		actual, present := ctx[cond.Field]
		if !present {
			failure := FieldResult{
				Field:     cond.Field,
				Condition: cond.Expr,
				Reason:    ReasonMissingInContext,
			}
			trace.Matched = false
			trace.FieldResults = append(trace.FieldResults, failure)
			trace.FailedFields = append(trace.FailedFields, failure)
			continue
		}

		ok, reason := compiled.Evaluate(actual)
		item := FieldResult{
			Field:     cond.Field,
			Condition: cond.Expr,
			Actual:    actual,
			Matched:   ok,
			Reason:    reason,
		}
		trace.FieldResults = append(trace.FieldResults, item)
		if !ok {
			trace.Matched = false
			trace.FailedFields = append(trace.FailedFields, item)
		}
	}

	if trace.Matched {
		trace.Summary = "matched"
	} else {
		trace.Summary = "failed"
	}
	return trace
}

// MatchRule reports whether logic matches ctx. It stops at the first
// failing field since no trace is kept.
func MatchRule(logic types.RuleLogic, ctx types.Context) bool {
	for _, cond := range logic.Inputs {
		compiled := Compile(cond.Expr)
		if compiled.Kind == KindBlank {
			continue
		}
		actual, present := ctx[cond.Field]
		if !present {
			return false
		}
		if ok, _ := compiled.Evaluate(actual); !ok {
			return false
		}
	}
	return true
}
