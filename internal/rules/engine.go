// internal/rules/engine.go
package rules

import (
	"time"

	"github.com/solatis/decider/internal/types"
)

/*
 * Hit-policy resolution.
 *
 * Walks rules in ascending priority (stable for ties) and reduces matches:
 *   - FIRST_HIT:   stop at the first match; its outputs are the result
 *   - UNIQUE:      scan all; one match wins, two or more is a reported
 *                  conflict (rule_id "CONFLICT", empty result, all ids)
 *   - COLLECT_ALL: scan all; merge outputs in priority order, later keys
 *                  overwrite earlier ones; rule_id "MULTIPLE" when more than
 *                  one rule matched
 *
 * No match is not an error for any policy: empty result, nil rule id and
 * nil error. A UNIQUE conflict is a business outcome carried in Decision,
 * never a Go error.
 */

// Sentinel rule ids in decisions.
const (
	RuleIDConflict = "CONFLICT"
	RuleIDMultiple = "MULTIPLE"

	UniqueViolation = "Unique Hit Policy Violation: Multiple rules matched"
)

// RuleTraceEntry is the per-rule trace of a detailed evaluation.
type RuleTraceEntry struct {
	RuleID       types.RuleID  `json:"rule_id"`
	Priority     int           `json:"priority"`
	Matched      bool          `json:"matched"`
	FailedFields []FieldResult `json:"failed_fields"`
	FieldResults []FieldResult `json:"field_results"`
	Summary      string        `json:"summary"`
}

// Decision is the outcome of evaluating a table.
type Decision struct {
	Result         map[string]any   `json:"result"`
	HitPolicy      types.HitPolicy  `json:"hit_policy"`
	RuleID         *string          `json:"rule_id"`
	MatchedRuleIDs []string         `json:"matched_rule_ids"`
	Error          *string          `json:"error"`
	Trace          []RuleTraceEntry `json:"trace"`
}

// Observer receives one callback per evaluation. The metrics package
// implements it; nil disables observation.
type Observer interface {
	ObserveDecision(policy types.HitPolicy, outcome string, elapsed time.Duration)
}

// Outcome labels passed to Observer.
const (
	OutcomeMatched  = "matched"
	OutcomeNoMatch  = "no_match"
	OutcomeConflict = "conflict"
)

// Engine evaluates rule sets under a hit policy.
type Engine struct {
	observer Observer
}

// NewEngine creates a new rules engine instance. observer may be nil.
func NewEngine(observer Observer) *Engine {
	return &Engine{observer: observer}
}

// Evaluate reduces rules against ctx under policy. rules is not modified.
// An unknown policy is treated as FIRST_HIT.
func (e *Engine) Evaluate(policy types.HitPolicy, rules []types.Rule, ctx types.Context, detailed bool) Decision {
	start := time.Now()

	ordered := make([]types.Rule, len(rules))
	copy(ordered, rules)
	types.SortRules(ordered)

	decision := Decision{
		Result:         map[string]any{},
		HitPolicy:      policy,
		MatchedRuleIDs: []string{},
		Trace:          []RuleTraceEntry{},
	}

	var matched []types.Rule
	for _, rule := range ordered {
		var ok bool
		if detailed {
			trace := EvaluateRule(rule.Logic, ctx)
			ok = trace.Matched
			decision.Trace = append(decision.Trace, RuleTraceEntry{
				RuleID:       rule.ID,
				Priority:     rule.Priority,
				Matched:      trace.Matched,
				FailedFields: trace.FailedFields,
				FieldResults: trace.FieldResults,
				Summary:      trace.Summary,
			})
		} else {
			ok = MatchRule(rule.Logic, ctx)
		}

		if !ok {
			continue
		}
		matched = append(matched, rule)
		if policy != types.HitPolicyUnique && policy != types.HitPolicyCollectAll {
			break
		}
	}

	for _, rule := range matched {
		decision.MatchedRuleIDs = append(decision.MatchedRuleIDs, string(rule.ID))
	}

	outcome := OutcomeMatched
	switch {
	case len(matched) == 0:
		outcome = OutcomeNoMatch

	case policy == types.HitPolicyUnique && len(matched) > 1:
		outcome = OutcomeConflict
		decision.RuleID = strPtr(RuleIDConflict)
		decision.Error = strPtr(UniqueViolation)

	case policy == types.HitPolicyCollectAll:
		for _, rule := range matched {
			for k, v := range rule.Logic.Outputs {
				decision.Result[k] = v
			}
		}
		if len(matched) > 1 {
			decision.RuleID = strPtr(RuleIDMultiple)
		} else {
			decision.RuleID = strPtr(string(matched[0].ID))
		}

	default:
		for k, v := range matched[0].Logic.Outputs {
			decision.Result[k] = v
		}
		decision.RuleID = strPtr(string(matched[0].ID))
	}

	if e != nil && e.observer != nil {
		e.observer.ObserveDecision(policy, outcome, time.Since(start))
	}
	return decision
}

func strPtr(s string) *string {
	return &s
}
