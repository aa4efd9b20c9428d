// internal/rules/condition.go
package rules

import (
	"strconv"
	"strings"
)

// Reasons reported in evaluation traces.
const (
	ReasonWildcard          = "blank condition (wildcard)"
	ReasonMissingValue      = "input value is missing"
	ReasonMissingInContext  = "input missing in context"
	ReasonPatternMatched    = "pattern matched"
	ReasonPatternMismatch   = "pattern mismatch"
	ReasonInvalidRange      = "invalid range syntax"
	ReasonInRange           = "value in range"
	ReasonOutsideRange      = "value outside range"
	ReasonInvalidComparison = "invalid comparison syntax"
	ReasonComparisonMatched = "comparison matched"
	ReasonComparisonFailed  = "comparison failed"
	ReasonInvalidSet        = "invalid IN syntax"
	ReasonInSet             = "value in set"
	ReasonNotInSet          = "value not in set"
	ReasonNumericEqual      = "numeric equality matched"
	ReasonNumericNotEqual   = "numeric equality failed"
	ReasonExactMatch        = "exact match"
	ReasonExactMismatch     = "exact mismatch"
)

// EvaluateCondition matches value against condition and explains the
// outcome. A blank condition matches anything, including a missing value.
func EvaluateCondition(condition string, value any) (bool, string) {
	return Compile(condition).Evaluate(value)
}

// MatchCondition is EvaluateCondition without the reason.
func MatchCondition(condition string, value any) bool {
	ok, _ := EvaluateCondition(condition, value)
	return ok
}

// Evaluate matches value against the compiled condition.
func (c Compiled) Evaluate(value any) (bool, string) {
	if c.Kind == KindBlank {
		return true, ReasonWildcard
	}
	if value == nil {
		return false, ReasonMissingValue
	}

	switch c.Kind {
	case KindPattern:
		return outcome(matchPattern(c.Pattern, value), ReasonPatternMatched, ReasonPatternMismatch)

	case KindRange:
		if c.Malformed {
			return false, ReasonInvalidRange
		}
		return outcome(matchRange(c.Min, c.Max, value), ReasonInRange, ReasonOutsideRange)

	case KindComparison:
		if c.Malformed {
			return false, ReasonInvalidComparison
		}
		return outcome(matchComparison(c.Op, c.Limit, value), ReasonComparisonMatched, ReasonComparisonFailed)

	case KindSet:
		if c.Malformed {
			return false, ReasonInvalidSet
		}
		return outcome(matchSet(c.Numbers, c.Strings, value), ReasonInSet, ReasonNotInSet)

	default:
		ok, numeric := matchEqual(c.Text, value)
		if numeric {
			return outcome(ok, ReasonNumericEqual, ReasonNumericNotEqual)
		}
		return outcome(ok, ReasonExactMatch, ReasonExactMismatch)
	}
}

func outcome(ok bool, yes, no string) (bool, string) {
	if ok {
		return true, yes
	}
	return false, no
}

// ValidateSyntax reports whether condition is structurally well formed,
// without a value. It rejects inverted ranges, text that starts with a
// comparison operator but is not a comparison, IN without parentheses and
// CP without a pattern. Any other text is a valid equality literal.
func ValidateSyntax(condition string) bool {
	s := strings.TrimSpace(condition)

	if m := rangeRe.FindStringSubmatch(s); m != nil {
		min, err1 := strconv.ParseFloat(m[1], 64)
		max, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return false
		}
		return min <= max
	}

	if strings.ContainsAny(s, "<>") {
		if comparisonRe.MatchString(s) {
			return true
		}
		if s[0] == '>' || s[0] == '<' {
			return false
		}
	}

	if hasPrefixFold(s, "IN") {
		return inRe.MatchString(s)
	}

	if hasPrefixFold(s, "CP") {
		_, ok := cpPattern(s)
		return ok
	}

	return true
}
