// internal/rules/operators.go
package rules

import (
	"regexp"
	"strings"
)

/*
 * Operator comparison logic.
 *
 * Each compiled condition kind has one matcher:
 *   - pattern:    glob match on the stringified value (case-sensitive)
 *   - range:      min <= v <= max on the lenient numeric view
 *   - comparison: > >= < <= on the lenient numeric view
 *   - set:        numeric membership for numeric input, else membership of
 *                 the stringified value among quoted literals
 *   - equality:   numeric equality for numeric input when the condition
 *                 parses as a number, else string equality
 *
 * Matchers never fail. Inputs of the wrong shape (maps, slices, booleans
 * against numeric operators) compare false.
 */

// Operator is a numeric comparison operator.
type Operator int

const (
	OpUnspecified Operator = iota
	OpLt
	OpLte
	OpGt
	OpGte
)

// ParseOperator maps the textual operator to its enum.
func ParseOperator(s string) Operator {
	switch s {
	case "<":
		return OpLt
	case "<=":
		return OpLte
	case ">":
		return OpGt
	case ">=":
		return OpGte
	default:
		return OpUnspecified
	}
}

// Compare applies the operator to value and limit.
func Compare(op Operator, value, limit float64) bool {
	switch op {
	case OpLt:
		return value < limit
	case OpLte:
		return value <= limit
	case OpGt:
		return value > limit
	case OpGte:
		return value >= limit
	default:
		return false
	}
}

func matchPattern(re *regexp.Regexp, value any) bool {
	if re == nil {
		return false
	}
	return re.MatchString(stringify(value))
}

// matchRange is inclusive on both bounds; inverted ranges never match.
func matchRange(min, max float64, value any) bool {
	v, ok := coerceNumeric(value)
	if !ok {
		return false
	}
	return min <= v && v <= max
}

func matchComparison(op Operator, limit float64, value any) bool {
	v, ok := coerceNumeric(value)
	if !ok {
		return false
	}
	return Compare(op, v, limit)
}

func matchSet(numbers []float64, literals []string, value any) bool {
	if v, ok := toFloat64(value); ok {
		for _, n := range numbers {
			if n == v {
				return true
			}
		}
		return false
	}
	s := stringify(value)
	for _, lit := range literals {
		if lit == s {
			return true
		}
	}
	return false
}

// matchEqual returns the result and whether the numeric path was taken.
func matchEqual(text string, value any) (matched, numeric bool) {
	if v, ok := toFloat64(value); ok {
		if n, ok := coerceNumeric(text); ok {
			return n == v, true
		}
	}
	return text == stringify(value), false
}

// globToRegexp translates a shell-style glob into an anchored regexp.
// '*' matches any run, '?' one character, '[...]' a class with '!' for
// negation. An unterminated '[' is literal. Returns nil when the class
// contents do not form a valid regexp (e.g. a reversed range).
func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`(?s)^`)

	runes := []rune(pattern)
	n := len(runes)
	for i := 0; i < n; i++ {
		r := runes[i]
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i + 1
			if j < n && runes[j] == '!' {
				j++
			}
			if j < n && runes[j] == ']' {
				j++
			}
			for j < n && runes[j] != ']' {
				j++
			}
			if j >= n {
				b.WriteString(`\[`)
				continue
			}
			class := runes[i+1 : j]
			b.WriteByte('[')
			for k, cr := range class {
				switch {
				case k == 0 && cr == '!':
					b.WriteByte('^')
				case k == 0 && cr == '^':
					b.WriteString(`\^`)
				case cr == '\\' || cr == '[' || cr == ']':
					b.WriteByte('\\')
					b.WriteRune(cr)
				default:
					b.WriteRune(cr)
				}
			}
			b.WriteByte(']')
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	return re
}
