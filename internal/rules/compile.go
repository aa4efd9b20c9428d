// internal/rules/compile.go
package rules

import (
	"regexp"
	"strconv"
	"strings"
)

/*
 * Condition compilation.
 *
 * Classifies a condition string into one grammar production and extracts
 * its operands once, so evaluation is a switch over a parsed value.
 *
 * Classification order is fixed and mirrors evaluation precedence:
 *   1. blank                      -> wildcard
 *   2. prefix CP (any case)       -> glob pattern
 *   3. contains ".."              -> inclusive numeric range
 *   4. prefix > >= < <=           -> numeric comparison
 *   5. prefix IN (any case)       -> set membership
 *   6. anything else              -> equality literal
 *
 * A condition that claims a production but fails its grammar (e.g. "1..x",
 * ">= abc", "IN 'a'") compiles with Malformed set. It never matches.
 *
 * Condition text is data. Nothing here evaluates it as code; the only
 * interpretation is the fixed grammar above.
 */

// signedNumber is a decimal with optional sign and optional leading digits.
const signedNumber = `[-+]?(?:\d+(?:\.\d+)?|\.\d+)`

var (
	rangeRe      = regexp.MustCompile(`^(` + signedNumber + `)\.\.(` + signedNumber + `)$`)
	comparisonRe = regexp.MustCompile(`^(>=|<=|>|<)\s*(` + signedNumber + `)$`)
	inRe         = regexp.MustCompile(`(?i)^IN\s*\((.*)\)$`)
	cpRe         = regexp.MustCompile(`(?i)^CP\s+(.+)$`)
	numTokenRe   = regexp.MustCompile(`[-+]?\d*\.\d+|[-+]?\d+`)
	quotedRe     = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)"`)
)

// Kind identifies the grammar production of a condition.
type Kind int

const (
	KindBlank Kind = iota
	KindPattern
	KindRange
	KindComparison
	KindSet
	KindEquality
)

func (k Kind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindPattern:
		return "pattern"
	case KindRange:
		return "range"
	case KindComparison:
		return "comparison"
	case KindSet:
		return "set"
	default:
		return "equality"
	}
}

// Compiled is a parsed condition.
type Compiled struct {
	Text      string // trimmed condition text
	Kind      Kind
	Malformed bool

	// KindPattern. Nil when the pattern is empty or not a usable glob.
	Pattern *regexp.Regexp

	// KindRange.
	Min, Max float64

	// KindComparison.
	Op    Operator
	Limit float64

	// KindSet. The body is kept raw; numeric and quoted views are both
	// extracted because the input type picks which applies.
	Numbers []float64
	Strings []string
}

// Compile parses condition into its grammar production.
func Compile(condition string) Compiled {
	s := strings.TrimSpace(condition)
	c := Compiled{Text: s}

	switch {
	case s == "":
		c.Kind = KindBlank

	case hasPrefixFold(s, "CP"):
		c.Kind = KindPattern
		if pattern, ok := cpPattern(s); ok {
			c.Pattern = globToRegexp(strings.ReplaceAll(pattern, "+", "?"))
		}

	case strings.Contains(s, ".."):
		c.Kind = KindRange
		m := rangeRe.FindStringSubmatch(s)
		if m == nil {
			c.Malformed = true
			break
		}
		c.Min, _ = strconv.ParseFloat(m[1], 64)
		c.Max, _ = strconv.ParseFloat(m[2], 64)

	case s[0] == '>' || s[0] == '<':
		c.Kind = KindComparison
		m := comparisonRe.FindStringSubmatch(s)
		if m == nil {
			c.Malformed = true
			break
		}
		c.Op = ParseOperator(m[1])
		c.Limit, _ = strconv.ParseFloat(m[2], 64)

	case hasPrefixFold(s, "IN"):
		c.Kind = KindSet
		m := inRe.FindStringSubmatch(s)
		if m == nil {
			c.Malformed = true
			break
		}
		c.Numbers = extractNumbers(m[1])
		c.Strings = extractQuoted(m[1])

	default:
		c.Kind = KindEquality
	}

	return c
}

// cpPattern extracts the pattern after "CP", stripping one pair of matching
// surrounding quotes. Returns false for a missing or empty pattern.
func cpPattern(s string) (string, bool) {
	m := cpRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	pattern := strings.TrimSpace(m[1])
	if len(pattern) >= 2 && pattern[0] == pattern[len(pattern)-1] && (pattern[0] == '\'' || pattern[0] == '"') {
		pattern = pattern[1 : len(pattern)-1]
	}
	return pattern, pattern != ""
}

func extractNumbers(body string) []float64 {
	tokens := numTokenRe.FindAllString(body, -1)
	out := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// extractQuoted returns single- or double-quoted literals with escaped
// quotes of either kind unescaped.
func extractQuoted(body string) []string {
	var out []string
	for _, m := range quotedRe.FindAllStringSubmatchIndex(body, -1) {
		var content string
		if m[2] >= 0 {
			content = body[m[2]:m[3]]
		} else {
			content = body[m[4]:m[5]]
		}
		content = strings.ReplaceAll(content, `\'`, `'`)
		content = strings.ReplaceAll(content, `\"`, `"`)
		out = append(out, content)
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
