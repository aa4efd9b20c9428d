// internal/resolver/jsonpath.go
package resolver

import (
	"encoding/json"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/solatis/decider/internal/types"
)

// extractPath applies a JSONPath expression to a decoded JSON document.
// Zero matches yield nil, one match yields the value, several yield a list.
// Expressions without a root marker are treated as relative to the root.
func extractPath(document any, expression string) (any, error) {
	expr := strings.TrimSpace(expression)
	if expr != "" && !strings.HasPrefix(expr, "$") && !strings.HasPrefix(expr, "@") {
		if strings.HasPrefix(expr, "[") {
			expr = "$" + expr
		} else {
			expr = "$." + expr
		}
	}

	path, err := jp.ParseString(expr)
	if err != nil {
		return nil, types.NewConfigurationError("Invalid jsonpath expression '%s'.", expression)
	}

	matches := path.Get(document)
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return matches, nil
	}
}

// renderEndpoint substitutes {object_id} and {object_type} in template.
// "{{" and "}}" produce literal braces.
func renderEndpoint(template, objectID, objectType string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", types.NewConfigurationError("Unsupported placeholder in endpoint template: '%s'", template[i+1:])
			}
			name := template[i+1 : i+1+end]
			switch name {
			case "object_id":
				b.WriteString(objectID)
			case "object_type":
				b.WriteString(objectType)
			default:
				return "", types.NewConfigurationError("Unsupported placeholder in endpoint template: '%s'", name)
			}
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// stableJSON encodes v with sorted object keys at every depth.
func stableJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return types.FormatValue(v)
	}
	return string(raw)
}
