// internal/resolver/strategy.go
package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/solatis/decider/internal/types"
)

/*
 * Strategy decoding.
 *
 * Registry rows store a strategy name plus a free-form path_logic document.
 * decodeStrategy turns that pair into one of three concrete strategy values
 * so dispatch is a type switch, not string comparison.
 *
 * path_logic keys accept the aliases found in existing registry data:
 *
 *   ASSOCIATION  base_table | source_table | <object-type default>
 *                join_table | join
 *                join_on | on | foreign_key
 *                base_id_field | source_id_field | id_field  (default "id")
 *                field | select_field
 *   EXTERNAL     source_service | service
 *                endpoint | path
 *                jsonpath | json_path
 *                query_params | params
 *
 * Every SQL identifier passes identifierRe before it can reach a query.
 * Identifiers are the only part of resolver SQL built from stored data.
 */

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Strategy is a decoded resolution strategy.
type Strategy interface {
	Kind() types.ResolutionStrategy
}

// DirectStrategy reads one column of one row by primary key.
type DirectStrategy struct {
	Table   string
	IDField string
	Field   string
}

func (DirectStrategy) Kind() types.ResolutionStrategy { return types.StrategyDirect }

// AssociationStrategy reads one column of a joined table.
type AssociationStrategy struct {
	BaseTable   string
	JoinTable   string
	JoinOn      string
	BaseIDField string
	Field       string
	OrderBy     string
	OrderDesc   bool
}

func (AssociationStrategy) Kind() types.ResolutionStrategy { return types.StrategyAssociation }

// ExternalStrategy fetches a JSON document over HTTP and extracts a value
// with a JSONPath expression.
type ExternalStrategy struct {
	Service  string
	Endpoint string
	JSONPath string
	Method   string
	Params   map[string]any
	Headers  map[string]any
}

func (ExternalStrategy) Kind() types.ResolutionStrategy { return types.StrategyExternal }

// decodeStrategy validates entry and returns its concrete strategy.
// defaultTables maps upper-case object types to their base table for
// ASSOCIATION entries that omit one.
func decodeStrategy(entry types.AttributeEntry, targetObject string, defaultTables map[string]string) (Strategy, error) {
	logic := entry.PathLogic
	switch types.ParseResolutionStrategy(string(entry.Strategy)) {
	case types.StrategyDirect:
		return decodeDirect(logic)
	case types.StrategyAssociation:
		return decodeAssociation(logic, defaultTables[targetObject])
	case types.StrategyExternal:
		return decodeExternal(entry.AttributeName, logic)
	default:
		return nil, types.NewConfigurationError("Unsupported resolution_strategy '%s'.", entry.Strategy)
	}
}

func decodeDirect(logic map[string]any) (Strategy, error) {
	var s DirectStrategy
	var err error
	if s.Table, err = identifier(first(logic, "table"), "table"); err != nil {
		return nil, err
	}
	if s.IDField, err = identifier(explicitOr(logic, "id", "id_field"), "id_field"); err != nil {
		return nil, err
	}
	if s.Field, err = identifier(first(logic, "field"), "field"); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeAssociation(logic map[string]any, defaultBase string) (Strategy, error) {
	base := first(logic, "base_table", "source_table")
	if base == "" {
		base = defaultBase
	}

	var s AssociationStrategy
	var err error
	if s.BaseTable, err = identifier(base, "base_table"); err != nil {
		return nil, err
	}
	if s.JoinTable, err = identifier(first(logic, "join_table", "join"), "join_table"); err != nil {
		return nil, err
	}
	if s.JoinOn, err = identifier(first(logic, "join_on", "on", "foreign_key"), "join_on"); err != nil {
		return nil, err
	}
	if s.BaseIDField, err = identifier(firstOr(logic, "id", "base_id_field", "source_id_field", "id_field"), "base_id_field"); err != nil {
		return nil, err
	}
	if s.Field, err = identifier(first(logic, "field", "select_field"), "field"); err != nil {
		return nil, err
	}
	if orderBy := first(logic, "order_by"); orderBy != "" {
		if s.OrderBy, err = identifier(orderBy, "order_by"); err != nil {
			return nil, err
		}
		s.OrderDesc = strings.EqualFold(strings.TrimSpace(first(logic, "order_direction")), "desc")
	}
	return s, nil
}

func decodeExternal(attribute string, logic map[string]any) (Strategy, error) {
	s := ExternalStrategy{
		Service:  first(logic, "source_service", "service"),
		Endpoint: first(logic, "endpoint", "path"),
		JSONPath: first(logic, "jsonpath", "json_path"),
		Method:   strings.ToUpper(firstOr(logic, "GET", "method")),
		Params:   mapValue(logic, "query_params", "params"),
		Headers:  mapValue(logic, "headers"),
	}
	switch {
	case s.Service == "":
		return nil, types.NewConfigurationError("Missing source_service for attribute '%s'.", attribute)
	case s.Endpoint == "":
		return nil, types.NewConfigurationError("Missing endpoint for attribute '%s'.", attribute)
	case s.JSONPath == "":
		return nil, types.NewConfigurationError("Missing jsonpath for attribute '%s'.", attribute)
	}
	return s, nil
}

// identifier enforces the SQL identifier grammar.
func identifier(value, label string) (string, error) {
	token := strings.TrimSpace(value)
	if token == "" {
		return "", types.NewConfigurationError("Missing '%s' in path_logic.", label)
	}
	if !identifierRe.MatchString(token) {
		return "", types.NewConfigurationError("Invalid SQL identifier for '%s': '%s'.", label, token)
	}
	return token, nil
}

// first returns the first non-empty value among keys, stringified.
func first(logic map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := logic[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case bool:
			if !x {
				continue
			}
			s = types.FormatValue(x)
		default:
			s = fmt.Sprint(x)
		}
		if s != "" {
			return s
		}
	}
	return ""
}

func firstOr(logic map[string]any, fallback string, keys ...string) string {
	if s := first(logic, keys...); s != "" {
		return s
	}
	return fallback
}

// explicitOr returns fallback only when key is absent. A present but blank
// or null value comes back empty so identifier rejects it.
func explicitOr(logic map[string]any, fallback, key string) string {
	v, ok := logic[key]
	if !ok {
		return fallback
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func mapValue(logic map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if m, ok := logic[k].(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	return map[string]any{}
}
