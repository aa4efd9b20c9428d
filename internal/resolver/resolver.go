// internal/resolver/resolver.go
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/solatis/decider/internal/types"
)

/*
 * Attribute resolution.
 *
 * HydrateContext fills context fields a table needs but the caller did not
 * supply, using the attribute registry to decide where each value lives:
 *
 *   DIRECT       one column of one row, keyed by the object id
 *   ASSOCIATION  one column of a table joined to the object's base table
 *   EXTERNAL     a JSONPath into a business-service response
 *
 * EXTERNAL attributes sharing service, method, rendered endpoint, params
 * and headers are fetched with one request. Groups are fetched in first-
 * seen order.
 *
 * Failure modes are split by who must act: registry gaps and malformed
 * path_logic are ConfigurationErrors, values that cannot be found at run
 * time are DataErrors.
 */

// Registry looks up attribute registry entries.
type Registry interface {
	AttributesFor(ctx context.Context, objectType string, names []string) ([]types.AttributeEntry, error)
	ListAttributes(ctx context.Context, objectType string) ([]types.AttributeEntry, error)
}

// DefaultObjectTables maps object types to the base table ASSOCIATION
// lookups join against when path_logic omits one.
var DefaultObjectTables = map[string]string{
	"PURCHASE_ORDER": "po_headers",
}

// Config tunes a Resolver.
type Config struct {
	ObjectTables map[string]string
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

// Resolver hydrates evaluation contexts.
type Resolver struct {
	registry     Registry
	db           Querier
	fetcher      Fetcher
	objectTables map[string]string
	queryTimeout time.Duration
	logger       *slog.Logger
}

// New creates a Resolver. db may be nil when no SQL strategy is registered.
func New(registry Registry, db Querier, fetcher Fetcher, cfg Config) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}

	tables := make(map[string]string, len(DefaultObjectTables)+len(cfg.ObjectTables))
	for k, v := range DefaultObjectTables {
		tables[k] = v
	}
	for k, v := range cfg.ObjectTables {
		tables[strings.ToUpper(strings.TrimSpace(k))] = v
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		registry:     registry,
		db:           db,
		fetcher:      fetcher,
		objectTables: tables,
		queryTimeout: cfg.QueryTimeout,
		logger:       logger,
	}, nil
}

// NormalizeObjectType trims and upper-cases objectType.
func NormalizeObjectType(objectType string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(objectType))
	if normalized == "" {
		return "", types.NewConfigurationError("object_type is required for attribute resolution.")
	}
	return normalized, nil
}

// ListAttributes returns the registry entries for objectType ordered by name.
func (r *Resolver) ListAttributes(ctx context.Context, objectType string) ([]types.AttributeEntry, error) {
	target, err := NormalizeObjectType(objectType)
	if err != nil {
		return nil, err
	}
	entries, err := r.registry.ListAttributes(ctx, target)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AttributeName < entries[j].AttributeName
	})
	return entries, nil
}

// HydrateContext returns a copy of in with every required field that is
// absent, nil or empty resolved through the registry. The input is never
// modified. An empty objectID disables resolution.
func (r *Resolver) HydrateContext(ctx context.Context, objectType, objectID string, required []string, in types.Context) (types.Context, error) {
	hydrated := in.Clone()
	if objectID == "" {
		return hydrated, nil
	}

	target, err := NormalizeObjectType(objectType)
	if err != nil {
		return nil, err
	}

	toResolve := missingFields(required, hydrated)
	if len(toResolve) == 0 {
		return hydrated, nil
	}

	entries, err := r.registry.AttributesFor(ctx, target, toResolve)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]types.AttributeEntry, len(entries))
	for _, e := range entries {
		byName[e.AttributeName] = e
	}

	var missing []string
	for _, name := range toResolve {
		if _, ok := byName[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, types.NewConfigurationError("No attribute registry entry for %s: %s", target, strings.Join(missing, ", "))
	}

	var unresolved []string
	external := make([]externalAttribute, 0)
	strategies := make(map[types.ResolutionStrategy]int)
	for _, name := range toResolve {
		strategy, err := decodeStrategy(byName[name], target, r.objectTables)
		if err != nil {
			return nil, err
		}
		strategies[strategy.Kind()]++

		switch s := strategy.(type) {
		case ExternalStrategy:
			external = append(external, externalAttribute{name: name, strategy: s})
			continue
		case DirectStrategy:
			err = r.resolveSQL(ctx, directQuery(s), objectID, name, hydrated, &unresolved)
		case AssociationStrategy:
			err = r.resolveSQL(ctx, associationQuery(s), objectID, name, hydrated, &unresolved)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(external) > 0 {
		values, err := r.resolveExternal(ctx, external, target, objectID)
		if err != nil {
			return nil, err
		}
		for _, attr := range external {
			if v, ok := values[attr.name]; ok {
				hydrated[attr.name] = v
			} else {
				unresolved = append(unresolved, attr.name)
			}
		}
	}

	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, types.NewDataError("Could not resolve attributes for %s %s: %s", target, objectID, strings.Join(unresolved, ", "))
	}

	r.logger.Debug("hydrated context",
		"object_type", target,
		"object_id", objectID,
		"attributes", toResolve,
		"strategies", strategies)
	return hydrated, nil
}

func (r *Resolver) resolveSQL(ctx context.Context, query, objectID, name string, hydrated types.Context, unresolved *[]string) error {
	if r.db == nil {
		return types.NewConfigurationError("No database configured for attribute '%s'.", name)
	}
	value, err := lookupValue(ctx, r.db, r.queryTimeout, query, objectID)
	if err != nil {
		return err
	}
	if value == nil {
		*unresolved = append(*unresolved, name)
		return nil
	}
	hydrated[name] = value
	return nil
}

type externalAttribute struct {
	name     string
	strategy ExternalStrategy
}

type fetchGroup struct {
	request    FetchRequest
	attributes []externalAttribute
}

// resolveExternal fetches each request group once and extracts every
// attribute of the group from the shared document.
func (r *Resolver) resolveExternal(ctx context.Context, attrs []externalAttribute, target, objectID string) (map[string]any, error) {
	var order []string
	groups := make(map[string]*fetchGroup)

	for _, attr := range attrs {
		s := attr.strategy
		endpoint, err := renderEndpoint(s.Endpoint, objectID, target)
		if err != nil {
			return nil, err
		}
		key := strings.Join([]string{s.Service, s.Method, endpoint, stableJSON(s.Params), stableJSON(s.Headers)}, "|")

		group, ok := groups[key]
		if !ok {
			group = &fetchGroup{request: FetchRequest{
				Service:  s.Service,
				Endpoint: endpoint,
				Method:   s.Method,
				Params:   s.Params,
				Headers:  s.Headers,
			}}
			groups[key] = group
			order = append(order, key)
		}
		group.attributes = append(group.attributes, attr)
	}

	resolved := make(map[string]any)
	for _, key := range order {
		group := groups[key]
		document, err := r.fetcher.FetchJSON(ctx, group.request)
		if err != nil {
			return nil, err
		}
		for _, attr := range group.attributes {
			value, err := extractPath(document, attr.strategy.JSONPath)
			if err != nil {
				return nil, err
			}
			if value != nil {
				resolved[attr.name] = value
			}
		}
	}
	return resolved, nil
}

// missingFields returns the non-blank required names whose context value is
// absent, nil or the empty string, in request order without duplicates.
func missingFields(required []string, ctx types.Context) []string {
	seen := make(map[string]bool, len(required))
	var out []string
	for _, name := range required {
		if strings.TrimSpace(name) == "" || seen[name] {
			continue
		}
		seen[name] = true
		v, ok := ctx[name]
		if !ok || v == nil {
			out = append(out, name)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			out = append(out, name)
		}
	}
	return out
}
