package store

import (
	"context"
	"strings"

	"github.com/solatis/decider/internal/core/db"
	"github.com/solatis/decider/internal/types"
)

// AttributesFor returns the registry entries of objectType named in names,
// ordered by attribute name. Names without an entry are simply absent.
func (s *Store) AttributesFor(ctx context.Context, objectType string, names []string) ([]types.AttributeEntry, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []attributeRow
	if err := s.q.Select(ctx, &rows, "attributes-by-name", normalizeTarget(objectType), names); err != nil {
		return nil, classify(err, "lookup attributes")
	}
	return toEntries(rows)
}

// ListAttributes returns every registry entry of objectType ordered by
// attribute name.
func (s *Store) ListAttributes(ctx context.Context, objectType string) ([]types.AttributeEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []attributeRow
	if err := s.q.Select(ctx, &rows, "list-attributes", normalizeTarget(objectType)); err != nil {
		return nil, classify(err, "list attributes")
	}
	return toEntries(rows)
}

// PutAttribute inserts or replaces the entry for (TargetObject,
// AttributeName). The target object is stored upper-cased.
func (s *Store) PutAttribute(ctx context.Context, entry types.AttributeEntry) (*types.AttributeEntry, error) {
	entry.TargetObject = normalizeTarget(entry.TargetObject)
	entry.AttributeName = strings.TrimSpace(entry.AttributeName)
	if entry.TargetObject == "" || entry.AttributeName == "" {
		return nil, types.NewValidationError("target_object and attribute_name are required.")
	}
	switch entry.Strategy {
	case types.StrategyDirect, types.StrategyAssociation, types.StrategyExternal:
	default:
		return nil, types.NewValidationError("Unsupported resolution_strategy '%s'.", entry.Strategy)
	}
	if entry.PathLogic == nil {
		entry.PathLogic = map[string]any{}
	}
	if entry.ID == "" {
		entry.ID = types.NewAttributeID()
	}
	logic, err := encodeJSON(entry.PathLogic)
	if err != nil {
		return nil, types.NewValidationError("path_logic must be a JSON object: %v", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var row attributeRow
	err = s.q.InTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx, "upsert-attribute",
			entry.ID, entry.TargetObject, entry.AttributeName, string(entry.Strategy), logic)
		if err != nil {
			return err
		}
		// A replaced entry keeps its original id.
		return tx.Get(ctx, &row, "attributes-by-name", entry.TargetObject, []string{entry.AttributeName})
	})
	if err != nil {
		return nil, classify(err, "put attribute")
	}
	stored, err := row.toEntry()
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func normalizeTarget(objectType string) string {
	return strings.ToUpper(strings.TrimSpace(objectType))
}

func toEntries(rows []attributeRow) ([]types.AttributeEntry, error) {
	out := make([]types.AttributeEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
