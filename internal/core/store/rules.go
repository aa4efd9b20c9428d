package store

import (
	"context"
	"sort"

	"github.com/solatis/decider/internal/core/db"
	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

// RuleInput is a rule to be written. LocalID is the caller's handle for the
// rule and is echoed back by SaveTable.
type RuleInput struct {
	LocalID  *string
	Priority int
	Logic    types.RuleLogic
}

// SavedRule is a persisted rule paired with the caller's LocalID.
type SavedRule struct {
	types.Rule
	LocalID *string
}

// ListRules returns a table's rules ordered by priority.
func (s *Store) ListRules(ctx context.Context, tableID types.TableID) ([]types.Rule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := getTable(ctx, s.q.Get, "get-table", string(tableID)); err != nil {
		return nil, err
	}
	out, err := listRules(ctx, s.q.Select, tableID)
	if err != nil {
		return nil, classify(err, "list rules")
	}
	return out, nil
}

// AddRule validates logic against the table and appends one rule.
func (s *Store) AddRule(ctx context.Context, tableID types.TableID, in RuleInput) (*types.Rule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var created types.Rule
	err := s.q.InTx(ctx, func(tx *db.Tx) error {
		table, err := getTable(ctx, tx.Get, "get-table", string(tableID))
		if err != nil {
			return err
		}
		if err := rules.ValidateRule(table, in.Logic); err != nil {
			return err
		}
		created, err = insertRule(ctx, tx, tableID, in)
		return err
	})
	if err != nil {
		return nil, classify(err, "add rule")
	}
	return &created, nil
}

// ReplaceRules validates every input and then swaps the table's rule set
// in one transaction. Inserted rules are ordered by priority.
func (s *Store) ReplaceRules(ctx context.Context, tableID types.TableID, inputs []RuleInput) ([]types.Rule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var saved []SavedRule
	err := s.q.InTx(ctx, func(tx *db.Tx) error {
		table, err := getTable(ctx, tx.Get, "get-table", string(tableID))
		if err != nil {
			return err
		}
		if err := validateAll(table, inputs); err != nil {
			return err
		}
		saved, err = replaceRules(ctx, tx, tableID, inputs)
		return err
	})
	if err != nil {
		return nil, classify(err, "replace rules")
	}

	out := make([]types.Rule, len(saved))
	for i, r := range saved {
		out[i] = r.Rule
	}
	s.logger.Info("rules replaced", "table_id", tableID, "count", len(out))
	return out, nil
}

// SaveTable creates the table (tableID nil) or updates it, then replaces
// its rules, all in one transaction. Updates are subject to the schema
// evolution guard; rules are validated against the new definition.
func (s *Store) SaveTable(ctx context.Context, tableID *types.TableID, spec types.TableSpec, inputs []RuleInput) (*types.DecisionTable, []SavedRule, error) {
	next, err := spec.Normalize()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var saved []SavedRule
	err = s.q.InTx(ctx, func(tx *db.Tx) error {
		if tableID != nil {
			current, err := getTable(ctx, tx.Get, "get-table", string(*tableID))
			if err != nil {
				return err
			}
			next.ID = current.ID
			if err := checkEvolution(ctx, tx, current, &next); err != nil {
				return err
			}
			if err := updateTable(ctx, tx, &next); err != nil {
				return err
			}
		} else {
			next.ID = types.NewTableID()
			if err := insertTable(ctx, tx, &next); err != nil {
				return err
			}
		}

		if err := validateAll(&next, inputs); err != nil {
			return err
		}
		var err error
		saved, err = replaceRules(ctx, tx, next.ID, inputs)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, nil, types.NewConflictError(err, slugInUseMsg, next.Slug)
		}
		return nil, nil, classify(err, "save table")
	}
	s.logger.Info("decision table saved", "table_id", next.ID, "slug", next.Slug, "rules", len(saved))
	return &next, saved, nil
}

func validateAll(table *types.DecisionTable, inputs []RuleInput) error {
	for _, in := range inputs {
		if err := rules.ValidateRule(table, in.Logic); err != nil {
			return err
		}
	}
	return nil
}

type selectFunc func(ctx context.Context, dest any, name string, args ...any) error

func listRules(ctx context.Context, sel selectFunc, tableID types.TableID) ([]types.Rule, error) {
	var rows []ruleRow
	if err := sel(ctx, &rows, "list-rules", string(tableID)); err != nil {
		return nil, err
	}
	out := make([]types.Rule, 0, len(rows))
	for _, r := range rows {
		rule, err := r.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// replaceRules deletes the table's rules and inserts inputs in stable
// priority order. inputs is not modified.
func replaceRules(ctx context.Context, tx *db.Tx, tableID types.TableID, inputs []RuleInput) ([]SavedRule, error) {
	if _, err := tx.Exec(ctx, "delete-rules-for-table", string(tableID)); err != nil {
		return nil, err
	}

	index := make([]int, len(inputs))
	for i := range index {
		index[i] = i
	}
	sort.SliceStable(index, func(a, b int) bool {
		return inputs[index[a]].Priority < inputs[index[b]].Priority
	})

	saved := make([]SavedRule, 0, len(inputs))
	for _, i := range index {
		rule, err := insertRule(ctx, tx, tableID, inputs[i])
		if err != nil {
			return nil, err
		}
		saved = append(saved, SavedRule{Rule: rule, LocalID: inputs[i].LocalID})
	}
	return saved, nil
}

func insertRule(ctx context.Context, tx *db.Tx, tableID types.TableID, in RuleInput) (types.Rule, error) {
	logic, err := encodeLogic(in.Logic)
	if err != nil {
		return types.Rule{}, err
	}
	rule := types.Rule{
		ID:       types.NewRuleID(),
		TableID:  tableID,
		Priority: in.Priority,
		Logic:    in.Logic,
	}
	if rule.Logic.Inputs == nil {
		rule.Logic.Inputs = types.Conditions{}
	}
	if rule.Logic.Outputs == nil {
		rule.Logic.Outputs = map[string]any{}
	}
	if _, err := tx.Exec(ctx, "insert-rule", string(rule.ID), string(tableID), rule.Priority, logic); err != nil {
		return types.Rule{}, err
	}
	return rule, nil
}
