package store

import (
	"context"
	"strings"

	"github.com/solatis/decider/internal/core/db"
	"github.com/solatis/decider/internal/rules"
	"github.com/solatis/decider/internal/types"
)

// Conflict messages for slug collisions.
const (
	slugExistsMsg = "Table slug '%s' already exists. Use a unique slug or load the existing table by slug."
	slugInUseMsg  = "Table slug '%s' is already in use by another table."
)

// ListTables returns tables ordered by slug. A non-blank search filters on a
// case-insensitive substring of slug or description.
func (s *Store) ListTables(ctx context.Context, search string) ([]types.DecisionTable, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []tableRow
	var err error
	if search = strings.TrimSpace(search); search != "" {
		needle := "%" + strings.ToLower(search) + "%"
		err = s.q.Select(ctx, &rows, "search-tables", needle, needle)
	} else {
		err = s.q.Select(ctx, &rows, "list-tables")
	}
	if err != nil {
		return nil, classify(err, "list tables")
	}

	tables := make([]types.DecisionTable, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTable()
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// GetTable returns the table with id or ErrNotFound.
func (s *Store) GetTable(ctx context.Context, id types.TableID) (*types.DecisionTable, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return getTable(ctx, s.q.Get, "get-table", string(id))
}

// GetTableBySlug returns the table with slug or ErrNotFound.
func (s *Store) GetTableBySlug(ctx context.Context, slug string) (*types.DecisionTable, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return getTable(ctx, s.q.Get, "get-table-by-slug", slug)
}

type getFunc func(ctx context.Context, dest any, name string, args ...any) error

func getTable(ctx context.Context, get getFunc, query, key string) (*types.DecisionTable, error) {
	var row tableRow
	if err := get(ctx, &row, query, key); err != nil {
		return nil, classify(err, "get table")
	}
	t, err := row.toTable()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTable validates spec and inserts a new table.
func (s *Store) CreateTable(ctx context.Context, spec types.TableSpec) (*types.DecisionTable, error) {
	table, err := spec.Normalize()
	if err != nil {
		return nil, err
	}
	table.ID = types.NewTableID()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.q.InTx(ctx, func(tx *db.Tx) error {
		return insertTable(ctx, tx, &table)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, types.NewConflictError(err, slugExistsMsg, table.Slug)
		}
		return nil, classify(err, "create table")
	}
	s.logger.Info("decision table created", "table_id", table.ID, "slug", table.Slug)
	return &table, nil
}

// UpdateTable replaces the table's metadata and schemas. When the current
// table enforces a schema, removing a field still referenced by a rule is
// rejected.
func (s *Store) UpdateTable(ctx context.Context, id types.TableID, spec types.TableSpec) (*types.DecisionTable, error) {
	next, err := spec.Normalize()
	if err != nil {
		return nil, err
	}
	next.ID = id

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.q.InTx(ctx, func(tx *db.Tx) error {
		current, err := getTable(ctx, tx.Get, "get-table", string(id))
		if err != nil {
			return err
		}
		if err := checkEvolution(ctx, tx, current, &next); err != nil {
			return err
		}
		return updateTable(ctx, tx, &next)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, types.NewConflictError(err, slugInUseMsg, next.Slug)
		}
		return nil, classify(err, "update table")
	}
	return &next, nil
}

// DeleteTable removes a table and its rules.
func (s *Store) DeleteTable(ctx context.Context, id types.TableID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.q.InTx(ctx, func(tx *db.Tx) error {
		if _, err := getTable(ctx, tx.Get, "get-table", string(id)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "delete-rules-for-table", string(id)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "delete-table", string(id))
		return err
	})
	if err != nil {
		return classify(err, "delete table")
	}
	s.logger.Info("decision table deleted", "table_id", id)
	return nil
}

// checkEvolution applies the schema evolution guard against the rules
// currently stored for current.
func checkEvolution(ctx context.Context, tx *db.Tx, current, next *types.DecisionTable) error {
	if !current.SchemaEnforced() {
		return nil
	}
	existing, err := listRules(ctx, tx.Select, current.ID)
	if err != nil {
		return err
	}
	return rules.CheckSchemaEvolution(existing, next.InputSchema, next.OutputSchema)
}

func insertTable(ctx context.Context, tx *db.Tx, t *types.DecisionTable) error {
	in, out, err := encodeSchemas(t)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "insert-table",
		string(t.ID), t.Slug, t.ObjectType, t.Description, string(t.HitPolicy), in, out)
	return err
}

func updateTable(ctx context.Context, tx *db.Tx, t *types.DecisionTable) error {
	in, out, err := encodeSchemas(t)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "update-table",
		t.Slug, t.ObjectType, t.Description, string(t.HitPolicy), in, out, string(t.ID))
	return err
}

func encodeSchemas(t *types.DecisionTable) (string, string, error) {
	in, err := encodeSchema(t.InputSchema)
	if err != nil {
		return "", "", err
	}
	out, err := encodeSchema(t.OutputSchema)
	if err != nil {
		return "", "", err
	}
	return in, out, nil
}
