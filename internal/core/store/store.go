// internal/core/store/store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/decider/internal/core/db"
	"github.com/solatis/decider/internal/types"
)

/*
 * Repository for decision tables, rules and the attribute registry.
 *
 * Statements come from the dotsql files in internal/core/db/queries and run
 * against SQLite or PostgreSQL through sqlx. Rows are converted to the
 * domain types at this boundary:
 *   - schemas and rule logic are JSON documents in the database
 *   - rules are returned ordered by priority, ties by id (UUIDv7, so
 *     insertion order)
 *
 * Writes that touch more than one row (replace, save, delete, update with
 * schema evolution) run in one transaction. Driver errors are classified:
 * unique violations become ConflictError, missing rows ErrNotFound and
 * connectivity failures ErrUnavailable.
 */

// DefaultQueryTimeout bounds each store operation when Config leaves it
// unset.
const DefaultQueryTimeout = 5 * time.Second

// Config configures a Store.
type Config struct {
	QueryTimeout time.Duration
	Logger       *slog.Logger
}

// Store is the sqlx-backed repository.
type Store struct {
	db      *sqlx.DB
	q       *db.Queries
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a store over an open, migrated database.
func New(database *sqlx.DB, cfg Config) (*Store, error) {
	if database == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	q, err := db.LoadQueries(database)
	if err != nil {
		return nil, err
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{db: database, q: q, timeout: cfg.QueryTimeout, logger: cfg.Logger}, nil
}

// DB returns the underlying pool for callers that run ad-hoc lookups, such
// as the attribute resolver.
func (s *Store) DB() *sqlx.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var one int
	return s.q.Get(ctx, &one, "ping")
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

type tableRow struct {
	ID           string `db:"id"`
	Slug         string `db:"slug"`
	ObjectType   string `db:"object_type"`
	Description  string `db:"description"`
	HitPolicy    string `db:"hit_policy"`
	InputSchema  string `db:"input_schema"`
	OutputSchema string `db:"output_schema"`
}

func (r tableRow) toTable() (types.DecisionTable, error) {
	t := types.DecisionTable{
		ID:           types.TableID(r.ID),
		Slug:         r.Slug,
		ObjectType:   r.ObjectType,
		Description:  r.Description,
		HitPolicy:    types.HitPolicy(r.HitPolicy),
		InputSchema:  types.Schema{},
		OutputSchema: types.Schema{},
	}
	if err := decodeJSON(r.InputSchema, &t.InputSchema); err != nil {
		return t, fmt.Errorf("table %s input_schema: %w", r.ID, err)
	}
	if err := decodeJSON(r.OutputSchema, &t.OutputSchema); err != nil {
		return t, fmt.Errorf("table %s output_schema: %w", r.ID, err)
	}
	return t, nil
}

type ruleRow struct {
	ID       string `db:"id"`
	TableID  string `db:"table_id"`
	Priority int    `db:"priority"`
	Logic    string `db:"logic"`
}

func (r ruleRow) toRule() (types.Rule, error) {
	rule := types.Rule{
		ID:       types.RuleID(r.ID),
		TableID:  types.TableID(r.TableID),
		Priority: r.Priority,
	}
	if err := decodeJSON(r.Logic, &rule.Logic); err != nil {
		return rule, fmt.Errorf("rule %s logic: %w", r.ID, err)
	}
	if rule.Logic.Inputs == nil {
		rule.Logic.Inputs = types.Conditions{}
	}
	if rule.Logic.Outputs == nil {
		rule.Logic.Outputs = map[string]any{}
	}
	return rule, nil
}

type attributeRow struct {
	ID            string `db:"id"`
	TargetObject  string `db:"target_object"`
	AttributeName string `db:"attribute_name"`
	Strategy      string `db:"resolution_strategy"`
	PathLogic     string `db:"path_logic"`
}

func (r attributeRow) toEntry() (types.AttributeEntry, error) {
	e := types.AttributeEntry{
		ID:            r.ID,
		TargetObject:  r.TargetObject,
		AttributeName: r.AttributeName,
		Strategy:      types.ParseResolutionStrategy(r.Strategy),
		PathLogic:     map[string]any{},
	}
	if err := decodeJSON(r.PathLogic, &e.PathLogic); err != nil {
		return e, fmt.Errorf("attribute %s.%s path_logic: %w", r.TargetObject, r.AttributeName, err)
	}
	if e.PathLogic == nil {
		e.PathLogic = map[string]any{}
	}
	return e, nil
}

// decodeJSON leaves dest untouched for empty documents.
func decodeJSON(raw string, dest any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeSchema(s types.Schema) (string, error) {
	if s == nil {
		s = types.Schema{}
	}
	return encodeJSON(s)
}

func encodeLogic(l types.RuleLogic) (string, error) {
	if l.Inputs == nil {
		l.Inputs = types.Conditions{}
	}
	if l.Outputs == nil {
		l.Outputs = map[string]any{}
	}
	return encodeJSON(l)
}
