package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL queries loaded from embedded .sql
// files. Statements are written with ? placeholders and rebound per driver.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries loads all .sql files from the embedded filesystem. Named
// queries are accessible by name (e.g., "get-table", "list-rules").
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}

	var files []string
	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".sql" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}
	sort.Strings(files)

	var combined strings.Builder
	for _, path := range files {
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteByte('\n')
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}
	return &Queries{dot: dot, db: db}, nil
}

// DB returns the underlying connection pool.
func (q *Queries) DB() *sqlx.DB { return q.db }

// Get retrieves a single row into dest. sql.ErrNoRows is returned as is.
func (q *Queries) Get(ctx context.Context, dest any, name string, args ...any) error {
	return get(ctx, q.dot, q.db, dest, name, args...)
}

// Select retrieves multiple rows into the dest slice.
func (q *Queries) Select(ctx context.Context, dest any, name string, args ...any) error {
	return selectRows(ctx, q.dot, q.db, dest, name, args...)
}

// Exec runs a named statement.
func (q *Queries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	return exec(ctx, q.dot, q.db, name, args...)
}

// Tx runs named queries inside one transaction.
type Tx struct {
	dot *dotsql.DotSql
	tx  *sqlx.Tx
}

// Get retrieves a single row into dest within the transaction.
func (t *Tx) Get(ctx context.Context, dest any, name string, args ...any) error {
	return get(ctx, t.dot, t.tx, dest, name, args...)
}

// Select retrieves multiple rows into dest within the transaction.
func (t *Tx) Select(ctx context.Context, dest any, name string, args ...any) error {
	return selectRows(ctx, t.dot, t.tx, dest, name, args...)
}

// Exec runs a named statement within the transaction.
func (t *Tx) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	return exec(ctx, t.dot, t.tx, name, args...)
}

// InTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise.
func (q *Queries) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{dot: q.dot, tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// prepareQuery resolves name, expands slice arguments for IN (?) clauses
// and converts placeholders for the driver.
func prepareQuery(dot *dotsql.DotSql, ext sqlx.ExtContext, name string, args []any) (string, []any, error) {
	query, err := dot.Raw(name)
	if err != nil {
		return "", nil, fmt.Errorf("query not found: %s", name)
	}
	if hasSliceArg(args) {
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return "", nil, fmt.Errorf("expand %s: %w", name, err)
		}
	}
	return ext.Rebind(query), args, nil
}

func hasSliceArg(args []any) bool {
	for _, a := range args {
		if _, ok := a.([]string); ok {
			return true
		}
	}
	return false
}

func get(ctx context.Context, dot *dotsql.DotSql, ext sqlx.ExtContext, dest any, name string, args ...any) error {
	query, args, err := prepareQuery(dot, ext, name, args)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, ext, dest, query, args...)
}

func selectRows(ctx context.Context, dot *dotsql.DotSql, ext sqlx.ExtContext, dest any, name string, args ...any) error {
	query, args, err := prepareQuery(dot, ext, name, args)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, ext, dest, query, args...)
}

func exec(ctx context.Context, dot *dotsql.DotSql, ext sqlx.ExtContext, name string, args ...any) (sql.Result, error) {
	query, args, err := prepareQuery(dot, ext, name, args)
	if err != nil {
		return nil, err
	}
	return ext.ExecContext(ctx, query, args...)
}
