// internal/resolver/sql.go
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/decider/internal/types"
)

// Querier is the subset of *sqlx.DB the SQL strategies need.
type Querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

func directQuery(s DirectStrategy) string {
	return fmt.Sprintf("SELECT %s AS value FROM %s WHERE %s = ? LIMIT 1", s.Field, s.Table, s.IDField)
}

func associationQuery(s AssociationStrategy) string {
	query := fmt.Sprintf(
		"SELECT j.%s AS value FROM %s j JOIN %s b ON j.%s = b.%s WHERE b.%s = ?",
		s.Field, s.JoinTable, s.BaseTable, s.JoinOn, s.BaseIDField, s.BaseIDField,
	)
	if s.OrderBy != "" {
		direction := "ASC"
		if s.OrderDesc {
			direction = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY j.%s %s", s.OrderBy, direction)
	}
	return query + " LIMIT 1"
}

// lookupValue runs a single-value query. No row yields nil.
func lookupValue(ctx context.Context, db Querier, timeout time.Duration, query, objectID string) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var value any
	err := db.GetContext(ctx, &value, db.Rebind(query), objectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.WrapDataError(err, "Attribute lookup failed: %v", err)
	}
	if b, ok := value.([]byte); ok {
		return string(b), nil
	}
	return value, nil
}
