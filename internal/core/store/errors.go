package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/solatis/decider/internal/types"
)

// IsUniqueViolation reports whether err is a unique or primary key
// constraint failure from either driver.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// IsUnavailable reports whether err means the database could not serve
// the request at all: broken or refused connections, pool or statement
// timeouts, server shutdown and lock contention.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		class := string(pe.Code.Class())
		return class == "08" || class == "53" || class == "57"
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked || se.Code == sqlite3.ErrCantOpen
	}
	return strings.Contains(err.Error(), "connection refused")
}

// classify maps driver errors onto the domain taxonomy. Unique violations
// are left to callers, which know the conflict message.
func classify(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return types.ErrNotFound
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrUnavailable),
		types.IsValidation(err), types.IsConflict(err):
		return err
	case IsUnavailable(err):
		return fmt.Errorf("%s: %w: %v", op, types.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
