package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hoangphuc3604/my-shop-backend/internal/repositories"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateCheckViolation       = "23514"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateAdminShutdown        = "57P01"
)

// Error normalises pgx failures into repository categories.
type Error struct {
	Op          string
	SQLState    string
	Err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

var _ repositories.RepositoryError = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.SQLState != "" {
		return fmt.Sprintf("postgres %s: [%s] %v", e.Op, e.SQLState, e.Err)
	}
	return fmt.Sprintf("postgres %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// retryable reports serialization failures and deadlocks, which a fresh transaction may resolve.
func (e *Error) retryable() bool {
	return e != nil && (e.SQLState == sqlStateSerializationFailure || e.SQLState == sqlStateDeadlockDetected)
}

// wrapError maps a pgx error to *Error. Errors that already satisfy
// RepositoryError pass through unchanged.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}

	wrapped := &Error{Op: op, Err: err}
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		wrapped.notFound = true
	case errors.As(err, &pgErr):
		wrapped.SQLState = pgErr.Code
		switch {
		case pgErr.Code == sqlStateUniqueViolation,
			pgErr.Code == sqlStateForeignKeyViolation,
			pgErr.Code == sqlStateCheckViolation,
			pgErr.Code == sqlStateSerializationFailure,
			pgErr.Code == sqlStateDeadlockDetected:
			wrapped.conflict = true
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == sqlStateAdminShutdown:
			wrapped.unavailable = true
		}
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		wrapped.unavailable = true
	}
	return wrapped
}

func notFound(op, what string) error {
	return &Error{Op: op, Err: errors.New(what + " not found"), notFound: true}
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateCheckViolation
}
