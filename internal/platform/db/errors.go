package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smt-trading/crm/internal/shared"
)

// PostgreSQL SQLSTATE codes inspected by Classify.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Classify maps driver errors onto the shared error taxonomy. Errors that are already
// classified, or that are not storage errors, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrConflict) || errors.Is(err, shared.ErrTxConflict) || errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", shared.ErrConflict, constraintDetail(pgErr))
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %s", shared.ErrTxConflict, pgErr.Message)
	}
	return err
}

func constraintDetail(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return "duplicate value violates " + pgErr.ConstraintName
	}
	return pgErr.Message
}
