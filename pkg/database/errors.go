package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the booking engine reacts to
const (
	CodeUniqueViolation      = "23505"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
)

// PgErrorCode returns the SQLSTATE of err, or "" when err is not a PostgreSQL error
func PgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint violation
func IsUniqueViolation(err error) bool {
	return PgErrorCode(err) == CodeUniqueViolation
}

// IsCheckViolation reports a check constraint violation
func IsCheckViolation(err error) bool {
	return PgErrorCode(err) == CodeCheckViolation
}

// IsTransactionConflict reports errors that a fresh attempt of the same
// transaction may not hit again
func IsTransactionConflict(err error) bool {
	switch PgErrorCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeLockNotAvailable:
		return true
	}
	return false
}
