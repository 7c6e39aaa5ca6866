package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation   = "23505"
	pqConnectionFailure = "08"
)

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsConnectionError reports SQLSTATE class 08 (connection exception).
func IsConnectionError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == pqConnectionFailure
}
