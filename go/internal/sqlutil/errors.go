package sqlutil

import (
	"errors"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// UniqueViolation reports whether err is a Postgres unique violation and, if
// so, the name of the constraint that was hit.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return "", false
	}
	if pqErr.Code != uniqueViolation {
		return "", false
	}
	return pqErr.Constraint, true
}
