package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateKey is returned when a write is rejected because the row it
	// would create already exists. Callers treat it as "already done".
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned when the addressed row does not exist, or no
	// longer accepts the requested change.
	ErrNotFound = errors.New("not found")
)

const pgErrCodeUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCodeUniqueViolation
	}
	return false
}
