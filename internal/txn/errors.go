package txn

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var ErrLockTimeout = errors.New("lock wait timed out")

const (
	pgUniqueViolation    = "23505"
	pgForeignKeyMismatch = "23503"
	pgLockNotAvailable   = "55P03"
)

// PostCommitError reports a failed after-commit hook. The main transaction
// has already committed when this is returned.
type PostCommitError struct {
	Err error
}

func (e *PostCommitError) Error() string {
	return "post-commit: " + e.Err.Error()
}

func (e *PostCommitError) Unwrap() error {
	return e.Err
}

// IsIntegrityViolation reports unique or foreign key violations from postgres or sqlite.
func IsIntegrityViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation || pgErr.Code == pgForeignKeyMismatch
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "FOREIGN KEY constraint failed")
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}
