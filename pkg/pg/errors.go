package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEmptyConnectionString    = errors.New("pg: empty connection string, set DATABASE_URL")
	ErrFailedToParseDBConfig    = errors.New("pg: parse connection config")
	ErrFailedToOpenDBConnection = errors.New("pg: open connection")
	ErrHealthcheckFailed        = errors.New("pg: database unreachable")
	ErrFailedToApplyMigrations  = errors.New("pg: migrations failed")
	ErrMigrationPathNotProvided = errors.New("pg: migration source not provided")
	ErrMigrationsDirNotFound    = errors.New("pg: migrations directory not found")
)

// SQLSTATE codes the stores act on.
const codeForeignKeyViolation = "23503"

// IsNotFoundError reports whether err wraps pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsForeignKeyViolationError reports a referential integrity violation.
func IsForeignKeyViolationError(err error) bool {
	return sqlState(err) == codeForeignKeyViolation
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
