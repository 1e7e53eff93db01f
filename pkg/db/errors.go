package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation   = "23505"
	pgDuplicateDatabase = "42P04"
	pgDuplicateObject   = "42710"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is provided, the helper looks for the constraint text
// in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if constraintName == "" {
			return true
		}
		return pgErr.ConstraintName == constraintName
	}

	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsDuplicateDatabase reports whether err means the database or role being
// created already exists. Provisioning retries treat this as success.
func IsDuplicateDatabase(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDuplicateDatabase || pgErr.Code == pgDuplicateObject
	}

	msg := err.Error()
	return strings.Contains(msg, "already exists")
}
