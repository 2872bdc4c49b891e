package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// dbErr wraps a query error, mapping undefined_table (42P01) to the
// schema-capability sentinel so callers can distinguish "schema was
// never migrated" from a transient database fault by error identity,
// not message matching.
func dbErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("marketsync/postgres: %s: %w", op, marketsync.ErrSchemaUnavailable)
	}
	return fmt.Errorf("marketsync/postgres: %s: %w", op, err)
}

// nilIfEmpty converts an empty string to nil for nullable text columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
