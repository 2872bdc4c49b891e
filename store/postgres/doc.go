// Package postgres provides a PostgreSQL store backed by pgx/v5 with
// connection pooling, single-statement conditional claims, and
// partial-index dedup enforcement.
package postgres
