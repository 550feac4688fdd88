// Package repository provides database access for the Mesura application.
//
// Queries are written by hand against PostgreSQL via the database/sql
// interface (pgx stdlib driver). Methods follow a one-query-per-method
// convention with explicit Params structs so the service layer never
// sees SQL.
package repository

import (
	"context"
	"database/sql"
)

// DBTX abstracts *sql.DB and *sql.Tx so queries run inside or outside a
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries holds all database query methods.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to the given database handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries instance bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
