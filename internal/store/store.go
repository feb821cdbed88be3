// Package store provides data persistence for tasks, chats, messages,
// agents and action logs.
//
// Repositories never commit: every method runs against a Querier supplied
// by the caller, which is either the bare connection pool or an open
// transaction. The session manager owns the transaction boundary via
// SQLiteStore.WithTx.
package store

import (
	"context"
	"database/sql"
)

// Querier is the subset of database/sql operations shared by *sql.DB and
// *sql.Tx. Repository methods accept a Querier so the enclosing scope
// decides commit or rollback.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)
