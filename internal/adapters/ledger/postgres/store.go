// Package postgres persists the ledger to a Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okian/growth/internal/adapters/ledger"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/growth?sslmode=disable"
)

var dialect = ledger.Dialect{
	Name: "postgres",
	CreateTable: `CREATE TABLE IF NOT EXISTS accounts (
		address TEXT PRIMARY KEY,
		lamports BIGINT NOT NULL,
		data BYTEA NOT NULL
	)`,
	SelectAll: `SELECT address, lamports, data FROM accounts`,
	Upsert: `INSERT INTO accounts(address, lamports, data) VALUES($1, $2, $3)
		ON CONFLICT(address) DO UPDATE SET lamports = EXCLUDED.lamports, data = EXCLUDED.data`,
}

// NewStore connects with dsn (falling back to a local default) and loads every account.
func NewStore(ctx context.Context, dsn string, opts ...ledger.Option) (*ledger.Persistent, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := ledger.OpenPersistent(ctx, db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
