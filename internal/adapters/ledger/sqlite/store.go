// Package sqlite persists the ledger to a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/growth/internal/adapters/ledger"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const defaultPath = "growth.db"

var dialect = ledger.Dialect{
	Name: "sqlite",
	CreateTable: `CREATE TABLE IF NOT EXISTS accounts (
		address TEXT PRIMARY KEY,
		lamports INTEGER NOT NULL,
		data BLOB NOT NULL
	)`,
	SelectAll: `SELECT address, lamports, data FROM accounts`,
	Upsert: `INSERT INTO accounts(address, lamports, data) VALUES(?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET lamports = excluded.lamports, data = excluded.data`,
}

// NewStore opens (or creates) the database at path and loads every account.
func NewStore(ctx context.Context, path string, opts ...ledger.Option) (*ledger.Persistent, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the ledger already serializes transactions.
	db.SetMaxOpenConns(1)
	store, err := ledger.OpenPersistent(ctx, db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
