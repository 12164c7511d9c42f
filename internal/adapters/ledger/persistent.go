package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/okian/growth/pkg/metrics"
)

// Dialect holds the statements a SQL driver needs to mirror accounts.
// Upsert takes (address, lamports, data); SelectAll yields the same columns.
type Dialect struct {
	Name        string
	CreateTable string
	SelectAll   string
	Upsert      string
}

// Persistent is a Store whose accounts are mirrored into a SQL table and
// reloaded on open. Every transaction is written to the table before it is
// applied in memory, so a failed write aborts it.
type Persistent struct {
	*Store
	db      *sql.DB
	dialect Dialect
}

// OpenPersistent prepares the accounts table on db and hydrates a new Store
// from it.
func OpenPersistent(ctx context.Context, db *sql.DB, d Dialect, opts ...Option) (*Persistent, error) {
	if _, err := db.ExecContext(ctx, d.CreateTable); err != nil {
		return nil, fmt.Errorf("create accounts table: %w", err)
	}
	accounts, err := loadAccounts(ctx, db, d)
	if err != nil {
		return nil, err
	}
	p := &Persistent{db: db, dialect: d}
	opts = append([]Option{WithDriverName(d.Name)}, opts...)
	p.Store = NewStore(append(opts, WithCommitHook(p.persist))...)
	p.Store.Import(accounts)
	p.logger.Info(ctx, "ledger loaded",
		logger.String("driver", d.Name),
		logger.Int("accounts", len(accounts)),
	)
	return p, nil
}

func loadAccounts(ctx context.Context, db *sql.DB, d Dialect) ([]Account, error) {
	rows, err := db.QueryContext(ctx, d.SelectAll)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Account
	for rows.Next() {
		var (
			addr     string
			lamports int64
			data     []byte
		)
		if err := rows.Scan(&addr, &lamports, &data); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		key, err := model.ParseKey(addr)
		if err != nil {
			return nil, fmt.Errorf("decode account address %q: %w", addr, err)
		}
		out = append(out, Account{Address: key, Lamports: uint64(lamports), Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (p *Persistent) persist(ctx context.Context, accounts []Account) (retErr error) {
	defer func() {
		if retErr != nil {
			metrics.RecordLedgerPersistError()
			p.logger.Error(ctx, "persist accounts failed", logger.String("driver", p.dialect.Name), logger.Error(retErr))
		}
	}()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, acc := range accounts {
		data := acc.Data
		if data == nil {
			// nil binds as NULL; wallets have empty, not missing, data.
			data = []byte{}
		}
		if _, err := tx.ExecContext(ctx, p.dialect.Upsert, acc.Address.String(), int64(acc.Lamports), data); err != nil {
			return fmt.Errorf("upsert %s: %w", acc.Address, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (p *Persistent) DB() *sql.DB { return p.db }

// Close closes the database.
func (p *Persistent) Close() error { return p.db.Close() }
