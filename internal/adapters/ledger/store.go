// Package ledger is the storage service behind every record: named accounts
// holding a lamport balance and a byte payload, mutated only inside
// serialized all-or-nothing transactions.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/okian/growth/pkg/metrics"
)

// Account is one addressable record.
type Account struct {
	Address  model.Key `json:"address"`
	Lamports uint64    `json:"lamports"`
	Data     []byte    `json:"data"`
}

func (a *Account) clone() *Account {
	c := *a
	c.Data = slices.Clone(a.Data)
	return &c
}

// Tx is the view of the ledger available inside a transaction. Mutations are
// staged and become visible to others only when the transaction commits.
type Tx interface {
	// Create allocates a zero-filled account of size bytes funded with
	// lamports taken from payer.
	Create(addr model.Key, size int, payer model.Key, lamports uint64) error
	Exists(addr model.Key) bool
	Read(addr model.Key) ([]byte, error)
	// Write overwrites the leading bytes of the account; data must fit.
	Write(addr model.Key, data []byte) error
	Transfer(from, to model.Key, amount uint64) error
	// Resize grows the account to newSize, preserving existing bytes and
	// zero-filling the new region.
	Resize(addr model.Key, newSize int) error
	Balance(addr model.Key) (uint64, error)
	Size(addr model.Key) (int, error)
}

// Result reports what a committed transaction touched.
type Result struct {
	Changed []model.Key
}

// Store is the in-memory ledger. Transactions run one at a time.
type Store struct {
	mu         sync.Mutex
	accounts   map[model.Key]*Account
	maxGrow    int
	driver     string
	commitHook CommitHook
	logger     logger.Logger
}

// NewStore creates an empty ledger.
func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[model.Key]*Account),
		maxGrow:  DefaultMaxGrowPerCall,
		driver:   "memory",
		logger:   logger.Get().Named("ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver names the backing implementation.
func (s *Store) Driver() string { return s.driver }

// RunInTransaction executes fn against a staged view of the ledger. When fn
// returns nil every staged mutation is applied at once; otherwise none are.
// A failing commit hook aborts the transaction the same way.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Tx) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: make(map[model.Key]*Account)}
	err := fn(tx)
	tx.done = true
	if err == nil {
		err = ctx.Err()
	}
	if err == nil && s.commitHook != nil && len(tx.order) > 0 {
		changed := make([]Account, 0, len(tx.order))
		for _, addr := range tx.order {
			changed = append(changed, *tx.staged[addr].clone())
		}
		err = s.commitHook(ctx, changed)
	}
	if err != nil {
		metrics.RecordLedgerTxAborted(s.driver)
		s.logger.Debug(ctx, "transaction aborted", logger.String("driver", s.driver), logger.Error(err))
		return Result{}, err
	}

	res := Result{Changed: slices.Clone(tx.order)}
	for _, addr := range tx.order {
		s.accounts[addr] = tx.staged[addr]
	}
	metrics.RecordLedgerTxLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.UpdateLedgerAccounts(len(s.accounts))
	return res, nil
}

// Deposit credits amount to addr, creating an empty wallet account if needed.
func (s *Store) Deposit(ctx context.Context, addr model.Key, amount uint64) error {
	_, err := s.RunInTransaction(ctx, func(tx Tx) error {
		return tx.(*memTx).credit(addr, amount)
	})
	return err
}

// Get returns a copy of the committed account at addr.
func (s *Store) Get(_ context.Context, addr model.Key) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[addr]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return *acc.clone(), nil
}

// Accounts returns copies of the committed accounts at addrs, skipping
// unknown ones. With no addrs every account is returned.
func (s *Store) Accounts(_ context.Context, addrs ...model.Key) []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Account
	if len(addrs) == 0 {
		out = make([]Account, 0, len(s.accounts))
		for _, acc := range s.accounts {
			out = append(out, *acc.clone())
		}
		return out
	}
	for _, addr := range addrs {
		if acc, ok := s.accounts[addr]; ok {
			out = append(out, *acc.clone())
		}
	}
	return out
}

// Len is the number of committed accounts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Import replaces the committed state with accounts. Persistent drivers use it
// to hydrate the store on open.
func (s *Store) Import(accounts []Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[model.Key]*Account, len(accounts))
	for i := range accounts {
		s.accounts[accounts[i].Address] = accounts[i].clone()
	}
	metrics.UpdateLedgerAccounts(len(s.accounts))
}

// Close releases nothing for the memory driver.
func (s *Store) Close() error { return nil }

type memTx struct {
	store  *Store
	staged map[model.Key]*Account
	order  []model.Key
	done   bool
}

var _ Tx = (*memTx)(nil)

func (t *memTx) lookup(addr model.Key) (*Account, bool) {
	if acc, ok := t.staged[addr]; ok {
		return acc, true
	}
	acc, ok := t.store.accounts[addr]
	return acc, ok
}

// stage returns a writable copy of addr, staging it on first touch.
func (t *memTx) stage(addr model.Key) (*Account, error) {
	if t.done {
		return nil, ErrTxDone
	}
	if acc, ok := t.staged[addr]; ok {
		return acc, nil
	}
	acc, ok := t.store.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	c := acc.clone()
	t.staged[addr] = c
	t.order = append(t.order, addr)
	return c, nil
}

func (t *memTx) put(acc *Account) {
	if _, ok := t.staged[acc.Address]; !ok {
		t.order = append(t.order, acc.Address)
	}
	t.staged[acc.Address] = acc
}

func (t *memTx) credit(addr model.Key, amount uint64) error {
	if t.done {
		return ErrTxDone
	}
	if _, ok := t.lookup(addr); !ok {
		t.put(&Account{Address: addr})
	}
	acc, err := t.stage(addr)
	if err != nil {
		return err
	}
	acc.Lamports += amount
	return nil
}

func (t *memTx) Create(addr model.Key, size int, payer model.Key, lamports uint64) error {
	if t.done {
		return ErrTxDone
	}
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidResize, size)
	}
	if t.Exists(addr) {
		return fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}
	t.put(&Account{Address: addr, Data: make([]byte, size)})
	return t.Transfer(payer, addr, lamports)
}

func (t *memTx) Exists(addr model.Key) bool {
	_, ok := t.lookup(addr)
	return ok
}

func (t *memTx) Read(addr model.Key) ([]byte, error) {
	acc, ok := t.lookup(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return slices.Clone(acc.Data), nil
}

func (t *memTx) Write(addr model.Key, data []byte) error {
	acc, err := t.stage(addr)
	if err != nil {
		return err
	}
	if len(data) > len(acc.Data) {
		return fmt.Errorf("%w: %d bytes into %d", ErrDataTooLarge, len(data), len(acc.Data))
	}
	copy(acc.Data, data)
	return nil
}

func (t *memTx) Transfer(from, to model.Key, amount uint64) error {
	if amount == 0 {
		return nil
	}
	src, err := t.stage(from)
	if err != nil {
		return fmt.Errorf("transfer source: %w", err)
	}
	if src.Lamports < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, src.Lamports, amount)
	}
	if err := t.credit(to, amount); err != nil {
		return err
	}
	src.Lamports -= amount
	return nil
}

func (t *memTx) Resize(addr model.Key, newSize int) error {
	acc, err := t.stage(addr)
	if err != nil {
		return err
	}
	cur := len(acc.Data)
	switch {
	case newSize < cur:
		return fmt.Errorf("%w: %d to %d", ErrInvalidResize, cur, newSize)
	case newSize-cur > t.store.maxGrow:
		return fmt.Errorf("%w: %d bytes, limit %d", ErrGrowTooLarge, newSize-cur, t.store.maxGrow)
	case newSize == cur:
		return nil
	}
	acc.Data = append(acc.Data, make([]byte, newSize-cur)...)
	return nil
}

func (t *memTx) Balance(addr model.Key) (uint64, error) {
	acc, ok := t.lookup(addr)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return acc.Lamports, nil
}

func (t *memTx) Size(addr model.Key) (int, error) {
	acc, ok := t.lookup(addr)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return len(acc.Data), nil
}
