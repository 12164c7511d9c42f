package ledger

import (
	"context"

	"github.com/okian/growth/pkg/logger"
)

// DefaultMaxGrowPerCall bounds how many bytes a single Resize may add.
const DefaultMaxGrowPerCall = 10240

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithMaxGrowPerCall sets the per-call growth limit enforced by Resize.
func WithMaxGrowPerCall(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxGrow = n
		}
	}
}

// WithDriverName labels metrics and logs emitted by the store.
func WithDriverName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.driver = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// CommitHook receives copies of the accounts a transaction is about to apply.
// A non-nil error aborts the transaction and leaves the ledger untouched.
type CommitHook func(ctx context.Context, changed []Account) error

// WithCommitHook runs hook under the ledger lock before each commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		s.commitHook = hook
	}
}
