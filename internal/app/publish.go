package service

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/growth/internal/adapters/assets"
	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/okian/growth/pkg/metrics"
)

type journalKey struct{}

// publication is a badge URI overwritten inside a ledger transaction.
type publication struct {
	mint  model.Key
	prior string
}

// journal collects the publications of one transaction so they can be
// reverted when the transaction does not commit.
type journal struct {
	mu      sync.Mutex
	entries []publication
}

func withJournal(ctx context.Context) (context.Context, *journal) {
	j := &journal{}
	return context.WithValue(ctx, journalKey{}, j), j
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

func (j *journal) add(p publication) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, p)
}

// journaledPublisher records the URI it replaces whenever the context carries
// a journal.
type journaledPublisher struct {
	assets.Registry
}

func (p journaledPublisher) UpdateMetadata(ctx context.Context, mint model.Key, uri string) error {
	j := journalFrom(ctx)
	if j == nil {
		return p.Registry.UpdateMetadata(ctx, mint, uri)
	}
	md, err := p.Registry.Get(ctx, mint)
	if err != nil {
		return err
	}
	if err := p.Registry.UpdateMetadata(ctx, mint, uri); err != nil {
		return err
	}
	j.add(publication{mint: mint, prior: md.URI})
	return nil
}

// revert restores every journaled URI, newest first. It runs after the
// ledger transaction has been discarded.
func (s *Service) revert(ctx context.Context, j *journal) error {
	j.mu.Lock()
	entries := j.entries
	j.entries = nil
	j.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := s.assets.UpdateMetadata(ctx, e.mint, e.prior); err != nil {
			metrics.RecordPublication("revert_failed")
			s.logger.Error(ctx, "badge revert failed",
				logger.String("mint", e.mint.String()),
				logger.String("uri", e.prior),
				logger.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		metrics.RecordPublication("reverted")
	}
	return errors.Join(errs...)
}
