// Package service orchestrates the leveling engine: every operation runs as
// one ledger transaction and the HTTP API talks only to this package.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/okian/growth/internal/adapters/assets"
	"github.com/okian/growth/internal/adapters/ledger"
	"github.com/okian/growth/internal/adapters/mq/queue"
	"github.com/okian/growth/internal/adapters/mq/worker"
	"github.com/okian/growth/internal/adapters/notify"
	"github.com/okian/growth/internal/domain/dedupe"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/growth"
	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/okian/growth/pkg/metrics"
)

// Ledger is the storage service the engine runs on. *ledger.Store and
// *ledger.Persistent both satisfy it.
type Ledger interface {
	RunInTransaction(ctx context.Context, fn func(ledger.Tx) error) (ledger.Result, error)
	Deposit(ctx context.Context, addr model.Key, amount uint64) error
	Get(ctx context.Context, addr model.Key) (ledger.Account, error)
	Accounts(ctx context.Context, addrs ...model.Key) []ledger.Account
	Close() error
}

// Service implements the API dependencies for the leveling engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	ledger   Ledger
	assets   assets.Registry
	growth   *growth.Manager
	protocol *gating.Protocol
	notifier notify.Notifier
	clock    gating.Clock

	// Asynchronous ingestion, built on Start
	deduper dedupe.Deduper
	queue   queue.Queue
	pool    *worker.Pool
	cron    *cron.Cron

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	schedule    string

	started bool
	logger  logger.Logger
}

// New constructs a Service over the given ledger and asset registry.
func New(l Ledger, reg assets.Registry, opts ...Option) *Service {
	s := &Service{
		ledger:      l,
		assets:      reg,
		notifier:    notify.Nop{},
		clock:       gating.SystemClock{},
		workerCount: runtime.NumCPU() * 2,
		queueSize:   10000,
		dedupeSize:  50000,
		logger:      logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.growth == nil {
		s.growth = growth.New(growth.WithMaxStep(ledger.DefaultMaxGrowPerCall))
	}
	s.protocol = gating.New(journaledPublisher{reg}, gating.WithClock(s.clock))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start launches the submission workers and the reconcile sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting leveling service...")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithFailureHook(s.onSubmissionFailed),
	)
	s.pool.Start(ctx)

	if s.schedule != "" {
		clog := cronLogger{l: s.logger.Named("sweep")}
		c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(clog)), cron.WithLogger(clog))
		if _, err := c.AddFunc(s.schedule, func() { s.runSweep(ctx) }); err != nil {
			_ = s.pool.Shutdown(ctx)
			return fmt.Errorf("schedule reconcile sweep %q: %w", s.schedule, err)
		}
		c.Start()
		s.cron = c
	}

	s.started = true
	s.logger.Info(ctx, "leveling service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("schedule", s.schedule),
	)
	return nil
}

// Stop halts the sweep and drains the submission queue.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping leveling service...")

	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
		}
		s.cron = nil
	}

	var err error
	if s.pool != nil {
		err = s.pool.Shutdown(ctx)
	}

	s.started = false
	s.logger.Info(ctx, "leveling service stopped")
	return err
}

// Close stops the service and releases the ledger and the notifier.
func (s *Service) Close(ctx context.Context) error {
	return errors.Join(s.Stop(ctx), s.notifier.Close(), s.ledger.Close())
}

// Deposit funds a wallet on the ledger.
func (s *Service) Deposit(ctx context.Context, addr model.Key, amount uint64) error {
	return s.ledger.Deposit(ctx, addr, amount)
}

// Balance returns the lamports held at addr.
func (s *Service) Balance(ctx context.Context, addr model.Key) (uint64, error) {
	acc, err := s.ledger.Get(ctx, addr)
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// Enqueue accepts a review for asynchronous processing. It reports true when
// the submission id was already seen, in which case nothing is queued. A
// missing id is assigned.
func (s *Service) Enqueue(ctx context.Context, sub model.Submission) (string, bool, error) {
	if sub.Org == model.NilKey || sub.Applicant == model.NilKey || len(sub.Scores) == 0 {
		return "", false, ErrInvalidSubmission
	}

	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return "", false, ErrNotStarted
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if s.deduper.SeenAndRecord(ctx, sub.ID) {
		metrics.RecordSubmissionDuplicate()
		s.logger.Debug(ctx, "duplicate submission detected, skipping", logger.String("id", sub.ID))
		return sub.ID, true, nil
	}
	if err := q.Enqueue(ctx, sub); err != nil {
		s.deduper.Unrecord(ctx, sub.ID)
		return sub.ID, false, err
	}
	metrics.RecordSubmission()
	metrics.UpdateQueueSize(q.Len())
	return sub.ID, false, nil
}

// Submit implements worker.Submitter.
func (s *Service) Submit(ctx context.Context, sub model.Submission) error {
	_, err := s.ReceiveScore(ctx, sub)
	return err
}

func (s *Service) onSubmissionFailed(sub model.Submission, err error) {
	ctx := context.Background()
	// Let the reviewer retry a rejected review under the same id.
	s.deduper.Unrecord(ctx, sub.ID)
	metrics.RecordErrorByComponent("worker", errorKind(err))
	s.logger.Warn(ctx, "submission rejected",
		logger.String("id", sub.ID),
		logger.String("org", sub.Org.String()),
		logger.String("applicant", sub.Applicant.String()),
		logger.Error(err),
	)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	registries, records := s.countRecords(ctx)
	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"dedupeEntries": s.deduper.Size(),
		"organizations": registries,
		"scoreRecords":  records,
		"schedule":      s.schedule,
	}
	metrics.UpdateScoreRecords(records)

	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		stats["processed"] = s.pool.Processed()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

func (s *Service) countRecords(ctx context.Context) (registries, records int) {
	for _, acc := range s.ledger.Accounts(ctx) {
		switch model.KindOf(acc.Data) {
		case model.KindRegistry:
			registries++
		case model.KindScore:
			records++
		}
	}
	return registries, records
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrShapeMismatch), errors.Is(err, model.ErrInvalidRegistry):
		return "invalid"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "internal"
	}
}
