// Package growth funds and enlarges records whose variable-length fields no
// longer fit their storage footprint.
package growth

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
	"github.com/okian/growth/pkg/metrics"
)

// ErrNegativeGrowth is returned for a negative byte count.
var ErrNegativeGrowth = errors.New("growth must not be negative")

// Storage is the slice of a ledger transaction the manager needs.
type Storage interface {
	Create(addr model.Key, size int, payer model.Key, lamports uint64) error
	Size(addr model.Key) (int, error)
	Balance(addr model.Key) (uint64, error)
	Transfer(from, to model.Key, amount uint64) error
	Resize(addr model.Key, newSize int) error
}

// Manager computes funding requirements and grows records in place.
type Manager struct {
	rent    RentSchedule
	maxStep int
	logger  logger.Logger
}

// New creates a Manager with the default rent schedule.
func New(opts ...Option) *Manager {
	m := &Manager{
		rent:   DefaultRent(),
		logger: logger.Get().Named("growth"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rent returns the schedule in use.
func (m *Manager) Rent() RentSchedule { return m.rent }

// Create allocates a record of size bytes at addr funded with exactly the
// minimum for that size.
func (m *Manager) Create(ctx context.Context, st Storage, addr, payer model.Key, size int) (uint64, error) {
	required := m.rent.Minimum(size)
	if err := st.Create(addr, size, payer, required); err != nil {
		metrics.RecordGrowthFailure()
		return 0, fmt.Errorf("create record %s: %w", addr, err)
	}
	m.logger.Debug(ctx, "record created",
		logger.String("address", addr.String()),
		logger.Int("size", size),
		logger.Uint64("funded", required),
	)
	return required, nil
}

// Grow adds add bytes to the record at addr. It first transfers from payer
// exactly the shortfall between the funding required at the new size and the
// record's current balance, then resizes. Any error must abort the enclosing
// transaction; nothing is rolled back here.
func (m *Manager) Grow(ctx context.Context, st Storage, addr, payer model.Key, add int) (uint64, error) {
	if add < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativeGrowth, add)
	}
	size, err := st.Size(addr)
	if err != nil {
		return 0, fmt.Errorf("grow %s: %w", addr, err)
	}
	balance, err := st.Balance(addr)
	if err != nil {
		return 0, fmt.Errorf("grow %s: %w", addr, err)
	}

	newSize := size + add
	required := m.rent.Minimum(newSize)
	var shortfall uint64
	if required > balance {
		shortfall = required - balance
	}

	if err := st.Transfer(payer, addr, shortfall); err != nil {
		metrics.RecordGrowthFailure()
		return 0, fmt.Errorf("fund growth of %s: %w", addr, err)
	}
	if err := st.Resize(addr, newSize); err != nil {
		metrics.RecordGrowthFailure()
		return 0, fmt.Errorf("resize %s to %d: %w", addr, newSize, err)
	}

	metrics.RecordGrowth(add, shortfall)
	m.logger.Debug(ctx, "record grown",
		logger.String("address", addr.String()),
		logger.Int("from", size),
		logger.Int("to", newSize),
		logger.Uint64("funded", shortfall),
	)
	return shortfall, nil
}

// EnsureCapacity grows the record at addr until it holds at least need bytes,
// in steps no larger than the configured maximum. It returns the total
// funding transferred.
func (m *Manager) EnsureCapacity(ctx context.Context, st Storage, addr, payer model.Key, need int) (uint64, error) {
	size, err := st.Size(addr)
	if err != nil {
		return 0, fmt.Errorf("capacity of %s: %w", addr, err)
	}
	var total uint64
	for size < need {
		step := need - size
		if m.maxStep > 0 && step > m.maxStep {
			step = m.maxStep
		}
		funded, err := m.Grow(ctx, st, addr, payer, step)
		if err != nil {
			return total, err
		}
		total += funded
		size += step
	}
	return total, nil
}
