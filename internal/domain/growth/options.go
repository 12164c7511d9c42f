package growth

import "github.com/okian/growth/pkg/logger"

// Option configures a Manager.
type Option func(*Manager)

// WithRent sets the rent schedule.
func WithRent(r RentSchedule) Option {
	return func(m *Manager) {
		if r.LamportsPerByteYear > 0 && r.ExemptionYears > 0 {
			m.rent = r
		}
	}
}

// WithMaxStep bounds the bytes EnsureCapacity adds per Grow call. It should
// match the storage service's per-call limit; zero means a single call.
func WithMaxStep(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxStep = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
