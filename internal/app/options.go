package service

import (
	"github.com/okian/growth/internal/adapters/notify"
	"github.com/okian/growth/internal/domain/gating"
	"github.com/okian/growth/internal/domain/growth"
	"github.com/okian/growth/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending submissions.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used to stamp submissions.
func WithClock(c gating.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithGrowth sets the record growth manager.
func WithGrowth(m *growth.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.growth = m
		}
	}
}

// WithNotifier sets the receiver of committed level changes.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithReconcileSchedule sets the cron expression of the periodic sweep.
// An empty schedule disables it.
func WithReconcileSchedule(schedule string) Option {
	return func(s *Service) {
		s.schedule = schedule
	}
}
