package gating

import (
	"github.com/okian/growth/pkg/logger"
)

// Option configures a Protocol.
type Option func(*Protocol)

// WithClock sets the timestamp source used when a submission carries no override.
func WithClock(c Clock) Option {
	return func(p *Protocol) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l
		}
	}
}
