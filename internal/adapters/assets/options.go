package assets

import (
	"time"

	"github.com/okian/growth/pkg/logger"
)

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithNow overrides the timestamp source for UpdatedAt.
func WithNow(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}
