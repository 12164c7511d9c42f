package worker

import (
	"github.com/okian/growth/pkg/logger"
)

// Option applies a configuration option to a Worker.
type Option func(*Worker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFailureHook is called with every submission the Submitter rejected.
func WithFailureHook(fn func(s Submission, err error)) Option {
	return func(w *Worker) {
		w.onFailure = fn
	}
}
