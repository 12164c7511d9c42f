package dedupe

// Option applies a configuration option to the deduper.
type Option func(*window)

// WithMaxSize bounds how many ids are remembered; zero or less is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(w *window) {
		w.maxSize = maxSize
	}
}
