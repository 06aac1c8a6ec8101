// Package worker runs the goroutines that drain the route queue into the
// route cache.
package worker

import (
	"github.com/okian/photodispatch/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithCounter wires the worker's outcomes into a shared counter.
func WithCounter(c *Counter) Option {
	return func(w *InMemoryWorker) {
		if c != nil {
			w.counter = c
		}
	}
}
