// Package dedupe tracks keys that are currently being worked on so the same
// unit of work is not queued twice.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 50000

// Deduper records in-flight keys.
type Deduper interface {
	// Claim records key and reports true when it was not already held.
	// A full set refuses new keys.
	Claim(ctx context.Context, key string) bool

	// Release drops key so it can be claimed again. Releasing an unknown key
	// is a no-op.
	Release(ctx context.Context, key string)

	Size() int
}

// inFlight is a bounded set guarded by a mutex.
type inFlight struct {
	mu      sync.Mutex
	keys    map[string]struct{}
	maxSize int // 0 or negative means unbounded
}

// NewInFlight creates an in-memory Deduper.
func NewInFlight(opts ...Option) Deduper {
	d := &inFlight{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.keys = make(map[string]struct{})
	return d
}

func (d *inFlight) Claim(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, held := d.keys[key]; held {
		return false
	}
	if d.maxSize > 0 && len(d.keys) >= d.maxSize {
		return false
	}
	d.keys[key] = struct{}{}
	return true
}

func (d *inFlight) Release(_ context.Context, key string) {
	d.mu.Lock()
	delete(d.keys, key)
	d.mu.Unlock()
}

func (d *inFlight) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}
