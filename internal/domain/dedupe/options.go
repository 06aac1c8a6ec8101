package dedupe

// Option configures an in-flight set.
type Option func(*inFlight)

// WithMaxSize caps how many keys may be held at once.
// If maxSize <= 0 the set is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inFlight) {
		d.maxSize = maxSize
	}
}
