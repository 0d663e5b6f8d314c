// Package dedupe defines the interface for idempotency tracking.
package dedupe

// Option applies a configuration option to the deduper.
type Option func(*settings)

// WithMaxSize sets the approximate number of IDs to keep in memory.
// If maxSize > 0: bounded mode, oldest entries are evicted first.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(s *settings) {
		s.maxSize = maxSize
	}
}

// WithTTL forgets ids after the given number of seconds in bounded mode.
// Zero keeps them until evicted.
func WithTTL(seconds int) Option {
	return func(s *settings) {
		if seconds >= 0 {
			s.ttlSeconds = seconds
		}
	}
}
