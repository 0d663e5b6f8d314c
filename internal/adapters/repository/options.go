// Package repository defines the standings store interface and errors.
package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithSeed fixes the seed of the treap priority generator so tree shapes are
// reproducible.
func WithSeed(seed uint64) Option {
	return func(s *TreapStore) {
		s.seed = seed
	}
}
