package service

import (
	"maps"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/internal/domain/registry"
	"github.com/okian/rankd/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithAlgorithm selects the rating algorithm by registry name.
func WithAlgorithm(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.algorithmName = name
		}
	}
}

// WithParams sets the construction parameters of the selected algorithm.
func WithParams(params rating.Params) Option {
	return func(s *Service) {
		s.params = maps.Clone(params)
	}
}

// WithRegistry resolves algorithms from r instead of the default registry.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the match queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache. Zero keeps every
// match id for the lifetime of the service.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithLockStripes sets the number of per-participant lock stripes.
func WithLockStripes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lockStripes = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
