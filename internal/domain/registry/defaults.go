package registry

import (
	"sync"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/internal/domain/rating/elo"
	"github.com/okian/rankd/internal/domain/rating/glicko2"
	"github.com/okian/rankd/internal/domain/rating/points"
	"github.com/okian/rankd/pkg/metrics"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// NewDefault returns a registry holding the built-in algorithms, registered
// in a fixed order: elo, glicko2, points.
func NewDefault() *Registry {
	r := New()
	builtins := []struct {
		name string
		ctor Constructor
	}{
		{elo.Name, func(p rating.Params) (rating.Algorithm, error) {
			return elo.FromParams(p)
		}},
		{glicko2.Name, func(p rating.Params) (rating.Algorithm, error) {
			return glicko2.FromParams(p, glicko2.WithIterationObserver(metrics.ObserveVolatilityIterations))
		}},
		{points.Name, func(p rating.Params) (rating.Algorithm, error) {
			return points.FromParams(p)
		}},
	}
	for _, b := range builtins {
		// Built-in names and constructors are never empty.
		_ = r.Register(b.name, b.ctor)
	}
	return r
}

// Default returns the process-wide registry of built-in algorithms, built on
// first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewDefault()
	})
	return defaultRegistry
}
