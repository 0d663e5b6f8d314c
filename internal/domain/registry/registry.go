// Package registry maps algorithm names to constructors so that an algorithm
// can be selected by a configuration string.
//
// Names are case-insensitive. Registration is serialized by a mutex and
// publishes a fresh immutable map through an atomic pointer, so lookups never
// lock and never observe a partially written map.
package registry

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/pkg/metrics"
	"github.com/rotisserie/eris"
)

// Resolution statuses reported to metrics.
const (
	statusOK      = "ok"
	statusUnknown = "unknown"
	statusInvalid = "invalid"
)

// Constructor builds an algorithm instance from its params.
type Constructor func(params rating.Params) (rating.Algorithm, error)

type table map[string]Constructor

// Registry is a name to constructor mapping. The zero value is not usable;
// call New or NewDefault.
type Registry struct {
	mu      sync.Mutex
	entries atomic.Pointer[table]
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := table{}
	r.entries.Store(&empty)
	return r
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register binds name to ctor. Registering the same name again replaces the
// earlier constructor.
func (r *Registry) Register(name string, ctor Constructor) error {
	key := normalize(name)
	if key == "" {
		return eris.Wrap(ErrInvalidRegistration, "empty algorithm name")
	}
	if ctor == nil {
		return eris.Wrapf(ErrInvalidRegistration, "nil constructor for %q", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.entries.Load()
	next := make(table, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[key] = ctor
	r.entries.Store(&next)
	return nil
}

// Lookup returns the constructor registered under name.
func (r *Registry) Lookup(name string) (Constructor, bool) {
	ctor, ok := (*r.entries.Load())[normalize(name)]
	return ctor, ok
}

// Get builds a fresh instance of the algorithm registered under name. The
// boolean is false when the name is unknown; construction failures such as
// out-of-range params are returned as errors.
func (r *Registry) Get(name string, params rating.Params) (rating.Algorithm, bool, error) {
	key := normalize(name)
	ctor, ok := r.Lookup(key)
	if !ok {
		metrics.RecordRegistryResolution(statusUnknown, statusUnknown)
		return nil, false, nil
	}
	algo, err := ctor(params)
	if err != nil {
		metrics.RecordRegistryResolution(key, statusInvalid)
		return nil, true, eris.Wrapf(err, "construct %q", key)
	}
	metrics.RecordRegistryResolution(key, statusOK)
	return algo, true, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	cur := *r.entries.Load()
	names := make([]string, 0, len(cur))
	for k := range cur {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Resolve is Get that treats an unknown name as an error. The error is an
// *UnknownAlgorithmError listing the registered names.
func (r *Registry) Resolve(name string, params rating.Params) (rating.Algorithm, error) {
	algo, ok, err := r.Get(name, params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &UnknownAlgorithmError{Name: name, Available: r.Names()}
	}
	return algo, nil
}
