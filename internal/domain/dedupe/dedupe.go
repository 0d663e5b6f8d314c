// Package dedupe defines the interface for idempotency tracking.
package dedupe

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/coocood/freecache"
)

const (
	defaultMaxSize = 50000
	// Approximate freecache footprint of one id entry (header, key, value).
	bytesPerEntry = 128
	// freecache refuses smaller caches.
	minCacheBytes = 512 * 1024
	// Longer ids are stored by digest so they fit a cache entry.
	maxKeyBytes = 256
)

var seenMarker = []byte{1}

// Deduper records seen match IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen list, allowing it to be retried.
	// This should only be used when a match was marked as seen but failed
	// to be enqueued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type settings struct {
	maxSize    int
	ttlSeconds int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
// With a positive max size ids live in a fixed-size freecache segment store and
// the oldest entries are evicted first; otherwise ids are kept in a plain map
// forever.
func NewInMemoryDeduper(opts ...Option) Deduper {
	s := settings{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(&s)
	}

	if s.maxSize <= 0 {
		return &mapDeduper{seen: make(map[string]struct{})}
	}
	bytes := s.maxSize * bytesPerEntry
	if bytes < minCacheBytes {
		bytes = minCacheBytes
	}
	return &cacheDeduper{
		cache: freecache.NewCache(bytes),
		ttl:   s.ttlSeconds,
	}
}

// cacheDeduper is the bounded implementation.
type cacheDeduper struct {
	cache *freecache.Cache
	ttl   int
}

func cacheKey(id string) []byte {
	if len(id) <= maxKeyBytes {
		return []byte(id)
	}
	return binary.BigEndian.AppendUint64([]byte{'#'}, xxhash.Sum64String(id))
}

func (d *cacheDeduper) SeenAndRecord(_ context.Context, id string) bool {
	prev, err := d.cache.GetOrSet(cacheKey(id), seenMarker, d.ttl)
	return err == nil && prev != nil
}

func (d *cacheDeduper) Unrecord(_ context.Context, id string) {
	d.cache.Del(cacheKey(id))
}

func (d *cacheDeduper) Size() int64 {
	return d.cache.EntryCount()
}

// mapDeduper is the unbounded implementation.
type mapDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
}

func (d *mapDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *mapDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

func (d *mapDeduper) Size() int64 {
	return d.size.Load()
}
