// Package repository defines the standings store interface and errors.
package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: display rating DESC, then participantID ASC (deterministic).
// We implement a BST comparator where "less" means ranks earlier
// (i.e., higher rating ranks earlier). This makes in-order traversal
// produce the leaderboard from best to worst.

// ratingScale controls fixed-point scaling from float64.
const ratingScale = 1_000_000_000 // 9 decimal places

type ratingFP int64

func toFixedPoint(x float64) ratingFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := x * ratingScale
	if scaled >= math.MaxInt64 {
		return ratingFP(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return ratingFP(math.MinInt64)
	}
	return ratingFP(math.Round(scaled))
}

// treap node
type node struct {
	id    string
	key   ratingFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aKey, aID) should appear before (bKey, bID)
// in the leaderboard (higher ranks first).
func less(aKey ratingFP, aID string, bKey ratingFP, bID string) bool {
	if aKey != bKey {
		return aKey > bKey // higher rating ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, key ratingFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, key: key, prio: prio, size: 1}
	}
	if less(key, id, n.key, n.id) {
		n.left = insert(n.left, id, key, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, key, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, key ratingFP) *node {
	if n == nil {
		return nil
	}
	if key == n.key && id == n.id {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, key)
		}
	} else if less(key, id, n.key, n.id) {
		n.left = deleteNode(n.left, id, key)
	} else {
		n.right = deleteNode(n.right, id, key)
	}
	fix(n)
	return n
}

// before counts the nodes ordered ahead of (key, id).
func before(n *node, id string, key ratingFP) int {
	count := 0
	for n != nil {
		if less(n.key, n.id, key, id) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// walk visits nodes in rank order until visit returns false.
func walk(n *node, visit func(*node) bool) bool {
	if n == nil {
		return true
	}
	if !walk(n.left, visit) {
		return false
	}
	if !visit(n) {
		return false
	}
	return walk(n.right, visit)
}

// stored is a record plus its cached display form and tree key.
type stored struct {
	rec     Record
	display rating.Triple
	key     ratingFP
}

// TreapStore keeps standings ordered for rank and top-N queries.
//
// bands is a second treap holding one node per distinct rating key, with
// bandSize counting the participants on each key. A dense rank is the
// number of bands above a key plus one.
type TreapStore struct {
	mu       sync.RWMutex
	root     *node
	bands    *node
	bandSize map[ratingFP]int
	byID     map[string]stored
	seed     uint64
	rng      *rand.Rand
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:     make(map[string]stored),
		bandSize: make(map[ratingFP]int),
		seed:     rand.Uint64(),
	}

	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	return s
}

// Put implements Store.Put with O(log n) expected time.
func (s *TreapStore) Put(ctx context.Context, rec Record) error {
	if rec.ParticipantID == "" || rec.State == nil {
		return ErrInvalidRecord
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(millisSince(start))
	}()

	display := rating.Display(rec.State)
	key := toFixedPoint(display.Rating)

	s.mu.Lock()
	old, exists := s.byID[rec.ParticipantID]
	if exists {
		s.root = deleteNode(s.root, rec.ParticipantID, old.key)
	}
	if !exists || old.key != key {
		if exists {
			s.leaveBand(old.key)
		}
		s.joinBand(key)
	}
	s.byID[rec.ParticipantID] = stored{rec: rec, display: display, key: key}
	s.root = insert(s.root, rec.ParticipantID, key, s.rng.Uint64())
	count := len(s.byID)
	s.mu.Unlock()

	// Update metrics outside lock
	if !exists {
		metrics.UpdateParticipants(count)
	}
	return nil
}

// joinBand and leaveBand keep bands in step with bandSize. Callers hold mu.
func (s *TreapStore) joinBand(key ratingFP) {
	s.bandSize[key]++
	if s.bandSize[key] == 1 {
		s.bands = insert(s.bands, "", key, s.rng.Uint64())
	}
}

func (s *TreapStore) leaveBand(key ratingFP) {
	s.bandSize[key]--
	if s.bandSize[key] == 0 {
		delete(s.bandSize, key)
		s.bands = deleteNode(s.bands, "", key)
	}
}

// Get returns the stored record of a participant.
func (s *TreapStore) Get(ctx context.Context, participantID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.byID[participantID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return st.rec, nil
}

// Rank returns the current rank of a participant in O(log n) expected time.
// Equal display ratings share a rank and ranks are consecutive (1, 1, 2).
func (s *TreapStore) Rank(ctx context.Context, participantID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(millisSince(start))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.byID[participantID]
	if !ok {
		return Entry{}, ErrNotFound
	}

	rank := before(s.bands, "", target.key) + 1
	return Entry{Rank: rank, Record: target.rec, Display: target.display}, nil
}

// TopN returns the top N entries ordered by display rating desc.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(millisSince(start))
	}()

	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byID)))
	rank := 0
	var prev ratingFP
	walk(s.root, func(nd *node) bool {
		st := s.byID[nd.id]
		if rank == 0 || st.key != prev {
			rank++
			prev = st.key
		}
		out = append(out, Entry{Rank: rank, Record: st.rec, Display: st.display})
		return len(out) < n
	})
	return out, nil
}

// Count returns the total number of participants.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Range calls fn for every record in rank order. The records are copied
// under the read lock and fn runs after it is released.
func (s *TreapStore) Range(ctx context.Context, fn func(Record) bool) {
	s.mu.RLock()
	recs := make([]Record, 0, len(s.byID))
	walk(s.root, func(n *node) bool {
		recs = append(recs, s.byID[n.id].rec)
		return true
	})
	s.mu.RUnlock()

	for _, rec := range recs {
		if ctx.Err() != nil || !fn(rec) {
			return
		}
	}
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
