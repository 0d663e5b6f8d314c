// Package service runs a leaderboard on top of a rating algorithm: matches are
// queued, deduplicated and folded into per-participant rating states by a
// worker pool, and standings are served from an ordered store.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	matchqueue "github.com/okian/rankd/internal/adapters/mq/queue"
	workerpool "github.com/okian/rankd/internal/adapters/mq/worker"
	"github.com/okian/rankd/internal/adapters/repository"
	"github.com/okian/rankd/internal/domain/dedupe"
	"github.com/okian/rankd/internal/domain/rating"
	"github.com/okian/rankd/internal/domain/registry"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultAlgorithm   = "elo"
	defaultQueueSize   = 100000
	defaultDedupeSize  = 50000
	defaultLockStripes = 256
	flushPollInterval  = time.Millisecond
)

// Service owns the leaderboard components and the selected algorithm.
type Service struct {
	mu sync.RWMutex

	// Configuration
	algorithmName string
	params        rating.Params
	registry      *registry.Registry
	workerCount   int
	queueSize     int
	dedupeSize    int
	lockStripes   int

	// State
	started bool
	eng     *engine

	logger logger.Logger
}

// engine is the set of components built by Start.
type engine struct {
	name    string
	alg     rating.Algorithm
	store   repository.Store
	deduper dedupe.Deduper
	queue   *matchqueue.InMemoryQueue
	pool    *workerpool.Pool
	stripes []sync.Mutex

	// matches accepted by Submit and not yet applied
	pending atomic.Int64

	// participants that played since the last period end
	periodMu sync.Mutex
	active   map[string]struct{}

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		algorithmName: defaultAlgorithm,
		workerCount:   runtime.NumCPU() * 2,
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		lockStripes:   defaultLockStripes,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start resolves the algorithm and starts the service components. Starting
// again after Stop keeps the standings and the seen match ids.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.registry == nil {
		s.registry = registry.Default()
	}

	alg, err := s.registry.Resolve(s.algorithmName, s.params)
	if err != nil {
		s.logger.Error(ctx, "cannot resolve rating algorithm",
			logger.String("algorithm", s.algorithmName),
			logger.Error(err),
		)
		return fmt.Errorf("start service: %w", err)
	}

	e := &engine{
		name:   normalizeName(s.algorithmName),
		alg:    alg,
		queue:  matchqueue.NewInMemoryQueue(matchqueue.WithCapacity(s.queueSize)),
		logger: s.logger,
	}
	if prev := s.eng; prev != nil {
		// Restart: standings, seen match ids and the open period carry over.
		e.store, e.deduper, e.stripes = prev.store, prev.deduper, prev.stripes
		prev.periodMu.Lock()
		e.active, prev.active = prev.active, make(map[string]struct{})
		prev.periodMu.Unlock()
	} else {
		e.store = repository.NewTreapStore()
		e.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
		e.stripes = make([]sync.Mutex, s.lockStripes)
		e.active = make(map[string]struct{})
	}
	e.pool = workerpool.NewPool(s.workerCount, e.queue, workerpool.ApplierFunc(e.applyQueued),
		workerpool.WithLogger(logger.Get().Named("worker")),
	)
	e.pool.Start(context.WithoutCancel(ctx))

	s.eng = e
	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.String("algorithm", alg.DisplayName()),
		logger.Int("workers", e.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("lockStripes", s.lockStripes),
	)
	return nil
}

// Stop closes the queue and waits for the workers to apply what is left.
// Standings stay readable after Stop.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	err := s.eng.pool.Shutdown(ctx)
	s.started = false
	if err != nil {
		s.logger.Warn(ctx, "leaderboard service stopped with pending matches",
			logger.Any("pending", s.eng.pending.Load()),
			logger.Error(err),
		)
		return err
	}
	s.logger.Info(ctx, "leaderboard service stopped")
	return nil
}

// Algorithm returns the algorithm in use, or nil before Start.
func (s *Service) Algorithm() rating.Algorithm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.eng == nil {
		return nil
	}
	return s.eng.alg
}

// running returns the engine if the service accepts matches.
func (s *Service) running() (*engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.eng, nil
}

// built returns the engine if Start has run at least once.
func (s *Service) built() (*engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.eng == nil {
		return nil, ErrNotStarted
	}
	return s.eng, nil
}

// Flush waits until every submitted match has been applied.
func (s *Service) Flush(ctx context.Context) error {
	e, err := s.built()
	if err != nil {
		return err
	}
	return e.flush(ctx)
}

func (e *engine) flush(ctx context.Context) error {
	if e.pending.Load() == 0 {
		return nil
	}
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush with %d pending: %w", e.pending.Load(), ctx.Err())
		case <-ticker.C:
			if e.pending.Load() == 0 {
				return nil
			}
		}
	}
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started       bool
	Algorithm     string
	Workers       int
	QueueLength   int
	QueueCapacity int
	Pending       int64
	Participants  int
	SeenMatches   int64
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Started: s.started, QueueCapacity: s.queueSize}
	if s.eng == nil {
		return st
	}

	ctx := context.Background()
	st.Algorithm = s.eng.alg.DisplayName()
	st.Workers = s.eng.pool.Size()
	st.QueueLength = s.eng.queue.Len(ctx)
	st.QueueCapacity = s.eng.queue.Capacity()
	st.Pending = s.eng.pending.Load()
	st.Participants = s.eng.store.Count(ctx)
	st.SeenMatches = s.eng.deduper.Size()
	return st
}

// lock takes the stripes guarding ids in index order and returns the unlock.
func (e *engine) lock(ids ...string) func() {
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		i := int(xxhash.Sum64String(id) % uint64(len(e.stripes)))
		if !slices.Contains(idx, i) {
			idx = append(idx, i)
		}
	}
	slices.Sort(idx)
	for _, i := range idx {
		e.stripes[i].Lock()
	}
	return func() {
		for k := len(idx) - 1; k >= 0; k-- {
			e.stripes[idx[k]].Unlock()
		}
	}
}

// record returns the stored record of id, or a fresh one at the default rating.
func (e *engine) record(ctx context.Context, id string) (repository.Record, error) {
	rec, err := e.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Record{ParticipantID: id, State: e.alg.DefaultRating()}, nil
	}
	return rec, err
}

func (e *engine) markActive(ids ...string) {
	e.periodMu.Lock()
	defer e.periodMu.Unlock()
	for _, id := range ids {
		e.active[id] = struct{}{}
	}
}

// fail records an algorithm failure and wraps it with context.
func (e *engine) fail(err error, format string, args ...any) error {
	metrics.RecordRatingError(e.name, errorReason(err))
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, rating.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, rating.ErrNonConvergence):
		return "non_convergence"
	case errors.Is(err, rating.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "store"
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
