// Package worker drains the match queue and applies each match to the standings.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/logger"
	"github.com/okian/rankd/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Match abstracts what workers read off the queue.
type Match = model.Match

// Applier folds a single match into the participants' rating states.
type Applier interface {
	Apply(ctx context.Context, m Match) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, m Match) error

// Apply calls f(ctx, m).
func (f ApplierFunc) Apply(ctx context.Context, m Match) error { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	return f(ctx, m)
}

// Queue defines how workers receive matches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Match
}

// Worker processes matches using the provided Applier.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue channel is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after the match in flight, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing matches.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		applier:  applier,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	matches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-matches:
			if !ok {
				return
			}
			if err := w.process(ctx, m); err != nil {
				w.logger.Error(ctx, "error processing match", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, m Match) error { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.applier.Apply(ctx, m); err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "apply failed for match",
			logger.String("matchID", m.MatchID),
			logger.String("participantID", m.ParticipantID),
			logger.Error(err),
		)
		return fmt.Errorf("apply match %s: %w", m.MatchID, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive count picks a default
// derived from the CPU count.
func NewPool(workerCount int, queue Queue, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, applier, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// startMetricsUpdater samples process metrics until the pool stops.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	p.updateMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func (p *Pool) signalShutdown() {
	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}
}

// Stop stops all workers without draining the queue.
func (p *Pool) Stop(ctx context.Context) error {
	p.signalShutdown()
	var firstErr error
	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var err error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			err = fmt.Errorf("pool shutdown: %w", shutdownCtx.Err())
		}
		if err != nil {
			break
		}
	}
	p.signalShutdown()
	metrics.UpdateWorkerCount(0)
	return err
}
