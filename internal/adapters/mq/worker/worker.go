package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/photodispatch/internal/adapters/mq/queue"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	metricsUpdateInterval   = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Resolver turns a queued pair into a cached route.
type Resolver interface {
	ResolvePair(ctx context.Context, p queue.Pair) error
}

// Queue defines how workers receive pairs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Pair
}

// Worker processes pairs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker.
	Shutdown(ctx context.Context) error
}

// Counter tallies outcomes across a pool.
type Counter struct {
	processed atomic.Int64
	failed    atomic.Int64
}

// Processed is the number of pairs resolved.
func (c *Counter) Processed() int64 { return c.processed.Load() }

// Failed is the number of pairs that errored.
func (c *Counter) Failed() int64 { return c.failed.Load() }

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	resolver Resolver
	name     string
	counter  *Counter

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, resolver Resolver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		resolver: resolver,
		name:     "worker",
		counter:  &Counter{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns when ctx is done, Shutdown is
// called or the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	pairs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case p, ok := <-pairs:
			if !ok {
				return
			}
			if err := w.process(ctx, p); err != nil {
				w.logger.Error(ctx, "error resolving pair", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, p queue.Pair) error { //nolint:gocritic // hugeParam: Pair is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.resolver.ResolvePair(ctx, p); err != nil {
		w.counter.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "resolve_error")
		return fmt.Errorf("resolve %s -> %s: %w", describe(p.From), describe(p.To), err)
	}
	w.counter.processed.Add(1)
	return nil
}

func describe(l model.Location) string {
	switch {
	case l.Neighborhood != "":
		return l.Neighborhood
	case l.PostalCode != "":
		return l.PostalCode
	}
	if pt, ok := l.Point(); ok {
		return fmt.Sprintf("%.4f,%.4f", pt.Lat, pt.Lng)
	}
	return "?"
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	counter *Counter

	shutdown chan struct{}
	stopOnce sync.Once

	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a worker pool. A count below one defaults to twice the
// CPU count.
func NewPool(workerCount int, q Queue, resolver Resolver) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		counter:           &Counter{},
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(q, resolver,
			WithName("worker-"+strconv.Itoa(i)),
			WithCounter(pool.counter),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerIdleCount(0)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// Counter exposes the pool's outcome tallies.
func (p *Pool) Counter() *Counter { return p.counter }

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

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
	now := time.Now()
	processed := p.counter.Processed()
	if elapsed := now.Sub(p.lastProcessedTime).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(processed-p.lastProcessed) / elapsed)
	}
	p.lastProcessed = processed
	p.lastProcessedTime = now
}

// Stop signals every worker and waits briefly for each.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.shutdown) })
	for _, w := range p.workers {
		w.stop()
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Drain closes the queue and waits for the workers to finish what is
// already queued, or for ctx to end.
func (p *Pool) Drain(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("drain: %w", ctx.Err())
		}
	}
	p.stopOnce.Do(func() { close(p.shutdown) })
	return nil
}

// Shutdown closes the queue and stops the workers without draining.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.stopOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		w.stop()
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
