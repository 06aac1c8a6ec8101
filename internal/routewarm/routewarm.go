// Package routewarm pre-populates the route cache with neighborhood pairs
// through the bounded queue and worker pool.
package routewarm

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/photodispatch/internal/adapters/mq/queue"
	"github.com/okian/photodispatch/internal/adapters/mq/worker"
	"github.com/okian/photodispatch/internal/domain/dedupe"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
)

const enqueueRetry = 10 * time.Millisecond

// Distances is the resolver the warmer drives.
type Distances interface {
	Resolve(ctx context.Context, from, to model.Location) (distance.Result, error)
}

// resolverAdapter adapts a distance resolver to worker.Resolver and frees
// the pair's in-flight claim once it is resolved.
type resolverAdapter struct {
	distances Distances
	inflight  dedupe.Deduper
}

func (a resolverAdapter) ResolvePair(ctx context.Context, p queue.Pair) error {
	defer a.inflight.Release(ctx, pairKey(p))
	_, err := a.distances.Resolve(ctx, p.From, p.To)
	return err
}

func pairKey(p model.RoutePair) string {
	return geo.ClusterKey(p.From.Neighborhood) + "|" + geo.ClusterKey(p.To.Neighborhood)
}

// ClusterPairs returns every ordered pair of distinct neighborhoods. An
// empty list means the whole centroid table.
func ClusterPairs(neighborhoods []string) []model.RoutePair {
	if len(neighborhoods) == 0 {
		neighborhoods = geo.Neighborhoods()
	}
	seen := make(map[string]bool, len(neighborhoods))
	names := make([]string, 0, len(neighborhoods))
	for _, n := range neighborhoods {
		key := geo.ClusterKey(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, n)
	}

	pairs := make([]model.RoutePair, 0, len(names)*(len(names)-1))
	for _, from := range names {
		for _, to := range names {
			if from == to {
				continue
			}
			pairs = append(pairs, model.RoutePair{
				From: model.Location{Neighborhood: from},
				To:   model.Location{Neighborhood: to},
			})
		}
	}
	return pairs
}

// Stats describes warm-up progress.
type Stats struct {
	Backlog   int   `json:"backlog"`
	InFlight  int   `json:"in_flight"`
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Warmer owns the queue and the pool.
type Warmer struct {
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	inflight dedupe.Deduper
	logger   logger.Logger
}

// New builds a warmer with a bounded queue and a pool of workers.
func New(distances Distances, queueSize, workers int, log logger.Logger) *Warmer {
	if log == nil {
		log = logger.Named("routewarm")
	}
	q := queue.NewInMemoryQueue(queue.WithCapacity(queueSize), queue.WithBufferSize(queueSize))
	inflight := dedupe.NewInFlight(dedupe.WithMaxSize(0))
	return &Warmer{
		queue:    q,
		pool:     worker.NewPool(workers, q, resolverAdapter{distances: distances, inflight: inflight}),
		inflight: inflight,
		logger:   log,
	}
}

// Start launches the workers.
func (w *Warmer) Start(ctx context.Context) {
	w.pool.Start(ctx)
	w.logger.Info(ctx, "route warm-up started", logger.Int("workers", w.pool.Size()))
}

// Submit enqueues pairs without waiting for room. Pairs already queued or
// being resolved are skipped. It returns how many were queued.
func (w *Warmer) Submit(ctx context.Context, pairs []model.RoutePair) int {
	accepted, skipped := 0, 0
	for _, p := range pairs {
		key := pairKey(p)
		if !w.inflight.Claim(ctx, key) {
			skipped++
			continue
		}
		if !w.queue.Enqueue(ctx, p) {
			w.inflight.Release(ctx, key)
			w.logger.Warn(ctx, "warm-up queue full",
				logger.Int("accepted", accepted),
				logger.Int("requested", len(pairs)))
			break
		}
		accepted++
	}
	if skipped > 0 {
		w.logger.Debug(ctx, "skipped pairs already in flight", logger.Int("skipped", skipped))
	}
	return accepted
}

// Run enqueues every pair, waiting for room as workers drain the queue,
// then waits until all of them are processed.
func (w *Warmer) Run(ctx context.Context, pairs []model.RoutePair) (Stats, error) {
	n, err := w.queue.EnqueueAll(ctx, pairs, enqueueRetry)
	if err != nil {
		return w.Stats(ctx), fmt.Errorf("routewarm: enqueued %d of %d: %w", n, len(pairs), err)
	}
	if err := w.pool.Drain(ctx); err != nil {
		return w.Stats(ctx), fmt.Errorf("routewarm: %w", err)
	}
	stats := w.Stats(ctx)
	w.logger.Info(ctx, "route warm-up finished",
		logger.Int("pairs", len(pairs)),
		logger.Int("failed", int(stats.Failed)))
	return stats, nil
}

// Stats reports the backlog and outcome counters.
func (w *Warmer) Stats(ctx context.Context) Stats {
	c := w.pool.Counter()
	return Stats{
		Backlog:   w.queue.Len(ctx),
		InFlight:  w.inflight.Size(),
		Workers:   w.pool.Size(),
		Processed: c.Processed(),
		Failed:    c.Failed(),
	}
}

// Stop shuts the workers down without draining.
func (w *Warmer) Stop(ctx context.Context) error {
	return w.pool.Shutdown(ctx)
}
