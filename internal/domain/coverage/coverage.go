// Package coverage decides which workers may serve a job: those capable of
// every requested service and authorized to travel to the neighborhood for
// at least one of them.
package coverage

import (
	"context"
	"fmt"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

// Query is a coverage request. An empty Neighborhood does not restrict.
type Query struct {
	Neighborhood string
	Services     []model.ServiceID
	// Client, when set, enables the advisory travel radius check.
	Client *model.Point
}

// Resolver filters the active roster.
type Resolver struct {
	workers repository.WorkerStore
	logger  logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a resolver over the worker store.
func NewResolver(workers repository.WorkerStore, opts ...Option) *Resolver {
	r := &Resolver{workers: workers, logger: logger.Named("coverage")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Eligible reports whether w can serve services in neighborhood.
func Eligible(w model.Worker, neighborhood string, services []model.ServiceID) bool {
	if !w.Active || !w.Capabilities.HasAll(services) {
		return false
	}
	if model.NormalizeName(neighborhood) == "" {
		return true
	}
	return w.Coverage.CoversAny(services, neighborhood)
}

// Resolve returns the eligible workers in roster order. An empty result is
// not an error.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]model.Worker, error) {
	roster, err := r.workers.ListWorkers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("coverage: list workers: %w", err)
	}

	out := make([]model.Worker, 0, len(roster))
	for _, w := range roster {
		if !Eligible(w, q.Neighborhood, q.Services) {
			continue
		}
		r.checkRadius(ctx, w, q.Client)
		out = append(out, w)
	}
	metrics.RecordCoverageResult(len(out))
	return out, nil
}

// checkRadius only observes. Eligibility never depends on it.
func (r *Resolver) checkRadius(ctx context.Context, w model.Worker, client *model.Point) {
	if client == nil || w.Base == nil || w.TravelRadiusKm == nil {
		return
	}
	base, ok := w.Base.Point()
	if !ok {
		return
	}
	d := geo.Haversine(base, *client)
	if d <= *w.TravelRadiusKm {
		return
	}
	metrics.RecordAdvisoryRadiusExceeded()
	r.logger.Debug(ctx, "client outside worker travel radius",
		logger.String("worker_id", w.ID),
		logger.Float64("distance_km", geo.Round(d, 2)),
		logger.Float64("radius_km", *w.TravelRadiusKm))
}
