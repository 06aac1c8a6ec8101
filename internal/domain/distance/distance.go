// Package distance resolves travel estimates between two locations through
// three precision tiers backed by the persistent route cache:
//
//  1. exact: both postal codes geocode to coordinates
//  2. cluster: both locations name a neighborhood
//  3. raw: both ends map to some point (coordinates or a known centroid)
//
// A failing tier degrades to the next one. Computed estimates are written
// with insert-if-absent semantics, so concurrent writers converge on the
// first stored value.
package distance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/photodispatch/internal/adapters/geocode"
	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

// ErrUnavailable means no tier could place both locations.
var ErrUnavailable = errors.New("distance: pair cannot be resolved")

// Tier names the precision level that produced an estimate.
type Tier string

const (
	TierExact   Tier = "exact"
	TierCluster Tier = "cluster"
	TierRaw     Tier = "raw"
)

const postalCodeDigits = 8

// Result is a resolved estimate.
type Result struct {
	geo.Estimate
	Tier Tier `json:"tier"`
	// Cached reports whether the estimate was read from the route cache.
	Cached bool `json:"cached"`
}

// Resolver answers distance queries. It is safe for concurrent use.
type Resolver struct {
	routes   repository.RouteStore
	postal   repository.PostalCodeStore
	geocoder geocode.PostalGeocoder
	model    geo.Model
	logger   logger.Logger

	geocodes singleflight.Group
	computes singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGeocoder enables on-demand postal code geocoding for the exact tier.
func WithGeocoder(g geocode.PostalGeocoder) Option {
	return func(r *Resolver) { r.geocoder = g }
}

// WithModel overrides the road inflation and speed model.
func WithModel(m geo.Model) Option {
	return func(r *Resolver) { r.model = m }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a resolver over the route and postal code stores.
func NewResolver(routes repository.RouteStore, postal repository.PostalCodeStore, opts ...Option) *Resolver {
	r := &Resolver{
		routes: routes,
		postal: postal,
		model:  geo.DefaultModel(),
		logger: logger.Named("distance"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Model returns the travel model in use.
func (r *Resolver) Model() geo.Model { return r.model }

// Resolve estimates the trip from one location to another.
func (r *Resolver) Resolve(ctx context.Context, from, to model.Location) (Result, error) {
	if res, ok := r.exact(ctx, from, to); ok {
		return res, nil
	}
	if res, ok := r.cluster(ctx, from, to); ok {
		return res, nil
	}
	if res, ok := r.raw(ctx, from, to); ok {
		return res, nil
	}
	metrics.RecordDistanceLookup(string(TierRaw), "unavailable")
	return Result{}, ErrUnavailable
}

func (r *Resolver) exact(ctx context.Context, from, to model.Location) (Result, bool) {
	a := model.NormalizePostalCode(from.PostalCode)
	b := model.NormalizePostalCode(to.PostalCode)
	if len(a) != postalCodeDigits || len(b) != postalCodeDigits {
		return Result{}, false
	}
	pa, ok := r.postalPoint(ctx, a)
	if !ok {
		return Result{}, false
	}
	pb, ok := r.postalPoint(ctx, b)
	if !ok {
		return Result{}, false
	}
	return r.cached(ctx, TierExact, model.RouteCoordinate, geo.CoordinateKey(pa), geo.CoordinateKey(pb), pa, pb)
}

func (r *Resolver) cluster(ctx context.Context, from, to model.Location) (Result, bool) {
	a, b := geo.ClusterKey(from.Neighborhood), geo.ClusterKey(to.Neighborhood)
	if a == "" || b == "" {
		return Result{}, false
	}
	return r.cached(ctx, TierCluster, model.RouteCluster, a, b, geo.Centroid(a), geo.Centroid(b))
}

func (r *Resolver) raw(ctx context.Context, from, to model.Location) (Result, bool) {
	pa, ok := approxPoint(from)
	if !ok {
		return Result{}, false
	}
	pb, ok := approxPoint(to)
	if !ok {
		return Result{}, false
	}
	return r.cached(ctx, TierRaw, model.RouteCoordinate, geo.CoordinateKey(pa), geo.CoordinateKey(pb), pa, pb)
}

// approxPoint prefers stored coordinates and falls back to the centroid of
// a known neighborhood.
func approxPoint(l model.Location) (model.Point, bool) {
	if p, ok := l.Point(); ok {
		return p, true
	}
	if l.Neighborhood != "" {
		return geo.LookupCentroid(l.Neighborhood)
	}
	return model.Point{}, false
}

// postalPoint returns the coordinates for a postal code, geocoding and
// persisting them on first sight.
func (r *Resolver) postalPoint(ctx context.Context, code string) (model.Point, bool) {
	loc, err := r.postal.GetPostalCode(ctx, code)
	if err == nil {
		return model.Point{Lat: loc.Lat, Lng: loc.Lng}, true
	}
	if !errors.Is(err, model.ErrNotFound) {
		r.logger.Warn(ctx, "postal code read failed", logger.String("postal_code", code), logger.Error(err))
		return model.Point{}, false
	}
	if r.geocoder == nil {
		return model.Point{}, false
	}

	v, err, _ := r.geocodes.Do(code, func() (interface{}, error) {
		res, err := r.geocoder.LookupPostalCode(ctx, code)
		if err != nil {
			return nil, err
		}
		stored, err := r.postal.InsertPostalCodeIfAbsent(ctx, model.PostalCodeLocation{
			PostalCode:   code,
			Lat:          res.Point.Lat,
			Lng:          res.Point.Lng,
			Neighborhood: res.Neighborhood,
			City:         res.City,
		})
		if err != nil {
			r.logger.Warn(ctx, "postal code write failed", logger.String("postal_code", code), logger.Error(err))
			return res.Point, nil
		}
		return model.Point{Lat: stored.Lat, Lng: stored.Lng}, nil
	})
	if err != nil {
		if !errors.Is(err, geocode.ErrNoResult) && !errors.Is(err, geocode.ErrDisabled) {
			r.logger.Warn(ctx, "postal code geocode failed", logger.String("postal_code", code), logger.Error(err))
		}
		return model.Point{}, false
	}
	return v.(model.Point), true
}

// cached reads the ordered pair from the route cache, computing and storing
// the estimate on a miss. Storage failures fall back to the computed value.
func (r *Resolver) cached(
	ctx context.Context,
	tier Tier,
	kind model.RouteKind,
	origin, destination string,
	a, b model.Point,
) (Result, bool) {
	start := time.Now()
	defer func() {
		metrics.RecordDistanceLatency(string(tier), float64(time.Since(start).Milliseconds()))
	}()

	entry, err := r.routes.GetRoute(ctx, kind, origin, destination)
	if err == nil {
		metrics.RecordDistanceLookup(string(tier), "hit")
		return Result{Estimate: entryEstimate(entry), Tier: tier, Cached: true}, true
	}
	if !errors.Is(err, model.ErrNotFound) {
		metrics.RecordDistanceLookup(string(tier), "error")
		r.logger.Warn(ctx, "route cache read failed",
			logger.String("tier", string(tier)), logger.String("origin", origin),
			logger.String("destination", destination), logger.Error(err))
		return Result{Estimate: r.model.Between(a, b), Tier: tier}, true
	}

	key := fmt.Sprintf("%s|%s|%s", kind, origin, destination)
	v, _, _ := r.computes.Do(key, func() (interface{}, error) {
		est := r.model.Between(a, b)
		stored, inserted, err := r.routes.InsertRouteIfAbsent(ctx, model.RouteEntry{
			Kind:        kind,
			Origin:      origin,
			Destination: destination,
			DistanceKm:  est.DistanceKm,
			DurationMin: est.DurationMin,
		})
		switch {
		case err != nil:
			metrics.RecordRouteCacheWrite("error")
			r.logger.Warn(ctx, "route cache write failed",
				logger.String("tier", string(tier)), logger.String("origin", origin),
				logger.String("destination", destination), logger.Error(err))
			return est, nil
		case inserted:
			metrics.RecordRouteCacheWrite("inserted")
		default:
			metrics.RecordRouteCacheWrite("existing")
		}
		return entryEstimate(stored), nil
	})
	metrics.RecordDistanceLookup(string(tier), "computed")
	r.logger.Debug(ctx, "route computed",
		logger.String("tier", string(tier)), logger.String("origin", origin), logger.String("destination", destination))
	return Result{Estimate: v.(geo.Estimate), Tier: tier}, true
}

func entryEstimate(e model.RouteEntry) geo.Estimate {
	return geo.Estimate{DistanceKm: e.DistanceKm, DurationMin: e.DurationMin}
}
