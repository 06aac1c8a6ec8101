package distance_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/photodispatch/internal/adapters/geocode"
	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
)

type stubGeocoder struct {
	calls  int32
	points map[string]model.Point
	err    error
}

func (g *stubGeocoder) LookupPostalCode(_ context.Context, code string) (geocode.Result, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.err != nil {
		return geocode.Result{}, g.err
	}
	p, ok := g.points[code]
	if !ok {
		return geocode.Result{}, geocode.ErrNoResult
	}
	return geocode.Result{Point: p}, nil
}

type countingRoutes struct {
	repository.RouteStore
	gets int32
}

func (c *countingRoutes) GetRoute(ctx context.Context, kind model.RouteKind, o, d string) (model.RouteEntry, error) {
	atomic.AddInt32(&c.gets, 1)
	return c.RouteStore.GetRoute(ctx, kind, o, d)
}

func ptr(v float64) *float64 { return &v }

func TestResolverTiers(t *testing.T) {
	Convey("Given a resolver over an empty cache", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		gc := &stubGeocoder{points: map[string]model.Point{
			"80420000": {Lat: -25.4411, Lng: -49.2901},
			"80020000": {Lat: -25.4290, Lng: -49.2710},
		}}
		r := distance.NewResolver(store, store, distance.WithGeocoder(gc), distance.WithLogger(logger.Nop()))

		Convey("two geocodable postal codes use the exact tier and persist", func() {
			from := model.Location{PostalCode: "80420-000", Neighborhood: "Batel"}
			to := model.Location{PostalCode: "80020000", Neighborhood: "Centro"}

			first, err := r.Resolve(ctx, from, to)
			So(err, ShouldBeNil)
			So(first.Tier, ShouldEqual, distance.TierExact)
			So(first.Cached, ShouldBeFalse)
			want := geo.DefaultModel().Between(gc.points["80420000"], gc.points["80020000"])
			So(first.Estimate, ShouldResemble, want)

			second, err := r.Resolve(ctx, from, to)
			So(err, ShouldBeNil)
			So(second.Cached, ShouldBeTrue)
			So(second.Estimate, ShouldResemble, first.Estimate)
			So(atomic.LoadInt32(&gc.calls), ShouldEqual, 2)

			loc, err := store.GetPostalCode(ctx, "80420000")
			So(err, ShouldBeNil)
			So(loc.Lat, ShouldEqual, -25.4411)
		})

		Convey("a geocoding failure degrades to the cluster tier", func() {
			gc.err = errors.New("provider down")
			res, err := r.Resolve(ctx,
				model.Location{PostalCode: "80420000", Neighborhood: "Batel"},
				model.Location{PostalCode: "80020000", Neighborhood: "Centro"})
			So(err, ShouldBeNil)
			So(res.Tier, ShouldEqual, distance.TierCluster)
		})

		Convey("neighborhood names use centroids and are case-insensitive", func() {
			res, err := r.Resolve(ctx, model.Location{Neighborhood: " CENTRO "}, model.Location{Neighborhood: "batel"})
			So(err, ShouldBeNil)
			So(res.Tier, ShouldEqual, distance.TierCluster)
			So(res.Estimate, ShouldResemble, geo.DefaultModel().Between(geo.Centroid("Centro"), geo.Centroid("Batel")))

			_, err = store.GetRoute(ctx, model.RouteCluster, "centro", "batel")
			So(err, ShouldBeNil)
			_, err = store.GetRoute(ctx, model.RouteCluster, "batel", "centro")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("raw coordinates are used when nothing else is known", func() {
			a := model.Location{Lat: ptr(-25.43), Lng: ptr(-49.27)}
			b := model.Location{Lat: ptr(-25.50), Lng: ptr(-49.30)}
			res, err := r.Resolve(ctx, a, b)
			So(err, ShouldBeNil)
			So(res.Tier, ShouldEqual, distance.TierRaw)

			counts, _ := store.CountRoutes(ctx)
			So(counts[model.RouteCoordinate], ShouldEqual, 1)
		})

		Convey("a known neighborhood stands in for missing coordinates", func() {
			res, err := r.Resolve(ctx, model.Location{Lat: ptr(-25.43), Lng: ptr(-49.27)}, model.Location{Neighborhood: "Batel"})
			So(err, ShouldBeNil)
			So(res.Tier, ShouldEqual, distance.TierRaw)
		})

		Convey("a pair with nothing to place it is unavailable", func() {
			_, err := r.Resolve(ctx, model.Location{Address: "somewhere"}, model.Location{Neighborhood: "Batel"})
			So(errors.Is(err, distance.ErrUnavailable), ShouldBeTrue)
		})
	})
}

func TestResolverConcurrentFill(t *testing.T) {
	Convey("Concurrent misses on one pair store one row and agree on the value", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		r := distance.NewResolver(store, store, distance.WithLogger(logger.Nop()))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			results []distance.Result
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := r.Resolve(ctx, model.Location{Neighborhood: "Centro"}, model.Location{Neighborhood: "Batel"})
				if err != nil {
					return
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}()
		}
		wg.Wait()

		So(len(results), ShouldEqual, 16)
		for _, res := range results {
			So(res.Estimate, ShouldResemble, results[0].Estimate)
		}
		counts, err := store.CountRoutes(ctx)
		So(err, ShouldBeNil)
		So(counts[model.RouteCluster], ShouldEqual, 1)
	})
}

func TestPass(t *testing.T) {
	Convey("A pass reuses pairs it already resolved", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		routes := &countingRoutes{RouteStore: store}
		r := distance.NewResolver(routes, store, distance.WithLogger(logger.Nop()))
		pass := r.Pass()

		from, to := model.Location{Neighborhood: "Centro"}, model.Location{Neighborhood: "Batel"}
		first, err := pass.Resolve(ctx, from, to)
		So(err, ShouldBeNil)
		second, err := pass.Resolve(ctx, from, to)
		So(err, ShouldBeNil)

		So(second, ShouldResemble, first)
		So(atomic.LoadInt32(&routes.gets), ShouldEqual, 1)
		So(pass.Len(), ShouldEqual, 1)

		Convey("unavailable pairs are memoized too", func() {
			_, err := pass.Resolve(ctx, model.Location{}, model.Location{})
			So(errors.Is(err, distance.ErrUnavailable), ShouldBeTrue)
			So(pass.Len(), ShouldEqual, 2)
		})
	})
}
