package routewarm_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/routewarm"
	"github.com/okian/photodispatch/pkg/logger"
)

// gatedDistances blocks every resolve until gate is closed.
type gatedDistances struct {
	gate chan struct{}
}

func (g gatedDistances) Resolve(ctx context.Context, _, _ model.Location) (distance.Result, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
	}
	return distance.Result{}, nil
}

func TestClusterPairs(t *testing.T) {
	Convey("Ordered pairs skip self-pairs and duplicate names", t, func() {
		pairs := routewarm.ClusterPairs([]string{"Centro", "Batel", " centro ", "Portão"})
		So(len(pairs), ShouldEqual, 6)
		for _, p := range pairs {
			So(geo.ClusterKey(p.From.Neighborhood), ShouldNotEqual, geo.ClusterKey(p.To.Neighborhood))
		}
	})

	Convey("An empty list covers the centroid table", t, func() {
		n := len(geo.Neighborhoods())
		So(len(routewarm.ClusterPairs(nil)), ShouldEqual, n*(n-1))
	})
}

func TestWarmerRun(t *testing.T) {
	Convey("Given a warmer over an empty route cache", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store := repository.NewMemoryStore()
		resolver := distance.NewResolver(store, store, distance.WithLogger(logger.Nop()))
		w := routewarm.New(resolver, 4, 3, logger.Nop())
		w.Start(ctx)

		pairs := routewarm.ClusterPairs([]string{"Centro", "Batel", "Portão", "Água Verde"})
		stats, err := w.Run(ctx, pairs)

		Convey("every pair lands in the cluster cache exactly once", func() {
			So(err, ShouldBeNil)
			So(stats.Processed, ShouldEqual, int64(len(pairs)))
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Backlog, ShouldEqual, 0)

			counts, err := store.CountRoutes(ctx)
			So(err, ShouldBeNil)
			So(counts[model.RouteCluster], ShouldEqual, len(pairs))

			res, err := resolver.Resolve(ctx, pairs[0].From, pairs[0].To)
			So(err, ShouldBeNil)
			So(res.Cached, ShouldBeTrue)
			So(res.Tier, ShouldEqual, distance.TierCluster)
		})
	})
}

func TestWarmerSubmit(t *testing.T) {
	Convey("Given a warmer whose resolves are held", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gate := make(chan struct{})
		w := routewarm.New(gatedDistances{gate: gate}, 10, 1, logger.Nop())
		w.Start(ctx)
		pairs := routewarm.ClusterPairs([]string{"Centro", "Batel", "Portão"})

		Convey("pairs still in flight are not queued twice", func() {
			So(w.Submit(ctx, pairs), ShouldEqual, len(pairs))
			So(w.Submit(ctx, pairs), ShouldEqual, 0)
			So(w.Stats(ctx).InFlight, ShouldEqual, len(pairs))

			close(gate)
			So(w.Stop(ctx), ShouldBeNil)
		})
	})
}
