package recommend_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/recommend"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/pkg/logger"
)

var monday = model.NewDate(2024, 5, 13)

func settings() recommend.Settings {
	return recommend.Settings{
		Hours:              schedule.DefaultHours(),
		SearchRadiusKm:     15,
		ClusterRadiusKm:    5,
		MinGapMin:          15,
		AfterBonus:         5,
		ClusterWeight:      0.5,
		PendingScanLimit:   50,
		SlotCandidateLimit: 100,
		DefaultDurationMin: 60,
	}
}

func at(p model.Point) model.Location {
	var l model.Location
	l.SetPoint(p)
	return l
}

func confirmedJob(id, worker string, p model.Point, start model.Clock, minutes int) model.Job {
	d, w := monday, worker
	return model.Job{ID: id, Protocol: id, Status: model.StatusConfirmed, WorkerID: &w,
		Date: &d, Time: &start, DurationMin: minutes, Location: at(p)}
}

func pendingJob(id string, p model.Point) model.Job {
	d := monday
	return model.Job{ID: id, Protocol: id, Status: model.StatusPending, Date: &d, DurationMin: 60, Location: at(p)}
}

func newRecommender(store *repository.MemoryStore) *recommend.Recommender {
	dist := distance.NewResolver(store, store, distance.WithLogger(logger.Nop()))
	return recommend.NewRecommender(store, dist, settings(), recommend.WithLogger(logger.Nop()))
}

func byKind(ops []recommend.Opportunity, kind recommend.Kind, jobID string) *recommend.Opportunity {
	for i := range ops {
		if ops[i].Kind == kind && ops[i].JobID == jobID {
			return &ops[i]
		}
	}
	return nil
}

func TestSuggestSlots(t *testing.T) {
	Convey("Given a confirmed route in Curitiba", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.UpsertWorker(ctx, model.Worker{ID: "w1", Name: "Ana", Active: true}), ShouldBeNil)

		batel := model.Point{Lat: -25.4420, Lng: -49.2890}
		So(store.CreateJob(ctx, confirmedJob("j1", "w1", batel, model.At(10, 0), 60)), ShouldBeNil)
		r := newRecommender(store)
		target := model.Point{Lat: -25.4350, Lng: -49.2800}

		Convey("a nearby job yields both gap insertions with consistent times", func() {
			ops, err := r.SuggestSlots(ctx, recommend.SlotQuery{Point: target, Date: monday, DurationMin: 60})
			So(err, ShouldBeNil)

			after := byKind(ops, recommend.KindGapAfter, "j1")
			before := byKind(ops, recommend.KindGapBefore, "j1")
			So(after, ShouldNotBeNil)
			So(before, ShouldNotBeNil)
			So(after.WorkerName, ShouldEqual, "Ana")
			So(after.TravelMin, ShouldBeGreaterThan, 0)
			So(*after.SuggestedTime, ShouldEqual, model.At(11, 0).Add(after.TravelMin+15))
			So(before.SuggestedTime.Add(before.TravelMin+15+60), ShouldEqual, model.At(10, 0))
			So(after.Score-before.Score, ShouldAlmostEqual, 5, 0.001)
			So(after.DistanceKm, ShouldEqual, geo.Round(geo.Haversine(target, batel), 1))
		})

		Convey("insertions that would start before opening are dropped", func() {
			So(store.CreateJob(ctx, confirmedJob("early", "w1", batel, model.At(8, 0), 60)), ShouldBeNil)
			ops, err := r.SuggestSlots(ctx, recommend.SlotQuery{Point: target, Date: monday, DurationMin: 60})
			So(err, ShouldBeNil)
			So(byKind(ops, recommend.KindGapAfter, "early"), ShouldNotBeNil)
			So(byKind(ops, recommend.KindGapBefore, "early"), ShouldBeNil)
		})

		Convey("insertions that would run past closing are dropped", func() {
			So(store.CreateJob(ctx, confirmedJob("late", "w1", batel, model.At(17, 30), 60)), ShouldBeNil)
			ops, err := r.SuggestSlots(ctx, recommend.SlotQuery{Point: target, Date: monday, DurationMin: 60})
			So(err, ShouldBeNil)
			So(byKind(ops, recommend.KindGapAfter, "late"), ShouldBeNil)
			So(byKind(ops, recommend.KindGapBefore, "late"), ShouldNotBeNil)
		})

		Convey("jobs outside the search radius are ignored", func() {
			pontaGrossa := model.Point{Lat: -25.0945, Lng: -50.1633}
			So(store.CreateJob(ctx, confirmedJob("far", "w1", pontaGrossa, model.At(14, 0), 60)), ShouldBeNil)
			ops, err := r.SuggestSlots(ctx, recommend.SlotQuery{Point: target, Date: monday, DurationMin: 60})
			So(err, ShouldBeNil)
			So(byKind(ops, recommend.KindGapAfter, "far"), ShouldBeNil)
		})

		Convey("close pending jobs are offered for clustering, sorted by distance", func() {
			So(store.CreateJob(ctx, pendingJob("p-near", model.Point{Lat: -25.4360, Lng: -49.2805})), ShouldBeNil)
			So(store.CreateJob(ctx, pendingJob("p-far", model.Point{Lat: -25.5200, Lng: -49.2800})), ShouldBeNil)

			ops, err := r.SuggestSlots(ctx, recommend.SlotQuery{Point: target, Date: monday})
			So(err, ShouldBeNil)
			near := byKind(ops, recommend.KindNearbyPending, "p-near")
			So(near, ShouldNotBeNil)
			So(near.WorkerID, ShouldBeEmpty)
			So(near.Score, ShouldBeGreaterThan, 0)
			So(byKind(ops, recommend.KindNearbyPending, "p-far"), ShouldBeNil)
			So(ops[0].JobID, ShouldEqual, "p-near")
			for i := 1; i < len(ops); i++ {
				So(ops[i-1].DistanceKm, ShouldBeLessThanOrEqualTo, ops[i].DistanceKm)
			}
		})

		Convey("Sunday has no suggestions", func() {
			ops, err := r.SuggestSlots(ctx, recommend.SlotQuery{Point: target, Date: model.NewDate(2024, 5, 12)})
			So(err, ShouldBeNil)
			So(ops, ShouldBeEmpty)
		})
	})
}

func TestSuggestSlotsCandidateCap(t *testing.T) {
	Convey("Given a busy day of confirmed jobs far from the client", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.UpsertWorker(ctx, model.Worker{ID: "w1", Name: "Ana", Active: true}), ShouldBeNil)

		cfg := settings()
		cfg.SlotCandidateLimit = 50
		away := model.Point{Lat: -25.8000, Lng: -49.2800}
		for i := 0; i < cfg.SlotCandidateLimit; i++ {
			So(store.CreateJob(ctx, confirmedJob(fmt.Sprintf("far-%02d", i), "w1", away, model.At(8, 0), 60)), ShouldBeNil)
		}
		So(store.CreateJob(ctx, confirmedJob("near", "w1", model.Point{Lat: -25.4420, Lng: -49.2890}, model.At(10, 0), 60)), ShouldBeNil)

		dist := distance.NewResolver(store, store, distance.WithLogger(logger.Nop()))
		r := recommend.NewRecommender(store, dist, cfg, recommend.WithLogger(logger.Nop()))

		Convey("the cap applies after the radius filter so the close job still counts", func() {
			ops, err := r.SuggestSlots(ctx, recommend.SlotQuery{Point: model.Point{Lat: -25.4350, Lng: -49.2800}, Date: monday, DurationMin: 60})
			So(err, ShouldBeNil)
			So(byKind(ops, recommend.KindGapAfter, "near"), ShouldNotBeNil)
			for _, o := range ops {
				So(o.JobID, ShouldNotStartWith, "far-")
			}
		})

		Convey("only the nearest jobs inside the radius are kept", func() {
			cfg.SlotCandidateLimit = 1
			corner := model.Point{Lat: -25.4360, Lng: -49.2805}
			So(store.CreateJob(ctx, confirmedJob("closest", "w1", corner, model.At(15, 0), 60)), ShouldBeNil)
			capped := recommend.NewRecommender(store, dist, cfg, recommend.WithLogger(logger.Nop()))

			ops, err := capped.SuggestSlots(ctx, recommend.SlotQuery{Point: model.Point{Lat: -25.4350, Lng: -49.2800}, Date: monday, DurationMin: 60})
			So(err, ShouldBeNil)
			So(byKind(ops, recommend.KindGapAfter, "closest"), ShouldNotBeNil)
			So(byKind(ops, recommend.KindGapAfter, "near"), ShouldBeNil)
			So(byKind(ops, recommend.KindGapBefore, "near"), ShouldBeNil)
		})
	})
}

func TestSuggestJobs(t *testing.T) {
	Convey("Given a worker with a morning and an afternoon job", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()

		home := model.Point{Lat: -25.4284, Lng: -49.2733}
		prev := model.Point{Lat: -25.40, Lng: -49.27}
		next := model.Point{Lat: -25.50, Lng: -49.27}
		homeLoc := at(home)
		So(store.UpsertWorker(ctx, model.Worker{ID: "w1", Name: "Ana", Active: true, Base: &homeLoc}), ShouldBeNil)
		So(store.UpsertWorker(ctx, model.Worker{ID: "w2", Name: "Bia", Active: true}), ShouldBeNil)
		So(store.CreateJob(ctx, confirmedJob("a", "w1", prev, model.At(9, 0), 60)), ShouldBeNil)
		So(store.CreateJob(ctx, confirmedJob("b", "w1", next, model.At(15, 0), 60)), ShouldBeNil)

		// on the way between the anchors
		So(store.CreateJob(ctx, pendingJob("between", model.Point{Lat: -25.45, Lng: -49.27})), ShouldBeNil)
		// closest to the previous anchor but off the route
		So(store.CreateJob(ctx, pendingJob("aside", model.Point{Lat: -25.40, Lng: -49.22})), ShouldBeNil)

		r := newRecommender(store)

		Convey("insertion order prefers the smallest detour", func() {
			ranked, anchors, err := r.SuggestJobs(ctx, recommend.JobQuery{WorkerID: "w1", Date: monday, Time: model.At(12, 0)})
			So(err, ShouldBeNil)
			So(anchors.PrevIsBase, ShouldBeFalse)
			So(*anchors.Prev, ShouldResemble, prev)
			So(*anchors.Next, ShouldResemble, next)
			So(len(ranked), ShouldEqual, 2)
			So(ranked[0].Job.ID, ShouldEqual, "between")
			So(ranked[0].InsertionCost, ShouldAlmostEqual, *ranked[0].FromPrevKm+*ranked[0].ToNextKm, 0.02)
		})

		Convey("nearest order ranks by distance from the previous anchor", func() {
			ranked, _, err := r.SuggestJobs(ctx, recommend.JobQuery{WorkerID: "w1", Date: monday, Time: model.At(12, 0), Order: recommend.OrderNearest})
			So(err, ShouldBeNil)
			So(ranked[0].Job.ID, ShouldEqual, "aside")
		})

		Convey("without an earlier job the base is the previous anchor", func() {
			_, anchors, err := r.SuggestJobs(ctx, recommend.JobQuery{WorkerID: "w1", Date: monday, Time: model.At(8, 0)})
			So(err, ShouldBeNil)
			So(anchors.PrevIsBase, ShouldBeTrue)
			So(*anchors.Prev, ShouldResemble, home)
			So(*anchors.Next, ShouldResemble, prev)
		})

		Convey("a job at exactly the target time is not an anchor", func() {
			_, anchors, err := r.SuggestJobs(ctx, recommend.JobQuery{WorkerID: "w1", Date: monday, Time: model.At(9, 0)})
			So(err, ShouldBeNil)
			So(anchors.PrevIsBase, ShouldBeTrue)
			So(*anchors.Next, ShouldResemble, next)
		})

		Convey("a worker with no base and no jobs gets nothing", func() {
			ranked, _, err := r.SuggestJobs(ctx, recommend.JobQuery{WorkerID: "w2", Date: monday, Time: model.At(12, 0)})
			So(err, ShouldBeNil)
			So(ranked, ShouldBeEmpty)
		})

		Convey("with only a next anchor the cost is the leg to it", func() {
			c := model.Point{Lat: -25.45, Lng: -49.27}
			So(store.CreateJob(ctx, confirmedJob("c", "w2", next, model.At(15, 0), 60)), ShouldBeNil)
			ranked, anchors, err := r.SuggestJobs(ctx, recommend.JobQuery{WorkerID: "w2", Date: monday, Time: model.At(10, 0)})
			So(err, ShouldBeNil)
			So(anchors.Prev, ShouldBeNil)
			So(ranked[0].Job.ID, ShouldEqual, "between")
			So(ranked[0].InsertionCost, ShouldAlmostEqual, geo.Haversine(c, next), 0.01)
		})

		Convey("an unknown worker is not found", func() {
			_, _, err := r.SuggestJobs(ctx, recommend.JobQuery{WorkerID: "ghost", Date: monday, Time: model.At(12, 0)})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestInsertionCost(t *testing.T) {
	Convey("Insertion cost is the two legs and ignores route direction", t, func() {
		points := []model.Point{
			{Lat: -25.40, Lng: -49.27},
			{Lat: -25.50, Lng: -49.27},
			{Lat: -25.45, Lng: -49.20},
			{Lat: -25.3850, Lng: -49.3410},
		}
		for _, p := range points {
			for _, n := range points {
				for _, c := range points {
					p, n := p, n
					cost := recommend.InsertionCost(&p, &n, c)
					So(cost, ShouldAlmostEqual, geo.Haversine(p, c)+geo.Haversine(c, n), 1e-9)
					So(recommend.InsertionCost(&n, &p, c), ShouldAlmostEqual, cost, 1e-9)
				}
			}
		}
		So(recommend.InsertionCost(nil, nil, points[0]), ShouldEqual, 0)
	})
}

func TestParseOrder(t *testing.T) {
	Convey("Orders parse case-insensitively with insertion as default", t, func() {
		o, err := recommend.ParseOrder("")
		So(err, ShouldBeNil)
		So(o, ShouldEqual, recommend.OrderInsertion)
		o, err = recommend.ParseOrder(" Nearest ")
		So(err, ShouldBeNil)
		So(o, ShouldEqual, recommend.OrderNearest)
		_, err = recommend.ParseOrder("fastest")
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
	})
}
