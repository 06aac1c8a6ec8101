package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/model"
)

func pendingJob(id, ref string) model.Job {
	return model.Job{
		ID:          id,
		Protocol:    "AG-20240510-" + id,
		ExternalRef: ref,
		Services:    []model.ServiceID{model.ServicePhoto},
		DurationMin: 50,
		Status:      model.StatusPending,
	}
}

func TestMemoryStoreJobs(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		fixed := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
		store := repository.NewMemoryStore(repository.WithClock(func() time.Time { return fixed }))

		Convey("CreateJob rejects duplicate ids", func() {
			So(store.CreateJob(ctx, pendingJob("j1", "")), ShouldBeNil)
			err := store.CreateJob(ctx, pendingJob("j1", ""))
			So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
		})

		Convey("GetJob returns copies", func() {
			So(store.CreateJob(ctx, pendingJob("j1", "")), ShouldBeNil)
			got, err := store.GetJob(ctx, "j1")
			So(err, ShouldBeNil)
			got.Services[0] = model.ServiceTour360

			again, _ := store.GetJob(ctx, "j1")
			So(again.Services[0], ShouldEqual, model.ServicePhoto)
		})

		Convey("AssignIfPending confirms once and then conflicts", func() {
			So(store.CreateJob(ctx, pendingJob("j1", "")), ShouldBeNil)
			a := repository.Assignment{WorkerID: "w1", Date: model.NewDate(2024, 5, 13), Time: model.At(9, 0), At: fixed}

			job, err := store.AssignIfPending(ctx, "j1", a)
			So(err, ShouldBeNil)
			So(job.Status, ShouldEqual, model.StatusConfirmed)
			So(job.AssignedTo("w1"), ShouldBeTrue)
			So(job.CheckInvariants(), ShouldBeNil)

			a.WorkerID = "w2"
			_, err = store.AssignIfPending(ctx, "j1", a)
			So(errors.Is(err, model.ErrConflict), ShouldBeTrue)

			_, err = store.AssignIfPending(ctx, "missing", a)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("Concurrent assignment has exactly one winner", func() {
			So(store.CreateJob(ctx, pendingJob("j1", "")), ShouldBeNil)

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					a := repository.Assignment{WorkerID: "w", Date: model.NewDate(2024, 5, 13), Time: model.At(9, 0), At: fixed}
					if _, err := store.AssignIfPending(ctx, "j1", a); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			So(wins, ShouldEqual, 1)
		})

		Convey("CancelActiveByRef cancels only other active jobs with the reference", func() {
			So(store.CreateJob(ctx, pendingJob("j1", "ref")), ShouldBeNil)
			So(store.CreateJob(ctx, pendingJob("j2", "ref")), ShouldBeNil)
			done := pendingJob("j3", "ref")
			done.Status = model.StatusCompleted
			So(store.CreateJob(ctx, done), ShouldBeNil)
			So(store.CreateJob(ctx, pendingJob("j4", "other")), ShouldBeNil)
			So(store.CreateJob(ctx, pendingJob("j5", "ref")), ShouldBeNil)

			n, err := store.CancelActiveByRef(ctx, "ref", "j5", fixed)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			j5, _ := store.GetJob(ctx, "j5")
			So(j5.Status, ShouldEqual, model.StatusPending)

			j3, _ := store.GetJob(ctx, "j3")
			So(j3.Status, ShouldEqual, model.StatusCompleted)
			j4, _ := store.GetJob(ctx, "j4")
			So(j4.Status, ShouldEqual, model.StatusPending)

			n, err = store.CancelActiveByRef(ctx, "", "", fixed)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("ListJobs filters and orders by date then time", func() {
			day := model.NewDate(2024, 5, 13)
			for _, tc := range []struct {
				id     string
				at     model.Clock
				worker string
			}{
				{"late", model.At(15, 0), "w1"},
				{"early", model.At(8, 0), "w1"},
				{"other", model.At(9, 0), "w2"},
			} {
				j := pendingJob(tc.id, "")
				d, at, w := day, tc.at, tc.worker
				j.Date, j.Time, j.WorkerID = &d, &at, &w
				j.Status = model.StatusConfirmed
				So(store.CreateJob(ctx, j), ShouldBeNil)
			}
			So(store.CreateJob(ctx, pendingJob("floating", "")), ShouldBeNil)

			f := repository.OnDate(day)
			f.WorkerIDs = []string{"w1"}
			jobs, err := store.ListJobs(ctx, f)
			So(err, ShouldBeNil)
			So(len(jobs), ShouldEqual, 2)
			So(jobs[0].ID, ShouldEqual, "early")
			So(jobs[1].ID, ShouldEqual, "late")

			unassigned, err := store.ListJobs(ctx, repository.JobFilter{UnassignedOnly: true})
			So(err, ShouldBeNil)
			So(len(unassigned), ShouldEqual, 1)
			So(unassigned[0].ID, ShouldEqual, "floating")

			limited, err := store.ListJobs(ctx, repository.JobFilter{Limit: 2})
			So(err, ShouldBeNil)
			So(len(limited), ShouldEqual, 2)
		})
	})
}

func TestMemoryStoreRoutes(t *testing.T) {
	Convey("Given an in-memory route cache", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()

		Convey("the first writer wins and later writers read its value", func() {
			first := model.RouteEntry{Kind: model.RouteCluster, Origin: "batel", Destination: "centro", DistanceKm: 2, DurationMin: 10}
			stored, inserted, err := store.InsertRouteIfAbsent(ctx, first)
			So(err, ShouldBeNil)
			So(inserted, ShouldBeTrue)
			So(stored.CreatedAt.IsZero(), ShouldBeFalse)

			second := first
			second.DistanceKm = 99
			stored, inserted, err = store.InsertRouteIfAbsent(ctx, second)
			So(err, ShouldBeNil)
			So(inserted, ShouldBeFalse)
			So(stored.DistanceKm, ShouldEqual, 2)
		})

		Convey("concurrent inserts store exactly one row", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				winners int
				seen    = map[float64]bool{}
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					e := model.RouteEntry{Kind: model.RouteCoordinate, Origin: "a", Destination: "b", DistanceKm: float64(i), DurationMin: i}
					stored, inserted, err := store.InsertRouteIfAbsent(ctx, e)
					if err != nil {
						return
					}
					mu.Lock()
					defer mu.Unlock()
					if inserted {
						winners++
					}
					seen[stored.DistanceKm] = true
				}(i)
			}
			wg.Wait()
			So(winners, ShouldEqual, 1)
			So(len(seen), ShouldEqual, 1)

			counts, err := store.CountRoutes(ctx)
			So(err, ShouldBeNil)
			So(counts[model.RouteCoordinate], ShouldEqual, 1)
		})

		Convey("pairs are directional", func() {
			_, _, err := store.InsertRouteIfAbsent(ctx, model.RouteEntry{Kind: model.RouteCoordinate, Origin: "a", Destination: "b", DistanceKm: 1})
			So(err, ShouldBeNil)
			_, err = store.GetRoute(ctx, model.RouteCoordinate, "b", "a")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStoreBlocksAndWorkers(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		day := model.NewDate(2024, 5, 13)

		Convey("blocks are listed by worker and date and can be deleted", func() {
			So(store.CreateBlock(ctx, model.TimeBlock{ID: "b1", WorkerID: "w1", Date: day, Start: model.At(8, 0), End: model.At(10, 0)}), ShouldBeNil)
			So(store.CreateBlock(ctx, model.TimeBlock{ID: "b2", WorkerID: "w2", Date: day, Start: model.At(8, 0), End: model.At(10, 0)}), ShouldBeNil)
			next := day.AddDays(1)
			So(store.CreateBlock(ctx, model.TimeBlock{ID: "b3", WorkerID: "w1", Date: next, Start: model.At(8, 0), End: model.At(9, 0)}), ShouldBeNil)

			blocks, err := store.ListBlocks(ctx, repository.BlockFilter{WorkerIDs: []string{"w1"}, From: &day, To: &day})
			So(err, ShouldBeNil)
			So(len(blocks), ShouldEqual, 1)
			So(blocks[0].ID, ShouldEqual, "b1")

			So(store.DeleteBlock(ctx, "b1"), ShouldBeNil)
			So(errors.Is(store.DeleteBlock(ctx, "b1"), model.ErrNotFound), ShouldBeTrue)
		})

		Convey("ListWorkers can skip inactive workers", func() {
			So(store.UpsertWorker(ctx, model.Worker{ID: "w1", Name: "Ana", Active: true}), ShouldBeNil)
			So(store.UpsertWorker(ctx, model.Worker{ID: "w2", Name: "Bia", Active: false}), ShouldBeNil)

			active, err := store.ListWorkers(ctx, true)
			So(err, ShouldBeNil)
			So(len(active), ShouldEqual, 1)

			all, err := store.ListWorkers(ctx, false)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 2)
			So(all[0].Name, ShouldEqual, "Ana")

			So(errors.Is(store.UpsertWorker(ctx, model.Worker{}), model.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("postal codes keep the first geocode", func() {
			first, err := store.InsertPostalCodeIfAbsent(ctx, model.PostalCodeLocation{PostalCode: "80420000", Lat: -25.44, Lng: -49.29})
			So(err, ShouldBeNil)
			again, err := store.InsertPostalCodeIfAbsent(ctx, model.PostalCodeLocation{PostalCode: "80420000", Lat: 0, Lng: 0})
			So(err, ShouldBeNil)
			So(again.Lat, ShouldEqual, first.Lat)
		})
	})
}
