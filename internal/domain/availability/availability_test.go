package availability_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/availability"
	"github.com/okian/photodispatch/internal/domain/coverage"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/pkg/logger"
)

var catalog = model.NewCatalog(map[string]int{
	"photo": 40, "video_landscape": 20, "video_portrait": 20,
	"drone_photo": 25, "drone_photo_video": 40, "tour_360": 30,
}, 30)

var (
	monday   = model.NewDate(2024, 5, 13)
	saturday = model.NewDate(2024, 5, 11)
	sunday   = model.NewDate(2024, 5, 12)
)

func starts(slots []availability.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.String())
	}
	return out
}

func confirmed(id, worker string, d model.Date, at model.Clock, minutes int) model.Job {
	w := worker
	return model.Job{ID: id, Protocol: id, Status: model.StatusConfirmed, WorkerID: &w, Date: &d, Time: &at, DurationMin: minutes}
}

func TestGenerate(t *testing.T) {
	Convey("Given two photo workers", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.UpsertWorker(ctx, model.Worker{ID: "w1", Name: "Ana", Active: true,
			Capabilities: model.Capabilities{model.ServicePhoto}, Coverage: model.FlatCoverage("Batel")}), ShouldBeNil)
		So(store.UpsertWorker(ctx, model.Worker{ID: "w2", Name: "Bia", Active: true,
			Capabilities: model.Capabilities{model.ServicePhoto, model.ServiceDronePhoto}, Coverage: model.FlatCoverage(model.Wildcard)}), ShouldBeNil)

		settings := availability.Settings{Hours: schedule.DefaultHours(), Catalog: catalog, FailOpenCapabilities: true}
		cov := coverage.NewResolver(store, coverage.WithLogger(logger.Nop()))
		gen := availability.NewGenerator(store, cov, settings, logger.Nop())
		photo := []model.ServiceID{model.ServicePhoto}

		Convey("Sunday has no slots whatever the services", func() {
			slots, err := gen.Generate(ctx, availability.Request{Date: sunday, Services: photo, Admin: true})
			So(err, ShouldBeNil)
			So(slots, ShouldBeEmpty)
		})

		Convey("spans are whole slot multiples covering duration plus buffer", func() {
			for _, svc := range [][]model.ServiceID{
				nil, photo,
				{model.ServicePhoto, model.ServiceTour360},
				{model.ServiceDronePhotoVideo, model.ServiceVideoLandscape},
			} {
				slots, err := gen.Generate(ctx, availability.Request{Date: monday, Services: svc, Admin: true})
				So(err, ShouldBeNil)
				for _, s := range slots {
					span := int(s.End - s.Start)
					So(span%30, ShouldEqual, 0)
					So(span, ShouldBeGreaterThanOrEqualTo, catalog.Total(svc)+10)
				}
			}
		})

		Convey("an empty day offers every start with both workers", func() {
			slots, err := gen.Generate(ctx, availability.Request{Date: monday, Services: photo, Admin: true})
			So(err, ShouldBeNil)
			So(len(slots), ShouldEqual, 10)
			So(slots[0].End, ShouldEqual, model.At(9, 0))
			for _, s := range slots {
				So(s.Available, ShouldEqual, 2)
			}
		})

		Convey("Saturday stops at the earlier close", func() {
			slots, err := gen.Generate(ctx, availability.Request{Date: saturday, Services: photo, Admin: true})
			So(err, ShouldBeNil)
			So(starts(slots), ShouldResemble, []string{"08:00", "09:00", "10:00", "11:00"})
		})

		Convey("long jobs drop starts that would end after closing", func() {
			slots, err := gen.Generate(ctx, availability.Request{Date: monday, Admin: true, Services: []model.ServiceID{
				model.ServicePhoto, model.ServiceDronePhotoVideo, model.ServiceTour360,
			}})
			So(err, ShouldBeNil)
			last := slots[len(slots)-1]
			So(last.End, ShouldBeLessThanOrEqualTo, model.At(19, 0))
			So(starts(slots), ShouldNotContain, "18:00")
		})

		Convey("committed jobs and blocks reduce the count without touching neighbors", func() {
			So(store.CreateJob(ctx, confirmed("j1", "w1", monday, model.At(9, 0), 60)), ShouldBeNil)
			So(store.CreateBlock(ctx, model.TimeBlock{ID: "b1", WorkerID: "w2", Date: monday, Start: model.At(13, 0), End: model.At(19, 0)}), ShouldBeNil)

			slots, err := gen.Generate(ctx, availability.Request{Date: monday, Services: photo, Admin: true})
			So(err, ShouldBeNil)
			byStart := map[string]int{}
			for _, s := range slots {
				byStart[s.Start.String()] = s.Available
			}
			So(byStart["08:00"], ShouldEqual, 2)
			So(byStart["09:00"], ShouldEqual, 1)
			So(byStart["10:00"], ShouldEqual, 2)
			So(byStart["13:00"], ShouldEqual, 1)
		})

		Convey("a day fully blocked for everyone has no slots", func() {
			for _, w := range []string{"w1", "w2"} {
				So(store.CreateBlock(ctx, model.TimeBlock{ID: "full-" + w, WorkerID: w, Date: monday, Start: model.At(8, 0), End: model.At(19, 0)}), ShouldBeNil)
			}
			slots, err := gen.Generate(ctx, availability.Request{Date: monday, Services: photo, Admin: true})
			So(err, ShouldBeNil)
			So(slots, ShouldBeEmpty)
		})

		Convey("drone requests need the drone family", func() {
			slots, err := gen.Generate(ctx, availability.Request{Date: monday, Services: []model.ServiceID{model.ServiceDronePhoto}, Admin: true})
			So(err, ShouldBeNil)
			So(slots[0].Available, ShouldEqual, 1)
		})

		Convey("workers without capabilities follow the fail-open setting", func() {
			So(store.UpsertWorker(ctx, model.Worker{ID: "legacy", Name: "Cid", Active: true, Coverage: model.FlatCoverage(model.Wildcard)}), ShouldBeNil)
			drone := []model.ServiceID{model.ServiceDronePhoto}

			slots, err := gen.Generate(ctx, availability.Request{Date: monday, Services: drone, Admin: true})
			So(err, ShouldBeNil)
			So(slots[0].Available, ShouldEqual, 2)

			settings.FailOpenCapabilities = false
			strict := availability.NewGenerator(store, cov, settings, logger.Nop())
			slots, err = strict.Generate(ctx, availability.Request{Date: monday, Services: drone, Admin: true})
			So(err, ShouldBeNil)
			So(slots[0].Available, ShouldEqual, 1)
		})

		Convey("a neighborhood narrows the roster through coverage", func() {
			slots, err := gen.Generate(ctx, availability.Request{Date: monday, Services: photo, Neighborhood: "Centro", Admin: true})
			So(err, ShouldBeNil)
			So(slots[0].Available, ShouldEqual, 1)
		})

		Convey("clients see pending demand deducted while admins do not", func() {
			d, at := monday, model.At(10, 0)
			So(store.CreateJob(ctx, model.Job{ID: "p1", Protocol: "p1", Status: model.StatusPending, Date: &d, Time: &at, DurationMin: 60}), ShouldBeNil)
			So(store.CreateJob(ctx, model.Job{ID: "p2", Protocol: "p2", Status: model.StatusPending, Date: &d, Time: &at, DurationMin: 60}), ShouldBeNil)

			client, err := gen.Generate(ctx, availability.Request{Date: monday, Services: photo})
			So(err, ShouldBeNil)
			So(starts(client), ShouldNotContain, "10:00")

			admin, err := gen.Generate(ctx, availability.Request{Date: monday, Services: photo, Admin: true})
			So(err, ShouldBeNil)
			So(starts(admin), ShouldContain, "10:00")
		})
	})
}
