package viability_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/coverage"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/internal/domain/viability"
	"github.com/okian/photodispatch/pkg/logger"
)

func ptr(v float64) *float64 { return &v }

func statusOn(days []viability.Day, day int) viability.Status {
	for _, d := range days {
		if d.Date.Day() == day {
			return d.Status
		}
	}
	return ""
}

func defaultSettings() viability.Settings {
	return viability.Settings{
		Hours:            schedule.DefaultHours(),
		DailyCapacityMin: 420,
		BlockApproxMin:   60,
		MaxDistanceKm:    40,
		MaxDurationMin:   60,
		UnknownViable:    true,
	}
}

func TestClassify(t *testing.T) {
	Convey("Given one photo worker in May 2024, seen from the 10th", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.UpsertWorker(ctx, model.Worker{ID: "w1", Name: "Ana", Active: true,
			Capabilities: model.Capabilities{model.ServicePhoto}, Coverage: model.FlatCoverage(model.Wildcard)}), ShouldBeNil)

		cov := coverage.NewResolver(store, coverage.WithLogger(logger.Nop()))
		dist := distance.NewResolver(store, store, distance.WithLogger(logger.Nop()))
		now := func() time.Time { return time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC) }
		settings := defaultSettings()
		newClassifier := func() *viability.Classifier {
			return viability.NewClassifier(store, cov, dist, settings,
				viability.WithClock(now), viability.WithLogger(logger.Nop()))
		}

		client := model.Location{Lat: ptr(-25.4284), Lng: ptr(-49.2733)}
		req := viability.Request{Year: 2024, Month: time.May, Services: []model.ServiceID{model.ServicePhoto}, Client: client}
		monday := model.NewDate(2024, 5, 13)

		addJob := func(id string, loc model.Location, at model.Clock, minutes int) {
			d, w := monday, "w1"
			So(store.CreateJob(ctx, model.Job{ID: id, Protocol: id, Status: model.StatusConfirmed,
				WorkerID: &w, Date: &d, Time: &at, DurationMin: minutes, Location: loc}), ShouldBeNil)
		}

		Convey("past days and Sundays are closed and the rest open", func() {
			days, err := newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(len(days), ShouldEqual, 31)
			So(statusOn(days, 9), ShouldEqual, viability.StatusClosed)
			So(statusOn(days, 10), ShouldEqual, viability.StatusOpen)
			So(statusOn(days, 12), ShouldEqual, viability.StatusClosed)
			So(statusOn(days, 13), ShouldEqual, viability.StatusOpen)
			So(statusOn(days, 31), ShouldEqual, viability.StatusOpen)
		})

		Convey("without eligible workers every open day is full", func() {
			req.Services = []model.ServiceID{model.ServiceDronePhoto}
			days, err := newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(statusOn(days, 13), ShouldEqual, viability.StatusFull)
			So(statusOn(days, 12), ShouldEqual, viability.StatusClosed)
		})

		Convey("capacity above the ceiling makes the day full", func() {
			near := model.Location{Lat: ptr(-25.43), Lng: ptr(-49.27)}
			addJob("j1", near, model.At(8, 0), 200)
			addJob("j2", near, model.At(12, 0), 200)
			So(store.CreateBlock(ctx, model.TimeBlock{ID: "b1", WorkerID: "w1", Date: monday, Start: model.At(17, 0), End: model.At(18, 0)}), ShouldBeNil)

			days, err := newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(statusOn(days, 13), ShouldEqual, viability.StatusFull)
			So(statusOn(days, 14), ShouldEqual, viability.StatusOpen)
		})

		Convey("a block spanning the working window makes the day full", func() {
			So(store.CreateBlock(ctx, model.TimeBlock{ID: "b1", WorkerID: "w1", Date: monday, Start: model.At(8, 0), End: model.At(19, 0)}), ShouldBeNil)
			days, err := newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(statusOn(days, 13), ShouldEqual, viability.StatusFull)
		})

		Convey("a nearby job keeps the day open", func() {
			addJob("j1", model.Location{Lat: ptr(-25.44), Lng: ptr(-49.28)}, model.At(9, 0), 60)
			days, err := newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(statusOn(days, 13), ShouldEqual, viability.StatusOpen)
		})

		Convey("a job beyond the travel limits makes the day unviable", func() {
			// Ponta Grossa, roughly 100 km away.
			addJob("j1", model.Location{Lat: ptr(-25.0945), Lng: ptr(-50.1633)}, model.At(9, 0), 60)
			days, err := newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(statusOn(days, 13), ShouldEqual, viability.StatusFull)
		})

		Convey("unknown distances follow the configured policy", func() {
			addJob("j1", model.Location{Address: "somewhere"}, model.At(9, 0), 60)

			days, err := newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(statusOn(days, 13), ShouldEqual, viability.StatusOpen)

			settings.UnknownViable = false
			days, err = newClassifier().Classify(ctx, req)
			So(err, ShouldBeNil)
			So(statusOn(days, 13), ShouldEqual, viability.StatusFull)
		})

		Convey("an invalid month is rejected", func() {
			req.Month = 13
			_, err := newClassifier().Classify(ctx, req)
			So(err, ShouldNotBeNil)
		})
	})
}
