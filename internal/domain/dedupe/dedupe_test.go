package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/photodispatch/internal/domain/dedupe"
)

func TestInFlight(t *testing.T) {
	Convey("Given an in-flight set", t, func() {
		ctx := context.Background()
		d := dedupe.NewInFlight()
		So(d.Size(), ShouldEqual, 0)

		Convey("a key is claimed once until released", func() {
			So(d.Claim(ctx, "batel|centro"), ShouldBeTrue)
			So(d.Claim(ctx, "batel|centro"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 1)

			d.Release(ctx, "batel|centro")
			So(d.Size(), ShouldEqual, 0)
			So(d.Claim(ctx, "batel|centro"), ShouldBeTrue)
		})

		Convey("releasing an unknown key is a no-op", func() {
			d.Release(ctx, "nowhere")
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded set", t, func() {
		ctx := context.Background()
		d := dedupe.NewInFlight(dedupe.WithMaxSize(2))

		Convey("it refuses keys once full", func() {
			So(d.Claim(ctx, "a"), ShouldBeTrue)
			So(d.Claim(ctx, "b"), ShouldBeTrue)
			So(d.Claim(ctx, "c"), ShouldBeFalse)
			d.Release(ctx, "a")
			So(d.Claim(ctx, "c"), ShouldBeTrue)
		})
	})

	Convey("Given an unbounded set", t, func() {
		ctx := context.Background()
		d := dedupe.NewInFlight(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.Claim(ctx, fmt.Sprintf("k%d", i))
		}
		So(d.Size(), ShouldEqual, 1000)
	})

	Convey("Given concurrent claims of the same key", t, func() {
		ctx := context.Background()
		d := dedupe.NewInFlight()
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if d.Claim(ctx, "same") {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		So(wins.Load(), ShouldEqual, 1)
	})
}
