package infra_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/config"
	"github.com/okian/photodispatch/internal/infra"
	"github.com/okian/photodispatch/pkg/logger"
)

func TestOpen(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.CEPToken = ""
		cfg.AddressGeocodeKey = ""

		Convey("the memory store is opened and geocoding stays off without credentials", func() {
			res, err := infra.Open(ctx, cfg, logger.Nop())
			So(err, ShouldBeNil)
			_, ok := res.Store.(*repository.MemoryStore)
			So(ok, ShouldBeTrue)
			So(res.Options, ShouldBeEmpty)
			So(res.Close(), ShouldBeNil)
		})

		Convey("credentials enable both geocoders behind the redis miss cache", func() {
			mr := miniredis.RunT(t)
			cfg.RedisAddr = mr.Addr()
			cfg.CEPToken = "token"
			cfg.AddressGeocodeKey = "key"

			res, err := infra.Open(ctx, cfg, logger.Nop())
			So(err, ShouldBeNil)
			So(len(res.Options), ShouldEqual, 2)
			So(res.Close(), ShouldBeNil)
			So(res.Close(), ShouldBeNil)
		})

		Convey("an unreachable redis fails the open", func() {
			mr := miniredis.RunT(t)
			cfg.RedisAddr = mr.Addr()
			mr.Close()

			res, err := infra.Open(ctx, cfg, logger.Nop())
			So(err, ShouldNotBeNil)
			So(res, ShouldBeNil)
		})

		Convey("an unsupported driver is rejected", func() {
			cfg.StoreDriver = "mysql"
			cfg.StoreDSN = "root@/dispatch"
			_, err := infra.Open(ctx, cfg, logger.Nop())
			So(err, ShouldNotBeNil)
		})
	})
}
