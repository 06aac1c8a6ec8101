// Package infra opens the external resources a dispatch binary runs on:
// the store, the redis miss cache and the geocoding clients.
package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/photodispatch/internal/adapters/geocode"
	"github.com/okian/photodispatch/internal/adapters/repository"
	service "github.com/okian/photodispatch/internal/app"
	"github.com/okian/photodispatch/internal/config"
	"github.com/okian/photodispatch/pkg/logger"
)

const driverMemory = "memory"

// Resources holds everything opened for a process. Close releases them.
type Resources struct {
	Store repository.Store
	// Options wires the configured geocoders into the service.
	Options []service.Option

	closers []func() error
}

// Open connects the configured store and geocoders. On error everything
// opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *Resources, err error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &Resources{}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	if err := r.openStore(ctx, cfg, log); err != nil {
		return nil, err
	}
	if err := r.openGeocoders(ctx, cfg, log); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resources) openStore(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if cfg.StoreDriver == driverMemory {
		log.Warn(ctx, "using the in-memory store; data is lost on exit")
		r.Store = repository.NewMemoryStore(repository.WithLogger(log.Named("store")))
		return nil
	}

	db, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("infra: %w", err)
	}
	r.closers = append(r.closers, db.Close)

	if cfg.MigrateOnStart {
		if err := repository.Migrate(db, cfg.StoreDriver); err != nil {
			return fmt.Errorf("infra: %w", err)
		}
		log.Info(ctx, "schema migrated", logger.String("driver", cfg.StoreDriver))
	}
	r.Store = repository.NewSQLStore(db, repository.WithLogger(log.Named("store")))
	return nil
}

func (r *Resources) openGeocoders(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	var misses geocode.MissCache = geocode.NopMissCache{}
	if cfg.RedisAddr != "" {
		client, err := geocode.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("infra: %w", err)
		}
		r.closers = append(r.closers, client.Close)
		misses = geocode.NewRedisMissCache(client, cfg.GeocodeMissTTL)
		log.Info(ctx, "geocode miss cache enabled", logger.String("redis", cfg.RedisAddr))
	}

	opts := []geocode.Option{
		geocode.WithTimeout(cfg.GeocodeTimeout),
		geocode.WithRateLimit(cfg.GeocodeRPS, cfg.GeocodeBurst),
		geocode.WithMissCache(misses),
		geocode.WithLogger(log.Named("geocode")),
	}
	if cfg.CEPBaseURL != "" && cfg.CEPToken != "" {
		r.Options = append(r.Options, service.WithPostalGeocoder(geocode.NewCEPClient(cfg.CEPBaseURL, cfg.CEPToken, opts...)))
	} else {
		log.Info(ctx, "postal code geocoding disabled")
	}
	if cfg.AddressGeocodeURL != "" && cfg.AddressGeocodeKey != "" {
		r.Options = append(r.Options, service.WithAddressGeocoder(geocode.NewAddressClient(cfg.AddressGeocodeURL, cfg.AddressGeocodeKey, opts...)))
	} else {
		log.Info(ctx, "address geocoding disabled")
	}
	return nil
}

// Close releases resources in reverse opening order.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
