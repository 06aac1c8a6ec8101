// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Every business constant of the dispatch engine lives here so no call
//   site hard-codes hours, limits or speeds.
// - New(ctx) returns the defaults; Load layers file and env on top.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Timezone is the IANA zone used to decide "today" and weekdays.
	Timezone string `koanf:"timezone"`

	// StoreDriver selects the relational store: memory, postgres or sqlite.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`
	// MigrateOnStart applies embedded schema migrations before serving.
	MigrateOnStart bool `koanf:"migrate_on_start"`

	// RedisAddr enables the negative geocode cache when set.
	RedisAddr      string        `koanf:"redis_addr"`
	RedisPassword  string        `koanf:"redis_password"`
	RedisDB        int           `koanf:"redis_db"`
	GeocodeMissTTL time.Duration `koanf:"geocode_miss_ttl"`

	// Postal-code geocoder (CEP lookup).
	CEPBaseURL string `koanf:"cep_base_url"`
	CEPToken   string `koanf:"cep_token"`
	// Free-text address geocoder.
	AddressGeocodeURL string        `koanf:"address_geocode_url"`
	AddressGeocodeKey string        `koanf:"address_geocode_key"`
	GeocodeTimeout    time.Duration `koanf:"geocode_timeout"`
	GeocodeRPS        float64       `koanf:"geocode_rps"`
	GeocodeBurst      int           `koanf:"geocode_burst"`

	// Business hours. Times are HH:MM.
	WeekdayClose       string   `koanf:"weekday_close"`
	SaturdayClose      string   `koanf:"saturday_close"`
	DayOpen            string   `koanf:"day_open"`
	SlotStarts         []string `koanf:"slot_starts"`
	SlotGranularityMin int      `koanf:"slot_granularity_min"`
	BufferMin          int      `koanf:"buffer_min"`

	// ServiceDurations maps service ids to minutes.
	ServiceDurations  map[string]int `koanf:"service_durations"`
	UnknownServiceMin int            `koanf:"unknown_service_min"`

	// FailOpenCapabilities treats workers without declared capabilities as
	// universally capable when generating availability.
	FailOpenCapabilities bool `koanf:"fail_open_capabilities"`

	// Day viability.
	DailyCapacityMin int     `koanf:"daily_capacity_min"`
	BlockApproxMin   int     `koanf:"block_approx_min"`
	MaxViableKm      float64 `koanf:"max_viable_km"`
	MaxViableMin     int     `koanf:"max_viable_min"`
	// UnknownDistanceViable decides pairs no tier can resolve.
	UnknownDistanceViable bool `koanf:"unknown_distance_viable"`

	// Travel model.
	RoadFactor       float64 `koanf:"road_factor"`
	AvgSpeedKmh      float64 `koanf:"avg_speed_kmh"`
	FixedOverheadMin float64 `koanf:"fixed_overhead_min"`

	// Recommender.
	SearchRadiusKm        float64 `koanf:"search_radius_km"`
	ClusterRadiusKm       float64 `koanf:"cluster_radius_km"`
	MinGapMin             int     `koanf:"min_gap_min"`
	AfterBonus            float64 `koanf:"after_bonus"`
	ClusterWeight         float64 `koanf:"cluster_weight"`
	PendingScanLimit      int     `koanf:"pending_scan_limit"`
	SlotCandidateLimit    int     `koanf:"slot_candidate_limit"`
	DefaultJobDurationMin int     `koanf:"default_job_duration_min"`

	// Route warm-up.
	WarmQueueSize int `koanf:"warm_queue_size"`
	WarmWorkers   int `koanf:"warm_workers"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		Timezone:       "America/Sao_Paulo",
		StoreDriver:    "memory",
		GeocodeMissTTL: 24 * time.Hour,

		CEPBaseURL:        "https://www.cepaberto.com/api/v3",
		AddressGeocodeURL: "https://maps.googleapis.com/maps/api/geocode/json",
		GeocodeTimeout:    7 * time.Second,
		GeocodeRPS:        1,
		GeocodeBurst:      1,

		DayOpen:            "08:00",
		WeekdayClose:       "19:00",
		SaturdayClose:      "13:00",
		SlotStarts:         []string{"08:00", "09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00"},
		SlotGranularityMin: 30,
		BufferMin:          10,
		ServiceDurations: map[string]int{
			"photo":             40,
			"video_landscape":   20,
			"video_portrait":    20,
			"drone_photo":       25,
			"drone_photo_video": 40,
			"tour_360":          30,
		},
		UnknownServiceMin:    30,
		FailOpenCapabilities: true,

		DailyCapacityMin:      420,
		BlockApproxMin:        60,
		MaxViableKm:           40,
		MaxViableMin:          60,
		UnknownDistanceViable: true,

		RoadFactor:       1.3,
		AvgSpeedKmh:      25,
		FixedOverheadMin: 5,

		SearchRadiusKm:        15,
		ClusterRadiusKm:       5,
		MinGapMin:             15,
		AfterBonus:            5,
		ClusterWeight:         0.5,
		PendingScanLimit:      100,
		SlotCandidateLimit:    50,
		DefaultJobDurationMin: 60,

		WarmQueueSize: 10_000,
		WarmWorkers:   runtime.NumCPU(),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != "memory" && c.StoreDriver != "postgres" && c.StoreDriver != "sqlite":
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver != "memory" && c.StoreDSN == "":
		return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
	case c.SlotGranularityMin <= 0:
		return fmt.Errorf("%w: slot_granularity_min must be positive", ErrInvalidConfig)
	case c.BufferMin < 0:
		return fmt.Errorf("%w: buffer_min must not be negative", ErrInvalidConfig)
	case len(c.SlotStarts) == 0:
		return fmt.Errorf("%w: slot_starts must not be empty", ErrInvalidConfig)
	case c.RoadFactor < 1:
		return fmt.Errorf("%w: road_factor must be at least 1", ErrInvalidConfig)
	case c.AvgSpeedKmh <= 0:
		return fmt.Errorf("%w: avg_speed_kmh must be positive", ErrInvalidConfig)
	case c.DailyCapacityMin <= 0:
		return fmt.Errorf("%w: daily_capacity_min must be positive", ErrInvalidConfig)
	case c.MaxViableKm <= 0 || c.MaxViableMin <= 0:
		return fmt.Errorf("%w: viability limits must be positive", ErrInvalidConfig)
	case c.SearchRadiusKm <= 0 || c.ClusterRadiusKm <= 0:
		return fmt.Errorf("%w: recommender radii must be positive", ErrInvalidConfig)
	case c.GeocodeTimeout <= 0:
		return fmt.Errorf("%w: geocode_timeout must be positive", ErrInvalidConfig)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone: %v", ErrInvalidConfig, err)
	}
	return nil
}
