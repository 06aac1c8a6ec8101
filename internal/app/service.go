// Package service wires the dispatch components over one store and
// implements the operations the HTTP API exposes.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/photodispatch/internal/adapters/geocode"
	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/config"
	"github.com/okian/photodispatch/internal/domain/availability"
	"github.com/okian/photodispatch/internal/domain/coverage"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/recommend"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/internal/domain/viability"
	"github.com/okian/photodispatch/internal/routewarm"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

const protocolSuffixLen = 6

// Auto-assignment outcomes.
const (
	outcomeConfirmed  = "confirmed"
	outcomePending    = "pending"
	outcomeNoCoverage = "no_coverage"
	outcomeBusy       = "busy"
)

// Service implements the API dependencies for the dispatch engine.
type Service struct {
	mu sync.RWMutex

	store        repository.Store
	hours        schedule.Hours
	catalog      model.Catalog
	loc          *time.Location
	coverage     *coverage.Resolver
	availability *availability.Generator
	viability    *viability.Classifier
	distances    *distance.Resolver
	recommender  *recommend.Recommender
	warmer       *routewarm.Warmer

	postal    geocode.PostalGeocoder
	addresses geocode.AddressGeocoder

	now   func() time.Time
	newID func() string

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how record ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithPostalGeocoder enables on-demand postal code geocoding.
func WithPostalGeocoder(g geocode.PostalGeocoder) Option {
	return func(s *Service) { s.postal = g }
}

// WithAddressGeocoder enables best-effort geocoding of new jobs.
func WithAddressGeocoder(g geocode.AddressGeocoder) Option {
	return func(s *Service) { s.addresses = g }
}

// New builds a service from configuration.
func New(store repository.Store, cfg *config.Config, opts ...Option) (*Service, error) {
	hours, err := schedule.ParseHours(cfg.DayOpen, cfg.WeekdayClose, cfg.SaturdayClose,
		cfg.SlotStarts, cfg.SlotGranularityMin, cfg.BufferMin)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("service: timezone: %w", err)
	}

	s := &Service{
		store:   store,
		hours:   hours,
		catalog: model.NewCatalog(cfg.ServiceDurations, cfg.UnknownServiceMin),
		loc:     loc,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		logger:  logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	distOpts := []distance.Option{
		distance.WithModel(geo.Model{RoadFactor: cfg.RoadFactor, SpeedKmh: cfg.AvgSpeedKmh, OverheadMin: cfg.FixedOverheadMin}),
		distance.WithLogger(s.logger.Named("distance")),
	}
	if s.postal != nil {
		distOpts = append(distOpts, distance.WithGeocoder(s.postal))
	}
	s.distances = distance.NewResolver(store, store, distOpts...)
	s.coverage = coverage.NewResolver(store, coverage.WithLogger(s.logger.Named("coverage")))
	s.availability = availability.NewGenerator(store, s.coverage, availability.Settings{
		Hours:                hours,
		Catalog:              s.catalog,
		FailOpenCapabilities: cfg.FailOpenCapabilities,
	}, s.logger.Named("availability"))
	s.viability = viability.NewClassifier(store, s.coverage, s.distances, viability.Settings{
		Hours:            hours,
		DailyCapacityMin: cfg.DailyCapacityMin,
		BlockApproxMin:   cfg.BlockApproxMin,
		MaxDistanceKm:    cfg.MaxViableKm,
		MaxDurationMin:   cfg.MaxViableMin,
		UnknownViable:    cfg.UnknownDistanceViable,
	}, viability.WithClock(s.now), viability.WithLocation(loc), viability.WithLogger(s.logger.Named("viability")))
	s.recommender = recommend.NewRecommender(store, s.distances, recommend.Settings{
		Hours:              hours,
		SearchRadiusKm:     cfg.SearchRadiusKm,
		ClusterRadiusKm:    cfg.ClusterRadiusKm,
		MinGapMin:          cfg.MinGapMin,
		AfterBonus:         cfg.AfterBonus,
		ClusterWeight:      cfg.ClusterWeight,
		PendingScanLimit:   cfg.PendingScanLimit,
		SlotCandidateLimit: cfg.SlotCandidateLimit,
		DefaultDurationMin: cfg.DefaultJobDurationMin,
	}, recommend.WithLogger(s.logger.Named("recommend")))
	s.warmer = routewarm.New(s.distances, cfg.WarmQueueSize, cfg.WarmWorkers, s.logger.Named("routewarm"))
	return s, nil
}

// Start launches the route warm-up workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.warmer.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "dispatch service started")
	return nil
}

// Stop shuts down background work. The store is owned by the caller.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.warmer.Stop(ctx); err != nil {
		s.logger.Warn(ctx, "route warm-up stop", logger.Error(err))
	}
	s.started = false
	s.logger.Info(ctx, "dispatch service stopped")
}

// Distances exposes the distance resolver.
func (s *Service) Distances() *distance.Resolver { return s.distances }

// Today is the current date in the configured zone.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// ResolveCoverage lists the workers eligible for a neighborhood and services.
func (s *Service) ResolveCoverage(ctx context.Context, q coverage.Query) ([]model.Worker, error) {
	if err := model.ValidateServices(q.Services); err != nil {
		return nil, err
	}
	return s.coverage.Resolve(ctx, q)
}

// Availability lists the bookable slots of a day.
func (s *Service) Availability(ctx context.Context, req availability.Request) ([]availability.Slot, error) {
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", model.ErrInvalidInput)
	}
	if err := model.ValidateServices(req.Services); err != nil {
		return nil, err
	}
	return s.availability.Generate(ctx, req)
}

// MonthViability classifies every day of a month.
func (s *Service) MonthViability(ctx context.Context, req viability.Request) ([]viability.Day, error) {
	if err := model.ValidateServices(req.Services); err != nil {
		return nil, err
	}
	return s.viability.Classify(ctx, req)
}

// SuggestSlots proposes placements for a new job.
func (s *Service) SuggestSlots(ctx context.Context, q recommend.SlotQuery) ([]recommend.Opportunity, error) {
	if q.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", model.ErrInvalidInput)
	}
	return s.recommender.SuggestSlots(ctx, q)
}

// SuggestJobs ranks pending jobs for an open slot.
func (s *Service) SuggestJobs(ctx context.Context, q recommend.JobQuery) ([]recommend.RankedJob, recommend.Anchors, error) {
	if q.WorkerID == "" || q.Date.IsZero() {
		return nil, recommend.Anchors{}, fmt.Errorf("%w: worker_id and date are required", model.ErrInvalidInput)
	}
	return s.recommender.SuggestJobs(ctx, q)
}

// ListWorkers returns the roster.
func (s *Service) ListWorkers(ctx context.Context, activeOnly bool) ([]model.Worker, error) {
	return s.store.ListWorkers(ctx, activeOnly)
}

// UpsertWorker validates and stores a worker.
func (s *Service) UpsertWorker(ctx context.Context, w model.Worker) (model.Worker, error) {
	v := model.NewValidationError()
	if strings.TrimSpace(w.ID) == "" {
		v.Add("id", "required")
	}
	if strings.TrimSpace(w.Name) == "" {
		v.Add("name", "required")
	}
	if err := v.OrNil(); err != nil {
		return model.Worker{}, err
	}
	if err := s.store.UpsertWorker(ctx, w); err != nil {
		return model.Worker{}, fmt.Errorf("service: upsert worker: %w", err)
	}
	return s.store.GetWorker(ctx, w.ID)
}

// WarmRoutes queues neighborhood pairs for the route cache. An empty list
// queues the whole centroid table. It returns how many pairs were accepted.
func (s *Service) WarmRoutes(ctx context.Context, neighborhoods []string) int {
	return s.warmer.Submit(ctx, routewarm.ClusterPairs(neighborhoods))
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started": started,
		"warmup":  s.warmer.Stats(ctx),
	}
	routes, err := s.store.CountRoutes(ctx)
	if err != nil {
		s.logger.Warn(ctx, "count routes", logger.Error(err))
		stats["routeCache"] = nil
	} else {
		byKind := make(map[string]int, len(routes))
		for k, n := range routes {
			byKind[string(k)] = n
		}
		stats["routeCache"] = byKind
	}
	return stats
}

// newProtocol mints AG-YYYYMMDD-XXXXXX from today's date.
func (s *Service) newProtocol() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:protocolSuffixLen]
	return "AG-" + s.Today().Compact() + "-" + suffix
}

func (s *Service) recordOutcome(outcome string) {
	metrics.RecordAutoAssignment(outcome)
}
