// Package viability classifies each day of a month as OPEN, FULL or CLOSED
// for a prospective job, combining worker capacity with travel limits
// against the jobs they already hold that day.
package viability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/photodispatch/internal/domain/coverage"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

// Status is a day classification.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusFull   Status = "FULL"
	StatusClosed Status = "CLOSED"
)

// Day is one classified date.
type Day struct {
	Date   model.Date `json:"date"`
	Status Status     `json:"status"`
}

// Request asks for a month's classification.
type Request struct {
	Year     int
	Month    time.Month
	Services []model.ServiceID
	// Client is the prospective job location. Neighborhood also drives
	// coverage; coordinates and postal code refine distances.
	Client model.Location
}

// Settings are the capacity and travel limits.
type Settings struct {
	Hours            schedule.Hours
	DailyCapacityMin int
	// BlockApproxMin is what each time block costs against capacity.
	BlockApproxMin int
	MaxDistanceKm  float64
	MaxDurationMin int
	// UnknownViable decides pairs the distance tiers cannot resolve.
	UnknownViable bool
}

// Distances resolves travel estimates within one classification pass.
type Distances interface {
	Resolve(ctx context.Context, from, to model.Location) (distance.Result, error)
}

// Classifier runs month classifications.
type Classifier struct {
	store     schedule.Store
	coverage  *coverage.Resolver
	distances *distance.Resolver
	settings  Settings
	now       func() time.Time
	loc       *time.Location
	logger    logger.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock overrides the time source used to decide which days are past.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClassifier builds a classifier.
func NewClassifier(
	store schedule.Store,
	cov *coverage.Resolver,
	distances *distance.Resolver,
	settings Settings,
	opts ...Option,
) *Classifier {
	c := &Classifier{
		store:     store,
		coverage:  cov,
		distances: distances,
		settings:  settings,
		now:       time.Now,
		loc:       time.UTC,
		logger:    logger.Named("viability"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns every day of the month in order.
func (c *Classifier) Classify(ctx context.Context, req Request) ([]Day, error) {
	if req.Month < time.January || req.Month > time.December {
		return nil, fmt.Errorf("%w: month %d", model.ErrInvalidInput, req.Month)
	}
	start := time.Now()
	defer func() {
		metrics.RecordCalendarLatency(float64(time.Since(start).Milliseconds()))
	}()

	var client *model.Point
	if p, ok := req.Client.Point(); ok {
		client = &p
	}
	workers, err := c.coverage.Resolve(ctx, coverage.Query{
		Neighborhood: req.Client.Neighborhood,
		Services:     req.Services,
		Client:       client,
	})
	if err != nil {
		return nil, fmt.Errorf("viability: %w", err)
	}
	workerIDs := make([]string, len(workers))
	for i, w := range workers {
		workerIDs[i] = w.ID
	}

	days := model.DaysIn(req.Year, req.Month)
	cal, err := schedule.Load(ctx, c.store, days[0], days[len(days)-1], workerIDs)
	if err != nil {
		return nil, fmt.Errorf("viability: %w", err)
	}

	today := model.DateOf(c.now().In(c.loc))
	pass := c.distances.Pass()
	out := make([]Day, 0, len(days))
	for _, d := range days {
		status, err := c.classifyDay(ctx, pass, cal, d, today, workerIDs, req.Client)
		if err != nil {
			return nil, err
		}
		metrics.RecordCalendarDay(string(status))
		out = append(out, Day{Date: d, Status: status})
	}
	c.logger.Debug(ctx, "month classified",
		logger.Int("year", req.Year),
		logger.Int("month", int(req.Month)),
		logger.Int("workers", len(workerIDs)),
		logger.Int("pairs", pass.Len()))
	return out, nil
}

func (c *Classifier) classifyDay(
	ctx context.Context,
	pass Distances,
	cal schedule.Calendar,
	d, today model.Date,
	workerIDs []string,
	client model.Location,
) (Status, error) {
	window, open := c.settings.Hours.Window(d)
	if !open || d.Before(today) {
		return StatusClosed, nil
	}
	for _, id := range workerIDs {
		ok, err := c.workerCanTake(ctx, pass, cal.Day(d, id), window, client)
		if err != nil {
			return "", err
		}
		if ok {
			return StatusOpen, nil
		}
	}
	return StatusFull, nil
}

// workerCanTake applies the capacity check and then the travel limits
// against every job the worker holds that day.
func (c *Classifier) workerCanTake(
	ctx context.Context,
	pass Distances,
	day schedule.Day,
	window model.Interval,
	client model.Location,
) (bool, error) {
	blocked := make([]model.Interval, 0, len(day.Blocks))
	for _, b := range day.Blocks {
		blocked = append(blocked, b.Interval())
	}
	if len(blocked) > 0 && schedule.Covered(window, blocked) {
		return false, nil
	}
	busy := day.BookedMinutes() + len(day.Blocks)*c.settings.BlockApproxMin
	if busy > c.settings.DailyCapacityMin {
		return false, nil
	}
	if len(day.Jobs) == 0 {
		return true, nil
	}

	for _, j := range day.Jobs {
		res, err := pass.Resolve(ctx, client, j.Location)
		if errors.Is(err, distance.ErrUnavailable) {
			if c.settings.UnknownViable {
				continue
			}
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("viability: distance: %w", err)
		}
		if res.DistanceKm > c.settings.MaxDistanceKm || res.DurationMin > c.settings.MaxDurationMin {
			return false, nil
		}
	}
	return true, nil
}
