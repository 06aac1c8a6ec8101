// Package availability produces the bookable time slots of one day for a
// set of requested services.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/coverage"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

// Slot is a bookable window and how many workers can take it.
type Slot struct {
	Start     model.Clock `json:"start"`
	End       model.Clock `json:"end"`
	Available int         `json:"available_count"`
}

// Request asks for the slots of Date.
type Request struct {
	Date     model.Date
	Services []model.ServiceID
	// Neighborhood, when set, narrows the roster through coverage.
	Neighborhood string
	// Admin callers see raw capacity; others have pending demand deducted.
	Admin bool
}

// Settings are the business rules the generator applies.
type Settings struct {
	Hours   schedule.Hours
	Catalog model.Catalog
	// FailOpenCapabilities treats workers with no declared capabilities as
	// able to do anything.
	FailOpenCapabilities bool
}

// Store is what the generator reads.
type Store interface {
	repository.WorkerStore
	schedule.Store
}

// Generator computes availability.
type Generator struct {
	store    Store
	coverage *coverage.Resolver
	settings Settings
	logger   logger.Logger
}

// NewGenerator builds a generator. cov may be nil when neighborhood
// narrowing is not needed.
func NewGenerator(store Store, cov *coverage.Resolver, settings Settings, log logger.Logger) *Generator {
	if log == nil {
		log = logger.Named("availability")
	}
	return &Generator{store: store, coverage: cov, settings: settings, logger: log}
}

// Duration returns the slot count and normalized minutes needed for services.
func (g *Generator) Duration(services []model.ServiceID) (slots, minutes int) {
	return g.settings.Hours.Span(g.settings.Catalog.Total(services))
}

// Generate lists the slots of req.Date in start order. A closed day or an
// empty roster yields an empty list.
func (g *Generator) Generate(ctx context.Context, req Request) ([]Slot, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAvailabilityLatency(float64(time.Since(start).Milliseconds()))
	}()

	out := make([]Slot, 0)
	window, open := g.settings.Hours.Window(req.Date)
	if !open {
		return out, nil
	}

	candidates, err := g.candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return out, nil
	}

	workerIDs := make([]string, len(candidates))
	for i, w := range candidates {
		workerIDs[i] = w.ID
	}
	cal, err := schedule.Load(ctx, g.store, req.Date, req.Date, workerIDs)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}

	var pending []model.Interval
	if !req.Admin {
		if pending, err = g.pendingDemand(ctx, req.Date); err != nil {
			return nil, err
		}
	}

	_, total := g.Duration(req.Services)
	for _, s := range g.settings.Hours.SlotStarts {
		slot := model.Interval{Start: s, End: s.Add(total)}
		if slot.Start < window.Start || slot.End > window.End {
			continue
		}
		free := 0
		for _, id := range workerIDs {
			if cal.Day(req.Date, id).Free(slot) {
				free++
			}
		}
		for _, p := range pending {
			if slot.Overlaps(p) {
				free--
			}
		}
		if free <= 0 {
			continue
		}
		out = append(out, Slot{Start: slot.Start, End: slot.End, Available: free})
	}

	metrics.RecordSlotsEmitted(len(out))
	g.logger.Debug(ctx, "availability generated",
		logger.String("date", req.Date.String()),
		logger.Int("workers", len(workerIDs)),
		logger.Int("slots", len(out)))
	return out, nil
}

func (g *Generator) candidates(ctx context.Context, req Request) ([]model.Worker, error) {
	var roster []model.Worker
	var err error
	if req.Neighborhood != "" && g.coverage != nil {
		roster, err = g.coverage.Resolve(ctx, coverage.Query{Neighborhood: req.Neighborhood, Services: req.Services})
	} else {
		roster, err = g.store.ListWorkers(ctx, true)
	}
	if err != nil {
		return nil, fmt.Errorf("availability: roster: %w", err)
	}

	out := roster[:0]
	for _, w := range roster {
		if w.Capabilities.HasFamiliesFor(req.Services, g.settings.FailOpenCapabilities) {
			out = append(out, w)
		}
	}
	return out, nil
}

// pendingDemand returns the requested windows of unassigned PENDING jobs
// on date. Each one consumes a unit of visible capacity.
func (g *Generator) pendingDemand(ctx context.Context, date model.Date) ([]model.Interval, error) {
	f := repository.OnDate(date)
	f.UnassignedOnly = true
	f.Statuses = []model.Status{model.StatusPending}
	jobs, err := g.store.ListJobs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("availability: pending: %w", err)
	}
	out := make([]model.Interval, 0, len(jobs))
	for _, j := range jobs {
		if iv, ok := j.Interval(); ok {
			out = append(out, iv)
		}
	}
	return out, nil
}
