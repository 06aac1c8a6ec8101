package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/photodispatch/internal/domain/availability"
	"github.com/okian/photodispatch/internal/domain/coverage"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/recommend"
	"github.com/okian/photodispatch/internal/domain/viability"
)

// QueryDependencies are the read-only dispatch operations.
type QueryDependencies interface {
	ResolveCoverage(ctx context.Context, q coverage.Query) ([]model.Worker, error)
	Availability(ctx context.Context, req availability.Request) ([]availability.Slot, error)
	MonthViability(ctx context.Context, req viability.Request) ([]viability.Day, error)
	SuggestSlots(ctx context.Context, q recommend.SlotQuery) ([]recommend.Opportunity, error)
	SuggestJobs(ctx context.Context, q recommend.JobQuery) ([]recommend.RankedJob, recommend.Anchors, error)
}

// QueryHandler serves coverage, availability, calendar and suggestions.
type QueryHandler struct {
	deps QueryDependencies
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(deps QueryDependencies) *QueryHandler {
	return &QueryHandler{deps: deps}
}

type coverageResponse struct {
	Workers []model.Worker `json:"workers"`
}

// HandleCoverage handles GET /coverage requests.
func (h *QueryHandler) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	const op = "api.coverage"
	p := newParams(r.URL.Query())
	q := coverage.Query{Neighborhood: p.str("neighborhood"), Services: p.services()}
	if pt, ok := p.point(false); ok {
		q.Client = &pt
	}
	if err := p.err(); err != nil {
		writeFailure(w, op, err)
		return
	}
	workers, err := h.deps.ResolveCoverage(r.Context(), q)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if workers == nil {
		workers = []model.Worker{}
	}
	writeJSON(w, http.StatusOK, coverageResponse{Workers: workers})
}

type availabilityResponse struct {
	Date  model.Date          `json:"date"`
	Slots []availability.Slot `json:"slots"`
}

// HandleAvailability handles GET /availability requests.
func (h *QueryHandler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	const op = "api.availability"
	p := newParams(r.URL.Query())
	req := availability.Request{
		Date:         p.date("date", true),
		Services:     p.services(),
		Neighborhood: p.str("neighborhood"),
		Admin:        p.boolean("admin"),
	}
	if err := p.err(); err != nil {
		writeFailure(w, op, err)
		return
	}
	slots, err := h.deps.Availability(r.Context(), req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{Date: req.Date, Slots: slots})
}

type calendarResponse struct {
	Year  int             `json:"year"`
	Month int             `json:"month"`
	Days  []viability.Day `json:"days"`
}

// HandleCalendar handles GET /calendar requests.
func (h *QueryHandler) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	const op = "api.calendar"
	p := newParams(r.URL.Query())
	req := viability.Request{
		Year:     p.integer("year", true),
		Month:    time.Month(p.integer("month", true)),
		Services: p.services(),
		Client: model.Location{
			Neighborhood: p.str("neighborhood"),
			PostalCode:   p.str("postal_code"),
		},
	}
	if pt, ok := p.point(false); ok {
		req.Client.SetPoint(pt)
	}
	if err := p.err(); err != nil {
		writeFailure(w, op, err)
		return
	}
	days, err := h.deps.MonthViability(r.Context(), req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarResponse{Year: req.Year, Month: int(req.Month), Days: days})
}

type slotSuggestionsResponse struct {
	Date          model.Date              `json:"date"`
	Opportunities []recommend.Opportunity `json:"opportunities"`
}

// HandleSuggestSlots handles GET /suggestions/slots requests.
func (h *QueryHandler) HandleSuggestSlots(w http.ResponseWriter, r *http.Request) {
	const op = "api.suggest_slots"
	p := newParams(r.URL.Query())
	pt, _ := p.point(true)
	q := recommend.SlotQuery{
		Point:       pt,
		Date:        p.date("date", true),
		DurationMin: p.integer("duration", false),
	}
	if q.DurationMin < 0 {
		p.errs.Add("duration", "must not be negative")
	}
	if err := p.err(); err != nil {
		writeFailure(w, op, err)
		return
	}
	opps, err := h.deps.SuggestSlots(r.Context(), q)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if opps == nil {
		opps = []recommend.Opportunity{}
	}
	writeJSON(w, http.StatusOK, slotSuggestionsResponse{Date: q.Date, Opportunities: opps})
}

type jobSuggestionsResponse struct {
	Anchors recommend.Anchors     `json:"anchors"`
	Jobs    []recommend.RankedJob `json:"jobs"`
}

// HandleSuggestJobs handles GET /suggestions/jobs requests.
func (h *QueryHandler) HandleSuggestJobs(w http.ResponseWriter, r *http.Request) {
	const op = "api.suggest_jobs"
	p := newParams(r.URL.Query())
	q := recommend.JobQuery{
		WorkerID: p.str("worker_id"),
		Date:     p.date("date", true),
		Time:     p.clock("time", true),
	}
	if q.WorkerID == "" {
		p.errs.Add("worker_id", "required")
	}
	order, err := recommend.ParseOrder(p.str("order"))
	if err != nil {
		p.errs.Add("order", "must be insertion or nearest")
	}
	q.Order = order
	if err := p.err(); err != nil {
		writeFailure(w, op, err)
		return
	}
	jobs, anchors, err := h.deps.SuggestJobs(r.Context(), q)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if jobs == nil {
		jobs = []recommend.RankedJob{}
	}
	writeJSON(w, http.StatusOK, jobSuggestionsResponse{Anchors: anchors, Jobs: jobs})
}
