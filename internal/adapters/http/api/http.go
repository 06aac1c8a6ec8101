// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	QueryDependencies
	JobDependencies
	RosterDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	queryHandler  *QueryHandler
	jobsHandler   *JobsHandler
	rosterHandler *RosterHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	log := logger.Named("api")
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
		queryHandler:  NewQueryHandler(deps),
		jobsHandler:   NewJobsHandler(deps, log),
		rosterHandler: NewRosterHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /coverage", MetricsMiddleware(s.queryHandler.HandleCoverage, "coverage"))
	mux.HandleFunc("GET /availability", MetricsMiddleware(s.queryHandler.HandleAvailability, "availability"))
	mux.HandleFunc("GET /calendar", MetricsMiddleware(s.queryHandler.HandleCalendar, "calendar"))
	mux.HandleFunc("GET /suggestions/slots", MetricsMiddleware(s.queryHandler.HandleSuggestSlots, "suggestions_slots"))
	mux.HandleFunc("GET /suggestions/jobs", MetricsMiddleware(s.queryHandler.HandleSuggestJobs, "suggestions_jobs"))

	mux.HandleFunc("POST /jobs", MetricsMiddleware(s.jobsHandler.HandleCreateJob, "jobs_create"))
	mux.HandleFunc("GET /jobs", MetricsMiddleware(s.jobsHandler.HandleListJobs, "jobs_list"))
	mux.HandleFunc("GET /jobs/{id}", MetricsMiddleware(s.jobsHandler.HandleGetJob, "jobs_get"))
	mux.HandleFunc("POST /jobs/{id}/assign", MetricsMiddleware(s.jobsHandler.HandleAssignJob, "jobs_assign"))
	mux.HandleFunc("POST /jobs/{id}/cancel", MetricsMiddleware(s.jobsHandler.HandleCancelJob, "jobs_cancel"))
	mux.HandleFunc("POST /workers/{id}/blocks", MetricsMiddleware(s.jobsHandler.HandleCreateBlock, "blocks_create"))
	mux.HandleFunc("DELETE /blocks/{id}", MetricsMiddleware(s.jobsHandler.HandleDeleteBlock, "blocks_delete"))

	mux.HandleFunc("GET /workers", MetricsMiddleware(s.rosterHandler.HandleListWorkers, "workers_list"))
	mux.HandleFunc("PUT /workers/{id}", MetricsMiddleware(s.rosterHandler.HandleUpsertWorker, "workers_upsert"))
	mux.HandleFunc("POST /routes/warm", MetricsMiddleware(s.rosterHandler.HandleWarmRoutes, "routes_warm"))
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	resp := errorResponse{Code: code, Message: msg}
	if err != nil {
		resp.Message = err.Error()
		var v *model.ValidationError
		if errors.As(err, &v) {
			resp.Fields = v.FieldErrors
		}
	}
	writeJSON(w, status, resp)
}

// writeFailure translates a service error into a response.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, WrapKind(op, kindOf(err), err))
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			return err
		}
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
