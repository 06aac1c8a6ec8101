package api

import (
	"context"
	"net/http"

	"github.com/okian/photodispatch/internal/domain/model"
)

// RosterDependencies are the worker roster and route cache operations.
type RosterDependencies interface {
	ListWorkers(ctx context.Context, activeOnly bool) ([]model.Worker, error)
	UpsertWorker(ctx context.Context, w model.Worker) (model.Worker, error)
	WarmRoutes(ctx context.Context, neighborhoods []string) int
}

// RosterHandler handles worker and route warm-up requests.
type RosterHandler struct {
	deps RosterDependencies
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(deps RosterDependencies) *RosterHandler {
	return &RosterHandler{deps: deps}
}

type workersResponse struct {
	Workers []model.Worker `json:"workers"`
}

// HandleListWorkers handles GET /workers requests.
func (h *RosterHandler) HandleListWorkers(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_workers"
	p := newParams(r.URL.Query())
	activeOnly := p.boolean("active")
	if err := p.err(); err != nil {
		writeFailure(w, op, err)
		return
	}
	workers, err := h.deps.ListWorkers(r.Context(), activeOnly)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if workers == nil {
		workers = []model.Worker{}
	}
	writeJSON(w, http.StatusOK, workersResponse{Workers: workers})
}

// HandleUpsertWorker handles PUT /workers/{id} requests. The path id wins
// over any id in the body.
func (h *RosterHandler) HandleUpsertWorker(w http.ResponseWriter, r *http.Request) {
	const op = "api.upsert_worker"
	var worker model.Worker
	if err := decodeJSON(w, r, &worker); err != nil {
		writeFailure(w, op, err)
		return
	}
	worker.ID = r.PathValue("id")
	saved, err := h.deps.UpsertWorker(r.Context(), worker)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type warmRequest struct {
	Neighborhoods []string `json:"neighborhoods"`
}

type warmResponse struct {
	Accepted int `json:"accepted"`
}

// HandleWarmRoutes handles POST /routes/warm requests. An empty body warms
// the whole centroid table.
func (h *RosterHandler) HandleWarmRoutes(w http.ResponseWriter, r *http.Request) {
	const op = "api.warm_routes"
	var req warmRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeFailure(w, op, err)
			return
		}
	}
	n := h.deps.WarmRoutes(r.Context(), req.Neighborhoods)
	writeJSON(w, http.StatusAccepted, warmResponse{Accepted: n})
}
