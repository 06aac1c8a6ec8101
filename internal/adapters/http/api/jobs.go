package api

import (
	"context"
	"net/http"

	"github.com/okian/photodispatch/internal/adapters/repository"
	service "github.com/okian/photodispatch/internal/app"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
)

// JobDependencies are the booking and block operations.
type JobDependencies interface {
	CreateJob(ctx context.Context, in service.JobInput) (model.Job, error)
	GetJob(ctx context.Context, id string) (model.Job, error)
	ListJobs(ctx context.Context, f repository.JobFilter) ([]model.Job, error)
	AssignJob(ctx context.Context, jobID string, in service.AssignInput) (model.Job, error)
	CancelJob(ctx context.Context, jobID string) (model.Job, error)
	CreateBlock(ctx context.Context, in service.BlockInput) (model.TimeBlock, error)
	DeleteBlock(ctx context.Context, id string) error
}

// JobsHandler handles job and block requests.
type JobsHandler struct {
	deps   JobDependencies
	logger logger.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(deps JobDependencies, log logger.Logger) *JobsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &JobsHandler{deps: deps, logger: log}
}

type jobsResponse struct {
	Jobs []model.Job `json:"jobs"`
}

// HandleCreateJob handles POST /jobs requests.
func (h *JobsHandler) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_job"
	var in service.JobInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, op, err)
		return
	}
	job, err := h.deps.CreateJob(r.Context(), in)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// HandleListJobs handles GET /jobs requests.
func (h *JobsHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_jobs"
	p := newParams(r.URL.Query())
	date := p.date("date", true)
	f := repository.JobFilter{From: &date, To: &date}
	if id := p.str("worker_id"); id != "" {
		f.WorkerIDs = []string{id}
	}
	if raw := p.str("status"); raw != "" {
		st := model.Status(raw)
		if !st.Valid() {
			p.errs.Add("status", "unknown status")
		}
		f.Statuses = []model.Status{st}
	}
	if err := p.err(); err != nil {
		writeFailure(w, op, err)
		return
	}
	jobs, err := h.deps.ListJobs(r.Context(), f)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobsResponse{Jobs: jobs})
}

// HandleGetJob handles GET /jobs/{id} requests.
func (h *JobsHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"
	job, err := h.deps.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleAssignJob handles POST /jobs/{id}/assign requests.
func (h *JobsHandler) HandleAssignJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.assign_job"
	var in service.AssignInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, op, err)
		return
	}
	job, err := h.deps.AssignJob(r.Context(), r.PathValue("id"), in)
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleCancelJob handles POST /jobs/{id}/cancel requests.
func (h *JobsHandler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.cancel_job"
	job, err := h.deps.CancelJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type blockRequest struct {
	Date   model.Date   `json:"date"`
	Start  *model.Clock `json:"start,omitempty"`
	End    *model.Clock `json:"end,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// HandleCreateBlock handles POST /workers/{id}/blocks requests.
func (h *JobsHandler) HandleCreateBlock(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_block"
	var req blockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	block, err := h.deps.CreateBlock(r.Context(), service.BlockInput{
		WorkerID: r.PathValue("id"),
		Date:     req.Date,
		Start:    req.Start,
		End:      req.End,
		Reason:   req.Reason,
	})
	if err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

// HandleDeleteBlock handles DELETE /blocks/{id} requests.
func (h *JobsHandler) HandleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_block"
	if err := h.deps.DeleteBlock(r.Context(), r.PathValue("id")); err != nil {
		h.fail(r.Context(), w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobsHandler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if kindOf(err) == ErrInternal {
		h.logger.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
	}
	writeFailure(w, op, err)
}
