package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/coverage"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

// JobInput is a booking submission.
type JobInput struct {
	ExternalRef string            `json:"external_ref,omitempty"`
	ClientName  string            `json:"client_name"`
	ClientEmail string            `json:"client_email,omitempty"`
	ClientPhone string            `json:"client_phone,omitempty"`
	Location    model.Location    `json:"location"`
	Services    []model.ServiceID `json:"services"`
	Date        *model.Date       `json:"date"`
	Time        *model.Clock      `json:"time"`
	Notes       string            `json:"notes,omitempty"`
}

func (in JobInput) validate() error {
	v := model.NewValidationError()
	if strings.TrimSpace(in.Location.Address) == "" {
		v.Add("location.address", "required")
	}
	if strings.TrimSpace(in.Location.Neighborhood) == "" {
		v.Add("location.neighborhood", "required")
	}
	if len(in.Services) == 0 {
		v.Add("services", "at least one service is required")
	} else if err := model.ValidateServices(in.Services); err != nil {
		v.Add("services", err.Error())
	}
	if in.Date == nil {
		v.Add("date", "required")
	}
	if in.Time == nil {
		v.Add("time", "required")
	}
	return v.OrNil()
}

// AssignInput confirms a job for a worker. Date and Time default to the
// job's requested schedule.
type AssignInput struct {
	WorkerID string       `json:"worker_id"`
	Date     *model.Date  `json:"date,omitempty"`
	Time     *model.Clock `json:"time,omitempty"`
}

// BlockInput creates a time block. Omitting both Start and End blocks the
// whole working window.
type BlockInput struct {
	WorkerID string       `json:"worker_id"`
	Date     model.Date   `json:"date"`
	Start    *model.Clock `json:"start,omitempty"`
	End      *model.Clock `json:"end,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// CreateJob takes in a booking: it stores the job as PENDING, cancels
// earlier active submissions under the same external reference and confirms
// it straight away when exactly one worker can serve it.
func (s *Service) CreateJob(ctx context.Context, in JobInput) (model.Job, error) {
	if err := in.validate(); err != nil {
		return model.Job{}, err
	}
	_, duration := s.hours.Span(s.catalog.Total(in.Services))
	if err := s.withinHours(*in.Date, *in.Time, duration); err != nil {
		return model.Job{}, err
	}
	now := s.now()

	loc := in.Location
	if !loc.HasCoordinates() && s.addresses != nil {
		res, err := s.addresses.GeocodeAddress(ctx, loc.Address)
		if err != nil {
			s.logger.Warn(ctx, "address geocoding failed", logger.String("address", loc.Address), logger.Error(err))
		} else {
			loc.SetPoint(res.Point)
		}
	}
	loc.PostalCode = model.NormalizePostalCode(loc.PostalCode)

	date, at := *in.Date, *in.Time
	job := model.Job{
		ID:          s.newID(),
		Protocol:    s.newProtocol(),
		ExternalRef: in.ExternalRef,
		ClientName:  in.ClientName,
		ClientEmail: in.ClientEmail,
		ClientPhone: in.ClientPhone,
		Location:    loc,
		Services:    in.Services,
		DurationMin: duration,
		Date:        &date,
		Time:        &at,
		Status:      model.StatusPending,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("service: create job: %w", err)
	}
	// Earlier submissions are replaced only once the new job is stored.
	if in.ExternalRef != "" {
		n, err := s.store.CancelActiveByRef(ctx, in.ExternalRef, job.ID, now)
		if err != nil {
			return model.Job{}, fmt.Errorf("service: cancel previous: %w", err)
		}
		if n > 0 {
			s.logger.Info(ctx, "canceled previous submissions",
				logger.String("external_ref", in.ExternalRef), logger.Int("count", n))
		}
	}

	assigned, err := s.autoAssign(ctx, job)
	if err != nil {
		return model.Job{}, err
	}
	s.logger.Info(ctx, "job created",
		logger.String("protocol", assigned.Protocol),
		logger.String("status", string(assigned.Status)))
	return assigned, nil
}

// autoAssign confirms job when its coverage-eligible set has exactly one
// member who is free at the requested time.
func (s *Service) autoAssign(ctx context.Context, job model.Job) (model.Job, error) {
	q := coverage.Query{Neighborhood: job.Location.Neighborhood, Services: job.Services}
	if p, ok := job.Location.Point(); ok {
		q.Client = &p
	}
	eligible, err := s.coverage.Resolve(ctx, q)
	if err != nil {
		return model.Job{}, fmt.Errorf("service: coverage: %w", err)
	}

	switch len(eligible) {
	case 0:
		s.recordOutcome(outcomeNoCoverage)
		return job, nil
	case 1:
	default:
		s.recordOutcome(outcomePending)
		return job, nil
	}

	w := eligible[0]
	iv, _ := job.Interval()
	free, err := s.workerFree(ctx, w.ID, *job.Date, iv)
	if err != nil {
		return model.Job{}, err
	}
	if !free {
		s.recordOutcome(outcomeBusy)
		s.logger.Info(ctx, "sole eligible worker is busy",
			logger.String("protocol", job.Protocol), logger.String("worker", w.ID))
		return job, nil
	}

	confirmed, err := s.store.AssignIfPending(ctx, job.ID, repository.Assignment{
		WorkerID: w.ID, Date: *job.Date, Time: *job.Time, At: s.now(),
	})
	if errors.Is(err, model.ErrConflict) {
		s.recordOutcome(outcomePending)
		return s.store.GetJob(ctx, job.ID)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("service: auto-assign: %w", err)
	}
	s.recordOutcome(outcomeConfirmed)
	return confirmed, nil
}

// withinHours rejects a schedule that falls on a closed day or does not fit
// the working window.
func (s *Service) withinHours(date model.Date, at model.Clock, minutes int) error {
	v := model.NewValidationError()
	window, open := s.hours.Window(date)
	switch {
	case !open:
		v.Add("date", "closed on "+strings.ToLower(date.Weekday().String()))
	case at < window.Start || at.Add(minutes) > window.End:
		v.Add("time", fmt.Sprintf("must fit within %s-%s", window.Start, window.End))
	}
	return v.OrNil()
}

func (s *Service) workerFree(ctx context.Context, workerID string, date model.Date, iv model.Interval) (bool, error) {
	cal, err := schedule.Load(ctx, s.store, date, date, []string{workerID})
	if err != nil {
		return false, fmt.Errorf("service: %w", err)
	}
	return cal.Day(date, workerID).Free(iv), nil
}

// GetJob returns one job.
func (s *Service) GetJob(ctx context.Context, id string) (model.Job, error) {
	return s.store.GetJob(ctx, id)
}

// ListJobs returns jobs matching f.
func (s *Service) ListJobs(ctx context.Context, f repository.JobFilter) ([]model.Job, error) {
	return s.store.ListJobs(ctx, f)
}

// AssignJob confirms a PENDING unassigned job for a worker. It fails with
// model.ErrConflict when the job was taken meanwhile or the worker already
// has something at that time.
func (s *Service) AssignJob(ctx context.Context, jobID string, in AssignInput) (model.Job, error) {
	if strings.TrimSpace(in.WorkerID) == "" {
		return model.Job{}, fmt.Errorf("%w: worker_id is required", model.ErrInvalidInput)
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, err
	}
	if job.Status != model.StatusPending || !job.Unassigned() {
		metrics.RecordAssignmentConflict()
		return model.Job{}, fmt.Errorf("%w: job %s is %s", model.ErrConflict, job.Protocol, job.Status)
	}
	w, err := s.store.GetWorker(ctx, in.WorkerID)
	if err != nil {
		return model.Job{}, err
	}
	if !w.Active {
		return model.Job{}, fmt.Errorf("%w: worker %s is inactive", model.ErrInvalidInput, w.ID)
	}

	date, at := in.Date, in.Time
	if date == nil {
		date = job.Date
	}
	if at == nil {
		at = job.Time
	}
	if date == nil || at == nil {
		return model.Job{}, fmt.Errorf("%w: date and time are required", model.ErrInvalidInput)
	}

	if err := s.withinHours(*date, *at, job.DurationMin); err != nil {
		return model.Job{}, err
	}
	iv := model.Interval{Start: *at, End: at.Add(job.DurationMin)}
	free, err := s.workerFree(ctx, w.ID, *date, iv)
	if err != nil {
		return model.Job{}, err
	}
	if !free {
		metrics.RecordAssignmentConflict()
		return model.Job{}, fmt.Errorf("%w: %s is busy at %s %s", model.ErrConflict, w.Name, date, at)
	}

	confirmed, err := s.store.AssignIfPending(ctx, jobID, repository.Assignment{
		WorkerID: w.ID, Date: *date, Time: *at, At: s.now(),
	})
	if errors.Is(err, model.ErrConflict) {
		metrics.RecordAssignmentConflict()
	}
	if err != nil {
		return model.Job{}, err
	}
	s.logger.Info(ctx, "job assigned",
		logger.String("protocol", confirmed.Protocol), logger.String("worker", w.ID))
	return confirmed, nil
}

// CancelJob cancels a job. Canceling a canceled job is a no-op.
func (s *Service) CancelJob(ctx context.Context, jobID string) (model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, err
	}
	switch job.Status {
	case model.StatusCanceled:
		return job, nil
	case model.StatusCompleted:
		return model.Job{}, fmt.Errorf("%w: job %s is completed", model.ErrConflict, job.Protocol)
	}
	job.Status = model.StatusCanceled
	job.UpdatedAt = s.now()
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("service: cancel: %w", err)
	}
	return job, nil
}

// CreateBlock records a worker's unavailability.
func (s *Service) CreateBlock(ctx context.Context, in BlockInput) (model.TimeBlock, error) {
	v := model.NewValidationError()
	if strings.TrimSpace(in.WorkerID) == "" {
		v.Add("worker_id", "required")
	}
	if in.Date.IsZero() {
		v.Add("date", "required")
	}
	if (in.Start == nil) != (in.End == nil) {
		v.Add("start", "start and end go together")
	}
	if in.Start != nil && in.End != nil && *in.End <= *in.Start {
		v.Add("end", "must be after start")
	}
	if err := v.OrNil(); err != nil {
		return model.TimeBlock{}, err
	}
	if _, err := s.store.GetWorker(ctx, in.WorkerID); err != nil {
		return model.TimeBlock{}, err
	}

	b := model.TimeBlock{ID: s.newID(), WorkerID: in.WorkerID, Date: in.Date, Reason: in.Reason}
	if in.Start != nil {
		b.Start, b.End = *in.Start, *in.End
	} else {
		window, open := s.hours.Window(in.Date)
		if !open {
			window = model.Interval{Start: s.hours.Open, End: s.hours.WeekdayClose}
		}
		b.Start, b.End = window.Start, window.End
	}
	if err := s.store.CreateBlock(ctx, b); err != nil {
		return model.TimeBlock{}, fmt.Errorf("service: create block: %w", err)
	}
	return b, nil
}

// DeleteBlock removes a block.
func (s *Service) DeleteBlock(ctx context.Context, id string) error {
	return s.store.DeleteBlock(ctx, id)
}
