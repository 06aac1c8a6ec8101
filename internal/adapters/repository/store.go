// Package repository defines the relational store contracts consumed by the
// dispatch engine, with an in-memory implementation and a sqlx-backed one
// for postgres and sqlite.
package repository

import (
	"context"
	"time"

	"github.com/okian/photodispatch/internal/domain/model"
)

// JobFilter narrows ListJobs. Zero fields do not filter.
type JobFilter struct {
	// From and To bound the scheduled date, inclusive.
	From *model.Date
	To   *model.Date
	// WorkerIDs keeps jobs assigned to any of these workers.
	WorkerIDs []string
	// UnassignedOnly keeps jobs with no worker.
	UnassignedOnly bool
	// Statuses keeps jobs in any of these statuses.
	Statuses []model.Status
	// ExternalRef keeps jobs submitted under this reference.
	ExternalRef string
	// WithCoordinates keeps jobs whose location has lat and lng.
	WithCoordinates bool
	// Limit caps the result; 0 means no cap.
	Limit int
}

// OnDate returns a filter for a single scheduled date.
func OnDate(d model.Date) JobFilter {
	return JobFilter{From: &d, To: &d}
}

// BlockFilter narrows ListBlocks.
type BlockFilter struct {
	WorkerIDs []string
	From      *model.Date
	To        *model.Date
}

// Assignment is the write applied by AssignIfPending.
type Assignment struct {
	WorkerID string
	Date     model.Date
	Time     model.Clock
	At       time.Time
}

// WorkerStore reads and writes the roster.
type WorkerStore interface {
	ListWorkers(ctx context.Context, activeOnly bool) ([]model.Worker, error)
	GetWorker(ctx context.Context, id string) (model.Worker, error)
	UpsertWorker(ctx context.Context, w model.Worker) error
}

// JobStore reads and writes bookings.
type JobStore interface {
	CreateJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, id string) (model.Job, error)
	UpdateJob(ctx context.Context, job model.Job) error
	// ListJobs orders by date, then time, then creation.
	ListJobs(ctx context.Context, f JobFilter) ([]model.Job, error)
	// AssignIfPending confirms the job for a worker only while it is still
	// PENDING and unassigned. It returns model.ErrConflict otherwise.
	AssignIfPending(ctx context.Context, id string, a Assignment) (model.Job, error)
	// CancelActiveByRef cancels every PENDING/CONFIRMED/RESERVED job with the
	// external reference except keepID and returns how many changed.
	CancelActiveByRef(ctx context.Context, ref, keepID string, at time.Time) (int, error)
}

// BlockStore reads and writes worker unavailability.
type BlockStore interface {
	CreateBlock(ctx context.Context, b model.TimeBlock) error
	DeleteBlock(ctx context.Context, id string) error
	ListBlocks(ctx context.Context, f BlockFilter) ([]model.TimeBlock, error)
}

// RouteStore is the persistent distance cache.
type RouteStore interface {
	// GetRoute is an exact-match read; model.ErrNotFound on a miss.
	GetRoute(ctx context.Context, kind model.RouteKind, origin, destination string) (model.RouteEntry, error)
	// InsertRouteIfAbsent writes e unless the key exists and returns the
	// stored row either way. inserted reports whether this call won.
	InsertRouteIfAbsent(ctx context.Context, e model.RouteEntry) (stored model.RouteEntry, inserted bool, err error)
	// CountRoutes reports cached rows per kind.
	CountRoutes(ctx context.Context) (map[model.RouteKind]int, error)
}

// PostalCodeStore holds learned postal-code geocodes.
type PostalCodeStore interface {
	GetPostalCode(ctx context.Context, code string) (model.PostalCodeLocation, error)
	InsertPostalCodeIfAbsent(ctx context.Context, loc model.PostalCodeLocation) (model.PostalCodeLocation, error)
}

// Store bundles every contract.
type Store interface {
	WorkerStore
	JobStore
	BlockStore
	RouteStore
	PostalCodeStore
	Close() error
}

func cancelable(s model.Status) bool {
	switch s {
	case model.StatusPending, model.StatusConfirmed, model.StatusReserved:
		return true
	}
	return false
}
