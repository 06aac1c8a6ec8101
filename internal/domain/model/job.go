package model

import (
	"strings"
	"time"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusReserved  Status = "RESERVED"
	StatusWaiting   Status = "WAITING"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusReserved, StatusWaiting, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Occupies reports whether a job in this status holds its worker's time.
func (s Status) Occupies() bool {
	switch s {
	case StatusConfirmed, StatusReserved, StatusWaiting, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether the job can still be acted on.
func (s Status) Active() bool {
	return s != StatusCanceled && s != StatusCompleted
}

// Job is a booking request at a location.
type Job struct {
	ID          string      `json:"id"`
	Protocol    string      `json:"protocol"`
	ExternalRef string      `json:"external_ref,omitempty"`
	ClientName  string      `json:"client_name,omitempty"`
	ClientEmail string      `json:"client_email,omitempty"`
	ClientPhone string      `json:"client_phone,omitempty"`
	Location    Location    `json:"location"`
	Services    []ServiceID `json:"services"`
	DurationMin int         `json:"duration_min"`
	Date        *Date       `json:"date,omitempty"`
	Time        *Clock      `json:"time,omitempty"`
	WorkerID    *string     `json:"worker_id,omitempty"`
	Status      Status      `json:"status"`
	Notes       string      `json:"notes,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Interval returns the job's occupied span when it is scheduled.
func (j Job) Interval() (Interval, bool) {
	if j.Time == nil {
		return Interval{}, false
	}
	return Interval{Start: *j.Time, End: j.Time.Add(j.DurationMin)}, true
}

// AssignedTo reports whether the job is assigned to workerID.
func (j Job) AssignedTo(workerID string) bool {
	return j.WorkerID != nil && *j.WorkerID == workerID
}

// Unassigned reports whether no worker is set.
func (j Job) Unassigned() bool {
	return j.WorkerID == nil || strings.TrimSpace(*j.WorkerID) == ""
}

// CheckInvariants validates the status-dependent nullability rules.
func (j Job) CheckInvariants() error {
	v := NewValidationError()
	if !j.Status.Valid() {
		v.Add("status", "unknown status")
	}
	switch j.Status {
	case StatusConfirmed:
		if j.Unassigned() {
			v.Add("worker_id", "confirmed job needs a worker")
		}
		if j.Date == nil {
			v.Add("date", "confirmed job needs a date")
		}
		if j.Time == nil {
			v.Add("time", "confirmed job needs a time")
		}
	case StatusPending:
		if !j.Unassigned() {
			v.Add("worker_id", "pending job must not have a worker")
		}
	}
	return v.OrNil()
}

// TimeBlock is a worker unavailability window on one date.
type TimeBlock struct {
	ID       string `json:"id"`
	WorkerID string `json:"worker_id"`
	Date     Date   `json:"date"`
	Start    Clock  `json:"start"`
	End      Clock  `json:"end"`
	Reason   string `json:"reason,omitempty"`
}

// Interval returns the blocked span.
func (b TimeBlock) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// RouteKind is the granularity of a route cache key.
type RouteKind string

const (
	// RouteCoordinate keys are rounded lat,lng pairs.
	RouteCoordinate RouteKind = "coord"
	// RouteCluster keys are normalized neighborhood names.
	RouteCluster RouteKind = "cluster"
)

// RouteEntry is a memoized distance estimate for an ordered key pair.
type RouteEntry struct {
	Kind        RouteKind `json:"kind" db:"kind"`
	Origin      string    `json:"origin" db:"origin"`
	Destination string    `json:"destination" db:"destination"`
	DistanceKm  float64   `json:"distance_km" db:"distance_km"`
	DurationMin int       `json:"duration_min" db:"duration_min"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RoutePair is an ordered origin and destination queued for cache warm-up.
type RoutePair struct {
	From Location `json:"from"`
	To   Location `json:"to"`
}

// PostalCodeLocation is a learned geocode for a postal code.
type PostalCodeLocation struct {
	PostalCode   string    `json:"postal_code" db:"postal_code"`
	Lat          float64   `json:"lat" db:"lat"`
	Lng          float64   `json:"lng" db:"lng"`
	Neighborhood string    `json:"neighborhood,omitempty" db:"neighborhood"`
	City         string    `json:"city,omitempty" db:"city"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NormalizePostalCode keeps only digits.
func NormalizePostalCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
