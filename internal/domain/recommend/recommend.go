// Package recommend suggests how to fit work into existing routes. It
// answers two symmetric questions over the same geometry: where could a new
// job go among the confirmed ones, and which pending jobs best fill an open
// slot in one worker's day.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/distance"
	"github.com/okian/photodispatch/internal/domain/geo"
	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/internal/domain/schedule"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

// Kind labels an opportunity.
type Kind string

const (
	// KindGapAfter places the new job right after a confirmed one.
	KindGapAfter Kind = "GAP_AFTER"
	// KindGapBefore places the new job right before a confirmed one.
	KindGapBefore Kind = "GAP_BEFORE"
	// KindNearbyPending groups the new job with an unassigned one.
	KindNearbyPending Kind = "NEARBY_PENDING"
)

// clusterScoreBase is the distance at which a clustering suggestion scores zero.
const clusterScoreBase = 10.0

// Order selects the ranking of SuggestJobs.
type Order string

const (
	OrderInsertion Order = "insertion"
	OrderNearest   Order = "nearest"
)

// ParseOrder maps a query value to an Order; empty means insertion.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderInsertion:
		return OrderInsertion, nil
	case OrderNearest:
		return OrderNearest, nil
	}
	return "", fmt.Errorf("%w: order must be insertion or nearest", model.ErrInvalidInput)
}

// Settings are the heuristic's radii and weights.
type Settings struct {
	Hours           schedule.Hours
	SearchRadiusKm  float64
	ClusterRadiusKm float64
	MinGapMin       int
	AfterBonus      float64
	ClusterWeight   float64
	// PendingScanLimit caps how many pending jobs are considered.
	PendingScanLimit int
	// SlotCandidateLimit caps how many confirmed jobs inside the search
	// radius are considered, nearest first.
	SlotCandidateLimit int
	// DefaultDurationMin applies when a slot query has no duration.
	DefaultDurationMin int
}

// Store is what the recommender reads.
type Store interface {
	repository.WorkerStore
	repository.JobStore
}

// Opportunity is one suggested placement for a new job.
type Opportunity struct {
	Kind          Kind         `json:"type"`
	WorkerID      string       `json:"worker_id,omitempty"`
	WorkerName    string       `json:"worker_name,omitempty"`
	JobID         string       `json:"job_id"`
	Protocol      string       `json:"protocol"`
	Neighborhood  string       `json:"neighborhood,omitempty"`
	DistanceKm    float64      `json:"distance_km"`
	TravelMin     int          `json:"travel_min"`
	SuggestedTime *model.Clock `json:"suggested_time,omitempty"`
	Score         float64      `json:"score"`
}

// SlotQuery describes a new job looking for a place.
type SlotQuery struct {
	Point       model.Point
	Date        model.Date
	DurationMin int
}

// JobQuery describes an open slot looking for a job.
type JobQuery struct {
	WorkerID string
	Date     model.Date
	Time     model.Clock
	Order    Order
}

// RankedJob is a pending job with its detour cost.
type RankedJob struct {
	Job           model.Job `json:"job"`
	InsertionCost float64   `json:"insertion_cost_km"`
	// FromPrevKm is the distance from the previous anchor, when there is one.
	FromPrevKm *float64 `json:"from_prev_km,omitempty"`
	ToNextKm   *float64 `json:"to_next_km,omitempty"`
}

// Anchors are the route points around a target time.
type Anchors struct {
	Prev *model.Point `json:"prev,omitempty"`
	// PrevIsBase reports that Prev is the worker's base location.
	PrevIsBase bool         `json:"prev_is_base"`
	Next       *model.Point `json:"next,omitempty"`
}

// Recommender runs both query modes.
type Recommender struct {
	store     Store
	distances *distance.Resolver
	settings  Settings
	logger    logger.Logger
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recommender) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecommender builds a recommender.
func NewRecommender(store Store, distances *distance.Resolver, settings Settings, opts ...Option) *Recommender {
	r := &Recommender{
		store:     store,
		distances: distances,
		settings:  settings,
		logger:    logger.Named("recommend"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SuggestSlots lists gap insertions around nearby confirmed jobs and nearby
// pending jobs to cluster with, nearest first.
func (r *Recommender) SuggestSlots(ctx context.Context, q SlotQuery) ([]Opportunity, error) {
	out := make([]Opportunity, 0)
	window, open := r.settings.Hours.Window(q.Date)
	if !open {
		return out, nil
	}
	duration := q.DurationMin
	if duration <= 0 {
		duration = r.settings.DefaultDurationMin
	}

	names, err := r.workerNames(ctx)
	if err != nil {
		return nil, err
	}

	f := repository.OnDate(q.Date)
	f.Statuses = []model.Status{model.StatusConfirmed}
	f.WithCoordinates = true
	confirmed, err := r.store.ListJobs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("recommend: confirmed jobs: %w", err)
	}
	nearby := r.confirmedWithin(q.Point, confirmed)

	pass := r.distances.Pass()
	target := pointLocation(q.Point)
	for _, c := range nearby {
		j, iv, p, d := c.job, c.iv, c.point, c.km
		travel := r.travel(ctx, pass, pointLocation(p), target)
		base := Opportunity{
			WorkerID:     *j.WorkerID,
			WorkerName:   names[*j.WorkerID],
			JobID:        j.ID,
			Protocol:     j.Protocol,
			Neighborhood: j.Location.Neighborhood,
			DistanceKm:   geo.Round(d, 1),
			TravelMin:    travel,
		}

		after := iv.End.Add(travel + r.settings.MinGapMin)
		if fits(window, after, duration) {
			o := base
			o.Kind = KindGapAfter
			o.SuggestedTime = &after
			o.Score = geo.Round(r.settings.SearchRadiusKm-d+r.settings.AfterBonus, 2)
			out = append(out, o)
		}

		before := iv.Start.Add(-(travel + r.settings.MinGapMin + duration))
		if fits(window, before, duration) {
			o := base
			o.Kind = KindGapBefore
			o.SuggestedTime = &before
			o.Score = geo.Round(r.settings.SearchRadiusKm-d, 2)
			out = append(out, o)
		}
	}

	pending, err := r.nearbyPending(ctx, q)
	if err != nil {
		return nil, err
	}
	out = append(out, pending...)

	sort.SliceStable(out, func(i, k int) bool {
		if out[i].DistanceKm != out[k].DistanceKm {
			return out[i].DistanceKm < out[k].DistanceKm
		}
		return out[i].Score > out[k].Score
	})

	counts := map[Kind]int{}
	for _, o := range out {
		counts[o.Kind]++
	}
	for kind, n := range counts {
		metrics.RecordRecommendations("slots", string(kind), n)
	}
	r.logger.Debug(ctx, "slot suggestions",
		logger.String("date", q.Date.String()),
		logger.Int("confirmed", len(confirmed)),
		logger.Int("suggestions", len(out)))
	return out, nil
}

func (r *Recommender) nearbyPending(ctx context.Context, q SlotQuery) ([]Opportunity, error) {
	f := repository.OnDate(q.Date)
	f.Statuses = []model.Status{model.StatusPending}
	f.UnassignedOnly = true
	f.WithCoordinates = true
	f.Limit = r.settings.PendingScanLimit
	jobs, err := r.store.ListJobs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("recommend: pending jobs: %w", err)
	}

	out := make([]Opportunity, 0)
	for _, j := range jobs {
		p, _ := j.Location.Point()
		d := geo.Haversine(q.Point, p)
		if d > r.settings.ClusterRadiusKm {
			continue
		}
		o := Opportunity{
			Kind:         KindNearbyPending,
			JobID:        j.ID,
			Protocol:     j.Protocol,
			Neighborhood: j.Location.Neighborhood,
			DistanceKm:   geo.Round(d, 1),
			Score:        geo.Round((clusterScoreBase-d)*r.settings.ClusterWeight, 2),
		}
		if j.Time != nil {
			at := *j.Time
			o.SuggestedTime = &at
		}
		out = append(out, o)
	}
	return out, nil
}

// travel returns drive minutes through the coordinate tier of the route
// cache, falling back to the bare model.
func (r *Recommender) travel(ctx context.Context, pass *distance.Pass, from, to model.Location) int {
	res, err := pass.Resolve(ctx, from, to)
	if err == nil {
		return res.DurationMin
	}
	r.logger.Warn(ctx, "travel estimate fell back to model", logger.Error(err))
	a, _ := from.Point()
	b, _ := to.Point()
	return r.distances.Model().Between(a, b).DurationMin
}

func (r *Recommender) workerNames(ctx context.Context) (map[string]string, error) {
	workers, err := r.store.ListWorkers(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("recommend: workers: %w", err)
	}
	names := make(map[string]string, len(workers))
	for _, w := range workers {
		names[w.ID] = w.Name
	}
	return names, nil
}

func fits(window model.Interval, start model.Clock, duration int) bool {
	return start >= window.Start && start.Add(duration) <= window.End
}

func pointLocation(p model.Point) model.Location {
	var l model.Location
	l.SetPoint(p)
	return l
}

// SuggestJobs ranks unassigned pending jobs for an open slot in a worker's
// day. Without any anchor the result is empty.
func (r *Recommender) SuggestJobs(ctx context.Context, q JobQuery) ([]RankedJob, Anchors, error) {
	if q.Order == "" {
		q.Order = OrderInsertion
	}
	anchors, err := r.FindAnchors(ctx, q.WorkerID, q.Date, q.Time)
	if err != nil {
		return nil, Anchors{}, err
	}
	out := make([]RankedJob, 0)
	if anchors.Prev == nil && anchors.Next == nil {
		return out, anchors, nil
	}

	jobs, err := r.store.ListJobs(ctx, repository.JobFilter{
		Statuses:        []model.Status{model.StatusPending},
		UnassignedOnly:  true,
		WithCoordinates: true,
		Limit:           r.settings.PendingScanLimit,
	})
	if err != nil {
		return nil, Anchors{}, fmt.Errorf("recommend: pending jobs: %w", err)
	}

	for _, j := range jobs {
		c, _ := j.Location.Point()
		rj := RankedJob{Job: j, InsertionCost: geo.Round(InsertionCost(anchors.Prev, anchors.Next, c), 2)}
		if anchors.Prev != nil {
			d := geo.Round(geo.Haversine(*anchors.Prev, c), 2)
			rj.FromPrevKm = &d
		}
		if anchors.Next != nil {
			d := geo.Round(geo.Haversine(c, *anchors.Next), 2)
			rj.ToNextKm = &d
		}
		out = append(out, rj)
	}

	sort.SliceStable(out, func(i, k int) bool {
		if q.Order == OrderNearest {
			return nearest(out[i]) < nearest(out[k])
		}
		return out[i].InsertionCost < out[k].InsertionCost
	})

	metrics.RecordRecommendations("jobs", string(q.Order), len(out))
	return out, anchors, nil
}

func nearest(rj RankedJob) float64 {
	if rj.FromPrevKm != nil {
		return *rj.FromPrevKm
	}
	return *rj.ToNextKm
}

// FindAnchors locates the worker's last located job strictly before at and
// first strictly after it. With nothing before, the worker's base stands in.
func (r *Recommender) FindAnchors(ctx context.Context, workerID string, date model.Date, at model.Clock) (Anchors, error) {
	w, err := r.store.GetWorker(ctx, workerID)
	if err != nil {
		return Anchors{}, fmt.Errorf("recommend: worker %s: %w", workerID, err)
	}
	f := repository.OnDate(date)
	f.WorkerIDs = []string{workerID}
	f.Statuses = schedule.OccupyingStatuses
	f.WithCoordinates = true
	jobs, err := r.store.ListJobs(ctx, f)
	if err != nil {
		return Anchors{}, fmt.Errorf("recommend: worker jobs: %w", err)
	}

	var a Anchors
	for _, j := range jobs {
		if j.Time == nil {
			continue
		}
		p, _ := j.Location.Point()
		switch {
		case *j.Time < at:
			a.Prev = &p
		case *j.Time > at && a.Next == nil:
			a.Next = &p
		}
	}
	if a.Prev == nil && w.Base != nil {
		if p, ok := w.Base.Point(); ok {
			a.Prev = &p
			a.PrevIsBase = true
		}
	}
	return a, nil
}

// InsertionCost is the straight-line detour of visiting c between prev and
// next: d(prev,c)+d(c,next), or the single leg when one anchor is missing.
func InsertionCost(prev, next *model.Point, c model.Point) float64 {
	cost := 0.0
	if prev != nil {
		cost += geo.Haversine(*prev, c)
	}
	if next != nil {
		cost += geo.Haversine(c, *next)
	}
	return cost
}

type nearJob struct {
	job   model.Job
	iv    model.Interval
	point model.Point
	km    float64
}

// confirmedWithin keeps assigned jobs inside the search radius, nearest
// first, capped at SlotCandidateLimit.
func (r *Recommender) confirmedWithin(target model.Point, jobs []model.Job) []nearJob {
	var out []nearJob
	for _, j := range jobs {
		iv, ok := j.Interval()
		if !ok || j.Unassigned() {
			continue
		}
		p, ok := j.Location.Point()
		if !ok {
			continue
		}
		d := geo.Haversine(target, p)
		if d > r.settings.SearchRadiusKm {
			continue
		}
		out = append(out, nearJob{job: j, iv: iv, point: p, km: d})
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].km < out[k].km })
	if limit := r.settings.SlotCandidateLimit; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
