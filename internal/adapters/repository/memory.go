package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/photodispatch/internal/domain/model"
)

type routeKey struct {
	kind        model.RouteKind
	origin      string
	destination string
}

// MemoryStore implements Store in process memory. It backs tests and the
// "memory" driver.
type MemoryStore struct {
	mu      sync.RWMutex
	workers map[string]model.Worker
	jobs    map[string]model.Job
	blocks  map[string]model.TimeBlock
	routes  map[routeKey]model.RouteEntry
	postal  map[string]model.PostalCodeLocation

	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		workers: make(map[string]model.Worker),
		jobs:    make(map[string]model.Job),
		blocks:  make(map[string]model.TimeBlock),
		routes:  make(map[routeKey]model.RouteEntry),
		postal:  make(map[string]model.PostalCodeLocation),
		now:     time.Now,
	}
	cfg := applyOptions(opts)
	if cfg.now != nil {
		s.now = cfg.now
	}
	return s
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// --- WorkerStore ---

func (s *MemoryStore) ListWorkers(_ context.Context, activeOnly bool) ([]model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		if activeOnly && !w.Active {
			continue
		}
		out = append(out, cloneWorker(w))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetWorker(_ context.Context, id string) (model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workers[id]
	if !ok {
		return model.Worker{}, fmt.Errorf("worker %s: %w", id, model.ErrNotFound)
	}
	return cloneWorker(w), nil
}

func (s *MemoryStore) UpsertWorker(_ context.Context, w model.Worker) error {
	if w.ID == "" {
		return fmt.Errorf("worker id: %w", model.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = cloneWorker(w)
	return nil
}

// --- JobStore ---

func (s *MemoryStore) CreateJob(_ context.Context, job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists: %w", job.ID, model.ErrConflict)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s: %w", job.ID, model.ErrNotFound)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) ListJobs(_ context.Context, f JobFilter) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Job, 0)
	for _, j := range s.jobs {
		if matchJob(j, f) {
			out = append(out, cloneJob(j))
		}
	}
	sortJobs(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) AssignIfPending(_ context.Context, id string, a Assignment) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if j.Status != model.StatusPending || !j.Unassigned() {
		return model.Job{}, fmt.Errorf("job %s is %s: %w", id, j.Status, model.ErrConflict)
	}
	worker, date, at := a.WorkerID, a.Date, a.Time
	j.WorkerID, j.Date, j.Time = &worker, &date, &at
	j.Status = model.StatusConfirmed
	j.UpdatedAt = a.At
	s.jobs[id] = j
	return cloneJob(j), nil
}

func (s *MemoryStore) CancelActiveByRef(_ context.Context, ref, keepID string, at time.Time) (int, error) {
	if ref == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, j := range s.jobs {
		if id == keepID || j.ExternalRef != ref || !cancelable(j.Status) {
			continue
		}
		j.Status = model.StatusCanceled
		j.UpdatedAt = at
		s.jobs[id] = j
		n++
	}
	return n, nil
}

// --- BlockStore ---

func (s *MemoryStore) CreateBlock(_ context.Context, b model.TimeBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[b.ID]; ok {
		return fmt.Errorf("block %s already exists: %w", b.ID, model.ErrConflict)
	}
	s.blocks[b.ID] = b
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[id]; !ok {
		return fmt.Errorf("block %s: %w", id, model.ErrNotFound)
	}
	delete(s.blocks, id)
	return nil
}

func (s *MemoryStore) ListBlocks(_ context.Context, f BlockFilter) ([]model.TimeBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TimeBlock, 0)
	for _, b := range s.blocks {
		if len(f.WorkerIDs) > 0 && !contains(f.WorkerIDs, b.WorkerID) {
			continue
		}
		if f.From != nil && b.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && b.Date.After(*f.To) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- RouteStore ---

func (s *MemoryStore) GetRoute(_ context.Context, kind model.RouteKind, origin, destination string) (model.RouteEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.routes[routeKey{kind, origin, destination}]
	if !ok {
		return model.RouteEntry{}, fmt.Errorf("route %s %s->%s: %w", kind, origin, destination, model.ErrNotFound)
	}
	return e, nil
}

func (s *MemoryStore) InsertRouteIfAbsent(_ context.Context, e model.RouteEntry) (model.RouteEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := routeKey{e.Kind, e.Origin, e.Destination}
	if existing, ok := s.routes[key]; ok {
		return existing, false, nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.routes[key] = e
	return e, true, nil
}

func (s *MemoryStore) CountRoutes(_ context.Context) (map[model.RouteKind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.RouteKind]int)
	for k := range s.routes {
		out[k.kind]++
	}
	return out, nil
}

// --- PostalCodeStore ---

func (s *MemoryStore) GetPostalCode(_ context.Context, code string) (model.PostalCodeLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.postal[code]
	if !ok {
		return model.PostalCodeLocation{}, fmt.Errorf("postal code %s: %w", code, model.ErrNotFound)
	}
	return loc, nil
}

func (s *MemoryStore) InsertPostalCodeIfAbsent(_ context.Context, loc model.PostalCodeLocation) (model.PostalCodeLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.postal[loc.PostalCode]; ok {
		return existing, nil
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = s.now()
	}
	s.postal[loc.PostalCode] = loc
	return loc, nil
}

// --- helpers ---

func matchJob(j model.Job, f JobFilter) bool {
	if f.From != nil || f.To != nil {
		if j.Date == nil {
			return false
		}
		if f.From != nil && j.Date.Before(*f.From) {
			return false
		}
		if f.To != nil && j.Date.After(*f.To) {
			return false
		}
	}
	if len(f.WorkerIDs) > 0 && (j.WorkerID == nil || !contains(f.WorkerIDs, *j.WorkerID)) {
		return false
	}
	if f.UnassignedOnly && !j.Unassigned() {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, j.Status) {
		return false
	}
	if f.ExternalRef != "" && j.ExternalRef != f.ExternalRef {
		return false
	}
	if f.WithCoordinates && !j.Location.HasCoordinates() {
		return false
	}
	return true
}

func sortJobs(jobs []model.Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		switch {
		case a.Date == nil && b.Date != nil:
			return false
		case a.Date != nil && b.Date == nil:
			return true
		case a.Date != nil && b.Date != nil && !a.Date.Equal(*b.Date):
			return a.Date.Before(*b.Date)
		}
		switch {
		case a.Time == nil && b.Time != nil:
			return false
		case a.Time != nil && b.Time == nil:
			return true
		case a.Time != nil && b.Time != nil && *a.Time != *b.Time:
			return *a.Time < *b.Time
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsStatus(list []model.Status, v model.Status) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func cloneWorker(w model.Worker) model.Worker {
	w.Capabilities = append(model.Capabilities(nil), w.Capabilities...)
	if w.Base != nil {
		base := cloneLocation(*w.Base)
		w.Base = &base
	}
	if w.TravelRadiusKm != nil {
		r := *w.TravelRadiusKm
		w.TravelRadiusKm = &r
	}
	return w
}

func cloneLocation(l model.Location) model.Location {
	if l.Lat != nil {
		v := *l.Lat
		l.Lat = &v
	}
	if l.Lng != nil {
		v := *l.Lng
		l.Lng = &v
	}
	return l
}

func cloneJob(j model.Job) model.Job {
	j.Location = cloneLocation(j.Location)
	j.Services = append([]model.ServiceID(nil), j.Services...)
	if j.Date != nil {
		d := *j.Date
		j.Date = &d
	}
	if j.Time != nil {
		t := *j.Time
		j.Time = &t
	}
	if j.WorkerID != nil {
		w := *j.WorkerID
		j.WorkerID = &w
	}
	return j
}
