package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
)

// Connection pool settings.
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

// Supported relational drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by name.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLStore implements Store on top of sqlx. Queries are written with "?"
// placeholders and rebound for the connected driver.
type SQLStore struct {
	db     *sqlx.DB
	now    func() time.Time
	logger logger.Logger
}

// Open connects to driver/dsn, sizes the pool and pings the database.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY under concurrent inserts.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// NewSQLStore wraps an open connection.
func NewSQLStore(db *sqlx.DB, opts ...Option) *SQLStore {
	cfg := applyOptions(opts)
	s := &SQLStore{db: db, now: time.Now, logger: logger.Named("store")}
	if cfg.now != nil {
		s.now = cfg.now
	}
	if cfg.logger != nil {
		s.logger = cfg.logger
	}
	return s
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error { return s.db.Close() }

// DB exposes the pool for migrations.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) q(query string) string { return s.db.Rebind(query) }

// execRequireRows maps "zero rows affected" to notFound.
func execRequireRows(result sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// --- rows ---

type workerRow struct {
	ID             string          `db:"id"`
	Name           string          `db:"name"`
	Email          string          `db:"email"`
	Color          string          `db:"color"`
	Active         bool            `db:"active"`
	Capabilities   string          `db:"capabilities"`
	Coverage       string          `db:"coverage"`
	BaseAddress    sql.NullString  `db:"base_address"`
	BaseLat        sql.NullFloat64 `db:"base_lat"`
	BaseLng        sql.NullFloat64 `db:"base_lng"`
	TravelRadiusKm sql.NullFloat64 `db:"travel_radius_km"`
}

const workerColumns = "id, name, email, color, active, capabilities, coverage, base_address, base_lat, base_lng, travel_radius_km"

func newWorkerRow(w model.Worker) (workerRow, error) {
	caps, err := json.Marshal(w.Capabilities)
	if err != nil {
		return workerRow{}, fmt.Errorf("encode capabilities: %w", err)
	}
	cov, err := json.Marshal(w.Coverage)
	if err != nil {
		return workerRow{}, fmt.Errorf("encode coverage: %w", err)
	}
	r := workerRow{
		ID:           w.ID,
		Name:         w.Name,
		Email:        w.Email,
		Color:        w.Color,
		Active:       w.Active,
		Capabilities: string(caps),
		Coverage:     string(cov),
	}
	if w.Base != nil {
		r.BaseAddress = sql.NullString{String: w.Base.Address, Valid: true}
		r.BaseLat = nullFloat(w.Base.Lat)
		r.BaseLng = nullFloat(w.Base.Lng)
	}
	r.TravelRadiusKm = nullFloat(w.TravelRadiusKm)
	return r, nil
}

func (r workerRow) toModel() (model.Worker, error) {
	w := model.Worker{
		ID:     r.ID,
		Name:   r.Name,
		Email:  r.Email,
		Color:  r.Color,
		Active: r.Active,
	}
	if r.Capabilities != "" {
		if err := json.Unmarshal([]byte(r.Capabilities), &w.Capabilities); err != nil {
			return model.Worker{}, fmt.Errorf("worker %s capabilities: %w", r.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(nonEmpty(r.Coverage, "[]")), &w.Coverage); err != nil {
		return model.Worker{}, fmt.Errorf("worker %s coverage: %w", r.ID, err)
	}
	if r.BaseAddress.Valid || r.BaseLat.Valid {
		w.Base = &model.Location{
			Address: r.BaseAddress.String,
			Lat:     floatPtr(r.BaseLat),
			Lng:     floatPtr(r.BaseLng),
		}
	}
	w.TravelRadiusKm = floatPtr(r.TravelRadiusKm)
	return w, nil
}

type jobRow struct {
	ID            string          `db:"id"`
	Protocol      string          `db:"protocol"`
	ExternalRef   string          `db:"external_ref"`
	ClientName    string          `db:"client_name"`
	ClientEmail   string          `db:"client_email"`
	ClientPhone   string          `db:"client_phone"`
	Address       string          `db:"address"`
	Neighborhood  string          `db:"neighborhood"`
	PostalCode    string          `db:"postal_code"`
	Lat           sql.NullFloat64 `db:"lat"`
	Lng           sql.NullFloat64 `db:"lng"`
	Services      string          `db:"services"`
	DurationMin   int             `db:"duration_min"`
	ScheduledDate sql.NullString  `db:"scheduled_date"`
	ScheduledTime sql.NullString  `db:"scheduled_time"`
	WorkerID      sql.NullString  `db:"worker_id"`
	Status        string          `db:"status"`
	Notes         string          `db:"notes"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

const jobColumns = "id, protocol, external_ref, client_name, client_email, client_phone, address, neighborhood, postal_code, lat, lng, services, duration_min, scheduled_date, scheduled_time, worker_id, status, notes, created_at, updated_at"

func newJobRow(j model.Job) (jobRow, error) {
	services, err := json.Marshal(j.Services)
	if err != nil {
		return jobRow{}, fmt.Errorf("encode services: %w", err)
	}
	r := jobRow{
		ID:           j.ID,
		Protocol:     j.Protocol,
		ExternalRef:  j.ExternalRef,
		ClientName:   j.ClientName,
		ClientEmail:  j.ClientEmail,
		ClientPhone:  j.ClientPhone,
		Address:      j.Location.Address,
		Neighborhood: j.Location.Neighborhood,
		PostalCode:   j.Location.PostalCode,
		Lat:          nullFloat(j.Location.Lat),
		Lng:          nullFloat(j.Location.Lng),
		Services:     string(services),
		DurationMin:  j.DurationMin,
		Status:       string(j.Status),
		Notes:        j.Notes,
		CreatedAt:    j.CreatedAt.UTC(),
		UpdatedAt:    j.UpdatedAt.UTC(),
	}
	if j.Date != nil {
		r.ScheduledDate = sql.NullString{String: j.Date.String(), Valid: true}
	}
	if j.Time != nil {
		r.ScheduledTime = sql.NullString{String: j.Time.String(), Valid: true}
	}
	if !j.Unassigned() {
		r.WorkerID = sql.NullString{String: *j.WorkerID, Valid: true}
	}
	return r, nil
}

func (r jobRow) toModel() (model.Job, error) {
	j := model.Job{
		ID:          r.ID,
		Protocol:    r.Protocol,
		ExternalRef: r.ExternalRef,
		ClientName:  r.ClientName,
		ClientEmail: r.ClientEmail,
		ClientPhone: r.ClientPhone,
		Location: model.Location{
			Address:      r.Address,
			Neighborhood: r.Neighborhood,
			PostalCode:   r.PostalCode,
			Lat:          floatPtr(r.Lat),
			Lng:          floatPtr(r.Lng),
		},
		DurationMin: r.DurationMin,
		Status:      model.Status(r.Status),
		Notes:       r.Notes,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Services != "" {
		if err := json.Unmarshal([]byte(r.Services), &j.Services); err != nil {
			return model.Job{}, fmt.Errorf("job %s services: %w", r.ID, err)
		}
	}
	if r.ScheduledDate.Valid && r.ScheduledDate.String != "" {
		d, err := model.ParseDate(r.ScheduledDate.String)
		if err != nil {
			return model.Job{}, fmt.Errorf("job %s: %w", r.ID, err)
		}
		j.Date = &d
	}
	if r.ScheduledTime.Valid && r.ScheduledTime.String != "" {
		c, err := model.ParseClock(r.ScheduledTime.String)
		if err != nil {
			return model.Job{}, fmt.Errorf("job %s: %w", r.ID, err)
		}
		j.Time = &c
	}
	if r.WorkerID.Valid && r.WorkerID.String != "" {
		w := r.WorkerID.String
		j.WorkerID = &w
	}
	return j, nil
}

type blockRow struct {
	ID        string `db:"id"`
	WorkerID  string `db:"worker_id"`
	BlockDate string `db:"block_date"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
	Reason    string `db:"reason"`
}

func (r blockRow) toModel() (model.TimeBlock, error) {
	d, err := model.ParseDate(r.BlockDate)
	if err != nil {
		return model.TimeBlock{}, fmt.Errorf("block %s: %w", r.ID, err)
	}
	start, err := model.ParseClock(r.StartTime)
	if err != nil {
		return model.TimeBlock{}, fmt.Errorf("block %s: %w", r.ID, err)
	}
	end, err := model.ParseClock(r.EndTime)
	if err != nil {
		return model.TimeBlock{}, fmt.Errorf("block %s: %w", r.ID, err)
	}
	return model.TimeBlock{ID: r.ID, WorkerID: r.WorkerID, Date: d, Start: start, End: end, Reason: r.Reason}, nil
}

// --- WorkerStore ---

func (s *SQLStore) ListWorkers(ctx context.Context, activeOnly bool) ([]model.Worker, error) {
	query := "SELECT " + workerColumns + " FROM workers"
	if activeOnly {
		query += " WHERE active = ?"
	}
	query += " ORDER BY name, id"

	var rows []workerRow
	var err error
	if activeOnly {
		err = s.db.SelectContext(ctx, &rows, s.q(query), true)
	} else {
		err = s.db.SelectContext(ctx, &rows, s.q(query))
	}
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	out := make([]model.Worker, 0, len(rows))
	for _, r := range rows {
		w, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *SQLStore) GetWorker(ctx context.Context, id string) (model.Worker, error) {
	var r workerRow
	err := s.db.GetContext(ctx, &r, s.q("SELECT "+workerColumns+" FROM workers WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Worker{}, fmt.Errorf("worker %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Worker{}, fmt.Errorf("get worker %s: %w", id, err)
	}
	return r.toModel()
}

func (s *SQLStore) UpsertWorker(ctx context.Context, w model.Worker) error {
	if w.ID == "" {
		return fmt.Errorf("worker id: %w", model.ErrInvalidInput)
	}
	r, err := newWorkerRow(w)
	if err != nil {
		return err
	}
	query := `INSERT INTO workers (` + workerColumns + `)
		VALUES (:id, :name, :email, :color, :active, :capabilities, :coverage, :base_address, :base_lat, :base_lng, :travel_radius_km)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			color = excluded.color,
			active = excluded.active,
			capabilities = excluded.capabilities,
			coverage = excluded.coverage,
			base_address = excluded.base_address,
			base_lat = excluded.base_lat,
			base_lng = excluded.base_lng,
			travel_radius_km = excluded.travel_radius_km`
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("upsert worker %s: %w", w.ID, err)
	}
	return nil
}

// --- JobStore ---

func (s *SQLStore) CreateJob(ctx context.Context, job model.Job) error {
	r, err := newJobRow(job)
	if err != nil {
		return err
	}
	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES (:id, :protocol, :external_ref, :client_name, :client_email, :client_phone, :address, :neighborhood, :postal_code,
			:lat, :lng, :services, :duration_min, :scheduled_date, :scheduled_time, :worker_id, :status, :notes, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	var r jobRow
	err := s.db.GetContext(ctx, &r, s.q("SELECT "+jobColumns+" FROM jobs WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return r.toModel()
}

func (s *SQLStore) UpdateJob(ctx context.Context, job model.Job) error {
	r, err := newJobRow(job)
	if err != nil {
		return err
	}
	query := `UPDATE jobs SET
			external_ref = :external_ref, client_name = :client_name, client_email = :client_email, client_phone = :client_phone,
			address = :address, neighborhood = :neighborhood, postal_code = :postal_code, lat = :lat, lng = :lng,
			services = :services, duration_min = :duration_min, scheduled_date = :scheduled_date, scheduled_time = :scheduled_time,
			worker_id = :worker_id, status = :status, notes = :notes, updated_at = :updated_at
		WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, query, r)
	if err := execRequireRows(res, err, fmt.Errorf("job %s: %w", job.ID, model.ErrNotFound)); err != nil {
		return err
	}
	return nil
}

func (s *SQLStore) ListJobs(ctx context.Context, f JobFilter) ([]model.Job, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.From != nil {
		where = append(where, "scheduled_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "scheduled_date <= ?")
		args = append(args, f.To.String())
	}
	if len(f.WorkerIDs) > 0 {
		where = append(where, "worker_id IN (?)")
		args = append(args, f.WorkerIDs)
	}
	if f.UnassignedOnly {
		where = append(where, "(worker_id IS NULL OR worker_id = '')")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status IN (?)")
		args = append(args, statuses)
	}
	if f.ExternalRef != "" {
		where = append(where, "external_ref = ?")
		args = append(args, f.ExternalRef)
	}
	if f.WithCoordinates {
		where = append(where, "lat IS NOT NULL AND lng IS NOT NULL")
	}

	query := "SELECT " + jobColumns + " FROM jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// Undated and untimed rows sort last on every driver.
	query += " ORDER BY scheduled_date IS NULL, scheduled_date, scheduled_time IS NULL, scheduled_time, created_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]model.Job, 0, len(rows))
	for _, r := range rows {
		j, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *SQLStore) AssignIfPending(ctx context.Context, id string, a Assignment) (model.Job, error) {
	query := `UPDATE jobs
		SET worker_id = ?, scheduled_date = ?, scheduled_time = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND (worker_id IS NULL OR worker_id = '')`
	res, err := s.db.ExecContext(ctx, s.q(query),
		a.WorkerID, a.Date.String(), a.Time.String(), string(model.StatusConfirmed), a.At.UTC(),
		id, string(model.StatusPending))
	if err := execRequireRows(res, err, ErrNoRowsAffected); err != nil {
		if !errors.Is(err, ErrNoRowsAffected) {
			return model.Job{}, fmt.Errorf("assign job %s: %w", id, err)
		}
		// Either the job is gone or someone else moved it first.
		current, getErr := s.GetJob(ctx, id)
		if getErr != nil {
			return model.Job{}, getErr
		}
		return model.Job{}, fmt.Errorf("job %s is %s: %w", id, current.Status, model.ErrConflict)
	}
	return s.GetJob(ctx, id)
}

func (s *SQLStore) CancelActiveByRef(ctx context.Context, ref, keepID string, at time.Time) (int, error) {
	if ref == "" {
		return 0, nil
	}
	query := `UPDATE jobs SET status = ?, updated_at = ?
		WHERE external_ref = ? AND id <> ? AND status IN (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, s.q(query),
		string(model.StatusCanceled), at.UTC(), ref, keepID,
		string(model.StatusPending), string(model.StatusConfirmed), string(model.StatusReserved))
	if err != nil {
		return 0, fmt.Errorf("cancel jobs for %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// --- BlockStore ---

func (s *SQLStore) CreateBlock(ctx context.Context, b model.TimeBlock) error {
	query := `INSERT INTO time_blocks (id, worker_id, block_date, start_time, end_time, reason) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.q(query),
		b.ID, b.WorkerID, b.Date.String(), b.Start.String(), b.End.String(), b.Reason); err != nil {
		return fmt.Errorf("create block %s: %w", b.ID, err)
	}
	return nil
}

func (s *SQLStore) DeleteBlock(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM time_blocks WHERE id = ?"), id)
	return execRequireRows(res, err, fmt.Errorf("block %s: %w", id, model.ErrNotFound))
}

func (s *SQLStore) ListBlocks(ctx context.Context, f BlockFilter) ([]model.TimeBlock, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(f.WorkerIDs) > 0 {
		where = append(where, "worker_id IN (?)")
		args = append(args, f.WorkerIDs)
	}
	if f.From != nil {
		where = append(where, "block_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "block_date <= ?")
		args = append(args, f.To.String())
	}
	query := "SELECT id, worker_id, block_date, start_time, end_time, reason FROM time_blocks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY block_date, start_time, id"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	var rows []blockRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	out := make([]model.TimeBlock, 0, len(rows))
	for _, r := range rows {
		b, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// --- RouteStore ---

func (s *SQLStore) GetRoute(ctx context.Context, kind model.RouteKind, origin, destination string) (model.RouteEntry, error) {
	var e model.RouteEntry
	query := `SELECT kind, origin, destination, distance_km, duration_min, created_at
		FROM route_cache WHERE kind = ? AND origin = ? AND destination = ?`
	err := s.db.GetContext(ctx, &e, s.q(query), string(kind), origin, destination)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RouteEntry{}, fmt.Errorf("route %s %s->%s: %w", kind, origin, destination, model.ErrNotFound)
	}
	if err != nil {
		return model.RouteEntry{}, fmt.Errorf("get route: %w", err)
	}
	return e, nil
}

// InsertRouteIfAbsent uses INSERT ... ON CONFLICT DO NOTHING then reads the
// row back, so a losing writer returns the winner's values.
func (s *SQLStore) InsertRouteIfAbsent(ctx context.Context, e model.RouteEntry) (model.RouteEntry, bool, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	query := `INSERT INTO route_cache (kind, origin, destination, distance_km, duration_min, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, origin, destination) DO NOTHING`
	res, err := s.db.ExecContext(ctx, s.q(query),
		string(e.Kind), e.Origin, e.Destination, e.DistanceKm, e.DurationMin, e.CreatedAt.UTC())
	if err != nil {
		return model.RouteEntry{}, false, fmt.Errorf("insert route: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.RouteEntry{}, false, fmt.Errorf("rows affected: %w", err)
	}
	stored, err := s.GetRoute(ctx, e.Kind, e.Origin, e.Destination)
	if err != nil {
		return model.RouteEntry{}, false, err
	}
	if n == 0 {
		s.logger.Debug(ctx, "route already cached",
			logger.String("kind", string(e.Kind)),
			logger.String("origin", e.Origin),
			logger.String("destination", e.Destination))
	}
	return stored, n > 0, nil
}

func (s *SQLStore) CountRoutes(ctx context.Context) (map[model.RouteKind]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT kind, COUNT(*) AS n FROM route_cache GROUP BY kind"); err != nil {
		return nil, fmt.Errorf("count routes: %w", err)
	}
	out := make(map[model.RouteKind]int, len(rows))
	for _, r := range rows {
		out[model.RouteKind(r.Kind)] = r.Count
	}
	return out, nil
}

// --- PostalCodeStore ---

func (s *SQLStore) GetPostalCode(ctx context.Context, code string) (model.PostalCodeLocation, error) {
	var loc model.PostalCodeLocation
	query := `SELECT postal_code, lat, lng, neighborhood, city, created_at FROM postal_code_locations WHERE postal_code = ?`
	err := s.db.GetContext(ctx, &loc, s.q(query), code)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PostalCodeLocation{}, fmt.Errorf("postal code %s: %w", code, model.ErrNotFound)
	}
	if err != nil {
		return model.PostalCodeLocation{}, fmt.Errorf("get postal code: %w", err)
	}
	return loc, nil
}

func (s *SQLStore) InsertPostalCodeIfAbsent(ctx context.Context, loc model.PostalCodeLocation) (model.PostalCodeLocation, error) {
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = s.now()
	}
	query := `INSERT INTO postal_code_locations (postal_code, lat, lng, neighborhood, city, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (postal_code) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, s.q(query),
		loc.PostalCode, loc.Lat, loc.Lng, loc.Neighborhood, loc.City, loc.CreatedAt.UTC()); err != nil {
		return model.PostalCodeLocation{}, fmt.Errorf("insert postal code: %w", err)
	}
	return s.GetPostalCode(ctx, loc.PostalCode)
}

// --- helpers ---

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
