// Package schedule holds business hours and the per-day view of who is
// busy when. It is shared by availability, viability and recommendation.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/photodispatch/internal/adapters/repository"
	"github.com/okian/photodispatch/internal/domain/model"
)

// Hours describes the bookable working day.
type Hours struct {
	Open          model.Clock
	WeekdayClose  model.Clock
	SaturdayClose model.Clock
	// SlotStarts are the offered start times in order.
	SlotStarts []model.Clock
	// Granularity is the slot quantum in minutes.
	Granularity int
	// Buffer is the setup and travel allowance added to every job.
	Buffer int
}

// DefaultHours are 08:00-19:00 on weekdays and 08:00-13:00 on Saturdays
// with a lunch gap at 12:00.
func DefaultHours() Hours {
	return Hours{
		Open:          model.At(8, 0),
		WeekdayClose:  model.At(19, 0),
		SaturdayClose: model.At(13, 0),
		SlotStarts: []model.Clock{
			model.At(8, 0), model.At(9, 0), model.At(10, 0), model.At(11, 0),
			model.At(13, 0), model.At(14, 0), model.At(15, 0), model.At(16, 0), model.At(17, 0), model.At(18, 0),
		},
		Granularity: 30,
		Buffer:      10,
	}
}

// ParseHours builds Hours from HH:MM strings.
func ParseHours(open, weekdayClose, saturdayClose string, starts []string, granularity, buffer int) (Hours, error) {
	h := Hours{Granularity: granularity, Buffer: buffer}
	var err error
	if h.Open, err = model.ParseClock(open); err != nil {
		return Hours{}, fmt.Errorf("day_open: %w", err)
	}
	if h.WeekdayClose, err = model.ParseClock(weekdayClose); err != nil {
		return Hours{}, fmt.Errorf("weekday_close: %w", err)
	}
	if h.SaturdayClose, err = model.ParseClock(saturdayClose); err != nil {
		return Hours{}, fmt.Errorf("saturday_close: %w", err)
	}
	for _, s := range starts {
		c, err := model.ParseClock(s)
		if err != nil {
			return Hours{}, fmt.Errorf("slot_starts: %w", err)
		}
		h.SlotStarts = append(h.SlotStarts, c)
	}
	sort.Slice(h.SlotStarts, func(i, j int) bool { return h.SlotStarts[i] < h.SlotStarts[j] })
	return h, nil
}

// Closed reports whether no work happens on d.
func (h Hours) Closed(d model.Date) bool {
	return d.Weekday() == time.Sunday
}

// Window returns the working window of d. ok is false on closed days.
func (h Hours) Window(d model.Date) (model.Interval, bool) {
	if h.Closed(d) {
		return model.Interval{}, false
	}
	end := h.WeekdayClose
	if d.Weekday() == time.Saturday {
		end = h.SaturdayClose
	}
	return model.Interval{Start: h.Open, End: end}, true
}

// Span rounds a raw duration plus buffer up to whole slots. It returns the
// slot count and the normalized minutes.
func (h Hours) Span(rawMinutes int) (slots, minutes int) {
	g := h.Granularity
	if g <= 0 {
		g = 30
	}
	total := rawMinutes + h.Buffer
	slots = (total + g - 1) / g
	if slots < 1 {
		slots = 1
	}
	return slots, slots * g
}

// Covered reports whether the union of intervals spans all of window.
func Covered(window model.Interval, intervals []model.Interval) bool {
	if window.Minutes() <= 0 {
		return true
	}
	sorted := append([]model.Interval(nil), intervals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	reach := window.Start
	for _, iv := range sorted {
		if iv.Start > reach {
			break
		}
		if iv.End > reach {
			reach = iv.End
		}
		if reach >= window.End {
			return true
		}
	}
	return reach >= window.End
}

// Store is what Load reads.
type Store interface {
	repository.JobStore
	repository.BlockStore
}

// OccupyingStatuses are the job states that hold a worker's time.
var OccupyingStatuses = []model.Status{
	model.StatusConfirmed, model.StatusReserved, model.StatusWaiting, model.StatusCompleted,
}

// Day is one worker's commitments on one date.
type Day struct {
	Jobs   []model.Job
	Blocks []model.TimeBlock
}

// Busy returns every occupied interval. Jobs without a time are skipped.
func (d Day) Busy() []model.Interval {
	out := make([]model.Interval, 0, len(d.Jobs)+len(d.Blocks))
	for _, j := range d.Jobs {
		if iv, ok := j.Interval(); ok {
			out = append(out, iv)
		}
	}
	for _, b := range d.Blocks {
		out = append(out, b.Interval())
	}
	return out
}

// Free reports whether iv overlaps nothing.
func (d Day) Free(iv model.Interval) bool {
	for _, busy := range d.Busy() {
		if iv.Overlaps(busy) {
			return false
		}
	}
	return true
}

// BookedMinutes sums job durations.
func (d Day) BookedMinutes() int {
	total := 0
	for _, j := range d.Jobs {
		total += j.DurationMin
	}
	return total
}

// Calendar indexes commitments by date and worker.
type Calendar struct {
	days map[string]map[string]*Day
}

// Load reads occupying jobs and blocks for workerIDs between from and to,
// inclusive. Jobs keep the store order (date, then time).
func Load(ctx context.Context, store Store, from, to model.Date, workerIDs []string) (Calendar, error) {
	cal := Calendar{days: make(map[string]map[string]*Day)}
	if len(workerIDs) == 0 {
		return cal, nil
	}

	jobs, err := store.ListJobs(ctx, repository.JobFilter{
		From:      &from,
		To:        &to,
		WorkerIDs: workerIDs,
		Statuses:  OccupyingStatuses,
	})
	if err != nil {
		return Calendar{}, fmt.Errorf("load jobs: %w", err)
	}
	for _, j := range jobs {
		if j.Date == nil || j.WorkerID == nil {
			continue
		}
		day := cal.entry(*j.Date, *j.WorkerID)
		day.Jobs = append(day.Jobs, j)
	}

	blocks, err := store.ListBlocks(ctx, repository.BlockFilter{WorkerIDs: workerIDs, From: &from, To: &to})
	if err != nil {
		return Calendar{}, fmt.Errorf("load blocks: %w", err)
	}
	for _, b := range blocks {
		day := cal.entry(b.Date, b.WorkerID)
		day.Blocks = append(day.Blocks, b)
	}
	return cal, nil
}

func (c Calendar) entry(d model.Date, workerID string) *Day {
	byWorker, ok := c.days[d.String()]
	if !ok {
		byWorker = make(map[string]*Day)
		c.days[d.String()] = byWorker
	}
	day, ok := byWorker[workerID]
	if !ok {
		day = &Day{}
		byWorker[workerID] = day
	}
	return day
}

// Day returns a worker's commitments on d; the zero Day when there are none.
func (c Calendar) Day(d model.Date, workerID string) Day {
	if day, ok := c.days[d.String()][workerID]; ok {
		return *day
	}
	return Day{}
}
