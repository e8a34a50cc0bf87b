// Package slots owns schedule creation and availability queries for doctor time slots.
package slots

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinic/internal/apperr"
	"clinic/internal/clock"
	"clinic/internal/db"
	"clinic/internal/metrics"
	"clinic/internal/model"
)

// WeekDays is the length of the availability window.
const WeekDays = 7

// Store is the persistence needed by the allocator.
type Store interface {
	CreateSchedule(ctx context.Context, s *model.Schedule, check func(existing []model.Schedule) error) error
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	AvailableSlotsOnDay(ctx context.Context, doctorID string, day time.Time) ([]model.SlotView, error)
	SetScheduleActive(ctx context.Context, id string, active bool, now time.Time) error
}

// Cache stores computed availability windows. Implementations must make
// Invalidate hide every window previously stored for the doctor, including
// windows written later under a version observed before the invalidation.
type Cache interface {
	GetWeek(ctx context.Context, doctorID string, start time.Time) ([]model.SlotView, int64, bool)
	SetWeek(ctx context.Context, doctorID string, version int64, start time.Time, slots []model.SlotView)
	Invalidate(ctx context.Context, doctorID string)
}

// Allocator validates and stores schedules and answers availability queries.
type Allocator struct {
	store  Store
	cache  Cache
	clock  clock.Clock
	logger zerolog.Logger
}

func NewAllocator(store Store, clk clock.Clock, logger *zerolog.Logger) *Allocator {
	return &Allocator{
		store:  store,
		clock:  clk,
		logger: logger.With().Str("component", "slots").Logger(),
	}
}

// UseCache enables caching of week availability.
func (a *Allocator) UseCache(c Cache) {
	a.cache = c
}

// CreateRequest describes a new schedule. Either TimeSlots or Template must be set.
type CreateRequest struct {
	EmployeeID string
	Department string
	Date       time.Time
	TimeSlots  []model.TimeSlot
	Template   *Template
	CreatedBy  string
}

// CreateSchedule validates req, rebases every slot onto the schedule date and
// stores the schedule unless one of its slots overlaps another slot of the
// same employee on that day. Nothing is written on failure.
func (a *Allocator) CreateSchedule(ctx context.Context, req CreateRequest) (*model.Schedule, error) {
	day := model.DayStart(req.Date)

	var v apperr.Validation
	if strings.TrimSpace(req.EmployeeID) == "" {
		v.Add("employeeId", "is required")
	}
	if strings.TrimSpace(req.Department) == "" {
		v.Add("department", "is required")
	}
	if req.Date.IsZero() {
		v.Add("date", "is required")
	}

	input := req.TimeSlots
	if req.Template != nil {
		if len(input) > 0 {
			v.Add("timeSlots", "cannot be combined with a template")
		} else {
			generated, err := req.Template.Generate(day)
			if err != nil {
				v.Add("template", err.Error())
			}
			input = generated
		}
	}
	if len(input) == 0 && !v.HasErrors() {
		v.Add("timeSlots", "must not be empty")
	}

	slots := make([]model.TimeSlot, 0, len(input))
	for i, ts := range input {
		field := fmt.Sprintf("timeSlots[%d]", i)
		if ts.StartTime.IsZero() || ts.EndTime.IsZero() {
			v.Add(field, "startTime and endTime are required")
			continue
		}
		if !ts.StartTime.Before(ts.EndTime) {
			v.Add(field, "startTime must be before endTime")
			continue
		}
		status := ts.Status
		if status == "" {
			status = model.SlotAvailable
		}
		if !status.Valid() {
			v.Add(field, fmt.Sprintf("unknown status %q", ts.Status))
			continue
		}
		rebased := model.TimeSlot{
			StartTime: model.Rebase(day, ts.StartTime),
			EndTime:   model.Rebase(day, ts.EndTime),
			Status:    status,
		}
		if !rebased.StartTime.Before(rebased.EndTime) {
			v.Add(field, "slot must start and end on the same UTC day")
			continue
		}
		slots = append(slots, rebased)
	}
	if err := v.Err(); err != nil {
		metrics.IncScheduleCreated("invalid")
		return nil, err
	}

	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if slots[i].Overlaps(slots[j]) {
				metrics.IncScheduleCreated("overlap")
				return nil, overlapError(slots[j], slots[i])
			}
		}
	}

	now := a.clock.Now()
	s := &model.Schedule{
		ID:         uuid.NewString(),
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		Department: strings.TrimSpace(req.Department),
		Date:       day,
		TimeSlots:  slots,
		Active:     true,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := a.store.CreateSchedule(ctx, s, func(existing []model.Schedule) error {
		if newSlot, existingSlot, ok := FindOverlap(existing, s.TimeSlots); ok {
			return overlapError(newSlot, existingSlot)
		}
		return nil
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			metrics.IncScheduleCreated("overlap")
			return nil, err
		}
		if errors.Is(err, db.ErrConflict) {
			metrics.IncScheduleCreated("overlap")
			return nil, apperr.Conflict(apperr.CodeSlotOverlap, "slot collides with an existing slot")
		}
		metrics.IncScheduleCreated("error")
		return nil, apperr.Internal(err, "create schedule")
	}

	a.invalidate(ctx, s.EmployeeID)
	metrics.IncScheduleCreated("created")
	a.logger.Info().
		Str("schedule_id", s.ID).
		Str("employee_id", s.EmployeeID).
		Time("date", s.Date).
		Int("slots", len(s.TimeSlots)).
		Msg("Schedule created")
	return s, nil
}

// FindOverlap returns the first pair (new, existing) of intersecting slots.
func FindOverlap(existing []model.Schedule, slots []model.TimeSlot) (model.TimeSlot, model.TimeSlot, bool) {
	for _, s := range existing {
		for _, old := range s.TimeSlots {
			for _, ts := range slots {
				if ts.Overlaps(old) {
					return ts, old, true
				}
			}
		}
	}
	return model.TimeSlot{}, model.TimeSlot{}, false
}

func overlapError(newSlot, existing model.TimeSlot) error {
	return apperr.Conflict(apperr.CodeSlotOverlap, "slot %s-%s overlaps %s-%s",
		newSlot.StartTime.Format("15:04"), newSlot.EndTime.Format("15:04"),
		existing.StartTime.Format("15:04"), existing.EndTime.Format("15:04"))
}

// GetSchedule returns a schedule by id.
func (a *Allocator) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	s, err := a.store.GetSchedule(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeScheduleNotFound, "schedule %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "get schedule")
	}
	return s, nil
}

// SetActive soft-enables or disables a schedule. Slots are kept either way.
func (a *Allocator) SetActive(ctx context.Context, id string, active bool) (*model.Schedule, error) {
	err := a.store.SetScheduleActive(ctx, id, active, a.clock.Now())
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeScheduleNotFound, "schedule %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "update schedule")
	}
	s, err := a.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	a.invalidate(ctx, s.EmployeeID)
	a.logger.Info().Str("schedule_id", id).Bool("active", active).Msg("Schedule activity changed")
	return s, nil
}

// AvailableInWeek yields the Available slots of doctorID for the seven days
// starting at startDate, ordered by (date, startTime). Each day is fetched only
// when iteration reaches it; iterating again re-reads the store. Iteration
// stops after the first error is yielded.
func (a *Allocator) AvailableInWeek(ctx context.Context, doctorID string, startDate time.Time) iter.Seq2[model.SlotView, error] {
	first := model.DayStart(startDate)
	return func(yield func(model.SlotView, error) bool) {
		for d := 0; d < WeekDays; d++ {
			day := first.AddDate(0, 0, d)
			views, err := a.store.AvailableSlotsOnDay(ctx, doctorID, day)
			if err != nil {
				yield(model.SlotView{}, apperr.Internal(err, "load slots for %s", day.Format(time.DateOnly)))
				return
			}
			for _, v := range views {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// WeekSlots collects AvailableInWeek, serving from the cache when possible.
func (a *Allocator) WeekSlots(ctx context.Context, doctorID string, startDate time.Time) ([]model.SlotView, error) {
	start := model.DayStart(startDate)
	version := int64(-1)
	if a.cache != nil {
		cached, ver, ok := a.cache.GetWeek(ctx, doctorID, start)
		if ok {
			metrics.IncSlotCache("hit")
			return cached, nil
		}
		metrics.IncSlotCache("miss")
		version = ver
	}

	out := []model.SlotView{}
	for v, err := range a.AvailableInWeek(ctx, doctorID, start) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	if a.cache != nil {
		a.cache.SetWeek(ctx, doctorID, version, start, out)
	}
	return out, nil
}

// Invalidate drops cached availability for doctorID.
func (a *Allocator) Invalidate(ctx context.Context, doctorID string) {
	a.invalidate(ctx, doctorID)
}

func (a *Allocator) invalidate(ctx context.Context, doctorID string) {
	if a.cache != nil {
		a.cache.Invalidate(ctx, doctorID)
	}
}
