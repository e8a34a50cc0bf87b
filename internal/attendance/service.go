package attendance

import (
	"context"
	"errors"
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

// Store provides schedule and attendance persistence.
type Store interface {
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	GetAttendance(ctx context.Context, employeeID, scheduleID string) (*model.Attendance, error)
	CreateAttendance(ctx context.Context, a *model.Attendance) error
	UpdateAttendance(ctx context.Context, a *model.Attendance, expected model.AttendanceStatus) error
	DeleteAttendance(ctx context.Context, id string, expected model.AttendanceStatus) error
	ListAttendance(ctx context.Context, from, to time.Time) ([]model.Attendance, error)
}

// Service records check-ins, check-outs and leave.
type Service struct {
	store  Store
	policy Policy
	clock  clock.Clock
	logger zerolog.Logger
}

func NewService(store Store, policy Policy, clk clock.Clock, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		policy: policy,
		clock:  clk,
		logger: logger.With().Str("component", "attendance").Logger(),
	}
}

// Policy returns the grace windows in effect.
func (s *Service) Policy() Policy { return s.policy }

// CheckIn records the employee's arrival for a schedule.
func (s *Service) CheckIn(ctx context.Context, employeeID, scheduleID string) (*model.Attendance, error) {
	schedule, err := s.scheduleFor(ctx, employeeID, scheduleID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	existing, err := s.find(ctx, schedule.EmployeeID, schedule.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch {
		case existing.Status == model.AttendanceOnLeave:
			return nil, apperr.Conflict(apperr.CodeOnLeave, "employee is on leave for this schedule")
		case existing.CheckInTime != nil:
			return nil, apperr.Conflict(apperr.CodeAlreadyCheckedIn, "already checked in at %s", existing.CheckInTime.Format(time.RFC3339))
		case existing.Status == model.AttendanceAbsent:
			return nil, apperr.Conflict(apperr.CodeAttendanceWindowClosed, "attendance already closed as Absent")
		}
	}

	if s.policy.WindowClosed(schedule.TimeSlots, now) {
		return nil, apperr.Conflict(apperr.CodeAttendanceWindowClosed, "check-in window closed at %s",
			schedule.LatestEnd().Add(s.policy.AbsentGrace).Format(time.RFC3339))
	}

	checkIn := now
	status, _ := s.policy.Derive(Input{TimeSlots: schedule.TimeSlots, CheckInTime: &checkIn, Now: now})

	if existing != nil {
		prev := existing.Status
		existing.CheckInTime = &checkIn
		existing.TimeSlots = schedule.TimeSlots
		existing.Status = status
		existing.UpdatedAt = now
		if err := s.store.UpdateAttendance(ctx, existing, prev); err != nil {
			return nil, s.writeError(err)
		}
		s.recorded(existing, "Checked in")
		return existing, nil
	}

	a := &model.Attendance{
		ID:          uuid.NewString(),
		EmployeeID:  schedule.EmployeeID,
		ScheduleID:  schedule.ID,
		Date:        schedule.Date,
		TimeSlots:   schedule.TimeSlots,
		CheckInTime: &checkIn,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateAttendance(ctx, a); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, apperr.Conflict(apperr.CodeAlreadyCheckedIn, "attendance already recorded for this schedule")
		}
		return nil, apperr.Internal(err, "create attendance")
	}
	s.recorded(a, "Checked in")
	return a, nil
}

// CheckOut records the employee's departure and derives the final status.
func (s *Service) CheckOut(ctx context.Context, employeeID, scheduleID string) (*model.Attendance, error) {
	schedule, err := s.scheduleFor(ctx, employeeID, scheduleID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	a, err := s.find(ctx, schedule.EmployeeID, schedule.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case a == nil:
		return nil, apperr.Conflict(apperr.CodeNotCheckedIn, "no check-in recorded for this schedule")
	case a.Status == model.AttendanceOnLeave:
		return nil, apperr.Conflict(apperr.CodeOnLeave, "employee is on leave for this schedule")
	case a.CheckOutTime != nil:
		return nil, apperr.Conflict(apperr.CodeAlreadyCheckedOut, "already checked out at %s", a.CheckOutTime.Format(time.RFC3339))
	case a.CheckInTime == nil:
		return nil, apperr.Conflict(apperr.CodeNotCheckedIn, "no check-in recorded for this schedule")
	case a.Status == model.AttendanceAbsent || s.policy.WindowClosed(a.TimeSlots, now):
		return nil, apperr.Conflict(apperr.CodeAttendanceWindowClosed, "check-out window closed")
	}

	prev := a.Status
	checkOut := now
	a.CheckOutTime = &checkOut
	a.Status, _ = s.policy.Derive(Input{TimeSlots: a.TimeSlots, CheckInTime: a.CheckInTime, CheckOutTime: &checkOut, Now: now})
	a.UpdatedAt = now
	if err := s.store.UpdateAttendance(ctx, a, prev); err != nil {
		return nil, s.writeError(err)
	}
	s.recorded(a, "Checked out")
	return a, nil
}

// MarkOnLeave records leave for the schedule's employee. Leave cannot replace
// a real attendance outcome; marking twice is a no-op.
func (s *Service) MarkOnLeave(ctx context.Context, scheduleID string) (*model.Attendance, error) {
	schedule, err := s.scheduleFor(ctx, "", scheduleID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	existing, err := s.find(ctx, schedule.EmployeeID, schedule.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case model.AttendanceOnLeave:
			return existing, nil
		case model.AttendanceInvalid:
			existing.Status = model.AttendanceOnLeave
			existing.UpdatedAt = now
			if err := s.store.UpdateAttendance(ctx, existing, model.AttendanceInvalid); err != nil {
				return nil, s.writeError(err)
			}
			s.recorded(existing, "Marked on leave")
			return existing, nil
		default:
			return nil, apperr.Conflict(apperr.CodeAlreadyRecorded, "attendance already recorded as %s", existing.Status)
		}
	}

	a := &model.Attendance{
		ID:         uuid.NewString(),
		EmployeeID: schedule.EmployeeID,
		ScheduleID: schedule.ID,
		Date:       schedule.Date,
		TimeSlots:  schedule.TimeSlots,
		Status:     model.AttendanceOnLeave,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateAttendance(ctx, a); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, apperr.Conflict(apperr.CodeAlreadyRecorded, "attendance already recorded for this schedule")
		}
		return nil, apperr.Internal(err, "create attendance")
	}
	s.recorded(a, "Marked on leave")
	return a, nil
}

// ResetLeave removes an On-Leave record so attendance can be recorded again.
func (s *Service) ResetLeave(ctx context.Context, scheduleID string) error {
	schedule, err := s.scheduleFor(ctx, "", scheduleID)
	if err != nil {
		return err
	}
	a, err := s.find(ctx, schedule.EmployeeID, schedule.ID)
	if err != nil {
		return err
	}
	if a == nil {
		return apperr.NotFound(apperr.CodeAttendanceNotFound, "no attendance for schedule %s", scheduleID)
	}
	if a.Status != model.AttendanceOnLeave {
		return apperr.Conflict(apperr.CodeInvalidTransition, "attendance is %s, not On-Leave", a.Status)
	}
	if err := s.store.DeleteAttendance(ctx, a.ID, model.AttendanceOnLeave); err != nil {
		return s.writeError(err)
	}
	s.logger.Info().Str("schedule_id", scheduleID).Str("employee_id", a.EmployeeID).Msg("Leave reset")
	return nil
}

// Get returns the schedule's attendance with its status re-derived at the current time.
func (s *Service) Get(ctx context.Context, scheduleID string) (*model.Attendance, error) {
	schedule, err := s.scheduleFor(ctx, "", scheduleID)
	if err != nil {
		return nil, err
	}
	a, err := s.find(ctx, schedule.EmployeeID, schedule.ID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound(apperr.CodeAttendanceNotFound, "no attendance for schedule %s", scheduleID)
	}
	a.Status = s.policy.Recompute(a, s.clock.Now())
	return a, nil
}

// ListMonth returns the attendance records dated within the month containing month.
func (s *Service) ListMonth(ctx context.Context, month time.Time) ([]model.Attendance, error) {
	m := month.UTC()
	from := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
	records, err := s.store.ListAttendance(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, apperr.Internal(err, "list attendance")
	}
	now := s.clock.Now()
	for i := range records {
		records[i].Status = s.policy.Recompute(&records[i], now)
	}
	return records, nil
}

// scheduleFor loads the schedule and, when employeeID is set, checks ownership.
func (s *Service) scheduleFor(ctx context.Context, employeeID, scheduleID string) (*model.Schedule, error) {
	var v apperr.Validation
	if strings.TrimSpace(scheduleID) == "" {
		v.Add("scheduleId", "is required")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeScheduleNotFound, "schedule %s not found", scheduleID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "get schedule")
	}
	if employeeID != "" && schedule.EmployeeID != employeeID {
		return nil, apperr.NotFound(apperr.CodeScheduleNotFound, "schedule %s not found for employee %s", scheduleID, employeeID)
	}
	return schedule, nil
}

func (s *Service) find(ctx context.Context, employeeID, scheduleID string) (*model.Attendance, error) {
	a, err := s.store.GetAttendance(ctx, employeeID, scheduleID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "get attendance")
	}
	return a, nil
}

func (s *Service) writeError(err error) error {
	if errors.Is(err, db.ErrConflict) {
		return apperr.New(apperr.KindStaleState, apperr.CodeInvalidTransition, "attendance changed concurrently, reload and retry")
	}
	return apperr.Internal(err, "update attendance")
}

func (s *Service) recorded(a *model.Attendance, msg string) {
	metrics.IncAttendanceRecorded(string(a.Status))
	s.logger.Info().
		Str("employee_id", a.EmployeeID).
		Str("schedule_id", a.ScheduleID).
		Str("status", string(a.Status)).
		Msg(msg)
}
