// Package sweeper closes out attendance for schedules whose window has elapsed.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinic/internal/attendance"
	"clinic/internal/clock"
	"clinic/internal/db"
	"clinic/internal/metrics"
	"clinic/internal/model"
)

// Store is the persistence the sweeper needs.
type Store interface {
	ElapsedUnrecordedSchedules(ctx context.Context, cutoff time.Time) ([]model.Schedule, error)
	InsertAttendanceIfAbsent(ctx context.Context, a *model.Attendance) (bool, error)
	OpenCheckIns(ctx context.Context) ([]model.Attendance, error)
	UpdateAttendance(ctx context.Context, a *model.Attendance, expected model.AttendanceStatus) error
}

// Result counts the records a run wrote.
type Result struct {
	Created int `json:"created"`
	Flipped int `json:"flipped"`
}

// Sweeper marks missed schedules and abandoned check-ins as Absent.
type Sweeper struct {
	store  Store
	policy attendance.Policy
	clock  clock.Clock
	logger zerolog.Logger
}

func New(store Store, policy attendance.Policy, clk clock.Clock, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		policy: policy,
		clock:  clk,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run performs one sweep. Running it again with no new elapsed schedules
// writes nothing. On-Leave records are never selected.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	now := s.clock.Now()
	var res Result

	schedules, err := s.store.ElapsedUnrecordedSchedules(ctx, now.Add(-s.policy.AbsentGrace))
	if err != nil {
		return res, err
	}
	for i := range schedules {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sc := &schedules[i]
		created, err := s.store.InsertAttendanceIfAbsent(ctx, &model.Attendance{
			ID:         uuid.NewString(),
			EmployeeID: sc.EmployeeID,
			ScheduleID: sc.ID,
			Date:       sc.Date,
			TimeSlots:  sc.TimeSlots,
			Status:     model.AttendanceAbsent,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		}
	}

	open, err := s.store.OpenCheckIns(ctx)
	if err != nil {
		return res, err
	}
	for i := range open {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		a := &open[i]
		if !s.policy.WindowClosed(a.TimeSlots, now) {
			continue
		}
		a.Status = model.AttendanceAbsent
		a.UpdatedAt = now
		err := s.store.UpdateAttendance(ctx, a, model.AttendanceCheckedIn)
		if errors.Is(err, db.ErrConflict) {
			// checked out or changed since it was listed
			continue
		}
		if err != nil {
			return res, err
		}
		res.Flipped++
	}

	metrics.AddSweeperRecords("created", res.Created)
	metrics.AddSweeperRecords("flipped", res.Flipped)
	s.logger.Info().
		Int("created", res.Created).
		Int("flipped", res.Flipped).
		Dur("duration", time.Since(start)).
		Msg("Absent sweep finished")
	return res, nil
}
