package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinic/internal/model"
)

// CreateSchedule inserts s and its slots. check receives every schedule the
// employee already has on the same day and may veto the insert; both run in
// one write transaction so concurrent creates can't interleave.
func (db *DB) CreateSchedule(ctx context.Context, s *model.Schedule, check func(existing []model.Schedule) error) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if check != nil {
			existing, err := schedulesForDay(ctx, tx, s.EmployeeID, s.Date, false)
			if err != nil {
				return err
			}
			if err := check(existing); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (id, employee_id, department, date, active, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.EmployeeID, s.Department, unix(s.Date), s.Active, s.CreatedBy, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert schedule: %w", ErrConflict)
			}
			return fmt.Errorf("insert schedule: %w", err)
		}

		for i, slot := range s.TimeSlots {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO schedule_slots (schedule_id, slot_index, start_unix, end_unix, status)
				VALUES (?, ?, ?, ?, ?)`,
				s.ID, i, unix(slot.StartTime), unix(slot.EndTime), string(slot.Status),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("insert slot %d: %w", i, ErrConflict)
				}
				return fmt.Errorf("insert slot %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetSchedule returns the schedule with its slots ordered by start time.
func (db *DB) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	s, err := scanSchedule(db.QueryRowContext(ctx, `
		SELECT id, employee_id, department, date, active, created_by, created_at, updated_at
		FROM schedules WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	slots, err := loadSlots(ctx, db, s.ID)
	if err != nil {
		return nil, err
	}
	s.TimeSlots = slots
	return s, nil
}

// SchedulesForDay returns all schedules of an employee on the calendar day of day.
func (db *DB) SchedulesForDay(ctx context.Context, employeeID string, day time.Time, activeOnly bool) ([]model.Schedule, error) {
	return schedulesForDay(ctx, db, employeeID, day, activeOnly)
}

func schedulesForDay(ctx context.Context, q querier, employeeID string, day time.Time, activeOnly bool) ([]model.Schedule, error) {
	query := `
		SELECT id, employee_id, department, date, active, created_by, created_at, updated_at
		FROM schedules WHERE employee_id = ? AND date = ?`
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY created_at, id"

	rows, err := q.QueryContext(ctx, query, employeeID, unix(model.DayStart(day)))
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	var out []model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		slots, err := loadSlots(ctx, q, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].TimeSlots = slots
	}
	return out, nil
}

// AvailableSlotsOnDay returns the Available slots of active schedules for a doctor on one day,
// ordered by start time.
func (db *DB) AvailableSlotsOnDay(ctx context.Context, doctorID string, day time.Time) ([]model.SlotView, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.employee_id, s.department, s.date, sl.start_unix, sl.end_unix, sl.status
		FROM schedule_slots sl
		JOIN schedules s ON s.id = sl.schedule_id
		WHERE s.employee_id = ? AND s.date = ? AND s.active = 1 AND sl.status = ?
		ORDER BY sl.start_unix, sl.end_unix`,
		doctorID, unix(model.DayStart(day)), string(model.SlotAvailable),
	)
	if err != nil {
		return nil, fmt.Errorf("query available slots: %w", err)
	}
	defer rows.Close()

	var out []model.SlotView
	for rows.Next() {
		var v model.SlotView
		var date, start, end int64
		var status string
		if err := rows.Scan(&v.ScheduleID, &v.DoctorID, &v.Department, &date, &start, &end, &status); err != nil {
			return nil, err
		}
		v.Date = fromUnix(date)
		v.StartTime = fromUnix(start)
		v.EndTime = fromUnix(end)
		v.Status = model.SlotStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

// SetScheduleActive soft-enables or disables a schedule.
func (db *DB) SetScheduleActive(ctx context.Context, id string, active bool, now time.Time) error {
	result, err := db.ExecContext(ctx,
		"UPDATE schedules SET active = ?, updated_at = ? WHERE id = ?",
		active, now, id,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ElapsedUnrecordedSchedules returns active schedules whose last slot ended before
// cutoff and that have no attendance row for their employee.
func (db *DB) ElapsedUnrecordedSchedules(ctx context.Context, cutoff time.Time) ([]model.Schedule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.employee_id, s.department, s.date, s.active, s.created_by, s.created_at, s.updated_at
		FROM schedules s
		WHERE s.active = 1
		  AND (SELECT MAX(end_unix) FROM schedule_slots WHERE schedule_id = s.id) < ?
		  AND NOT EXISTS (
			SELECT 1 FROM attendance a WHERE a.schedule_id = s.id AND a.employee_id = s.employee_id
		  )
		ORDER BY s.date, s.id`,
		unix(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("query elapsed schedules: %w", err)
	}
	var out []model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		slots, err := loadSlots(ctx, db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].TimeSlots = slots
	}
	return out, nil
}

// SlotStatus returns the current status of the slot with the given bounds.
func (db *DB) SlotStatus(ctx context.Context, scheduleID string, start, end time.Time) (model.SlotStatus, error) {
	var status string
	err := db.QueryRowContext(ctx,
		"SELECT status FROM schedule_slots WHERE schedule_id = ? AND start_unix = ? AND end_unix = ?",
		scheduleID, unix(start), unix(end),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.SlotStatus(status), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (*model.Schedule, error) {
	var s model.Schedule
	var date int64
	err := r.Scan(&s.ID, &s.EmployeeID, &s.Department, &date, &s.Active, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	s.Date = fromUnix(date)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func loadSlots(ctx context.Context, q querier, scheduleID string) ([]model.TimeSlot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT start_unix, end_unix, status FROM schedule_slots
		WHERE schedule_id = ? ORDER BY start_unix, slot_index`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		var start, end int64
		var status string
		if err := rows.Scan(&start, &end, &status); err != nil {
			return nil, err
		}
		slots = append(slots, model.TimeSlot{
			StartTime: fromUnix(start),
			EndTime:   fromUnix(end),
			Status:    model.SlotStatus(status),
		})
	}
	return slots, rows.Err()
}
