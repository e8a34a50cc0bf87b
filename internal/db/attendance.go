package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinic/internal/model"
)

const attendanceColumns = `id, employee_id, schedule_id, date, time_slots, check_in, check_out, status, created_at, updated_at`

// GetAttendance returns the attendance record of an employee for a schedule.
func (db *DB) GetAttendance(ctx context.Context, employeeID, scheduleID string) (*model.Attendance, error) {
	return scanAttendance(db.QueryRowContext(ctx,
		"SELECT "+attendanceColumns+" FROM attendance WHERE employee_id = ? AND schedule_id = ?",
		employeeID, scheduleID,
	))
}

// CreateAttendance inserts a. ErrConflict is returned if the employee already
// has a record for the schedule.
func (db *DB) CreateAttendance(ctx context.Context, a *model.Attendance) error {
	slots, err := json.Marshal(a.TimeSlots)
	if err != nil {
		return fmt.Errorf("encode time slots: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO attendance (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EmployeeID, a.ScheduleID, unix(a.Date), string(slots),
		nullUnixNano(a.CheckInTime), nullUnixNano(a.CheckOutTime), string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert attendance: %w", ErrConflict)
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// InsertAttendanceIfAbsent inserts a unless a record for the same employee and
// schedule exists. It reports whether a row was written.
func (db *DB) InsertAttendanceIfAbsent(ctx context.Context, a *model.Attendance) (bool, error) {
	slots, err := json.Marshal(a.TimeSlots)
	if err != nil {
		return false, fmt.Errorf("encode time slots: %w", err)
	}
	result, err := db.ExecContext(ctx, `
		INSERT INTO attendance (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, schedule_id) DO NOTHING`,
		a.ID, a.EmployeeID, a.ScheduleID, unix(a.Date), string(slots),
		nullUnixNano(a.CheckInTime), nullUnixNano(a.CheckOutTime), string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateAttendance writes the timestamps and status of a, provided the stored
// status still equals expected.
func (db *DB) UpdateAttendance(ctx context.Context, a *model.Attendance, expected model.AttendanceStatus) error {
	result, err := db.ExecContext(ctx, `
		UPDATE attendance SET check_in = ?, check_out = ?, status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		nullUnixNano(a.CheckInTime), nullUnixNano(a.CheckOutTime), string(a.Status), a.UpdatedAt,
		a.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attendance %s not in %s: %w", a.ID, expected, ErrConflict)
	}
	return nil
}

// DeleteAttendance removes the record if its status still equals expected.
func (db *DB) DeleteAttendance(ctx context.Context, id string, expected model.AttendanceStatus) error {
	result, err := db.ExecContext(ctx,
		"DELETE FROM attendance WHERE id = ? AND status = ?", id, string(expected),
	)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attendance %s not in %s: %w", id, expected, ErrConflict)
	}
	return nil
}

// OpenCheckIns returns Checked-In records that have no check-out.
func (db *DB) OpenCheckIns(ctx context.Context) ([]model.Attendance, error) {
	return db.listAttendance(ctx,
		"SELECT "+attendanceColumns+" FROM attendance WHERE status = ? AND check_in IS NOT NULL AND check_out IS NULL ORDER BY date, id",
		string(model.AttendanceCheckedIn),
	)
}

// ListAttendance returns records whose date is in [from, to).
func (db *DB) ListAttendance(ctx context.Context, from, to time.Time) ([]model.Attendance, error) {
	return db.listAttendance(ctx,
		"SELECT "+attendanceColumns+" FROM attendance WHERE date >= ? AND date < ? ORDER BY date, employee_id, id",
		unix(from), unix(to),
	)
}

func (db *DB) listAttendance(ctx context.Context, query string, args ...any) ([]model.Attendance, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAttendance(r rowScanner) (*model.Attendance, error) {
	var a model.Attendance
	var date int64
	var slots, status string
	var checkIn, checkOut sql.NullInt64
	err := r.Scan(&a.ID, &a.EmployeeID, &a.ScheduleID, &date, &slots, &checkIn, &checkOut, &status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attendance: %w", err)
	}
	if err := json.Unmarshal([]byte(slots), &a.TimeSlots); err != nil {
		return nil, fmt.Errorf("decode time slots: %w", err)
	}
	a.Date = fromUnix(date)
	a.CheckInTime = fromNullUnixNano(checkIn)
	a.CheckOutTime = fromNullUnixNano(checkOut)
	a.Status = model.AttendanceStatus(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
