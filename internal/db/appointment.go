package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clinic/internal/model"
)

// ErrSlotTaken is returned by BookSlot when the slot is no longer Available.
var ErrSlotTaken = fmt.Errorf("slot taken: %w", ErrConflict)

const appointmentCounter = "appointment"

// BookSlot claims the appointment's slot and inserts the appointment in one
// transaction. The claim is a conditional update on the slot's prior status,
// so of any number of concurrent callers for one slot exactly one succeeds.
// a.Code is assigned from the appointment counter.
func (db *DB) BookSlot(ctx context.Context, a *model.Appointment) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE schedule_slots SET status = ?
			WHERE schedule_id = ? AND start_unix = ? AND end_unix = ? AND status = ?
			  AND EXISTS (SELECT 1 FROM schedules WHERE id = ? AND active = 1)`,
			string(model.SlotBooked),
			a.ScheduleID, unix(a.TimeSlot.StartTime), unix(a.TimeSlot.EndTime), string(model.SlotAvailable),
			a.ScheduleID,
		)
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim slot: %w", err)
		}
		if rowsAffected != 1 {
			return ErrSlotTaken
		}

		n, err := nextValue(ctx, tx, appointmentCounter)
		if err != nil {
			return err
		}
		a.Code = fmt.Sprintf("APT-%06d", n)
		a.TimeSlot.Status = model.SlotBooked

		_, err = tx.ExecContext(ctx, `
			INSERT INTO appointments (
				id, code, owner_id, profile_id, doctor_id, department, appointment_date,
				type, status, previous_status, schedule_id, slot_start, slot_end, slot_status,
				symptoms, bhyt_code, room, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Code, a.OwnerID, a.ProfileID, a.DoctorID, a.Department, unix(a.AppointmentDate),
			string(a.Type), string(a.Status), string(a.PreviousStatus), a.ScheduleID,
			unix(a.TimeSlot.StartTime), unix(a.TimeSlot.EndTime), string(a.TimeSlot.Status),
			a.Symptoms, a.BHYTCode, a.Room, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert appointment: %w", ErrConflict)
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
}

// GetAppointment returns the appointment with the given id.
func (db *DB) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	var a model.Appointment
	var date, start, end int64
	var typ, status, prev, slotStatus string
	err := db.QueryRowContext(ctx, `
		SELECT id, code, owner_id, profile_id, doctor_id, department, appointment_date,
		       type, status, previous_status, schedule_id, slot_start, slot_end, slot_status,
		       symptoms, bhyt_code, room, created_at, updated_at
		FROM appointments WHERE id = ?`, id,
	).Scan(
		&a.ID, &a.Code, &a.OwnerID, &a.ProfileID, &a.DoctorID, &a.Department, &date,
		&typ, &status, &prev, &a.ScheduleID, &start, &end, &slotStatus,
		&a.Symptoms, &a.BHYTCode, &a.Room, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	a.AppointmentDate = fromUnix(date)
	a.Type = model.AppointmentType(typ)
	a.Status = model.AppointmentStatus(status)
	a.PreviousStatus = model.AppointmentStatus(prev)
	a.TimeSlot = model.TimeSlot{
		StartTime: fromUnix(start),
		EndTime:   fromUnix(end),
		Status:    model.SlotStatus(slotStatus),
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// Transition describes a conditional appointment status change.
type Transition struct {
	From           model.AppointmentStatus
	To             model.AppointmentStatus
	PreviousStatus model.AppointmentStatus
	// Room is written when non-empty.
	Room string
	// ReleaseSlot frees the appointment's slot (Booked -> Available) in the same transaction.
	ReleaseSlot bool
	At          time.Time
}

// TransitionAppointment applies t if the appointment is still in t.From.
// It reports whether the slot was released; a false value with ReleaseSlot set
// means the slot was missing or not Booked.
func (db *DB) TransitionAppointment(ctx context.Context, id string, t Transition) (bool, error) {
	released := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var scheduleID string
		var start, end int64
		err := tx.QueryRowContext(ctx,
			"SELECT schedule_id, slot_start, slot_end FROM appointments WHERE id = ?", id,
		).Scan(&scheduleID, &start, &end)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}

		slotStatus := model.SlotBooked
		if t.ReleaseSlot {
			slotStatus = model.SlotAvailable
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET status = ?, previous_status = ?,
			    room = CASE WHEN ? <> '' THEN ? ELSE room END,
			    slot_status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(t.To), string(t.PreviousStatus), t.Room, t.Room, string(slotStatus), t.At, id, string(t.From),
		)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return fmt.Errorf("appointment %s not in %s: %w", id, t.From, ErrConflict)
		}

		if !t.ReleaseSlot {
			return nil
		}
		result, err = tx.ExecContext(ctx, `
			UPDATE schedule_slots SET status = ?
			WHERE schedule_id = ? AND start_unix = ? AND end_unix = ? AND status = ?`,
			string(model.SlotAvailable), scheduleID, start, end, string(model.SlotBooked),
		)
		if err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return err
		}
		released = rowsAffected == 1
		return nil
	})
	return released, err
}

// CountAppointmentsBySlot counts appointments holding the given slot in one of statuses.
func (db *DB) CountAppointmentsBySlot(ctx context.Context, scheduleID string, start, end time.Time, statuses ...model.AppointmentStatus) (int, error) {
	query := "SELECT COUNT(*) FROM appointments WHERE schedule_id = ? AND slot_start = ? AND slot_end = ?"
	args := []any{scheduleID, unix(start), unix(end)}
	if len(statuses) > 0 {
		query += " AND status IN ("
		for i, s := range statuses {
			if i > 0 {
				query += ", "
			}
			query += "?"
			args = append(args, string(s))
		}
		query += ")"
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
