package booking

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinic/internal/apperr"
	"clinic/internal/db"
	"clinic/internal/metrics"
	"clinic/internal/model"
)

var (
	doctorIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	bhytPattern     = regexp.MustCompile(`^[A-Z]{2}\d{13}$|^\d{10}$`)
)

const maxSymptomsLen = 2000

// CreateRequest is a patient's request for one slot.
type CreateRequest struct {
	ProfileID       string
	DoctorID        string
	Department      string
	AppointmentDate time.Time
	TimeSlot        model.TimeSlot
	Symptoms        string
	Type            model.AppointmentType
	BHYTCode        string
}

func (r *CreateRequest) validate() error {
	var v apperr.Validation
	if strings.TrimSpace(r.ProfileID) == "" {
		v.Add("profileId", "is required")
	}
	if r.DoctorID == "" {
		v.Add("doctorId", "is required")
	} else if !doctorIDPattern.MatchString(r.DoctorID) {
		v.Add("doctorId", "is not a valid id")
	}
	if strings.TrimSpace(r.Department) == "" {
		v.Add("department", "is required")
	}
	if r.AppointmentDate.IsZero() {
		v.Add("appointmentDate", "is required")
	}
	switch {
	case r.TimeSlot.StartTime.IsZero() || r.TimeSlot.EndTime.IsZero():
		v.Add("timeSlot", "startTime and endTime are required")
	case !r.TimeSlot.StartTime.Before(r.TimeSlot.EndTime):
		v.Add("timeSlot", "startTime must be before endTime")
	}
	if !r.Type.Valid() {
		v.Add("type", "must be Online or Offline")
	}
	if r.BHYTCode != "" && !bhytPattern.MatchString(r.BHYTCode) {
		v.Add("bhytCode", "must be 2 uppercase letters followed by 13 digits, or 10 digits")
	}
	if len(r.Symptoms) > maxSymptomsLen {
		v.Add("symptoms", "is too long")
	}
	return v.Err()
}

// Book claims the requested slot for ownerID and creates the appointment.
// The slot claim and the insert commit together; if another request claims
// the slot first the result is a StaleState error with code SlotUnavailable.
func (s *Service) Book(ctx context.Context, ownerID string, req CreateRequest) (*model.Appointment, error) {
	if err := req.validate(); err != nil {
		metrics.IncAppointmentBooked("invalid")
		return nil, err
	}

	day := model.DayStart(req.AppointmentDate)
	schedules, err := s.store.SchedulesForDay(ctx, req.DoctorID, day, true)
	if err != nil {
		metrics.IncAppointmentBooked("error")
		return nil, apperr.Internal(err, "load schedules")
	}
	if len(schedules) == 0 {
		metrics.IncAppointmentBooked("schedule_not_found")
		return nil, apperr.NotFound(apperr.CodeScheduleNotFound, "doctor %s has no schedule on %s", req.DoctorID, day.Format(time.DateOnly))
	}

	var schedule *model.Schedule
	var slot model.TimeSlot
	for i := range schedules {
		if idx, ok := schedules[i].FindSlot(req.TimeSlot.StartTime, req.TimeSlot.EndTime); ok {
			schedule = &schedules[i]
			slot = schedules[i].TimeSlots[idx]
			break
		}
	}
	if schedule == nil {
		metrics.IncAppointmentBooked("slot_not_found")
		return nil, apperr.NotFound(apperr.CodeSlotNotFound, "no slot %s-%s on %s",
			req.TimeSlot.StartTime.UTC().Format("15:04:05"), req.TimeSlot.EndTime.UTC().Format("15:04:05"), day.Format(time.DateOnly))
	}
	if slot.Status == model.SlotBooked {
		metrics.IncAppointmentBooked("slot_unavailable")
		return nil, apperr.Conflict(apperr.CodeSlotUnavailable, "slot is already booked")
	}

	now := s.clock.Now()
	if !slot.StartTime.After(now) {
		metrics.IncAppointmentBooked("past")
		return nil, apperr.Conflict(apperr.CodeAppointmentPast, "slot has already started")
	}

	a := &model.Appointment{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		ProfileID:       strings.TrimSpace(req.ProfileID),
		DoctorID:        req.DoctorID,
		Department:      strings.TrimSpace(req.Department),
		AppointmentDate: day,
		Type:            req.Type,
		Status:          req.Type.InitialStatus(),
		TimeSlot:        model.TimeSlot{StartTime: slot.StartTime, EndTime: slot.EndTime, Status: model.SlotBooked},
		ScheduleID:      schedule.ID,
		Symptoms:        strings.TrimSpace(req.Symptoms),
		BHYTCode:        req.BHYTCode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.BookSlot(ctx, a); err != nil {
		if errors.Is(err, db.ErrSlotTaken) {
			metrics.IncAppointmentBooked("lost_race")
			return nil, apperr.New(apperr.KindStaleState, apperr.CodeSlotUnavailable,
				"slot was booked by another request, refresh availability and pick another slot")
		}
		metrics.IncAppointmentBooked("error")
		return nil, apperr.Internal(err, "book slot")
	}

	s.invalidate(ctx, a.DoctorID)
	metrics.IncAppointmentBooked("created")
	s.logger.Info().
		Str("appointment_id", a.ID).
		Str("code", a.Code).
		Str("doctor_id", a.DoctorID).
		Time("start", a.TimeSlot.StartTime).
		Str("status", string(a.Status)).
		Msg("Appointment booked")
	return a, nil
}
