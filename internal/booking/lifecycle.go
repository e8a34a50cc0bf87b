package booking

import (
	"context"
	"errors"
	"strings"

	"clinic/internal/apperr"
	"clinic/internal/db"
	"clinic/internal/events"
	"clinic/internal/metrics"
	"clinic/internal/model"
)

// Get returns an appointment. Non-staff callers only see their own.
func (s *Service) Get(ctx context.Context, actorID string, staff bool, id string) (*model.Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !staff && a.OwnerID != actorID {
		return nil, apperr.NotFound(apperr.CodeAppointmentNotFound, "appointment %s not found", id)
	}
	return a, nil
}

// Cancel handles a cancellation requested by the appointment's owner.
func (s *Service) Cancel(ctx context.Context, actorID, id string) (*model.Appointment, error) {
	a, err := s.Get(ctx, actorID, false, id)
	if err != nil {
		return nil, err
	}

	decision, err := s.policy.Decide(a, s.clock.Now())
	if err != nil {
		return nil, err
	}

	t := db.Transition{From: a.Status, To: decision.Status, ReleaseSlot: decision.ReleaseSlot}
	eventType := events.AppointmentCanceled
	if decision.Status == model.StatusPendingCancel {
		t.PreviousStatus = a.Status
		eventType = events.AppointmentCancelRequest
	}

	updated, released, err := s.apply(ctx, a, t)
	if err != nil {
		return nil, err
	}
	s.publish(eventType, updated, actorID, released)
	return updated, nil
}

// ApproveCancel finalizes a pending cancellation and frees the slot.
func (s *Service) ApproveCancel(ctx context.Context, actorID, id string) (*model.Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPendingCancel {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition, "appointment is %s, not pending_cancel", a.Status)
	}

	updated, released, err := s.apply(ctx, a, db.Transition{From: a.Status, To: model.StatusCanceled, ReleaseSlot: true})
	if err != nil {
		return nil, err
	}
	s.publish(events.AppointmentCancelApproved, updated, actorID, released)
	return updated, nil
}

// DenyCancel returns a pending cancellation to the status it had before.
func (s *Service) DenyCancel(ctx context.Context, actorID, id string) (*model.Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPendingCancel {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition, "appointment is %s, not pending_cancel", a.Status)
	}

	prev := a.PreviousStatus
	if !model.StatusPendingCancel.CanTransition(prev) || prev == model.StatusCanceled {
		prev = a.Type.InitialStatus()
	}

	updated, _, err := s.apply(ctx, a, db.Transition{From: a.Status, To: prev})
	if err != nil {
		return nil, err
	}
	s.publish(events.AppointmentCancelDenied, updated, actorID, false)
	return updated, nil
}

// Confirm accepts a pending appointment and assigns a room. An appointment
// waiting on a cancellation is settled by ApproveCancel or DenyCancel instead.
func (s *Service) Confirm(ctx context.Context, actorID, id, room string) (*model.Appointment, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		var v apperr.Validation
		v.Add("room", "is required")
		return nil, v.Err()
	}

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPendingConfirmation {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition, "appointment is %s, not pending_confirmation", a.Status)
	}
	updated, _, err := s.apply(ctx, a, db.Transition{From: a.Status, To: model.StatusConfirmed, Room: room})
	if err != nil {
		return nil, err
	}
	s.publish(events.AppointmentConfirmed, updated, actorID, false)
	return updated, nil
}

// Reject declines a pending appointment and frees its slot.
func (s *Service) Reject(ctx context.Context, actorID, id string) (*model.Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPendingConfirmation {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition, "appointment is %s, not pending_confirmation", a.Status)
	}
	updated, released, err := s.apply(ctx, a, db.Transition{From: a.Status, To: model.StatusRejected, ReleaseSlot: true})
	if err != nil {
		return nil, err
	}
	s.publish(events.AppointmentRejected, updated, actorID, released)
	return updated, nil
}

// Complete marks a confirmed appointment as done.
func (s *Service) Complete(ctx context.Context, _ string, id string) (*model.Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, _, err := s.apply(ctx, a, db.Transition{From: a.Status, To: model.StatusCompleted})
	return updated, err
}

func (s *Service) load(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeAppointmentNotFound, "appointment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "get appointment")
	}
	return a, nil
}

// apply validates t against the transition table, writes it conditionally on
// the current status and returns the stored result.
func (s *Service) apply(ctx context.Context, a *model.Appointment, t db.Transition) (*model.Appointment, bool, error) {
	if !t.From.CanTransition(t.To) {
		return nil, false, apperr.Conflict(apperr.CodeInvalidTransition, "cannot move appointment from %s to %s", t.From, t.To)
	}
	t.At = s.clock.Now()

	released, err := s.store.TransitionAppointment(ctx, a.ID, t)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, false, apperr.NotFound(apperr.CodeAppointmentNotFound, "appointment %s not found", a.ID)
	case errors.Is(err, db.ErrConflict):
		return nil, false, apperr.New(apperr.KindStaleState, apperr.CodeInvalidTransition,
			"appointment %s changed concurrently, reload and retry", a.ID)
	case err != nil:
		return nil, false, apperr.Internal(err, "update appointment")
	}

	if t.ReleaseSlot {
		if released {
			s.invalidate(ctx, a.DoctorID)
		} else {
			metrics.IncSlotReleaseDiscrepancy()
			s.logger.Warn().
				Str("appointment_id", a.ID).
				Str("doctor_id", a.DoctorID).
				Str("schedule_id", a.ScheduleID).
				Time("date", a.AppointmentDate).
				Time("start", a.TimeSlot.StartTime).
				Msg("Slot release found no booked slot")
		}
	}
	metrics.IncAppointmentTransition(string(t.To))
	s.logger.Info().
		Str("appointment_id", a.ID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("Appointment status changed")

	updated, err := s.load(ctx, a.ID)
	if err != nil {
		return nil, false, err
	}
	return updated, released, nil
}
