package booking

import (
	"time"

	"clinic/internal/apperr"
	"clinic/internal/model"
)

// DefaultCancelThreshold is how far ahead a cancellation takes effect without approval.
const DefaultCancelThreshold = 24 * time.Hour

// Policy holds the cancellation rules.
type Policy struct {
	CancelThreshold time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.CancelThreshold <= 0 {
		p.CancelThreshold = DefaultCancelThreshold
	}
	return p
}

// Decision is the outcome of a patient cancellation request.
type Decision struct {
	Status      model.AppointmentStatus
	ReleaseSlot bool
}

// Decide applies the cancellation rules to a at now:
// more than CancelThreshold ahead cancels and frees the slot, otherwise the
// request waits for approval and the slot stays booked.
func (p Policy) Decide(a *model.Appointment, now time.Time) (Decision, error) {
	p = p.withDefaults()

	switch a.Status {
	case model.StatusCanceled, model.StatusPendingCancel:
		return Decision{}, apperr.Conflict(apperr.CodeAlreadyCanceled, "appointment is already %s", a.Status)
	case model.StatusRejected, model.StatusCompleted:
		return Decision{}, apperr.Conflict(apperr.CodeInvalidTransition, "appointment is %s and cannot be canceled", a.Status)
	}

	start := a.StartsAt()
	if start.Before(now) {
		return Decision{}, apperr.Conflict(apperr.CodeAppointmentPast, "appointment started at %s", start.Format(time.RFC3339))
	}

	if start.Sub(now) > p.CancelThreshold {
		return Decision{Status: model.StatusCanceled, ReleaseSlot: true}, nil
	}
	return Decision{Status: model.StatusPendingCancel}, nil
}
