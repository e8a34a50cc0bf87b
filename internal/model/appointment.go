package model

import "time"

type AppointmentType string

const (
	AppointmentOnline  AppointmentType = "Online"
	AppointmentOffline AppointmentType = "Offline"
)

func (t AppointmentType) Valid() bool {
	return t == AppointmentOnline || t == AppointmentOffline
}

// InitialStatus is the status a new appointment of this type starts in.
// Offline appointments are booked at the front desk and need no confirmation.
func (t AppointmentType) InitialStatus() AppointmentStatus {
	if t == AppointmentOffline {
		return StatusConfirmed
	}
	return StatusPendingConfirmation
}

type AppointmentStatus string

const (
	StatusPendingConfirmation AppointmentStatus = "pending_confirmation"
	StatusConfirmed           AppointmentStatus = "confirmed"
	StatusRejected            AppointmentStatus = "rejected"
	StatusCanceled            AppointmentStatus = "canceled"
	StatusPendingCancel       AppointmentStatus = "pending_cancel"
	StatusCompleted           AppointmentStatus = "completed"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPendingConfirmation: {StatusConfirmed, StatusRejected, StatusCanceled, StatusPendingCancel},
	StatusConfirmed:           {StatusCompleted, StatusCanceled, StatusPendingCancel},
	StatusPendingCancel:       {StatusCanceled, StatusPendingConfirmation, StatusConfirmed},
	StatusRejected:            {},
	StatusCanceled:            {},
	StatusCompleted:           {},
}

// CanTransition checks if moving from s to to is allowed.
func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	allowed, ok := appointmentTransitions[s]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s AppointmentStatus) Terminal() bool {
	allowed, ok := appointmentTransitions[s]
	return ok && len(allowed) == 0
}

func (s AppointmentStatus) Valid() bool {
	_, ok := appointmentTransitions[s]
	return ok
}

// HoldsSlot reports whether an appointment in this status keeps its slot booked.
func (s AppointmentStatus) HoldsSlot() bool {
	switch s {
	case StatusPendingConfirmation, StatusConfirmed, StatusPendingCancel, StatusCompleted:
		return true
	default:
		return false
	}
}

type Appointment struct {
	ID              string            `json:"id"`
	Code            string            `json:"code"`
	OwnerID         string            `json:"ownerId"`
	ProfileID       string            `json:"profileId"`
	DoctorID        string            `json:"doctorId"`
	Department      string            `json:"department"`
	AppointmentDate time.Time         `json:"appointmentDate"`
	Type            AppointmentType   `json:"type"`
	Status          AppointmentStatus `json:"status"`
	PreviousStatus  AppointmentStatus `json:"previousStatus,omitempty"`
	TimeSlot        TimeSlot          `json:"timeSlot"`
	ScheduleID      string            `json:"scheduleId"`
	Symptoms        string            `json:"symptoms"`
	BHYTCode        string            `json:"bhytCode,omitempty"`
	Room            string            `json:"room,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// StartsAt is the instant the appointment begins.
func (a *Appointment) StartsAt() time.Time {
	return a.TimeSlot.StartTime
}
