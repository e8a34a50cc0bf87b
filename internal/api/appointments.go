package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinic/internal/booking"
	"clinic/internal/model"
)

// CreateAppointmentRequest is the body of POST /appointments.
type CreateAppointmentRequest struct {
	ProfileID       string                `json:"profileId"`
	DoctorID        string                `json:"doctorId"`
	Department      string                `json:"department"`
	AppointmentDate string                `json:"appointmentDate"`
	TimeSlot        model.TimeSlot        `json:"timeSlot"`
	Symptoms        string                `json:"symptoms"`
	Type            model.AppointmentType `json:"type"`
	BHYTCode        string                `json:"bhytCode,omitempty"`
}

// ConfirmRequest is the body of POST /appointments/{id}/confirm.
type ConfirmRequest struct {
	Room string `json:"room"`
}

var staffRoles = []Role{RoleReceptionist, RoleDoctor, RoleAdmin}

// handleCreateAppointment books a slot for the caller.
// POST /appointments
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := parseDate("appointmentDate", req.AppointmentDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	appt, err := s.deps.Bookings.Book(r.Context(), actorFrom(r.Context()).ID, booking.CreateRequest{
		ProfileID:       req.ProfileID,
		DoctorID:        req.DoctorID,
		Department:      req.Department,
		AppointmentDate: date,
		TimeSlot:        req.TimeSlot,
		Symptoms:        req.Symptoms,
		Type:            req.Type,
		BHYTCode:        req.BHYTCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// handleGetAppointment returns an appointment to its owner or to staff.
// GET /appointments/{id}
func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	appt, err := s.deps.Bookings.Get(r.Context(), actor.ID, actor.Is(staffRoles...), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// POST /appointments/{id}/cancel
func (s *Server) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.Cancel)
}

// POST /appointments/{id}/cancel/approve
func (s *Server) handleApproveCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.ApproveCancel)
}

// POST /appointments/{id}/cancel/deny
func (s *Server) handleDenyCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.DenyCancel)
}

// POST /appointments/{id}/reject
func (s *Server) handleRejectAppointment(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.Reject)
}

// POST /appointments/{id}/complete
func (s *Server) handleCompleteAppointment(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.deps.Bookings.Complete)
}

// handleConfirmAppointment confirms a pending appointment and assigns a room.
// POST /appointments/{id}/confirm
func (s *Server) handleConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.transition(w, r, func(ctx context.Context, actorID, id string) (*model.Appointment, error) {
		return s.deps.Bookings.Confirm(ctx, actorID, id, req.Room)
	})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, id string) (*model.Appointment, error)) {
	appt, err := fn(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
