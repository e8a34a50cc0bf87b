package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clinic/internal/apperr"
	"clinic/internal/model"
	"clinic/internal/slots"
)

// CreateScheduleRequest is the body of POST /schedules. Either TimeSlots or
// Template is given.
type CreateScheduleRequest struct {
	EmployeeID string           `json:"employeeId"`
	Department string           `json:"department"`
	Date       string           `json:"date"` // YYYY-MM-DD
	TimeSlots  []model.TimeSlot `json:"timeSlots,omitempty"`
	Template   *slots.Template  `json:"template,omitempty"`
}

// AvailableSlotsResponse is returned by GET /schedules/{id}/availableSlots.
type AvailableSlotsResponse struct {
	DoctorID  string           `json:"doctorId"`
	StartDate string           `json:"startDate"`
	EndDate   string           `json:"endDate"`
	Slots     []model.SlotView `json:"slots"`
}

// handleCreateSchedule creates a schedule for one employee and day.
// POST /schedules
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	schedule, err := s.deps.Schedules.CreateSchedule(r.Context(), slots.CreateRequest{
		EmployeeID: req.EmployeeID,
		Department: req.Department,
		Date:       date,
		TimeSlots:  req.TimeSlots,
		Template:   req.Template,
		CreatedBy:  actorFrom(r.Context()).ID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, schedule)
}

// handleGetSchedule returns one schedule with its slots.
// GET /schedules/{id}
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.deps.Schedules.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// handleSetScheduleActive enables or disables a schedule.
// PATCH /schedules/{id}/active
func (s *Server) handleSetScheduleActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Active == nil {
		var v apperr.Validation
		v.Add("active", "is required")
		s.writeError(w, r, v.Err())
		return
	}

	schedule, err := s.deps.Schedules.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// handleAvailableSlots lists Available slots of a doctor over seven days.
// GET /schedules/{id}/availableSlots?startDate=YYYY-MM-DD
func (s *Server) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "id")
	start, err := parseDate("startDate", r.URL.Query().Get("startDate"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views, err := s.deps.Schedules.WeekSlots(r.Context(), doctorID, start)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if views == nil {
		views = []model.SlotView{}
	}

	day := model.DayStart(start)
	writeJSON(w, http.StatusOK, AvailableSlotsResponse{
		DoctorID:  doctorID,
		StartDate: day.Format(time.DateOnly),
		EndDate:   day.AddDate(0, 0, slots.WeekDays-1).Format(time.DateOnly),
		Slots:     views,
	})
}
