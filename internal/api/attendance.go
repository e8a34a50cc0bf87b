package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clinic/internal/apperr"
	"clinic/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AttendanceRequest is the body of check-in, check-out and on-leave calls.
// EmployeeID may only differ from the caller for admins.
type AttendanceRequest struct {
	EmployeeID string `json:"employeeId,omitempty"`
	ScheduleID string `json:"scheduleId"`
}

// POST /attendance/checkIn
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	req, employeeID, ok := s.attendanceRequest(w, r)
	if !ok {
		return
	}
	a, err := s.deps.Attendance.CheckIn(r.Context(), employeeID, req.ScheduleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// PUT /attendance/checkOut
func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	req, employeeID, ok := s.attendanceRequest(w, r)
	if !ok {
		return
	}
	a, err := s.deps.Attendance.CheckOut(r.Context(), employeeID, req.ScheduleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// attendanceRequest decodes the body and resolves whose attendance is being
// recorded. Admins may act for anyone; everyone else only for themselves.
func (s *Server) attendanceRequest(w http.ResponseWriter, r *http.Request) (AttendanceRequest, string, bool) {
	var req AttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return req, "", false
	}
	actor := actorFrom(r.Context())
	switch {
	case actor.Is(RoleAdmin):
		// empty means the schedule's own employee
		return req, req.EmployeeID, true
	case req.EmployeeID != "" && req.EmployeeID != actor.ID:
		s.writeError(w, r, apperr.Forbidden("cannot record attendance for another employee"))
		return req, "", false
	}
	return req, actor.ID, true
}

// POST /attendance/onLeave
func (s *Server) handleMarkOnLeave(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.deps.Attendance.MarkOnLeave(r.Context(), req.ScheduleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DELETE /attendance/onLeave/{scheduleId}
func (s *Server) handleResetLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Attendance.ResetLeave(r.Context(), chi.URLParam(r, "scheduleId")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetAttendance returns the record with its status derived at the
// current time. Employees only see their own.
// GET /attendance/{scheduleId}
func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "scheduleId")
	a, err := s.deps.Attendance.Get(r.Context(), scheduleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor := actorFrom(r.Context())
	if a.EmployeeID != actor.ID && !actor.Is(RoleScheduler, RoleAdmin) {
		s.writeError(w, r, apperr.NotFound(apperr.CodeAttendanceNotFound, "no attendance for schedule %s", scheduleID))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleAttendanceReport exports one month of attendance as a workbook.
// GET /attendance/report?month=YYYY-MM
func (s *Server) handleAttendanceReport(w http.ResponseWriter, r *http.Request) {
	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		var v apperr.Validation
		v.Add("month", "invalid format; expected YYYY-MM")
		s.writeError(w, r, v.Err())
		return
	}

	records, err := s.deps.Attendance.ListMonth(r.Context(), month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteMonthlyAttendance(&buf, month, records); err != nil {
		s.writeError(w, r, apperr.Internal(err, "render attendance report"))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance_%s.xlsx"`, month.Format("2006_01")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleSweep runs the absent sweep immediately.
// POST /admin/sweep
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		s.writeError(w, r, apperr.Internal(fmt.Errorf("sweeper not configured"), "sweep"))
		return
	}
	res, err := s.deps.Sweeper.RunNow(r.Context())
	if err != nil {
		s.writeError(w, r, apperr.Internal(err, "absent sweep"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
