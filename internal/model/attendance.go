package model

import "time"

type AttendanceStatus string

const (
	AttendanceInvalid     AttendanceStatus = "Invalid"
	AttendanceAbsent      AttendanceStatus = "Absent"
	AttendanceOnLeave     AttendanceStatus = "On-Leave"
	AttendanceCheckedIn   AttendanceStatus = "Checked-In"
	AttendancePresent     AttendanceStatus = "Present"
	AttendanceLateArrival AttendanceStatus = "Late-Arrival"
	AttendanceLeftEarly   AttendanceStatus = "Left-Early"
	AttendanceLeftLate    AttendanceStatus = "Left-Late"
)

var attendanceStatuses = []AttendanceStatus{
	AttendanceInvalid,
	AttendanceAbsent,
	AttendanceOnLeave,
	AttendanceCheckedIn,
	AttendancePresent,
	AttendanceLateArrival,
	AttendanceLeftEarly,
	AttendanceLeftLate,
}

// AttendanceStatuses lists every status in display order.
func AttendanceStatuses() []AttendanceStatus {
	out := make([]AttendanceStatus, len(attendanceStatuses))
	copy(out, attendanceStatuses)
	return out
}

func (s AttendanceStatus) Valid() bool {
	for _, v := range attendanceStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Recorded reports whether s is a real attendance outcome that leave may not override.
func (s AttendanceStatus) Recorded() bool {
	return s != AttendanceInvalid && s != AttendanceOnLeave && s != ""
}

type Attendance struct {
	ID           string           `json:"id"`
	EmployeeID   string           `json:"employeeId"`
	ScheduleID   string           `json:"scheduleId"`
	Date         time.Time        `json:"date"`
	TimeSlots    []TimeSlot       `json:"timeSlots"`
	CheckInTime  *time.Time       `json:"checkInTime,omitempty"`
	CheckOutTime *time.Time       `json:"checkOutTime,omitempty"`
	Status       AttendanceStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}
