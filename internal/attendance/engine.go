// Package attendance derives and records employee attendance against schedules.
package attendance

import (
	"time"

	"clinic/internal/model"
)

// Policy holds the grace windows used to classify attendance.
type Policy struct {
	// CheckInGrace is how long after the first slot starts a check-in still counts as on time.
	CheckInGrace time.Duration
	// CheckOutGrace bounds early and late check-outs around the last slot end.
	CheckOutGrace time.Duration
	// AbsentGrace is how long after the last slot ends an open or missing check-in turns Absent.
	AbsentGrace time.Duration
}

// DefaultPolicy returns the standard grace windows.
func DefaultPolicy() Policy {
	return Policy{
		CheckInGrace:  time.Minute,
		CheckOutGrace: time.Minute,
		AbsentGrace:   10 * time.Minute,
	}
}

// Input is everything Derive looks at.
type Input struct {
	TimeSlots    []model.TimeSlot
	CheckInTime  *time.Time
	CheckOutTime *time.Time
	Now          time.Time
}

// Derive computes the attendance status. The second result is false when no
// record should exist yet (nothing recorded and the window is still open).
// Derive never yields On-Leave.
func (p Policy) Derive(in Input) (model.AttendanceStatus, bool) {
	if len(in.TimeSlots) == 0 {
		return model.AttendanceInvalid, true
	}

	earliestStart := model.EarliestStart(in.TimeSlots)
	latestEnd := model.LatestEnd(in.TimeSlots)
	windowClosed := in.Now.After(latestEnd.Add(p.AbsentGrace))

	if in.CheckInTime == nil {
		if windowClosed {
			return model.AttendanceAbsent, true
		}
		return "", false
	}

	if in.CheckOutTime == nil {
		if windowClosed {
			return model.AttendanceAbsent, true
		}
		return model.AttendanceCheckedIn, true
	}

	checkIn, checkOut := *in.CheckInTime, *in.CheckOutTime
	late := checkIn.After(earliestStart.Add(p.CheckInGrace))
	early := checkOut.Before(latestEnd.Add(-p.CheckOutGrace))
	over := checkOut.After(latestEnd.Add(p.CheckOutGrace))

	switch {
	case late:
		return model.AttendanceLateArrival, true
	case early:
		return model.AttendanceLeftEarly, true
	case over:
		return model.AttendanceLeftLate, true
	default:
		return model.AttendancePresent, true
	}
}

// Recompute derives the status of an existing record at now. On-Leave records
// keep their status.
func (p Policy) Recompute(a *model.Attendance, now time.Time) model.AttendanceStatus {
	if a.Status == model.AttendanceOnLeave {
		return model.AttendanceOnLeave
	}
	status, ok := p.Derive(Input{
		TimeSlots:    a.TimeSlots,
		CheckInTime:  a.CheckInTime,
		CheckOutTime: a.CheckOutTime,
		Now:          now,
	})
	if !ok {
		return a.Status
	}
	return status
}

// WindowClosed reports whether now is past the point where a missing or open
// check-in becomes Absent.
func (p Policy) WindowClosed(slots []model.TimeSlot, now time.Time) bool {
	if len(slots) == 0 {
		return false
	}
	return now.After(model.LatestEnd(slots).Add(p.AbsentGrace))
}
