package model

import "time"

// SlotStatus is the booking state of a single slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "Available"
	SlotBooked    SlotStatus = "Booked"
)

// Valid reports whether s is a known slot status.
func (s SlotStatus) Valid() bool {
	return s == SlotAvailable || s == SlotBooked
}

type TimeSlot struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   time.Time  `json:"endTime"`
	Status    SlotStatus `json:"status"`
}

// Duration returns the length of the slot.
func (t TimeSlot) Duration() time.Duration {
	return t.EndTime.Sub(t.StartTime)
}

// Overlaps uses half-open intervals: touching slots do not overlap.
func (t TimeSlot) Overlaps(other TimeSlot) bool {
	return t.StartTime.Before(other.EndTime) && t.EndTime.After(other.StartTime)
}

// Matches compares slot bounds with sub-second precision dropped.
func (t TimeSlot) Matches(start, end time.Time) bool {
	return Truncate(t.StartTime).Equal(Truncate(start)) && Truncate(t.EndTime).Equal(Truncate(end))
}

// Schedule is one employee's slots for one calendar day.
type Schedule struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employeeId"`
	Department string     `json:"department"`
	Date       time.Time  `json:"date"`
	TimeSlots  []TimeSlot `json:"timeSlots"`
	Active     bool       `json:"active"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// EarliestStart returns the minimum slot start, zero when there are no slots.
func (s *Schedule) EarliestStart() time.Time {
	return EarliestStart(s.TimeSlots)
}

// LatestEnd returns the maximum slot end, zero when there are no slots.
func (s *Schedule) LatestEnd() time.Time {
	return LatestEnd(s.TimeSlots)
}

// FindSlot returns the index of the slot with the given bounds.
func (s *Schedule) FindSlot(start, end time.Time) (int, bool) {
	for i, slot := range s.TimeSlots {
		if slot.Matches(start, end) {
			return i, true
		}
	}
	return -1, false
}

// LatestEnd returns the maximum end time of slots.
func LatestEnd(slots []TimeSlot) time.Time {
	var latest time.Time
	for i, slot := range slots {
		if i == 0 || slot.EndTime.After(latest) {
			latest = slot.EndTime
		}
	}
	return latest
}

// EarliestStart returns the minimum start time of slots.
func EarliestStart(slots []TimeSlot) time.Time {
	var earliest time.Time
	for i, slot := range slots {
		if i == 0 || slot.StartTime.Before(earliest) {
			earliest = slot.StartTime
		}
	}
	return earliest
}

// SlotView is a flattened slot as returned by availability queries.
type SlotView struct {
	ScheduleID string     `json:"scheduleId"`
	DoctorID   string     `json:"doctorId"`
	Department string     `json:"department"`
	Date       time.Time  `json:"date"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    time.Time  `json:"endTime"`
	Status     SlotStatus `json:"status"`
}

// DayStart returns UTC midnight of the calendar day t falls on in UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Rebase moves t onto day, keeping only the UTC hour and minute of t.
func Rebase(day, t time.Time) time.Time {
	d := day.UTC()
	u := t.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), u.Hour(), u.Minute(), 0, 0, time.UTC)
}

// Truncate drops sub-second precision and normalizes to UTC.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
