package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func slot(startH, startM, endH, endM int) TimeSlot {
	return TimeSlot{
		StartTime: datetime(2025, 1, 10, startH, startM),
		EndTime:   datetime(2025, 1, 10, endH, endM),
		Status:    SlotAvailable,
	}
}

func TestTimeSlot_Overlaps(t *testing.T) {
	existing := slot(10, 0, 14, 0)

	// No overlap - touching before
	assert.False(t, existing.Overlaps(slot(8, 0, 10, 0)))
	// No overlap - touching after
	assert.False(t, existing.Overlaps(slot(14, 0, 16, 0)))
	// Overlap - starts during
	assert.True(t, existing.Overlaps(slot(12, 0, 16, 0)))
	// Overlap - contained
	assert.True(t, existing.Overlaps(slot(11, 0, 12, 0)))
	// Overlap - contains
	assert.True(t, existing.Overlaps(slot(9, 0, 15, 0)))
}

func TestTimeSlot_MatchesTruncatesSubSecond(t *testing.T) {
	s := slot(8, 0, 8, 30)

	assert.True(t, s.Matches(s.StartTime.Add(400*time.Millisecond), s.EndTime.Add(999*time.Millisecond)))
	assert.False(t, s.Matches(s.StartTime.Add(time.Second), s.EndTime))
}

func TestSchedule_Bounds(t *testing.T) {
	s := Schedule{TimeSlots: []TimeSlot{slot(13, 0, 16, 0), slot(8, 0, 12, 0)}}

	assert.Equal(t, datetime(2025, 1, 10, 8, 0), s.EarliestStart())
	assert.Equal(t, datetime(2025, 1, 10, 16, 0), s.LatestEnd())

	idx, ok := s.FindSlot(datetime(2025, 1, 10, 8, 0), datetime(2025, 1, 10, 12, 0))
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = s.FindSlot(datetime(2025, 1, 10, 8, 0), datetime(2025, 1, 10, 11, 0))
	assert.False(t, ok)

	empty := Schedule{}
	assert.True(t, empty.LatestEnd().IsZero())
}

func TestRebase(t *testing.T) {
	day := datetime(2025, 1, 10, 0, 0)
	ict := time.FixedZone("ICT", 7*3600)

	// 08:15:42 local ICT is 01:15 UTC on the same day.
	got := Rebase(day, time.Date(2024, 12, 31, 8, 15, 42, 5, ict))
	assert.Equal(t, datetime(2025, 1, 10, 1, 15), got)

	// 02:00 ICT on Jan 11 is 19:00 UTC on Jan 10; only hour and minute survive.
	got = Rebase(day, time.Date(2025, 1, 11, 2, 0, 0, 0, ict))
	assert.Equal(t, datetime(2025, 1, 10, 19, 0), got)
}

func TestDayStart(t *testing.T) {
	ict := time.FixedZone("ICT", 7*3600)
	assert.Equal(t, datetime(2025, 1, 9, 0, 0), DayStart(time.Date(2025, 1, 10, 3, 0, 0, 0, ict)))
	assert.Equal(t, datetime(2025, 1, 10, 0, 0), DayStart(datetime(2025, 1, 10, 23, 59)))
}

func TestAppointmentStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusPendingConfirmation, StatusConfirmed, true},
		{StatusPendingConfirmation, StatusRejected, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusPendingCancel, true},
		{StatusPendingCancel, StatusCanceled, true},
		{StatusPendingCancel, StatusConfirmed, true},
		{StatusCanceled, StatusConfirmed, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusRejected, StatusPendingConfirmation, false},
		{StatusConfirmed, StatusPendingConfirmation, false},
		{AppointmentStatus("unknown"), StatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusPendingCancel.Terminal())
	assert.False(t, AppointmentStatus("unknown").Valid())
}

func TestAppointmentType_InitialStatus(t *testing.T) {
	assert.Equal(t, StatusPendingConfirmation, AppointmentOnline.InitialStatus())
	assert.Equal(t, StatusConfirmed, AppointmentOffline.InitialStatus())
	assert.False(t, AppointmentType("Phone").Valid())
}

func TestAttendanceStatus_Recorded(t *testing.T) {
	assert.False(t, AttendanceInvalid.Recorded())
	assert.False(t, AttendanceOnLeave.Recorded())
	assert.True(t, AttendanceCheckedIn.Recorded())
	assert.True(t, AttendanceAbsent.Recorded())
	assert.Len(t, AttendanceStatuses(), 8)
}
