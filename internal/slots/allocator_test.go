package slots

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic/internal/apperr"
	"clinic/internal/cache"
	"clinic/internal/clock"
	"clinic/internal/db"
	"clinic/internal/model"
)

func at(day, hour, min int) time.Time {
	return time.Date(2025, 1, day, hour, min, 0, 0, time.UTC)
}

func ts(day, sh, sm, eh, em int) model.TimeSlot {
	return model.TimeSlot{StartTime: at(day, sh, sm), EndTime: at(day, eh, em)}
}

func newAllocator(t *testing.T) (*Allocator, *db.DB) {
	t.Helper()
	logger := zerolog.Nop()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "clinic.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewAllocator(store, clock.NewFake(at(1, 9, 0)), &logger), store
}

func TestCreateSchedule_RebasesOntoDate(t *testing.T) {
	a, _ := newAllocator(t)
	ict := time.FixedZone("ICT", 7*3600)

	s, err := a.CreateSchedule(context.Background(), CreateRequest{
		EmployeeID: "doc-1",
		Department: "cardiology",
		Date:       at(10, 15, 30),
		TimeSlots: []model.TimeSlot{{
			StartTime: time.Date(2024, 6, 1, 15, 0, 12, 0, ict),
			EndTime:   time.Date(2024, 6, 1, 15, 30, 0, 0, ict),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, at(10, 0, 0), s.Date)
	require.Len(t, s.TimeSlots, 1)
	assert.Equal(t, at(10, 8, 0), s.TimeSlots[0].StartTime)
	assert.Equal(t, at(10, 8, 30), s.TimeSlots[0].EndTime)
	assert.Equal(t, model.SlotAvailable, s.TimeSlots[0].Status)
	assert.True(t, s.Active)
}

func TestCreateSchedule_Validation(t *testing.T) {
	a, _ := newAllocator(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{
			name:  "missing employee",
			req:   CreateRequest{Department: "x", Date: at(10, 0, 0), TimeSlots: []model.TimeSlot{ts(10, 8, 0, 9, 0)}},
			field: "employeeId",
		},
		{
			name:  "no slots",
			req:   CreateRequest{EmployeeID: "doc-1", Department: "x", Date: at(10, 0, 0)},
			field: "timeSlots",
		},
		{
			name:  "start after end",
			req:   CreateRequest{EmployeeID: "doc-1", Department: "x", Date: at(10, 0, 0), TimeSlots: []model.TimeSlot{ts(10, 9, 0, 8, 0)}},
			field: "timeSlots[0]",
		},
		{
			name: "crosses midnight after rebase",
			req: CreateRequest{EmployeeID: "doc-1", Department: "x", Date: at(10, 0, 0), TimeSlots: []model.TimeSlot{
				{StartTime: at(10, 23, 30), EndTime: at(11, 0, 30)},
			}},
			field: "timeSlots[0]",
		},
		{
			name:  "bad template",
			req:   CreateRequest{EmployeeID: "doc-1", Department: "x", Date: at(10, 0, 0), Template: &Template{StartTime: "8", EndTime: "16:00", SlotDuration: 30}},
			field: "template",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.CreateSchedule(ctx, tt.req)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Contains(t, e.Fields, tt.field)
		})
	}
}

func TestCreateSchedule_OverlapIsAllOrNothing(t *testing.T) {
	a, store := newAllocator(t)
	ctx := context.Background()

	_, err := a.CreateSchedule(ctx, CreateRequest{
		EmployeeID: "doc-1", Department: "cardiology", Date: at(10, 0, 0),
		TimeSlots: []model.TimeSlot{ts(10, 8, 0, 9, 0)},
	})
	require.NoError(t, err)

	// Second request has one clean slot and one colliding slot.
	_, err = a.CreateSchedule(ctx, CreateRequest{
		EmployeeID: "doc-1", Department: "cardiology", Date: at(10, 0, 0),
		TimeSlots: []model.TimeSlot{ts(10, 10, 0, 11, 0), ts(10, 8, 30, 9, 30)},
	})
	assert.ErrorIs(t, err, &apperr.Error{Code: apperr.CodeSlotOverlap})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	all, err := store.SchedulesForDay(ctx, "doc-1", at(10, 0, 0), false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Touching slots are fine, and another doctor is unaffected.
	_, err = a.CreateSchedule(ctx, CreateRequest{
		EmployeeID: "doc-1", Department: "cardiology", Date: at(10, 0, 0),
		TimeSlots: []model.TimeSlot{ts(10, 9, 0, 9, 30)},
	})
	require.NoError(t, err)
	_, err = a.CreateSchedule(ctx, CreateRequest{
		EmployeeID: "doc-2", Department: "cardiology", Date: at(10, 0, 0),
		TimeSlots: []model.TimeSlot{ts(10, 8, 0, 9, 0)},
	})
	require.NoError(t, err)
}

func TestCreateSchedule_OverlapWithinRequest(t *testing.T) {
	a, store := newAllocator(t)
	ctx := context.Background()

	_, err := a.CreateSchedule(ctx, CreateRequest{
		EmployeeID: "doc-1", Department: "cardiology", Date: at(10, 0, 0),
		TimeSlots: []model.TimeSlot{ts(10, 8, 0, 9, 0), ts(10, 8, 45, 9, 15)},
	})
	assert.Equal(t, apperr.CodeSlotOverlap, apperr.CodeOf(err))

	all, err := store.SchedulesForDay(ctx, "doc-1", at(10, 0, 0), false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateSchedule_FromTemplate(t *testing.T) {
	a, _ := newAllocator(t)

	s, err := a.CreateSchedule(context.Background(), CreateRequest{
		EmployeeID: "doc-1", Department: "cardiology", Date: at(10, 0, 0),
		Template: &Template{StartTime: "08:00", EndTime: "12:00", BreakStart: "10:00", BreakEnd: "10:30", SlotDuration: 30},
	})
	require.NoError(t, err)
	assert.Len(t, s.TimeSlots, 7)
	assert.Equal(t, at(10, 10, 30), s.TimeSlots[4].StartTime)
}

func TestAvailableInWeek_SortedAndBounded(t *testing.T) {
	a, _ := newAllocator(t)
	ctx := context.Background()

	for _, req := range []CreateRequest{
		{EmployeeID: "doc-1", Department: "d", Date: at(12, 0, 0), TimeSlots: []model.TimeSlot{ts(12, 9, 0, 9, 30)}},
		{EmployeeID: "doc-1", Department: "d", Date: at(10, 0, 0), TimeSlots: []model.TimeSlot{ts(10, 14, 0, 14, 30), ts(10, 8, 0, 8, 30)}},
		{EmployeeID: "doc-1", Department: "d", Date: at(16, 0, 0), TimeSlots: []model.TimeSlot{ts(16, 8, 0, 8, 30)}},
		{EmployeeID: "doc-1", Department: "d", Date: at(17, 0, 0), TimeSlots: []model.TimeSlot{ts(17, 8, 0, 8, 30)}},
		{EmployeeID: "doc-2", Department: "d", Date: at(11, 0, 0), TimeSlots: []model.TimeSlot{ts(11, 8, 0, 8, 30)}},
	} {
		_, err := a.CreateSchedule(ctx, req)
		require.NoError(t, err)
	}

	var starts []time.Time
	for v, err := range a.AvailableInWeek(ctx, "doc-1", at(10, 0, 0)) {
		require.NoError(t, err)
		starts = append(starts, v.StartTime)
	}
	assert.Equal(t, []time.Time{at(10, 8, 0), at(10, 14, 0), at(12, 9, 0), at(16, 8, 0)}, starts)

	// Restartable: a second pass sees the same data.
	count := 0
	for range a.AvailableInWeek(ctx, "doc-1", at(10, 0, 0)) {
		count++
	}
	assert.Equal(t, 4, count)
}

func TestAvailableInWeek_HidesInactiveSchedules(t *testing.T) {
	a, _ := newAllocator(t)
	ctx := context.Background()

	s, err := a.CreateSchedule(ctx, CreateRequest{
		EmployeeID: "doc-1", Department: "d", Date: at(10, 0, 0), TimeSlots: []model.TimeSlot{ts(10, 8, 0, 8, 30)},
	})
	require.NoError(t, err)

	got, err := a.SetActive(ctx, s.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Active)

	week, err := a.WeekSlots(ctx, "doc-1", at(10, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, week)

	_, err = a.SetActive(ctx, "missing", true)
	assert.Equal(t, apperr.CodeScheduleNotFound, apperr.CodeOf(err))
}

// countingStore records how many days were fetched.
type countingStore struct {
	Store
	calls int
	err   error
}

func (c *countingStore) AvailableSlotsOnDay(_ context.Context, doctorID string, day time.Time) ([]model.SlotView, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []model.SlotView{{DoctorID: doctorID, Date: day, StartTime: day.Add(8 * time.Hour), EndTime: day.Add(9 * time.Hour)}}, nil
}

func TestAvailableInWeek_Lazy(t *testing.T) {
	logger := zerolog.Nop()
	store := &countingStore{}
	a := NewAllocator(store, clock.Real(), &logger)

	for v, err := range a.AvailableInWeek(context.Background(), "doc-1", at(10, 0, 0)) {
		require.NoError(t, err)
		if v.Date.Equal(at(11, 0, 0)) {
			break
		}
	}
	assert.Equal(t, 2, store.calls)
}

func TestAvailableInWeek_StopsOnError(t *testing.T) {
	logger := zerolog.Nop()
	store := &countingStore{err: errors.New("disk")}
	a := NewAllocator(store, clock.Real(), &logger)

	_, err := a.WeekSlots(context.Background(), "doc-1", at(10, 0, 0))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, 1, store.calls)
}

type memCache struct {
	weeks       map[string][]model.SlotView
	versions    map[string]int64
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{weeks: map[string][]model.SlotView{}, versions: map[string]int64{}}
}

func (m *memCache) key(doctorID string, version int64, start time.Time) string {
	return fmt.Sprintf("%s|%d|%s", doctorID, version, start.Format(time.DateOnly))
}

func (m *memCache) GetWeek(_ context.Context, doctorID string, start time.Time) ([]model.SlotView, int64, bool) {
	ver := m.versions[doctorID]
	v, ok := m.weeks[m.key(doctorID, ver, start)]
	return v, ver, ok
}

func (m *memCache) SetWeek(_ context.Context, doctorID string, version int64, start time.Time, slots []model.SlotView) {
	m.weeks[m.key(doctorID, version, start)] = slots
}

func (m *memCache) Invalidate(_ context.Context, doctorID string) {
	m.invalidated = append(m.invalidated, doctorID)
	m.versions[doctorID]++
}

func TestWeekSlots_UsesCache(t *testing.T) {
	logger := zerolog.Nop()
	store := &countingStore{}
	a := NewAllocator(store, clock.Real(), &logger)
	mc := newMemCache()
	a.UseCache(mc)

	first, err := a.WeekSlots(context.Background(), "doc-1", at(10, 12, 0))
	require.NoError(t, err)
	assert.Len(t, first, WeekDays)
	assert.Equal(t, WeekDays, store.calls)

	second, err := a.WeekSlots(context.Background(), "doc-1", at(10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, WeekDays, store.calls)

	a.Invalidate(context.Background(), "doc-1")
	_, err = a.WeekSlots(context.Background(), "doc-1", at(10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2*WeekDays, store.calls)
	assert.Equal(t, []string{"doc-1"}, mc.invalidated)
}

// bookingDuringReadStore books the only slot while the week is being read,
// the way a concurrent booking would.
type bookingDuringReadStore struct {
	Store
	cache  Cache
	booked bool
}

func (b *bookingDuringReadStore) AvailableSlotsOnDay(ctx context.Context, doctorID string, day time.Time) ([]model.SlotView, error) {
	if !day.Equal(at(10, 0, 0)) {
		return nil, nil
	}
	if b.booked {
		return nil, nil
	}
	view := model.SlotView{DoctorID: doctorID, Date: day, StartTime: at(10, 8, 0), EndTime: at(10, 8, 30), Status: model.SlotAvailable}
	b.booked = true
	b.cache.Invalidate(ctx, doctorID)
	return []model.SlotView{view}, nil
}

func TestWeekSlots_InvalidationDuringFillIsNotCached(t *testing.T) {
	logger := zerolog.Nop()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	slotCache := cache.NewSlotCache(client, 5*time.Minute, &logger)
	store := &bookingDuringReadStore{cache: slotCache}
	a := NewAllocator(store, clock.Real(), &logger)
	a.UseCache(slotCache)

	first, err := a.WeekSlots(context.Background(), "doc-1", at(10, 0, 0))
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := a.WeekSlots(context.Background(), "doc-1", at(10, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, second)
}
