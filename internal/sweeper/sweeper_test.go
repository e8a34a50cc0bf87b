package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic/internal/attendance"
	"clinic/internal/cache"
	"clinic/internal/clock"
	"clinic/internal/db"
	"clinic/internal/model"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 1, 10, hour, min, 0, 0, time.UTC)
}

type fixture struct {
	store   *db.DB
	clock   *clock.Fake
	sweeper *Sweeper
	records *attendance.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "clinic.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewFake(at(7, 0))
	return &fixture{
		store:   store,
		clock:   clk,
		sweeper: New(store, attendance.DefaultPolicy(), clk, &logger),
		records: attendance.NewService(store, attendance.DefaultPolicy(), clk, &logger),
	}
}

func (f *fixture) schedule(t *testing.T, employeeID string, startHour, endHour int, active bool) *model.Schedule {
	t.Helper()
	s := &model.Schedule{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Department: "nursing",
		Date:       at(0, 0),
		TimeSlots: []model.TimeSlot{
			{StartTime: at(startHour, 0), EndTime: at(endHour, 0), Status: model.SlotAvailable},
		},
		Active:    active,
		CreatedAt: at(0, 0),
		UpdatedAt: at(0, 0),
	}
	require.NoError(t, f.store.CreateSchedule(context.Background(), s, nil))
	return s
}

func (f *fixture) status(t *testing.T, s *model.Schedule) model.AttendanceStatus {
	t.Helper()
	a, err := f.store.GetAttendance(context.Background(), s.EmployeeID, s.ID)
	require.NoError(t, err)
	return a.Status
}

func TestRun_MarksMissedAndAbandoned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missed := f.schedule(t, "emp-1", 8, 16, true)
	abandoned := f.schedule(t, "emp-2", 8, 16, true)
	finished := f.schedule(t, "emp-3", 8, 16, true)
	evening := f.schedule(t, "emp-4", 18, 22, true)
	disabled := f.schedule(t, "emp-5", 8, 16, false)

	f.clock.Set(at(8, 0))
	_, err := f.records.CheckIn(ctx, "emp-2", abandoned.ID)
	require.NoError(t, err)
	_, err = f.records.CheckIn(ctx, "emp-3", finished.ID)
	require.NoError(t, err)
	f.clock.Set(at(16, 0))
	_, err = f.records.CheckOut(ctx, "emp-3", finished.ID)
	require.NoError(t, err)

	f.clock.Set(at(16, 10))
	res, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res, "nothing is due before the absent grace has passed")

	f.clock.Set(at(17, 0))
	res, err = f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Flipped: 1}, res)

	assert.Equal(t, model.AttendanceAbsent, f.status(t, missed))
	assert.Equal(t, model.AttendanceAbsent, f.status(t, abandoned))
	assert.Equal(t, model.AttendancePresent, f.status(t, finished))

	_, err = f.store.GetAttendance(ctx, "emp-4", evening.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = f.store.GetAttendance(ctx, "emp-5", disabled.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t, "emp-1", 8, 16, true)

	f.clock.Set(at(20, 0))
	first, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)

	records, err := f.store.ListAttendance(ctx, at(0, 0), at(0, 0).AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_NeverTouchesOnLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.schedule(t, "emp-1", 8, 16, true)

	leave, err := f.records.MarkOnLeave(ctx, s.ID)
	require.NoError(t, err)

	f.clock.Set(at(23, 0))
	res, err := f.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	got, err := f.store.GetAttendance(ctx, "emp-1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttendanceOnLeave, got.Status)
	assert.Equal(t, leave.ID, got.ID)
}

func TestScheduler_RunsOncePerDay(t *testing.T) {
	f := newFixture(t)
	logger := zerolog.Nop()
	s := f.schedule(t, "emp-1", 8, 16, true)

	cfg := DefaultSchedulerConfig()
	cfg.DailyHour, cfg.DailyMinute = 20, 0
	sched, err := NewScheduler(cfg, f.sweeper, nil, f.clock, &logger)
	require.NoError(t, err)
	ctx := context.Background()

	f.clock.Set(at(19, 59))
	assert.False(t, sched.checkAndRun(ctx))

	f.clock.Set(at(20, 5))
	assert.True(t, sched.checkAndRun(ctx))
	assert.Equal(t, model.AttendanceAbsent, f.status(t, s))

	f.clock.Set(at(22, 0))
	assert.False(t, sched.checkAndRun(ctx))

	f.clock.Set(at(20, 0).AddDate(0, 0, 1))
	assert.True(t, sched.checkAndRun(ctx))
}

func TestScheduler_BadTimezone(t *testing.T) {
	f := newFixture(t)
	logger := zerolog.Nop()
	cfg := DefaultSchedulerConfig()
	cfg.Timezone = "Mars/Olympus"

	_, err := NewScheduler(cfg, f.sweeper, nil, f.clock, &logger)
	assert.Error(t, err)
}

func TestScheduler_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	logger := zerolog.Nop()
	s := f.schedule(t, "emp-1", 8, 16, true)

	mr := miniredis.RunT(t)
	locker := cache.NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	sched, err := NewScheduler(DefaultSchedulerConfig(), f.sweeper, locker, f.clock, &logger)
	require.NoError(t, err)
	ctx := context.Background()
	f.clock.Set(at(23, 0))

	ok, release, err := locker.TryLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := sched.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	_, err = f.store.GetAttendance(ctx, "emp-1", s.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	release()
	res, err = sched.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.False(t, mr.Exists("lock:"+lockKey))
}
