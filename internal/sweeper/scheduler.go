package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"clinic/internal/clock"
)

const lockKey = "sweeper:absent"

// Locker guards a run against other server instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error)
}

// SchedulerConfig holds configuration for the daily sweep.
type SchedulerConfig struct {
	// Timezone the daily time is expressed in (e.g. "Asia/Ho_Chi_Minh").
	Timezone string
	// DailyHour is the hour (0-23) when the sweep runs.
	DailyHour int
	// DailyMinute is the minute (0-59) when the sweep runs.
	DailyMinute int
	// CheckInterval is how often to check whether it's time to run.
	CheckInterval time.Duration
	// LockTTL bounds how long one instance holds the run lock.
	LockTTL time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Timezone:      "UTC",
		DailyHour:     23,
		DailyMinute:   30,
		CheckInterval: time.Minute,
		LockTTL:       5 * time.Minute,
	}
}

// Scheduler runs the sweeper once a day at the configured local time.
type Scheduler struct {
	config   SchedulerConfig
	sweeper  *Sweeper
	locker   Locker
	clock    clock.Clock
	location *time.Location
	logger   zerolog.Logger

	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD of last run
}

// NewScheduler creates a daily scheduler. locker may be nil when only one
// instance runs.
func NewScheduler(config SchedulerConfig, sweeper *Sweeper, locker Locker, clk clock.Clock, logger *zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", config.Timezone, err)
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 5 * time.Minute
	}
	return &Scheduler{
		config:   config,
		sweeper:  sweeper,
		locker:   locker,
		clock:    clk,
		location: loc,
		logger:   logger.With().Str("component", "sweep_scheduler").Logger(),
	}, nil
}

// Start blocks, checking every CheckInterval, until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info().
		Str("timezone", s.config.Timezone).
		Str("daily_time", s.formatTime()).
		Msg("Sweep scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sweep scheduler stopped")
			return nil
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// checkAndRun runs the sweep if the daily time has been reached and it has not
// run yet today. It reports whether a sweep was attempted.
func (s *Scheduler) checkAndRun(ctx context.Context) bool {
	now := s.clock.Now().In(s.location)
	today := now.Format(time.DateOnly)

	s.mu.Lock()
	alreadyRan := s.lastRunDate == today
	s.mu.Unlock()
	if alreadyRan {
		return false
	}

	// Catch up if the exact minute was missed (restart, long tick).
	if now.Hour()*60+now.Minute() < s.config.DailyHour*60+s.config.DailyMinute {
		return false
	}

	s.mu.Lock()
	s.lastRunDate = today
	s.mu.Unlock()

	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error().Err(err).Str("date", today).Msg("Daily sweep failed")
	}
	return true
}

// RunNow runs a sweep immediately, holding the distributed lock if one is configured.
func (s *Scheduler) RunNow(ctx context.Context) (Result, error) {
	if s.locker != nil {
		ok, release, err := s.locker.TryLock(ctx, lockKey, s.config.LockTTL)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Sweep lock unavailable, running unlocked")
		} else if !ok {
			s.logger.Info().Msg("Sweep already running elsewhere")
			return Result{}, nil
		} else {
			defer release()
		}
	}
	return s.sweeper.Run(ctx)
}

func (s *Scheduler) formatTime() string {
	return time.Date(2000, 1, 1, s.config.DailyHour, s.config.DailyMinute, 0, 0, time.UTC).Format("15:04")
}
