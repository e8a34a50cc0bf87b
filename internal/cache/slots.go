// Package cache holds the Redis backed availability cache and job locks.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clinic/internal/model"
)

// SlotCache caches week availability per doctor. Keys embed a per-doctor
// version; bumping the version orphans every cached window of that doctor
// and lets them expire by TTL.
type SlotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewSlotCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *SlotCache {
	return &SlotCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "slot_cache").Logger(),
	}
}

func versionKey(doctorID string) string {
	return "slots:ver:" + doctorID
}

func weekKey(doctorID string, version int64, start time.Time) string {
	return fmt.Sprintf("slots:week:%s:%d:%s", doctorID, version, start.UTC().Format(time.DateOnly))
}

func (c *SlotCache) version(ctx context.Context, doctorID string) (int64, error) {
	v, err := c.redis.Get(ctx, versionKey(doctorID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// GetWeek returns a cached window together with the doctor's version at the
// time of the lookup. A caller that fills the window after a miss must pass
// that version to SetWeek. Any Redis failure is a miss with version -1.
func (c *SlotCache) GetWeek(ctx context.Context, doctorID string, start time.Time) ([]model.SlotView, int64, bool) {
	if c.redis == nil || c.ttl <= 0 {
		return nil, -1, false
	}
	ver, err := c.version(ctx, doctorID)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Slot cache version lookup failed")
		return nil, -1, false
	}
	val, err := c.redis.Get(ctx, weekKey(doctorID, ver, start)).Result()
	if err != nil {
		return nil, ver, false
	}
	var out []model.SlotView
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, ver, false
	}
	return out, ver, true
}

// SetWeek stores a window under version, the value GetWeek observed before
// the window was computed. If the doctor was invalidated in between, the
// write lands under an orphaned key and is never served.
func (c *SlotCache) SetWeek(ctx context.Context, doctorID string, version int64, start time.Time, slots []model.SlotView) {
	if c.redis == nil || c.ttl <= 0 || version < 0 {
		return
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, weekKey(doctorID, version, start), data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("Slot cache write failed")
	}
}

// Invalidate bumps the doctor's version.
func (c *SlotCache) Invalidate(ctx context.Context, doctorID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, versionKey(doctorID)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("doctor_id", doctorID).Msg("Slot cache invalidation failed")
	}
}
