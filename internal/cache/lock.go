package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out short-lived exclusive locks so that only one process
// runs a periodic job at a time.
type Locker struct {
	redis *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{redis: client}
}

// TryLock acquires key for ttl. The returned function releases the lock if it
// is still held by this caller.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil || !ok {
		return false, func() {}, err
	}
	release := func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.redis, []string{"lock:" + key}, token).Err()
	}
	return true, release, nil
}
