package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTracker keeps the sliding window in a Redis sorted set per source IP,
// scored by event time. It avoids a COUNT query against the event table on
// every evaluation, which matters on the ingestion hot path.
type RedisTracker struct {
	redis  *redis.Client
	window time.Duration
}

// NewRedisTracker creates a tracker that retains observations for the given
// window. Entries older than the window are trimmed on each Observe.
func NewRedisTracker(redisClient *redis.Client, window time.Duration) *RedisTracker {
	return &RedisTracker{
		redis:  redisClient,
		window: window,
	}
}

func (t *RedisTracker) Observe(ctx context.Context, sourceIP string, at time.Time) error {
	key := t.key(sourceIP)
	cutoff := at.Add(-t.window)

	pipe := t.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score: float64(at.UnixNano()),
		// Unique member so simultaneous events from one IP all count.
		Member: uuid.New().String(),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))
	pipe.Expire(ctx, key, t.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record observation: %w", err)
	}

	return nil
}

func (t *RedisTracker) CountSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	key := t.key(sourceIP)
	count, err := t.redis.ZCount(ctx, key, fmt.Sprintf("%d", since.UnixNano()), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return int(count), nil
}

func (t *RedisTracker) key(sourceIP string) string {
	return fmt.Sprintf("velocity:%s", sourceIP)
}
