// Package quota caps sends per outreach account per UTC day in Redis.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyTTL outlives the day so late decrements still find the key.
const keyTTL = 48 * time.Hour

type DailyQuota struct {
	Redis *redis.Client
}

// NewClient parses redisURL and pings the server.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}
	return client, nil
}

func Key(accountID string, now time.Time) string {
	return fmt.Sprintf("outreach:quota:%s:%s", accountID, now.UTC().Format(time.DateOnly))
}

// Reserve takes one unit of today's allowance. It reports false, and takes
// nothing, once limit units are in use.
func (q *DailyQuota) Reserve(ctx context.Context, accountID string, limit int, now time.Time) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	key := Key(accountID, now)

	var incr *redis.IntCmd
	_, err := q.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	if incr.Val() > int64(limit) {
		if err := q.Redis.Decr(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("reserve quota: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Release hands back a unit reserved for a send that definitely did not happen.
func (q *DailyQuota) Release(ctx context.Context, accountID string, now time.Time) error {
	key := Key(accountID, now)
	n, err := q.Redis.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	if n < 0 {
		return q.Redis.Set(ctx, key, 0, keyTTL).Err()
	}
	return nil
}

// Used returns today's reserved count.
func (q *DailyQuota) Used(ctx context.Context, accountID string, now time.Time) (int, error) {
	n, err := q.Redis.Get(ctx, Key(accountID, now)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
