package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript trims the rolling window, checks the cap and the minimum
// interval, and records the post, all in one round trip.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])
local min_interval = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if cap > 0 and redis.call('ZCARD', key) >= cap then
	return 'hourly_cap'
end

if min_interval > 0 then
	local last = redis.call('ZREVRANGE', key, 0, 0, 'WITHSCORES')
	if #last > 0 and now - tonumber(last[2]) < min_interval then
		return 'min_interval'
	end
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return ''
`)

// PostWindow is a rolling posting window stored in a Redis sorted set, scored
// by post time in milliseconds. Several engine processes sharing one Redis
// share one window per scope.
type PostWindow struct {
	client *Client
}

func NewPostWindow(client *Client) *PostWindow {
	return &PostWindow{client: client}
}

// Reserve records a post at now unless the scope already holds limit posts within
// window or its last post is more recent than minInterval. A non-empty reason
// means the post was refused. The returned token releases the reservation.
func (w *PostWindow) Reserve(
	ctx context.Context,
	scope string,
	now time.Time,
	window time.Duration,
	limit int,
	minInterval time.Duration,
) (reason, token string, err error) {
	token = uuid.NewString()
	reason, err = reserveScript.Run(ctx, w.client.rdb,
		[]string{windowKey(w.client.prefix, scope)},
		now.UnixMilli(), window.Milliseconds(), limit, minInterval.Milliseconds(), token,
	).Text()
	if err != nil && err != redis.Nil {
		return "", "", fmt.Errorf("reserve post window: %w", err)
	}
	if reason != "" {
		return reason, "", nil
	}
	return "", token, nil
}

// Release removes a reservation whose post was not delivered.
func (w *PostWindow) Release(ctx context.Context, scope, token string) error {
	if token == "" {
		return nil
	}
	if err := w.client.rdb.ZRem(ctx, windowKey(w.client.prefix, scope), token).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	return nil
}

// Count returns the number of posts currently inside window for scope.
func (w *PostWindow) Count(ctx context.Context, scope string, now time.Time, window time.Duration) (int64, error) {
	lower := fmt.Sprintf("(%d", now.Add(-window).UnixMilli())
	n, err := w.client.rdb.ZCount(ctx, windowKey(w.client.prefix, scope), lower, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("zcount failed: %w", err)
	}
	return n, nil
}
