// Package governor throttles outbound provider calls to the account-wide
// send quota. The counter lives in Redis under a single fixed key so
// every process shares the same allowance; correctness rests on Redis's
// atomic increment, not on any in-process lock.
package governor

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/courier/internal/pkg/apperr"
	"github.com/ignite/courier/internal/pkg/logger"
	"github.com/ignite/courier/internal/ses"
)

// QuotaSource supplies the provider's advertised send quota. The max send
// rate changes rarely, so fetching it per call is acceptable.
type QuotaSource interface {
	GetSendQuota(ctx context.Context) (ses.SendQuota, error)
}

// Governor is a coarse, best-effort rate gate: a shared integer, a
// cooldown window, and an accepted read-then-increment race bounded by
// the concurrency width of simultaneous callers. It is deliberately not
// a precise token bucket.
type Governor struct {
	redis    *redis.Client
	quota    QuotaSource
	key      string
	cooldown time.Duration

	// sleep is swapped out by tests to count throttle waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// counterTTL bounds how long a stale counter can linger if no sends
// arrive to reset it.
const counterTTL = 2 * time.Minute

// incrScript atomically increments the counter and stamps a TTL on first
// write, the same pattern the provider-side window expects.
var incrScript = redis.NewScript(`
	local v = redis.call("INCRBY", KEYS[1], 1)
	if v == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return v
`)

// New creates a governor over the given Redis client and quota source.
func New(redisClient *redis.Client, quota QuotaSource, key string, cooldown time.Duration) *Governor {
	if cooldown <= 0 {
		cooldown = time.Second
	}
	return &Governor{
		redis:    redisClient,
		quota:    quota,
		key:      key,
		cooldown: cooldown,
		sleep:    sleepCtx,
	}
}

// AcquireSlot blocks until the caller may issue a provider send. When the
// shared counter has reached the quota's max send rate it waits out one
// cooldown window and resets the counter. The context cancels the wait.
func (g *Governor) AcquireSlot(ctx context.Context) error {
	quota, err := g.quota.GetSendQuota(ctx)
	if err != nil {
		return err
	}
	maxRate := int64(quota.MaxSendRate)
	if maxRate <= 0 {
		maxRate = 1
	}

	// Initialize the shared counter if this is the first send of a window.
	if err := g.redis.SetNX(ctx, g.key, 0, counterTTL).Err(); err != nil {
		return apperr.Wrap(apperr.Internal, "rate counter unavailable", err)
	}

	current, err := g.redis.Get(ctx, g.key).Int64()
	if err != nil && err != redis.Nil {
		return apperr.Wrap(apperr.Internal, "rate counter unavailable", err)
	}

	if current >= maxRate {
		logger.Debug("send slot throttled", "current", current, "max_rate", maxRate)
		if err := g.sleep(ctx, g.cooldown); err != nil {
			return err
		}
		if err := g.redis.Set(ctx, g.key, 0, counterTTL).Err(); err != nil {
			return apperr.Wrap(apperr.Internal, "rate counter unavailable", err)
		}
	}
	return nil
}

// RecordSend increments the shared counter. Called after every attempted
// provider call, success or failure: the quota counts calls attempted,
// not delivered.
func (g *Governor) RecordSend(ctx context.Context) error {
	_, err := incrScript.Run(ctx, g.redis, []string{g.key}, int(counterTTL.Seconds())).Result()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "rate counter unavailable", err)
	}
	return nil
}

// Usage reports the current window's counter for observability.
func (g *Governor) Usage(ctx context.Context) (int64, error) {
	current, err := g.redis.Get(ctx, g.key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "rate counter unavailable", err)
	}
	return current, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
