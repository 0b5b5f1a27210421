package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "veritas/pkg/domain-errors"
)

// RedisBucketStore backs the limiter with Redis so a fleet of issuers
// shares one set of windows. Counters are fixed-window keys with a TTL
// slightly past the window so abandoned buckets expire on their own.
type RedisBucketStore struct {
	client *redis.Client
	prefix string
}

// NewRedisBucketStore wraps an existing Redis client.
func NewRedisBucketStore(client *redis.Client) (*RedisBucketStore, error) {
	if client == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "ratelimit: redis client is required")
	}
	return &RedisBucketStore{client: client, prefix: "veritas:rl"}, nil
}

// Reserve increments both window counters and inspects the results. When
// either window is over its limit the increments are rolled back so a
// denied request does not consume quota.
func (s *RedisBucketStore) Reserve(ctx context.Context, recipient string, now time.Time, limits Limits) (*Denial, error) {
	return s.ReserveN(ctx, recipient, now, limits, 1)
}

// ReserveN consumes n slots in one round trip: both counters move by n,
// and an over-limit result rolls the full n back.
func (s *RedisBucketStore) ReserveN(ctx context.Context, recipient string, now time.Time, limits Limits, n int) (*Denial, error) {
	hourKey := s.key(recipient, PeriodHour, hourBucket(now))
	dayKey := s.key(recipient, PeriodDay, dayBucket(now))

	pipe := s.client.TxPipeline()
	hourIncr := pipe.IncrBy(ctx, hourKey, int64(n))
	pipe.Expire(ctx, hourKey, PeriodHour.Window()+time.Minute)
	dayIncr := pipe.IncrBy(ctx, dayKey, int64(n))
	pipe.Expire(ctx, dayKey, PeriodDay.Window()+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: redis reserve failed")
	}

	if hourIncr.Val() > int64(limits.MaxPerHour) {
		s.rollback(ctx, n, hourKey, dayKey)
		return &Denial{Limit: limits.MaxPerHour, Period: PeriodHour, ResetAt: hourReset(now)}, nil
	}
	if dayIncr.Val() > int64(limits.MaxPerDay) {
		s.rollback(ctx, n, hourKey, dayKey)
		return &Denial{Limit: limits.MaxPerDay, Period: PeriodDay, ResetAt: dayReset(now)}, nil
	}
	return nil, nil
}

// Release hands back n previously reserved slots on the current-window
// counters.
func (s *RedisBucketStore) Release(ctx context.Context, recipient string, now time.Time, n int) error {
	hourKey := s.key(recipient, PeriodHour, hourBucket(now))
	dayKey := s.key(recipient, PeriodDay, dayBucket(now))

	pipe := s.client.TxPipeline()
	hourDecr := pipe.DecrBy(ctx, hourKey, int64(n))
	dayDecr := pipe.DecrBy(ctx, dayKey, int64(n))
	if _, err := pipe.Exec(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: redis release failed")
	}

	// A window roll between reserve and release can push a counter below
	// zero; floor it so the fresh bucket does not start with spare
	// capacity.
	for key, decr := range map[string]*redis.IntCmd{hourKey: hourDecr, dayKey: dayDecr} {
		if decr.Val() < 0 {
			_ = s.client.IncrBy(ctx, key, -decr.Val()).Err()
		}
	}
	return nil
}

// Counts reports current window usage for a recipient.
func (s *RedisBucketStore) Counts(ctx context.Context, recipient string, now time.Time) (hour, day int, err error) {
	vals, err := s.client.MGet(ctx,
		s.key(recipient, PeriodHour, hourBucket(now)),
		s.key(recipient, PeriodDay, dayBucket(now)),
	).Result()
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: redis counts failed")
	}
	return asCount(vals[0]), asCount(vals[1]), nil
}

// Reset drops both current-window counters for a recipient.
func (s *RedisBucketStore) Reset(ctx context.Context, recipient string) error {
	now := time.Now()
	err := s.client.Del(ctx,
		s.key(recipient, PeriodHour, hourBucket(now)),
		s.key(recipient, PeriodDay, dayBucket(now)),
	).Err()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "ratelimit: redis reset failed")
	}
	return nil
}

func (s *RedisBucketStore) rollback(ctx context.Context, n int, keys ...string) {
	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.DecrBy(ctx, k, int64(n))
	}
	// Best effort. A failed rollback over-counts until the window rolls
	// over, which errs on the strict side.
	_, _ = pipe.Exec(ctx)
}

func (s *RedisBucketStore) key(recipient string, period Period, bucket int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", s.prefix, recipient, period, bucket)
}

func asCount(v any) int {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	var n int
	_, _ = fmt.Sscanf(str, "%d", &n)
	return n
}
