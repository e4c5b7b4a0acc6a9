package window

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// unknownOriginBucket is the shared bucket for callers whose origin could
// not be determined. Throttling is never skipped for them.
const unknownOriginBucket = "unknown"

// Config holds sliding-window tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Limiter counts failed attempts over a trailing time window. Each failure
// is recorded against two keys, the caller's origin and the targeted
// principal, so one origin hammering many principals and many origins
// hammering one principal are both throttled.
type Limiter struct {
	redis  redis.UniversalClient
	config Config

	// now is swapped in tests to step through window expiry.
	now func() time.Time

	seq atomic.Uint64
}

// New creates a sliding-window [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}
}

// IsBlocked reports whether the origin or the principal has reached the
// failure threshold within the current window. An empty principalID checks
// the origin bucket only.
func (l *Limiter) IsBlocked(ctx context.Context, origin, principalID string) (bool, error) {
	blocked, err := l.countAtThreshold(ctx, originKey(normalizeOrigin(origin)))
	if err != nil {
		return false, err
	}
	if blocked {
		return true, nil
	}

	if principalID != "" {
		blocked, err = l.countAtThreshold(ctx, principalKey(principalID))
		if err != nil {
			return false, err
		}
		if blocked {
			return true, nil
		}
	}

	return false, nil
}

// RecordFailure appends a timestamped failure entry under both keys. It
// never evaluates the threshold; callers check IsBlocked before the
// privileged operation runs.
func (l *Limiter) RecordFailure(ctx context.Context, origin, principalID string) error {
	now := l.now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + strconv.FormatUint(l.seq.Add(1), 10)

	keys := []string{originKey(normalizeOrigin(origin))}
	if principalID != "" {
		keys = append(keys, principalKey(principalID))
	}

	for _, key := range keys {
		if err := l.redis.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: member,
		}).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		// Keys self-expire one window after the last failure, so abandoned
		// buckets do not accumulate.
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return nil
}

// Reset clears all recorded failures for a principal. Called after that
// principal's successful rotation; origin buckets are left untouched.
func (l *Limiter) Reset(ctx context.Context, principalID string) error {
	if err := l.redis.Del(ctx, principalKey(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

func (l *Limiter) countAtThreshold(ctx context.Context, key string) (bool, error) {
	cutoff := l.now().Add(-l.config.Window).UnixNano()

	// Prune entries that slid out of the window before counting.
	if err := l.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, err := l.redis.ZCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return count >= int64(l.config.MaxAttempts), nil
}

func normalizeOrigin(origin string) string {
	if origin == "" {
		return unknownOriginBucket
	}
	return origin
}

func originKey(origin string) string {
	return "rw:o:" + origin
}

func principalKey(principalID string) string {
	return "rw:p:" + principalID
}
