package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRecoveryRateLimited      = errors.New("recovery rate limited")
	ErrRecoveryRedisUnavailable = errors.New("recovery limiter redis unavailable")
)

// LimitError is returned by Check when a window is exhausted. It matches
// ErrRecoveryRateLimited.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRecoveryRateLimited, e.RetryAfter)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRecoveryRateLimited
}

type RecoveryConfig struct {
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	MaxRequests              int
	Window                   time.Duration
}

// RecoveryLimiter caps recovery requests per username and per client IP
// with fixed Redis windows.
type RecoveryLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config RecoveryConfig
}

func NewRecoveryLimiter(redisClient redis.UniversalClient, prefix string, cfg RecoveryConfig) *RecoveryLimiter {
	if prefix == "" {
		prefix = "grl"
	}
	return &RecoveryLimiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

func (l *RecoveryLimiter) Check(ctx context.Context, identifier, ip string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if l.config.EnableIdentifierThrottle && identifier != "" {
		if err := l.enforce(ctx, l.prefix+":u:"+identifier); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforce(ctx, l.prefix+":ip:"+ip); err != nil {
			return err
		}
	}
	return nil
}

func (l *RecoveryLimiter) enforce(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return &LimitError{RetryAfter: l.remaining(ctx, key)}
	}
	return nil
}

// remaining is the TTL left on key, falling back to a full window when
// Redis cannot report one.
func (l *RecoveryLimiter) remaining(ctx context.Context, key string) time.Duration {
	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return l.config.Window
	}
	return ttl
}
