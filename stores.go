package goGuard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/redis/go-redis/v9"
)

// redisRecoveryStore adapts the internal WATCH/MULTI store to RecoveryStore.
type redisRecoveryStore struct {
	store *stores.RecoveryStore
}

// NewRedisRecoveryStore returns the Redis-backed RecoveryStore used by
// Builder.WithRedis. Keys live under "<prefix>:rec".
func NewRedisRecoveryStore(client redis.UniversalClient, prefix string) RecoveryStore {
	return &redisRecoveryStore{store: stores.NewRecoveryStore(client, prefix+":rec")}
}

func (s *redisRecoveryStore) Issue(ctx context.Context, grant RecoveryGrant) error {
	err := s.store.Issue(ctx, stores.RecoveryRecord{
		SubjectID: grant.SubjectID,
		TokenHash: grant.TokenHash,
		ExpiresAt: grant.ExpiresAt.UnixNano(),
	}, grant.Retain)
	return mapRecoveryStoreError(err)
}

func (s *redisRecoveryStore) Consume(ctx context.Context, tokenHash [32]byte, now time.Time) (string, error) {
	rec, err := s.store.Consume(ctx, tokenHash, now)
	if err != nil {
		return "", mapRecoveryStoreError(err)
	}
	return rec.SubjectID, nil
}

func (s *redisRecoveryStore) Peek(ctx context.Context, tokenHash [32]byte, now time.Time) (string, error) {
	rec, err := s.store.Peek(ctx, tokenHash, now)
	if err != nil {
		return "", mapRecoveryStoreError(err)
	}
	return rec.SubjectID, nil
}

func (s *redisRecoveryStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	n, err := s.store.Sweep(ctx, now, limit)
	return n, mapRecoveryStoreError(err)
}

func mapRecoveryStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrRecoveryNotFound):
		return ErrTokenInvalid
	case errors.Is(err, stores.ErrRecoveryExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}
}

// redisActivityStore adapts the internal sorted-set store to ActivityStore.
type redisActivityStore struct {
	store *stores.ActivityStore
}

// NewRedisActivityStore returns the Redis-backed ActivityStore used by
// Builder.WithRedis. Keys live under "<prefix>:act".
func NewRedisActivityStore(client redis.UniversalClient, prefix string, retention time.Duration) ActivityStore {
	return &redisActivityStore{store: stores.NewActivityStore(client, prefix+":act", retention, internal.NewID)}
}

func (s *redisActivityStore) Record(ctx context.Context, subjectID string, at time.Time) error {
	return mapActivityStoreError(s.store.Record(ctx, subjectID, at))
}

func (s *redisActivityStore) Window(ctx context.Context, subjectID string, since, until time.Time) (ActivityWindow, error) {
	w, err := s.store.Window(ctx, subjectID, since, until)
	if err != nil {
		return ActivityWindow{}, mapActivityStoreError(err)
	}
	return ActivityWindow{Count: w.Count, Oldest: w.Oldest}, nil
}

func (s *redisActivityStore) Lifetime(ctx context.Context, subjectID string) (int64, error) {
	n, err := s.store.Lifetime(ctx, subjectID)
	return n, mapActivityStoreError(err)
}

func mapActivityStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrActivityUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrActivityUnavailable, err)
}

func mapRecoveryLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRecoveryRateLimited):
		var limitErr *limiters.LimitError
		if errors.As(err, &limitErr) && limitErr.RetryAfter > 0 {
			return &RetryableError{Err: ErrRecoveryRateLimited, RetryAfter: limitErr.RetryAfter}
		}
		return ErrRecoveryRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrRecoveryUnavailable, err)
	}
}
