package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrActivityRedisUnavailable = errors.New("activity redis unavailable")

// ActivityWindow summarizes the records inside one query range.
type ActivityWindow struct {
	Count  int64
	Oldest time.Time
}

// ActivityStore keeps each subject's action history as a sorted set scored
// by unix milliseconds, plus a lifetime counter that trimming never touches.
//
//	<prefix>:w:<subjectID> -> ZSET member=record id, score=ms
//	<prefix>:n:<subjectID> -> lifetime count
type ActivityStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	newID     func(time.Time) (string, error)
}

func NewActivityStore(redisClient redis.UniversalClient, prefix string, retention time.Duration, newID func(time.Time) (string, error)) *ActivityStore {
	if prefix == "" {
		prefix = "ga"
	}
	return &ActivityStore{
		redis:     redisClient,
		prefix:    prefix,
		retention: retention,
		newID:     newID,
	}
}

func (s *ActivityStore) windowKey(subjectID string) string {
	return s.prefix + ":w:" + subjectID
}

func (s *ActivityStore) lifetimeKey(subjectID string) string {
	return s.prefix + ":n:" + subjectID
}

// Record appends one action at the given instant. Records older than the
// retention horizon are trimmed in the same transaction.
func (s *ActivityStore) Record(ctx context.Context, subjectID string, at time.Time) error {
	id, err := s.newID(at)
	if err != nil {
		return err
	}

	wKey := s.windowKey(subjectID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, wKey, redis.Z{Score: float64(at.UnixMilli()), Member: id})
		pipe.Incr(ctx, s.lifetimeKey(subjectID))
		if s.retention > 0 {
			horizon := at.Add(-s.retention).UnixMilli()
			pipe.ZRemRangeByScore(ctx, wKey, "-inf", "("+strconv.FormatInt(horizon, 10))
			pipe.Expire(ctx, wKey, s.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrActivityRedisUnavailable, err)
	}
	return nil
}

// Window counts records with since <= t <= until and returns the oldest.
func (s *ActivityStore) Window(ctx context.Context, subjectID string, since, until time.Time) (ActivityWindow, error) {
	wKey := s.windowKey(subjectID)
	lo := strconv.FormatInt(since.UnixMilli(), 10)
	hi := strconv.FormatInt(until.UnixMilli(), 10)

	var (
		countCmd  *redis.IntCmd
		oldestCmd *redis.ZSliceCmd
	)
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		countCmd = pipe.ZCount(ctx, wKey, lo, hi)
		oldestCmd = pipe.ZRangeByScoreWithScores(ctx, wKey, &redis.ZRangeBy{Min: lo, Max: hi, Count: 1})
		return nil
	})
	if err != nil {
		return ActivityWindow{}, fmt.Errorf("%w: %v", ErrActivityRedisUnavailable, err)
	}

	w := ActivityWindow{Count: countCmd.Val()}
	if z := oldestCmd.Val(); len(z) > 0 {
		w.Oldest = time.UnixMilli(int64(z[0].Score)).UTC()
	}
	return w, nil
}

// Lifetime returns the number of actions ever recorded for the subject.
func (s *ActivityStore) Lifetime(ctx context.Context, subjectID string) (int64, error) {
	n, err := s.redis.Get(ctx, s.lifetimeKey(subjectID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrActivityRedisUnavailable, err)
	}
	return n, nil
}
