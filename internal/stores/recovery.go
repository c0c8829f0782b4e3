package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recoveryRecordVersionV1 = 1
	recoveryMaxRetries      = 16
)

var (
	ErrRecoveryNotFound         = errors.New("recovery record not found")
	ErrRecoveryExpired          = errors.New("recovery record expired")
	ErrRecoveryConflict         = errors.New("recovery record contended")
	ErrRecoveryRedisUnavailable = errors.New("recovery redis unavailable")
)

// RecoveryRecord is the live token state of one subject.
type RecoveryRecord struct {
	SubjectID string
	TokenHash [32]byte
	ExpiresAt int64 // unix nanoseconds
}

// RecoveryStore keeps one record per subject plus a token-digest index.
//
//	<prefix>:s:<subjectID>  -> encoded RecoveryRecord
//	<prefix>:t:<hex digest> -> subjectID
//
// Both keys are written and removed inside the same MULTI so the index
// never points at a record holding a different digest.
type RecoveryStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRecoveryStore(redisClient redis.UniversalClient, prefix string) *RecoveryStore {
	if prefix == "" {
		prefix = "gr"
	}
	return &RecoveryStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RecoveryStore) subjectKey(subjectID string) string {
	return s.prefix + ":s:" + subjectID
}

func (s *RecoveryStore) indexKey(hash [32]byte) string {
	return s.prefix + ":t:" + hex.EncodeToString(hash[:])
}

// Issue replaces the subject's token. The prior index entry, if any, is
// deleted in the same transaction.
func (s *RecoveryStore) Issue(ctx context.Context, record RecoveryRecord, ttl time.Duration) error {
	if record.SubjectID == "" {
		return errors.New("recovery record subject id empty")
	}
	if ttl <= 0 {
		return errors.New("recovery record ttl must be > 0")
	}

	encoded, err := encodeRecoveryRecord(&record)
	if err != nil {
		return err
	}

	sKey := s.subjectKey(record.SubjectID)
	iKey := s.indexKey(record.TokenHash)

	for i := 0; i < recoveryMaxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var prior *RecoveryRecord
			data, err := tx.Get(ctx, sKey).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if prior, err = decodeRecoveryRecord(data); err != nil {
					prior = nil
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if prior != nil && prior.TokenHash != record.TokenHash {
					pipe.Del(ctx, s.indexKey(prior.TokenHash))
				}
				pipe.Set(ctx, sKey, encoded, ttl)
				pipe.Set(ctx, iKey, record.SubjectID, ttl)
				return nil
			})
			return err
		}, sKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}
		return nil
	}

	return ErrRecoveryConflict
}

// Consume resolves hash to its subject and removes both keys. An expired
// record is removed as well and reported as ErrRecoveryExpired.
func (s *RecoveryStore) Consume(ctx context.Context, hash [32]byte, now time.Time) (RecoveryRecord, error) {
	return s.resolve(ctx, hash, now, true)
}

// Peek resolves hash without consuming a live record. Expired or
// inconsistent entries observed here are removed.
func (s *RecoveryStore) Peek(ctx context.Context, hash [32]byte, now time.Time) (RecoveryRecord, error) {
	return s.resolve(ctx, hash, now, false)
}

func (s *RecoveryStore) resolve(ctx context.Context, hash [32]byte, now time.Time, consume bool) (RecoveryRecord, error) {
	iKey := s.indexKey(hash)

	for i := 0; i < recoveryMaxRetries; i++ {
		var matched RecoveryRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			subjectID, err := tx.Get(ctx, iKey).Result()
			if errors.Is(err, redis.Nil) {
				return ErrRecoveryNotFound
			}
			if err != nil {
				return err
			}

			sKey := s.subjectKey(subjectID)
			if err := tx.Watch(ctx, sKey).Err(); err != nil {
				return err
			}

			var record *RecoveryRecord
			data, err := tx.Get(ctx, sKey).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				record, _ = decodeRecoveryRecord(data)
			}

			if record == nil || subtle.ConstantTimeCompare(record.TokenHash[:], hash[:]) != 1 {
				// Dangling index entry; the record was replaced or evicted.
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, iKey)
					return nil
				}); err != nil {
					return err
				}
				return ErrRecoveryNotFound
			}

			expired := now.UnixNano() > record.ExpiresAt
			if !expired && !consume {
				matched = *record
				return nil
			}

			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, iKey, sKey)
				return nil
			}); err != nil {
				return err
			}
			if expired {
				return ErrRecoveryExpired
			}

			matched = *record
			return nil
		}, iKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrRecoveryNotFound) || errors.Is(err, ErrRecoveryExpired) {
				return RecoveryRecord{}, err
			}
			return RecoveryRecord{}, fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}
		return matched, nil
	}

	return RecoveryRecord{}, ErrRecoveryConflict
}

// Current returns the subject's stored record without checking expiry.
func (s *RecoveryStore) Current(ctx context.Context, subjectID string) (RecoveryRecord, error) {
	data, err := s.redis.Get(ctx, s.subjectKey(subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return RecoveryRecord{}, ErrRecoveryNotFound
	}
	if err != nil {
		return RecoveryRecord{}, fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}
	record, err := decodeRecoveryRecord(data)
	if err != nil {
		return RecoveryRecord{}, err
	}
	return *record, nil
}

// Sweep scans subject records and removes expired ones, stopping after
// limit removals when limit > 0.
func (s *RecoveryStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	match := s.prefix + ":s:*"

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}

		for _, key := range keys {
			if limit > 0 && removed >= limit {
				return removed, nil
			}
			data, err := s.redis.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
			}
			record, err := decodeRecoveryRecord(data)
			if err != nil || now.UnixNano() <= record.ExpiresAt {
				continue
			}
			if _, err := s.Consume(ctx, record.TokenHash, now); errors.Is(err, ErrRecoveryExpired) {
				removed++
			} else if errors.Is(err, ErrRecoveryRedisUnavailable) {
				return removed, err
			}
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func encodeRecoveryRecord(record *RecoveryRecord) ([]byte, error) {
	if len(record.SubjectID) > 65535 {
		return nil, errors.New("recovery record subject id too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 8 + 2 + len(record.SubjectID) + 32)

	buf.WriteByte(recoveryRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.SubjectID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.SubjectID)
	buf.Write(record.TokenHash[:])

	return buf.Bytes(), nil
}

func decodeRecoveryRecord(data []byte) (*RecoveryRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recoveryRecordVersionV1 {
		return nil, errors.New("invalid recovery record version")
	}

	record := &RecoveryRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.SubjectID = string(id)

	if _, err := io.ReadFull(reader, record.TokenHash[:]); err != nil {
		return nil, err
	}
	return record, nil
}
