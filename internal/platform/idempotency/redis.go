package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "portal:idempotency:"

// RedisStore keeps keys in Redis with native expiry, so every instance of the
// service shares them.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses "portal:idempotency:".
func NewRedisStore(client goredis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + documentID(key)
}

// Reserve implements Store with SET NX.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	ttl = normalizeTTL(ttl)
	record := pendingRecord(key, fingerprint, now.UTC(), ttl)
	payload, err := json.Marshal(record)
	if err != nil {
		return Reservation{}, err
	}
	rkey := s.redisKey(key)
	created, err := s.client.SetNX(ctx, rkey, payload, ttl).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: redis reserve: %w", err)
	}
	if created {
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	existing, err := s.load(ctx, rkey)
	if errors.Is(err, goredis.Nil) {
		// Expired between SETNX and GET; try once more.
		return s.Reserve(ctx, key, fingerprint, now, ttl)
	}
	if err != nil {
		return Reservation{}, err
	}
	return reservationFor(existing, fingerprint)
}

// SaveResponse implements Store. The fingerprint check and the write run in
// one WATCH transaction.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ttl = normalizeTTL(ttl)
	rkey := s.redisKey(key)
	return s.client.Watch(ctx, func(tx *goredis.Tx) error {
		record := Record{Key: key, Fingerprint: fingerprint}
		raw, err := tx.Get(ctx, rkey).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(raw, &record); err != nil {
				return fmt.Errorf("idempotency: decode record: %w", err)
			}
			if record.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		case !errors.Is(err, goredis.Nil):
			return err
		}
		payload, err := json.Marshal(record.complete(resp, now.UTC(), ttl))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, rkey, payload, ttl)
			return nil
		})
		return err
	}, rkey)
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key, _ string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

// CleanupExpired is a no-op: Redis expires keys itself.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) load(ctx context.Context, rkey string) (Record, error) {
	raw, err := s.client.Get(ctx, rkey).Bytes()
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, nil
}
