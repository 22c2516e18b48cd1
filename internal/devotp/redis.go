package devotp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces dev OTP keys in Redis.
const DefaultKeyPrefix = "chatlogin:otp:"

// RedisStore is a Store backed by Redis: the record as JSON under key(phone) and the
// wrong-code counter under key(phone)+":attempts", both expiring together.
type RedisStore struct {
	rdb   redis.Cmdable
	keyNS string
}

// NewRedisStore returns a RedisStore. keyPrefix defaults to DefaultKeyPrefix.
func NewRedisStore(rdb redis.Cmdable, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, keyNS: keyPrefix}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (s *RedisStore) key(phone string) string         { return s.keyNS + phone }
func (s *RedisStore) attemptsKey(phone string) string { return s.keyNS + phone + ":attempts" }

// Put stores rec for phone with ttl and resets the attempt counter.
func (s *RedisStore) Put(ctx context.Context, phone string, rec Record, ttl time.Duration) error {
	rec.Attempts = 0
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(phone), b, ttl)
		pipe.Del(ctx, s.attemptsKey(phone))
		return nil
	})
	return err
}

// Get returns the record for phone with the current attempt count.
func (s *RedisStore) Get(ctx context.Context, phone string) (Record, error) {
	var recCmd *redis.StringCmd
	var attemptsCmd *redis.StringCmd
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		recCmd = pipe.Get(ctx, s.key(phone))
		attemptsCmd = pipe.Get(ctx, s.attemptsKey(phone))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, err
	}
	val, err := recCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return Record{}, err
	}
	n, err := attemptsCmd.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, err
	}
	rec.Attempts = n
	return rec, nil
}

// IncrementAttempts bumps the counter and aligns its expiry with the record's.
func (s *RedisStore) IncrementAttempts(ctx context.Context, phone string) (int, error) {
	ttl, err := s.rdb.PTTL(ctx, s.key(phone)).Result()
	if err != nil {
		return 0, err
	}
	// go-redis reports a missing key as -2.
	if ttl == -2 {
		return 0, ErrNotFound
	}
	var incr *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.attemptsKey(phone))
		if ttl > 0 {
			pipe.PExpire(ctx, s.attemptsKey(phone), ttl)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// Delete removes the record and its counter.
func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	return s.rdb.Del(ctx, s.key(phone), s.attemptsKey(phone)).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
