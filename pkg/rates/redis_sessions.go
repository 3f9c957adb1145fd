package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix prefixes the redis hash holding one shopper session.
const DefaultRedisPrefix = "shq:session:"

// RedisSessions is a SessionStore keeping each session in a redis hash.
// Writes refresh the hash expiry so idle sessions disappear on their own.
type RedisSessions struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessions creates a redis-backed SessionStore.
func NewRedisSessions(client *redis.Client, ttl time.Duration) *RedisSessions {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisSessions{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
	}
}

// Open returns a handle on the session hash. No round trip is made.
func (s *RedisSessions) Open(_ context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return nil, ErrNoActiveSession
	}
	return &redisSession{
		client: s.client,
		hash:   s.prefix + sessionID,
		ttl:    s.ttl,
	}, nil
}

type redisSession struct {
	client *redis.Client
	hash   string
	ttl    time.Duration
}

func (r *redisSession) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.HGet(ctx, r.hash, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis hget: %w", err)
	}
	return data, true, nil
}

func (r *redisSession) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.hash, key, value)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.hash, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *redisSession) Remove(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (r *redisSession) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	return keys, nil
}

var _ SessionStore = (*RedisSessions)(nil)
