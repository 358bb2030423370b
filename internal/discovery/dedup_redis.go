package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for the shared dedup set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string        // defaults to "sniper:mint:"
	TTL       time.Duration // 0 keeps keys forever
}

// RedisSet is a SharedSet backed by SETNX keys.
type RedisSet struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

// NewRedisSet connects, pings, and returns the set. owner is stored as the key value
// so operators can see which run claimed a mint.
func NewRedisSet(ctx context.Context, cfg RedisConfig, owner string) (*RedisSet, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sniper:mint:"
	}
	return &RedisSet{rdb: rdb, prefix: prefix, ttl: cfg.TTL, owner: owner}, nil
}

// MarkIfNew claims mint. It returns false if any run claimed it before.
func (s *RedisSet) MarkIfNew(ctx context.Context, mint string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+mint, s.owner, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx %s: %w", mint, err)
	}
	return ok, nil
}

// Close closes the Redis connection.
func (s *RedisSet) Close() error {
	return s.rdb.Close()
}

var _ SharedSet = (*RedisSet)(nil)
