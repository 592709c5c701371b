// Package store holds the optional persistence collaborators the
// protocol core calls out to: client identity and counter persistence,
// the offline-local-client message buffer, and the file-upload metadata
// ledger. None of them are required for protocol correctness.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a thin wrapper over the subset of go-redis operations the
// counter store and offline queue need.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an already-configured *redis.Client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.rdb.Get(ctx, key).Result()
}

func (r *Redis) RPush(ctx context.Context, key string, values ...any) error {
	return r.rdb.RPush(ctx, key, values...).Err()
}

func (r *Redis) LRange(ctx context.Context, key string) ([]string, error) {
	return r.rdb.LRange(ctx, key, 0, -1).Result()
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.rdb.Expire(ctx, key, ttl).Err()
}

func (r *Redis) IncrBy(ctx context.Context, key string, n int64) error {
	return r.rdb.IncrBy(ctx, key, n).Err()
}

// ErrNil is returned by Get when the key does not exist.
var ErrNil = redis.Nil
