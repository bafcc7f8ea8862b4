package entity

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/webcask/webcask/pkg/xerrors"
)

// RedisKV adapts a go-redis client (RESP wire protocol) to the KV surface.
// go-redis is safe for concurrent use, so one RedisKV may back a store
// shared by parallel request handlers.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps an already-configured client.
func NewRedisKV(client *redis.Client) (*RedisKV, error) {
	if client == nil {
		return nil, xerrors.E(xerrors.KindInvalid, "entity.NewRedisKV", "client")
	}
	return &RedisKV{client: client}, nil
}

// NewRedisKVFromURL builds a client from a redis:// or rediss:// URL.
func NewRedisKVFromURL(raw string) (*RedisKV, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvalid, "entity.NewRedisKVFromURL", raw, err)
	}
	return &RedisKV{client: redis.NewClient(opts)}, nil
}

func (r *RedisKV) Contains(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, xerrors.E(xerrors.KindNotFound, "entity.RedisKV.Get", key)
		}
		return nil, err
	}
	return data, nil
}

func (r *RedisKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete implements KVDeleter.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the connection pool.
func (r *RedisKV) Close() error { return r.client.Close() }
