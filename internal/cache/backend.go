package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend stores opaque payloads with a TTL.
type Backend interface {
	// Get reports ok=false on a miss; err is reserved for backend failures.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisOptions configure the Redis client.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend implements Backend on go-redis.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend dials lazily; the first command surfaces connection errors.
func NewRedisBackend(opts RedisOptions) *RedisBackend {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisBackend{client: client}
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Ping checks connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// NopBackend always misses and discards writes.
type NopBackend struct{}

func (NopBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NopBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NopBackend) Delete(context.Context, ...string) error { return nil }

var (
	_ Backend = (*RedisBackend)(nil)
	_ Backend = NopBackend{}
)
