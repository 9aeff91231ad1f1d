// Package cache implements the cache-aside read path over a pluggable backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"stellar-insights/internal/metrics"
)

// ErrCacheRead marks a backend failure on lookup.
var ErrCacheRead = errors.New("cache: read failed")

// ReadError wraps the backend failure for a key.
type ReadError struct {
	Key string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("cache read %s: %v", e.Key, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Is(target error) bool { return target == ErrCacheRead }

// Aside couples a backend with logging and metrics.
type Aside struct {
	backend Backend
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New constructs an Aside. A nil backend never caches.
func New(backend Backend, m *metrics.Metrics, logger zerolog.Logger) *Aside {
	if backend == nil {
		backend = NopBackend{}
	}
	return &Aside{
		backend: backend,
		metrics: m,
		logger:  logger.With().Str("component", "cache").Logger(),
	}
}

// Invalidate drops keys. Failures are logged.
func (a *Aside) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := a.backend.Delete(ctx, keys...); err != nil {
		a.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// Fetch returns the cached value for key, or produces, stores and returns it.
// A backend read failure is returned as *ReadError; write failures are logged only.
func Fetch[T any](ctx context.Context, a *Aside, key string, ttl time.Duration, produce func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, ok, err := a.backend.Get(ctx, key)
	if err != nil {
		a.metrics.CacheResult(metrics.CacheReadError)
		return zero, &ReadError{Key: key, Err: err}
	}
	if ok {
		var cached T
		err := json.Unmarshal(data, &cached)
		if err == nil {
			a.metrics.CacheResult(metrics.CacheHit)
			a.logger.Debug().Str("key", key).Msg("cache hit")
			return cached, nil
		}
		a.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
	}

	a.metrics.CacheResult(metrics.CacheMiss)
	a.logger.Debug().Str("key", key).Msg("cache miss")

	value, err := produce(ctx)
	if err != nil {
		return zero, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		a.metrics.CacheResult(metrics.CacheWriteError)
		a.logger.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return value, nil
	}
	if err := a.backend.Set(ctx, key, payload, ttl); err != nil {
		a.metrics.CacheResult(metrics.CacheWriteError)
		a.logger.Warn().Err(err).Str("key", key).Msg("failed to cache result")
	}
	return value, nil
}

// FetchWithParams derives the key from prefix and params, then calls Fetch.
func FetchWithParams[T any](ctx context.Context, a *Aside, prefix string, params any, ttl time.Duration, produce func(ctx context.Context) (T, error)) (T, error) {
	return Fetch(ctx, a, DeriveKey(prefix, params), ttl, produce)
}

// DeriveKey renders prefix:hex(xxhash64(json(params))). Equal params give equal keys in every process.
func DeriveKey(prefix string, params any) string {
	encoded, err := json.Marshal(params)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%#v", params))
	}
	return fmt.Sprintf("%s:%016x", prefix, xxhash.Sum64(encoded))
}
