// Package cache holds the byte-level key/value stores behind the resolution
// cache: an in-process LRU, Redis, and a two-tier combination of both.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// Service is implemented by every backend. Values are JSON encoded on Set and
// decoded into dest on Get; string, []byte and json.RawMessage pass through.
// Keys passed to DeleteByPattern are globs over the unprefixed key space.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	// TryLock acquires a short-lived named lock. Unlock only releases a lock
	// this instance holds.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}
