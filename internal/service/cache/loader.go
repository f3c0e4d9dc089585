// Package cache memoizes expensive computations on top of a pkg/cache backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"AlphaNebula/internal/domain/models"
	"AlphaNebula/internal/domain/repository"
	pkgcache "AlphaNebula/pkg/cache"
	applogger "AlphaNebula/pkg/logger"
)

const DefaultTTL = 24 * time.Hour

// envelope is what is actually stored; freshness is judged from ComputedAt.
type envelope struct {
	Value      json.RawMessage `json:"value"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Loader runs at most one computation per key at a time and caches successes.
type Loader struct {
	store   pkgcache.Service
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	metrics repository.Metrics
	l       *applogger.Logger

	lockTTL  time.Duration
	lockPoll time.Duration
}

// Option configures Loader.
type Option func(*Loader)

func WithTTL(ttl time.Duration) Option {
	return func(lo *Loader) {
		if ttl > 0 {
			lo.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(lo *Loader) {
		if now != nil {
			lo.now = now
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(lo *Loader) {
		if m != nil {
			lo.metrics = m
		}
	}
}

// WithDistributedLock also deduplicates across processes sharing the backend:
// the instance holding the lock computes and the others poll for its result.
func WithDistributedLock(ttl, poll time.Duration) Option {
	return func(lo *Loader) {
		lo.lockTTL = ttl
		lo.lockPoll = poll
	}
}

func NewLoader(store pkgcache.Service, l *applogger.Logger, opts ...Option) *Loader {
	if l == nil {
		l = applogger.Nop()
	}
	lo := &Loader{
		store:    store,
		ttl:      DefaultTTL,
		now:      time.Now,
		metrics:  repository.NopMetrics{},
		l:        l.Component("ttl_cache"),
		lockPoll: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(lo)
	}
	return lo
}

func (lo *Loader) TTL() time.Duration { return lo.ttl }

// GetOrCompute returns the cached value for key when younger than the TTL.
// Otherwise one caller runs compute and every concurrent caller for the key
// receives its result. Each caller stops waiting when its own ctx is done.
// Failures are returned as *models.CacheComputationError and never stored.
func GetOrCompute[T any](ctx context.Context, lo *Loader, key string, compute func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := lookup[T](ctx, lo, key); ok {
		lo.metrics.RecordCacheResult("hit")
		return v, nil
	}

	ch := lo.group.DoChan(key, func() (interface{}, error) {
		// The computation outlives any single waiter.
		cctx := context.WithoutCancel(ctx)
		if v, ok := lookup[T](cctx, lo, key); ok {
			return v, nil
		}
		if lo.lockTTL > 0 {
			v, found, held := awaitPeer[T](cctx, lo, key)
			if found {
				return v, nil
			}
			if held {
				defer func() { _ = lo.store.Unlock(cctx, lockKey(key)) }()
			}
		}

		v, err := compute(cctx)
		if err != nil {
			return zero, &models.CacheComputationError{Key: key, Err: err}
		}
		lo.save(cctx, key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			lo.metrics.RecordCacheResult("error")
			return zero, res.Err
		}
		if res.Shared {
			lo.metrics.RecordCacheResult("shared")
		} else {
			lo.metrics.RecordCacheResult("miss")
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache key %q holds %T", key, res.Val)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func lookup[T any](ctx context.Context, lo *Loader, key string) (T, bool) {
	var zero T
	var env envelope
	if err := lo.store.Get(ctx, key, &env); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			lo.l.Warn("cache read failed", applogger.String("key", key), applogger.Error(err))
		}
		return zero, false
	}
	if lo.now().Sub(env.ComputedAt) >= lo.ttl {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(env.Value, &v); err != nil {
		lo.l.Warn("cache entry undecodable", applogger.String("key", key), applogger.Error(err))
		return zero, false
	}
	return v, true
}

func (lo *Loader) save(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		lo.l.Warn("cache encode failed", applogger.String("key", key), applogger.Error(err))
		return
	}
	env := envelope{Value: raw, ComputedAt: lo.now().UTC()}
	if err := lo.store.Set(ctx, key, env, lo.ttl); err != nil {
		lo.l.Warn("cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

// awaitPeer waits for a value computed by another process holding the lock.
// held reports whether this process took the lock and must compute.
func awaitPeer[T any](ctx context.Context, lo *Loader, key string) (v T, found, held bool) {
	ok, err := lo.store.TryLock(ctx, lockKey(key), lo.lockTTL)
	if err != nil {
		return v, false, false
	}
	if ok {
		return v, false, true
	}
	ticker := time.NewTicker(lo.lockPoll)
	defer ticker.Stop()
	timeout := time.NewTimer(lo.lockTTL)
	defer timeout.Stop()
	for {
		select {
		case <-ticker.C:
			if v, found = lookup[T](ctx, lo, key); found {
				return v, true, false
			}
		case <-timeout.C:
			return v, false, false
		case <-ctx.Done():
			return v, false, false
		}
	}
}

func lockKey(key string) string { return key + ":lock" }

// Invalidate drops every cached entry whose key matches the glob pattern.
func (lo *Loader) Invalidate(ctx context.Context, pattern string) error {
	if err := lo.store.DeleteByPattern(ctx, pattern); err != nil {
		return fmt.Errorf("invalidate %s: %w", pattern, err)
	}
	return nil
}

// ResolveKey is the cache key of a resolution: normalized raw name and mention source.
func ResolveKey(rawName, source string) string {
	return pkgcache.Key("resolve", normalizeSource(source), models.NormalizeName(rawName))
}

// ResolvePattern matches the cached resolutions of rawName for every source.
func ResolvePattern(rawName string) string {
	return "resolve:*:" + pkgcache.Part(models.NormalizeName(rawName))
}

func normalizeSource(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '[', ']', '\\':
			return '_'
		}
		return r
	}, s)
}
