package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LayeredOption configures a LayeredCache.
type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize bounds the in-process tier.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(lc *LayeredCache) { lc.l1Size = size }
}

// WithLayeredL1TTL caps how long an entry lives in the in-process tier.
func WithLayeredL1TTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) { lc.l1TTL = ttl }
}

// LayeredCache keeps hot entries in memory in front of Redis. Deletes are
// broadcast on a Redis channel so every instance drops its memory copy.
type LayeredCache struct {
	l1     *MemoryCache
	l2     *RedisCache
	l1Size int
	l1TTL  time.Duration

	node    string
	channel string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

// NewLayeredCache subscribes to invalidations and returns the cache. Close
// stops the subscription but leaves the Redis client open.
func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	lc := &LayeredCache{
		l2:      l2,
		l1Size:  1000,
		l1TTL:   5 * time.Minute,
		node:    uuid.NewString(),
		channel: l2.Prefix() + ":invalidate",
	}
	for _, opt := range opts {
		opt(lc)
	}
	lc.l1 = NewMemoryCache(WithMemoryMaxSize(lc.l1Size))

	ctx, cancel := context.WithCancel(context.Background())
	lc.cancel = cancel
	sub := l2.Client().Subscribe(ctx, lc.channel)
	lc.wg.Add(1)
	go lc.listen(ctx, sub.Channel(), func() { _ = sub.Close() })
	return lc
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := lc.l2.Set(ctx, key, data, expiration); err != nil {
		return err
	}
	ttl := lc.l1TTL
	if expiration > 0 && expiration < ttl {
		ttl = expiration
	}
	return lc.l1.Set(ctx, key, data, ttl)
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	if err := lc.l1.Get(ctx, key, &data); err == nil {
		return decode(data, dest)
	}
	if err := lc.l2.Get(ctx, key, &data); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.l1TTL)
	return decode(data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	if err := lc.l2.Delete(ctx, keys...); err != nil {
		return err
	}
	for _, k := range keys {
		lc.broadcast(ctx, "k", k)
	}
	return nil
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	err := errors.Join(lc.l1.DeleteByPattern(ctx, pattern), lc.l2.DeleteByPattern(ctx, pattern))
	if err != nil {
		return err
	}
	lc.broadcast(ctx, "p", pattern)
	return nil
}

// Locks live in Redis only; the memory tier cannot coordinate instances.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

func (lc *LayeredCache) Close() error {
	lc.once.Do(func() {
		lc.cancel()
		lc.wg.Wait()
		_ = lc.l1.Close()
	})
	return nil
}

// Messages are "<node>|<k|p>|<key or pattern>".
func (lc *LayeredCache) broadcast(ctx context.Context, kind, target string) {
	_ = lc.l2.Client().Publish(ctx, lc.channel, lc.node+"|"+kind+"|"+target).Err()
}

func (lc *LayeredCache) listen(ctx context.Context, msgs <-chan *redis.Message, closeSub func()) {
	defer lc.wg.Done()
	defer closeSub()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			lc.apply(ctx, m.Payload)
		}
	}
}

func (lc *LayeredCache) apply(ctx context.Context, payload string) {
	parts := strings.SplitN(payload, "|", 3)
	if len(parts) != 3 || parts[0] == lc.node {
		return
	}
	switch parts[1] {
	case "k":
		_ = lc.l1.Delete(ctx, parts[2])
	case "p":
		_ = lc.l1.DeleteByPattern(ctx, parts[2])
	}
}
