// Package ratelimit throttles callers by key with token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key. Idle buckets are swept once the
// number of keys exceeds maxKeys.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*bucket
	rps     rate.Limit
	burst   int
	maxKeys int
	idle    time.Duration
	now     func() time.Time
}

// Option configures Limiter.
type Option func(*Limiter)

func WithMaxKeys(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(rps float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		m:       make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		maxKeys: 10000,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) get(key string) *rate.Limiter {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.maxKeys {
			l.sweep(now)
		}
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.m[key] = b
	}
	b.seen = now
	return b.lim
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.seen) > l.idle {
			delete(l.m, k)
		}
	}
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).AllowN(l.now(), 1)
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}

// Keys reports how many buckets are tracked.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
