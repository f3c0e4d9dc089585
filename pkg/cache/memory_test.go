package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type payload struct {
	Ticker string  `json:"ticker"`
	Score  float64 `json:"score"`
}

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "resolve:shipping:foxconn", payload{Ticker: "HNHPF", Score: 0.97}, time.Hour))

	var got payload
	require.NoError(t, mc.Get(ctx, "resolve:shipping:foxconn", &got))
	assert.Equal(t, payload{Ticker: "HNHPF", Score: 0.97}, got)

	clock.Advance(time.Hour)
	err := mc.Get(ctx, "resolve:shipping:foxconn", &got)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Hour))
	require.NoError(t, mc.Set(ctx, "b", "2", time.Hour))

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", time.Hour))

	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for _, k := range []string{"resolve:shipping:foxconn", "resolve:hiring:foxconn", "resolve:hiring:apple"} {
		require.NoError(t, mc.Set(ctx, k, "x", time.Hour))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, "resolve:*:foxconn"))

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "resolve:shipping:foxconn", &s), ErrCacheMiss)
	assert.ErrorIs(t, mc.Get(ctx, "resolve:hiring:foxconn", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "resolve:hiring:apple", &s))
}

func TestMemoryCacheTryLock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "lock:k", time.Minute)
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	ok, _ = mc.TryLock(ctx, "lock:k", time.Minute)
	assert.True(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:k"))
	ok, _ = mc.TryLock(ctx, "lock:k", time.Minute)
	assert.True(t, ok)
}

func TestKeyHashesLongSegments(t *testing.T) {
	assert.Equal(t, "resolve:shipping:foxconn", Key("resolve", "shipping", "foxconn"))
	assert.Equal(t, "resolve:_:x", Key("resolve", "", "x"))

	long := strings.Repeat("hon hai precision ", 10)
	k := Key("resolve", "shipping", long)
	assert.Equal(t, "resolve:shipping:"+Part(long), k)
	assert.Less(t, len(k), 64)
	assert.NotEqual(t, Part(long), Part(long+"x"))
}

func TestMemoryCacheSweepDropsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	mc := NewMemoryCache(WithMemoryClock(clock.Now))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "short", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "long", "2", time.Hour))
	clock.Advance(10 * time.Minute)
	mc.sweep()

	assert.Equal(t, 1, mc.Len())
	var s string
	require.NoError(t, mc.Get(ctx, "long", &s))
	assert.Equal(t, "2", s)
}
