package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowPerKey(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, 2, WithClock(func() time.Time { return now }))

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst exhausted")
	assert.True(t, l.Allow("b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"), "refilled after one second")
}

func TestSweepDropsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(10, 1, WithMaxKeys(2), WithClock(func() time.Time { return now }))
	l.Allow("a")
	l.Allow("b")
	now = now.Add(time.Hour)
	l.Allow("c")
	assert.Equal(t, 1, l.Keys())
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	e := echo.New()
	now := time.Now()
	l := New(1, 1, WithClock(func() time.Time { return now }))
	h := Middleware(l)(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodPost, "/resolve", nil), rec)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(httptest.NewRequest(http.MethodPost, "/resolve", nil), rec)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")
}
