package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Window(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(2, true)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.AllowRequest())
	assert.True(t, rl.AllowRequest())
	assert.False(t, rl.AllowRequest())
	assert.Equal(t, 0, rl.GetStats().RemainingThisMinute)

	now = now.Add(61 * time.Second)
	assert.True(t, rl.AllowRequest())
	assert.Equal(t, 1, rl.GetStats().RequestsLastMinute)

	rl.Reset()
	assert.Equal(t, 2, rl.GetStats().RemainingThisMinute)
}

func TestRateLimiter_Disabled(t *testing.T) {
	for _, rl := range []*RateLimiter{NewRateLimiter(1, false), NewRateLimiter(0, true)} {
		for i := 0; i < 5; i++ {
			assert.True(t, rl.AllowRequest())
		}
		assert.False(t, rl.GetStats().Enabled)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, true)
	r := gin.New()
	r.POST("/x", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestPacer_PausesBeforeEveryNavigation(t *testing.T) {
	p := NewPacer(time.Second, 0)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, slept)
}

func TestPacer_JitterOnEveryWait(t *testing.T) {
	p := NewPacer(100*time.Millisecond, 50*time.Millisecond)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	for i := 0; i < 20; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	require.Len(t, slept, 20)
	distinct := make(map[time.Duration]bool)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 150*time.Millisecond)
		distinct[d] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func TestPacer_WaitHonoursContext(t *testing.T) {
	p := NewPacer(time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
