package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter caps control API calls over a sliding one-minute window
type RateLimiter struct {
	requestsPerMinute int
	enabled           bool

	window []time.Time
	mu     sync.Mutex
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter. A non-positive limit disables it.
func NewRateLimiter(requestsPerMinute int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		enabled:           enabled && requestsPerMinute > 0,
		window:            make([]time.Time, 0),
		now:               time.Now,
	}
}

// AllowRequest records a request and reports whether it fits the limit
func (rl *RateLimiter) AllowRequest() bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)
	if len(rl.window) >= rl.requestsPerMinute {
		return false
	}
	rl.window = append(rl.window, now)
	return true
}

// retryAfter is how long until the oldest tracked request leaves the window
func (rl *RateLimiter) retryAfter() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.window) == 0 {
		return 0
	}
	return rl.window[0].Add(time.Minute).Sub(rl.now())
}

// cleanup removes entries older than a minute
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.window = filterTimes(rl.window, now.Add(-1*time.Minute))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	result := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanup(rl.now())

	return Stats{
		Enabled:             true,
		RequestsLastMinute:  len(rl.window),
		LimitPerMinute:      rl.requestsPerMinute,
		RemainingThisMinute: max(0, rl.requestsPerMinute-len(rl.window)),
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	Enabled             bool `json:"enabled"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	LimitPerMinute      int  `json:"limit_per_minute"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.window = make([]time.Time, 0)
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.AllowRequest() {
			secs := int(rl.retryAfter().Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
