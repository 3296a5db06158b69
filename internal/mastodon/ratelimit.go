package mastodon

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimiter tracks the rate limit state reported by the most recent response
type RateLimiter struct {
	mu           sync.RWMutex
	limit        int
	remaining    int
	hasRemaining bool
	resetAt      time.Time
	hasReset     bool
	lastUpdated  time.Time
}

// RateLimitStatus represents the current rate limit status
type RateLimitStatus struct {
	Limit        int
	Remaining    int
	HasRemaining bool
	ResetAt      time.Time
	HasReset     bool
	LastUpdated  time.Time
}

// NewRateLimiter creates a new rate limiter with no known state
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{}
}

// Update replaces the tracked state with the values found in headers.
// Headers that are absent or unparsable clear the corresponding value.
func (rl *RateLimiter) Update(headers http.Header, now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limit, _ = strconv.Atoi(strings.TrimSpace(headers.Get(headerRateLimitLimit)))

	remaining, err := strconv.Atoi(strings.TrimSpace(headers.Get(headerRateLimitRemaining)))
	rl.remaining = remaining
	rl.hasRemaining = err == nil

	rl.resetAt, rl.hasReset = parseResetTime(headers.Get(headerRateLimitReset))
	rl.lastUpdated = now
}

// Status returns the current rate limit status
func (rl *RateLimiter) Status() RateLimitStatus {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return RateLimitStatus{
		Limit:        rl.limit,
		Remaining:    rl.remaining,
		HasRemaining: rl.hasRemaining,
		ResetAt:      rl.resetAt,
		HasReset:     rl.hasReset,
		LastUpdated:  rl.lastUpdated,
	}
}

// Delay returns how long to pause before the next request. It is zero unless
// the remaining quota is at or below lowWater and a reset time is known; a
// reset time in the past also yields zero.
func (rl *RateLimiter) Delay(now time.Time, lowWater int) time.Duration {
	status := rl.Status()
	if !status.HasRemaining || !status.HasReset {
		return 0
	}
	if status.Remaining > max(lowWater, 0) {
		return 0
	}
	return max(status.ResetAt.Sub(now), 0)
}

// parseResetTime accepts the ISO 8601 timestamps Mastodon sends and falls back
// to Unix seconds.
func parseResetTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, true
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0), true
	}

	return time.Time{}, false
}
