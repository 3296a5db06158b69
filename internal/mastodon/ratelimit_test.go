package mastodon

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rateLimitHeaders(limit, remaining, reset string) http.Header {
	h := http.Header{}
	if limit != "" {
		h.Set("X-RateLimit-Limit", limit)
	}
	if remaining != "" {
		h.Set("X-RateLimit-Remaining", remaining)
	}
	if reset != "" {
		h.Set("X-RateLimit-Reset", reset)
	}
	return h
}

func TestRateLimiterUpdate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()

	rl.Update(rateLimitHeaders("300", "42", "2024-03-01T12:05:00.000Z"), now)

	status := rl.Status()
	assert.Equal(t, 300, status.Limit)
	assert.Equal(t, 42, status.Remaining)
	assert.True(t, status.HasRemaining)
	assert.True(t, status.HasReset)
	assert.True(t, status.ResetAt.Equal(now.Add(5*time.Minute)))
	assert.Equal(t, now, status.LastUpdated)

	// A response without headers clears the previous state
	rl.Update(http.Header{}, now)
	status = rl.Status()
	assert.False(t, status.HasRemaining)
	assert.False(t, status.HasReset)
}

func TestRateLimiterDelay(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	resetAt := now.Add(91*time.Minute + 30*time.Second).Format(time.RFC3339Nano)

	tests := []struct {
		name     string
		headers  http.Header
		lowWater int
		want     time.Duration
	}{
		{"ExhaustedWaitsUntilReset", rateLimitHeaders("300", "0", resetAt), 1, 5490 * time.Second},
		{"AtLowWaterMark", rateLimitHeaders("300", "1", resetAt), 1, 5490 * time.Second},
		{"AboveLowWaterMark", rateLimitHeaders("300", "2", resetAt), 1, 0},
		{"ZeroAlwaysQualifies", rateLimitHeaders("300", "0", resetAt), 0, 5490 * time.Second},
		{"NegativeLowWaterMark", rateLimitHeaders("300", "0", resetAt), -5, 5490 * time.Second},
		{"ResetInThePast", rateLimitHeaders("300", "0", now.Add(-time.Minute).Format(time.RFC3339)), 1, 0},
		{"MissingReset", rateLimitHeaders("300", "0", ""), 1, 0},
		{"MissingRemaining", rateLimitHeaders("300", "", resetAt), 1, 0},
		{"UnparsableReset", rateLimitHeaders("300", "0", "soon"), 1, 0},
		{"UnixSecondsReset", rateLimitHeaders("300", "0", "1709294460"), 1, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter()
			rl.Update(tt.headers, now)
			assert.Equal(t, tt.want, rl.Delay(now, tt.lowWater))
		})
	}
}
