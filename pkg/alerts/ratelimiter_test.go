package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	limiter := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.CanSend())
		limiter.RecordNotification()
	}

	assert.False(t, limiter.CanSend())
	assert.Equal(t, 3, limiter.CurrentCount())
}

func TestRateLimiterExpiresOldNotifications(t *testing.T) {
	limiter := NewRateLimiter(2)
	now := time.Now()

	limiter.RecordNotificationAt(now.Add(-2 * time.Minute))
	limiter.RecordNotificationAt(now.Add(-30 * time.Second))

	assert.True(t, limiter.CanSend(), "the two-minute-old entry is outside the window")
	assert.Equal(t, 1, limiter.CurrentCount())
}

func TestRateLimiterFillsThenFrees(t *testing.T) {
	limiter := NewRateLimiter(2)
	now := time.Now()

	limiter.RecordNotificationAt(now.Add(-30 * time.Second))
	limiter.RecordNotificationAt(now.Add(-10 * time.Second))
	assert.False(t, limiter.CanSend())

	// Age the oldest entry past the window.
	limiter.recent[0] = now.Add(-2 * time.Minute)
	assert.True(t, limiter.CanSend())
	assert.Equal(t, 1, limiter.CurrentCount())
}

func TestRateLimiterCountEmpty(t *testing.T) {
	limiter := NewRateLimiter(5)
	assert.Equal(t, 0, limiter.CurrentCount())
	assert.True(t, limiter.CanSend())
}
