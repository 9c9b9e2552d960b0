package alerts

import (
	"time"
)

// rateWindow is the sliding window notifications are counted over
const rateWindow = time.Minute

// RateLimiter enforces a maximum notification rate over a sliding window.
// It is not synchronized; the alert manager owns one behind its mutex.
type RateLimiter struct {
	maxPerMinute int
	recent       []time.Time
}

// NewRateLimiter creates a limiter allowing maxPerMinute notifications per
// minute.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	return &RateLimiter{maxPerMinute: maxPerMinute}
}

// CanSend reports whether one more notification fits in the window.
func (r *RateLimiter) CanSend() bool {
	r.cleanup()
	return len(r.recent) < r.maxPerMinute
}

// RecordNotification marks a notification as sent now.
func (r *RateLimiter) RecordNotification() {
	r.RecordNotificationAt(time.Now())
}

// RecordNotificationAt marks a notification as sent at the given time,
// for tests that need controlled timestamps.
func (r *RateLimiter) RecordNotificationAt(sentAt time.Time) {
	r.recent = append(r.recent, sentAt)
	r.cleanup()
}

// CurrentCount reports how many notifications are inside the window.
func (r *RateLimiter) CurrentCount() int {
	r.cleanup()
	return len(r.recent)
}

// cleanup drops timestamps older than the window. Entries can arrive out
// of order through RecordNotificationAt, so the whole slice is filtered
// rather than just the front.
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rateWindow)
	kept := r.recent[:0]
	for _, sentAt := range r.recent {
		if sentAt.After(cutoff) {
			kept = append(kept, sentAt)
		}
	}
	r.recent = kept
}
