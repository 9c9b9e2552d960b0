package sampling

import (
	"sync"
	"time"
)

const (
	// growthFactor stretches the interval while the system is under
	// resource pressure; decayFactor walks it back toward the base rate
	// once pressure clears
	growthFactor = 1.5
	decayFactor  = 0.9

	// MaxInterval bounds how far sampling can back off
	MaxInterval = 60 * time.Second
)

// Controller adapts a sampling interval to resource pressure. Growth is
// capped at MaxInterval, decay stops exactly at the base interval, and a
// step never overshoots either bound.
//
// The current interval is the only state shared between the adjusting loop
// and readers, so a single mutex guards it.
type Controller struct {
	mu      sync.Mutex
	base    time.Duration
	current time.Duration
}

// NewController creates a controller starting at the base interval.
func NewController(base time.Duration) *Controller {
	return &Controller{
		base:    base,
		current: base,
	}
}

// Base returns the configured base interval
func (c *Controller) Base() time.Duration {
	return c.base
}

// Current returns the interval to use for the next sample
func (c *Controller) Current() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Adjust moves the interval one step toward the rate appropriate for the
// reported pressure and returns the interval together with whether it
// changed. Without pressure the interval only moves if it is above base.
func (c *Controller) Adjust(underPressure bool) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current
	if underPressure {
		next = time.Duration(float64(c.current) * growthFactor)
		if next > MaxInterval {
			next = MaxInterval
		}
	} else if c.current > c.base {
		next = time.Duration(float64(c.current) * decayFactor)
		if next < c.base {
			next = c.base
		}
	}

	if next == c.current {
		return c.current, false
	}
	c.current = next
	return next, true
}

// Reset returns the interval to base, for a fresh collector start
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.base
}
