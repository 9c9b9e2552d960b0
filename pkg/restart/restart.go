package restart

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// MaxConsecutiveFailures is the failure streak that tips a collector
	// into degraded mode
	MaxConsecutiveFailures = 5

	// DegradedPause is the single long pause taken in degraded mode
	// before the failure cycle starts over
	DegradedPause = 60 * time.Second

	initialDelay = 1 * time.Second
	maxDelay     = 60 * time.Second
)

// Policy is the restart schedule for a supervised subprocess: exponential
// delays from 1s doubling to a 60s ceiling while failures accumulate, and a
// full reset after a healthy run or a completed degraded pause. An explicit
// stop never records a failure.
//
// Policy is owned by the supervising goroutine and is not safe for
// concurrent use.
type Policy struct {
	failures int
	schedule *backoff.ExponentialBackOff
}

func NewPolicy() *Policy {
	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = initialDelay
	schedule.Multiplier = 2.0
	schedule.RandomizationFactor = 0
	schedule.MaxInterval = maxDelay
	schedule.MaxElapsedTime = 0
	schedule.Reset()
	return &Policy{schedule: schedule}
}

// RecordFailure counts one failed run and returns the streak length
func (p *Policy) RecordFailure() int {
	p.failures++
	return p.failures
}

// RecordSuccess clears the streak after a healthy run
func (p *Policy) RecordSuccess() {
	p.Reset()
}

// Failures returns the current streak length
func (p *Policy) Failures() int {
	return p.failures
}

// ShouldDegrade reports whether the streak has reached degraded mode
func (p *Policy) ShouldDegrade() bool {
	return p.failures >= MaxConsecutiveFailures
}

// NextDelay returns the delay to wait before the next spawn attempt and
// advances the schedule: 1s, 2s, 4s, ... capped at 60s.
func (p *Policy) NextDelay() time.Duration {
	return p.schedule.NextBackOff()
}

// Reset clears the streak and restarts the schedule from the initial delay
func (p *Policy) Reset() {
	p.failures = 0
	p.schedule.Reset()
}
