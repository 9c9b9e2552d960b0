package restart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelaySequence(t *testing.T) {
	policy := NewPolicy()

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}

	for i, want := range expected {
		assert.Equal(t, want, policy.NextDelay(), "delay %d", i+1)
	}
}

func TestPolicyHealthyRunResetsSchedule(t *testing.T) {
	policy := NewPolicy()

	policy.RecordFailure()
	policy.RecordFailure()
	assert.Equal(t, 1*time.Second, policy.NextDelay())
	assert.Equal(t, 2*time.Second, policy.NextDelay())

	policy.RecordSuccess()
	assert.Equal(t, 0, policy.Failures())
	assert.Equal(t, 1*time.Second, policy.NextDelay(), "healthy run restarts the schedule")
}

func TestPolicyDegradesAtExactlyMaxFailures(t *testing.T) {
	policy := NewPolicy()

	for i := 1; i < MaxConsecutiveFailures; i++ {
		policy.RecordFailure()
		assert.False(t, policy.ShouldDegrade(), "streak of %d must not degrade", i)
	}

	streak := policy.RecordFailure()
	assert.Equal(t, MaxConsecutiveFailures, streak)
	assert.True(t, policy.ShouldDegrade(), "streak of %d must degrade", MaxConsecutiveFailures)

	policy.Reset()
	assert.False(t, policy.ShouldDegrade())
	assert.Equal(t, 0, policy.Failures())
	assert.Equal(t, 1*time.Second, policy.NextDelay(), "degraded pause resets the schedule")
}
