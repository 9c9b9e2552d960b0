package sampling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestControllerGrowthUnderPressure(t *testing.T) {
	controller := NewController(5 * time.Second)

	interval, changed := controller.Adjust(true)
	assert.True(t, changed)
	assert.Equal(t, 7500*time.Millisecond, interval, "one step is a 1.5x stretch")

	interval, changed = controller.Adjust(true)
	assert.True(t, changed)
	assert.Equal(t, 11250*time.Millisecond, interval)
}

func TestControllerGrowthCapsAtMax(t *testing.T) {
	controller := NewController(5 * time.Second)

	var interval time.Duration
	for i := 0; i < 30; i++ {
		interval, _ = controller.Adjust(true)
		assert.LessOrEqual(t, interval, MaxInterval, "growth never overshoots the cap")
	}
	assert.Equal(t, MaxInterval, interval, "sustained pressure converges on the cap")

	_, changed := controller.Adjust(true)
	assert.False(t, changed, "at the cap further pressure changes nothing")
}

func TestControllerDecayFloorsAtBase(t *testing.T) {
	base := 5 * time.Second
	controller := NewController(base)

	for i := 0; i < 30; i++ {
		controller.Adjust(true)
	}
	assert.Equal(t, MaxInterval, controller.Current())

	var interval time.Duration
	for i := 0; i < 200; i++ {
		interval, _ = controller.Adjust(false)
		assert.GreaterOrEqual(t, interval, base, "decay never undershoots base")
	}
	assert.Equal(t, base, interval, "calm converges exactly on base")

	_, changed := controller.Adjust(false)
	assert.False(t, changed, "at base a calm step changes nothing")
}

func TestControllerCalmAtBaseIsStable(t *testing.T) {
	controller := NewController(2 * time.Second)

	interval, changed := controller.Adjust(false)
	assert.False(t, changed, "no pressure at base leaves the interval alone")
	assert.Equal(t, 2*time.Second, interval)
}

func TestControllerLastStepLandsExactly(t *testing.T) {
	controller := NewController(40 * time.Second)

	// one pressure step from 40s would be 60s exactly, not beyond
	interval, changed := controller.Adjust(true)
	assert.True(t, changed)
	assert.Equal(t, MaxInterval, interval)

	// and one calm step from 60s toward a 55s base lands on 55s, not 54s
	controller = NewController(55 * time.Second)
	controller.Adjust(true)
	assert.Equal(t, MaxInterval, controller.Current())
	interval, changed = controller.Adjust(false)
	assert.True(t, changed)
	assert.Equal(t, 55*time.Second, interval)
}

func TestControllerReset(t *testing.T) {
	controller := NewController(time.Second)
	controller.Adjust(true)
	assert.NotEqual(t, time.Second, controller.Current())

	controller.Reset()
	assert.Equal(t, time.Second, controller.Current())
}
