package cpu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockRaisesInterrupts(t *testing.T) {
	c := New()
	k := NewClock(c, VectorLAPICTimer)

	k.Start(time.Millisecond)
	k.Start(time.Millisecond) // no second goroutine
	assert.Eventually(t, func() bool { return k.Count() >= 3 }, time.Second, time.Millisecond)
	k.Reset(2 * time.Millisecond)
	k.Stop()
	k.Stop()

	n := k.Count()
	assert.GreaterOrEqual(t, c.Pending(), 3)
	assert.Equal(t, int64(c.Pending()), n, "every tick raises exactly one interrupt")
}

func TestCounterElapsed(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	c := NewCounter(1000)
	c.now = func() time.Time { return now }

	assert.Zero(t, c.Elapsed(), "stopped counter reads zero")

	c.Start()
	now = base.Add(250 * time.Millisecond)
	assert.Equal(t, uint32(250), c.Elapsed())

	now = base.Add(2000 * time.Hour)
	assert.Equal(t, uint32(counterMax), c.Elapsed(), "saturates at the register width")
}

func TestCalibrate(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	c := NewCounter(2_000_000)
	c.now = func() time.Time { return now }

	freq := Calibrate(c, 100*time.Millisecond, func(d time.Duration) { now = now.Add(d) })
	assert.Equal(t, uint64(2_000_000), freq)
	assert.Zero(t, c.Elapsed(), "calibration stops the counter")
}
