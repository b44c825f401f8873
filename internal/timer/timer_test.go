package timer

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickos/internal/msg"
)

// flatIRQ counts critical sections on a CPU that never interrupts.
type flatIRQ struct {
	enabled bool
	depth   int
}

func (f *flatIRQ) DisableInterrupts() bool {
	prev := f.enabled
	f.enabled = false
	f.depth++
	return prev
}

func (f *flatIRQ) RestoreInterrupts(enabled bool) {
	f.depth--
	if enabled {
		f.enabled = true
	}
}

func newManager(opts ...Option) (*Manager, *msg.Queue, *flatIRQ) {
	q := msg.NewQueue()
	irq := &flatIRQ{enabled: true}
	return NewManager(q, irq, opts...), q, irq
}

func TestTickMonotonic(t *testing.T) {
	m, _, irq := newManager()
	require.Zero(t, m.CurrentTick())

	for n := uint64(1); n <= 50; n++ {
		m.Tick()
		assert.Equal(t, n, m.CurrentTick())
	}
	assert.Zero(t, irq.depth, "every critical section is closed")
	assert.True(t, irq.enabled)
}

func TestSentinelKeepsHeapNonEmpty(t *testing.T) {
	m, q, _ := newManager()

	timers := m.Timers()
	require.Len(t, timers, 1)
	assert.Equal(t, uint64(math.MaxUint64), timers[0].Timeout())

	for i := 0; i < 10; i++ {
		assert.False(t, m.Tick())
	}
	assert.True(t, q.Empty(), "the sentinel never fires")
}

func TestDeadlineFiringOrder(t *testing.T) {
	m, q, _ := newManager()

	require.NoError(t, m.AddTimer(New(7, 3)))
	require.NoError(t, m.AddTimer(New(3, 1)))
	require.NoError(t, m.AddTimer(New(5, 2)))

	var fired []msg.Message
	for tick := uint64(1); tick <= 8; tick++ {
		m.Tick()
		for {
			mm, ok := q.Pop()
			if !ok {
				break
			}
			assert.LessOrEqual(t, mm.Timer.Timeout, m.CurrentTick(), "fired before its deadline")
			assert.Equal(t, mm.Timer.Timeout, tick, "fired late")
			fired = append(fired, mm)
		}
	}

	require.Len(t, fired, 3)
	for i, want := range []int{1, 2, 3} {
		assert.Equal(t, msg.KindTimerTimeout, fired[i].Kind)
		assert.Equal(t, want, fired[i].Timer.Value)
		assert.Zero(t, fired[i].SrcTask)
	}
}

func TestOverdueTimersFireTogether(t *testing.T) {
	m, q, _ := newManager()
	require.NoError(t, m.AddTimer(New(0, 10)))
	require.NoError(t, m.AddTimer(New(1, 11)))

	m.Tick()
	vals := q.Values()
	require.Len(t, vals, 2)
	assert.Equal(t, 10, vals[0].Timer.Value)
	assert.Equal(t, 11, vals[1].Timer.Value)
}

func TestHeartbeatRearms(t *testing.T) {
	m, q, _ := newManager(WithPeriod(3))
	m.Arm()

	var fired []uint64
	for i := 0; i < 12; i++ {
		if m.Tick() {
			fired = append(fired, m.CurrentTick())

			next := heartbeat(t, m)
			assert.Equal(t, m.CurrentTick()+3, next.Timeout(), "re-armed one period ahead")
		}
	}
	assert.Equal(t, []uint64{3, 6, 9, 12}, fired)
	assert.True(t, q.Empty(), "the heartbeat never becomes a message")
}

func heartbeat(t *testing.T, m *Manager) Timer {
	t.Helper()
	var found []Timer
	for _, tm := range m.Timers() {
		if tm.Value() == TaskTimerValue {
			found = append(found, tm)
		}
	}
	require.Len(t, found, 1, "exactly one heartbeat is armed")
	return found[0]
}

func TestAddTimerRejectsReservedValue(t *testing.T) {
	m, _, _ := newManager()
	err := m.AddTimer(New(5, TaskTimerValue))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReservedValue))
	assert.Len(t, m.Timers(), 1)
}

func TestDefaultPeriod(t *testing.T) {
	m, _, _ := newManager()
	assert.Equal(t, uint64(2), m.Period())

	m2, _, _ := newManager(WithPeriod(0))
	assert.Equal(t, uint64(TaskTimerPeriod), m2.Period(), "zero period is ignored")
}
