// Package timer keeps the tick counter and the deadline-ordered set of
// pending timers, and turns due timers into timeout messages.
package timer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"

	"github.com/emirpasic/gods/trees/binaryheap"

	"tickos/internal/arch"
	"tickos/internal/msg"
)

const (
	// Freq is the nominal rate of timer interrupts per second.
	Freq = 100

	// TaskTimerPeriod is the number of ticks between preemption points.
	TaskTimerPeriod = Freq * 2 / 100

	// TaskTimerValue marks the preemption heartbeat. No application timer
	// may carry it.
	TaskTimerValue = math.MinInt32

	sentinelValue = -1
)

// ErrReservedValue is returned by AddTimer for the heartbeat value.
var ErrReservedValue = errors.New("timer value is reserved")

// Timer fires once its timeout tick is reached.
type Timer struct {
	timeout uint64
	value   int
}

// New returns a timer due at the absolute tick timeout.
func New(timeout uint64, value int) Timer {
	return Timer{timeout: timeout, value: value}
}

func (t Timer) Timeout() uint64 { return t.timeout }

func (t Timer) Value() int { return t.value }

// byTimeout orders the heap so the earliest deadline is on top.
func byTimeout(a, b any) int {
	ta, tb := a.(Timer), b.(Timer)
	switch {
	case ta.timeout < tb.timeout:
		return -1
	case ta.timeout > tb.timeout:
		return 1
	default:
		return 0
	}
}

// Manager advances the tick counter and fires due timers.
type Manager struct {
	tick   uint64
	timers *binaryheap.Heap
	msgs   *msg.Queue
	irq    arch.Interrupts
	period uint64
	log    *log.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPeriod sets the heartbeat period in ticks.
func WithPeriod(ticks uint64) Option {
	return func(m *Manager) {
		if ticks > 0 {
			m.period = ticks
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a manager that posts timeouts to msgs. Heap updates
// are bracketed by irq.
func NewManager(msgs *msg.Queue, irq arch.Interrupts, opts ...Option) *Manager {
	m := &Manager{
		timers: binaryheap.NewWith(byTimeout),
		msgs:   msgs,
		irq:    irq,
		period: TaskTimerPeriod,
		log:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.timers.Push(New(math.MaxUint64, sentinelValue))
	return m
}

// Period returns the heartbeat period in ticks.
func (m *Manager) Period() uint64 {
	return m.period
}

// CurrentTick returns the number of Tick calls so far.
func (m *Manager) CurrentTick() uint64 {
	prev := m.irq.DisableInterrupts()
	defer m.irq.RestoreInterrupts(prev)
	return m.tick
}

// AddTimer schedules t.
func (m *Manager) AddTimer(t Timer) error {
	if t.value == TaskTimerValue {
		return fmt.Errorf("add timer at %d: %w", t.timeout, ErrReservedValue)
	}
	m.push(t)
	return nil
}

// Arm installs the preemption heartbeat one period from now.
func (m *Manager) Arm() {
	prev := m.irq.DisableInterrupts()
	defer m.irq.RestoreInterrupts(prev)
	m.timers.Push(New(m.tick+m.period, TaskTimerValue))
	m.log.Printf("timer: heartbeat armed at tick %d, period %d", m.tick+m.period, m.period)
}

func (m *Manager) push(t Timer) {
	prev := m.irq.DisableInterrupts()
	defer m.irq.RestoreInterrupts(prev)
	m.timers.Push(t)
}

// Tick advances the counter by one and fires every timer whose deadline has
// been reached. It reports whether the heartbeat fired, i.e. whether the
// caller should reschedule.
func (m *Manager) Tick() bool {
	prev := m.irq.DisableInterrupts()
	defer m.irq.RestoreInterrupts(prev)

	m.tick++

	resched := false
	for {
		v, _ := m.timers.Peek()
		t := v.(Timer)
		if t.timeout > m.tick {
			break
		}
		m.timers.Pop()

		if t.value == TaskTimerValue {
			resched = true
			m.timers.Push(New(m.tick+m.period, TaskTimerValue))
			continue
		}

		m.msgs.Push(msg.Timeout(t.timeout, t.value))
	}
	return resched
}

// Timers returns the pending timers in deadline order, sentinel included.
func (m *Manager) Timers() []Timer {
	prev := m.irq.DisableInterrupts()
	vals := m.timers.Values()
	m.irq.RestoreInterrupts(prev)

	out := make([]Timer, len(vals))
	for i, v := range vals {
		out[i] = v.(Timer)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].timeout < out[j].timeout })
	return out
}
