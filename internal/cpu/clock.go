package cpu

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the periodic local APIC timer. Every period it raises its vector
// on the CPU and counts the interrupt.
type Clock struct {
	cpu    *CPU
	vector Vector
	count  atomic.Int64

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// NewClock creates a clock wired to vector v of c. It does not start it.
func NewClock(c *CPU, v Vector) *Clock {
	return &Clock{cpu: c, vector: v}
}

// Start begins raising interrupts at the given interval. Starting a running
// clock is a no-op.
func (k *Clock) Start(interval time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ticker != nil {
		return
	}

	k.ticker = time.NewTicker(interval)
	k.stop = make(chan struct{})
	k.done = make(chan struct{})
	go k.loop(k.ticker, k.stop, k.done)
}

func (k *Clock) loop(ticker *time.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			k.count.Add(1)
			k.cpu.Raise(k.vector)
		case <-stop:
			return
		}
	}
}

// Reset changes the interval of a running clock.
func (k *Clock) Reset(interval time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ticker != nil {
		k.ticker.Reset(interval)
	}
}

// Stop halts the clock and waits for its goroutine to exit.
func (k *Clock) Stop() {
	k.mu.Lock()
	if k.ticker == nil {
		k.mu.Unlock()
		return
	}
	stop, done := k.stop, k.done
	k.ticker = nil
	k.mu.Unlock()

	close(stop)
	<-done
}

// Count returns the number of interrupts raised so far.
func (k *Clock) Count() int64 {
	return k.count.Load()
}

// Counter is a free-running down counter like the LAPIC current count
// register, driven at a fixed frequency.
type Counter struct {
	freq  uint64
	now   func() time.Time
	start time.Time
	run   bool
}

const counterMax = 0xffffffff

// DefaultCounterFreq is the LAPIC counter rate used when none is measured.
const DefaultCounterFreq = 100_000_000

// NewCounter returns a counter decrementing freq times per second.
func NewCounter(freq uint64) *Counter {
	return NewCounterWithClock(freq, time.Now)
}

// NewCounterWithClock is NewCounter reading time from now.
func NewCounterWithClock(freq uint64, now func() time.Time) *Counter {
	return &Counter{freq: freq, now: now}
}

// Start loads the initial count.
func (c *Counter) Start() {
	c.start = c.now()
	c.run = true
}

// Stop clears the initial count.
func (c *Counter) Stop() {
	c.run = false
}

// Elapsed returns how far the counter has moved since Start.
func (c *Counter) Elapsed() uint32 {
	if !c.run {
		return 0
	}
	d := c.now().Sub(c.start)
	n := uint64(d/time.Microsecond) * c.freq / 1_000_000
	if n > counterMax {
		n = counterMax
	}
	return uint32(n)
}

// Calibrate measures c against a known delay and returns counts per second.
// wait must block for exactly d of real time.
func Calibrate(c *Counter, d time.Duration, wait func(time.Duration)) uint64 {
	c.Start()
	wait(d)
	elapsed := c.Elapsed()
	c.Stop()
	if d <= 0 {
		return 0
	}
	return uint64(elapsed) * uint64(time.Second) / uint64(d)
}
