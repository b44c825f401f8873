// Package cpu models a single logical processor on top of goroutines.
//
// Exactly one goroutine owns the CPU at any time; ownership moves only
// through SwitchContext. Interrupts raised from other goroutines are queued
// and delivered in the owning flow at the next point where IF is set and the
// flow reaches Pause, Halt or RestoreInterrupts, which is the hosted
// counterpart of "between two instructions".
package cpu

import (
	"io"
	"log"
	"sync"

	"tickos/internal/arch"
)

// Vector identifies an interrupt source.
type Vector uint8

const (
	VectorXHCI       Vector = 0x40
	VectorLAPICTimer Vector = 0x41
)

// Handler services one interrupt. It runs with interrupts disabled.
type Handler func()

// CPU is the hosted processor. The zero value is not usable; call New.
type CPU struct {
	mu       sync.Mutex
	enabled  bool
	pending  []Vector
	handlers map[Vector]Handler
	eoi      uint64
	wake     chan struct{}
	cr3      uint64
	log      *log.Logger

	threadMu sync.Mutex
	threads  map[*arch.Context]*thread
}

// Option configures a CPU.
type Option func(*CPU)

// WithLogger sets the logger used for spurious interrupts and runaway tasks.
func WithLogger(l *log.Logger) Option {
	return func(c *CPU) { c.log = l }
}

// WithCR3 sets the address space root reported to new tasks.
func WithCR3(cr3 uint64) Option {
	return func(c *CPU) { c.cr3 = cr3 }
}

// New returns a CPU with interrupts enabled and no handlers installed.
func New(opts ...Option) *CPU {
	c := &CPU{
		enabled:  true,
		handlers: make(map[Vector]Handler),
		wake:     make(chan struct{}, 1),
		cr3:      0x1000,
		log:      log.New(io.Discard, "", 0),
		threads:  make(map[*arch.Context]*thread),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHandler installs h for vector v, replacing any previous handler.
func (c *CPU) SetHandler(v Vector, h Handler) {
	c.mu.Lock()
	c.handlers[v] = h
	c.mu.Unlock()
}

// CR3 implements arch.AddressSpace.
func (c *CPU) CR3() uint64 {
	return c.cr3
}

// DisableInterrupts implements arch.Interrupts (cli).
func (c *CPU) DisableInterrupts() bool {
	c.mu.Lock()
	prev := c.enabled
	c.enabled = false
	c.mu.Unlock()
	return prev
}

// RestoreInterrupts implements arch.Interrupts. Setting IF delivers any
// interrupt that became pending while it was clear.
func (c *CPU) RestoreInterrupts(enabled bool) {
	if !enabled {
		return
	}
	c.setInterrupts(true)
	c.deliver()
}

// InterruptsEnabled reports the current IF value.
func (c *CPU) InterruptsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *CPU) setInterrupts(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// Raise asserts vector v. It is the only method safe to call from a
// goroutine that does not own the CPU.
func (c *CPU) Raise(v Vector) {
	c.mu.Lock()
	c.pending = append(c.pending, v)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of raised but undelivered interrupts.
func (c *CPU) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// EndOfInterrupt acknowledges the interrupt being serviced.
func (c *CPU) EndOfInterrupt() {
	c.mu.Lock()
	c.eoi++
	c.mu.Unlock()
}

// Acknowledged returns how many interrupts were acknowledged.
func (c *CPU) Acknowledged() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eoi
}

// Pause is a preemption point: pending interrupts are serviced if IF is set.
func (c *CPU) Pause() {
	c.deliver()
}

// Halt implements arch.Halter. It waits for an interrupt and services it.
// Halting with IF clear never returns, as on hardware.
func (c *CPU) Halt() {
	for {
		c.mu.Lock()
		ready := len(c.pending) > 0 && c.enabled
		c.mu.Unlock()
		if ready {
			break
		}
		<-c.wake
	}
	c.deliver()
}

func (c *CPU) deliver() {
	for {
		c.mu.Lock()
		if !c.enabled || len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		v := c.pending[0]
		c.pending = c.pending[1:]
		h := c.handlers[v]
		c.enabled = false
		c.mu.Unlock()

		if h != nil {
			h()
		} else {
			c.log.Printf("cpu: spurious interrupt vector %#x", uint8(v))
		}

		// iret restores the interrupted flags, which had IF set
		c.setInterrupts(true)
	}
}
