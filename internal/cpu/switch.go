package cpu

import "tickos/internal/arch"

// thread is the goroutine backing one execution context.
type thread struct {
	wake    chan struct{}
	entry   func()
	started bool
}

// thread returns the goroutine record of ctx. An unbound context switched
// away from is the flow that is already running, e.g. the bootstrap task;
// an unbound context switched to has nothing to run.
func (c *CPU) thread(ctx *arch.Context, running bool) *thread {
	c.threadMu.Lock()
	defer c.threadMu.Unlock()

	t, ok := c.threads[ctx]
	if !ok {
		t = &thread{wake: make(chan struct{}, 1), started: running}
		c.threads[ctx] = t
	}
	return t
}

// Bind implements arch.Binder. The next switch to ctx starts entry on a
// fresh goroutine; rebinding discards the previous flow of control.
func (c *CPU) Bind(ctx *arch.Context, entry func()) {
	c.threadMu.Lock()
	c.threads[ctx] = &thread{wake: make(chan struct{}, 1), entry: entry}
	c.threadMu.Unlock()
}

// SwitchContext implements arch.Switcher. It hands the CPU to to and blocks
// the calling goroutine until from is switched back to.
func (c *CPU) SwitchContext(to, from *arch.Context) {
	if to == from {
		return
	}
	ft := c.thread(from, true)
	tt := c.thread(to, false)

	if c.InterruptsEnabled() {
		from.RFlags |= arch.RFlagsIF
	} else {
		from.RFlags &^= arch.RFlagsIF
	}

	c.threadMu.Lock()
	start := !tt.started
	tt.started = true
	c.threadMu.Unlock()

	if start {
		if tt.entry == nil {
			panic("cpu: switch to a context that was never initialized")
		}
		go c.run(to, tt)
	} else {
		tt.wake <- struct{}{}
	}

	<-ft.wake
	c.setInterrupts(from.InterruptsEnabled())
}

func (c *CPU) run(ctx *arch.Context, t *thread) {
	c.setInterrupts(ctx.InterruptsEnabled())
	t.entry()

	// Returning from a task entry has nowhere to go. Park the goroutine so
	// the fault is visible in a dump instead of corrupting another flow.
	c.log.Printf("cpu: task entry at %#x returned", ctx.RIP)
	select {}
}
