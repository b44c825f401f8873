// Package kernel wires the timer, the scheduler and the hosted CPU together:
// it owns the timer interrupt bridge and the main event loop.
package kernel

import (
	"context"
	"fmt"
	"io"
	"log"

	"tickos/internal/config"
	"tickos/internal/cpu"
	"tickos/internal/mem"
	"tickos/internal/msg"
	"tickos/internal/sched"
	"tickos/internal/timer"
)

// HandlerFunc processes one event popped from the main queue.
type HandlerFunc func(msg.Message)

// Kernel is created once at boot and passed to everything that needs the
// scheduler or the timers.
type Kernel struct {
	cfg    config.Config
	cpu    *cpu.CPU
	events *msg.Queue
	timers *timer.Manager
	tasks  *sched.Manager
	stacks *mem.Heap
	main   *sched.Task
	lapic  *cpu.Counter

	handlers map[msg.Kind]HandlerFunc
	log      *log.Logger
}

// Option configures a Kernel.
type Option func(*options)

type options struct {
	log    *log.Logger
	status chan<- sched.StatusEvent
	lapic  *cpu.Counter
}

// WithLogger sets the logger shared by the kernel and its managers.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithCounter sets the counter used to time event handlers.
func WithCounter(c *cpu.Counter) Option {
	return func(o *options) { o.lapic = c }
}

// WithStatus streams scheduler transitions to ch.
func WithStatus(ch chan<- sched.StatusEvent) Option {
	return func(o *options) { o.status = ch }
}

// New boots the core on c. The calling goroutine becomes the main task.
func New(cfg config.Config, c *cpu.CPU, opts ...Option) (*Kernel, error) {
	o := options{
		log:   log.New(io.Discard, "", 0),
		lapic: cpu.NewCounter(cpu.DefaultCounterFreq),
	}
	for _, opt := range opts {
		opt(&o)
	}

	k := &Kernel{
		cfg:      cfg,
		cpu:      c,
		events:   msg.NewQueue(),
		stacks:   mem.NewHeap(mem.Size(cfg.StackLimit)),
		lapic:    o.lapic,
		handlers: make(map[msg.Kind]HandlerFunc),
		log:      o.log,
	}

	k.timers = timer.NewManager(k.events, c,
		timer.WithPeriod(uint64(cfg.TaskTimerPeriod)),
		timer.WithLogger(o.log),
	)

	schedOpts := []sched.Option{
		sched.WithMaxLevel(cfg.MaxLevel),
		sched.WithMainLevel(cfg.MainLevel),
		sched.WithStackBytes(cfg.StackBytes),
		sched.WithStackAllocator(k.stacks),
		sched.WithLogger(o.log),
	}
	if o.status != nil {
		schedOpts = append(schedOpts, sched.WithStatus(o.status))
	}
	tasks, err := sched.NewManager(c, schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	k.tasks = tasks
	k.main = tasks.CurrentTask()

	c.SetHandler(cpu.VectorLAPICTimer, k.onTimerInterrupt)
	c.SetHandler(cpu.VectorXHCI, k.onXHCIInterrupt)

	k.timers.Arm()
	k.log.Printf("kernel: main task %d at level %d, heartbeat every %d ticks",
		k.main.ID(), k.main.Level(), k.timers.Period())
	return k, nil
}

// Tasks returns the scheduler.
func (k *Kernel) Tasks() *sched.Manager { return k.tasks }

// Timers returns the timer manager.
func (k *Kernel) Timers() *timer.Manager { return k.timers }

// CPU returns the processor the kernel runs on.
func (k *Kernel) CPU() *cpu.CPU { return k.cpu }

// Events returns the main event queue.
func (k *Kernel) Events() *msg.Queue { return k.events }

// Main returns the bootstrap task that runs the event loop.
func (k *Kernel) Main() *sched.Task { return k.main }

// Stacks returns the allocator task stacks come from.
func (k *Kernel) Stacks() *mem.Heap { return k.stacks }

// Logger returns the kernel logger.
func (k *Kernel) Logger() *log.Logger { return k.log }

// onTimerInterrupt is the only preemption path: tick, acknowledge, then
// reschedule if the heartbeat fired.
func (k *Kernel) onTimerInterrupt() {
	resched := k.timers.Tick()
	k.cpu.EndOfInterrupt()
	k.wakeMain()

	if resched {
		k.tasks.SwitchTask(false)
	}
}

func (k *Kernel) onXHCIInterrupt() {
	k.events.Push(msg.Message{Kind: msg.KindInterruptXHCI})
	k.cpu.EndOfInterrupt()
	k.wakeMain()
}

// wakeMain makes the event loop runnable when there is something to
// consume. Waking a running task is a no-op.
func (k *Kernel) wakeMain() {
	if !k.events.Empty() {
		k.tasks.Wakeup(k.main, -1)
	}
}

// AddTimer fires value after the given number of ticks from now.
func (k *Kernel) AddTimer(after uint64, value int) error {
	return k.timers.AddTimer(timer.New(k.timers.CurrentTick()+after, value))
}

// Spawn creates a task running f(id, arg) and makes it runnable at level.
func (k *Kernel) Spawn(level int, f sched.TaskFunc, arg int64) (*sched.Task, error) {
	t, err := k.tasks.NewTask().InitContext(f, arg)
	if err != nil {
		return nil, fmt.Errorf("spawn task %d: %w", t.ID(), err)
	}
	k.tasks.Wakeup(t.SetLevel(level), -1)
	return t, nil
}

// Handle registers fn for events of the given kind, replacing any previous
// handler.
func (k *Kernel) Handle(kind msg.Kind, fn HandlerFunc) {
	k.handlers[kind] = fn
}

// Run is the main event loop. It must be called from the goroutine that
// created the kernel. Run sleeps the main task whenever the queue is empty
// and returns once ctx is done and the next event has been processed.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		prev := k.cpu.DisableInterrupts()
		m, ok := k.events.Pop()
		if !ok {
			k.tasks.Sleep(k.main)
			k.cpu.RestoreInterrupts(prev)
			continue
		}
		k.cpu.RestoreInterrupts(prev)

		k.dispatch(m)
	}
}

// dispatch runs the handler for m and logs how many LAPIC counts it took.
func (k *Kernel) dispatch(m msg.Message) {
	k.lapic.Start()
	k.handle(m)
	elapsed := k.lapic.Elapsed()
	k.lapic.Stop()
	k.log.Printf("kernel: %s handled in %d counts", m.Kind, elapsed)
}

func (k *Kernel) handle(m msg.Message) {
	if fn, ok := k.handlers[m.Kind]; ok {
		fn(m)
		return
	}
	switch m.Kind {
	case msg.KindInterruptXHCI:
		k.log.Printf("kernel: xhci event")
	case msg.KindTimerTimeout:
		k.log.Printf("kernel: timer timeout=%d value=%d", m.Timer.Timeout, m.Timer.Value)
	default:
		k.log.Printf("kernel: unknown message type: %s (%d)", m.Kind, int(m.Kind))
	}
}
