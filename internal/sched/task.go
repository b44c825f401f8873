package sched

import (
	"encoding/binary"
	"unsafe"

	"tickos/internal/arch"
	"tickos/internal/mem"
	"tickos/internal/msg"
)

// TaskID uniquely identifies a task in the scheduler.
type TaskID uint64

// TaskFunc is a task entry point. It must not return.
type TaskFunc func(id TaskID, arg int64)

// Task represents one schedulable unit of execution.
type Task struct {
	id      TaskID
	level   int
	running bool // true while the task sits in a run queue
	ctx     arch.Context
	stack   []uint64
	msgs    *msg.Queue
	mgr     *Manager
}

func newTask(id TaskID, mgr *Manager) *Task {
	return &Task{
		id:   id,
		msgs: msg.NewQueue(),
		mgr:  mgr,
	}
}

func (t *Task) ID() TaskID { return t.id }

func (t *Task) Level() int { return t.level }

func (t *Task) Running() bool { return t.running }

// Context returns the task's saved register file.
func (t *Task) Context() *arch.Context { return &t.ctx }

// SetLevel sets the level the task is queued at by the next Wakeup. A task
// that is already runnable is moved to the new level.
func (t *Task) SetLevel(level int) *Task {
	if t.running {
		t.mgr.Wakeup(t, level)
		return t
	}
	t.level = t.mgr.clampLevel(level)
	return t
}

// SetRunning sets the running flag without touching the run queues. It is
// meant for bootstrap tasks that are queued by hand.
func (t *Task) SetRunning(running bool) *Task {
	t.running = running
	return t
}

// InitContext gives the task a fresh stack and a register file that starts
// executing f(id, arg) when the task is first switched to. Calling it again
// releases the previous stack.
func (t *Task) InitContext(f TaskFunc, arg int64) (*Task, error) {
	m := t.mgr
	if t.stack != nil {
		m.stacks.FreeStack(t.stack)
		t.stack = nil
	}

	stack, err := m.stacks.AllocStack(mem.Size(m.stackBytes))
	if err != nil {
		return t, err
	}
	t.stack = stack
	stackEnd := uint64(uintptr(unsafe.Pointer(unsafe.SliceData(stack)))) + uint64(len(stack))*8

	t.ctx = arch.Context{
		CR3:    m.platform.CR3(),
		RFlags: arch.RFlagsInit,
		CS:     arch.KernelCS,
		SS:     arch.KernelSS,
		RSP:    (stackEnd &^ (arch.StackAlign - 1)) - 8,
		RIP:    arch.EntryPC(f),
		RDI:    uint64(t.id),
		RSI:    uint64(arg),
	}
	binary.LittleEndian.PutUint32(t.ctx.FXSaveArea[arch.MXCSROffset:], arch.MXCSRDefault)

	if b, ok := m.platform.(arch.Binder); ok {
		id := t.id
		b.Bind(&t.ctx, func() { f(id, arg) })
	}
	return t, nil
}

// Stack returns the task's stack region.
func (t *Task) Stack() []uint64 {
	return t.stack
}

// Sleep takes the task off the run queues. See Manager.Sleep.
func (t *Task) Sleep() *Task {
	t.mgr.Sleep(t)
	return t
}

// Wakeup makes the task runnable at its current level. See Manager.Wakeup.
func (t *Task) Wakeup() *Task {
	t.mgr.Wakeup(t, -1)
	return t
}

// SendMessage queues m and wakes the task so it is never left asleep with
// unread messages.
func (t *Task) SendMessage(m msg.Message) {
	t.msgs.Push(m)
	t.Wakeup()
}

// ReceiveMessage pops the oldest message. It never blocks; a task that wants
// to wait sleeps and relies on SendMessage to wake it.
func (t *Task) ReceiveMessage() (msg.Message, bool) {
	return t.msgs.Pop()
}

// Pending returns the number of unread messages.
func (t *Task) Pending() int {
	return t.msgs.Len()
}
