package sched

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/emirpasic/gods/lists/doublylinkedlist"
	"github.com/emirpasic/gods/maps/treemap"

	"tickos/internal/arch"
	"tickos/internal/mem"
	"tickos/internal/msg"
)

const (
	// DefaultMaxLevel is the highest priority level unless configured.
	DefaultMaxLevel = 3
	// DefaultStackBytes is the stack size given to every task.
	DefaultStackBytes = 4096 * 8
)

var (
	// ErrNoSuchTask is returned by id based operations for unknown ids.
	ErrNoSuchTask = errors.New("no such task")
	// ErrIdleTask is returned when the idle task is asked to sleep.
	ErrIdleTask = errors.New("idle task cannot sleep")
)

// StackAllocator provides task stacks.
type StackAllocator interface {
	AllocStack(n mem.Size) ([]uint64, error)
	FreeStack(s []uint64)
}

// Manager owns every task, keeps one FIFO run queue per level and performs
// the context switches.
type Manager struct {
	platform   arch.Platform
	stacks     StackAllocator
	stackBytes int
	maxLevel   int
	mainLevel  int

	tasks        *treemap.Map             // TaskID -> *Task
	running      []*doublylinkedlist.List // run queue per level, front is executing
	currentLevel int
	levelChanged bool
	latestID     TaskID
	idleTask     *Task

	log    *log.Logger
	status chan<- StatusEvent
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxLevel sets the highest level; levels are [0, level].
func WithMaxLevel(level int) Option {
	return func(m *Manager) {
		if level > 0 {
			m.maxLevel = level
		}
	}
}

// WithMainLevel sets the level of the bootstrap task. It defaults to the
// highest level.
func WithMainLevel(level int) Option {
	return func(m *Manager) { m.mainLevel = level }
}

// WithStackBytes sets the stack size of new task contexts.
func WithStackBytes(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.stackBytes = n
		}
	}
}

// WithStackAllocator replaces the default unlimited heap.
func WithStackAllocator(a StackAllocator) Option {
	return func(m *Manager) { m.stacks = a }
}

// WithLogger sets the manager's logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithStatus streams scheduler transitions to ch. Events are dropped when
// ch is full; the scheduler never blocks on it.
func WithStatus(ch chan<- StatusEvent) Option {
	return func(m *Manager) { m.status = ch }
}

// NewManager creates the manager together with the two bootstrap tasks: the
// calling flow of control becomes the main task, running at the main level,
// and an idle task that halts the CPU keeps level 0 non-empty.
func NewManager(p arch.Platform, opts ...Option) (*Manager, error) {
	m := &Manager{
		platform:   p,
		stacks:     mem.NewHeap(0),
		stackBytes: DefaultStackBytes,
		maxLevel:   DefaultMaxLevel,
		mainLevel:  -1,
		tasks:      treemap.NewWith(byID),
		log:        log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mainLevel < 0 || m.mainLevel > m.maxLevel {
		m.mainLevel = m.maxLevel
	}

	m.running = make([]*doublylinkedlist.List, m.maxLevel+1)
	for i := range m.running {
		m.running[i] = doublylinkedlist.New()
	}
	m.currentLevel = m.mainLevel

	main := m.NewTask().
		SetLevel(m.currentLevel).
		SetRunning(true)
	m.running[m.currentLevel].Append(main)

	idle, err := m.NewTask().InitContext(m.idle, 0)
	if err != nil {
		return nil, fmt.Errorf("init idle task: %w", err)
	}
	idle.SetLevel(0).SetRunning(true)
	m.running[0].Append(idle)
	m.idleTask = idle

	return m, nil
}

func (m *Manager) idle(id TaskID, arg int64) {
	for {
		m.platform.Halt()
	}
}

// MaxLevel returns the highest level.
func (m *Manager) MaxLevel() int {
	return m.maxLevel
}

// NewTask registers a task with a fresh id. The task is asleep until woken.
func (m *Manager) NewTask() *Task {
	prev := m.platform.DisableInterrupts()
	defer m.platform.RestoreInterrupts(prev)

	m.latestID++
	t := newTask(m.latestID, m)
	m.tasks.Put(t.id, t)
	m.emit(StatusNew, t)
	return t
}

// SwitchTask rotates the CPU to the next runnable task. If currentSleep is
// false the current task goes back to the end of its level's queue. The call
// returns when the current task is scheduled again.
func (m *Manager) SwitchTask(currentSleep bool) {
	prev := m.platform.DisableInterrupts()
	m.switchTask(currentSleep)
	m.platform.RestoreInterrupts(prev)
}

func (m *Manager) switchTask(currentSleep bool) {
	queue := m.running[m.currentLevel]
	current := popFront(queue)
	if !currentSleep {
		queue.Append(current)
	}

	if queue.Empty() {
		m.levelChanged = true
	}

	if m.levelChanged {
		m.levelChanged = false
		for level := m.maxLevel; level >= 0; level-- {
			if !m.running[level].Empty() {
				m.currentLevel = level
				break
			}
		}
	}

	next := front(m.running[m.currentLevel])
	if next != current {
		if !currentSleep {
			m.emit(StatusPreempt, current)
		}
		if next == m.idleTask {
			m.emit(StatusIdle, next)
		} else {
			m.emit(StatusDispatch, next)
		}
	}

	m.platform.SwitchContext(&next.ctx, &current.ctx)
}

// Sleep takes t off the run queues. If t is the executing task the CPU is
// handed to the next task and Sleep returns only after t is woken again.
// The idle task never sleeps; level 0 must stay non-empty.
func (m *Manager) Sleep(t *Task) {
	prev := m.platform.DisableInterrupts()
	defer m.platform.RestoreInterrupts(prev)

	if t == m.idleTask {
		m.log.Printf("sched: refusing to put idle task %d to sleep", t.id)
		return
	}
	if !t.running {
		return
	}
	t.running = false
	m.emit(StatusSleep, t)

	if t == m.current() {
		m.switchTask(true)
		return
	}

	remove(m.running[t.level], t)
}

// SleepID is Sleep for a task id.
func (m *Manager) SleepID(id TaskID) error {
	t, err := m.Task(id)
	if err != nil {
		return err
	}
	if t == m.idleTask {
		return fmt.Errorf("sleep task %d: %w", id, ErrIdleTask)
	}
	m.Sleep(t)
	return nil
}

// Wakeup makes t runnable at level, or at its current level if level < 0.
// For a task that is already runnable the call changes its level instead.
// Waking a task above the current level makes the next dispatch switch to
// that level.
func (m *Manager) Wakeup(t *Task, level int) {
	prev := m.platform.DisableInterrupts()
	defer m.platform.RestoreInterrupts(prev)

	if level >= 0 {
		level = m.clampLevel(level)
	}

	if t.running {
		m.changeLevelRunning(t, level)
		return
	}

	if level < 0 {
		level = t.level
	}

	t.level = level
	t.running = true

	m.running[level].Append(t)
	if level > m.currentLevel {
		m.levelChanged = true
	}
	m.emit(StatusEnqueue, t)
}

// WakeupID is Wakeup for a task id.
func (m *Manager) WakeupID(id TaskID, level int) error {
	t, err := m.Task(id)
	if err != nil {
		return err
	}
	m.Wakeup(t, level)
	return nil
}

func (m *Manager) changeLevelRunning(t *Task, level int) {
	if level < 0 || level == t.level {
		return
	}

	if t != m.current() {
		remove(m.running[t.level], t)
		m.running[level].Append(t)
		t.level = level
		if level > m.currentLevel {
			m.levelChanged = true
		}
		m.emit(StatusLevel, t)
		return
	}

	// t is executing: it keeps the CPU at the front of its new level
	popFront(m.running[m.currentLevel])
	m.running[level].Prepend(t)
	t.level = level
	if level < m.currentLevel {
		m.levelChanged = true
	}
	m.currentLevel = level
	m.emit(StatusLevel, t)
}

// SendMessage delivers message to the task with the given id and wakes it.
func (m *Manager) SendMessage(id TaskID, message msg.Message) error {
	t, err := m.Task(id)
	if err != nil {
		return err
	}
	t.SendMessage(message)
	return nil
}

// CurrentTask returns the executing task.
func (m *Manager) CurrentTask() *Task {
	prev := m.platform.DisableInterrupts()
	defer m.platform.RestoreInterrupts(prev)
	return m.current()
}

func (m *Manager) current() *Task {
	return front(m.running[m.currentLevel])
}

// CurrentLevel returns the level being serviced.
func (m *Manager) CurrentLevel() int {
	prev := m.platform.DisableInterrupts()
	defer m.platform.RestoreInterrupts(prev)
	return m.currentLevel
}

// Idle returns the idle task.
func (m *Manager) Idle() *Task {
	return m.idleTask
}

// Task looks a task up by id.
func (m *Manager) Task(id TaskID) (*Task, error) {
	prev := m.platform.DisableInterrupts()
	v, ok := m.tasks.Get(id)
	m.platform.RestoreInterrupts(prev)

	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchTask, id)
	}
	return v.(*Task), nil
}

// Tasks returns every task ordered by id.
func (m *Manager) Tasks() []*Task {
	prev := m.platform.DisableInterrupts()
	defer m.platform.RestoreInterrupts(prev)

	vals := m.tasks.Values()
	out := make([]*Task, len(vals))
	for i, v := range vals {
		out[i] = v.(*Task)
	}
	return out
}

// Levels returns a snapshot of the run queues, index = level, front first.
func (m *Manager) Levels() [][]TaskID {
	prev := m.platform.DisableInterrupts()
	defer m.platform.RestoreInterrupts(prev)

	out := make([][]TaskID, len(m.running))
	for level, q := range m.running {
		ids := make([]TaskID, 0, q.Size())
		it := q.Iterator()
		for it.Next() {
			ids = append(ids, it.Value().(*Task).id)
		}
		out[level] = ids
	}
	return out
}

func (m *Manager) clampLevel(level int) int {
	switch {
	case level < 0:
		m.log.Printf("sched: level %d clamped to 0", level)
		return 0
	case level > m.maxLevel:
		m.log.Printf("sched: level %d clamped to %d", level, m.maxLevel)
		return m.maxLevel
	default:
		return level
	}
}

func (m *Manager) emit(kind StatusKind, t *Task) {
	if m.status == nil {
		return
	}
	select {
	case m.status <- newStatusEvent(kind, t):
	default:
	}
}

func front(q *doublylinkedlist.List) *Task {
	v, ok := q.Get(0)
	if !ok {
		return nil
	}
	return v.(*Task)
}

func popFront(q *doublylinkedlist.List) *Task {
	t := front(q)
	if t != nil {
		q.Remove(0)
	}
	return t
}

func remove(q *doublylinkedlist.List, t *Task) {
	it := q.Iterator()
	for it.Next() {
		if it.Value() == t {
			q.Remove(it.Index())
			return
		}
	}
}

// byID orders the task registry.
func byID(a, b any) int {
	ia, ib := a.(TaskID), b.(TaskID)
	switch {
	case ia < ib:
		return -1
	case ia > ib:
		return 1
	default:
		return 0
	}
}
