// internal/sched/schedulerEvent.go

package sched

import (
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusDispatch
	StatusPreempt
	StatusSleep
	StatusNew
	StatusLevel
)

// StatusEvent is emitted on every task state transition
type StatusEvent struct {
	Time   time.Time
	Kind   StatusKind
	TaskID TaskID
	Level  int
}

func newStatusEvent(kind StatusKind, t *Task) StatusEvent {
	return StatusEvent{
		Time:   time.Now(),
		Kind:   kind,
		TaskID: t.id,
		Level:  t.level,
	}
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusDispatch:
		return "Dispatch"
	case StatusPreempt:
		return "Preempt"
	case StatusSleep:
		return "Sleep"
	case StatusNew:
		return "New"
	case StatusLevel:
		return "Level"
	default:
		return "Unknown"
	}
}
