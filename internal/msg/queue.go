package msg

import (
	"sync"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// Queue is an unbounded FIFO of messages. It is safe for concurrent use so
// interrupt handlers and tasks can share one instance.
type Queue struct {
	mu sync.Mutex
	q  *linkedlistqueue.Queue
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{q: linkedlistqueue.New()}
}

// Push appends m at the back.
func (q *Queue) Push(m Message) {
	q.mu.Lock()
	q.q.Enqueue(m)
	q.mu.Unlock()
}

// Pop removes and returns the oldest message. ok is false if the queue is
// empty; Pop never waits.
func (q *Queue) Pop() (m Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.q.Dequeue()
	if !ok {
		return Message{}, false
	}
	return v.(Message), true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Size()
}

// Empty reports whether nothing is queued.
func (q *Queue) Empty() bool {
	return q.Len() == 0
}

// Values returns a copy of the queued messages, oldest first.
func (q *Queue) Values() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	vals := q.q.Values()
	out := make([]Message, len(vals))
	for i, v := range vals {
		out[i] = v.(Message)
	}
	return out
}
