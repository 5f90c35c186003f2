// Package eventq holds the per-engine event queue shared by transports whose
// engines deliver output from reader goroutines.
package eventq

import (
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Queue is an unbounded FIFO of events with a wake-up channel.
// Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	events []domain.Event
	notify chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends ev and wakes a waiting consumer.
func (q *Queue) Push(ev domain.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest event.
func (q *Queue) Pop() (domain.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return domain.Event{}, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Notify is signalled after a Push.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Latest is a one-slot mailbox keeping only the most recent reply.
type Latest chan domain.Result

// NewLatest creates an empty mailbox.
func NewLatest() Latest {
	return make(Latest, 1)
}

// Put replaces the pending reply with res.
func (l Latest) Put(res domain.Result) {
	select {
	case <-l:
	default:
	}
	l <- res
}

// Clear drops the pending reply.
func (l Latest) Clear() {
	select {
	case <-l:
	default:
	}
}
