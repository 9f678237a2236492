// Package bus carries committed ledger logs to the audit sinks.
package bus

import (
	"context"
	"errors"
	"sync"

	"tradex/internal/chain"
	"tradex/internal/schema"
)

var (
	ErrQueueFull   = errors.New("audit queue full")
	ErrQueueClosed = errors.New("audit queue closed")
)

// Event is one committed audit event on its way to the sinks.
type Event struct {
	Header  schema.EventHeader
	Payload []byte
}

// FromLog converts a committed log into an audit event.
func FromLog(l chain.Log) Event {
	return Event{Header: l.Header(), Payload: l.Payload()}
}

// Queue is a bounded single-consumer event queue. Producers never block.
type Queue struct {
	// mu guards sends against close of events.
	mu     sync.RWMutex
	closed bool
	events chan Event
}

// NewQueue allocates a queue holding up to capacity events.
func NewQueue(capacity int) *Queue {
	return &Queue{events: make(chan Event, max(capacity, 1))}
}

// TryPublish enqueues e, or fails with ErrQueueFull or ErrQueueClosed.
func (q *Queue) TryPublish(e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.events)
}

// Close rejects further publishes. Events already buffered are still handed
// to Run. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.events)
}

// Run hands events to handler until ctx is done or the queue is closed and
// empty. It returns how many events were handled.
func (q *Queue) Run(ctx context.Context, handler func(Event)) int {
	handled := 0
	for {
		select {
		case <-ctx.Done():
			return handled
		case e, ok := <-q.events:
			if !ok {
				return handled
			}
			handler(e)
			handled++
		}
	}
}
