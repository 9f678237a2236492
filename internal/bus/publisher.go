package bus

import (
	"tradex/internal/chain"
)

// DropCounter is told about events the queue refused.
type DropCounter interface {
	IncQueueDrop()
	IncQueueClosed()
}

// Publisher feeds committed ledger logs into a queue. A full or closed queue
// never blocks or fails the ledger; the drop is counted instead.
type Publisher struct {
	queue *Queue
	drops DropCounter
}

var _ chain.Publisher = (*Publisher)(nil)

// NewPublisher returns a publisher onto q. drops may be nil.
func NewPublisher(q *Queue, drops DropCounter) *Publisher {
	return &Publisher{queue: q, drops: drops}
}

// Publish enqueues l without blocking and counts it when the queue refuses.
func (p *Publisher) Publish(l chain.Log) {
	err := p.queue.TryPublish(FromLog(l))
	if err == nil || p.drops == nil {
		return
	}
	switch err {
	case ErrQueueFull:
		p.drops.IncQueueDrop()
	case ErrQueueClosed:
		p.drops.IncQueueClosed()
	}
}
