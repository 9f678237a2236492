package auditstore

import (
	"context"

	"github.com/yanun0323/logs"

	"tradex/internal/bus"
)

const defaultBatchSize = 64

// Inserter stores rows; *Store implements it.
type Inserter interface {
	Insert(ctx context.Context, records []Record) error
}

// Sink batches bus events into an Inserter. It is driven by a single
// consumer goroutine, so it is not safe for concurrent use.
type Sink struct {
	store     Inserter
	batchSize int
	pending   []Record
	failed    uint64
}

// NewSink returns a sink that flushes every batchSize events.
func NewSink(store Inserter, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Sink{store: store, batchSize: batchSize}
}

// Handle queues one event and flushes a full batch. Events that cannot be
// decoded or stored are logged and counted, never retried.
func (s *Sink) Handle(ctx context.Context, e bus.Event) {
	r, err := FromEvent(e)
	if err != nil {
		s.failed++
		logs.Errorf("audit store: skip event, err: %+v", err)
		return
	}
	s.pending = append(s.pending, r)
	if len(s.pending) >= s.batchSize {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch.
func (s *Sink) Flush(ctx context.Context) {
	if len(s.pending) == 0 {
		return
	}
	if err := s.store.Insert(ctx, s.pending); err != nil {
		s.failed += uint64(len(s.pending))
		logs.Errorf("audit store: drop %d events, err: %+v", len(s.pending), err)
	}
	s.pending = s.pending[:0]
}

// Failed returns how many events were dropped.
func (s *Sink) Failed() uint64 {
	return s.failed
}
