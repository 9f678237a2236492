// Package obs counts ledger and audit pipeline activity.
package obs

import (
	"sync/atomic"
	"time"

	"tradex/internal/chain"
	"tradex/internal/errors"
	"tradex/internal/schema"
)

// counters is a fixed set of counters indexed by a small enum.
type counters[K ~uint8 | ~uint16] []atomic.Uint64

func newCounters[K ~uint8 | ~uint16](last K) counters[K] {
	return make(counters[K], int(last)+1)
}

func (c counters[K]) inc(k K) {
	if int(k) < len(c) {
		c[k].Add(1)
	}
}

func (c counters[K]) nonZero() map[K]uint64 {
	out := make(map[K]uint64)
	for i := range c {
		if v := c[i].Load(); v > 0 {
			out[K(i)] = v
		}
	}
	return out
}

// Metrics collects counters and latency stats for the ledger and the audit
// pipeline. It is safe for concurrent use and a nil *Metrics is a no-op.
type Metrics struct {
	events  counters[schema.EventType]
	reverts counters[errors.Kind]

	committed   atomic.Uint64
	queueDrops  atomic.Uint64
	queueClosed atomic.Uint64
	recorded    atomic.Uint64

	txLatency    LatencyStats
	auditLatency LatencyStats
}

var _ chain.Observer = (*Metrics)(nil)

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts  map[schema.EventType]uint64
	RevertCounts map[errors.Kind]uint64
	Committed    uint64
	QueueDrops   uint64
	QueueClosed  uint64
	Recorded     uint64
	TxLatency    LatencySnapshot
	AuditLatency LatencySnapshot
}

// NewMetrics allocates zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{
		events:  newCounters(schema.MaxEventType),
		reverts: newCounters(errors.KindPropagated),
	}
}

// ObserveTransaction counts a committed or reverted transaction by revert
// kind and samples its execution time.
func (m *Metrics) ObserveTransaction(tx chain.TxInfo) {
	if m == nil {
		return
	}
	m.txLatency.Observe(tx.Elapsed)
	if tx.Err == nil {
		m.committed.Add(1)
		return
	}
	m.reverts.inc(errors.KindOf(tx.Err))
}

// ObserveEvent counts an audit event reaching a sink and samples how far
// now is behind its block time.
func (m *Metrics) ObserveEvent(header schema.EventHeader, now time.Time) {
	if m == nil {
		return
	}
	m.events.inc(header.Type)
	if header.Timestamp <= 0 {
		return
	}
	if lag := now.Sub(time.Unix(header.Timestamp, 0)); lag >= 0 {
		m.auditLatency.Observe(lag)
	}
}

// IncRecorded counts an event persisted to the audit log.
func (m *Metrics) IncRecorded() {
	if m != nil {
		m.recorded.Add(1)
	}
}

// IncQueueDrop counts an event refused by a full queue.
func (m *Metrics) IncQueueDrop() {
	if m != nil {
		m.queueDrops.Add(1)
	}
}

// IncQueueClosed counts a publish after the queue was closed.
func (m *Metrics) IncQueueClosed() {
	if m != nil {
		m.queueClosed.Add(1)
	}
}

// Snapshot returns a copy of the current values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		EventCounts:  m.events.nonZero(),
		RevertCounts: m.reverts.nonZero(),
		Committed:    m.committed.Load(),
		QueueDrops:   m.queueDrops.Load(),
		QueueClosed:  m.queueClosed.Load(),
		Recorded:     m.recorded.Load(),
		TxLatency:    m.txLatency.Snapshot(),
		AuditLatency: m.auditLatency.Snapshot(),
	}
}

// LatencyStats aggregates duration samples.
type LatencyStats struct {
	count atomic.Uint64
	sum   atomic.Uint64
	// min holds the smallest sample plus one so that zero means unset.
	min atomic.Uint64
	max atomic.Uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Observe records one sample. Negative durations are ignored.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	n := uint64(d)
	l.count.Add(1)
	l.sum.Add(n)
	for cur := l.min.Load(); cur == 0 || n+1 < cur; cur = l.min.Load() {
		if l.min.CompareAndSwap(cur, n+1) {
			break
		}
	}
	for cur := l.max.Load(); n > cur; cur = l.max.Load() {
		if l.max.CompareAndSwap(cur, n) {
			break
		}
	}
}

// Snapshot returns the aggregated samples.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.min.Load() - 1),
		Max:   time.Duration(l.max.Load()),
		Avg:   time.Duration(l.sum.Load() / count),
	}
}
