package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tradex/internal/schema"
)

var (
	ErrQueueFull       = errors.New("wal queue full")
	ErrClosed          = errors.New("wal writer closed")
	ErrNotStarted      = errors.New("wal writer not started")
	ErrAlreadyStarted  = errors.New("wal writer already started")
	ErrPayloadTooLarge = errors.New("wal payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// Writer appends audit events to WAL segments. Producers enqueue records and
// a single goroutine owns the files.
type Writer struct {
	cfg Config
	ch  chan recordRequest
	wg  sync.WaitGroup

	// sendMu keeps Close from closing ch under a concurrent send.
	sendMu  sync.RWMutex
	started atomic.Bool
	closed  atomic.Bool

	errMu sync.Mutex
	err   error

	records  atomic.Uint64
	bytes    atomic.Uint64
	segments atomic.Uint64
}

// Stats reports what the writer has persisted so far.
type Stats struct {
	Records  uint64
	Bytes    uint64
	Segments uint64
}

type recordRequest struct {
	header  schema.EventHeader
	payload []byte
}

// NewWriter creates a WAL writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg, ch: make(chan recordRequest, cfg.QueueSize)}, nil
}

// Start runs the writer loop in a new goroutine. Cancelling ctx writes what
// is already queued and stops the loop.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops accepting records, writes the queue out and syncs the active
// segment.
func (w *Writer) Close() error {
	w.sendMu.Lock()
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.sendMu.Unlock()
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error that stopped the writer, if any.
func (w *Writer) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Stats returns the persisted record counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Records:  w.records.Load(),
		Bytes:    w.bytes.Load(),
		Segments: w.segments.Load(),
	}
}

// TryAppend enqueues an event without blocking.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	return w.send(context.Background(), false, header, payload)
}

// Append enqueues an event, waiting for queue space until ctx is done. Audit
// consumers use it so that a slow disk applies back-pressure instead of
// losing records.
func (w *Writer) Append(ctx context.Context, header schema.EventHeader, payload []byte) error {
	return w.send(ctx, true, header, payload)
}

func (w *Writer) send(ctx context.Context, wait bool, header schema.EventHeader, payload []byte) error {
	req, err := w.prepare(header, payload)
	if err != nil {
		return err
	}

	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed.Load() {
		return ErrClosed
	}
	if !wait {
		select {
		case w.ch <- req:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case w.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) prepare(header schema.EventHeader, payload []byte) (recordRequest, error) {
	switch {
	case w.closed.Load():
		return recordRequest{}, ErrClosed
	case !w.started.Load():
		return recordRequest{}, ErrNotStarted
	case uint64(len(payload)) > maxPayloadLen:
		return recordRequest{}, ErrPayloadTooLarge
	}
	if err := w.Err(); err != nil {
		return recordRequest{}, err
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if w.cfg.CopyPayload {
		payload = bytes.Clone(payload)
	}
	return recordRequest{header: header, payload: payload}, nil
}

func (w *Writer) run(ctx context.Context) {
	log := &segmentLog{cfg: w.cfg}
	flushC, stopFlush := ticker(w.cfg.FlushInterval)
	defer stopFlush()
	syncC, stopSync := ticker(w.cfg.SyncInterval)
	defer stopSync()
	defer func() {
		w.setErr(log.close())
	}()

	for {
		select {
		case <-ctx.Done():
			w.drain(log)
			return
		case req, ok := <-w.ch:
			if !ok || !w.write(log, req) {
				return
			}
		case <-flushC:
			if err := log.flush(); err != nil {
				w.setErr(err)
				return
			}
		case <-syncC:
			if err := log.sync(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

// drain writes whatever is queued without waiting for more.
func (w *Writer) drain(log *segmentLog) {
	for {
		select {
		case req, ok := <-w.ch:
			if !ok || !w.write(log, req) {
				return
			}
		default:
			return
		}
	}
}

func (w *Writer) write(log *segmentLog, req recordRequest) bool {
	size, opened, err := log.append(req, time.Now().UTC())
	if opened {
		w.segments.Add(1)
	}
	if err != nil {
		w.setErr(err)
		return false
	}
	w.records.Add(1)
	w.bytes.Add(uint64(size))
	return true
}

// setErr records the first non-nil error.
func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err != nil {
		return
	}
	logs.Errorf("wal writer stopped, err: %+v", err)
	w.err = err
}

func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
