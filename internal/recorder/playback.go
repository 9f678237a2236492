package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/yanun0323/logs"

	"tradex/internal/schema"
)

// PlaybackConfig controls audit WAL playback behavior.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Speed replays block time scaled by this factor. Zero replays as fast as
	// possible.
	Speed           float64
	DisableChecksum bool
	MaxPayloadSize  int
	// Types limits the handler to these event types. Empty passes all.
	Types []schema.EventType
	// FromSeq skips records with a lower sequence number.
	FromSeq uint64
	// TolerateTornTail ends playback cleanly when the newest segment stops
	// in the middle of a record. A torn record in an older segment is
	// always an error.
	TolerateTornTail bool
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	switch {
	case c.Dir == "":
		return fmt.Errorf("invalid playback config: Dir is empty")
	case c.Speed < 0:
		return fmt.Errorf("invalid playback config: Speed must be >= 0")
	case c.MaxPayloadSize < 0:
		return fmt.Errorf("invalid playback config: MaxPayloadSize must be >= 0")
	}
	for _, t := range c.Types {
		if t == schema.EventUnknown || t > schema.MaxEventType {
			return fmt.Errorf("invalid playback config: unknown event type %d", t)
		}
	}
	return nil
}

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Handler receives each replayed record. The payload is only valid during
// the call.
type Handler func(schema.EventHeader, []byte) error

// Playback replays audit records in segment order.
type Playback struct {
	cfg   PlaybackConfig
	clock Clock
	types map[schema.EventType]struct{}
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Playback{cfg: cfg, clock: realClock{}}
	if len(cfg.Types) > 0 {
		p.types = make(map[schema.EventType]struct{}, len(cfg.Types))
		for _, t := range cfg.Types {
			p.types[t] = struct{}{}
		}
	}
	return p, nil
}

// WithClock swaps the clock implementation.
func (p *Playback) WithClock(clock Clock) *Playback {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Run replays WAL records and calls the handler for each accepted one.
func (p *Playback) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	files, err := p.segments()
	if err != nil {
		return err
	}

	pc := pacer{speed: p.cfg.Speed, clock: p.clock}
	for i, path := range files {
		last := i == len(files)-1
		if err := p.play(ctx, path, last, &pc, handler); err != nil {
			return err
		}
	}
	return nil
}

// segments lists "<prefix>-*.wal" files in name order, which is creation
// order for files written by Writer.
func (p *Playback) segments() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := p.cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	slices.Sort(files)
	return files, nil
}

func (p *Playback) accept(header schema.EventHeader) bool {
	if header.Seq < p.cfg.FromSeq {
		return false
	}
	if p.types == nil {
		return true
	}
	_, ok := p.types[header.Type]
	return ok
}

func (p *Playback) play(ctx context.Context, path string, last bool, pc *pacer, handler Handler) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})
	for rec, err := range reader.Records() {
		if err != nil {
			if last && p.cfg.TolerateTornTail && errors.Is(err, ErrTornRecord) {
				logs.Infof("playback: ignore torn tail of %s after %d bytes", path, reader.Offset())
				return nil
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.accept(rec.Header) {
			continue
		}
		if err := pc.wait(ctx, rec.Header.Timestamp); err != nil {
			return err
		}
		if err := handler(rec.Header, rec.Payload); err != nil {
			return err
		}
	}
	return nil
}

// pacer sleeps for the block time between consecutive records divided by
// speed.
type pacer struct {
	speed float64
	clock Clock
	prev  int64
}

func (pc *pacer) wait(ctx context.Context, ts int64) error {
	if pc.speed <= 0 || ts <= 0 {
		return nil
	}
	prev := pc.prev
	pc.prev = ts
	if prev <= 0 || ts <= prev {
		return nil
	}
	d := time.Duration(float64(time.Duration(ts-prev)*time.Second) / pc.speed)
	return pc.clock.Sleep(ctx, d)
}
