// Package chaos perturbs a recorded audit log so that recovery and snapshot
// verification can be exercised against lost, repeated, reordered and late
// events.
package chaos

import (
	"fmt"
	"math/rand"
	"time"

	"tradex/internal/bus"
)

// Config controls which faults are injected.
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	// ReorderWindow is how many events are held back and released in random
	// order. One keeps the original order.
	ReorderWindow int
	// MaxSkew pushes block timestamps forward by up to this much, in whole
	// seconds.
	MaxSkew time.Duration
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("dropRate must be between 0 and 1")
	}
	if c.DuplicateRate < 0 || c.DuplicateRate > 1 {
		return fmt.Errorf("duplicateRate must be between 0 and 1")
	}
	if c.ReorderWindow < 1 {
		return fmt.Errorf("reorderWindow must be >= 1")
	}
	if c.MaxSkew < 0 {
		return fmt.Errorf("maxSkew must be >= 0")
	}
	return nil
}

// Stats counts the faults an engine injected.
type Stats struct {
	In         uint64
	Out        uint64
	Dropped    uint64
	Duplicated uint64
	Skewed     uint64
}

// Engine applies the configured faults to a stream of events. It is not safe
// for concurrent use.
type Engine struct {
	cfg   Config
	rng   *rand.Rand
	held  []bus.Event
	stats Stats
}

// NewEngine validates cfg and seeds the engine. A zero seed uses the wall
// clock.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow == 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

// Process feeds one event and returns the events released by it.
func (e *Engine) Process(ev bus.Event) []bus.Event {
	if e == nil {
		return []bus.Event{ev}
	}
	e.stats.In++
	if e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate {
		e.stats.Dropped++
		return nil
	}
	ev = e.skew(ev)
	if e.cfg.ReorderWindow == 1 {
		return e.release(ev)
	}
	e.held = append(e.held, ev)
	if len(e.held) < e.cfg.ReorderWindow {
		return nil
	}
	return e.release(e.takeRandom())
}

// Flush releases every held event.
func (e *Engine) Flush() []bus.Event {
	if e == nil {
		return nil
	}
	var out []bus.Event
	for len(e.held) > 0 {
		out = append(out, e.release(e.takeRandom())...)
	}
	return out
}

// Stats returns the counters so far.
func (e *Engine) Stats() Stats {
	if e == nil {
		return Stats{}
	}
	return e.stats
}

func (e *Engine) takeRandom() bus.Event {
	i := e.rng.Intn(len(e.held))
	ev := e.held[i]
	e.held = append(e.held[:i], e.held[i+1:]...)
	return ev
}

func (e *Engine) release(ev bus.Event) []bus.Event {
	out := []bus.Event{ev}
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		e.stats.Duplicated++
		out = append(out, ev)
	}
	e.stats.Out += uint64(len(out))
	return out
}

func (e *Engine) skew(ev bus.Event) bus.Event {
	limit := int64(e.cfg.MaxSkew / time.Second)
	if limit <= 0 {
		return ev
	}
	if d := e.rng.Int63n(limit + 1); d > 0 {
		ev.Header.Timestamp += d
		e.stats.Skewed++
	}
	return ev
}
