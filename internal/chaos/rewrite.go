package chaos

import (
	"context"

	"github.com/yanun0323/errors"

	"tradex/internal/bus"
	"tradex/internal/recorder"
	"tradex/internal/schema"
)

// RewriteConfig describes a chaos pass from one audit log to another.
type RewriteConfig struct {
	Source recorder.PlaybackConfig
	Target recorder.Config
	Chaos  Config
	// Renumber assigns fresh consecutive sequence numbers in output order, so
	// readers that skip already seen sequence numbers cannot hide repeated or
	// reordered events.
	Renumber bool
}

// Rewrite plays the source log through a chaos engine into the target log.
func Rewrite(ctx context.Context, cfg RewriteConfig) (Stats, error) {
	engine, err := NewEngine(cfg.Chaos)
	if err != nil {
		return Stats{}, err
	}
	pb, err := recorder.NewPlayback(cfg.Source)
	if err != nil {
		return Stats{}, err
	}
	target := cfg.Target.WithDefaults()
	target.CopyPayload = true
	w, err := recorder.NewWriter(target)
	if err != nil {
		return Stats{}, err
	}
	if err := w.Start(ctx); err != nil {
		return Stats{}, err
	}

	var seq uint64
	write := func(events []bus.Event) error {
		for _, ev := range events {
			if cfg.Renumber {
				seq++
				ev.Header.Seq = seq
			}
			if err := w.Append(ctx, ev.Header, ev.Payload); err != nil {
				return err
			}
		}
		return nil
	}

	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		ev := bus.Event{Header: header, Payload: append([]byte(nil), payload...)}
		return write(engine.Process(ev))
	})
	if err == nil {
		err = write(engine.Flush())
	}
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return engine.Stats(), errors.Wrap(err, "chaos rewrite "+cfg.Source.Dir).With("target", target.Dir)
	}
	return engine.Stats(), nil
}
