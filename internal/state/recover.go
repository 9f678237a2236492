package state

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/codec"
	"tradex/internal/recorder"
	"tradex/internal/schema"
)

// RecoverConfig controls snapshot + WAL recovery.
type RecoverConfig struct {
	WALDir          string
	SnapshotPath    string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
	// TolerateTornTail accepts a log whose newest segment ends in a partial
	// record, as left by a crash mid-write.
	TolerateTornTail bool
	// Core restricts replay to events emitted by one core address. Zero
	// accepts the first emitter seen.
	Core common.Address
}

// RecoverResult contains recovered state and metadata.
type RecoverResult struct {
	Registry  *schema.Registry
	Core      common.Address
	LastSeq   uint64
	LastBlock uint64
	Cuts      int
}

// RecoverRegistry loads a snapshot, if any, and replays the DiamondCut
// events after it to rebuild the selector registry of a core.
func RecoverRegistry(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.WALDir == "" {
		return RecoverResult{}, fmt.Errorf("wal dir is empty")
	}
	rp := replayer{registry: schema.NewRegistry(), core: cfg.Core}
	if cfg.SnapshotPath != "" {
		if err := rp.restore(cfg.SnapshotPath); err != nil {
			return RecoverResult{}, err
		}
	}

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             cfg.WALDir,
		FilePrefix:      cfg.FilePrefix,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
		// Events covered by the snapshot are skipped before decoding.
		FromSeq:          rp.lastSeq + 1,
		TolerateTornTail: cfg.TolerateTornTail,
	})
	if err != nil {
		return RecoverResult{}, err
	}
	if err := pb.Run(ctx, rp.apply); err != nil {
		return RecoverResult{}, err
	}

	return RecoverResult{
		Registry:  rp.registry,
		Core:      rp.core,
		LastSeq:   rp.lastSeq,
		LastBlock: rp.lastBlock,
		Cuts:      rp.cuts,
	}, nil
}

// replayer folds audit events into a registry.
type replayer struct {
	registry  *schema.Registry
	core      common.Address
	lastSeq   uint64
	lastBlock uint64
	cuts      int
}

func (rp *replayer) restore(path string) error {
	snapshot, err := ReadSnapshot(path)
	if err != nil {
		return err
	}
	if rp.registry, err = snapshot.Registry(); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if rp.core == (common.Address{}) {
		rp.core = snapshot.Core
	}
	rp.lastSeq, rp.lastBlock = snapshot.LastSeq, snapshot.Block
	return nil
}

// apply ignores repeated or stale sequence numbers, and DiamondCut events
// from any emitter other than the core. The first DiamondCut emitter becomes
// the core when none is pinned.
func (rp *replayer) apply(header schema.EventHeader, payload []byte) error {
	if rp.lastSeq > 0 && header.Seq <= rp.lastSeq {
		return nil
	}
	rp.lastSeq = header.Seq
	rp.lastBlock = max(rp.lastBlock, header.Block)

	if header.Type != schema.EventDiamondCut {
		return nil
	}
	emitter := common.Address(header.Emitter)
	if rp.core == (common.Address{}) {
		rp.core = emitter
	}
	if emitter != rp.core {
		return nil
	}

	_, data, err := codec.DecodeLogPayload(payload)
	if err == nil {
		var cut schema.Cut
		if cut, err = codec.DecodeCutEvent(data); err == nil {
			err = rp.registry.Apply(cut.Entries)
		}
	}
	if err != nil {
		return fmt.Errorf("seq %d: %w", header.Seq, err)
	}
	rp.cuts++
	return nil
}
