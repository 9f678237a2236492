package main

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yanun0323/errors"

	"tradex/internal/state"
)

type replayOptions struct {
	WALDir          string
	FilePrefix      string
	SnapshotPath    string
	Verify          bool
	DisableChecksum bool
	MaxPayloadSize  int
	TolerateTorn    bool
}

// runReplay rebuilds the registry from the audit log alone and, when asked,
// checks it against the snapshot written at the end of the recorded run.
func runReplay(ctx context.Context, opts replayOptions) (state.RecoverResult, error) {
	result, err := state.RecoverRegistry(ctx, state.RecoverConfig{
		WALDir:           opts.WALDir,
		FilePrefix:       opts.FilePrefix,
		DisableChecksum:  opts.DisableChecksum,
		MaxPayloadSize:   opts.MaxPayloadSize,
		TolerateTornTail: opts.TolerateTorn,
	})
	if err != nil {
		return state.RecoverResult{}, errors.Wrap(err, "recover registry").With("dir", opts.WALDir)
	}
	if !opts.Verify {
		return result, nil
	}

	expected, err := state.ReadSnapshot(opts.SnapshotPath)
	if err != nil {
		return state.RecoverResult{}, errors.Wrap(err, "read snapshot").With("path", opts.SnapshotPath)
	}
	if expected.Core != (common.Address{}) && expected.Core != result.Core {
		return state.RecoverResult{}, errors.Errorf("snapshot core mismatch: expected=%s actual=%s", expected.Core.Hex(), result.Core.Hex())
	}
	actual := state.TakeSnapshotWithMeta(result.Registry, result.Core, result.LastSeq, result.LastBlock)
	if err := state.CompareSnapshots(expected, actual); err != nil {
		return state.RecoverResult{}, errors.Wrap(err, "verify snapshot")
	}
	return result, nil
}
