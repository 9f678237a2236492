package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/schema"
)

// Snapshot captures the selector registry at a point in time.
type Snapshot struct {
	Timestamp int64          `json:"timestamp"`
	Core      common.Address `json:"core"`
	LastSeq   uint64         `json:"lastSeq"`
	Block     uint64         `json:"block"`
	Facets    []schema.Facet `json:"facets"`
}

// TakeSnapshot builds a snapshot from a registry.
func TakeSnapshot(r *schema.Registry) Snapshot {
	return TakeSnapshotWithMeta(r, common.Address{}, 0, 0)
}

// TakeSnapshotWithMeta builds a snapshot with event metadata.
func TakeSnapshotWithMeta(r *schema.Registry, core common.Address, lastSeq, block uint64) Snapshot {
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Core:      core,
		LastSeq:   lastSeq,
		Block:     block,
		Facets:    r.Facets(),
	}
}

// Registry rebuilds a registry holding the snapshot's bindings.
func (s Snapshot) Registry() (*schema.Registry, error) {
	r := schema.NewRegistry()
	for _, f := range s.Facets {
		for _, sel := range f.Selectors {
			if err := r.Bind(sel, f.Address); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same bindings in the
// same enumeration order.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Facets) != len(actual.Facets) {
		return fmt.Errorf("snapshot module count mismatch: expected=%d actual=%d", len(expected.Facets), len(actual.Facets))
	}
	for i, want := range expected.Facets {
		got := actual.Facets[i]
		if want.Address != got.Address {
			return fmt.Errorf("snapshot module %d mismatch: expected=%s actual=%s", i, want.Address, got.Address)
		}
		if len(want.Selectors) != len(got.Selectors) {
			return fmt.Errorf("snapshot selector count mismatch: module=%s expected=%d actual=%d",
				want.Address, len(want.Selectors), len(got.Selectors))
		}
		for j := range want.Selectors {
			if want.Selectors[j] != got.Selectors[j] {
				return fmt.Errorf("snapshot selector mismatch: module=%s index=%d expected=%s actual=%s",
					want.Address, j, want.Selectors[j], got.Selectors[j])
			}
		}
	}
	return nil
}
