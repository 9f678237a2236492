package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradex/internal/codec"
	"tradex/internal/recorder"
	"tradex/internal/schema"
)

type counter struct {
	n    int
	tags []string
}

func (c *counter) Clone() Slot {
	return &counter{n: c.n, tags: append([]string(nil), c.tags...)}
}

type other struct{}

func (other) Clone() Slot { return other{} }

var (
	core    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	moduleA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	moduleB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	selX    = schema.SelectorOf("x()")
	selY    = schema.SelectorOf("y()")
	selZ    = schema.SelectorOf("z()")
)

func TestStoreLoadPeekClone(t *testing.T) {
	pos := Position("tradex.test.storage")
	s := NewStore()

	_, ok := Peek[*counter](s, pos)
	assert.False(t, ok)

	c := Load(s, pos, func() *counter { return &counter{} })
	c.n = 2
	c.tags = append(c.tags, "a")
	assert.Same(t, c, Load(s, pos, func() *counter { return &counter{n: 99} }))
	assert.Equal(t, 1, s.Len())

	clone := s.Clone()
	c.n = 3
	c.tags[0] = "b"
	got, ok := Peek[*counter](clone, pos)
	require.True(t, ok)
	assert.Equal(t, 2, got.n)
	assert.Equal(t, []string{"a"}, got.tags)

	_, ok = Peek[other](s, pos)
	assert.False(t, ok)
	assert.Panics(t, func() { Load(s, pos, func() other { return other{} }) })
}

func TestPositionIsNamespaced(t *testing.T) {
	assert.Equal(t, Position("tradex.diamond.storage"), Position("tradex.diamond.storage"))
	assert.NotEqual(t, Position("tradex.diamond.storage"), Position("tradex.timelock.storage"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Bind(selX, moduleA))
	require.NoError(t, r.Bind(selY, moduleB))
	require.NoError(t, r.Bind(selZ, moduleA))

	snap := TakeSnapshotWithMeta(r, core, 7, 3)
	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	require.NoError(t, WriteSnapshot(path, snap))

	back, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap, back)

	rebuilt, err := back.Registry()
	require.NoError(t, err)
	assert.Equal(t, r.Facets(), rebuilt.Facets())
	require.NoError(t, CompareSnapshots(snap, TakeSnapshot(rebuilt)))
}

func TestCompareSnapshots(t *testing.T) {
	base := Snapshot{Facets: []schema.Facet{
		{Address: moduleA, Selectors: []schema.Selector{selX, selZ}},
		{Address: moduleB, Selectors: []schema.Selector{selY}},
	}}

	testCases := []struct {
		desc   string
		actual []schema.Facet
	}{
		{
			desc:   "missing module",
			actual: base.Facets[:1],
		},
		{
			desc: "module order",
			actual: []schema.Facet{
				base.Facets[1],
				base.Facets[0],
			},
		},
		{
			desc: "selector count",
			actual: []schema.Facet{
				{Address: moduleA, Selectors: []schema.Selector{selX}},
				base.Facets[1],
			},
		},
		{
			desc: "selector order",
			actual: []schema.Facet{
				{Address: moduleA, Selectors: []schema.Selector{selZ, selX}},
				base.Facets[1],
			},
		},
	}

	require.NoError(t, CompareSnapshots(base, base))
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			require.Error(t, CompareSnapshots(base, Snapshot{Facets: tc.actual}))
		})
	}
}

func cutEvent(t *testing.T, seq uint64, emitter common.Address, entries ...schema.CutEntry) (schema.EventHeader, []byte) {
	t.Helper()
	topics, data, err := codec.EncodeCutEvent(schema.Cut{Entries: entries})
	require.NoError(t, err)
	return schema.NewHeader(schema.EventDiamondCut, seq, seq, 1_700_000_000, emitter), codec.EncodeLogPayload(nil, topics, data)
}

func writeWAL(t *testing.T, dir string, build func(add func(schema.EventHeader, []byte))) {
	t.Helper()
	w, err := recorder.NewWriter(recorder.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	build(func(h schema.EventHeader, p []byte) {
		require.NoError(t, w.Append(context.Background(), h, p))
	})
	require.NoError(t, w.Close())
}

func TestRecoverRegistry(t *testing.T) {
	dir := t.TempDir()
	stranger := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	writeWAL(t, dir, func(add func(schema.EventHeader, []byte)) {
		add(cutEvent(t, 1, core, schema.CutEntry{Module: moduleA, Action: schema.CutActionBind, Selectors: []schema.Selector{selX, selY}}))
		add(schema.NewHeader(schema.EventQueueTransaction, 2, 2, 1_700_000_001, core), codec.EncodeLogPayload(nil, nil, nil))
		add(cutEvent(t, 3, stranger, schema.CutEntry{Module: moduleB, Action: schema.CutActionBind, Selectors: []schema.Selector{selZ}}))
		add(cutEvent(t, 4, core,
			schema.CutEntry{Module: moduleB, Action: schema.CutActionRebind, Selectors: []schema.Selector{selX}},
			schema.CutEntry{Action: schema.CutActionUnbind, Selectors: []schema.Selector{selY}},
		))
	})

	res, err := RecoverRegistry(context.Background(), RecoverConfig{WALDir: dir})
	require.NoError(t, err)
	assert.Equal(t, core, res.Core)
	assert.Equal(t, 2, res.Cuts)
	assert.Equal(t, uint64(4), res.LastSeq)
	assert.Equal(t, uint64(4), res.LastBlock)
	assert.Equal(t, []schema.Facet{{Address: moduleB, Selectors: []schema.Selector{selX}}}, res.Registry.Facets())

	pinned, err := RecoverRegistry(context.Background(), RecoverConfig{WALDir: dir, Core: stranger})
	require.NoError(t, err)
	assert.Equal(t, 1, pinned.Cuts)
	assert.Equal(t, []schema.Facet{{Address: moduleB, Selectors: []schema.Selector{selZ}}}, pinned.Registry.Facets())
}

func TestRecoverFromSnapshotSkipsCoveredEvents(t *testing.T) {
	dir := t.TempDir()
	writeWAL(t, dir, func(add func(schema.EventHeader, []byte)) {
		add(cutEvent(t, 1, core, schema.CutEntry{Module: moduleA, Action: schema.CutActionBind, Selectors: []schema.Selector{selX}}))
		add(cutEvent(t, 2, core, schema.CutEntry{Module: moduleB, Action: schema.CutActionBind, Selectors: []schema.Selector{selY}}))
	})

	r := schema.NewRegistry()
	require.NoError(t, r.Bind(selX, moduleA))
	snapPath := filepath.Join(dir, "registry.json")
	require.NoError(t, WriteSnapshot(snapPath, TakeSnapshotWithMeta(r, core, 1, 1)))

	res, err := RecoverRegistry(context.Background(), RecoverConfig{WALDir: dir, SnapshotPath: snapPath})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cuts)
	assert.Equal(t, uint64(2), res.LastSeq)
	assert.Equal(t, []schema.Facet{
		{Address: moduleA, Selectors: []schema.Selector{selX}},
		{Address: moduleB, Selectors: []schema.Selector{selY}},
	}, res.Registry.Facets())
}

func TestRecoverRejectsConflictingLog(t *testing.T) {
	dir := t.TempDir()
	writeWAL(t, dir, func(add func(schema.EventHeader, []byte)) {
		add(cutEvent(t, 1, core, schema.CutEntry{Module: moduleA, Action: schema.CutActionBind, Selectors: []schema.Selector{selX}}))
		add(cutEvent(t, 2, core, schema.CutEntry{Module: moduleB, Action: schema.CutActionBind, Selectors: []schema.Selector{selX}}))
	})

	_, err := RecoverRegistry(context.Background(), RecoverConfig{WALDir: dir})
	require.Error(t, err)

	_, err = RecoverRegistry(context.Background(), RecoverConfig{})
	require.Error(t, err)
}
