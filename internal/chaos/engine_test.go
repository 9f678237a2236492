package chaos

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradex/internal/bus"
	"tradex/internal/recorder"
	"tradex/internal/schema"
)

var emitter = [20]byte{0xc0}

func events(n int) []bus.Event {
	out := make([]bus.Event, n)
	for i := range out {
		seq := uint64(i + 1)
		out[i] = bus.Event{
			Header:  schema.NewHeader(schema.EventDiamondCut, seq, seq, 1_700_000_000+int64(i), emitter),
			Payload: []byte{byte(i)},
		}
	}
	return out
}

func run(e *Engine, in []bus.Event) []bus.Event {
	var out []bus.Event
	for _, ev := range in {
		out = append(out, e.Process(ev)...)
	}
	return append(out, e.Flush()...)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc  string
		cfg   Config
		valid bool
	}{
		{desc: "zero with window", cfg: Config{ReorderWindow: 1}, valid: true},
		{desc: "negative drop", cfg: Config{ReorderWindow: 1, DropRate: -0.1}},
		{desc: "duplicate above one", cfg: Config{ReorderWindow: 1, DuplicateRate: 1.5}},
		{desc: "zero window", cfg: Config{}},
		{desc: "negative skew", cfg: Config{ReorderWindow: 1, MaxSkew: -time.Second}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestPassThrough(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1})
	require.NoError(t, err)
	in := events(5)
	assert.Equal(t, in, run(e, in))
	assert.Equal(t, Stats{In: 5, Out: 5}, e.Stats())

	var nilEngine *Engine
	assert.Equal(t, in[:1], nilEngine.Process(in[0]))
	assert.Nil(t, nilEngine.Flush())
}

func TestDropAll(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DropRate: 1})
	require.NoError(t, err)
	assert.Empty(t, run(e, events(4)))
	assert.Equal(t, Stats{In: 4, Dropped: 4}, e.Stats())
}

func TestDuplicateAll(t *testing.T) {
	e, err := NewEngine(Config{Seed: 1, DuplicateRate: 1})
	require.NoError(t, err)
	out := run(e, events(3))
	require.Len(t, out, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, out[2*i], out[2*i+1])
		assert.Equal(t, uint64(i+1), out[2*i].Header.Seq)
	}
	assert.Equal(t, uint64(3), e.Stats().Duplicated)
}

func TestReorderKeepsEveryEvent(t *testing.T) {
	e, err := NewEngine(Config{Seed: 7, ReorderWindow: 3})
	require.NoError(t, err)
	in := events(10)

	assert.Nil(t, e.Process(in[0]))
	assert.Nil(t, e.Process(in[1]))
	out := e.Process(in[2])
	require.Len(t, out, 1)
	for _, ev := range in[3:] {
		out = append(out, e.Process(ev)...)
	}
	out = append(out, e.Flush()...)

	require.Len(t, out, len(in))
	sort.Slice(out, func(i, j int) bool { return out[i].Header.Seq < out[j].Header.Seq })
	assert.Equal(t, in, out)
}

func TestSkewMovesTimestampsForward(t *testing.T) {
	e, err := NewEngine(Config{Seed: 3, MaxSkew: 5 * time.Second})
	require.NoError(t, err)
	in := events(20)
	out := run(e, in)
	require.Len(t, out, len(in))
	for i := range in {
		d := out[i].Header.Timestamp - in[i].Header.Timestamp
		assert.GreaterOrEqual(t, d, int64(0))
		assert.LessOrEqual(t, d, int64(5))
	}
}

func TestRewrite(t *testing.T) {
	src := t.TempDir()
	w, err := recorder.NewWriter(recorder.DefaultConfig(src))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	for _, ev := range events(3) {
		require.NoError(t, w.Append(context.Background(), ev.Header, ev.Payload))
	}
	require.NoError(t, w.Close())

	dst := t.TempDir()
	stats, err := Rewrite(context.Background(), RewriteConfig{
		Source:   recorder.PlaybackConfig{Dir: src},
		Target:   recorder.Config{Dir: dst},
		Chaos:    Config{Seed: 1, DuplicateRate: 1},
		Renumber: true,
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{In: 3, Out: 6, Duplicated: 3}, stats)

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{Dir: dst})
	require.NoError(t, err)
	var seqs []uint64
	var payloads []byte
	require.NoError(t, pb.Run(context.Background(), func(h schema.EventHeader, p []byte) error {
		seqs = append(seqs, h.Seq)
		payloads = append(payloads, p...)
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, seqs)
	assert.Equal(t, []byte{0, 0, 1, 1, 2, 2}, payloads)
}

func TestRewriteRejectsBadConfig(t *testing.T) {
	_, err := Rewrite(context.Background(), RewriteConfig{
		Source: recorder.PlaybackConfig{Dir: t.TempDir()},
		Target: recorder.Config{Dir: t.TempDir()},
		Chaos:  Config{DropRate: 2},
	})
	require.Error(t, err)
}
