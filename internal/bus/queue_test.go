package bus

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/schema"
)

type dropCounter struct {
	full, closed int
}

func (d *dropCounter) IncQueueDrop()   { d.full++ }
func (d *dropCounter) IncQueueClosed() { d.closed++ }

func TestQueue(t *testing.T) {
	q := NewQueue(2)
	assert.Equal(t, 2, q.Cap())
	require.NoError(t, q.TryPublish(Event{Header: schema.EventHeader{Seq: 1}}))
	require.NoError(t, q.TryPublish(Event{Header: schema.EventHeader{Seq: 2}}))
	require.ErrorIs(t, q.TryPublish(Event{}), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	q.Close()
	q.Close()
	require.ErrorIs(t, q.TryPublish(Event{}), ErrQueueClosed)

	var seqs []uint64
	n := q.Run(context.Background(), func(e Event) {
		seqs = append(seqs, e.Header.Seq)
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestRunStopsOnContext(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, 1, q.Cap())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx, func(Event) {
		t.Fatal("no events expected")
	})
}

func TestPublisher(t *testing.T) {
	q := NewQueue(1)
	drops := &dropCounter{}
	p := NewPublisher(q, drops)

	emitter := common.HexToAddress("0x00000000000000000000000000000000000000c0")
	l := chain.Log{
		Address: emitter,
		Type:    schema.EventParamSet,
		Topics:  []common.Hash{{0x01}, {0x02}},
		Data:    []byte{0xaa, 0xbb},
		Seq:     7,
		Block:   3,
		Time:    1_700_000_000,
	}
	p.Publish(l)
	p.Publish(l)
	assert.Equal(t, 1, drops.full)

	q.Close()
	p.Publish(l)
	assert.Equal(t, 1, drops.closed)

	var got []Event
	q.Run(context.Background(), func(e Event) { got = append(got, e) })
	require.Len(t, got, 1)

	header := got[0].Header
	assert.Equal(t, schema.EventParamSet, header.Type)
	assert.Equal(t, schema.SchemaVersion, header.Version)
	assert.Equal(t, uint64(7), header.Seq)
	assert.Equal(t, uint64(3), header.Block)
	assert.Equal(t, int64(1_700_000_000), header.Timestamp)
	assert.Equal(t, [20]byte(emitter), header.Emitter)

	topics, data, err := codec.DecodeLogPayload(got[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, l.Topics, topics)
	assert.Equal(t, l.Data, data)
}

func TestPublisherWithoutCounter(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	NewPublisher(q, nil).Publish(chain.Log{})
}
