package obs

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradex/internal/chain"
	"tradex/internal/errors"
	"tradex/internal/schema"
)

var errDenied = errors.New(errors.KindAuthorization, "denied")

type gate struct{}

func (gate) Run(f *chain.Frame) ([]byte, error) {
	if len(f.Input) > 0 && f.Input[0] == 1 {
		return nil, errDenied
	}
	if len(f.Input) > 0 && f.Input[0] == 2 {
		return nil, stderrors.New("plain")
	}
	return nil, nil
}

func TestObserveTransactions(t *testing.T) {
	m := NewMetrics()
	c := chain.New(chain.WithObserver(m))
	from := common.HexToAddress("0x01")
	addr, err := c.Deploy(from, gate{})
	require.NoError(t, err)

	_, err = c.Transact(from, addr, []byte{0})
	require.NoError(t, err)
	_, err = c.Transact(from, addr, []byte{1})
	require.Error(t, err)
	_, err = c.Transact(from, addr, []byte{1})
	require.Error(t, err)
	_, err = c.Transact(from, addr, []byte{2})
	require.Error(t, err)
	_, err = c.Transact(from, common.HexToAddress("0x02"), nil)
	require.ErrorIs(t, err, chain.ErrNoCode)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Committed)
	assert.Equal(t, map[errors.Kind]uint64{
		errors.KindUnknown:       1,
		errors.KindAuthorization: 2,
		errors.KindDependency:    1,
	}, snap.RevertCounts)
	assert.Equal(t, uint64(5), snap.TxLatency.Count)
}

func TestObserveEvent(t *testing.T) {
	m := NewMetrics()
	now := time.Unix(1_700_000_010, 0)
	m.ObserveEvent(schema.EventHeader{Type: schema.EventDiamondCut, Timestamp: 1_700_000_000}, now)
	m.ObserveEvent(schema.EventHeader{Type: schema.EventDiamondCut, Timestamp: 1_700_000_005}, now)
	m.ObserveEvent(schema.EventHeader{Type: schema.EventParamSet}, now)
	m.ObserveEvent(schema.EventHeader{Type: schema.EventType(999)}, now)
	m.IncQueueDrop()
	m.IncQueueClosed()
	m.IncRecorded()

	snap := m.Snapshot()
	assert.Equal(t, map[schema.EventType]uint64{
		schema.EventDiamondCut: 2,
		schema.EventParamSet:   1,
	}, snap.EventCounts)
	assert.Equal(t, LatencySnapshot{
		Count: 2,
		Min:   5 * time.Second,
		Max:   10 * time.Second,
		Avg:   7500 * time.Millisecond,
	}, snap.AuditLatency)
	assert.Equal(t, uint64(1), snap.QueueDrops)
	assert.Equal(t, uint64(1), snap.QueueClosed)
	assert.Equal(t, uint64(1), snap.Recorded)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.IncQueueDrop()
	m.ObserveTransaction(chain.TxInfo{})
	m.ObserveEvent(schema.EventHeader{}, time.Now())
	assert.Equal(t, Snapshot{}, m.Snapshot())
}
