package chain

import (
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/codec"
	"tradex/internal/schema"
)

// Log is an event emitted by code during a transaction. Logs become visible
// to publishers only once the top-level transaction commits.
type Log struct {
	Address common.Address
	Type    schema.EventType
	Topics  []common.Hash
	Data    []byte
	Seq     uint64
	Block   uint64
	Time    int64
}

// Header builds the audit record header of the log.
func (l Log) Header() schema.EventHeader {
	return schema.NewHeader(l.Type, l.Seq, l.Block, l.Time, l.Address)
}

// Payload serializes the topics and data of the log.
func (l Log) Payload() []byte {
	return codec.EncodeLogPayload(nil, l.Topics, l.Data)
}

// Publisher receives committed logs in emission order.
type Publisher interface {
	Publish(log Log)
}

// Observer is notified after every top-level transaction.
type Observer interface {
	ObserveTransaction(tx TxInfo)
}
