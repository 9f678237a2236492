package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var txHashArgs = mustArguments("string", "bytes")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// TxHash identifies a timelock entry: keccak256(abi.encode(signature, data)).
func TxHash(signature string, data []byte) common.Hash {
	if data == nil {
		data = []byte{}
	}
	packed, err := txHashArgs.Pack(signature, data)
	if err != nil {
		// string and bytes always pack.
		panic(err)
	}
	return crypto.Keccak256Hash(packed)
}

// TimelockEvent is the decoded form of the queue, execute and cancel events.
type TimelockEvent struct {
	TxHash    common.Hash
	Signature string
	Data      []byte
	Eta       int64
}

// EncodeTimelockEvent packs one of QueueTransaction, ExecuteTransaction or
// CancelTransaction.
func EncodeTimelockEvent(name string, ev TimelockEvent) ([]common.Hash, []byte, error) {
	data := ev.Data
	if data == nil {
		data = []byte{}
	}
	return PackEvent(name, ev.TxHash, ev.Signature, data, big.NewInt(ev.Eta))
}

// DecodeTimelockEvent decodes a timelock event from its topics and data.
func DecodeTimelockEvent(name string, topics []common.Hash, data []byte) (TimelockEvent, error) {
	if len(topics) != 2 {
		return TimelockEvent{}, fmt.Errorf("%s: want 2 topics, got %d", name, len(topics))
	}
	values, err := UnpackEventData(name, data)
	if err != nil {
		return TimelockEvent{}, err
	}
	if len(values) != 3 {
		return TimelockEvent{}, fmt.Errorf("%s: want 3 values, got %d", name, len(values))
	}
	sig, _ := values[0].(string)
	payload, _ := values[1].([]byte)
	eta, _ := values[2].(*big.Int)
	if eta == nil {
		return TimelockEvent{}, fmt.Errorf("%s: eta is %T", name, values[2])
	}
	return TimelockEvent{
		TxHash:    topics[1],
		Signature: sig,
		Data:      payload,
		Eta:       eta.Int64(),
	}, nil
}
