package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidLogPayload = errors.New("invalid log payload")

const logPayloadHeaderSize = 6

// PackEvent encodes an event into its topics and data. Values are given in
// declaration order, indexed and non-indexed alike.
func PackEvent(name string, values ...any) ([]common.Hash, []byte, error) {
	event, ok := contract.Events[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown abi event %q", name)
	}
	if len(values) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("event %s: want %d values, got %d", name, len(event.Inputs), len(values))
	}

	topics := []common.Hash{event.ID}
	data := make([]any, 0, len(values))
	for i, input := range event.Inputs {
		if !input.Indexed {
			data = append(data, values[i])
			continue
		}
		topic, err := topicOf(values[i])
		if err != nil {
			return nil, nil, fmt.Errorf("event %s topic %s: %w", name, input.Name, err)
		}
		topics = append(topics, topic)
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, nil, fmt.Errorf("event %s: %w", name, err)
	}
	return topics, packed, nil
}

// UnpackEventData decodes the non-indexed values of an event.
func UnpackEventData(name string, data []byte) ([]any, error) {
	event, ok := contract.Events[name]
	if !ok {
		return nil, fmt.Errorf("unknown abi event %q", name)
	}
	return event.Inputs.NonIndexed().Unpack(data)
}

// EventID returns the first topic of a named event.
func EventID(name string) common.Hash {
	event, ok := contract.Events[name]
	if !ok {
		panic(fmt.Sprintf("unknown abi event %q", name))
	}
	return event.ID
}

func topicOf(v any) (common.Hash, error) {
	switch t := v.(type) {
	case common.Hash:
		return t, nil
	case [32]byte:
		return common.Hash(t), nil
	case common.Address:
		return common.BytesToHash(t.Bytes()), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported indexed type %T", v)
	}
}

// EncodeLogPayload serializes topics and data into a single audit record
// payload: topic count, data length, topics, data.
func EncodeLogPayload(dst []byte, topics []common.Hash, data []byte) []byte {
	size := logPayloadHeaderSize + len(topics)*common.HashLength + len(data)
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(len(topics)))
	binary.LittleEndian.PutUint32(dst[2:6], uint32(len(data)))
	off := logPayloadHeaderSize
	for _, topic := range topics {
		copy(dst[off:off+common.HashLength], topic[:])
		off += common.HashLength
	}
	copy(dst[off:], data)

	return dst
}

// DecodeLogPayload parses a payload written by EncodeLogPayload. The
// returned data aliases src.
func DecodeLogPayload(src []byte) ([]common.Hash, []byte, error) {
	if len(src) < logPayloadHeaderSize {
		return nil, nil, ErrInvalidLogPayload
	}
	count := int(binary.LittleEndian.Uint16(src[0:2]))
	dataLen := int(binary.LittleEndian.Uint32(src[2:6]))
	if len(src) != logPayloadHeaderSize+count*common.HashLength+dataLen {
		return nil, nil, ErrInvalidLogPayload
	}

	topics := make([]common.Hash, count)
	off := logPayloadHeaderSize
	for i := range topics {
		copy(topics[i][:], src[off:off+common.HashLength])
		off += common.HashLength
	}
	return topics, src[off:], nil
}
