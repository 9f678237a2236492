package chain

import (
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/schema"
	"tradex/internal/state"
)

// Frame is the execution context of one call.
//
// Self is the identity the code acts as and whose storage it sees. Code is the
// address the running code was loaded from; it differs from Self inside a
// delegate call. Sender is the immediate caller.
type Frame struct {
	chain  *Chain
	static bool

	Self   common.Address
	Code   common.Address
	Sender common.Address
	Origin common.Address
	Input  []byte
	Depth  int
}

// Store returns the storage of Self. After a nested call fails, slots must be
// loaded again because the storage may have been restored.
func (f *Frame) Store() *state.Store {
	return f.chain.storeOf(f.Self)
}

// Now returns the block timestamp of the running transaction.
func (f *Frame) Now() int64 {
	return f.chain.txTime
}

// Block returns the number of the running transaction.
func (f *Frame) Block() uint64 {
	return f.chain.block
}

// Static reports whether the frame belongs to a StaticCall.
func (f *Frame) Static() bool {
	return f.static
}

// HasCode reports whether code is deployed at addr.
func (f *Frame) HasCode(addr common.Address) bool {
	_, ok := f.chain.codes[addr]
	return ok
}

// Emit records a log attributed to Self.
func (f *Frame) Emit(eventType schema.EventType, topics []common.Hash, data []byte) {
	f.chain.logs = append(f.chain.logs, Log{
		Address: f.Self,
		Type:    eventType,
		Topics:  topics,
		Data:    data,
		Block:   f.chain.block,
		Time:    f.chain.txTime,
	})
}

// Call runs the code at to in its own identity and storage, with Self as the
// sender.
func (f *Frame) Call(to common.Address, input []byte) ([]byte, error) {
	return f.chain.run(&Frame{
		chain:  f.chain,
		static: f.static,
		Self:   to,
		Code:   to,
		Sender: f.Self,
		Origin: f.Origin,
		Input:  input,
		Depth:  f.Depth + 1,
	})
}

// Delegate runs the code at code in the identity and storage of Self, keeping
// the original sender.
func (f *Frame) Delegate(code common.Address, input []byte) ([]byte, error) {
	return f.chain.run(&Frame{
		chain:  f.chain,
		static: f.static,
		Self:   f.Self,
		Code:   code,
		Sender: f.Sender,
		Origin: f.Origin,
		Input:  input,
		Depth:  f.Depth + 1,
	})
}
