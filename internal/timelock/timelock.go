// Package timelock implements the delayed execution queue of the core.
//
// An entry is identified by keccak256(abi.encode(signature, data)). It may
// execute once its eta has passed and until eta plus the grace period.
// Execution calls the core as the core itself, which is the only way to
// reach self-gated methods such as diamondCut.
package timelock

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/access"
	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/diamond"
	"tradex/internal/errors"
	"tradex/internal/schema"
)

var facetMembers = []string{
	"queueTransaction",
	"executeTransaction",
	"cancelTransaction",
	"queuedTransaction",
	"delay",
	"gracePeriod",
	"setDelay",
	"setGracePeriod",
	"QueueTransaction",
	"ExecuteTransaction",
	"CancelTransaction",
}

// Facet serves the queue from the core's storage.
type Facet struct {
	methods *chain.Methods
}

var _ diamond.Facet = (*Facet)(nil)

// NewFacet returns the timelock facet with its method table.
func NewFacet() *Facet {
	t := &Facet{}
	t.methods = chain.NewMethods().
		Handle(codec.Selector("queueTransaction"), t.queueTransaction).
		Handle(codec.Selector("executeTransaction"), t.executeTransaction).
		Handle(codec.Selector("cancelTransaction"), t.cancelTransaction).
		Handle(codec.Selector("queuedTransaction"), t.queuedTransaction).
		Handle(codec.Selector("delay"), t.delay).
		Handle(codec.Selector("gracePeriod"), t.gracePeriod).
		Handle(codec.Selector("setDelay"), t.setDelay).
		Handle(codec.Selector("setGracePeriod"), t.setGracePeriod)
	return t
}

// Run dispatches a call by selector.
func (t *Facet) Run(f *chain.Frame) ([]byte, error) {
	return t.methods.Run(f)
}

// Selectors lists the selectors the facet serves.
func (t *Facet) Selectors() []schema.Selector {
	return t.methods.Selectors()
}

// ABI describes the queue methods and events.
func (t *Facet) ABI() abi.ABI {
	return codec.Subset(facetMembers...)
}

func signatureAndData(method string, args []byte) (string, []byte, error) {
	values, err := chain.Unpack(method, args, 2)
	if err != nil {
		return "", nil, err
	}
	sig, _ := values[0].(string)
	data, _ := values[1].([]byte)
	return sig, data, nil
}

func (t *Facet) queueTransaction(f *chain.Frame, args []byte) ([]byte, error) {
	if err := access.CheckRole(f.Store(), f.Sender, access.AdminRole, access.DeployerRole); err != nil {
		return nil, err
	}
	sig, data, err := signatureAndData("queueTransaction", args)
	if err != nil {
		return nil, err
	}

	s := load(f.Store())
	hash := codec.TxHash(sig, data)
	now := f.Now()
	if eta, ok := s.queued[hash]; ok && !s.expired(eta, now) {
		return nil, errors.Wrap(ErrDuplicateQueuedTransaction, hash.Hex())
	}

	eta := addSeconds(now, s.delay)
	s.queued[hash] = eta
	if err := emit(f, "QueueTransaction", schema.EventQueueTransaction, hash, sig, data, eta); err != nil {
		return nil, err
	}
	return codec.PackReturn("queueTransaction", [32]byte(hash), big.NewInt(eta))
}

func (t *Facet) executeTransaction(f *chain.Frame, args []byte) ([]byte, error) {
	if err := access.CheckRole(f.Store(), f.Sender, access.AdminRole); err != nil {
		return nil, err
	}
	sig, data, err := signatureAndData("executeTransaction", args)
	if err != nil {
		return nil, err
	}

	s := load(f.Store())
	hash := codec.TxHash(sig, data)
	now := f.Now()
	eta, ok := s.queued[hash]
	switch {
	case !ok:
		return nil, errors.Wrap(ErrNotQueued, hash.Hex())
	case now < eta:
		return nil, errors.Wrap(ErrTooEarly, fmt.Sprintf("%s eta %d now %d", hash.Hex(), eta, now))
	case s.expired(eta, now):
		return nil, errors.Wrap(ErrStaleTransaction, fmt.Sprintf("%s expired at %d now %d", hash.Hex(), s.deadline(eta), now))
	}

	delete(s.queued, hash)
	if err := emit(f, "ExecuteTransaction", schema.EventExecuteTransaction, hash, sig, data, eta); err != nil {
		return nil, err
	}

	sel := schema.SelectorOf(sig)
	input := make([]byte, 0, len(sel)+len(data))
	input = append(input, sel[:]...)
	input = append(input, data...)
	out, err := f.Call(f.Self, input)
	if err != nil {
		return nil, &TargetCallError{Signature: sig, Data: data, Err: err}
	}
	if out == nil {
		out = []byte{}
	}
	return codec.PackReturn("executeTransaction", out)
}

func (t *Facet) cancelTransaction(f *chain.Frame, args []byte) ([]byte, error) {
	if err := access.CheckRole(f.Store(), f.Sender, access.AdminRole); err != nil {
		return nil, err
	}
	sig, data, err := signatureAndData("cancelTransaction", args)
	if err != nil {
		return nil, err
	}

	s := load(f.Store())
	hash := codec.TxHash(sig, data)
	eta, ok := s.queued[hash]
	if !ok {
		return nil, errors.Wrap(ErrNotQueued, hash.Hex())
	}
	delete(s.queued, hash)
	return nil, emit(f, "CancelTransaction", schema.EventCancelTransaction, hash, sig, data, eta)
}

func (t *Facet) queuedTransaction(f *chain.Frame, args []byte) ([]byte, error) {
	values, err := chain.Unpack("queuedTransaction", args, 1)
	if err != nil {
		return nil, err
	}
	hash, _ := values[0].([32]byte)
	eta := load(f.Store()).queued[hash]
	return codec.PackReturn("queuedTransaction", big.NewInt(eta))
}

func (t *Facet) delay(f *chain.Frame, _ []byte) ([]byte, error) {
	return codec.PackReturn("delay", big.NewInt(load(f.Store()).delay))
}

func (t *Facet) gracePeriod(f *chain.Frame, _ []byte) ([]byte, error) {
	return codec.PackReturn("gracePeriod", big.NewInt(load(f.Store()).grace))
}

func (t *Facet) setDelay(f *chain.Frame, args []byte) ([]byte, error) {
	if err := diamond.OnlySelf(f); err != nil {
		return nil, err
	}
	v, err := seconds("setDelay", args, checkDelay)
	if err != nil {
		return nil, err
	}
	load(f.Store()).delay = v
	return nil, nil
}

func (t *Facet) setGracePeriod(f *chain.Frame, args []byte) ([]byte, error) {
	if err := diamond.OnlySelf(f); err != nil {
		return nil, err
	}
	v, err := seconds("setGracePeriod", args, checkGracePeriod)
	if err != nil {
		return nil, err
	}
	load(f.Store()).grace = v
	return nil, nil
}

func seconds(method string, args []byte, check func(int64) error) (int64, error) {
	values, err := chain.Unpack(method, args, 1)
	if err != nil {
		return 0, err
	}
	v, _ := values[0].(*big.Int)
	if v == nil || !v.IsInt64() {
		return 0, errors.Wrap(ErrInvalidDelay, fmt.Sprintf("%s(%v)", method, v))
	}
	if err := check(v.Int64()); err != nil {
		return 0, errors.Wrap(err, method)
	}
	return v.Int64(), nil
}

func emit(f *chain.Frame, name string, eventType schema.EventType, hash common.Hash, sig string, data []byte, eta int64) error {
	topics, payload, err := codec.EncodeTimelockEvent(name, codec.TimelockEvent{
		TxHash:    hash,
		Signature: sig,
		Data:      data,
		Eta:       eta,
	})
	if err != nil {
		return err
	}
	f.Emit(eventType, topics, payload)
	return nil
}
