// Package params keeps named decimal venue parameters in the core's storage.
// Parameters are read by anyone and written only by the core itself, so every
// change goes through the timelock.
package params

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/diamond"
	"tradex/internal/errors"
	"tradex/internal/schema"
	"tradex/internal/state"
)

var (
	ErrInvalidValue = errors.New(errors.KindValidation, "params: value is not a decimal")
	ErrUnknownParam = errors.New(errors.KindConsistency, "params: parameter not set")
)

var storagePosition = state.Position("tradex.params.storage")

// Key derives the storage key of a parameter name.
func Key(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

type slot struct {
	keys   []common.Hash
	values map[common.Hash]decimal.Decimal
}

func newSlot() *slot {
	return &slot{values: make(map[common.Hash]decimal.Decimal)}
}

func (s *slot) Clone() state.Slot {
	c := &slot{
		keys:   append([]common.Hash(nil), s.keys...),
		values: make(map[common.Hash]decimal.Decimal, len(s.values)),
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

func (s *slot) set(key common.Hash, value decimal.Decimal) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func load(store *state.Store) *slot {
	return state.Load(store, storagePosition, newSlot)
}

// Get returns the value of key held in store.
func Get(store *state.Store, key common.Hash) (decimal.Decimal, bool) {
	v, ok := load(store).values[key]
	return v, ok
}

// Keys returns every parameter key in first-set order.
func Keys(store *state.Store) []common.Hash {
	return append([]common.Hash(nil), load(store).keys...)
}

var facetMembers = []string{"setParam", "getParam", "paramKeys", "ParamSet"}

// Facet serves the parameter table.
type Facet struct {
	methods *chain.Methods
}

var _ diamond.Facet = (*Facet)(nil)

// NewFacet returns the parameter facet with its method table.
func NewFacet() *Facet {
	p := &Facet{}
	p.methods = chain.NewMethods().
		Handle(codec.Selector("setParam"), p.setParam).
		Handle(codec.Selector("getParam"), p.getParam).
		Handle(codec.Selector("paramKeys"), p.paramKeys)
	return p
}

// Run dispatches a call by selector.
func (p *Facet) Run(f *chain.Frame) ([]byte, error) {
	return p.methods.Run(f)
}

// Selectors lists the selectors the facet serves.
func (p *Facet) Selectors() []schema.Selector {
	return p.methods.Selectors()
}

// ABI describes the parameter methods and the ParamSet event.
func (p *Facet) ABI() abi.ABI {
	return codec.Subset(facetMembers...)
}

func (p *Facet) setParam(f *chain.Frame, args []byte) ([]byte, error) {
	if err := diamond.OnlySelf(f); err != nil {
		return nil, err
	}
	values, err := chain.Unpack("setParam", args, 2)
	if err != nil {
		return nil, err
	}
	key, _ := values[0].([32]byte)
	raw, _ := values[1].(string)

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidValue, raw)
	}
	load(f.Store()).set(key, value)

	topics, data, err := codec.PackEvent("ParamSet", common.Hash(key), value.String())
	if err != nil {
		return nil, err
	}
	f.Emit(schema.EventParamSet, topics, data)
	return nil, nil
}

func (p *Facet) getParam(f *chain.Frame, args []byte) ([]byte, error) {
	values, err := chain.Unpack("getParam", args, 1)
	if err != nil {
		return nil, err
	}
	key, _ := values[0].([32]byte)
	value, ok := Get(f.Store(), key)
	if !ok {
		return nil, errors.Wrap(ErrUnknownParam, common.Hash(key).Hex())
	}
	return codec.PackReturn("getParam", value.String())
}

func (p *Facet) paramKeys(f *chain.Frame, _ []byte) ([]byte, error) {
	keys := Keys(f.Store())
	out := make([][32]byte, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return codec.PackReturn("paramKeys", out)
}
