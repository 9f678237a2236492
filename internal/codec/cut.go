package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/schema"
)

// wireCut mirrors the (address,uint8,bytes4[]) tuple. Field order matters for
// abi.ConvertType.
type wireCut struct {
	FacetAddress      common.Address
	Action            uint8
	FunctionSelectors [][4]byte
}

type wireFacet struct {
	FacetAddress      common.Address
	FunctionSelectors [][4]byte
}

func toWire(entries []schema.CutEntry) []wireCut {
	out := make([]wireCut, len(entries))
	for i, e := range entries {
		out[i] = wireCut{FacetAddress: e.Module, Action: uint8(e.Action), FunctionSelectors: SelectorsToWire(e.Selectors)}
	}
	return out
}

func fromWire(in []wireCut) []schema.CutEntry {
	out := make([]schema.CutEntry, len(in))
	for i, w := range in {
		out[i] = schema.CutEntry{Module: w.FacetAddress, Action: schema.CutAction(w.Action), Selectors: SelectorsFromWire(w.FunctionSelectors)}
	}
	return out
}

func payloadOrEmpty(p []byte) []byte {
	if p == nil {
		return []byte{}
	}
	return p
}

// EncodeCutArgs encodes a cut as diamondCut arguments without the selector.
// This is the data part of a timelock entry.
func EncodeCutArgs(cut schema.Cut) ([]byte, error) {
	return PackArgs("diamondCut", toWire(cut.Entries), cut.Init, payloadOrEmpty(cut.InitPayload))
}

// EncodeCutCall encodes a full diamondCut call.
func EncodeCutCall(cut schema.Cut) ([]byte, error) {
	return Pack("diamondCut", toWire(cut.Entries), cut.Init, payloadOrEmpty(cut.InitPayload))
}

// DecodeCutArgs decodes diamondCut arguments without the selector.
func DecodeCutArgs(args []byte) (cut schema.Cut, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode cut: %v", r)
		}
	}()

	values, err := UnpackArgs("diamondCut", args)
	if err != nil {
		return schema.Cut{}, err
	}
	return cutFromValues(values)
}

// EncodeCutEvent packs the DiamondCut event.
func EncodeCutEvent(cut schema.Cut) ([]common.Hash, []byte, error) {
	return PackEvent("DiamondCut", toWire(cut.Entries), cut.Init, payloadOrEmpty(cut.InitPayload))
}

// DecodeCutEvent decodes the data of a DiamondCut event.
func DecodeCutEvent(data []byte) (cut schema.Cut, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode cut event: %v", r)
		}
	}()

	values, err := UnpackEventData("DiamondCut", data)
	if err != nil {
		return schema.Cut{}, err
	}
	return cutFromValues(values)
}

func cutFromValues(values []any) (schema.Cut, error) {
	if len(values) != 3 {
		return schema.Cut{}, fmt.Errorf("decode cut: want 3 values, got %d", len(values))
	}
	wire := *abi.ConvertType(values[0], new([]wireCut)).(*[]wireCut)
	target, ok := values[1].(common.Address)
	if !ok {
		return schema.Cut{}, fmt.Errorf("decode cut: init is %T", values[1])
	}
	payload, ok := values[2].([]byte)
	if !ok {
		return schema.Cut{}, fmt.Errorf("decode cut: payload is %T", values[2])
	}
	return schema.Cut{Entries: fromWire(wire), Init: target, InitPayload: payload}, nil
}

// EncodeFacets packs the return value of facets().
func EncodeFacets(facets []schema.Facet) ([]byte, error) {
	wire := make([]wireFacet, len(facets))
	for i, f := range facets {
		wire[i] = wireFacet{FacetAddress: f.Address, FunctionSelectors: SelectorsToWire(f.Selectors)}
	}
	return PackReturn("facets", wire)
}

// DecodeFacets unpacks the return value of facets().
func DecodeFacets(output []byte) (facets []schema.Facet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode facets: %v", r)
		}
	}()

	values, err := UnpackReturn("facets", output)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("decode facets: want 1 value, got %d", len(values))
	}
	wire := *abi.ConvertType(values[0], new([]wireFacet)).(*[]wireFacet)
	facets = make([]schema.Facet, len(wire))
	for i, w := range wire {
		facets[i] = schema.Facet{Address: w.FacetAddress, Selectors: SelectorsFromWire(w.FunctionSelectors)}
	}
	return facets, nil
}

// SelectorsFromWire converts decoded bytes4[] values.
func SelectorsFromWire(in [][4]byte) []schema.Selector {
	out := make([]schema.Selector, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// SelectorsToWire converts selectors to the bytes4[] representation.
func SelectorsToWire(in []schema.Selector) [][4]byte {
	out := make([][4]byte, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
