package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tradex/internal/codec"
	"tradex/internal/ops"
	"tradex/internal/venue"
)

// timelockCall is what an admin submits to queue and execute a cut.
type timelockCall struct {
	Signature string
	Data      []byte
	TxHash    common.Hash
}

func (c timelockCall) DataHex() string {
	return hexutil.Encode(c.Data)
}

// encodePlan resolves a cut plan whose modules are all given as addresses.
func encodePlan(path string) (timelockCall, error) {
	plan, err := ops.LoadCutPlan(path)
	if err != nil {
		return timelockCall{}, err
	}
	cut, err := plan.Resolve(nil)
	if err != nil {
		return timelockCall{}, err
	}
	sig, data, err := venue.CutCall(cut)
	if err != nil {
		return timelockCall{}, err
	}
	return timelockCall{Signature: sig, Data: data, TxHash: codec.TxHash(sig, data)}, nil
}
