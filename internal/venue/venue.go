// Package venue deploys a complete core with its facets and drives the
// administrative flows against it.
package venue

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yanun0323/logs"

	"tradex/internal/access"
	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/diamond"
	"tradex/internal/params"
	"tradex/internal/schema"
	"tradex/internal/timelock"
)

// Config describes a venue deployment. Zero Delay or GracePeriod keep the
// timelock defaults.
type Config struct {
	Admin       common.Address
	Deployer    common.Address
	Delay       int64
	GracePeriod int64
	// Extra facets bound at construction after the standard ones.
	Extra []diamond.Facet
}

// Venue is a deployed core and the addresses of its standard facets.
type Venue struct {
	chain *chain.Chain

	Core     common.Address
	Loupe    common.Address
	Access   common.Address
	Timelock common.Address
	Params   common.Address
	Init     common.Address
	Extra    []common.Address

	Client *diamond.Client
}

// Deploy installs the standard facets, the initializer and the core, and
// returns the resulting venue. A zero Deployer deploys from Admin.
func Deploy(c *chain.Chain, cfg Config) (*Venue, error) {
	if cfg.Deployer == (common.Address{}) {
		cfg.Deployer = cfg.Admin
	}

	v := &Venue{chain: c}
	standard := []struct {
		name  string
		facet diamond.Facet
		addr  *common.Address
	}{
		{"loupe", diamond.NewLoupeFacet(), &v.Loupe},
		{"access", access.NewFacet(), &v.Access},
		{"timelock", timelock.NewFacet(), &v.Timelock},
		{"params", params.NewFacet(), &v.Params},
	}

	var entries []schema.CutEntry
	for _, s := range standard {
		addr, err := c.Deploy(cfg.Deployer, s.facet)
		if err != nil {
			return nil, fmt.Errorf("deploy %s facet: %w", s.name, err)
		}
		*s.addr = addr
		entries = append(entries, schema.CutEntry{Module: addr, Action: schema.CutActionBind, Selectors: s.facet.Selectors()})
		logs.Debugf("deployed %s facet at %s", s.name, addr.Hex())
	}
	for i, facet := range cfg.Extra {
		addr, err := c.Deploy(cfg.Deployer, facet)
		if err != nil {
			return nil, fmt.Errorf("deploy extra facet %d: %w", i, err)
		}
		v.Extra = append(v.Extra, addr)
		entries = append(entries, schema.CutEntry{Module: addr, Action: schema.CutActionBind, Selectors: facet.Selectors()})
	}

	initAddr, err := c.Deploy(cfg.Deployer, NewInit())
	if err != nil {
		return nil, fmt.Errorf("deploy init: %w", err)
	}
	v.Init = initAddr

	payload, err := InitPayload(cfg.Admin, cfg.Deployer, cfg.Delay, cfg.GracePeriod)
	if err != nil {
		return nil, err
	}
	core, err := c.Deploy(cfg.Deployer, diamond.New(schema.Cut{
		Entries:     entries,
		Init:        initAddr,
		InitPayload: payload,
	}))
	if err != nil {
		return nil, fmt.Errorf("deploy core: %w", err)
	}
	v.Core = core
	v.Client = diamond.NewClient(c, core)

	logs.Infof("venue core deployed at %s, admin %s, deployer %s", core.Hex(), cfg.Admin.Hex(), cfg.Deployer.Hex())
	return v, nil
}

// Chain returns the ledger the venue runs on.
func (v *Venue) Chain() *chain.Chain {
	return v.chain
}

// Call sends a transaction invoking method on the core and decodes its
// return values.
func (v *Venue) Call(from common.Address, method string, args ...any) ([]any, chain.Receipt, error) {
	input, err := codec.Pack(method, args...)
	if err != nil {
		return nil, chain.Receipt{}, err
	}
	receipt, err := v.chain.Transact(from, v.Core, input)
	if err != nil {
		return nil, receipt, err
	}
	values, err := codec.UnpackReturn(method, receipt.Output)
	if err != nil {
		return nil, receipt, fmt.Errorf("%s: %w", method, err)
	}
	return values, receipt, nil
}

// View runs a read-only call of method on the core.
func (v *Venue) View(method string, args ...any) ([]any, error) {
	input, err := codec.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := v.chain.StaticCall(common.Address{}, v.Core, input)
	if err != nil {
		return nil, err
	}
	return codec.UnpackReturn(method, out)
}

// Queue queues signature with data and returns its hash and eta.
func (v *Venue) Queue(from common.Address, signature string, data []byte) (common.Hash, int64, error) {
	values, _, err := v.Call(from, "queueTransaction", signature, orEmpty(data))
	if err != nil {
		return common.Hash{}, 0, err
	}
	hash, _ := values[0].([32]byte)
	eta, _ := values[1].(*big.Int)
	return hash, eta.Int64(), nil
}

// Execute executes a queued entry and returns the inner call's output.
func (v *Venue) Execute(from common.Address, signature string, data []byte) ([]byte, chain.Receipt, error) {
	values, receipt, err := v.Call(from, "executeTransaction", signature, orEmpty(data))
	if err != nil {
		return nil, receipt, err
	}
	out, _ := values[0].([]byte)
	return out, receipt, nil
}

// Cancel removes a queued entry.
func (v *Venue) Cancel(from common.Address, signature string, data []byte) error {
	_, _, err := v.Call(from, "cancelTransaction", signature, orEmpty(data))
	return err
}

// CutCall returns the signature and argument bytes that queue cut.
func CutCall(cut schema.Cut) (string, []byte, error) {
	data, err := codec.EncodeCutArgs(cut)
	if err != nil {
		return "", nil, err
	}
	return codec.Signature("diamondCut"), data, nil
}

// QueueCut queues a cut request under the diamondCut signature.
func (v *Venue) QueueCut(from common.Address, cut schema.Cut) (common.Hash, int64, error) {
	sig, data, err := CutCall(cut)
	if err != nil {
		return common.Hash{}, 0, err
	}
	return v.Queue(from, sig, data)
}

// ExecuteCut executes a previously queued cut request.
func (v *Venue) ExecuteCut(from common.Address, cut schema.Cut) (chain.Receipt, error) {
	sig, data, err := CutCall(cut)
	if err != nil {
		return chain.Receipt{}, err
	}
	_, receipt, err := v.Execute(from, sig, data)
	return receipt, err
}

func orEmpty(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
