package diamond

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/errors"
	"tradex/internal/schema"
	"tradex/internal/state"
)

// Client reads the core's registry through its loupe with static calls.
type Client struct {
	chain *chain.Chain
	core  common.Address
}

// NewClient returns a read-only client of the core at address core.
func NewClient(c *chain.Chain, core common.Address) *Client {
	return &Client{chain: c, core: core}
}

// Core returns the address the client reads from.
func (c *Client) Core() common.Address {
	return c.core
}

func (c *Client) call(method string, args ...any) ([]any, error) {
	input, err := codec.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.chain.StaticCall(common.Address{}, c.core, input)
	if err != nil {
		return nil, err
	}
	values, err := codec.UnpackReturn(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return values, nil
}

// Resolve returns the module bound to sel or ErrNotRegistered.
func (c *Client) Resolve(sel schema.Selector) (common.Address, error) {
	module, err := c.ModuleOf(sel)
	if err != nil {
		return common.Address{}, err
	}
	if module == (common.Address{}) {
		return common.Address{}, errors.Wrap(ErrNotRegistered, "selector "+sel.Hex())
	}
	return module, nil
}

// ModuleOf returns the module bound to sel, or the zero address.
func (c *Client) ModuleOf(sel schema.Selector) (common.Address, error) {
	values, err := c.call("facetAddress", [4]byte(sel))
	if err != nil {
		return common.Address{}, err
	}
	module, _ := values[0].(common.Address)
	return module, nil
}

// ListModules returns the distinct module addresses in registry order.
func (c *Client) ListModules() ([]common.Address, error) {
	values, err := c.call("facetAddresses")
	if err != nil {
		return nil, err
	}
	modules, _ := values[0].([]common.Address)
	return modules, nil
}

// SelectorsOf returns the selectors bound to module.
func (c *Client) SelectorsOf(module common.Address) ([]schema.Selector, error) {
	values, err := c.call("facetFunctionSelectors", module)
	if err != nil {
		return nil, err
	}
	sels, _ := values[0].([][4]byte)
	return codec.SelectorsFromWire(sels), nil
}

// Facets returns every module with its selectors.
func (c *Client) Facets() ([]schema.Facet, error) {
	input, err := codec.Pack("facets")
	if err != nil {
		return nil, err
	}
	out, err := c.chain.StaticCall(common.Address{}, c.core, input)
	if err != nil {
		return nil, err
	}
	return codec.DecodeFacets(out)
}

// SupportsInterface queries ERC-165 support.
func (c *Client) SupportsInterface(id schema.Selector) (bool, error) {
	values, err := c.call("supportsInterface", [4]byte(id))
	if err != nil {
		return false, err
	}
	ok, _ := values[0].(bool)
	return ok, nil
}

// Snapshot captures the registry as currently committed.
func (c *Client) Snapshot() (state.Snapshot, error) {
	facets, err := c.Facets()
	if err != nil {
		return state.Snapshot{}, err
	}
	return state.Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Core:      c.core,
		LastSeq:   c.chain.Seq(),
		Block:     c.chain.Block(),
		Facets:    facets,
	}, nil
}
