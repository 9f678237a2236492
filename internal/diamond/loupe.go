package diamond

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/schema"
)

var loupeMethods = []string{
	"facets",
	"facetFunctionSelectors",
	"facetAddresses",
	"facetAddress",
	"supportsInterface",
}

// LoupeFacet serves read-only views of the registry. It runs in the core's
// storage context, so it reads whatever registry the core holds.
type LoupeFacet struct {
	methods *chain.Methods
}

var _ Facet = (*LoupeFacet)(nil)

// NewLoupeFacet returns the loupe facet with its method table.
func NewLoupeFacet() *LoupeFacet {
	l := &LoupeFacet{}
	l.methods = chain.NewMethods().
		Handle(codec.Selector("facets"), l.facets).
		Handle(codec.Selector("facetFunctionSelectors"), l.facetFunctionSelectors).
		Handle(codec.Selector("facetAddresses"), l.facetAddresses).
		Handle(codec.Selector("facetAddress"), l.facetAddress).
		Handle(codec.Selector("supportsInterface"), l.supportsInterface)
	return l
}

// Run dispatches a call by selector.
func (l *LoupeFacet) Run(f *chain.Frame) ([]byte, error) {
	return l.methods.Run(f)
}

// Selectors lists the loupe and ERC-165 selectors.
func (l *LoupeFacet) Selectors() []schema.Selector {
	return l.methods.Selectors()
}

// ABI describes the loupe methods.
func (l *LoupeFacet) ABI() abi.ABI {
	return codec.Subset(loupeMethods...)
}

func (l *LoupeFacet) facets(f *chain.Frame, _ []byte) ([]byte, error) {
	return codec.EncodeFacets(load(f.Store()).registry.Facets())
}

func (l *LoupeFacet) facetFunctionSelectors(f *chain.Frame, args []byte) ([]byte, error) {
	values, err := chain.Unpack("facetFunctionSelectors", args, 1)
	if err != nil {
		return nil, err
	}
	module, _ := values[0].(common.Address)
	sels := load(f.Store()).registry.SelectorsOf(module)
	return codec.PackReturn("facetFunctionSelectors", codec.SelectorsToWire(sels))
}

func (l *LoupeFacet) facetAddresses(f *chain.Frame, _ []byte) ([]byte, error) {
	return codec.PackReturn("facetAddresses", load(f.Store()).registry.Modules())
}

func (l *LoupeFacet) facetAddress(f *chain.Frame, args []byte) ([]byte, error) {
	values, err := chain.Unpack("facetAddress", args, 1)
	if err != nil {
		return nil, err
	}
	sel, _ := values[0].([4]byte)
	module, _ := load(f.Store()).registry.ModuleOf(sel)
	return codec.PackReturn("facetAddress", module)
}

func (l *LoupeFacet) supportsInterface(f *chain.Frame, args []byte) ([]byte, error) {
	values, err := chain.Unpack("supportsInterface", args, 1)
	if err != nil {
		return nil, err
	}
	id, _ := values[0].([4]byte)
	return codec.PackReturn("supportsInterface", load(f.Store()).interfaces[id])
}
