package diamond

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/errors"
	"tradex/internal/schema"
)

// ERC-165 interface ids registered by the core at construction.
var (
	InterfaceERC165       = codec.Selector("supportsInterface")
	InterfaceDiamondCut   = codec.Selector("diamondCut")
	InterfaceDiamondLoupe = schema.InterfaceID(codec.Selectors(
		"facets", "facetFunctionSelectors", "facetAddresses", "facetAddress",
	)...)
)

var cutSelector = codec.Selector("diamondCut")

// Facet is a module that can be bound into the core.
type Facet interface {
	chain.Code
	// Selectors lists every selector the facet serves.
	Selectors() []schema.Selector
	ABI() abi.ABI
}

// Diamond is the code of the core contract: a selector dispatcher whose only
// native method is diamondCut.
type Diamond struct {
	initial schema.Cut
	native  *chain.Methods
}

// New creates core code that applies initial when deployed. The diamondCut
// selector is always bound to the core itself ahead of initial's entries.
func New(initial schema.Cut) *Diamond {
	d := &Diamond{initial: initial}
	d.native = chain.NewMethods().Handle(cutSelector, d.diamondCut)
	return d
}

// Selectors returns the selectors served natively by the core.
func (d *Diamond) Selectors() []schema.Selector {
	return d.native.Selectors()
}

// Construct registers the core's interfaces and applies the initial cut.
func (d *Diamond) Construct(f *chain.Frame) error {
	s := load(f.Store())
	s.interfaces[InterfaceERC165] = true
	s.interfaces[InterfaceDiamondCut] = true
	s.interfaces[InterfaceDiamondLoupe] = true

	entries := make([]schema.CutEntry, 0, len(d.initial.Entries)+1)
	entries = append(entries, schema.CutEntry{
		Module:    f.Self,
		Action:    schema.CutActionBind,
		Selectors: d.native.Selectors(),
	})
	entries = append(entries, d.initial.Entries...)

	return applyCut(f, schema.Cut{
		Entries:     entries,
		Init:        d.initial.Init,
		InitPayload: d.initial.InitPayload,
	})
}

// Run dispatches calldata to the module bound to its selector. Modules run
// through a delegate call, in the core's identity and storage.
func (d *Diamond) Run(f *chain.Frame) ([]byte, error) {
	sel, ok := schema.SelectorFromCalldata(f.Input)
	if !ok {
		return nil, errors.Wrap(ErrFunctionNotFound, "calldata shorter than a selector")
	}
	module, ok := load(f.Store()).registry.ModuleOf(sel)
	if !ok {
		return nil, errors.Wrap(ErrFunctionNotFound, "selector "+sel.Hex())
	}
	if module == f.Self {
		if !d.native.Has(sel) {
			return nil, errors.Wrap(ErrFunctionNotFound, "immutable selector "+sel.Hex())
		}
		return d.native.Run(f)
	}
	return f.Delegate(module, f.Input)
}

// OnlySelf rejects calls that do not come from the core itself. Behind the
// timelock this means the call went through an executed queue entry.
func OnlySelf(f *chain.Frame) error {
	if f.Sender != f.Self {
		return ErrNotSelf
	}
	return nil
}

func (d *Diamond) diamondCut(f *chain.Frame, args []byte) ([]byte, error) {
	if err := OnlySelf(f); err != nil {
		return nil, err
	}
	cut, err := codec.DecodeCutArgs(args)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedCut, err.Error())
	}
	return nil, applyCut(f, cut)
}

// applyCut validates and applies every entry against a staged copy of the
// registry, commits it, emits DiamondCut and runs the initializer. Any error
// is returned before the staged copy is committed, or aborts the frame.
func applyCut(f *chain.Frame, cut schema.Cut) error {
	if len(cut.Entries) == 0 {
		return ErrEmptyCut
	}
	hasInit := cut.Init != (common.Address{})
	if !hasInit && len(cut.InitPayload) > 0 {
		return ErrInitPayloadWithoutTarget
	}

	s := load(f.Store())
	staged := s.registry.Clone()
	for i, entry := range cut.Entries {
		if err := applyEntry(f, staged, entry); err != nil {
			return entryErr(err, i)
		}
	}
	if hasInit && !f.HasCode(cut.Init) {
		return errors.Wrap(ErrInitializerHasNoCode, "init "+cut.Init.Hex())
	}

	s.registry = staged

	topics, data, err := codec.EncodeCutEvent(cut)
	if err != nil {
		return err
	}
	f.Emit(schema.EventDiamondCut, topics, data)

	if hasInit {
		if _, err := f.Delegate(cut.Init, cut.InitPayload); err != nil {
			return &InitializationError{Target: cut.Init, Payload: cut.InitPayload, Err: err}
		}
	}
	return nil
}

func applyEntry(f *chain.Frame, reg *schema.Registry, entry schema.CutEntry) error {
	if len(entry.Selectors) == 0 {
		return ErrEmptySelectorSet
	}
	if !entry.Action.Valid() {
		return errors.Wrap(ErrInvalidAction, entry.Action.String())
	}

	switch entry.Action {
	case schema.CutActionBind:
		if err := checkModule(f, entry.Module); err != nil {
			return err
		}
		for _, sel := range entry.Selectors {
			if _, bound := reg.ModuleOf(sel); bound {
				return errors.Wrap(ErrSelectorAlreadyBound, "selector "+sel.Hex())
			}
			if err := reg.Bind(sel, entry.Module); err != nil {
				return err
			}
		}

	case schema.CutActionRebind:
		if err := checkModule(f, entry.Module); err != nil {
			return err
		}
		for _, sel := range entry.Selectors {
			current, bound := reg.ModuleOf(sel)
			switch {
			case !bound:
				return errors.Wrap(ErrSelectorNotBound, "selector "+sel.Hex())
			case current == f.Self:
				return errors.Wrap(ErrCannotModifyImmutable, "selector "+sel.Hex())
			case current == entry.Module:
				return errors.Wrap(ErrNoOpRebind, "selector "+sel.Hex())
			}
			if err := reg.Rebind(sel, entry.Module); err != nil {
				return err
			}
		}

	case schema.CutActionUnbind:
		if entry.Module != (common.Address{}) {
			return ErrUnbindModuleMustBeZero
		}
		for _, sel := range entry.Selectors {
			current, bound := reg.ModuleOf(sel)
			switch {
			case !bound:
				return errors.Wrap(ErrSelectorNotBound, "selector "+sel.Hex())
			case current == f.Self:
				return errors.Wrap(ErrCannotModifyImmutable, "selector "+sel.Hex())
			}
			if _, err := reg.Unbind(sel); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkModule(f *chain.Frame, module common.Address) error {
	if module == (common.Address{}) {
		return ErrZeroAddressModule
	}
	if !f.HasCode(module) {
		return errors.Wrap(ErrModuleHasNoCode, "facet "+module.Hex())
	}
	return nil
}
