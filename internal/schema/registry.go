package schema

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrSelectorBound   = errors.New("registry: selector already bound")
	ErrSelectorUnbound = errors.New("registry: selector not bound")
	ErrZeroModule      = errors.New("registry: module address is zero")
)

// Facet is one module address with the selectors currently bound to it.
type Facet struct {
	Address   common.Address `json:"facetAddress"`
	Selectors []Selector     `json:"functionSelectors"`
}

type binding struct {
	module   common.Address
	position int
}

// Registry stores selector bindings with reverse indices for enumeration.
//
// Modules are listed in first-bind order and selectors in bind order. Removal
// swaps the last element into the vacated slot.
type Registry struct {
	modules      []common.Address
	modulePos    map[common.Address]int
	selectors    map[common.Address][]Selector
	bindingBySel map[Selector]binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modulePos:    make(map[common.Address]int),
		selectors:    make(map[common.Address][]Selector),
		bindingBySel: make(map[Selector]binding),
	}
}

// ModuleOf returns the module bound to the selector.
func (r *Registry) ModuleOf(sel Selector) (common.Address, bool) {
	b, ok := r.bindingBySel[sel]
	return b.module, ok
}

// SelectorsOf returns a copy of the selectors bound to module.
func (r *Registry) SelectorsOf(module common.Address) []Selector {
	sels := r.selectors[module]
	if len(sels) == 0 {
		return nil
	}
	out := make([]Selector, len(sels))
	copy(out, sels)
	return out
}

// Modules returns a copy of the distinct module addresses.
func (r *Registry) Modules() []common.Address {
	out := make([]common.Address, len(r.modules))
	copy(out, r.modules)
	return out
}

// Facets returns every module with its selectors.
func (r *Registry) Facets() []Facet {
	out := make([]Facet, 0, len(r.modules))
	for _, module := range r.modules {
		out = append(out, Facet{Address: module, Selectors: r.SelectorsOf(module)})
	}
	return out
}

// Len returns the number of bound selectors.
func (r *Registry) Len() int {
	return len(r.bindingBySel)
}

// ModuleCount returns the number of distinct modules.
func (r *Registry) ModuleCount() int {
	return len(r.modules)
}

// Bind binds an unbound selector to module.
func (r *Registry) Bind(sel Selector, module common.Address) error {
	if module == (common.Address{}) {
		return ErrZeroModule
	}
	if _, ok := r.bindingBySel[sel]; ok {
		return fmt.Errorf("%w: %s", ErrSelectorBound, sel)
	}
	if _, ok := r.modulePos[module]; !ok {
		r.modulePos[module] = len(r.modules)
		r.modules = append(r.modules, module)
	}
	r.bindingBySel[sel] = binding{module: module, position: len(r.selectors[module])}
	r.selectors[module] = append(r.selectors[module], sel)
	return nil
}

// Unbind removes a bound selector and returns the module it was bound to.
func (r *Registry) Unbind(sel Selector) (common.Address, error) {
	b, ok := r.bindingBySel[sel]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrSelectorUnbound, sel)
	}

	sels := r.selectors[b.module]
	last := len(sels) - 1
	if b.position != last {
		moved := sels[last]
		sels[b.position] = moved
		r.bindingBySel[moved] = binding{module: b.module, position: b.position}
	}
	sels = sels[:last]
	delete(r.bindingBySel, sel)

	if len(sels) > 0 {
		r.selectors[b.module] = sels
		return b.module, nil
	}

	delete(r.selectors, b.module)
	pos := r.modulePos[b.module]
	lastModule := len(r.modules) - 1
	if pos != lastModule {
		moved := r.modules[lastModule]
		r.modules[pos] = moved
		r.modulePos[moved] = pos
	}
	r.modules = r.modules[:lastModule]
	delete(r.modulePos, b.module)
	return b.module, nil
}

// Rebind moves a bound selector to module.
func (r *Registry) Rebind(sel Selector, module common.Address) error {
	if module == (common.Address{}) {
		return ErrZeroModule
	}
	if _, err := r.Unbind(sel); err != nil {
		return err
	}
	return r.Bind(sel, module)
}

// Apply replays cut entries without policy checks. It is meant for mirrors
// rebuilt from already-validated audit events.
func (r *Registry) Apply(entries []CutEntry) error {
	for i, entry := range entries {
		for _, sel := range entry.Selectors {
			var err error
			switch entry.Action {
			case CutActionBind:
				err = r.Bind(sel, entry.Module)
			case CutActionRebind:
				err = r.Rebind(sel, entry.Module)
			case CutActionUnbind:
				_, err = r.Unbind(sel)
			default:
				err = fmt.Errorf("unknown action %s", entry.Action)
			}
			if err != nil {
				return fmt.Errorf("apply entry %d: %w", i, err)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		modules:      make([]common.Address, len(r.modules)),
		modulePos:    make(map[common.Address]int, len(r.modulePos)),
		selectors:    make(map[common.Address][]Selector, len(r.selectors)),
		bindingBySel: make(map[Selector]binding, len(r.bindingBySel)),
	}
	copy(c.modules, r.modules)
	for k, v := range r.modulePos {
		c.modulePos[k] = v
	}
	for k, v := range r.selectors {
		sels := make([]Selector, len(v))
		copy(sels, v)
		c.selectors[k] = sels
	}
	for k, v := range r.bindingBySel {
		c.bindingBySel[k] = v
	}
	return c
}

// Check verifies that the forward map and the reverse indices agree.
func (r *Registry) Check() error {
	if len(r.modules) != len(r.selectors) || len(r.modules) != len(r.modulePos) {
		return fmt.Errorf("module index size mismatch: list=%d selectors=%d positions=%d",
			len(r.modules), len(r.selectors), len(r.modulePos))
	}
	count := 0
	for i, module := range r.modules {
		if r.modulePos[module] != i {
			return fmt.Errorf("module %s position mismatch: expected=%d actual=%d", module, i, r.modulePos[module])
		}
		sels := r.selectors[module]
		if len(sels) == 0 {
			return fmt.Errorf("module %s has no selectors", module)
		}
		for pos, sel := range sels {
			b, ok := r.bindingBySel[sel]
			if !ok {
				return fmt.Errorf("selector %s listed under %s but not bound", sel, module)
			}
			if b.module != module || b.position != pos {
				return fmt.Errorf("selector %s binding mismatch: module=%s position=%d", sel, b.module, b.position)
			}
		}
		count += len(sels)
	}
	if count != len(r.bindingBySel) {
		return fmt.Errorf("binding count mismatch: reverse=%d forward=%d", count, len(r.bindingBySel))
	}
	return nil
}
