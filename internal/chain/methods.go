package chain

import (
	"fmt"

	"tradex/internal/codec"
	"tradex/internal/errors"
	"tradex/internal/schema"
)

var (
	ErrUnknownMethod    = errors.New(errors.KindConsistency, "chain: unknown method")
	ErrInvalidArguments = errors.New(errors.KindValidation, "chain: invalid call arguments")
)

// Unpack decodes the arguments of a named method and checks their count.
func Unpack(method string, args []byte, count int) ([]any, error) {
	values, err := codec.UnpackArgs(method, args)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArguments, fmt.Sprintf("%s: %v", method, err))
	}
	if len(values) != count {
		return nil, errors.Wrap(ErrInvalidArguments, fmt.Sprintf("%s: want %d values, got %d", method, count, len(values)))
	}
	return values, nil
}

// Method handles one selector. args is the calldata after the selector.
type Method func(frame *Frame, args []byte) ([]byte, error)

// Methods is a selector dispatch table that remembers registration order.
type Methods struct {
	order []schema.Selector
	table map[schema.Selector]Method
}

// NewMethods creates an empty table.
func NewMethods() *Methods {
	return &Methods{table: make(map[schema.Selector]Method)}
}

// Handle registers fn for sel. Registering a selector twice panics.
func (m *Methods) Handle(sel schema.Selector, fn Method) *Methods {
	if _, ok := m.table[sel]; ok {
		panic("chain: duplicate method " + sel.Hex())
	}
	m.order = append(m.order, sel)
	m.table[sel] = fn
	return m
}

// Selectors returns the registered selectors in registration order.
func (m *Methods) Selectors() []schema.Selector {
	out := make([]schema.Selector, len(m.order))
	copy(out, m.order)
	return out
}

// Has reports whether sel is registered.
func (m *Methods) Has(sel schema.Selector) bool {
	_, ok := m.table[sel]
	return ok
}

// Run dispatches the frame input to the registered method.
func (m *Methods) Run(frame *Frame) ([]byte, error) {
	sel, ok := schema.SelectorFromCalldata(frame.Input)
	if !ok {
		return nil, errors.Wrap(ErrUnknownMethod, "calldata shorter than a selector")
	}
	fn, ok := m.table[sel]
	if !ok {
		return nil, errors.Wrap(ErrUnknownMethod, "selector "+sel.Hex())
	}
	return fn(frame, frame.Input[len(sel):])
}
