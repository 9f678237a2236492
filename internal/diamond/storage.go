package diamond

import (
	"tradex/internal/schema"
	"tradex/internal/state"
)

var storagePosition = state.Position("tradex.diamond.storage")

// slot is the core's registry and supported interface set, kept in the
// core's own storage.
type slot struct {
	registry   *schema.Registry
	interfaces map[schema.Selector]bool
}

func newSlot() *slot {
	return &slot{
		registry:   schema.NewRegistry(),
		interfaces: make(map[schema.Selector]bool),
	}
}

func (s *slot) Clone() state.Slot {
	c := &slot{
		registry:   s.registry.Clone(),
		interfaces: make(map[schema.Selector]bool, len(s.interfaces)),
	}
	for id, ok := range s.interfaces {
		c.interfaces[id] = ok
	}
	return c
}

func load(store *state.Store) *slot {
	return state.Load(store, storagePosition, newSlot)
}

// SetInterface marks an ERC-165 interface id as supported or not. Initializer
// code calls it with the core's store.
func SetInterface(store *state.Store, id schema.Selector, supported bool) {
	s := load(store)
	if supported {
		s.interfaces[id] = true
		return
	}
	delete(s.interfaces, id)
}

// RegistryOf returns a copy of the registry held in store.
func RegistryOf(store *state.Store) *schema.Registry {
	s, ok := state.Peek[*slot](store, storagePosition)
	if !ok {
		return schema.NewRegistry()
	}
	return s.registry.Clone()
}
