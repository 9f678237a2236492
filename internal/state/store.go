package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Slot is a value living at one namespaced storage position. Clone must
// return a deep copy so that a checkpoint can be restored.
type Slot interface {
	Clone() Slot
}

// Position derives the storage position of a namespace.
func Position(namespace string) common.Hash {
	return crypto.Keccak256Hash([]byte(namespace))
}

// Store is the persistent storage of one address. Independent components
// share it by keeping their data at distinct positions.
type Store struct {
	slots map[common.Hash]Slot
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{slots: make(map[common.Hash]Slot)}
}

// Lookup returns the slot at position, if any.
func (s *Store) Lookup(position common.Hash) (Slot, bool) {
	slot, ok := s.slots[position]
	return slot, ok
}

// Put replaces the slot at position.
func (s *Store) Put(position common.Hash, slot Slot) {
	s.slots[position] = slot
}

// Len returns the number of occupied positions.
func (s *Store) Len() int {
	return len(s.slots)
}

// Clone deep-copies every slot.
func (s *Store) Clone() *Store {
	c := &Store{slots: make(map[common.Hash]Slot, len(s.slots))}
	for pos, slot := range s.slots {
		c.slots[pos] = slot.Clone()
	}
	return c
}

// Load returns the slot of type T at position, creating it with init when
// the position is empty. It panics if the position holds another type, which
// means two components picked the same namespace.
func Load[T Slot](s *Store, position common.Hash, init func() T) T {
	if slot, ok := s.slots[position]; ok {
		return slot.(T)
	}
	created := init()
	s.slots[position] = created
	return created
}

// Peek returns the slot of type T at position without creating it.
func Peek[T Slot](s *Store, position common.Hash) (T, bool) {
	slot, ok := s.slots[position]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := slot.(T)
	return typed, ok
}
