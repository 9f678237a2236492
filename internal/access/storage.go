package access

import (
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/state"
)

var storagePosition = state.Position("tradex.access.storage")

type roleData struct {
	admin   common.Hash
	members []common.Address
	index   map[common.Address]int
}

func (r *roleData) has(account common.Address) bool {
	_, ok := r.index[account]
	return ok
}

func (r *roleData) add(account common.Address) bool {
	if r.has(account) {
		return false
	}
	r.index[account] = len(r.members)
	r.members = append(r.members, account)
	return true
}

// remove swaps the last member into the freed position, like
// EnumerableSet does.
func (r *roleData) remove(account common.Address) bool {
	pos, ok := r.index[account]
	if !ok {
		return false
	}
	last := len(r.members) - 1
	if pos != last {
		moved := r.members[last]
		r.members[pos] = moved
		r.index[moved] = pos
	}
	r.members = r.members[:last]
	delete(r.index, account)
	return true
}

type slot struct {
	roles map[common.Hash]*roleData
}

func newSlot() *slot {
	return &slot{roles: make(map[common.Hash]*roleData)}
}

func (s *slot) Clone() state.Slot {
	c := &slot{roles: make(map[common.Hash]*roleData, len(s.roles))}
	for role, data := range s.roles {
		cp := &roleData{
			admin:   data.admin,
			members: append([]common.Address(nil), data.members...),
			index:   make(map[common.Address]int, len(data.index)),
		}
		for acct, pos := range data.index {
			cp.index[acct] = pos
		}
		c.roles[role] = cp
	}
	return c
}

// role returns the data of role, creating it on first write.
func (s *slot) role(role common.Hash) *roleData {
	data, ok := s.roles[role]
	if !ok {
		data = &roleData{index: make(map[common.Address]int)}
		s.roles[role] = data
	}
	return data
}

func (s *slot) peek(role common.Hash) (*roleData, bool) {
	data, ok := s.roles[role]
	return data, ok
}

func load(store *state.Store) *slot {
	return state.Load(store, storagePosition, newSlot)
}
