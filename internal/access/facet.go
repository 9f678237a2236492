package access

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/errors"
	"tradex/internal/schema"
)

var facetMembers = []string{
	"hasRole",
	"getRoleAdmin",
	"grantRole",
	"revokeRole",
	"renounceRole",
	"getRoleMember",
	"getRoleMemberCount",
	"RoleGranted",
	"RoleRevoked",
}

// Facet serves AccessControlEnumerable from the core's storage.
type Facet struct {
	methods *chain.Methods
}

// NewFacet returns the access control facet with its method table.
func NewFacet() *Facet {
	a := &Facet{}
	a.methods = chain.NewMethods().
		Handle(codec.Selector("hasRole"), a.hasRole).
		Handle(codec.Selector("getRoleAdmin"), a.getRoleAdmin).
		Handle(codec.Selector("grantRole"), a.grantRole).
		Handle(codec.Selector("revokeRole"), a.revokeRole).
		Handle(codec.Selector("renounceRole"), a.renounceRole).
		Handle(codec.Selector("getRoleMember"), a.getRoleMember).
		Handle(codec.Selector("getRoleMemberCount"), a.getRoleMemberCount)
	return a
}

// Run dispatches a call by selector.
func (a *Facet) Run(f *chain.Frame) ([]byte, error) {
	return a.methods.Run(f)
}

// Selectors lists the selectors the facet serves.
func (a *Facet) Selectors() []schema.Selector {
	return a.methods.Selectors()
}

// ABI describes the role methods and events.
func (a *Facet) ABI() abi.ABI {
	return codec.Subset(facetMembers...)
}

func roleAndAccount(method string, args []byte) (common.Hash, common.Address, error) {
	values, err := chain.Unpack(method, args, 2)
	if err != nil {
		return common.Hash{}, common.Address{}, err
	}
	role, _ := values[0].([32]byte)
	account, _ := values[1].(common.Address)
	return common.Hash(role), account, nil
}

func roleOnly(method string, args []byte) (common.Hash, error) {
	values, err := chain.Unpack(method, args, 1)
	if err != nil {
		return common.Hash{}, err
	}
	role, _ := values[0].([32]byte)
	return common.Hash(role), nil
}

func (a *Facet) hasRole(f *chain.Frame, args []byte) ([]byte, error) {
	role, account, err := roleAndAccount("hasRole", args)
	if err != nil {
		return nil, err
	}
	return codec.PackReturn("hasRole", HasRole(f.Store(), role, account))
}

func (a *Facet) getRoleAdmin(f *chain.Frame, args []byte) ([]byte, error) {
	role, err := roleOnly("getRoleAdmin", args)
	if err != nil {
		return nil, err
	}
	return codec.PackReturn("getRoleAdmin", [32]byte(RoleAdmin(f.Store(), role)))
}

func (a *Facet) grantRole(f *chain.Frame, args []byte) ([]byte, error) {
	role, account, err := roleAndAccount("grantRole", args)
	if err != nil {
		return nil, err
	}
	if err := CheckRole(f.Store(), f.Sender, RoleAdmin(f.Store(), role)); err != nil {
		return nil, err
	}
	return nil, Grant(f, role, account)
}

func (a *Facet) revokeRole(f *chain.Frame, args []byte) ([]byte, error) {
	role, account, err := roleAndAccount("revokeRole", args)
	if err != nil {
		return nil, err
	}
	if err := CheckRole(f.Store(), f.Sender, RoleAdmin(f.Store(), role)); err != nil {
		return nil, err
	}
	return nil, Revoke(f, role, account)
}

func (a *Facet) renounceRole(f *chain.Frame, args []byte) ([]byte, error) {
	role, account, err := roleAndAccount("renounceRole", args)
	if err != nil {
		return nil, err
	}
	if account != f.Sender {
		return nil, ErrRenounceNotSelf
	}
	return nil, Revoke(f, role, account)
}

func (a *Facet) getRoleMember(f *chain.Frame, args []byte) ([]byte, error) {
	values, err := chain.Unpack("getRoleMember", args, 2)
	if err != nil {
		return nil, err
	}
	role, _ := values[0].([32]byte)
	index, _ := values[1].(*big.Int)

	members := Members(f.Store(), common.Hash(role))
	if index == nil || !index.IsInt64() || index.Int64() >= int64(len(members)) {
		return nil, errors.Wrap(ErrIndexOutOfBounds, RoleName(common.Hash(role)))
	}
	return codec.PackReturn("getRoleMember", members[index.Int64()])
}

func (a *Facet) getRoleMemberCount(f *chain.Frame, args []byte) ([]byte, error) {
	role, err := roleOnly("getRoleMemberCount", args)
	if err != nil {
		return nil, err
	}
	count := len(Members(f.Store(), role))
	return codec.PackReturn("getRoleMemberCount", big.NewInt(int64(count)))
}
