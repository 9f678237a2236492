// Package access keeps role membership in the core's storage and serves the
// enumerable access control interface as a facet.
package access

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/errors"
	"tradex/internal/schema"
	"tradex/internal/state"
)

var (
	// DefaultAdminRole administers every role that has no explicit admin.
	DefaultAdminRole = common.Hash{}
	// AdminRole may queue, execute and cancel timelock entries.
	AdminRole = crypto.Keccak256Hash([]byte("ADMIN_ROLE"))
	// DeployerRole may queue timelock entries.
	DeployerRole = crypto.Keccak256Hash([]byte("DEPLOYER_ROLE"))
)

var (
	ErrMissingRole      = errors.New(errors.KindAuthorization, "access: account is missing role")
	ErrRenounceNotSelf  = errors.New(errors.KindAuthorization, "access: can only renounce roles for self")
	ErrIndexOutOfBounds = errors.New(errors.KindValidation, "access: role member index out of bounds")
)

// ERC-165 ids of the access control interfaces.
var (
	InterfaceAccessControl = schema.InterfaceID(codec.Selectors(
		"hasRole", "getRoleAdmin", "grantRole", "revokeRole", "renounceRole",
	)...)
	InterfaceAccessControlEnumerable = schema.InterfaceID(codec.Selectors(
		"getRoleMember", "getRoleMemberCount",
	)...)
)

// RoleName returns a readable name for the well-known roles.
func RoleName(role common.Hash) string {
	switch role {
	case DefaultAdminRole:
		return "DEFAULT_ADMIN_ROLE"
	case AdminRole:
		return "ADMIN_ROLE"
	case DeployerRole:
		return "DEPLOYER_ROLE"
	default:
		return role.Hex()
	}
}

// HasRole reports whether account holds role.
func HasRole(store *state.Store, role common.Hash, account common.Address) bool {
	data, ok := load(store).peek(role)
	return ok && data.has(account)
}

// CheckRole passes when account holds at least one of roles.
func CheckRole(store *state.Store, account common.Address, roles ...common.Hash) error {
	s := load(store)
	for _, role := range roles {
		if data, ok := s.peek(role); ok && data.has(account) {
			return nil
		}
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = RoleName(role)
	}
	return errors.Wrap(ErrMissingRole, fmt.Sprintf("account %s roles %v", account.Hex(), names))
}

// RoleAdmin returns the role that administers role.
func RoleAdmin(store *state.Store, role common.Hash) common.Hash {
	if data, ok := load(store).peek(role); ok {
		return data.admin
	}
	return DefaultAdminRole
}

// Members returns the holders of role in enumeration order.
func Members(store *state.Store, role common.Hash) []common.Address {
	data, ok := load(store).peek(role)
	if !ok || len(data.members) == 0 {
		return nil
	}
	out := make([]common.Address, len(data.members))
	copy(out, data.members)
	return out
}

// SetRoleAdmin changes the admin role of role without an authorization check.
func SetRoleAdmin(store *state.Store, role, admin common.Hash) {
	load(store).role(role).admin = admin
}

// Grant adds account to role and emits RoleGranted with the frame's sender.
// Granting a held role is a no-op.
func Grant(f *chain.Frame, role common.Hash, account common.Address) error {
	if !load(f.Store()).role(role).add(account) {
		return nil
	}
	return emitRole(f, "RoleGranted", schema.EventRoleGranted, role, account)
}

// Revoke removes account from role and emits RoleRevoked. Revoking a role the
// account does not hold is a no-op.
func Revoke(f *chain.Frame, role common.Hash, account common.Address) error {
	data, ok := load(f.Store()).peek(role)
	if !ok || !data.remove(account) {
		return nil
	}
	return emitRole(f, "RoleRevoked", schema.EventRoleRevoked, role, account)
}

func emitRole(f *chain.Frame, name string, eventType schema.EventType, role common.Hash, account common.Address) error {
	topics, data, err := codec.PackEvent(name, role, account, f.Sender)
	if err != nil {
		return err
	}
	f.Emit(eventType, topics, data)
	return nil
}
