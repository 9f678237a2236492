package venue

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/access"
	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/diamond"
	"tradex/internal/errors"
	"tradex/internal/timelock"
)

var ErrZeroAdmin = errors.New(errors.KindValidation, "init: can only init roles for non-zero admin")

// Init is the initializer run by the core's constructor. It grants the
// starting roles, configures the timelock and registers the access control
// interfaces. It runs in the core's storage through a delegate call.
type Init struct {
	methods *chain.Methods
}

// NewInit returns the initializer with its method table.
func NewInit() *Init {
	i := &Init{}
	i.methods = chain.NewMethods().Handle(codec.Selector("init"), i.init)
	return i
}

// Run dispatches a call by selector.
func (i *Init) Run(f *chain.Frame) ([]byte, error) {
	return i.methods.Run(f)
}

// InitPayload encodes the init call. Zero delay or grace keep the defaults.
func InitPayload(admin, deployer common.Address, delay, grace int64) ([]byte, error) {
	return codec.Pack("init", admin, deployer, big.NewInt(delay), big.NewInt(grace))
}

func (i *Init) init(f *chain.Frame, args []byte) ([]byte, error) {
	values, err := chain.Unpack("init", args, 4)
	if err != nil {
		return nil, err
	}
	admin, _ := values[0].(common.Address)
	deployer, _ := values[1].(common.Address)
	delay, _ := values[2].(*big.Int)
	grace, _ := values[3].(*big.Int)

	if admin == (common.Address{}) {
		return nil, ErrZeroAdmin
	}
	for _, role := range []common.Hash{access.DefaultAdminRole, access.AdminRole} {
		if err := access.Grant(f, role, admin); err != nil {
			return nil, err
		}
	}
	if deployer != (common.Address{}) {
		if err := access.Grant(f, access.DeployerRole, deployer); err != nil {
			return nil, err
		}
	}

	d, g := timelock.Settings(f.Store())
	if d, err = override(d, delay); err != nil {
		return nil, err
	}
	if g, err = override(g, grace); err != nil {
		return nil, err
	}
	if err := timelock.Configure(f.Store(), d, g); err != nil {
		return nil, err
	}

	diamond.SetInterface(f.Store(), access.InterfaceAccessControl, true)
	diamond.SetInterface(f.Store(), access.InterfaceAccessControlEnumerable, true)
	return nil, nil
}

func override(current int64, v *big.Int) (int64, error) {
	if v == nil || v.Sign() == 0 {
		return current, nil
	}
	if !v.IsInt64() {
		return 0, errors.Wrap(timelock.ErrInvalidDelay, v.String())
	}
	return v.Int64(), nil
}
