package diamond

import (
	stderrors "errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradex/internal/chain"
	"tradex/internal/codec"
	"tradex/internal/errors"
	"tradex/internal/schema"
	"tradex/internal/state"
)

var (
	deployer = common.HexToAddress("0xde00000000000000000000000000000000000001")
	user     = common.HexToAddress("0x0500000000000000000000000000000000000002")

	relaySel = schema.SelectorOf("relay(bytes)")
	s1       = schema.SelectorOf("s1()")
	s2       = schema.SelectorOf("s2()")

	errInitFailed = stderrors.New("init: can only init roles for non-zero admin")
	customID      = schema.Selector{0xde, 0xad, 0xbe, 0xef}
)

// stubFacet answers every call with its name.
type stubFacet struct {
	name string
}

func (s *stubFacet) Run(f *chain.Frame) ([]byte, error) {
	return []byte(s.name), nil
}

// relayFacet forwards raw calldata to the core itself, like an executed
// timelock entry does.
type relayFacet struct{}

func (relayFacet) Run(f *chain.Frame) ([]byte, error) {
	return f.Call(f.Self, f.Input[len(relaySel):])
}

// initCode registers customID, or fails when the payload says so.
type initCode struct{}

func (initCode) Run(f *chain.Frame) ([]byte, error) {
	if len(f.Input) > 0 && f.Input[0] == 0xff {
		return nil, errInitFailed
	}
	SetInterface(f.Store(), customID, true)
	return nil, nil
}

type fixture struct {
	chain  *chain.Chain
	core   common.Address
	loupe  common.Address
	relay  common.Address
	a, b   common.Address
	init   common.Address
	client *Client
}

func deploy(t *testing.T, c *chain.Chain, code chain.Code) common.Address {
	t.Helper()
	addr, err := c.Deploy(deployer, code)
	require.NoError(t, err)
	return addr
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := chain.New(chain.WithClock(chain.NewManualClock(1_700_000_000)))
	fx := &fixture{chain: c}
	fx.loupe = deploy(t, c, NewLoupeFacet())
	fx.relay = deploy(t, c, relayFacet{})
	fx.a = deploy(t, c, &stubFacet{name: "A"})
	fx.b = deploy(t, c, &stubFacet{name: "B"})
	fx.init = deploy(t, c, initCode{})

	fx.core = deploy(t, c, New(schema.Cut{
		Entries: []schema.CutEntry{
			{Module: fx.loupe, Action: schema.CutActionBind, Selectors: NewLoupeFacet().Selectors()},
			{Module: fx.relay, Action: schema.CutActionBind, Selectors: []schema.Selector{relaySel}},
		},
	}))
	fx.client = NewClient(c, fx.core)
	return fx
}

func (fx *fixture) cut(t *testing.T, cut schema.Cut) error {
	t.Helper()
	call, err := codec.EncodeCutCall(cut)
	require.NoError(t, err)
	_, err = fx.chain.Transact(user, fx.core, append(relaySel[:], call...))
	return err
}

func (fx *fixture) snapshot(t *testing.T) state.Snapshot {
	t.Helper()
	snap, err := fx.client.Snapshot()
	require.NoError(t, err)
	return snap
}

func (fx *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	modules, err := fx.client.ListModules()
	require.NoError(t, err)
	for _, module := range modules {
		sels, err := fx.client.SelectorsOf(module)
		require.NoError(t, err)
		require.NotEmpty(t, sels, "module %s listed without selectors", module)
		for _, sel := range sels {
			got, err := fx.client.Resolve(sel)
			require.NoError(t, err)
			require.Equal(t, module, got, "selector %s", sel)
		}
	}
}

func TestConstruction(t *testing.T) {
	fx := newFixture(t)

	module, err := fx.client.Resolve(cutSelector)
	require.NoError(t, err)
	assert.Equal(t, fx.core, module)

	modules, err := fx.client.ListModules()
	require.NoError(t, err)
	assert.Equal(t, []common.Address{fx.core, fx.loupe, fx.relay}, modules)

	for _, id := range []schema.Selector{InterfaceERC165, InterfaceDiamondCut, InterfaceDiamondLoupe} {
		ok, err := fx.client.SupportsInterface(id)
		require.NoError(t, err)
		assert.True(t, ok, "interface %s", id)
	}
	ok, err := fx.client.SupportsInterface(customID)
	require.NoError(t, err)
	assert.False(t, ok)

	fx.requireConsistent(t)
}

func TestDispatch(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}},
	}}))

	receipt, err := fx.chain.Transact(user, fx.core, s1[:])
	require.NoError(t, err)
	assert.Equal(t, "A", string(receipt.Output))

	_, err = fx.chain.Transact(user, fx.core, s2[:])
	require.ErrorIs(t, err, ErrFunctionNotFound)
	assert.Contains(t, err.Error(), s2.Hex())

	_, err = fx.chain.Transact(user, fx.core, []byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestBindRebindUnbindScenario(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}},
	}}))
	module, err := fx.client.Resolve(s1)
	require.NoError(t, err)
	assert.Equal(t, fx.a, module)
	fx.requireConsistent(t)

	require.NoError(t, fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.b, Action: schema.CutActionRebind, Selectors: []schema.Selector{s1}},
	}}))
	module, err = fx.client.Resolve(s1)
	require.NoError(t, err)
	assert.Equal(t, fx.b, module)
	sels, err := fx.client.SelectorsOf(fx.a)
	require.NoError(t, err)
	assert.NotContains(t, sels, s1)
	fx.requireConsistent(t)

	require.NoError(t, fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Action: schema.CutActionUnbind, Selectors: []schema.Selector{s1}},
	}}))
	_, err = fx.client.Resolve(s1)
	require.ErrorIs(t, err, ErrNotRegistered)
	facets, err := fx.client.Facets()
	require.NoError(t, err)
	for _, facet := range facets {
		assert.NotContains(t, facet.Selectors, s1)
		assert.NotEqual(t, fx.b, facet.Address, "module without selectors must be dropped")
	}
	fx.requireConsistent(t)
}

func TestCutRejections(t *testing.T) {
	testCases := []struct {
		desc    string
		prepare []schema.CutEntry
		cut     func(fx *fixture) schema.Cut
		wantErr error
		kind    errors.Kind
	}{
		{
			desc:    "empty cut",
			cut:     func(fx *fixture) schema.Cut { return schema.Cut{} },
			wantErr: ErrEmptyCut,
			kind:    errors.KindValidation,
		},
		{
			desc: "payload without init",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{
					Entries:     []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}}},
					InitPayload: []byte{0x01},
				}
			},
			wantErr: ErrInitPayloadWithoutTarget,
			kind:    errors.KindValidation,
		},
		{
			desc: "empty selector set",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind}}}
			},
			wantErr: ErrEmptySelectorSet,
			kind:    errors.KindValidation,
		},
		{
			desc: "invalid action",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: fx.a, Action: 3, Selectors: []schema.Selector{s1}}}}
			},
			wantErr: ErrInvalidAction,
			kind:    errors.KindValidation,
		},
		{
			desc: "bind zero module",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Action: schema.CutActionBind, Selectors: []schema.Selector{s1}}}}
			},
			wantErr: ErrZeroAddressModule,
			kind:    errors.KindValidation,
		},
		{
			desc: "bind module without code",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: user, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}}}}
			},
			wantErr: ErrModuleHasNoCode,
			kind:    errors.KindDependency,
		},
		{
			desc: "bind already bound",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{relaySel}}}}
			},
			wantErr: ErrSelectorAlreadyBound,
			kind:    errors.KindConsistency,
		},
		{
			desc: "bind duplicate within entry",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1, s1}}}}
			},
			wantErr: ErrSelectorAlreadyBound,
			kind:    errors.KindConsistency,
		},
		{
			desc: "rebind unbound",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionRebind, Selectors: []schema.Selector{s2}}}}
			},
			wantErr: ErrSelectorNotBound,
			kind:    errors.KindConsistency,
		},
		{
			desc:    "rebind to same module",
			prepare: []schema.CutEntry{{Action: schema.CutActionBind, Selectors: []schema.Selector{s1}}},
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionRebind, Selectors: []schema.Selector{s1}}}}
			},
			wantErr: ErrNoOpRebind,
			kind:    errors.KindConsistency,
		},
		{
			desc: "unbind with module",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionUnbind, Selectors: []schema.Selector{relaySel}}}}
			},
			wantErr: ErrUnbindModuleMustBeZero,
			kind:    errors.KindValidation,
		},
		{
			desc: "unbind unbound",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{Entries: []schema.CutEntry{{Action: schema.CutActionUnbind, Selectors: []schema.Selector{s2}}}}
			},
			wantErr: ErrSelectorNotBound,
			kind:    errors.KindConsistency,
		},
		{
			desc: "init without code",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{
					Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s2}}},
					Init:    user,
				}
			},
			wantErr: ErrInitializerHasNoCode,
			kind:    errors.KindDependency,
		},
		{
			desc: "init reverts",
			cut: func(fx *fixture) schema.Cut {
				return schema.Cut{
					Entries:     []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s2}}},
					Init:        fx.init,
					InitPayload: []byte{0xff},
				}
			},
			wantErr: ErrInitializationFailed,
			kind:    errors.KindPropagated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			fx := newFixture(t)
			if tc.prepare != nil {
				for i := range tc.prepare {
					tc.prepare[i].Module = fx.a
				}
				require.NoError(t, fx.cut(t, schema.Cut{Entries: tc.prepare}))
			}

			before := fx.snapshot(t)
			err := fx.cut(t, tc.cut(fx))
			require.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.kind, errors.KindOf(err))

			after := fx.snapshot(t)
			require.NoError(t, state.CompareSnapshots(before, after))
			if diff := cmp.Diff(before.Facets, after.Facets); diff != "" {
				t.Fatalf("registry changed by rejected cut (-before +after):\n%s", diff)
			}
		})
	}
}

func TestInitializationErrorCarriesContext(t *testing.T) {
	fx := newFixture(t)
	err := fx.cut(t, schema.Cut{
		Entries:     []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}}},
		Init:        fx.init,
		InitPayload: []byte{0xff, 0x01},
	})

	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, fx.init, initErr.Target)
	assert.Equal(t, []byte{0xff, 0x01}, initErr.Payload)
	require.ErrorIs(t, err, errInitFailed)

	ok, err := fx.client.SupportsInterface(customID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInitializerRunsInCoreContext(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.cut(t, schema.Cut{
		Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}}},
		Init:    fx.init,
	}))

	ok, err := fx.client.SupportsInterface(customID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestImmutableSelectorRejectedForEveryModule(t *testing.T) {
	fx := newFixture(t)
	before := fx.snapshot(t)

	for _, module := range []common.Address{{}, fx.core, fx.a, fx.loupe, user} {
		for _, action := range []schema.CutAction{schema.CutActionRebind, schema.CutActionUnbind} {
			err := fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
				{Module: module, Action: action, Selectors: []schema.Selector{cutSelector}},
			}})
			require.Error(t, err, "module %s action %s", module, action)
		}
	}

	for _, action := range []schema.CutAction{schema.CutActionRebind, schema.CutActionUnbind} {
		module := fx.a
		if action == schema.CutActionUnbind {
			module = common.Address{}
		}
		err := fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
			{Module: module, Action: action, Selectors: []schema.Selector{cutSelector}},
		}})
		require.ErrorIs(t, err, ErrCannotModifyImmutable)
	}

	// Immutable wins over no-op when rebinding to the core itself.
	err := fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.core, Action: schema.CutActionRebind, Selectors: []schema.Selector{cutSelector}},
	}})
	require.ErrorIs(t, err, ErrCannotModifyImmutable)

	require.NoError(t, state.CompareSnapshots(before, fx.snapshot(t)))
}

func TestSecondEntryFailureRollsBackFirst(t *testing.T) {
	fx := newFixture(t)
	before := fx.snapshot(t)

	err := fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}},
		{Action: schema.CutActionUnbind, Selectors: []schema.Selector{cutSelector}},
	}})
	require.ErrorIs(t, err, ErrCannotModifyImmutable)
	assert.Contains(t, err.Error(), "cut entry 1")

	_, err = fx.client.Resolve(s1)
	require.ErrorIs(t, err, ErrNotRegistered)
	require.NoError(t, state.CompareSnapshots(before, fx.snapshot(t)))
}

func TestLaterEntriesSeeEarlierOnes(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1, s2}},
		{Module: fx.b, Action: schema.CutActionRebind, Selectors: []schema.Selector{s2}},
		{Action: schema.CutActionUnbind, Selectors: []schema.Selector{s1}},
	}}))

	_, err := fx.client.Resolve(s1)
	require.ErrorIs(t, err, ErrNotRegistered)
	module, err := fx.client.Resolve(s2)
	require.NoError(t, err)
	assert.Equal(t, fx.b, module)
	fx.requireConsistent(t)
}

func TestDiamondCutRequiresSelf(t *testing.T) {
	fx := newFixture(t)
	call, err := codec.EncodeCutCall(schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}},
	}})
	require.NoError(t, err)

	_, err = fx.chain.Transact(user, fx.core, call)
	require.ErrorIs(t, err, ErrNotSelf)
	assert.Equal(t, errors.KindAuthorization, errors.KindOf(err))

	// Authorization is checked before the payload is even decoded.
	_, err = fx.chain.Transact(user, fx.core, cutSelector[:])
	require.ErrorIs(t, err, ErrNotSelf)

	_, err = fx.chain.Transact(user, fx.core, append(relaySel[:], cutSelector[:]...))
	require.ErrorIs(t, err, ErrMalformedCut)
}

func TestCutEventEmitted(t *testing.T) {
	fx := newFixture(t)
	cut := schema.Cut{
		Entries: []schema.CutEntry{{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1}}},
		Init:    fx.init,
	}
	call, err := codec.EncodeCutCall(cut)
	require.NoError(t, err)

	receipt, err := fx.chain.Transact(user, fx.core, append(relaySel[:], call...))
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, schema.EventDiamondCut, receipt.Logs[0].Type)
	assert.Equal(t, fx.core, receipt.Logs[0].Address)

	decoded, err := codec.DecodeCutEvent(receipt.Logs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, cut.Entries, decoded.Entries)
	assert.Equal(t, cut.Init, decoded.Init)
}

func TestRegistryOf(t *testing.T) {
	store := state.NewStore()
	assert.Equal(t, 0, RegistryOf(store).Len())

	reg := load(store).registry
	require.NoError(t, reg.Bind(s1, user))

	copied := RegistryOf(store)
	require.NoError(t, copied.Bind(s2, user))
	assert.Equal(t, 1, load(store).registry.Len())
}

// reentrantInit calls back into the core for each selector while the cut
// that named it is still running.
type reentrantInit struct {
	calls []schema.Selector
	outs  []string
	errs  []error
}

func (r *reentrantInit) Run(f *chain.Frame) ([]byte, error) {
	for _, sel := range r.calls {
		out, err := f.Call(f.Self, sel[:])
		r.outs = append(r.outs, string(out))
		r.errs = append(r.errs, err)
	}
	return nil, nil
}

func TestInitializerSeesCommittedRegistry(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.cut(t, schema.Cut{Entries: []schema.CutEntry{
		{Module: fx.a, Action: schema.CutActionBind, Selectors: []schema.Selector{s1, s2}},
	}}))

	s3 := schema.SelectorOf("s3()")
	ri := &reentrantInit{calls: []schema.Selector{s2, s3, s1}}
	initAddr := deploy(t, fx.chain, ri)
	require.NoError(t, fx.cut(t, schema.Cut{
		Entries: []schema.CutEntry{
			{Module: fx.b, Action: schema.CutActionRebind, Selectors: []schema.Selector{s2}},
			{Module: fx.b, Action: schema.CutActionBind, Selectors: []schema.Selector{s3}},
			{Action: schema.CutActionUnbind, Selectors: []schema.Selector{s1}},
		},
		Init: initAddr,
	}))

	assert.Equal(t, []string{"B", "B", ""}, ri.outs)
	require.NoError(t, ri.errs[0])
	require.NoError(t, ri.errs[1])
	require.ErrorIs(t, ri.errs[2], ErrFunctionNotFound)

	// The failed call back into the core did not undo the cut.
	module, err := fx.client.Resolve(s3)
	require.NoError(t, err)
	assert.Equal(t, fx.b, module)
	fx.requireConsistent(t)
}
