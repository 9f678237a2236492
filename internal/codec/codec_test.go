package codec

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradex/internal/schema"
)

func TestSelectorsMatchSignatures(t *testing.T) {
	testCases := []struct {
		desc   string
		method string
		sig    string
	}{
		{"diamondCut", "diamondCut", "diamondCut((address,uint8,bytes4[])[],address,bytes)"},
		{"facetAddress", "facetAddress", "facetAddress(bytes4)"},
		{"queueTransaction", "queueTransaction", "queueTransaction(string,bytes)"},
		{"grantRole", "grantRole", "grantRole(bytes32,address)"},
		{"init", "init", "init(address,address,uint256,uint256)"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.sig, Signature(tc.method))
			assert.Equal(t, schema.SelectorOf(tc.sig), Selector(tc.method))
		})
	}
}

func TestCutArgsRoundTrip(t *testing.T) {
	cut := schema.Cut{
		Entries: []schema.CutEntry{
			{
				Module:    common.HexToAddress("0x1000000000000000000000000000000000000001"),
				Action:    schema.CutActionBind,
				Selectors: []schema.Selector{schema.SelectorOf("f()"), schema.SelectorOf("g()")},
			},
			{
				Action:    schema.CutActionUnbind,
				Selectors: []schema.Selector{schema.SelectorOf("h()")},
			},
		},
		Init:        common.HexToAddress("0x2000000000000000000000000000000000000002"),
		InitPayload: []byte{0xde, 0xad},
	}

	args, err := EncodeCutArgs(cut)
	require.NoError(t, err)

	call, err := EncodeCutCall(cut)
	require.NoError(t, err)
	assert.Equal(t, Selector("diamondCut"), schema.Selector(call[:4]))
	assert.Equal(t, args, call[4:])

	decoded, err := DecodeCutArgs(args)
	require.NoError(t, err)
	if diff := cmp.Diff(cut, decoded); diff != "" {
		t.Fatalf("cut mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeCutArgsMalformed(t *testing.T) {
	_, err := DecodeCutArgs([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestCutEventMatchesArgs(t *testing.T) {
	cut := schema.Cut{
		Entries: []schema.CutEntry{{
			Module:    common.HexToAddress("0x3000000000000000000000000000000000000003"),
			Action:    schema.CutActionRebind,
			Selectors: []schema.Selector{schema.SelectorOf("f()")},
		}},
	}
	topics, data, err := EncodeCutEvent(cut)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, crypto.Keccak256Hash([]byte("DiamondCut((address,uint8,bytes4[])[],address,bytes)")), topics[0])

	args, err := EncodeCutArgs(cut)
	require.NoError(t, err)
	assert.Equal(t, args, data)

	decoded, err := DecodeCutEvent(data)
	require.NoError(t, err)
	assert.Equal(t, cut.Entries, decoded.Entries)
	assert.Empty(t, decoded.InitPayload)
}

func TestTxHash(t *testing.T) {
	sig := Signature("diamondCut")
	a := TxHash(sig, []byte{0x01})
	assert.Equal(t, a, TxHash(sig, []byte{0x01}))
	assert.NotEqual(t, a, TxHash(sig, []byte{0x02}))
	assert.NotEqual(t, a, TxHash("setDelay(uint256)", []byte{0x01}))
	assert.Equal(t, TxHash(sig, nil), TxHash(sig, []byte{}))
}

func TestTimelockEvent(t *testing.T) {
	ev := TimelockEvent{
		TxHash:    TxHash("setDelay(uint256)", []byte{0x01}),
		Signature: "setDelay(uint256)",
		Data:      []byte{0x01},
		Eta:       172800,
	}
	topics, data, err := EncodeTimelockEvent("QueueTransaction", ev)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, EventID("QueueTransaction"), topics[0])

	decoded, err := DecodeTimelockEvent("QueueTransaction", topics, data)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestLogPayload(t *testing.T) {
	topics := []common.Hash{EventID("ParamSet"), common.HexToHash("0x01")}
	data := []byte("payload")

	buf := EncodeLogPayload(nil, topics, data)
	gotTopics, gotData, err := DecodeLogPayload(buf)
	require.NoError(t, err)
	assert.Equal(t, topics, gotTopics)
	assert.Equal(t, data, gotData)

	testCases := []struct {
		desc  string
		input []byte
	}{
		{"short header", []byte{0x01}},
		{"truncated", buf[:len(buf)-1]},
		{"trailing", append(append([]byte{}, buf...), 0x00)},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, _, err := DecodeLogPayload(tc.input)
			require.ErrorIs(t, err, ErrInvalidLogPayload)
		})
	}
}

func TestSubset(t *testing.T) {
	sub := Subset("facets", "supportsInterface", "DiamondCut")
	assert.Len(t, sub.Methods, 2)
	assert.Len(t, sub.Events, 1)
	assert.Panics(t, func() { Subset("nope") })
}
