package codec

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"tradex/internal/schema"
)

// contractJSON is the combined interface of the core and every bundled facet.
const contractJSON = `[
{"type":"function","name":"diamondCut","stateMutability":"nonpayable","inputs":[
	{"name":"_diamondCut","type":"tuple[]","components":[
		{"name":"facetAddress","type":"address"},
		{"name":"action","type":"uint8"},
		{"name":"functionSelectors","type":"bytes4[]"}]},
	{"name":"_init","type":"address"},
	{"name":"_calldata","type":"bytes"}],"outputs":[]},

{"type":"function","name":"facets","stateMutability":"view","inputs":[],"outputs":[
	{"name":"facets_","type":"tuple[]","components":[
		{"name":"facetAddress","type":"address"},
		{"name":"functionSelectors","type":"bytes4[]"}]}]},
{"type":"function","name":"facetFunctionSelectors","stateMutability":"view","inputs":[
	{"name":"_facet","type":"address"}],"outputs":[{"name":"","type":"bytes4[]"}]},
{"type":"function","name":"facetAddresses","stateMutability":"view","inputs":[],"outputs":[
	{"name":"","type":"address[]"}]},
{"type":"function","name":"facetAddress","stateMutability":"view","inputs":[
	{"name":"_functionSelector","type":"bytes4"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"supportsInterface","stateMutability":"view","inputs":[
	{"name":"_interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},

{"type":"function","name":"queueTransaction","stateMutability":"nonpayable","inputs":[
	{"name":"signature","type":"string"},{"name":"data","type":"bytes"}],"outputs":[
	{"name":"txHash","type":"bytes32"},{"name":"eta","type":"uint256"}]},
{"type":"function","name":"executeTransaction","stateMutability":"nonpayable","inputs":[
	{"name":"signature","type":"string"},{"name":"data","type":"bytes"}],"outputs":[
	{"name":"","type":"bytes"}]},
{"type":"function","name":"cancelTransaction","stateMutability":"nonpayable","inputs":[
	{"name":"signature","type":"string"},{"name":"data","type":"bytes"}],"outputs":[]},
{"type":"function","name":"queuedTransaction","stateMutability":"view","inputs":[
	{"name":"txHash","type":"bytes32"}],"outputs":[{"name":"eta","type":"uint256"}]},
{"type":"function","name":"delay","stateMutability":"view","inputs":[],"outputs":[
	{"name":"","type":"uint256"}]},
{"type":"function","name":"gracePeriod","stateMutability":"view","inputs":[],"outputs":[
	{"name":"","type":"uint256"}]},
{"type":"function","name":"setDelay","stateMutability":"nonpayable","inputs":[
	{"name":"delay_","type":"uint256"}],"outputs":[]},
{"type":"function","name":"setGracePeriod","stateMutability":"nonpayable","inputs":[
	{"name":"gracePeriod_","type":"uint256"}],"outputs":[]},

{"type":"function","name":"hasRole","stateMutability":"view","inputs":[
	{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[
	{"name":"","type":"bool"}]},
{"type":"function","name":"getRoleAdmin","stateMutability":"view","inputs":[
	{"name":"role","type":"bytes32"}],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"grantRole","stateMutability":"nonpayable","inputs":[
	{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
{"type":"function","name":"revokeRole","stateMutability":"nonpayable","inputs":[
	{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
{"type":"function","name":"renounceRole","stateMutability":"nonpayable","inputs":[
	{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],"outputs":[]},
{"type":"function","name":"getRoleMember","stateMutability":"view","inputs":[
	{"name":"role","type":"bytes32"},{"name":"index","type":"uint256"}],"outputs":[
	{"name":"","type":"address"}]},
{"type":"function","name":"getRoleMemberCount","stateMutability":"view","inputs":[
	{"name":"role","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},

{"type":"function","name":"setParam","stateMutability":"nonpayable","inputs":[
	{"name":"key","type":"bytes32"},{"name":"value","type":"string"}],"outputs":[]},
{"type":"function","name":"getParam","stateMutability":"view","inputs":[
	{"name":"key","type":"bytes32"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"paramKeys","stateMutability":"view","inputs":[],"outputs":[
	{"name":"","type":"bytes32[]"}]},

{"type":"function","name":"init","stateMutability":"nonpayable","inputs":[
	{"name":"admin","type":"address"},{"name":"deployer","type":"address"},
	{"name":"delay","type":"uint256"},{"name":"gracePeriod","type":"uint256"}],"outputs":[]},

{"type":"event","name":"DiamondCut","anonymous":false,"inputs":[
	{"name":"_diamondCut","type":"tuple[]","indexed":false,"components":[
		{"name":"facetAddress","type":"address"},
		{"name":"action","type":"uint8"},
		{"name":"functionSelectors","type":"bytes4[]"}]},
	{"name":"_init","type":"address","indexed":false},
	{"name":"_calldata","type":"bytes","indexed":false}]},
{"type":"event","name":"QueueTransaction","anonymous":false,"inputs":[
	{"name":"txHash","type":"bytes32","indexed":true},
	{"name":"signature","type":"string","indexed":false},
	{"name":"data","type":"bytes","indexed":false},
	{"name":"eta","type":"uint256","indexed":false}]},
{"type":"event","name":"ExecuteTransaction","anonymous":false,"inputs":[
	{"name":"txHash","type":"bytes32","indexed":true},
	{"name":"signature","type":"string","indexed":false},
	{"name":"data","type":"bytes","indexed":false},
	{"name":"eta","type":"uint256","indexed":false}]},
{"type":"event","name":"CancelTransaction","anonymous":false,"inputs":[
	{"name":"txHash","type":"bytes32","indexed":true},
	{"name":"signature","type":"string","indexed":false},
	{"name":"data","type":"bytes","indexed":false},
	{"name":"eta","type":"uint256","indexed":false}]},
{"type":"event","name":"RoleGranted","anonymous":false,"inputs":[
	{"name":"role","type":"bytes32","indexed":true},
	{"name":"account","type":"address","indexed":true},
	{"name":"sender","type":"address","indexed":true}]},
{"type":"event","name":"RoleRevoked","anonymous":false,"inputs":[
	{"name":"role","type":"bytes32","indexed":true},
	{"name":"account","type":"address","indexed":true},
	{"name":"sender","type":"address","indexed":true}]},
{"type":"event","name":"ParamSet","anonymous":false,"inputs":[
	{"name":"key","type":"bytes32","indexed":true},
	{"name":"value","type":"string","indexed":false}]}
]`

var contract = mustParse(contractJSON)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse contract abi: %v", err))
	}
	return parsed
}

// ABI returns the combined interface.
func ABI() abi.ABI {
	return contract
}

// Subset returns an ABI holding only the named methods and events.
func Subset(names ...string) abi.ABI {
	out := abi.ABI{
		Methods: make(map[string]abi.Method),
		Events:  make(map[string]abi.Event),
	}
	for _, name := range names {
		if m, ok := contract.Methods[name]; ok {
			out.Methods[name] = m
			continue
		}
		if e, ok := contract.Events[name]; ok {
			out.Events[name] = e
			continue
		}
		panic(fmt.Sprintf("unknown abi member %q", name))
	}
	return out
}

// Selector returns the selector of a method of the combined interface.
func Selector(method string) schema.Selector {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("unknown abi method %q", method))
	}
	var s schema.Selector
	copy(s[:], m.ID)
	return s
}

// Signature returns the canonical signature of a method, e.g.
// "diamondCut((address,uint8,bytes4[])[],address,bytes)".
func Signature(method string) string {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("unknown abi method %q", method))
	}
	return m.Sig
}

// Selectors maps method names to selectors.
func Selectors(methods ...string) []schema.Selector {
	out := make([]schema.Selector, 0, len(methods))
	for _, m := range methods {
		out = append(out, Selector(m))
	}
	return out
}

// MethodBySelector finds the method a selector belongs to.
func MethodBySelector(sel schema.Selector) (abi.Method, bool) {
	m, err := contract.MethodById(sel[:])
	if err != nil {
		return abi.Method{}, false
	}
	return *m, true
}

// Pack encodes a full call: selector followed by the arguments.
func Pack(method string, args ...any) ([]byte, error) {
	return contract.Pack(method, args...)
}

// PackArgs encodes only the arguments of a method.
func PackArgs(method string, args ...any) ([]byte, error) {
	m, ok := contract.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown abi method %q", method)
	}
	return m.Inputs.Pack(args...)
}

// UnpackArgs decodes the arguments of a method, without the selector.
func UnpackArgs(method string, args []byte) ([]any, error) {
	m, ok := contract.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown abi method %q", method)
	}
	return m.Inputs.Unpack(args)
}

// PackReturn encodes the return values of a method.
func PackReturn(method string, values ...any) ([]byte, error) {
	m, ok := contract.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown abi method %q", method)
	}
	return m.Outputs.Pack(values...)
}

// UnpackReturn decodes the return values of a method.
func UnpackReturn(method string, output []byte) ([]any, error) {
	return contract.Unpack(method, output)
}
