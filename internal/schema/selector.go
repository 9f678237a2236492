package schema

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selector identifies one callable operation: the first four bytes of the
// keccak256 hash of its canonical signature.
type Selector [4]byte

// SelectorOf computes the selector of a canonical function signature such as
// "facetAddress(bytes4)".
func SelectorOf(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// ParseSelector accepts either a 0x-prefixed 4-byte hex string or a function
// signature.
func ParseSelector(text string) (Selector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Selector{}, fmt.Errorf("selector is empty")
	}
	if strings.Contains(text, "(") {
		return SelectorOf(text), nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(text, "0x"))
	if err != nil {
		return Selector{}, fmt.Errorf("invalid selector %q: %w", text, err)
	}
	if len(raw) != len(Selector{}) {
		return Selector{}, fmt.Errorf("invalid selector %q: want 4 bytes, got %d", text, len(raw))
	}
	var s Selector
	copy(s[:], raw)
	return s, nil
}

// SelectorFromCalldata returns the selector heading calldata.
func SelectorFromCalldata(data []byte) (Selector, bool) {
	var s Selector
	if len(data) < len(s) {
		return s, false
	}
	copy(s[:], data[:4])
	return s, true
}

// Hex returns the 0x-prefixed hex form.
func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// InterfaceID is the XOR of the selectors of an interface (ERC-165).
func InterfaceID(selectors ...Selector) Selector {
	var id Selector
	for _, s := range selectors {
		for i := range id {
			id[i] ^= s[i]
		}
	}
	return id
}

// CutAction is the registry mutation requested by one cut entry.
type CutAction uint8

const (
	CutActionBind   CutAction = 0
	CutActionRebind CutAction = 1
	CutActionUnbind CutAction = 2
)

// Valid reports whether the action is one of the defined values.
func (a CutAction) Valid() bool {
	return a <= CutActionUnbind
}

func (a CutAction) String() string {
	switch a {
	case CutActionBind:
		return "bind"
	case CutActionRebind:
		return "rebind"
	case CutActionUnbind:
		return "unbind"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ParseCutAction maps the textual form used by cut plans.
func ParseCutAction(text string) (CutAction, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "bind", "add":
		return CutActionBind, nil
	case "rebind", "replace":
		return CutActionRebind, nil
	case "unbind", "remove":
		return CutActionUnbind, nil
	default:
		return 0, fmt.Errorf("unknown cut action %q", text)
	}
}

// CutEntry is one module binding change within a cut request.
type CutEntry struct {
	Module    common.Address
	Action    CutAction
	Selectors []Selector
}

// Cut is an atomic batch of registry mutations plus an optional initializer.
type Cut struct {
	Entries     []CutEntry
	Init        common.Address
	InitPayload []byte
}
