package ops

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"tradex/internal/schema"
)

//go:embed cutplan.schema.json
var cutPlanSchemaJSON []byte

// Compiled at init time; failure here means a corrupted embedded file.
var cutPlanSchema *jsonschema.Schema

func init() {
	doc := must(jsonschema.UnmarshalJSON(bytes.NewReader(cutPlanSchemaJSON)))
	compiler := jsonschema.NewCompiler()
	must(struct{}{}, compiler.AddResource("cutplan.schema.json", doc))
	cutPlanSchema = must(compiler.Compile("cutplan.schema.json"))
}

func must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// CutPlan is the YAML form of a cut request. Modules and the initializer are
// given as addresses or as names resolved by the caller.
type CutPlan struct {
	Description string         `yaml:"description"`
	Init        string         `yaml:"init"`
	InitPayload string         `yaml:"initPayload"`
	Entries     []CutPlanEntry `yaml:"entries"`
}

// CutPlanEntry is one entry of a cut plan. Selectors are function signatures
// or 0x-prefixed selectors.
type CutPlanEntry struct {
	Module    string   `yaml:"module"`
	Action    string   `yaml:"action"`
	Selectors []string `yaml:"selectors"`
}

// LoadCutPlan reads and validates a YAML cut plan.
func LoadCutPlan(path string) (*CutPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cut plan: %w", err)
	}
	return ParseCutPlan(data)
}

// ParseCutPlan validates a YAML cut plan against the embedded schema and
// decodes it.
func ParseCutPlan(data []byte) (*CutPlan, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cut plan: %w", err)
	}
	if err := cutPlanSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid cut plan: %w", err)
	}

	var plan CutPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse cut plan: %w", err)
	}
	return &plan, nil
}

// Resolve turns the plan into a cut request. names maps module names to
// addresses; anything not found there must be a hex address.
func (p *CutPlan) Resolve(names map[string]common.Address) (schema.Cut, error) {
	var cut schema.Cut
	for i, e := range p.Entries {
		action, err := schema.ParseCutAction(e.Action)
		if err != nil {
			return schema.Cut{}, fmt.Errorf("entry %d: %w", i, err)
		}
		var module common.Address
		if e.Module != "" {
			if module, err = resolveAddress(e.Module, names); err != nil {
				return schema.Cut{}, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		sels := make([]schema.Selector, 0, len(e.Selectors))
		for _, text := range e.Selectors {
			sel, err := schema.ParseSelector(text)
			if err != nil {
				return schema.Cut{}, fmt.Errorf("entry %d: %w", i, err)
			}
			sels = append(sels, sel)
		}
		cut.Entries = append(cut.Entries, schema.CutEntry{Module: module, Action: action, Selectors: sels})
	}

	if p.Init != "" {
		target, err := resolveAddress(p.Init, names)
		if err != nil {
			return schema.Cut{}, fmt.Errorf("init: %w", err)
		}
		cut.Init = target
	}
	if p.InitPayload != "" {
		payload, err := hex.DecodeString(strings.TrimPrefix(p.InitPayload, "0x"))
		if err != nil {
			return schema.Cut{}, fmt.Errorf("initPayload: %w", err)
		}
		cut.InitPayload = payload
	}
	return cut, nil
}

func resolveAddress(ref string, names map[string]common.Address) (common.Address, error) {
	if addr, ok := names[ref]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("unknown module %q", ref)
}
