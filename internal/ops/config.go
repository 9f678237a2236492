package ops

import (
	"fmt"
	"os"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"tradex/internal/recorder"
	"tradex/internal/venue"
	"tradex/pkg/conn"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Venue     VenueConfig     `json:"venue"`
	Recorder  recorder.Config `json:"recorder"`
	Postgres  *conn.Option    `json:"postgres"`
	Profiling ProfilingConfig `json:"profiling"`
}

// VenueConfig describes the core deployment.
type VenueConfig struct {
	Admin       string `json:"admin"`
	Deployer    string `json:"deployer"`
	Delay       int64  `json:"delay"`
	GracePeriod int64  `json:"gracePeriod"`
	// Params are initial venue parameters, applied through the timelock.
	Params map[string]string `json:"params"`
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ApplicationName string `json:"applicationName"`
	ServerAddress   string `json:"serverAddress"`
}

// Param is a resolved venue parameter.
type Param struct {
	Name  string
	Value decimal.Decimal
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Venue     venue.Config
	Params    []Param
	Recorder  recorder.Config
	Postgres  *conn.Option
	Profiling ProfilingConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Parse(data)
}

// Parse resolves a JSON config document.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, fmt.Errorf("parse config: %w", err)
	}

	v, err := resolveVenue(cfg.Venue)
	if err != nil {
		return Loaded{}, err
	}
	params, err := resolveParams(cfg.Venue.Params)
	if err != nil {
		return Loaded{}, err
	}
	if cfg.Recorder.Dir != "" {
		cfg.Recorder = cfg.Recorder.WithDefaults()
		if err := cfg.Recorder.Validate(); err != nil {
			return Loaded{}, err
		}
	}
	return Loaded{
		Venue:     v,
		Params:    params,
		Recorder:  cfg.Recorder,
		Postgres:  cfg.Postgres,
		Profiling: cfg.Profiling,
	}, nil
}

func resolveVenue(cfg VenueConfig) (venue.Config, error) {
	admin, err := parseAddress("venue.admin", cfg.Admin)
	if err != nil {
		return venue.Config{}, err
	}
	if admin == (common.Address{}) {
		return venue.Config{}, fmt.Errorf("venue.admin is required")
	}
	var deployer common.Address
	if cfg.Deployer != "" {
		if deployer, err = parseAddress("venue.deployer", cfg.Deployer); err != nil {
			return venue.Config{}, err
		}
	}
	if cfg.Delay < 0 || cfg.GracePeriod < 0 {
		return venue.Config{}, fmt.Errorf("venue delay and gracePeriod must be >= 0")
	}
	return venue.Config{
		Admin:       admin,
		Deployer:    deployer,
		Delay:       cfg.Delay,
		GracePeriod: cfg.GracePeriod,
	}, nil
}

func resolveParams(raw map[string]string) ([]Param, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Param, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("venue.params: empty parameter name")
		}
		value, err := decimal.NewFromString(raw[name])
		if err != nil {
			return nil, fmt.Errorf("venue.params.%s: %w", name, err)
		}
		params = append(params, Param{Name: name, Value: value})
	}
	return params, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}
