package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/tidwall/jsonc"
)

// VarDef describes one network input (state) or output (action) of a
// domain, as found under "network.inputs" / "network.outputs" of an
// experiment config.
type VarDef struct {
	Name       string   `json:"name" yaml:"name" toml:"name"`
	Size       int      `json:"size" yaml:"size" toml:"size"`
	Values     []string `json:"values,omitempty" yaml:"values,omitempty" toml:"values,omitempty"`
	Activation string   `json:"activation,omitempty" yaml:"activation,omitempty" toml:"activation,omitempty"`
	UseBias    bool     `json:"use_bias,omitempty" yaml:"use_bias,omitempty" toml:"use_bias,omitempty"`
}

// NetworkConfig is the part of an experiment config that defines the
// domain's inputs and outputs.
type NetworkConfig struct {
	Network struct {
		Inputs  []VarDef `json:"inputs"`
		Outputs []VarDef `json:"outputs"`
	} `json:"network"`
}

// LoadNetworkConfig reads an experiment config file. Comments and trailing
// commas are allowed.
func LoadNetworkConfig(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg NetworkConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// GetStates enumerates the config's inputs.
func GetStates(cfg *NetworkConfig) (map[string]string, error) {
	return ReadConfigShapeVar(cfg.Network.Inputs)
}

// GetActions enumerates the config's outputs.
func GetActions(cfg *NetworkConfig) (map[string]string, error) {
	return ReadConfigShapeVar(cfg.Network.Outputs)
}

// ReadConfigShapeVar flattens variable definitions into an index-keyed map
// of names, one entry per model input or output:
//
//	[{name: speed, size: 1}, {name: gear, size: 2, values: [low, high]}]
//
// becomes
//
//	{"0": "speed", "1": "gear_is_category_low", "2": "gear_is_category_high"}
func ReadConfigShapeVar(defs []VarDef) (map[string]string, error) {
	out := make(map[string]string)
	index := 0
	for _, def := range defs {
		if def.Size <= 1 {
			out[strconv.Itoa(index)] = def.Name
			index++
			continue
		}

		if len(def.Values) < def.Size {
			return nil, fmt.Errorf("variable %q has size %d but only %d values", def.Name, def.Size, len(def.Values))
		}
		for i := 0; i < def.Size; i++ {
			out[strconv.Itoa(index)] = def.Name + CategoryMarker + def.Values[i]
			index++
		}
	}
	return out, nil
}
