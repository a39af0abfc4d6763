package rules

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// BindingKey identifies a persisted Binding and the version of its layout.
const BindingKey = "RuleSetBinding-1.0"

// bindingKeyPrefix is the part of BindingKey before the version.
const bindingKeyPrefix = "RuleSetBinding-"

// bindingVersions lists the layout versions this package can read.
var bindingVersions = mustConstraint("^1")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// Binding ties a RuleSet to the domain context and actions it was evolved
// for, so the rules can be evaluated against raw model inputs.
type Binding struct {
	Rules   *RuleSet `json:"rules" yaml:"rules" toml:"rules"`
	States  []VarDef `json:"states" yaml:"states" toml:"states"`
	Actions []VarDef `json:"actions" yaml:"actions" toml:"actions"`
	Key     string   `json:"key" yaml:"key" toml:"key"`
}

// NewBinding creates a Binding holding copies of its arguments.
func NewBinding(rs *RuleSet, states, actions []VarDef) *Binding {
	b := &Binding{
		States:  cloneVarDefs(states),
		Actions: cloneVarDefs(actions),
		Key:     BindingKey,
	}
	if rs != nil {
		b.Rules = rs.Clone()
	}
	return b
}

func cloneVarDefs(defs []VarDef) []VarDef {
	out := make([]VarDef, len(defs))
	for i, d := range defs {
		d.Values = append([]string(nil), d.Values...)
		out[i] = d
	}
	return out
}

// Validate checks the binding key and the rule set.
func (b *Binding) Validate() error {
	version, ok := strings.CutPrefix(b.Key, bindingKeyPrefix)
	if !ok {
		return fmt.Errorf("binding: unexpected key %q, want %q", b.Key, BindingKey)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("binding: invalid version in key %q: %w", b.Key, err)
	}
	if !bindingVersions.Check(v) {
		return fmt.Errorf("binding: unsupported version %s (supported: %s)", v, bindingVersions)
	}

	if b.Rules == nil {
		return fmt.Errorf("binding: no rules")
	}
	return b.Rules.Validate()
}

// ActionNames returns the encoded action names in the order of the
// evaluator's output vectors.
func (b *Binding) ActionNames() ([]string, error) {
	actions, err := ReadConfigShapeVar(b.Actions)
	if err != nil {
		return nil, err
	}

	keys := sortedIndexKeys(actions)
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = actions[key]
	}
	return names, nil
}

// String renders the rules with state and action names resolved, followed
// by the raw definitions.
func (b *Binding) String() string {
	states, _ := ReadConfigShapeVar(b.States)
	actions, _ := ReadConfigShapeVar(b.Actions)

	rules := ""
	if b.Rules != nil {
		rules = b.Rules.Format(states, actions)
	}
	return fmt.Sprintf("rules:\n%s states: %s\nactions: %s\n", rules, formatVarDefs(b.States), formatVarDefs(b.Actions))
}

func formatVarDefs(defs []VarDef) string {
	parts := make([]string, 0, len(defs))
	for _, d := range defs {
		if d.Size > 1 {
			parts = append(parts, fmt.Sprintf("%s(%d)%v", d.Name, d.Size, d.Values))
		} else {
			parts = append(parts, d.Name)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
