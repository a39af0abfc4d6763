package rules

import (
	"fmt"
	"strings"
)

// MinMax is the observed range of one state.
type MinMax struct {
	Min float64 `json:"min" yaml:"min" toml:"min"`
	Max float64 `json:"max" yaml:"max" toml:"max"`
}

// Scale maps a normalized value in [0, 1] into the range.
func (m MinMax) Scale(v float64) float64 {
	return m.Min + v*(m.Max-m.Min)
}

// Widen returns the range extended to include v.
func (m MinMax) Widen(v float64) MinMax {
	if v < m.Min {
		m.Min = v
	}
	if v > m.Max {
		m.Max = v
	}
	return m
}

// Rule fires its action when every condition holds.
type Rule struct {
	Conditions []Condition `json:"conditions" yaml:"conditions" toml:"conditions"`

	// Action is the action key chosen when the rule fires.
	Action string `json:"action" yaml:"action" toml:"action"`

	// ActionCoefficient weights the action when votes are tallied.
	ActionCoefficient float64 `json:"action_coefficient" yaml:"action_coefficient" toml:"action_coefficient"`

	// ActionLookback, when positive, makes the rule repeat the action
	// taken that many steps ago instead of Action.
	ActionLookback int `json:"action_lookback" yaml:"action_lookback" toml:"action_lookback"`

	// TimesApplied counts how often the rule fired during evaluation.
	TimesApplied int `json:"times_applied" yaml:"times_applied" toml:"times_applied"`
}

// Format renders the rule, e.g. " <3> 1.00*x >= 0.50*y --> 1.00*left".
func (r Rule) Format(states, actions map[string]string, minMaxes map[string]MinMax) string {
	conditions := make([]string, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		conditions = append(conditions, c.Format(states, minMaxes))
	}

	var action string
	if r.ActionLookback > 0 {
		action = fmt.Sprintf("%s[%d]", LookBack, r.ActionLookback)
	} else {
		action = fmt.Sprintf("%.*f*%s", DecimalDigits, r.ActionCoefficient, lookupName(actions, r.Action))
	}

	return fmt.Sprintf("%s%s --> %s", timesApplied(r.TimesApplied), strings.Join(conditions, " && "), action)
}

func (r Rule) String() string {
	return r.Format(nil, nil, nil)
}

// RuleSet is an evolved rule-based actor: ordered rules plus a default
// action used when no rule fires.
type RuleSet struct {
	Rules []Rule `json:"rules" yaml:"rules" toml:"rules"`

	DefaultAction            string  `json:"default_action" yaml:"default_action" toml:"default_action"`
	DefaultActionCoefficient float64 `json:"default_action_coefficient" yaml:"default_action_coefficient" toml:"default_action_coefficient"`

	// TimesApplied counts how often the default action was used.
	TimesApplied int `json:"times_applied" yaml:"times_applied" toml:"times_applied"`

	AgeState int `json:"age_state" yaml:"age_state" toml:"age_state"`

	// MinMaxes calibrates normalized conditions per state key. Evaluation
	// widens the ranges as new data is observed.
	MinMaxes map[string]MinMax `json:"min_maxes,omitempty" yaml:"min_maxes,omitempty" toml:"min_maxes,omitempty"`
}

// NewRuleSet creates an empty rule set with a copy of minMaxes.
func NewRuleSet(minMaxes map[string]MinMax) *RuleSet {
	rs := &RuleSet{MinMaxes: make(map[string]MinMax, len(minMaxes))}
	for k, v := range minMaxes {
		rs.MinMaxes[k] = v
	}
	return rs
}

// Validate checks every condition of every rule.
func (rs *RuleSet) Validate() error {
	for i := range rs.Rules {
		for j := range rs.Rules[i].Conditions {
			if err := rs.Rules[i].Conditions[j].Validate(); err != nil {
				return fmt.Errorf("rule %d condition %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (rs *RuleSet) Clone() *RuleSet {
	out := *rs
	out.MinMaxes = nil
	if rs.MinMaxes != nil {
		out.MinMaxes = make(map[string]MinMax, len(rs.MinMaxes))
		for k, v := range rs.MinMaxes {
			out.MinMaxes[k] = v
		}
	}
	out.Rules = make([]Rule, len(rs.Rules))
	for i, r := range rs.Rules {
		r.Conditions = append([]Condition(nil), r.Conditions...)
		out.Rules[i] = r
	}
	return &out
}

// Format renders one line per rule followed by the default action line.
func (rs *RuleSet) Format(states, actions map[string]string) string {
	var b strings.Builder
	for _, r := range rs.Rules {
		b.WriteString(r.Format(states, actions, rs.MinMaxes))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%sDefault Action: %.*f*%s\n",
		timesApplied(rs.TimesApplied), DecimalDigits, rs.DefaultActionCoefficient, lookupName(actions, rs.DefaultAction))
	return b.String()
}

func (rs *RuleSet) String() string {
	return rs.Format(nil, nil)
}

func timesApplied(n int) string {
	if n > 0 {
		return fmt.Sprintf(" <%d> ", n)
	}
	return " <> "
}

func lookupName(names map[string]string, key string) string {
	if name, ok := names[key]; ok {
		return name
	}
	return key
}
