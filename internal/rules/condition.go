package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is a binary comparison between two operands.
//
// The first operand is always a state: FirstStateCoefficient times the
// value of FirstStateKey, FirstStateLookback steps ago, raised to
// FirstStateExponent. The second operand is either another state built
// the same way (when SecondStateKey names a known state) or the constant
// SecondStateValue in [0, 1], scaled into the min/max range observed for
// the first state.
type Condition struct {
	FirstStateKey         string  `json:"first_state" yaml:"first_state" toml:"first_state"`
	FirstStateCoefficient float64 `json:"first_state_coefficient" yaml:"first_state_coefficient" toml:"first_state_coefficient"`
	FirstStateExponent    int     `json:"first_state_exponent" yaml:"first_state_exponent" toml:"first_state_exponent"`
	FirstStateLookback    int     `json:"first_state_lookback" yaml:"first_state_lookback" toml:"first_state_lookback"`

	Operator string `json:"operator" yaml:"operator" toml:"operator"`

	SecondStateKey         string  `json:"second_state" yaml:"second_state" toml:"second_state"`
	SecondStateCoefficient float64 `json:"second_state_coefficient" yaml:"second_state_coefficient" toml:"second_state_coefficient"`
	SecondStateExponent    int     `json:"second_state_exponent" yaml:"second_state_exponent" toml:"second_state_exponent"`
	SecondStateLookback    int     `json:"second_state_lookback" yaml:"second_state_lookback" toml:"second_state_lookback"`
	SecondStateValue       float64 `json:"second_state_value" yaml:"second_state_value" toml:"second_state_value"`
}

// Validate checks the operator and lookbacks.
func (c *Condition) Validate() error {
	if c.FirstStateKey == "" {
		return fmt.Errorf("condition: first state must not be empty")
	}
	if !isOperator(c.Operator) {
		return fmt.Errorf("condition: invalid operator %q (valid: %s)", c.Operator, strings.Join(Operators, ", "))
	}
	if c.FirstStateLookback < 0 || c.SecondStateLookback < 0 {
		return fmt.Errorf("condition: lookback must not be negative")
	}
	return nil
}

func isOperator(op string) bool {
	for _, valid := range Operators {
		if op == valid {
			return true
		}
	}
	return false
}

// String renders the condition without any domain context.
func (c Condition) String() string {
	return c.Format(nil, nil)
}

// Format renders the condition using the domain's state names and the
// observed min/max ranges. Both maps are optional.
//
// Categorical states (encoded as "<name>_is_category_<value>") are shown
// as "name is value" or "name is not value": the one-hot input is compared
// to 1.0, so "<" means the category is absent.
func (c Condition) Format(states map[string]string, minMaxes map[string]MinMax) string {
	if states != nil && IsCategorical(states[c.FirstStateKey]) {
		return c.formatCategorical(states)
	}
	return c.formatContinuous(states, minMaxes)
}

func (c Condition) formatContinuous(states map[string]string, minMaxes map[string]MinMax) string {
	first := formatOperand(c.FirstStateCoefficient, c.FirstStateKey, c.FirstStateLookback, c.FirstStateExponent, states)

	var second string
	if _, ok := states[c.SecondStateKey]; ok && c.SecondStateKey != "" {
		second = formatOperand(c.SecondStateCoefficient, c.SecondStateKey, c.SecondStateLookback, c.SecondStateExponent, states)
	} else if mm, ok := minMaxes[c.FirstStateKey]; ok {
		// min/max always comes from the first state, as in evaluation.
		scaled := mm.Scale(c.SecondStateValue)
		second = fmt.Sprintf("%.*f {%s..%s}", DecimalDigits, scaled, formatFloat(mm.Min), formatFloat(mm.Max))
	} else {
		second = fmt.Sprintf("%.*f", DecimalDigits, c.SecondStateValue)
	}

	return fmt.Sprintf("%s %s %s", first, c.Operator, second)
}

func (c Condition) formatCategorical(states map[string]string) string {
	encoded := states[c.FirstStateKey]
	name := CategoricalName(encoded)
	category := CategoricalCategory(encoded)

	lookback := ""
	if c.FirstStateLookback > 0 {
		lookback = "[" + strconv.Itoa(c.FirstStateLookback) + "]"
	}

	operator := "is"
	if c.Operator == LessThan {
		operator = "is not"
	}
	return fmt.Sprintf("%s%s %s %s", name, lookback, operator, category)
}

// formatOperand renders one side of a condition, e.g. "0.50*speed[2]^3".
func formatOperand(coefficient float64, key string, lookback, exponent int, states map[string]string) string {
	name := key
	if mapped, ok := states[key]; ok {
		name = mapped
	}

	part := fmt.Sprintf("%.*f*%s", DecimalDigits, coefficient, name)
	if lookback > 0 {
		part = fmt.Sprintf("%s[%d]", part, lookback)
	}
	if exponent > 1 {
		part = fmt.Sprintf("%s^%d", part, exponent)
	}
	return part
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// IsCategorical reports whether an encoded name refers to one category of
// a categorical variable.
func IsCategorical(name string) bool {
	return strings.Contains(name, CategoryMarker)
}

// CategoricalName returns the variable part of an encoded categorical name.
func CategoricalName(name string) string {
	before, _, _ := strings.Cut(name, CategoryMarker)
	return before
}

// CategoricalCategory returns the category part of an encoded categorical
// name, or "" when the name is not categorical.
func CategoricalCategory(name string) string {
	_, after, _ := strings.Cut(name, CategoryMarker)
	return after
}
