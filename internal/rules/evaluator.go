package rules

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Observation is one step of domain state, keyed by state key.
type Observation map[string]float64

// EvaluationData is the input to rule evaluation.
type EvaluationData struct {
	// History holds observations oldest first; the last one is current.
	History []Observation

	// ActionHistory holds the actions taken so far, oldest first. It is
	// used to resolve rules that look back at earlier actions.
	ActionHistory []string
}

// Current returns the latest observation, or nil when there is none.
func (d EvaluationData) Current() Observation {
	if len(d.History) == 0 {
		return nil
	}
	return d.History[len(d.History)-1]
}

// stateAt returns the value of key lookback steps before the current step.
func (d EvaluationData) stateAt(key string, lookback int) (float64, bool) {
	idx := len(d.History) - 1 - lookback
	if idx < 0 {
		return 0, false
	}
	v, ok := d.History[idx][key]
	return v, ok
}

// ConditionEvaluator evaluates Conditions. It is stateless.
type ConditionEvaluator struct {
	states map[string]string
}

// NewConditionEvaluator creates an evaluator for a domain's states.
func NewConditionEvaluator(states map[string]string) *ConditionEvaluator {
	return &ConditionEvaluator{states: states}
}

// Evaluate reports whether c holds for data. Conditions that cannot be
// evaluated (history too short, unknown state, missing range) are false.
func (e *ConditionEvaluator) Evaluate(c *Condition, data EvaluationData, minMaxes map[string]MinMax) bool {
	nbStates := len(data.History) - 1
	if nbStates < c.FirstStateLookback || nbStates < c.SecondStateLookback {
		return false
	}

	value, ok := data.stateAt(c.FirstStateKey, c.FirstStateLookback)
	if !ok {
		return false
	}
	first := operand(c.FirstStateCoefficient, value, c.FirstStateExponent)

	var second float64
	if _, isState := e.states[c.SecondStateKey]; isState && c.SecondStateKey != "" {
		value, ok := data.stateAt(c.SecondStateKey, c.SecondStateLookback)
		if !ok {
			return false
		}
		second = operand(c.SecondStateCoefficient, value, c.SecondStateExponent)
	} else {
		mm, ok := minMaxes[c.FirstStateKey]
		if !ok {
			return false
		}
		second = mm.Scale(c.SecondStateValue)
	}

	switch c.Operator {
	case GreaterThanEqual:
		return first >= second
	case LessThanEqual:
		return first <= second
	case GreaterThan:
		return first > second
	case LessThan:
		return first < second
	default:
		return false
	}
}

func operand(coefficient, value float64, exponent int) float64 {
	if exponent > 1 {
		value = math.Pow(value, float64(exponent))
	}
	return coefficient * value
}

// RuleEvaluator evaluates Rules, incrementing Rule.TimesApplied on every
// rule that fires.
type RuleEvaluator struct {
	conditions *ConditionEvaluator
}

// NewRuleEvaluator creates an evaluator for a domain's states.
func NewRuleEvaluator(states map[string]string) *RuleEvaluator {
	return &RuleEvaluator{conditions: NewConditionEvaluator(states)}
}

// Evaluate returns the action of a fired rule with a zero lookback, or
// LookBack and the action lookback. When the rule does not fire it
// returns NoAction.
func (e *RuleEvaluator) Evaluate(r *Rule, data EvaluationData, minMaxes map[string]MinMax) (string, int) {
	for i := range r.Conditions {
		if !e.conditions.Evaluate(&r.Conditions[i], data, minMaxes) {
			return NoAction, 0
		}
	}

	nbStates := len(data.History) - 1
	if nbStates < r.ActionLookback {
		return NoAction, 0
	}

	r.TimesApplied++
	if r.ActionLookback == 0 {
		return r.Action, 0
	}
	return LookBack, r.ActionLookback
}

// ActionTally accumulates the votes for one action.
type ActionTally struct {
	Count       int
	Coefficient float64
}

// Value is the mean coefficient of the votes, or 0 with no votes.
func (t ActionTally) Value() float64 {
	if t.Count == 0 {
		return 0
	}
	return t.Coefficient / float64(t.Count)
}

// RuleSetEvaluator chooses actions with a RuleSet.
type RuleSetEvaluator struct {
	actions map[string]string
	rules   *RuleEvaluator
}

// NewRuleSetEvaluator creates an evaluator for a domain's states and
// actions.
func NewRuleSetEvaluator(states, actions map[string]string) *RuleSetEvaluator {
	return &RuleSetEvaluator{
		actions: actions,
		rules:   NewRuleEvaluator(states),
	}
}

// ChooseAction evaluates every rule against data and tallies the votes of
// those that fire. When no rule fires the default action gets the single
// vote. Every known action appears in the result.
//
// The rule set's min/max ranges are widened with the current observation
// and rule statistics are updated.
func (e *RuleSetEvaluator) ChooseAction(rs *RuleSet, data EvaluationData) map[string]ActionTally {
	updateMinMaxes(rs, data.Current())

	tallies := make(map[string]ActionTally, len(e.actions))
	for key := range e.actions {
		tallies[key] = ActionTally{}
	}

	fired := false
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		action, lookback := e.rules.Evaluate(rule, data, rs.MinMaxes)
		if action == NoAction {
			continue
		}

		if action == LookBack {
			idx := len(data.ActionHistory) - lookback
			if idx < 0 || idx >= len(data.ActionHistory) {
				continue
			}
			action = data.ActionHistory[idx]
		}

		t := tallies[action]
		t.Count++
		t.Coefficient += rule.ActionCoefficient
		tallies[action] = t
		fired = true
	}

	if !fired {
		t := tallies[rs.DefaultAction]
		t.Count++
		t.Coefficient += rs.DefaultActionCoefficient
		tallies[rs.DefaultAction] = t
		rs.TimesApplied++
	}
	return tallies
}

func updateMinMaxes(rs *RuleSet, obs Observation) {
	if obs == nil {
		return
	}
	if rs.MinMaxes == nil {
		rs.MinMaxes = make(map[string]MinMax, len(obs))
	}
	for key, v := range obs {
		mm, ok := rs.MinMaxes[key]
		if !ok {
			rs.MinMaxes[key] = MinMax{Min: v, Max: v}
			continue
		}
		rs.MinMaxes[key] = mm.Widen(v)
	}
}

// BindingEvaluator computes model outputs for a Binding.
type BindingEvaluator struct{}

// Evaluate runs the bound rule set over every sample of data and returns
// one output vector per sample.
//
// data is feature-major: data[i][s] is the value of encoded state i in
// sample s. Each output vector holds, for every encoded action in index
// order, the mean coefficient of its votes or 0 when it got none.
//
// Evaluation updates the binding's rule statistics.
func (BindingEvaluator) Evaluate(b *Binding, data [][]float64) ([][]float64, error) {
	if b == nil || b.Rules == nil {
		return nil, fmt.Errorf("binding has no rules")
	}

	states, err := ReadConfigShapeVar(b.States)
	if err != nil {
		return nil, fmt.Errorf("states: %w", err)
	}
	actions, err := ReadConfigShapeVar(b.Actions)
	if err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}

	if len(data) < len(states) {
		return nil, fmt.Errorf("data has %d features, binding expects %d", len(data), len(states))
	}
	if len(data) == 0 {
		return [][]float64{}, nil
	}

	samples := len(data[0])
	for i, column := range data[:len(states)] {
		if len(column) != samples {
			return nil, fmt.Errorf("feature %d has %d samples, want %d", i, len(column), samples)
		}
	}

	actionKeys := sortedIndexKeys(actions)
	evaluator := NewRuleSetEvaluator(states, actions)

	out := make([][]float64, 0, samples)
	for s := 0; s < samples; s++ {
		obs := make(Observation, len(states))
		for key := range states {
			idx, _ := strconv.Atoi(key)
			obs[key] = data[idx][s]
		}

		tallies := evaluator.ChooseAction(b.Rules, EvaluationData{History: []Observation{obs}})

		row := make([]float64, len(actionKeys))
		for i, key := range actionKeys {
			row[i] = tallies[key].Value()
		}
		out = append(out, row)
	}
	return out, nil
}

// sortedIndexKeys returns the keys of an index-keyed map in numeric order.
func sortedIndexKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})
	return keys
}
