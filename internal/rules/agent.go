package rules

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leaf-ai/leaf-common/internal/model"
)

// DefaultAgentUID is used for agents created without a uid.
const DefaultAgentUID = "rule_based"

// Agent is the older standalone form of a rule-based actor. It carries its
// own state and action names instead of a Binding.
type Agent struct {
	UID          string            `json:"uid" yaml:"uid" toml:"uid"`
	States       map[string]string `json:"states" yaml:"states" toml:"states"`
	Actions      map[string]string `json:"actions" yaml:"actions" toml:"actions"`
	InitialState map[string]string `json:"initial_state,omitempty" yaml:"initial_state,omitempty" toml:"initial_state,omitempty"`

	Rules         []Rule `json:"rules" yaml:"rules" toml:"rules"`
	DefaultAction string `json:"default_action" yaml:"default_action" toml:"default_action"`

	TimesApplied int `json:"times_applied" yaml:"times_applied" toml:"times_applied"`
	AgeState     int `json:"age_state" yaml:"age_state" toml:"age_state"`
}

// NewAgent creates an agent. An empty uid gets a generated one.
func NewAgent(uid string, states, actions, initialState map[string]string) *Agent {
	if uid == "" {
		uid = DefaultAgentUID + "-" + uuid.NewString()
	}
	return &Agent{
		UID:          uid,
		States:       states,
		Actions:      actions,
		InitialState: initialState,
	}
}

// ParseRules counts, per action, the rules that fire on data. Every
// known action appears in the result. Rules looking back at earlier
// actions vote for the action they resolve to; a rule whose lookback
// reaches past the action history does not vote.
//
// State fields that refer to actions (see model.IsActionField) take part
// in conditions like any other state.
func (a *Agent) ParseRules(data EvaluationData, minMaxes map[string]MinMax) map[string]int {
	votes := make(map[string]int, len(a.Actions))
	for key := range a.Actions {
		votes[key] = 0
	}

	evaluator := NewRuleEvaluator(a.States)
	for i := range a.Rules {
		action, lookback := evaluator.Evaluate(&a.Rules[i], data, minMaxes)
		switch action {
		case NoAction:
			continue
		case LookBack:
			idx := len(data.ActionHistory) - lookback
			if idx < 0 || idx >= len(data.ActionHistory) {
				continue
			}
			action = data.ActionHistory[idx]
		}
		votes[action]++
	}
	return votes
}

// ActionStates returns, in index order, the keys of the states that refer
// to actions.
func (a *Agent) ActionStates() []string {
	var out []string
	for _, key := range sortedIndexKeys(a.States) {
		if model.IsActionField(a.States[key]) {
			out = append(out, key)
		}
	}
	return out
}

// AgentStep is the outcome of one sample of Agent.Replay.
type AgentStep struct {
	Votes  map[string]int `json:"votes"`
	Action string         `json:"action"`
}

// Replay runs the agent over a feature-major data matrix (data[feature][sample])
// one sample at a time. Feature i feeds the i-th state key in index order.
// minMaxes scales value conditions; nil uses the ranges observed in data.
// Each step's action is the one with most votes (ties go to the first in
// index order), or the default action when no rule fires; it becomes part
// of the action history seen by later steps.
func (a *Agent) Replay(data [][]float64, minMaxes map[string]MinMax) ([]AgentStep, error) {
	stateKeys := sortedIndexKeys(a.States)
	if len(data) < len(stateKeys) {
		return nil, fmt.Errorf("data has %d features, agent expects %d", len(data), len(stateKeys))
	}
	if len(stateKeys) == 0 || len(data) == 0 {
		return []AgentStep{}, nil
	}

	samples := len(data[0])
	for i, column := range data[:len(stateKeys)] {
		if len(column) != samples {
			return nil, fmt.Errorf("feature %d has %d samples, want %d", i, len(column), samples)
		}
	}

	if minMaxes == nil {
		minMaxes = observedRanges(stateKeys, data)
	}

	actionKeys := sortedIndexKeys(a.Actions)
	var history EvaluationData
	steps := make([]AgentStep, 0, samples)
	for s := 0; s < samples; s++ {
		obs := make(Observation, len(stateKeys))
		for i, key := range stateKeys {
			obs[key] = data[i][s]
		}
		history.History = append(history.History, obs)

		votes := a.ParseRules(history, minMaxes)
		action := a.DefaultAction
		best := 0
		for _, key := range actionKeys {
			if votes[key] > best {
				action, best = key, votes[key]
			}
		}

		history.ActionHistory = append(history.ActionHistory, action)
		steps = append(steps, AgentStep{Votes: votes, Action: action})
	}
	return steps, nil
}

// observedRanges returns the min and max of each state's feature.
func observedRanges(stateKeys []string, data [][]float64) map[string]MinMax {
	out := make(map[string]MinMax, len(stateKeys))
	for i, key := range stateKeys {
		column := data[i]
		if len(column) == 0 {
			continue
		}
		mm := MinMax{Min: column[0], Max: column[0]}
		for _, v := range column[1:] {
			mm = mm.Widen(v)
		}
		out[key] = mm
	}
	return out
}

// Format renders the agent's rules with the given min/max ranges.
func (a *Agent) Format(minMaxes map[string]MinMax) string {
	var b strings.Builder
	for _, r := range a.Rules {
		b.WriteString(r.Format(a.States, a.Actions, minMaxes))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%sDefault Action: %s\n", timesApplied(a.TimesApplied), lookupName(a.Actions, a.DefaultAction))
	return b.String()
}

func (a *Agent) String() string {
	return a.Format(nil)
}
