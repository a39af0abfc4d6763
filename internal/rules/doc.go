// Package rules implements the rule-based model representation used by
// evolved agents, together with its evaluator.
//
// A RuleSet is an ordered list of Rules plus a default action. Each Rule
// fires when all of its Conditions hold against the observation history;
// a Condition compares a (coefficient * state^exponent) operand, optionally
// looked back in time, against either another state or a normalized
// constant scaled into the observed min/max range of the first state.
//
// A Binding attaches a RuleSet to a domain's state and action definitions
// so it can be evaluated over raw feature columns.
package rules
