package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStates = map[string]string{"0": "x", "1": "y"}

func TestCondition_Format(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		states    map[string]string
		minMaxes  map[string]MinMax
		want      string
	}{
		{
			name: "two states",
			condition: Condition{
				FirstStateKey: "0", FirstStateCoefficient: 1, FirstStateExponent: 2, FirstStateLookback: 2,
				Operator:       GreaterThanEqual,
				SecondStateKey: "1", SecondStateCoefficient: 0.5, SecondStateExponent: 1,
			},
			states: testStates,
			want:   "1.00*x[2]^2 >= 0.50*y",
		},
		{
			name: "scaled value",
			condition: Condition{
				FirstStateKey: "0", FirstStateCoefficient: 1,
				Operator:         GreaterThanEqual,
				SecondStateValue: 0.5,
			},
			states:   testStates,
			minMaxes: map[string]MinMax{"0": {Min: 1, Max: 6}},
			want:     "1.00*x >= 3.50 {1..6}",
		},
		{
			name: "raw value without range",
			condition: Condition{
				FirstStateKey: "0", FirstStateCoefficient: 1,
				Operator:         LessThan,
				SecondStateValue: 0.25,
			},
			states: testStates,
			want:   "1.00*x < 0.25",
		},
		{
			name: "unknown state names fall back to keys",
			condition: Condition{
				FirstStateKey: "7", FirstStateCoefficient: 0.1,
				Operator:         GreaterThan,
				SecondStateValue: 0.9,
			},
			want: "0.10*7 > 0.90",
		},
		{
			name: "category present",
			condition: Condition{
				FirstStateKey: "0", FirstStateCoefficient: 1,
				Operator:         GreaterThanEqual,
				SecondStateValue: 1,
			},
			states: map[string]string{"0": "gear_is_category_low"},
			want:   "gear is low",
		},
		{
			name: "category absent with lookback",
			condition: Condition{
				FirstStateKey: "0", FirstStateCoefficient: 1, FirstStateLookback: 1,
				Operator:         LessThan,
				SecondStateValue: 1,
			},
			states: map[string]string{"0": "gear_is_category_low"},
			want:   "gear[1] is not low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.condition.Format(tt.states, tt.minMaxes))
		})
	}
}

func TestCondition_Validate(t *testing.T) {
	valid := Condition{FirstStateKey: "0", Operator: LessThanEqual}
	require.NoError(t, valid.Validate())

	badOperator := valid
	badOperator.Operator = "=="
	assert.ErrorContains(t, badOperator.Validate(), "invalid operator")

	badLookback := valid
	badLookback.SecondStateLookback = -1
	assert.Error(t, badLookback.Validate())

	assert.Error(t, (&Condition{Operator: LessThan}).Validate())
}

func TestCategoricalHelpers(t *testing.T) {
	name := "admission_source_is_category_Emergency Room"

	assert.True(t, IsCategorical(name))
	assert.False(t, IsCategorical("admission_source"))
	assert.Equal(t, "admission_source", CategoricalName(name))
	assert.Equal(t, "Emergency Room", CategoricalCategory(name))
	assert.Equal(t, "", CategoricalCategory("speed"))
}
