package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaf-ai/leaf-common/internal/persistence"
)

func TestReadConfigShapeVar(t *testing.T) {
	got, err := ReadConfigShapeVar([]VarDef{
		{Name: "speed", Size: 1, Values: []string{"float"}},
		{Name: "gear", Size: 2, Values: []string{"low", "high"}},
		{Name: "height", Size: 1},
	})
	require.NoError(t, err)

	want := map[string]string{
		"0": "speed",
		"1": "gear_is_category_low",
		"2": "gear_is_category_high",
		"3": "height",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadConfigShapeVar() mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadConfigShapeVar([]VarDef{{Name: "gear", Size: 3, Values: []string{"low"}}})
	assert.ErrorContains(t, err, "gear")
}

func TestLoadNetworkConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiment.json")
	content := `{
	// domain definition
	"network": {
		"inputs": [
			{"name": "x", "size": 1, "values": ["float"]},
			{"name": "gear", "size": 2, "values": ["low", "high"]},
		],
		"outputs": [
			{"name": "direction", "size": 2, "activation": "softmax", "use_bias": true, "values": ["left", "right"]}
		]
	}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadNetworkConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Network.Inputs, 2)
	assert.True(t, cfg.Network.Outputs[0].UseBias)

	states, err := GetStates(cfg)
	require.NoError(t, err)
	assert.Equal(t, "gear_is_category_high", states["2"])

	actions, err := GetActions(cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0": "direction_is_category_left", "1": "direction_is_category_right"}, actions)

	_, err = LoadNetworkConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestBinding_Validate(t *testing.T) {
	b := testBinding()
	require.NoError(t, b.Validate())

	tests := []struct {
		key  string
		want string
	}{
		{key: "RuleSetBinding-1.3", want: ""},
		{key: "RuleSetBinding-2.0", want: "unsupported version"},
		{key: "RuleSetBinding-abc", want: "invalid version"},
		{key: "RuleSet-1.0", want: "unexpected key"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			b := testBinding()
			b.Key = tt.key
			err := b.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}

	noRules := testBinding()
	noRules.Rules = nil
	assert.ErrorContains(t, noRules.Validate(), "no rules")
}

func TestNewBinding_Copies(t *testing.T) {
	rs := testRuleSet()
	states := []VarDef{{Name: "gear", Size: 2, Values: []string{"low", "high"}}}
	b := NewBinding(rs, states, nil)

	rs.Rules[0].Action = "changed"
	rs.MinMaxes["0"] = MinMax{Min: -1, Max: 1}
	states[0].Values[0] = "changed"

	assert.Equal(t, "1", b.Rules.Rules[0].Action)
	assert.Equal(t, MinMax{Min: 0, Max: 10}, b.Rules.MinMaxes["0"])
	assert.Equal(t, "low", b.States[0].Values[0])
	assert.Equal(t, BindingKey, b.Key)
}

func TestBinding_String(t *testing.T) {
	b := testBinding()
	b.Rules.Rules[0].TimesApplied = 2

	s := b.String()
	assert.Contains(t, s, " <2> 1.00*x > 5.00 {0..10} --> 0.90*direction_is_category_right\n")
	assert.Contains(t, s, " <> Default Action: 0.40*direction_is_category_left\n")
	assert.Contains(t, s, "states: [x, gear(2)[low high]]")
}

func TestBinding_ActionNames(t *testing.T) {
	names, err := testBinding().ActionNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"direction_is_category_left", "direction_is_category_right"}, names)

	b := testBinding()
	b.Actions[0].Values = nil
	_, err = b.ActionNames()
	assert.Error(t, err)
}

func TestRuleSet_String(t *testing.T) {
	rs := testRuleSet()
	rs.TimesApplied = 3

	want := " <> 1.00*0 > 5.00 {0..10} --> 0.90*1\n" +
		" <> 1.00*0 > 7.00 {0..10} --> 0.50*1\n" +
		" <3> Default Action: 0.40*0\n"
	assert.Equal(t, want, rs.String())
}

func TestBindingPersistence_Roundtrip(t *testing.T) {
	formats := []persistence.SerializationFormat{
		persistence.JSONFormat{Pretty: true},
		persistence.YAMLFormat{},
		persistence.TOMLFormat{},
	}

	for _, format := range formats {
		t.Run(format.FileExtension(), func(t *testing.T) {
			ctx := context.Background()
			p := NewBindingPersistence(format, persistence.NewLocalFileMechanism(nil))

			want := testBinding()
			ref, err := p.Persist(ctx, want, filepath.Join(t.TempDir(), "binding"))
			require.NoError(t, err)
			assert.Equal(t, format.FileExtension(), filepath.Ext(ref))

			got, err := p.Restore(ctx, ref)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Restore() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBindingPersistence_RejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	p := NewBindingPersistence(persistence.JSONFormat{}, persistence.NewLocalFileMechanism(nil))

	b := testBinding()
	b.Key = "RuleSetBinding-3.1"
	ref, err := p.Persist(ctx, b, filepath.Join(t.TempDir(), "binding.json"))
	require.NoError(t, err)

	_, err = p.Restore(ctx, ref)
	assert.ErrorContains(t, err, "unsupported version")

	_, err = p.Restore(ctx, filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
