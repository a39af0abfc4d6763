package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCLIError_Error verifies the message format with and without
// an underlying error.
func TestCLIError_Error(t *testing.T) {
	plain := NewCLIError(ExitConfigError, "bad config")
	assert.Equal(t, "bad config", plain.Error())
	assert.Nil(t, plain.Unwrap())

	underlying := errors.New("permission denied")
	wrapped := WrapCLIError(ExitPersistenceError, "cannot write model", underlying)
	assert.Equal(t, "cannot write model: permission denied", wrapped.Error())
	assert.Equal(t, ExitPersistenceError, wrapped.Code)
}

// TestCLIError_ErrorsAs checks that a CLIError survives fmt.Errorf wrapping
// so the CLI layer can still recover its exit code.
func TestCLIError_ErrorsAs(t *testing.T) {
	base := errors.New("boom")
	err := error(WrapCLIError(ExitDockerNotRunning, "docker down", base))
	outer := errors.Join(errors.New("context"), err)

	var cliErr *CLIError
	require.True(t, errors.As(outer, &cliErr))
	assert.Equal(t, ExitDockerNotRunning, cliErr.Code)
	assert.True(t, errors.Is(outer, base))
}

// TestIsActionField covers the state field naming helper.
func TestIsActionField(t *testing.T) {
	tests := []struct {
		name   string
		action bool
	}{
		{"a_move", true},
		{"fitness", false},
		{"speed_a_", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.action, IsActionField(tt.name))
		})
	}
}
