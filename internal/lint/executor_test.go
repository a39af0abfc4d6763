package lint

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaf-ai/leaf-common/internal/model"
)

// requireShell skips tests that need a POSIX shell.
func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// TestLocalExecutor_ExitCodes verifies that non-zero tool exits are
// reported as codes, not errors, and that files are passed as arguments.
func TestLocalExecutor_ExitCodes(t *testing.T) {
	requireShell(t)

	var stdout bytes.Buffer
	e := &LocalExecutor{
		// "$#" is the number of file arguments appended after "sh".
		Command: []string{"sh", "-c", `echo "$#"; exit 3`, "sh"},
		Stdout:  &stdout,
	}

	code, err := e.Run(context.Background(), ".", []string{"a.py", "b.py"})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "2\n", stdout.String())

	e.Command = []string{"sh", "-c", "exit 0", "sh"}
	code, err = e.Run(context.Background(), ".", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

// TestLocalExecutor_KilledBySignal verifies that a tool terminated by a
// signal is a failed lint with the shell's 128+N code.
func TestLocalExecutor_KilledBySignal(t *testing.T) {
	requireShell(t)

	e := &LocalExecutor{Command: []string{"sh", "-c", "kill -TERM $$", "sh"}}

	code, err := e.Run(context.Background(), "pkg", []string{"a.py"})
	require.NoError(t, err)
	assert.Equal(t, 128+int(syscall.SIGTERM), code)
}

// TestLocalExecutor_MissingTool verifies the CLIError for a missing binary.
func TestLocalExecutor_MissingTool(t *testing.T) {
	e := &LocalExecutor{Command: []string{"definitely-not-a-linter-binary"}}

	_, err := e.Run(context.Background(), "pkg", []string{"a.py"})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitLinterNotFound, cliErr.Code)
}
