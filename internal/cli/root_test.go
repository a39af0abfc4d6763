// root_test.go holds the helpers shared by the command tests
// and tests for the root command itself.
//
// Commands are executed in-process through NewRootCommand with their
// output captured, so no binary needs to be built.

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandOutput holds what a command wrote.
type commandOutput struct {
	stdout string
	stderr string
}

// writeConfig writes a leaf.yaml with the given content into a temporary
// directory and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCommand executes leafctl with args and a config file that does not
// exist unless args name one.
func runCommand(t *testing.T, args ...string) (commandOutput, error) {
	t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))

	err := cmd.Execute()
	return commandOutput{stdout: stdout.String(), stderr: stderr.String()}, err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"lint", "rules", "health", "prune"})
}

func TestRootCommand_Version(t *testing.T) {
	out, err := runCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out.stdout, "dev (commit: none, built: unknown)")
}

func TestRootCommand_LoadsConfig(t *testing.T) {
	path := writeConfig(t, "lint:\n  pattern: \"*.go\"\n")

	_, err := runCommand(t, "--config", path, "lint", "--root", t.TempDir(), "--linter", "true")
	require.NoError(t, err)
	require.NotNil(t, appConfig)
	assert.Equal(t, "*.go", appConfig.Lint.Pattern)
}

func TestRootCommand_BadConfig(t *testing.T) {
	path := writeConfig(t, "lint: [unterminated\n")

	_, err := runCommand(t, "--config", path, "lint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}
