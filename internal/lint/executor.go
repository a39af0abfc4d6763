package lint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/leaf-ai/leaf-common/internal/model"
)

// DefaultCommand is the lint tool invoked when none is configured.
var DefaultCommand = []string{"pylint"}

// Executor runs the lint tool over one directory's source files.
//
// A non-zero exit code from the tool is a lint result, not an error: Run
// returns it with a nil error. An error means the tool could not be run at
// all (missing binary, Docker unavailable, cancelled context).
type Executor interface {
	Run(ctx context.Context, dir string, files []string) (int, error)
}

// LocalExecutor runs the lint tool as a child process on the host.
type LocalExecutor struct {
	// Command is the tool and its leading arguments; source files are
	// appended after it. Defaults to DefaultCommand.
	Command []string

	// WorkDir is the working directory of the child process. Empty means
	// the current directory of leafctl.
	WorkDir string

	// Stdout and Stderr receive the tool's output. Nil means os.Stdout
	// and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Run executes the configured command with files appended as arguments.
func (e *LocalExecutor) Run(ctx context.Context, dir string, files []string) (int, error) {
	command := e.Command
	if len(command) == 0 {
		command = DefaultCommand
	}

	args := make([]string, 0, len(command)-1+len(files))
	args = append(args, command[1:]...)
	args = append(args, files...)

	// #nosec G204: the command comes from operator configuration
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = e.WorkDir
	cmd.Stdout = writerOr(e.Stdout, os.Stdout)
	cmd.Stderr = writerOr(e.Stderr, os.Stderr)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	// *exec.ExitError means the process ran and exited non-zero, which is
	// the lint verdict we want to report. Anything else (binary not found,
	// permission denied) means the tool never ran.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}

	// A tool killed by a signal reports -1; use the shell's 128+N so the
	// directory still counts as failed.
	if exitErr != nil {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
	}

	return 0, model.WrapCLIError(
		model.ExitLinterNotFound,
		fmt.Sprintf("failed to run lint tool %q on %s", command[0], dir),
		err,
	)
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
