package lint

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/leaf-ai/leaf-common/internal/logger"
)

// Options controls a single lint run.
type Options struct {
	// Root is the directory whose top-level subdirectories are linted.
	// Empty means the current directory.
	Root string

	// Targets is the operator-supplied argument: a whitespace-separated
	// list of directory names under Root. Empty means all directories.
	Targets string

	// Ignore lists names (or globs) never linted. Nil means DefaultIgnore;
	// an empty non-nil slice disables ignoring entirely.
	Ignore []string

	// Pattern is the file name glob for source files. Empty means
	// DefaultPattern.
	Pattern string
}

func (o Options) root() string {
	if o.Root == "" {
		return "."
	}
	return o.Root
}

func (o Options) ignoreList() []string {
	if o.Ignore == nil {
		return DefaultIgnore
	}
	return o.Ignore
}

// DirResult is the outcome for one linted directory.
type DirResult struct {
	// Name is the directory name relative to the root.
	Name string `json:"name"`

	// Files is the number of source files handed to the tool.
	Files int `json:"files"`

	// ExitCode is the tool's exit code for this directory. Zero when the
	// directory was skipped for having no source files.
	ExitCode int `json:"exitCode"`

	// Skipped is true when the directory had no source files.
	Skipped bool `json:"skipped,omitempty"`
}

// Result is the outcome of a whole lint run.
type Result struct {
	// Directories holds one entry per processed directory, in order.
	Directories []DirResult `json:"directories"`

	// ExitCode is the last non-zero per-directory exit code, or zero when
	// every directory passed.
	ExitCode int `json:"exitCode"`
}

// Failed reports whether any directory failed.
func (r *Result) Failed() bool {
	return r.ExitCode != 0
}

// Runner lints directories one at a time through an Executor.
type Runner struct {
	executor Executor
	out      io.Writer
	lggr     *zap.SugaredLogger
}

// NewRunner creates a Runner. Progress and the final status line are
// written to out (os.Stdout when nil).
func NewRunner(executor Executor, out io.Writer, lggr *zap.SugaredLogger) *Runner {
	if out == nil {
		out = os.Stdout
	}
	return &Runner{
		executor: executor,
		out:      out,
		lggr:     logger.OrNop(lggr).Named("lint"),
	}
}

// Run lints every resolved target directory in order.
//
// A directory whose lint fails overwrites the running exit code and the
// run continues with the next directory. The returned error is non-nil
// only when the targets cannot be resolved or the executor cannot run the
// tool at all; in that case the partial Result is still returned.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	targets, err := ResolveTargets(opts)
	if err != nil {
		return nil, err
	}
	r.lggr.Debugw("resolved lint targets", "root", opts.root(), "targets", targets)

	result := &Result{Directories: make([]DirResult, 0, len(targets))}
	for _, name := range targets {
		dir := filepath.Join(opts.root(), name)

		files, err := FindSources(dir, opts.Pattern)
		if err != nil {
			return result, err
		}

		if len(files) == 0 {
			fmt.Fprintf(r.out, "Skipping %s: no source files\n", name)
			result.Directories = append(result.Directories, DirResult{Name: name, Skipped: true})
			continue
		}

		fmt.Fprintf(r.out, "Linting %s (%d files)\n", name, len(files))
		code, err := r.executor.Run(ctx, dir, files)
		if err != nil {
			return result, err
		}

		result.Directories = append(result.Directories, DirResult{
			Name:     name,
			Files:    len(files),
			ExitCode: code,
		})

		if code != 0 {
			// Last writer wins: a later failure replaces an earlier one.
			result.ExitCode = code
			r.lggr.Debugw("lint failed", "dir", name, "exitCode", code)
		}
	}

	if result.Failed() {
		fmt.Fprintf(r.out, "Lint FAILED (exit code %d)\n", result.ExitCode)
	} else {
		fmt.Fprintln(r.out, "Lint passed")
	}

	return result, nil
}
