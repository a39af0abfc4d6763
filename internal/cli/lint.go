// lint.go implements the "leafctl lint" command.
//
// The lint command walks the top-level directories of a source tree and
// runs the configured lint tool once per directory, either on the host or
// inside a Docker container. The process exits with the exit code of the
// last directory that failed, so CI jobs can gate on it directly.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leaf-ai/leaf-common/internal/config"
	"github.com/leaf-ai/leaf-common/internal/docker"
	"github.com/leaf-ai/leaf-common/internal/lint"
	"github.com/leaf-ai/leaf-common/internal/model"
)

// lintFlags holds the flag values for the lint command.
// Only flags the user actually set override the loaded configuration.
type lintFlags struct {
	root        string
	ignore      []string
	pattern     string
	linter      string
	dockerImage string
}

// NewLintCommand creates the "lint" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewLintCommand() *cobra.Command {
	flags := &lintFlags{}

	cmd := &cobra.Command{
		Use:   "lint [DIRS...]",
		Short: "Lint every top-level directory of a source tree",
		Long: `Run the lint tool over the source files of each top-level directory
under --root, one directory at a time.

Without arguments every directory is linted except the ignored ones
(.git, .github, venv, build, ...). Arguments name the directories to lint
instead; names that do not exist are skipped.

The exit code is that of the last directory whose lint failed, or 0 when
every directory passed.

Examples:
  leafctl lint
  leafctl lint framework tests
  leafctl lint --linter "flake8 --max-line-length 120"
  leafctl lint --docker-image python:3.12-slim --linter "pylint"`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runLint(cmd.Context(), cmd, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.root, "root", "", "Directory whose subdirectories are linted (default: current directory)")
	cmd.Flags().StringSliceVar(&flags.ignore, "ignore", nil, "Directory names or globs never linted")
	cmd.Flags().StringVar(&flags.pattern, "pattern", "", "File name glob selecting source files (default: *.py)")
	cmd.Flags().StringVar(&flags.linter, "linter", "", "Lint command line; source files are appended")
	cmd.Flags().StringVar(&flags.dockerImage, "docker-image", "", "Run the lint command inside this Docker image")

	return cmd
}

// runLint merges flags over the configuration, picks an executor and runs
// the lint.
func runLint(ctx context.Context, cmd *cobra.Command, flags *lintFlags, args []string) error {
	settings := mergeLintSettings(cmd, appConfig.Lint, flags)
	if len(settings.Command) == 0 {
		return model.NewCLIError(model.ExitConfigError, "lint command is empty")
	}

	// In JSON mode stdout carries only the final Result, so progress and
	// tool output move to stderr.
	out := cmd.OutOrStdout()
	progress := out
	if IsJSONOutput() {
		progress = cmd.ErrOrStderr()
	}

	executor, cleanup, err := newLintExecutor(ctx, settings, progress, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	opts := lint.Options{
		Root:    settings.Root,
		Targets: strings.Join(args, " "),
		Ignore:  settings.Ignore,
		Pattern: settings.Pattern,
	}
	VerboseLog("Linting %s with %q", opts.Root, strings.Join(settings.Command, " "))

	result, err := lint.NewRunner(executor, progress, lggr).Run(ctx, opts)
	if err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			return cliErr
		}
		return model.WrapCLIError(model.ExitGeneralError, "lint run aborted", err)
	}

	if IsJSONOutput() {
		if err := printJSON(out, result); err != nil {
			return err
		}
	}

	if result.Failed() {
		// The runner already printed "Lint FAILED"; only the exit code
		// remains to be reported.
		return &model.CLIError{Code: model.ExitCode(result.ExitCode)}
	}
	return nil
}

// mergeLintSettings applies the flags the user set on top of cfg.
func mergeLintSettings(cmd *cobra.Command, cfg config.LintConfig, flags *lintFlags) config.LintConfig {
	if cmd.Flags().Changed("root") {
		cfg.Root = flags.root
	}
	if cmd.Flags().Changed("ignore") {
		// An explicitly empty --ignore= disables ignoring entirely.
		cfg.Ignore = append([]string{}, flags.ignore...)
	}
	if cmd.Flags().Changed("pattern") {
		cfg.Pattern = flags.pattern
	}
	if cmd.Flags().Changed("linter") {
		cfg.Command = strings.Fields(flags.linter)
	}
	if cmd.Flags().Changed("docker-image") {
		cfg.DockerImage = flags.dockerImage
	}
	return cfg
}

// newLintExecutor returns the container executor when a Docker image is
// configured and the host executor otherwise. cleanup must be called
// whenever err is nil.
func newLintExecutor(ctx context.Context, settings config.LintConfig,
	stdout, stderr io.Writer) (lint.Executor, func(), error) {
	if settings.DockerImage == "" {
		return &lint.LocalExecutor{Command: settings.Command, Stdout: stdout, Stderr: stderr}, func() {}, nil
	}

	client, err := docker.NewClient()
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	executor := docker.NewContainerExecutor(client.API(), settings.DockerImage, settings.Command, stdout, stderr, lggr)
	VerboseLog("Running %s in image %s (run %s)", settings.Command[0], settings.DockerImage, executor.RunID())

	cleanup := func() {
		if err := client.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close Docker client: %v\n", err)
		}
	}
	return executor, cleanup, nil
}
