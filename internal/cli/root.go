// Package cli implements the cobra-based CLI commands for leafctl.
//
// Each subcommand (lint, rules, health, prune) is defined in its own file
// within this package. This file defines the root command that serves as
// the parent for all subcommands, handles global flags and loads the
// shared configuration and logger before any subcommand runs.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leaf-ai/leaf-common/internal/config"
	"github.com/leaf-ai/leaf-common/internal/logger"
	"github.com/leaf-ai/leaf-common/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, all output uses structured JSON format for machine consumption.
	jsonOutput bool

	// verbose enables debug logging and [verbose] traces on stderr.
	verbose bool

	// configFile is the leafctl config file. A missing file is not an
	// error; defaults and LEAF_* environment variables apply instead.
	configFile string
)

// appConfig and lggr are populated by the root command's PersistentPreRunE
// and are therefore available to every subcommand's RunE.
var (
	appConfig *config.Config
	lggr      *zap.SugaredLogger
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action. It only provides
// help text and global flags; subcommands do the work.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leafctl",
		Short: "Tooling for LEAF evolutionary AI projects",
		Long: `leafctl lints LEAF source trees, inspects and evaluates rule-based
models, and checks the health of LEAF gRPC services.

Settings are read from leaf.yaml (or --config) and LEAF_* environment
variables; command-line flags take precedence over both.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// PersistentPreRunE runs before every subcommand. Loading the
		// config here keeps each subcommand free of bootstrap code.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvironment()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultFile, "Path to the leafctl config file")

	rootCmd.AddCommand(NewLintCommand())
	rootCmd.AddCommand(NewRulesCommand())
	rootCmd.AddCommand(NewHealthCommand())
	rootCmd.AddCommand(NewPruneCommand())

	return rootCmd
}

// loadEnvironment reads the config and builds the logger.
func loadEnvironment() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to load configuration", err)
	}
	appConfig = cfg

	l, err := logger.New(verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	lggr = l

	VerboseLog("Loaded configuration from %s", configFile)
	return nil
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError types carry their own exit codes; other errors default to
// exit code 1.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.Execute()
	if lggr != nil {
		_ = lggr.Sync()
	}
	if err == nil {
		return
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		// An empty message means the command already reported the
		// failure itself (e.g. a lint run printing "Lint FAILED").
		if cliErr.Message != "" {
			printError(cliErr.Message, cliErr.Err)
		}
		os.Exit(int(cliErr.Code))
	}

	// Generic error: exit with code 1.
	printError(err.Error(), nil)
	os.Exit(int(model.ExitGeneralError))
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout
		// is reserved for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
// This is used throughout the CLI for trace output that helps users
// understand what operations are being performed.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
