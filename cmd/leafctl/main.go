// Package main is the entry point for the leafctl CLI.
//
// leafctl lints LEAF source trees, works with rule-based models and checks
// LEAF gRPC services. It delegates all functionality to the internal/cli
// package, which defines the cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags.
// During development, they default to "dev", "none", and "unknown".
package main

import (
	"github.com/leaf-ai/leaf-common/internal/cli"
)

// version, commit, and date are set at build time via
// -ldflags "-X main.version=...". They identify the binary in --version.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Execute handles error formatting and exit codes.
	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
