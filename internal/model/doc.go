// Package model defines the shared value types of leaf-common.
//
// This package contains pure data structures with no external dependencies:
// exit codes (ExitCode), a custom error type (CLIError) that carries exit
// codes for proper OS process exit handling, and the naming conventions
// used for candidate metrics and state fields.
package model
