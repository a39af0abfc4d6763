// Package model defines the shared types for the leafctl CLI and the
// leaf-common library packages.
//
// The exit code taxonomy lives here so that library packages (lint, docker,
// persistence) can return errors that the CLI layer translates into process
// exit codes without importing the CLI itself.
package model

import (
	"fmt"
)

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
//
// The lint command is the exception: its exit code is whatever the external
// linter last reported, so callers should not assume lint failures fall in
// this range.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates a configuration file could not be read
	// or contained invalid values.
	ExitConfigError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitLinterNotFound indicates the external lint tool could not be
	// started at all (as opposed to running and reporting problems).
	ExitLinterNotFound ExitCode = 4

	// ExitPersistenceError indicates a model could not be persisted or
	// restored.
	ExitPersistenceError ExitCode = 5

	// ExitServiceUnavailable indicates a remote gRPC service did not
	// answer within the umbrella timeout.
	ExitServiceUnavailable ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
