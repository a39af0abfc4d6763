// Package lint runs an external static-analysis tool over the top-level
// directories of a source tree.
//
// The runner resolves a set of target directories (either every top-level
// directory or the ones named by the operator), drops ignored entries and
// plain files, finds the source files inside each remaining directory and
// hands them to an Executor. Execution is strictly sequential: one
// directory at a time, one tool invocation per directory.
//
// Exit code aggregation is last-writer-wins: the overall result is the exit
// code of the most recently processed directory whose lint failed, not the
// first failure and not a combination of failures. A failing directory
// never stops the remaining directories from being linted.
package lint
