// Package executor runs functions in the background and hands back
// futures for their results.
//
// An Executor must be started before use and shut down when done;
// Shutdown waits for every submitted task. Tasks receive a context that is
// cancelled when Shutdown gives up waiting. A panicking task fails its own
// future and never takes the process down.
package executor
