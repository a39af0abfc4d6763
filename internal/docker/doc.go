// Package docker runs the lint tool inside a Docker container.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Container labels identifying lint containers created by leafctl
//   - ContainerExecutor, a lint.Executor that bind-mounts one directory
//     read-only, runs the configured tool in a throwaway container and
//     reports the container's exit status as the lint exit code
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
