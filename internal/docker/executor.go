package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leaf-ai/leaf-common/internal/logger"
	"github.com/leaf-ai/leaf-common/internal/model"
)

// mountPoint is where the linted directory appears inside the container.
const mountPoint = "/src"

// removeTimeout bounds container cleanup, which runs even after the lint
// context was cancelled.
const removeTimeout = 30 * time.Second

// ContainerExecutor is a lint.Executor that runs the lint tool inside a
// container built from Image.
//
// Each Run creates one container with the directory bind-mounted read-only
// at /src and the source files passed as paths relative to that mount. The
// container is always removed afterwards, whatever the outcome.
type ContainerExecutor struct {
	api   ContainerAPI
	image string
	cmd   []string
	runID string

	stdout io.Writer
	stderr io.Writer
	lggr   *zap.SugaredLogger
}

// NewContainerExecutor creates an executor running command in image.
// Output is copied to stdout/stderr (os.Stdout/os.Stderr when nil).
func NewContainerExecutor(api ContainerAPI, image string, command []string,
	stdout, stderr io.Writer, lggr *zap.SugaredLogger) *ContainerExecutor {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &ContainerExecutor{
		api:    api,
		image:  image,
		cmd:    command,
		runID:  uuid.NewString(),
		stdout: stdout,
		stderr: stderr,
		lggr:   logger.OrNop(lggr).Named("docker"),
	}
}

// RunID identifies the containers created by this executor.
func (e *ContainerExecutor) RunID() string {
	return e.runID
}

// Run lints files (all located under dir) in a fresh container and returns
// the container's exit status.
func (e *ContainerExecutor) Run(ctx context.Context, dir string, files []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	args, err := containerPaths(absDir, files)
	if err != nil {
		return 0, err
	}

	config := &container.Config{
		Image:      e.image,
		Cmd:        append(append([]string{}, e.cmd...), args...),
		WorkingDir: mountPoint,
		Labels:     BuildLabels(e.runID, absDir),
	}
	hostConfig := &container.HostConfig{
		Binds: []string{absDir + ":" + mountPoint + ":ro"},
	}

	// Container names must be unique per daemon; the short UUID suffix
	// avoids collisions between concurrent lint runs.
	name := "leaf-lint-" + uuid.NewString()[:8]

	created, err := e.api.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return 0, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create lint container from image %q", e.image),
			err,
		)
	}
	e.lggr.Debugw("created lint container", "id", created.ID, "name", name, "dir", absDir)

	defer e.remove(created.ID)

	// Register the wait before starting so a fast-exiting container cannot
	// be missed.
	waitCh, errCh := e.api.ContainerWait(ctx, created.ID, container.WaitConditionNextExit)

	if err := e.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return 0, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start lint container %q", name),
			err,
		)
	}

	var status int64
	select {
	case resp := <-waitCh:
		if resp.Error != nil && resp.Error.Message != "" {
			return 0, fmt.Errorf("lint container %q failed: %s", name, resp.Error.Message)
		}
		status = resp.StatusCode
	case err := <-errCh:
		return 0, fmt.Errorf("failed waiting for lint container %q: %w", name, err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	if err := e.copyLogs(ctx, created.ID); err != nil {
		e.lggr.Warnw("failed to read lint container logs", "id", created.ID, "err", err)
	}

	return int(status), nil
}

// copyLogs demultiplexes the container's stdout/stderr stream.
func (e *ContainerExecutor) copyLogs(ctx context.Context, id string) error {
	logs, err := e.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return err
	}
	defer logs.Close()

	_, err = stdcopy.StdCopy(e.stdout, e.stderr, logs)
	return err
}

// remove force-removes the container on a fresh context.
func (e *ContainerExecutor) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := e.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		e.lggr.Warnw("failed to remove lint container", "id", id, "err", err)
	}
}

// containerPaths rewrites host file paths to paths under mountPoint.
// Files outside dir are rejected since the container cannot see them.
func containerPaths(absDir string, files []string) ([]string, error) {
	out := make([]string, 0, len(files))
	for _, f := range files {
		absFile, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		rel, err := filepath.Rel(absDir, absFile)
		if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
			return nil, fmt.Errorf("file %s is outside lint directory %s", f, absDir)
		}
		// Container paths are always slash-separated.
		out = append(out, path.Join(mountPoint, filepath.ToSlash(rel)))
	}
	return out, nil
}
