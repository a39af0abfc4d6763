package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"go.uber.org/zap"

	"github.com/leaf-ai/leaf-common/internal/logger"
	"github.com/leaf-ai/leaf-common/internal/model"
)

// LeftoverContainer is a lint container that outlived its run, typically
// because leafctl was killed before its cleanup ran.
type LeftoverContainer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	RunID string `json:"run_id"`
	Dir   string `json:"dir"`
	State string `json:"state"`
}

// PruneContainers finds every container labelled as managed by leafctl and
// force-removes it. With dryRun set the containers are only reported.
//
// Containers with the managed-by label but without the other leafctl
// labels were not created by a lint run and are left alone.
func PruneContainers(ctx context.Context, api ContainerAPI, dryRun bool, lggr *zap.SugaredLogger) ([]LeftoverContainer, error) {
	lggr = logger.OrNop(lggr).Named("docker")

	summaries, err := api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue)),
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list lint containers", err)
	}

	var (
		found []LeftoverContainer
		errs  []error
	)
	for _, s := range summaries {
		runID, dir, err := ParseLabels(s.Labels)
		if err != nil {
			lggr.Warnw("skipping container", "id", s.ID, "err", err)
			continue
		}

		c := LeftoverContainer{ID: s.ID, RunID: runID, Dir: dir, State: string(s.State)}
		if len(s.Names) > 0 {
			c.Name = strings.TrimPrefix(s.Names[0], "/")
		}

		if !dryRun {
			if err := api.ContainerRemove(ctx, s.ID, container.RemoveOptions{Force: true}); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove container %s: %w", s.ID, err))
				continue
			}
			lggr.Debugw("removed lint container", "id", s.ID, "run", runID, "dir", dir)
		}
		found = append(found, c)
	}

	return found, errors.Join(errs...)
}
