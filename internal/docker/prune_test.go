package docker

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaf-ai/leaf-common/internal/logger"
)

func leftoverSummaries() []container.Summary {
	return []container.Summary{
		{ID: "c1", Names: []string{"/leaf-lint-1a2b3c4d"}, State: "exited", Labels: BuildLabels("run-1", "/work/alpha")},
		// Carries the managed-by label only, so it was not made by a lint run.
		{ID: "c2", Names: []string{"/other"}, State: "running", Labels: map[string]string{LabelManagedBy: ManagedByValue}},
	}
}

// TestPruneContainers removes only containers with complete leafctl labels.
func TestPruneContainers(t *testing.T) {
	api := &fakeAPI{containers: leftoverSummaries()}

	found, err := PruneContainers(context.Background(), api, false, logger.Test(t))
	require.NoError(t, err)
	assert.Equal(t, []LeftoverContainer{
		{ID: "c1", Name: "leaf-lint-1a2b3c4d", RunID: "run-1", Dir: "/work/alpha", State: "exited"},
	}, found)
	assert.Equal(t, []string{"c1"}, api.removed)

	assert.True(t, api.listOpts.All)
	assert.True(t, api.listOpts.Filters.ExactMatch("label", LabelManagedBy+"="+ManagedByValue))
}

// TestPruneContainers_DryRun reports without removing.
func TestPruneContainers_DryRun(t *testing.T) {
	api := &fakeAPI{containers: leftoverSummaries()}

	found, err := PruneContainers(context.Background(), api, true, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "run-1", found[0].RunID)
	assert.Empty(t, api.removed)
}

// TestPruneContainers_RemoveFails reports the container that stayed.
func TestPruneContainers_RemoveFails(t *testing.T) {
	api := &fakeAPI{containers: leftoverSummaries(), removeErr: errors.New("conflict")}

	found, err := PruneContainers(context.Background(), api, false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c1")
	assert.Empty(t, found)
}
