package docker

import (
	"fmt"
	"strings"
)

// Label keys stamped on every lint container. PruneContainers uses them
// to find containers left behind by an interrupted run.
const (
	// LabelPrefix namespaces all leafctl labels.
	LabelPrefix = "leaf."

	// LabelManagedBy identifies containers created by leafctl.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelLintDir records the host directory being linted.
	LabelLintDir = LabelPrefix + "lint-dir"

	// LabelRunID groups containers created by the same lint run.
	LabelRunID = LabelPrefix + "run-id"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "leafctl"

// BuildLabels returns the label set for a lint container.
func BuildLabels(runID, dir string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelLintDir:   dir,
		LabelRunID:     runID,
	}
}

// ParseLabels extracts the run ID and lint directory from a container's
// labels, failing when the container was not created by leafctl.
func ParseLabels(labels map[string]string) (runID, dir string, err error) {
	if labels[LabelManagedBy] != ManagedByValue {
		return "", "", fmt.Errorf("container is not managed by %s", ManagedByValue)
	}

	var missing []string
	for _, key := range []string{LabelLintDir, LabelRunID} {
		if labels[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", "", fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	return labels[LabelRunID], labels[LabelLintDir], nil
}
