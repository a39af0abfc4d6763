// prune.go implements the "leafctl prune" command.
//
// Lint containers are removed at the end of every run, but a leafctl
// process killed mid-run leaves its container behind. prune finds those
// containers by their leaf.* labels and removes them.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/leaf-ai/leaf-common/internal/docker"
	"github.com/leaf-ai/leaf-common/internal/model"
)

// pruneFlags holds the flag values for the prune command.
type pruneFlags struct {
	dryRun bool
}

// NewPruneCommand creates the "prune" cobra command.
func NewPruneCommand() *cobra.Command {
	flags := &pruneFlags{}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove lint containers left behind by interrupted runs",
		Long: `Remove every container labelled leaf.managed-by=leafctl, running or
not. Use --dry-run to list them first.

Examples:
  leafctl prune --dry-run
  leafctl prune --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List the containers without removing them")

	return cmd
}

func runPrune(ctx context.Context, out io.Writer, flags *pruneFlags) error {
	client, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close Docker client: %v\n", err)
		}
	}()
	if err := client.Ping(ctx); err != nil {
		return err
	}

	found, pruneErr := docker.PruneContainers(ctx, client.API(), flags.dryRun, lggr)
	if err := printPruned(out, found, flags.dryRun); err != nil {
		return err
	}
	if pruneErr != nil {
		return model.WrapCLIError(model.ExitGeneralError, "some containers could not be removed", pruneErr)
	}
	return nil
}

func printPruned(out io.Writer, found []docker.LeftoverContainer, dryRun bool) error {
	if IsJSONOutput() {
		if found == nil {
			found = []docker.LeftoverContainer{}
		}
		return printJSON(out, found)
	}

	if len(found) == 0 {
		_, err := fmt.Fprintln(out, "No lint containers found.")
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Container", "Run", "Directory", "State"})
	for _, c := range found {
		table.Append([]string{c.Name, c.RunID, c.Dir, c.State})
	}
	table.Render()

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	_, err := fmt.Fprintf(out, "%s %d container(s).\n", verb, len(found))
	return err
}
